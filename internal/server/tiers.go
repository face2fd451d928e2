package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/medimarket/platform/internal/pricing/domain"
)

func (s *Server) ListPricingTiers(c *gin.Context) {
	resp, err := s.pricingSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ReplacePricingTiers swaps the whole active tier set in one call. Tiers
// are replaced as a set so price coverage is never transiently broken.
func (s *Server) ReplacePricingTiers(c *gin.Context) {
	var req pricingdomain.ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pricingSvc.Replace(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
