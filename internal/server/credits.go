package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
)

func (s *Server) AllocateCredits(c *gin.Context) {
	var req billingdomain.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = s.actorFrom(c)

	receipt, err := s.billingSvc.Allocate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

func (s *Server) DebitCredits(c *gin.Context) {
	var req billingdomain.DebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = s.actorFrom(c)

	receipt, err := s.billingSvc.Debit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

func (s *Server) TransferCredits(c *gin.Context) {
	var req billingdomain.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = s.actorFrom(c)

	receipt, err := s.billingSvc.Transfer(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

func (s *Server) BulkAllocateCredits(c *gin.Context) {
	var req billingdomain.BulkAllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = s.actorFrom(c)

	resp, err := s.billingSvc.BulkAllocate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
