package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/medimarket/platform/internal/ledger/domain"
)

func (s *Server) GetClinicBalance(c *gin.Context) {
	clinicID := strings.TrimSpace(c.Param("id"))

	resp, err := s.ledgerSvc.BalanceOf(c.Request.Context(), clinicID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListClinicTransactions(c *gin.Context) {
	req := ledgerdomain.HistoryRequest{
		ClinicID: strings.TrimSpace(c.Param("id")),
		Kind:     strings.TrimSpace(c.Query("kind")),
	}
	req.PageToken = strings.TrimSpace(c.Query("page_token"))
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page size"))
			return
		}
		req.PageSize = size
	}

	resp, err := s.ledgerSvc.History(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
