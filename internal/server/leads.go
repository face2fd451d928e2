package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	admissiondomain "github.com/medimarket/platform/internal/admission/domain"
)

func (s *Server) AdmitLead(c *gin.Context) {
	var req admissiondomain.AdmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = s.actorFrom(c)

	decision, err := s.admissionSvc.AdmitLead(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}

func (s *Server) ForceAdmitLead(c *gin.Context) {
	var req admissiondomain.AdmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = s.actorFrom(c)

	decision, err := s.admissionSvc.ForceAdmit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}

func (s *Server) GetLeadBilling(c *gin.Context) {
	leadID := strings.TrimSpace(c.Param("id"))

	record, err := s.admissionSvc.Get(c.Request.Context(), leadID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if record == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}
