package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
	ledgerdomain "github.com/medimarket/platform/internal/ledger/domain"
	"go.uber.org/zap"
)

type paymentWebhookEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	ClinicID  string `json:"clinic_id"`
	Credits   int64  `json:"credits"`
	Reference string `json:"reference"`
}

// PaymentWebhook converts a settled payment into a credit purchase.
// Provider retries replay off the event id, so a redelivered event never
// credits twice.
func (s *Server) PaymentWebhook(c *gin.Context) {
	var event paymentWebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if event.EventType != "payment.succeeded" {
		// Acknowledge everything else so the provider stops retrying.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		AbortWithError(c, newValidationError("event_id", "invalid_event_id", "invalid event id"))
		return
	}

	receipt, err := s.billingSvc.Allocate(c.Request.Context(), billingdomain.AllocateRequest{
		ClinicID:    event.ClinicID,
		Amount:      event.Credits,
		Kind:        string(ledgerdomain.KindPurchase),
		Description: "credit purchase " + strings.TrimSpace(event.Reference),
		ReferenceID: "payment:" + eventID,
		Actor:       s.actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if receipt.Replayed {
		s.log.Info("payment webhook replayed", zap.String("event_id", eventID))
	}

	c.JSON(http.StatusOK, gin.H{"data": receipt})
}
