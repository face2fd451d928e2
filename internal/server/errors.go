package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	admissiondomain "github.com/medimarket/platform/internal/admission/domain"
	auditdomain "github.com/medimarket/platform/internal/audit/domain"
	billingdomain "github.com/medimarket/platform/internal/billing/domain"
	disputedomain "github.com/medimarket/platform/internal/dispute/domain"
	ledgerdomain "github.com/medimarket/platform/internal/ledger/domain"
	pricingdomain "github.com/medimarket/platform/internal/pricing/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, billingdomain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_balance",
			Message: "insufficient balance",
		}
	case errors.Is(err, billingdomain.ErrAccountBusy):
		return http.StatusConflict, errorPayload{
			Type:    "account_busy",
			Message: "account busy, retry",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, disputedomain.ErrDuplicateDispute),
		errors.Is(err, ledgerdomain.ErrDuplicateReference):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, pricingdomain.ErrPriceUnresolvable):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "price_unresolvable",
			Message: "no pricing tier covers the price",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isLedgerValidationError(err),
		isBillingValidationError(err),
		isPricingValidationError(err),
		isAdmissionValidationError(err),
		isDisputeValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isLedgerValidationError(err error) bool {
	switch {
	case errors.Is(err, ledgerdomain.ErrInvalidClinic),
		errors.Is(err, ledgerdomain.ErrInvalidKind),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrAmountSignMismatch),
		errors.Is(err, ledgerdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isBillingValidationError(err error) bool {
	switch {
	case errors.Is(err, billingdomain.ErrInvalidAmount),
		errors.Is(err, billingdomain.ErrInvalidKind),
		errors.Is(err, billingdomain.ErrInvalidClinic),
		errors.Is(err, billingdomain.ErrSameAccount),
		errors.Is(err, billingdomain.ErrEmptyBatch):
		return true
	default:
		return false
	}
}

func isPricingValidationError(err error) bool {
	switch {
	case errors.Is(err, pricingdomain.ErrEmptyTierSet),
		errors.Is(err, pricingdomain.ErrTierGap),
		errors.Is(err, pricingdomain.ErrTierOverlap),
		errors.Is(err, pricingdomain.ErrInvalidTierRange),
		errors.Is(err, pricingdomain.ErrInvalidCreditCost),
		errors.Is(err, pricingdomain.ErrInvalidPrice):
		return true
	default:
		return false
	}
}

func isAdmissionValidationError(err error) bool {
	switch {
	case errors.Is(err, admissiondomain.ErrInvalidLead),
		errors.Is(err, admissiondomain.ErrInvalidClinic),
		errors.Is(err, admissiondomain.ErrInvalidPrice):
		return true
	default:
		return false
	}
}

func isDisputeValidationError(err error) bool {
	switch {
	case errors.Is(err, disputedomain.ErrInvalidLead),
		errors.Is(err, disputedomain.ErrInvalidClinic),
		errors.Is(err, disputedomain.ErrInvalidReason),
		errors.Is(err, disputedomain.ErrInvalidDecision),
		errors.Is(err, disputedomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, disputedomain.ErrNotFound),
		errors.Is(err, disputedomain.ErrLeadNotBilled),
		errors.Is(err, admissiondomain.ErrLeadNotBilled),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
