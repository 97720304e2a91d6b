package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/billingportal/internal/apiclient"
	"github.com/smallbiznis/billingportal/internal/auth/session"
	invoicedomain "github.com/smallbiznis/billingportal/internal/invoice/domain"
	"github.com/smallbiznis/billingportal/internal/ratelimit"
	walletdomain "github.com/smallbiznis/billingportal/internal/wallet/domain"
	walletservice "github.com/smallbiznis/billingportal/internal/wallet/service"
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

// Message returns the first message attached to field, or "".
func (v ValidationErrors) Message(field string) string {
	for _, e := range v.Errors {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

func (v ValidationErrors) Empty() bool {
	return len(v.Errors) == 0
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
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not_found")
	ErrTooManyRequests = errors.New("too_many_requests")
)

// ErrorHandlingMiddleware writes a JSON error for handlers that aborted
// without writing a response.
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

var fieldLabels = map[string]string{
	"email":     "Email",
	"password":  "Password",
	"firstName": "First name",
	"lastName":  "Last name",
	"tier":      "Tier",
	"user":      "User ID",
	"bio":       "Bio",
}

// bindingErrors turns gin binding failures into field errors keyed by form name.
func bindingErrors(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationErrors{Errors: []ValidationError{{
			Field:   "request",
			Code:    "invalid_request",
			Message: "invalid request",
		}}}
	}

	out := ValidationErrors{Errors: make([]ValidationError, 0, len(verrs))}
	for _, fe := range verrs {
		field := formFieldName(fe.Field())
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Code:    fe.Tag(),
			Message: bindingMessage(field, fe),
		})
	}
	return out
}

func formFieldName(structField string) string {
	if structField == "" {
		return ""
	}
	return strings.ToLower(structField[:1]) + structField[1:]
}

func bindingMessage(field string, fe validator.FieldError) string {
	label, ok := fieldLabels[field]
	if !ok {
		label = field
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return label + " must be at least " + fe.Param() + " characters"
	case "oneof":
		return label + " must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "numeric":
		return label + " must be a number"
	default:
		return "invalid value"
	}
}

// amountError attaches a top-up validation failure to the amount field.
func amountError(err error) ValidationErrors {
	return ValidationErrors{Errors: []ValidationError{{
		Field:   walletdomain.AmountField,
		Code:    amountErrorCode(err),
		Message: err.Error(),
	}}}
}

func amountErrorCode(err error) string {
	switch {
	case errors.Is(err, walletdomain.ErrAmountRequired):
		return "required"
	case errors.Is(err, walletdomain.ErrAmountNotNumeric):
		return "numeric"
	case errors.Is(err, walletdomain.ErrAmountNotPositive):
		return "positive"
	default:
		return "range"
	}
}

// errorRule maps every error matching one of its sentinels to a response.
// An empty message means the error text is shown.
type errorRule struct {
	match   []error
	status  int
	kind    string
	message string
}

// errorRules are checked in order; the first match wins.
var errorRules = []errorRule{
	{[]error{ErrUnauthorized, session.ErrNotFound, session.ErrExpired}, http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{[]error{invoicedomain.ErrDownloadInProgress}, http.StatusConflict, "conflict", ""},
	{[]error{ratelimit.ErrLockHeld}, http.StatusConflict, "conflict", "another top-up is in progress"},
	{[]error{ErrNotFound, invoicedomain.ErrInvoiceNotFound}, http.StatusNotFound, "not_found", "not found"},
	{[]error{walletdomain.ErrProfileNotLoaded}, http.StatusConflict, "conflict", ""},
	{[]error{ErrTooManyRequests}, http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later"},
	{[]error{context.DeadlineExceeded}, http.StatusGatewayTimeout, "upstream_timeout", "the billing service did not respond in time"},
	{[]error{apiclient.ErrResponseTooLarge}, http.StatusBadGateway, "upstream_error", "the billing service sent an oversized response"},
	{[]error{apiclient.ErrInvalidResponse, apiclient.ErrEmptyToken}, http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
}

func mapError(err error) (int, errorPayload) {
	internal := errorPayload{Type: "internal_error", Message: "internal server error"}
	if err == nil {
		return http.StatusInternalServerError, internal
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErr.Errors}
	}
	if walletservice.IsValidationError(err) {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: amountError(err).Errors}
	}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return mapAPIError(apiErr)
	}

	for _, rule := range errorRules {
		for _, target := range rule.match {
			if !errors.Is(err, target) {
				continue
			}
			msg := rule.message
			if msg == "" {
				msg = target.Error()
			}
			return rule.status, errorPayload{Type: rule.kind, Message: msg}
		}
	}
	return http.StatusInternalServerError, internal
}

// mapAPIError passes client errors through and reports upstream failures as 502.
func mapAPIError(apiErr *apiclient.Error) (int, errorPayload) {
	status := apiErr.StatusCode
	payload := errorPayload{Message: apiErr.Message}
	switch {
	case status == http.StatusUnauthorized:
		payload.Type = "unauthorized"
	case status == http.StatusForbidden:
		payload.Type = "forbidden"
	case status == http.StatusNotFound:
		payload.Type = "not_found"
	case status >= 400 && status < 500:
		payload.Type = "upstream_rejected"
	default:
		return http.StatusBadGateway, errorPayload{Type: "upstream_error", Message: apiErr.Message}
	}
	return status, payload
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	var plain ValidationErrors
	if errors.As(err, &plain) {
		return &plain
	}
	return nil
}

// classifyErrorForLog returns the error type and code logged with a request.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return payload.Type, apiErr.Operation
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, http.StatusText(status)
}
