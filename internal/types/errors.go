package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidAction  ErrorCode = "validation_invalid_action"
	ErrCodeValidationInvalidBody    ErrorCode = "validation_invalid_body"
	ErrCodeValidationTargetRequired ErrorCode = "validation_target_required"

	// Auth (401)
	ErrCodeAuthTokenMissing    ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid    ErrorCode = "auth_token_invalid"
	ErrCodeAuthServiceKey      ErrorCode = "auth_service_key_invalid"
	ErrCodeAuthSignatureFailed ErrorCode = "auth_signature_invalid"

	// Permission (403)
	ErrCodePermissionRoleNotEligible ErrorCode = "permission_role_not_eligible"

	// Credits (402)
	ErrCodeCreditsInsufficient ErrorCode = "credits_insufficient"

	// Not Found (404)
	ErrCodeNotFoundEntitlement ErrorCode = "not_found_entitlement"
	ErrCodeNotFoundGrant       ErrorCode = "not_found_grant"
	ErrCodeNotFoundPayment     ErrorCode = "not_found_payment"

	// Conflict (409)
	ErrCodeConflictPromoRedeemed ErrorCode = "conflict_promo_already_redeemed"

	// Catalog and promo (400/422)
	ErrCodeProductUnknown        ErrorCode = "product_unknown"
	ErrCodePromoInvalidOrExpired ErrorCode = "promo_invalid_or_expired"
	ErrCodePromoNotApplicable    ErrorCode = "promo_not_applicable"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamQueue       ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case s == string(ErrCodeCreditsInsufficient):
		return http.StatusPaymentRequired // 402
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeProductUnknown):
		return http.StatusUnprocessableEntity // 422
	case strings.HasPrefix(s, "promo_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// ErrorKind is the stable, client-facing classification of a failure.
// Clients branch on the kind; codes are finer-grained and may grow.
type ErrorKind string

const (
	KindInsufficientCredits     ErrorKind = "InsufficientCredits"
	KindNotFound                ErrorKind = "NotFound"
	KindUnknownProduct          ErrorKind = "UnknownProduct"
	KindAlreadyApplied          ErrorKind = "AlreadyApplied"
	KindRoleNotEligible         ErrorKind = "RoleNotEligible"
	KindAlreadyRedeemed         ErrorKind = "AlreadyRedeemed"
	KindCodeInvalidOrExpired    ErrorKind = "CodeInvalidOrExpired"
	KindCodeNotApplicableToPlan ErrorKind = "CodeNotApplicableToPlan"
	KindTransient               ErrorKind = "Transient"
	KindInvalidRequest          ErrorKind = "InvalidRequest"
	KindUnauthorized            ErrorKind = "Unauthorized"
)

// Kind maps an ErrorCode onto the error_kind taxonomy.
func (c ErrorCode) Kind() ErrorKind {
	s := string(c)
	switch {
	case c == ErrCodeCreditsInsufficient:
		return KindInsufficientCredits
	case strings.HasPrefix(s, "not_found_"):
		return KindNotFound
	case c == ErrCodeProductUnknown:
		return KindUnknownProduct
	case c == ErrCodePermissionRoleNotEligible:
		return KindRoleNotEligible
	case c == ErrCodeConflictPromoRedeemed:
		return KindAlreadyRedeemed
	case c == ErrCodePromoInvalidOrExpired:
		return KindCodeInvalidOrExpired
	case c == ErrCodePromoNotApplicable:
		return KindCodeNotApplicableToPlan
	case strings.HasPrefix(s, "validation_"):
		return KindInvalidRequest
	case strings.HasPrefix(s, "auth_"):
		return KindUnauthorized
	default:
		return KindTransient
	}
}

// AppError is the standard application error type used throughout the ledger.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// Kind returns the client-facing error kind.
func (e *AppError) Kind() ErrorKind {
	return e.Code.Kind()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// KindOf extracts the error kind from any error. Errors that are not an
// AppError are treated as transient.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind()
	}
	return KindTransient
}

// IsTransient reports whether err is safe to retry with backoff.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// HasCode reports whether err carries the given ErrorCode anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
