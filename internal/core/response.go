package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"matchpass/internal/types"
)

// maxRequestBodySize caps ledger request bodies. Every body is a handful of
// ids, so 64 KiB is generous.
const maxRequestBodySize = 64 << 10

// APIResponse wraps every successful body as {"data": ...}.
type APIResponse struct {
	Data any `json:"data"`
}

// APIErrorResponse wraps every failure as {"error": {...}}.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-facing error contract. ErrorKind is the stable
// taxonomy clients branch on; Retryable is true only for Transient failures.
type ErrorDetail struct {
	Code      string         `json:"code"`
	ErrorKind string         `json:"error_kind"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON marshals data before touching the writer so a marshal failure can
// still produce a clean 500.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(APIErrorResponse{Error: unexpected(r, "failed to encode response")})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error renders err. AppErrors keep their code, message and details; anything
// else becomes an opaque 500 so store and driver messages never reach clients.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		JSON(w, r, http.StatusInternalServerError, APIErrorResponse{Error: unexpected(r, "an unexpected error occurred")})
		return
	}

	kind := appErr.Kind()
	JSON(w, r, appErr.HTTPStatus(), APIErrorResponse{Error: ErrorDetail{
		Code:      string(appErr.Code),
		ErrorKind: string(kind),
		Message:   appErr.Message,
		Retryable: kind == types.KindTransient,
		Details:   appErr.Details,
		RequestID: types.GetRequestID(r.Context()),
	}})
}

func unexpected(r *http.Request, msg string) ErrorDetail {
	return ErrorDetail{
		Code:      string(types.ErrCodeInternalUnexpected),
		ErrorKind: string(types.KindTransient),
		Message:   msg,
		Retryable: true,
		RequestID: types.GetRequestID(r.Context()),
	}
}

// DecodeJSON strictly decodes exactly one JSON object into dst. Every failure
// is a validation_invalid_body AppError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return classifyDecodeError(err)
	}
	if dec.More() {
		return invalidBody("request body must contain a single JSON object", nil)
	}
	return nil
}

func invalidBody(msg string, err error) *types.AppError {
	return types.NewAppError(types.ErrCodeValidationInvalidBody, msg, err)
}

func classifyDecodeError(err error) *types.AppError {
	var (
		tooLarge  *http.MaxBytesError
		syntax    *json.SyntaxError
		wrongType *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooLarge):
		return invalidBody("request body is too large", err)
	case errors.As(err, &syntax), errors.Is(err, io.ErrUnexpectedEOF):
		return invalidBody("malformed JSON in request body", err)
	case errors.As(err, &wrongType):
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidBody, "invalid value for field", err,
			map[string]any{"field": wrongType.Field, "expected": wrongType.Type.String()})
	case errors.Is(err, io.EOF):
		return invalidBody("request body must not be empty", err)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return invalidBody("unknown field in request body: "+strings.TrimPrefix(err.Error(), "json: unknown field "), err)
	default:
		return invalidBody("invalid JSON in request body", err)
	}
}
