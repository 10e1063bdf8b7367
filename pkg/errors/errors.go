// Package errors defines the gateway's error taxonomy. Every failure that
// reaches a client is an *AppError: a sentinel identifying the kind, the
// public error string, an optional detail and the HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrMissingDocument        = errors.New("missing document")
	ErrInvalidQuestionsFormat = errors.New("invalid questions format")
	ErrInvalidQuestionFormat  = errors.New("invalid question format")
	ErrUnsupportedFileType    = errors.New("unsupported file type")
	ErrPayloadTooLarge        = errors.New("payload too large")
	ErrUpstreamFetchFailed    = errors.New("upstream fetch failed")
	ErrRelayFailed            = errors.New("relay failed")
	ErrLocalStorageFailed     = errors.New("local storage failed")
	ErrStorageFailed          = errors.New("object storage failed")
	ErrNotFound               = errors.New("not found")
	ErrInternal               = errors.New("internal error")
)

// AppError is an error with a client-facing representation. Message becomes
// the "error" field of the response body; Detail becomes "message" on 4xx
// responses and "details" on 5xx responses.
type AppError struct {
	Err        error
	Message    string
	Detail     any
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Detail == nil {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.Detail)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetail returns a copy of e carrying detail.
func (e *AppError) WithDetail(detail any) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

func Unauthorized() *AppError {
	return New(ErrUnauthorized, http.StatusUnauthorized, "Unauthorized")
}

func InvalidRequest(detail string) *AppError {
	return New(ErrInvalidRequest, http.StatusBadRequest, "Invalid request body").WithDetail(detail)
}

func MissingDocument(detail string) *AppError {
	return New(ErrMissingDocument, http.StatusBadRequest, "No file provided").WithDetail(detail)
}

func InvalidQuestionsFormat(detail string) *AppError {
	return New(ErrInvalidQuestionsFormat, http.StatusBadRequest, "Invalid questions format").WithDetail(detail)
}

func InvalidQuestionFormat(index int) *AppError {
	return New(ErrInvalidQuestionFormat, http.StatusBadRequest, "Invalid question format").
		WithDetail(fmt.Sprintf("Question at index %d is empty or invalid", index))
}

func UnsupportedFileType(detail string) *AppError {
	return New(ErrUnsupportedFileType, http.StatusBadRequest, "Invalid file type").WithDetail(detail)
}

func PayloadTooLarge(limit int64) *AppError {
	return New(ErrPayloadTooLarge, http.StatusBadRequest, "File too large").
		WithDetail(fmt.Sprintf("File exceeds the %d byte limit", limit))
}

func UpstreamFetchFailed(detail any) *AppError {
	return New(ErrUpstreamFetchFailed, http.StatusBadGateway, "Failed to fetch document").WithDetail(detail)
}

func RelayFailed(detail any) *AppError {
	return New(ErrRelayFailed, http.StatusBadGateway, "Failed to fetch from LLM").WithDetail(detail)
}

func LocalStorageFailed(detail any) *AppError {
	return New(ErrLocalStorageFailed, http.StatusInternalServerError, "Failed to stage document").WithDetail(detail)
}

func StorageFailed() *AppError {
	return New(ErrStorageFailed, http.StatusInternalServerError, "Failed to upload file")
}

func Internal() *AppError {
	return New(ErrInternal, http.StatusInternalServerError, "Internal server error")
}

// As extracts the *AppError from err's chain. Errors outside the taxonomy
// are reported as Internal.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal()
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrMissingDocument),
		errors.Is(err, ErrInvalidQuestionsFormat),
		errors.Is(err, ErrInvalidQuestionFormat),
		errors.Is(err, ErrUnsupportedFileType),
		errors.Is(err, ErrPayloadTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamFetchFailed), errors.Is(err, ErrRelayFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Body renders the JSON response body for err.
func Body(err error) map[string]any {
	appErr := As(err)
	body := map[string]any{"error": appErr.Message}
	if appErr.Detail == nil {
		return body
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		body["details"] = appErr.Detail
	} else {
		body["message"] = appErr.Detail
	}
	return body
}
