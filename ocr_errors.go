package ocrservice

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// error classes, also used as the outcome label of ocr_extractions_total
const (
	ClassOK              = "ok"
	ClassEmptyInput      = "empty_input"
	ClassInvalidUpload   = "invalid_upload"
	ClassUploadTooLarge  = "upload_too_large"
	ClassEngineFailure   = "engine_failure"
	ClassMalformedResult = "malformed_result"
	ClassUnexpected      = "unexpected"
)

// EmptyInputError is returned when the uploaded payload has no bytes.
type EmptyInputError struct{}

func (*EmptyInputError) Error() string { return "empty file uploaded" }

// InvalidUploadError is returned when the request carries no usable file part.
type InvalidUploadError struct {
	Reason string
}

func (e *InvalidUploadError) Error() string { return "invalid upload: " + e.Reason }

// UploadTooLargeError is returned when the body exceeds the configured limit.
type UploadTooLargeError struct {
	Limit int64
}

func (e *UploadTooLargeError) Error() string {
	return fmt.Sprintf("upload exceeds %d bytes", e.Limit)
}

// EngineFailureError wraps any failure reported by the OCR engine. Its message is the
// engine's own message.
type EngineFailureError struct {
	Engine string
	Err    error
}

func (e *EngineFailureError) Error() string { return e.Err.Error() }

func (e *EngineFailureError) Unwrap() error { return e.Err }

// MalformedResultError is returned when the engine output matches no known shape.
type MalformedResultError struct {
	Reason string
}

func (e *MalformedResultError) Error() string { return "malformed engine result: " + e.Reason }

// UnexpectedError is the catch-all for failures outside the taxonomy.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	if e.Err == nil {
		return "unexpected error"
	}
	return "unexpected error: " + e.Err.Error()
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// ErrorResponse is what the HTTP layer writes for a failed request.
type ErrorResponse struct {
	Status int    `json:"-"`
	Class  string `json:"-"`
	Detail string `json:"detail"`
}

// MapError classifies err and builds the response for it. Anything that is not part of
// the taxonomy is reported as an UnexpectedError with a generic detail.
func MapError(err error) ErrorResponse {
	var (
		emptyErr     *EmptyInputError
		invalidErr   *InvalidUploadError
		tooLargeErr  *UploadTooLargeError
		engineErr    *EngineFailureError
		malformedErr *MalformedResultError
	)
	switch {
	case errors.As(err, &emptyErr):
		return ErrorResponse{Status: http.StatusBadRequest, Class: ClassEmptyInput, Detail: "Empty file uploaded"}
	case errors.As(err, &invalidErr):
		return ErrorResponse{Status: http.StatusBadRequest, Class: ClassInvalidUpload, Detail: invalidErr.Error()}
	case errors.As(err, &tooLargeErr):
		return ErrorResponse{Status: http.StatusRequestEntityTooLarge, Class: ClassUploadTooLarge, Detail: tooLargeErr.Error()}
	case errors.As(err, &engineErr):
		return ErrorResponse{
			Status: http.StatusInternalServerError,
			Class:  ClassEngineFailure,
			Detail: "OCR processing failed: " + engineErr.Error(),
		}
	case errors.As(err, &malformedErr):
		return ErrorResponse{
			Status: http.StatusInternalServerError,
			Class:  ClassMalformedResult,
			Detail: "OCR processing failed: " + malformedErr.Error(),
		}
	default:
		return ErrorResponse{
			Status: http.StatusInternalServerError,
			Class:  ClassUnexpected,
			Detail: "OCR processing failed: internal error",
		}
	}
}
