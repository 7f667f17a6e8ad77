package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrConflict           ErrorCode = "CONFLICT"
	ErrBadRequest         ErrorCode = "BAD_REQUEST"
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrRemoteRejected     ErrorCode = "REMOTE_REJECTED"
	ErrRemoteUnavailable  ErrorCode = "REMOTE_UNAVAILABLE"
	ErrInternalServer     ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause when Details carries an error.
func (e APIError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.WithField("code", code).Debug(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CodeOf returns the code of the first APIError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return "", false
}

// IsPermanent reports whether err is a remote rejection that retrying the
// same payload cannot fix.
func IsPermanent(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrRemoteRejected
}

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrNotFound
}

func MapErrorToHTTPStatus(err error) int {
	code, ok := CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrInvalidInput, ErrBadRequest:
		return http.StatusBadRequest
	case ErrStorageUnavailable:
		return http.StatusServiceUnavailable
	case ErrRemoteRejected:
		return http.StatusUnprocessableEntity
	case ErrRemoteUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
