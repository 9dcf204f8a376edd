package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a provider failure for retry and logging decisions
type ErrorKind string

const (
	ErrorKindNetwork       ErrorKind = "network"
	ErrorKindAPI           ErrorKind = "api"
	ErrorKindParse         ErrorKind = "parse"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindUnknown       ErrorKind = "unknown"
)

// ProviderError wraps a market-data failure with its classification and, for
// API errors, the remote status code
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a classified provider error wrapping cause
func NewProviderError(kind ErrorKind, message string, cause error) *ProviderError {
	return &ProviderError{Kind: kind, Message: message, Err: cause}
}

// NewAPIError builds an API-classified error carrying the remote status code
func NewAPIError(statusCode int, message string) *ProviderError {
	return &ProviderError{Kind: ErrorKindAPI, StatusCode: statusCode, Message: message}
}

// ClassifyError extracts the kind of err, defaulting to unknown for errors
// that were not classified at the provider boundary
func ClassifyError(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrorKindUnknown
}

// IsRetryable reports whether err is worth retrying. Validation and
// configuration errors never are, nor are API authentication failures.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return true // unknown errors get the benefit of the doubt
	}
	switch pe.Kind {
	case ErrorKindValidation, ErrorKindConfiguration:
		return false
	case ErrorKindAPI:
		return pe.StatusCode != http.StatusUnauthorized && pe.StatusCode != http.StatusForbidden
	default:
		return true
	}
}
