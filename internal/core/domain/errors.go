package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrImageNotFound   = errors.New("image not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTemporary       = errors.New("temporary failure")
	ErrConflict        = errors.New("status conflict")
	ErrProvider        = errors.New("provider error")
	ErrParse           = errors.New("parse error")
	ErrQualityRejected = errors.New("quality rejected")
	ErrStorage         = errors.New("storage error")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// FailureKind names the error class stored on failed images.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrQualityRejected):
		return "quality_rejected"
	case IsKind(err, ErrParse):
		return "parse_error"
	case IsKind(err, ErrProvider):
		return "provider_error"
	case IsKind(err, ErrStorage):
		return "storage_error"
	default:
		return "internal_error"
	}
}

// ProviderAttempt is the tagged result of one provider call.
type ProviderAttempt struct {
	Provider string        `json:"provider"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

func (a ProviderAttempt) Succeeded() bool {
	return a.Err == nil
}

// ProviderExhaustedError is returned when every configured provider failed.
type ProviderExhaustedError struct {
	Attempts []ProviderAttempt
	Last     error
}

func (e *ProviderExhaustedError) Error() string {
	if e == nil {
		return "all providers failed"
	}
	names := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		names = append(names, attempt.Provider)
	}
	if e.Last == nil {
		return fmt.Sprintf("all providers failed [%s]", strings.Join(names, ","))
	}
	return fmt.Sprintf("all providers failed [%s]: %v", strings.Join(names, ","), e.Last)
}

func (e *ProviderExhaustedError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Last == nil {
		return []error{ErrProvider}
	}
	return []error{ErrProvider, e.Last}
}
