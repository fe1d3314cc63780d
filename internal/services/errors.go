package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks permanent input failures (unsupported or corrupt
	// source objects). Never retried.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks failures that are expected to clear on retry
	// (throttling, temporary unavailability).
	ErrTransient = errors.New("transient failure")
	// ErrTimeout marks a bounded wait that expired. Retried like a transient
	// failure.
	ErrTimeout = errors.New("timeout")
	// ErrConflict marks a conditional status transition that lost the race to
	// a concurrent duplicate delivery. Callers treat it as success-via-skip.
	ErrConflict = errors.New("transition conflict")
	// ErrNotFound marks a referenced record or artifact that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExhausted marks a stage whose bounded retries ran out. The triggering
	// event is routed to the isolation sink.
	ErrExhausted = errors.New("retries exhausted")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether an error is eligible for another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

// IsConflict reports whether an error represents a lost conditional
// transition. Conflicts are not failures; the record already advanced.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsPermanent reports whether an error must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}

// FailureReason extracts a human-readable reason from a stage error, suitable
// for persisting on a failed document record.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	for _, marker := range []error{ErrValidation, ErrTransient, ErrTimeout, ErrConflict, ErrNotFound, ErrExhausted} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(msg, prefix))
		}
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
