package notify

import (
	"errors"
	"fmt"
)

var (
	ErrObligationNotFound = errors.New("obligation not found")
	ErrPreferenceNotFound = errors.New("preference not found")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrNoRecipient        = errors.New("no recipient for channel")
)

// DeliveryError classifies a failed send as retryable (timeout,
// unavailable, rate-limited) or terminal (bad address, permanent
// rejection). Terminal failures must not consume retry budget.
type DeliveryError struct {
	Err       error
	Retryable bool
}

func (e *DeliveryError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s delivery error: %v", kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func Retryable(err error) error {
	return &DeliveryError{Err: err, Retryable: true}
}

func Terminal(err error) error {
	return &DeliveryError{Err: err, Retryable: false}
}

// IsRetryable reports whether a send failure is worth another attempt.
// Unclassified errors count as retryable: transport-level surprises
// (connection resets, DNS hiccups) usually clear up on their own.
func IsRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}
