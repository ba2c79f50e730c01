package alert

import "errors"

var (
	ErrAlertNotFound    = errors.New("alert not found")
	ErrInvalidAlertID   = errors.New("invalid alert id")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrNoProfile        = errors.New("no threshold profile for parameter")
	ErrInvalidReading   = errors.New("invalid reading")
	ErrAlreadyResolved  = errors.New("alert already resolved")
)
