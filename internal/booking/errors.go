package booking

import (
	"errors"
	"fmt"
)

// Code classifies a rejected operation.
type Code string

const (
	CodeAuthorization          Code = "AUTHORIZATION"
	CodeValidation             Code = "VALIDATION"
	CodeCapacity               Code = "CAPACITY"
	CodeResourceUnavailable    Code = "RESOURCE_UNAVAILABLE"
	CodeTemperatureExceeded    Code = "TEMPERATURE_EXCEEDED"
	CodeOverlap                Code = "OVERLAP"
	CodeWindowExpired          Code = "WINDOW_EXPIRED"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeNotFound               Code = "NOT_FOUND"
)

// Rejection is an expected business-rule outcome. It is returned to the
// caller as-is and never treated as a system failure.
type Rejection struct {
	Code   Code
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

func reject(code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is (or wraps) a Rejection.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// CodeOf returns the rejection code of err, or "" for infrastructure errors.
func CodeOf(err error) Code {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Code
	}
	return ""
}

// ReasonOf returns the human-readable reason of a rejection.
func ReasonOf(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return ""
}

func IsNotFound(err error) bool      { return CodeOf(err) == CodeNotFound }
func IsOverlap(err error) bool       { return CodeOf(err) == CodeOverlap }
func IsAuthorization(err error) bool { return CodeOf(err) == CodeAuthorization }
