package models

import (
	"errors"
	"fmt"
)

// Base error kinds, matched with errors.Is
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrProvider        = errors.New("lesson provider failed")

	ErrDispatchUnreachable = errors.New("dispatch: gateway unreachable")
	ErrDispatchBlocked     = errors.New("dispatch: user blocked the bot")
	ErrDispatchRateLimited = errors.New("dispatch: rate limited")
)

// Error carries the failing operation alongside a base kind
type Error struct {
	Op      string // e.g. "RecordProgress"
	Kind    error  // one of the base kinds above
	Message string
	Err     error // underlying cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches either the kind or the wrapped cause
func (e *Error) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NotFound builds an ErrNotFound error for op
func NotFound(op, message string) *Error {
	return &Error{Op: op, Kind: ErrNotFound, Message: message}
}

// InvalidArgument builds an ErrInvalidArgument error for op
func InvalidArgument(op, message string) *Error {
	return &Error{Op: op, Kind: ErrInvalidArgument, Message: message}
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidArgument reports whether err is a validation error
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// DispatchKind classifies Dispatch Gateway failures
type DispatchKind int

const (
	DispatchUnreachable DispatchKind = iota
	DispatchBlocked
	DispatchRateLimited
)

func (k DispatchKind) String() string {
	switch k {
	case DispatchBlocked:
		return "blocked"
	case DispatchRateLimited:
		return "rate_limited"
	default:
		return "unreachable"
	}
}

func (k DispatchKind) sentinel() error {
	switch k {
	case DispatchBlocked:
		return ErrDispatchBlocked
	case DispatchRateLimited:
		return ErrDispatchRateLimited
	default:
		return ErrDispatchUnreachable
	}
}

// DispatchError is returned by the Dispatch Gateway
type DispatchError struct {
	UserID int64
	Kind   DispatchKind
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("send to user %d: %s: %v", e.UserID, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func (e *DispatchError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// DispatchKindOf extracts the dispatch kind of err; unknown errors count as unreachable
func DispatchKindOf(err error) DispatchKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return DispatchUnreachable
}
