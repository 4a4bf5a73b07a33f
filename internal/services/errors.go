package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service error for the transport layer
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is returned by every service operation that fails in a way the
// caller should be told about. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrNoActiveSession is returned when a room has no session to close
	ErrNoActiveSession = errors.New("no active meeting session")
	// ErrProviderNotConfigured is returned when an AI capability has no credentials
	ErrProviderNotConfigured = errors.New("OPENAI_API_KEY is not configured")
)

func validationError(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func notFoundError(op, message string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func forbiddenError(op, message string) error {
	return &Error{Kind: KindForbidden, Op: op, Message: message}
}

func upstreamError(op, message string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Message: message, Err: err}
}

func internalError(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// KindOf returns the kind of err, KindInternal when it is not an *Error
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message of err
func MessageOf(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return "internal server error"
}
