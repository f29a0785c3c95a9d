// Package errors provides the error classification used across the connector.
// Failures are scoped to a single tap or request, so the class tells a caller
// whether to retry on the next format arrival, fix its input, or report a
// structural inconsistency.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass tells a caller how to react to an error
type ErrorClass int

const (
	ErrorTransient ErrorClass = iota // retry later
	ErrorInvalid                     // fix the request or configuration
	ErrorFatal                       // structural, scoped to one tap or request
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Request errors
	ErrUnsupportedTemplate = errors.New("unsupported pad template")
	ErrUnknownTap          = errors.New("tap not owned by connector")
	ErrAlreadyDeclared     = errors.New("tap format already declared")
	ErrAlreadyLinked       = errors.New("tap already linked")
	ErrInvalidCaps         = errors.New("invalid caps")

	// Negotiation errors
	ErrNoConverter   = errors.New("no converter bound to sink tap")
	ErrBindFailed    = errors.New("could not bind tap target")
	ErrNotConnected  = errors.New("tap not connected downstream")
	ErrNoStateData   = errors.New("tap has no negotiation state")
	ErrOutputRequest = errors.New("converter refused output request")

	// Lifecycle errors
	ErrClosed         = errors.New("connector closed")
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrStopTimeout    = errors.New("stop timed out")

	// Connection errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrQueueFull         = errors.New("queue full")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError carries a class alongside the wrapped error. Component
// and Operation name where the error was raised.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Unclassified errors fall back to these sentinels. Anything matching none of
// them is treated as transient by Classify.
var (
	transientSentinels = []error{
		ErrBindFailed, ErrNotConnected,
		ErrNoConnection, ErrConnectionTimeout, ErrCircuitOpen, ErrQueueFull,
		context.DeadlineExceeded, context.Canceled,
	}
	fatalSentinels = []error{
		ErrNoConverter, ErrNoStateData,
	}
	invalidSentinels = []error{
		ErrUnsupportedTemplate, ErrUnknownTap, ErrAlreadyDeclared, ErrAlreadyLinked, ErrInvalidCaps,
		ErrInvalidConfig, ErrMissingConfig,
	}
)

// is reports whether err belongs to class. The outermost ClassifiedError
// decides; without one, the sentinel list does.
func is(err error, class ErrorClass, sentinels []error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == class
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err may succeed on a later attempt, typically
// the next format arrival or reconnect
func IsTransient(err error) bool { return is(err, ErrorTransient, transientSentinels) }

// IsFatal reports whether err is a structural inconsistency for the affected
// tap or request
func IsFatal(err error) bool { return is(err, ErrorFatal, fatalSentinels) }

// IsInvalid reports whether err was caused by the caller's input
func IsInvalid(err error) bool { return is(err, ErrorInvalid, invalidSentinels) }

// Classify returns the class of err. Nil and unrecognised errors are
// transient: they are retried on the next negotiation event.
func Classify(err error) ErrorClass {
	switch {
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// Wrap adds "component.method: action failed:" context without classifying
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err with context and marks it transient
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps err with context and marks it fatal
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it invalid
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}
