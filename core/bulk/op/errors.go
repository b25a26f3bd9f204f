package op

import (
	"fmt"
	"strings"
)

// Reason classifies a domain error.
type Reason string

const (
	ReasonInvalidConfig           Reason = "invalid-config"
	ReasonMultiplePropertyListSet Reason = "multiple-property-list-set"
	ReasonUnknownProperty         Reason = "unknown-property"
	ReasonMissingMatchKey         Reason = "missing-match-key"
	ReasonUnsupportedOperation    Reason = "unsupported-operation"
	ReasonTransactionRequired     Reason = "transaction-required"
	ReasonAmbiguousOutputIdentity Reason = "ambiguous-output-identity"
)

// Sentinels for errors.Is.
var (
	ErrInvalidConfig           = &Error{Reason: ReasonInvalidConfig}
	ErrMultiplePropertyListSet = &Error{Reason: ReasonMultiplePropertyListSet}
	ErrUnknownProperty         = &Error{Reason: ReasonUnknownProperty}
	ErrMissingMatchKey         = &Error{Reason: ReasonMissingMatchKey}
	ErrUnsupportedOperation    = &Error{Reason: ReasonUnsupportedOperation}
	ErrTransactionRequired     = &Error{Reason: ReasonTransactionRequired}
	ErrAmbiguousOutputIdentity = &Error{Reason: ReasonAmbiguousOutputIdentity}
)

// Error is a bulk configuration or execution failure that callers can branch on.
type Error struct {
	// Reason classifies the failure.
	Reason Reason
	// Op is the requested operation, when known.
	Op Kind
	// Engine is the engine name, when known.
	Engine string
	// Message is the human readable detail.
	Message string
	// Keys lists the offending match key tuples for ambiguous output.
	Keys []string
}

// Errorf builds an *Error with a formatted message.
func Errorf(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("bulk: ")
	b.WriteString(string(e.Reason))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Keys) > 0 {
		b.WriteString(" (keys: ")
		b.WriteString(strings.Join(e.Keys, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Is matches any *Error with the same Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// WithContext returns a copy annotated with the operation and engine.
func (e *Error) WithContext(k Kind, engine string) *Error {
	c := *e
	c.Op = k
	c.Engine = engine
	return &c
}

// Unsupported reports an operation the engine cannot run.
func Unsupported(k Kind, engine string) *Error {
	return &Error{
		Reason:  ReasonUnsupportedOperation,
		Op:      k,
		Engine:  engine,
		Message: fmt.Sprintf("%s is not supported on %s", k, engine),
	}
}
