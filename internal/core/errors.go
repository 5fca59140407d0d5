package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStaleSession is returned when a call completed after the identity that issued it
// was replaced. The result is discarded.
var ErrStaleSession = errors.New("session changed while request was in flight")

// TransportError covers network failures, timeouts and unexpected status codes.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the backend rejected the credentials.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return "authentication failed: " + e.Message
}

type NotFoundError struct {
	Resource string
	ID       string
	Message  string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// ValidationError is raised for malformed user input before dispatch, and for
// backend payloads that do not match the expected shape (Source "response").
type ValidationError struct {
	Field  string
	Reason string
	Source string
}

func (e *ValidationError) Error() string {
	prefix := "invalid"
	if e.Source != "" {
		prefix = "invalid " + e.Source
	}
	if e.Field == "" {
		return prefix + ": " + e.Reason
	}
	return fmt.Sprintf("%s %s: %s", prefix, e.Field, e.Reason)
}

// UserMessage picks the text shown to the user for err: the server-supplied message,
// the reason of a client-side validation failure, or fallback.
func UserMessage(err error, fallback string) string {
	var (
		te *TransportError
		ae *AuthError
		ne *NotFoundError
		ve *ValidationError
	)
	switch {
	case errors.As(err, &ae) && ae.Message != "":
		return ae.Message
	case errors.As(err, &ne) && ne.Message != "":
		return ne.Message
	case errors.As(err, &te) && te.Message != "":
		return te.Message
	case errors.As(err, &ve) && ve.Source == "" && ve.Reason != "":
		return ve.Reason
	}
	return fallback
}

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
