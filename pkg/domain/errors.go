package domain

import (
	"errors"
	"fmt"
)

// ErrSettingsNotFound is returned when a project has no stored settings.
var ErrSettingsNotFound = errors.New("settings not found")

// ErrProjectNotOpen is returned when an operation targets a project without an open session.
var ErrProjectNotOpen = errors.New("project not open")

// ErrProjectAlreadyOpen is returned when a second session is requested for the same project.
var ErrProjectAlreadyOpen = errors.New("project already open")

// Kind classifies synchronization failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConnectionTimeout: the worker did not connect within the connect window.
	KindConnectionTimeout
	// KindConnectionLost: an I/O failure on an established session.
	KindConnectionLost
	// KindMessageTooLarge: a unit cannot be framed under the message ceiling.
	KindMessageTooLarge
	// KindProtocolViolation: the worker replied with something that is not an acknowledgment.
	KindProtocolViolation
	// KindEmpty: dequeue or peek on an empty queue.
	KindEmpty
	// KindAckTimeout: the worker did not acknowledge within the ack window.
	KindAckTimeout
	// KindNoAddress: no local address to listen on.
	KindNoAddress
	// KindSessionClosed: the session was closed or broke earlier.
	KindSessionClosed
)

var kindNames = map[Kind]string{
	KindUnknown:           "Unknown",
	KindConnectionTimeout: "ConnectionTimeout",
	KindConnectionLost:    "ConnectionLost",
	KindMessageTooLarge:   "MessageTooLarge",
	KindProtocolViolation: "ProtocolViolation",
	KindEmpty:             "Empty",
	KindAckTimeout:        "AckTimeout",
	KindNoAddress:         "NoAddress",
	KindSessionClosed:     "SessionClosed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Terminal reports whether a failure of this kind ends the session.
func (k Kind) Terminal() bool {
	switch k {
	case KindConnectionTimeout, KindConnectionLost, KindAckTimeout, KindNoAddress, KindSessionClosed:
		return true
	}
	return false
}

// Error is a structured synchronization error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrConnectionTimeout = &Error{Kind: KindConnectionTimeout}
	ErrConnectionLost    = &Error{Kind: KindConnectionLost}
	ErrMessageTooLarge   = &Error{Kind: KindMessageTooLarge}
	ErrProtocolViolation = &Error{Kind: KindProtocolViolation}
	ErrEmpty             = &Error{Kind: KindEmpty}
	ErrAckTimeout        = &Error{Kind: KindAckTimeout}
	ErrNoAddress         = &Error{Kind: KindNoAddress}
	ErrSessionClosed     = &Error{Kind: KindSessionClosed}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTerminal reports whether err ends the session.
func IsTerminal(err error) bool {
	return KindOf(err).Terminal()
}
