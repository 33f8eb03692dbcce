// Package provider defines the contract the session core holds against the
// external real-time messaging network. The core never sees the wire
// protocol; it only depends on Client, Dialer, and the typed error kinds.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrorKind classifies provider failures. The session core switches on
// kind, never on error message text.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindInvalidIdentity
	KindBanned
	KindExpired
	KindCancelled
	kindEnd
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindNetwork:         "network",
	KindInvalidIdentity: "invalid identity",
	KindBanned:          "banned",
	KindExpired:         "expired",
	KindCancelled:       "cancelled",
}

func (k ErrorKind) String() string {
	if k >= kindEnd {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Error is a provider failure with a machine-readable kind.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return "provider: " + e.Kind.String()
	}
	return "provider: " + e.Kind.String() + ": " + e.Msg
}

// NewError builds a typed provider error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf extracts the error kind, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// Outcome resolves a pending authentication exactly once: either a
// serialized session credential or a typed failure.
type Outcome struct {
	Token string
	Err   error
}

// PendingAuth is a provider-side confirmation in flight. Done receives
// exactly one Outcome when the user approves or the provider rejects.
type PendingAuth struct {
	Browser  string
	IP       string
	Location string

	Done <-chan Outcome
}

// Channel is one source channel visible to the authenticated user.
type Channel struct {
	ID               string
	Title            string
	IsChannelOrGroup bool
}

// Message is one inbound message pushed by the provider.
type Message struct {
	ChatID    string
	ChatTitle string
	Text      string
	Timestamp time.Time
}

// MessageHandler consumes inbound messages. At most one handler is
// attached per client; SetMessageHandler replaces any prior one.
type MessageHandler func(Message)

// Client is one connection to the messaging network, owned exclusively by
// a single session handle.
type Client interface {
	// Connect establishes the transport. Fails with KindNetwork.
	Connect(ctx context.Context) error

	// Authenticate initiates provider-side confirmation for the identity.
	// The returned PendingAuth resolves asynchronously. Fails immediately
	// with KindInvalidIdentity or KindBanned when the provider rejects the
	// identity before any confirmation is shown.
	Authenticate(ctx context.Context, identity string) (*PendingAuth, error)

	// CheckAuthorization reports whether the imported or confirmed
	// credential is still valid on the provider side.
	CheckAuthorization(ctx context.Context) (bool, error)

	// ExportSession returns the opaque serialized credential.
	ExportSession() (string, error)

	// ImportSession loads a previously exported credential. Must be called
	// before Connect when restoring.
	ImportSession(token string) error

	// ListChannels returns up to limit channels the user can read.
	ListChannels(ctx context.Context, limit int) ([]Channel, error)

	// SetMessageHandler installs the single inbound handler, replacing any
	// prior one. A nil handler removes the current one.
	SetMessageHandler(h MessageHandler)

	// Connected reports whether the transport is currently established.
	Connected() bool

	// Disconnect tears down the transport. Safe to call repeatedly.
	Disconnect() error
}

// Dialer mints clients against a fixed provider endpoint.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
}
