// Package store is the durable, cross-process source of truth for
// per-user session credentials and channel subscriptions. The in-memory
// session registry is only a process-local cache over these records.
package store

import (
	"context"
	"time"
)

// SessionRecord is the persisted per-user session state.
// SessionToken empty means no valid credential is stored.
type SessionRecord struct {
	UserID       string
	Identity     string
	SessionToken string
	Connected    bool
	UpdatedAt    time.Time
}

// Subscription is one (user, channel) source subscription. Unsubscribing
// disables it; rows are never deleted so history survives toggling.
type Subscription struct {
	UserID    string
	ChannelID string
	Title     string
	Enabled   bool
	CreatedAt time.Time
}

// Store is the durable store contract. Implementations return (nil, nil)
// for missing records, reserving errors for storage failures.
type Store interface {
	GetSession(ctx context.Context, userID string) (*SessionRecord, error)
	SaveSession(ctx context.Context, rec *SessionRecord) error
	ClearSessionToken(ctx context.Context, userID string) error

	ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error)
	ListEnabledSubscriptions(ctx context.Context, userID string) ([]Subscription, error)
	UpsertSubscription(ctx context.Context, sub Subscription) error
	DisableSubscription(ctx context.Context, userID, channelID string) error
}
