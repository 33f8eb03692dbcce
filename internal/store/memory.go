package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type subKey struct {
	userID    string
	channelID string
}

// Memory is an in-memory Store for tests and dev runs. It honors the same
// nil-on-missing and soft-disable semantics as the Postgres store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
	subs     map[subKey]Subscription
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]SessionRecord),
		subs:     make(map[subKey]Subscription),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) GetSession(ctx context.Context, userID string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (m *Memory) SaveSession(ctx context.Context, rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *rec
	saved.UpdatedAt = time.Now().UTC()
	m.sessions[rec.UserID] = saved
	return nil
}

func (m *Memory) ClearSessionToken(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	rec.SessionToken = ""
	rec.Connected = false
	rec.UpdatedAt = time.Now().UTC()
	m.sessions[userID] = rec
	return nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	return m.list(userID, false), nil
}

func (m *Memory) ListEnabledSubscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	return m.list(userID, true), nil
}

func (m *Memory) list(userID string, enabledOnly bool) []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Subscription
	for k, sub := range m.subs {
		if k.userID != userID {
			continue
		}
		if enabledOnly && !sub.Enabled {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) UpsertSubscription(ctx context.Context, sub Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := subKey{userID: sub.UserID, channelID: sub.ChannelID}
	if existing, ok := m.subs[key]; ok {
		existing.Title = sub.Title
		existing.Enabled = true
		m.subs[key] = existing
		return nil
	}
	sub.Enabled = true
	sub.CreatedAt = time.Now().UTC()
	m.subs[key] = sub
	return nil
}

func (m *Memory) DisableSubscription(ctx context.Context, userID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := subKey{userID: userID, channelID: channelID}
	if existing, ok := m.subs[key]; ok {
		existing.Enabled = false
		m.subs[key] = existing
	}
	return nil
}
