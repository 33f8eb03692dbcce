package session

import (
	"sync"
	"time"

	"main/internal/provider"
)

// State tracks the lifecycle of one login attempt.
type State uint8

const (
	StateIdle State = iota
	StateConfirmationPending
	StateAuthenticated
	StateCancelled
	StateTimedOut
	StateFailed
	stateEnd
)

var stateNames = [...]string{
	StateIdle:                "idle",
	StateConfirmationPending: "confirmation_pending",
	StateAuthenticated:       "authenticated",
	StateCancelled:           "cancelled",
	StateTimedOut:            "timed_out",
	StateFailed:              "failed",
}

func (s State) String() string {
	if s >= stateEnd {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the state ends the current attempt.
// Authenticated is terminal for the attempt, not for the session.
func (s State) Terminal() bool {
	switch s {
	case StateAuthenticated, StateCancelled, StateTimedOut, StateFailed:
		return true
	default:
		return false
	}
}

// PendingInfo is the confirmation display info held while waiting.
type PendingInfo struct {
	Browser  string
	IP       string
	Location string
}

// Handle is the in-memory session state for one user. All state mutation
// goes through mu; opMu serializes the user's command-driven flows so a
// restore never overlaps a login for the same user. attemptID fences
// every asynchronous transition.
type Handle struct {
	userID string

	// opMu is the per-user critical section for command flows
	// (login, cancel, restore, disconnect, rebind triggers).
	opMu sync.Mutex

	// bindMu is the sequential binding fence for listener rebinds.
	bindMu sync.Mutex

	mu             sync.Mutex
	state          State
	attemptID      uint64
	client         provider.Client
	token          string
	identity       string
	pending        PendingInfo
	timer          *Timer
	traceID        uint64
	createdAt      time.Time
	lastActivityAt time.Time
}

func newHandle(userID string) *Handle {
	now := time.Now().UTC()
	return &Handle{
		userID:         userID,
		state:          StateIdle,
		createdAt:      now,
		lastActivityAt: now,
	}
}

// UserID returns the owning user.
func (h *Handle) UserID() string {
	return h.userID
}

// State returns the current attempt state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// AttemptID returns the current attempt fence value.
func (h *Handle) AttemptID() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attemptID
}

// Client returns the exclusively owned provider client, or nil.
func (h *Handle) Client() provider.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.client
}

// Token returns the serialized credential, or empty before authentication.
func (h *Handle) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// Touch refreshes the activity timestamp.
func (h *Handle) Touch() {
	h.mu.Lock()
	h.lastActivityAt = time.Now().UTC()
	h.mu.Unlock()
}

// LockBinding acquires the sequential binding fence.
func (h *Handle) LockBinding() {
	h.bindMu.Lock()
}

// UnlockBinding releases the sequential binding fence.
func (h *Handle) UnlockBinding() {
	h.bindMu.Unlock()
}

// View is a consistent point-in-time snapshot used by the sweep.
type View struct {
	UserID    string
	State     State
	AttemptID uint64
	HasToken  bool
	CreatedAt time.Time
}

// Inspect snapshots the handle without exposing internals.
func (h *Handle) Inspect() View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return View{
		UserID:    h.userID,
		State:     h.state,
		AttemptID: h.attemptID,
		HasToken:  h.token != "",
		CreatedAt: h.createdAt,
	}
}
