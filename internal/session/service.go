package session

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/event"
	"main/internal/obs"
	"main/internal/provider"
	"main/internal/store"
	"main/pkg/exception"
)

// DefaultConfirmWindow is how long a login attempt may wait for the
// provider-side confirmation before timing out.
const DefaultConfirmWindow = 120 * time.Second

// Rebinder reattaches the inbound message listener after a handle reaches
// Authenticated or its subscription set changes.
type Rebinder interface {
	Rebind(ctx context.Context, h *Handle) error
}

// Config tunes the session service.
type Config struct {
	// ConfirmWindow overrides DefaultConfirmWindow when positive.
	ConfirmWindow time.Duration
}

// Service drives the per-user authentication state machine: login
// attempts, provider confirmation, timeouts, cancellation, restore, and
// disconnect. Every asynchronous transition is fenced by the handle's
// attempt id so a stale confirmation or timeout is a silent no-op.
type Service struct {
	registry *Registry
	store    store.Store
	dialer   provider.Dialer
	queue    *bus.Queue
	metrics  *obs.Metrics
	timers   *TimeoutSupervisor
	traces   *obs.TraceGenerator
	rebinder Rebinder
	window   time.Duration
}

// NewService wires the state machine to its collaborators. The rebinder
// is attached afterwards via SetRebinder because the listener binding
// depends on the service's handles.
func NewService(registry *Registry, st store.Store, dialer provider.Dialer, queue *bus.Queue, metrics *obs.Metrics, cfg Config) *Service {
	window := cfg.ConfirmWindow
	if window <= 0 {
		window = DefaultConfirmWindow
	}
	svc := &Service{
		registry: registry,
		store:    st,
		dialer:   dialer,
		queue:    queue,
		metrics:  metrics,
		traces:   obs.NewTraceGenerator(0),
		window:   window,
	}
	svc.timers = NewTimeoutSupervisor(svc.handleTimeout)
	return svc
}

// SetRebinder attaches the listener binding. Must be called before any
// login or restore is served.
func (s *Service) SetRebinder(r Rebinder) {
	s.rebinder = r
}

// Registry exposes the handle index for the sweep and the control plane.
func (s *Service) Registry() *Registry {
	return s.registry
}

// ConfirmWindow returns the configured confirmation window.
func (s *Service) ConfirmWindow() time.Duration {
	return s.window
}

// RequestLogin starts a fresh authentication attempt for the user. An
// attempt already waiting for confirmation is superseded: its attempt id
// is fenced out and its client torn down, never rejected back to the
// caller.
func (s *Service) RequestLogin(ctx context.Context, userID, identity string) error {
	if s == nil {
		return exception.ErrSessionNilService
	}
	if userID == "" || identity == "" {
		return exception.ErrInvalidArgument
	}

	h := s.registry.GetOrCreate(userID)
	h.opMu.Lock()
	defer h.opMu.Unlock()

	start := time.Now()
	trace := s.traces.Next()

	h.mu.Lock()
	if h.state == StateConfirmationPending && h.timer != nil {
		h.timer.Cancel()
	}
	stale := h.client
	h.client = nil
	h.attemptID++
	attempt := h.attemptID
	h.state = StateIdle
	h.identity = identity
	h.token = ""
	h.traceID = trace
	h.createdAt = time.Now().UTC()
	h.lastActivityAt = h.createdAt
	h.mu.Unlock()

	if stale != nil {
		if err := stale.Disconnect(); err != nil {
			logs.Warnf("disconnect superseded client, user: %s, err: %+v", userID, err)
		}
	}

	client, err := s.dialer.Dial(ctx)
	if err == nil {
		err = client.Connect(ctx)
	}
	if err != nil {
		s.failAttempt(userID, attempt, err)
		return err
	}

	pending, err := client.Authenticate(ctx, identity)
	if err != nil {
		_ = client.Disconnect()
		s.failAttempt(userID, attempt, err)
		return err
	}

	h.mu.Lock()
	if h.attemptID != attempt || h.state != StateIdle {
		// Superseded while connecting; the new attempt owns the handle.
		h.mu.Unlock()
		_ = client.Disconnect()
		return nil
	}
	h.state = StateConfirmationPending
	h.client = client
	h.pending = PendingInfo{Browser: pending.Browser, IP: pending.IP, Location: pending.Location}
	h.timer = s.timers.Schedule(userID, attempt, s.window)
	h.mu.Unlock()

	logs.Infof("confirmation pending, user: %s, attempt: %d, trace: %d", userID, attempt, trace)
	s.emit(event.NewConfirmationSent(userID, pending.Browser, pending.IP, pending.Location))

	done := pending.Done
	go func() {
		outcome, ok := <-done
		if !ok {
			return
		}
		s.handleConfirmation(userID, attempt, outcome)
		s.metrics.ObserveLogin(time.Since(start))
	}()
	return nil
}

// handleConfirmation applies the provider's asynchronous resolution.
// Fenced: only the matching attempt in ConfirmationPending may transition.
func (s *Service) handleConfirmation(userID string, attemptID uint64, outcome provider.Outcome) {
	h, ok := s.registry.Get(userID)
	if !ok {
		return
	}

	if outcome.Err != nil {
		s.failAttempt(userID, attemptID, outcome.Err)
		return
	}

	h.mu.Lock()
	if h.attemptID != attemptID || h.state != StateConfirmationPending {
		h.mu.Unlock()
		return
	}
	if h.timer != nil {
		h.timer.Cancel()
	}
	h.state = StateAuthenticated
	h.token = outcome.Token
	h.lastActivityAt = time.Now().UTC()
	identity := h.identity
	trace := h.traceID
	h.mu.Unlock()

	ctx := context.Background()
	if err := s.store.SaveSession(ctx, &store.SessionRecord{
		UserID:       userID,
		Identity:     identity,
		SessionToken: outcome.Token,
		Connected:    true,
	}); err != nil {
		logs.Errorf("persist session token, user: %s, err: %+v", userID, err)
		s.emit(event.NewError(userID, "session persisted in memory only"))
	}

	if s.rebinder != nil {
		if err := s.rebinder.Rebind(ctx, h); err != nil {
			logs.Errorf("rebind listeners, user: %s, err: %+v", userID, err)
		}
	}

	logs.Infof("authenticated, user: %s, attempt: %d, trace: %d", userID, attemptID, trace)
	s.metrics.IncAuthOutcome(obs.AuthOutcomeAuthenticated)
	s.emit(event.New(userID, event.TypeLoginSuccess))
}

// handleTimeout fires from the supervisor or the sweep. Fenced like
// confirmation: whichever of the two reaches the check first wins and the
// other becomes a no-op.
func (s *Service) handleTimeout(userID string, attemptID uint64) {
	h, ok := s.registry.Get(userID)
	if !ok {
		return
	}

	h.mu.Lock()
	if h.attemptID != attemptID || h.state != StateConfirmationPending {
		h.mu.Unlock()
		return
	}
	h.state = StateTimedOut
	client := h.client
	h.client = nil
	h.mu.Unlock()

	if client != nil {
		if err := client.Disconnect(); err != nil {
			logs.Warnf("disconnect timed out client, user: %s, err: %+v", userID, err)
		}
	}
	s.registry.Remove(userID, h)

	logs.Infof("login timed out, user: %s, attempt: %d", userID, attemptID)
	s.metrics.IncAuthOutcome(obs.AuthOutcomeTimedOut)
	s.emit(event.New(userID, event.TypeLoginTimeout))
}

// failAttempt applies a terminal failure under the attempt fence and maps
// the provider error kind to its distinct outbound event.
func (s *Service) failAttempt(userID string, attemptID uint64, cause error) {
	h, ok := s.registry.Get(userID)
	if !ok {
		return
	}

	h.mu.Lock()
	if h.attemptID != attemptID || h.state.Terminal() {
		h.mu.Unlock()
		return
	}
	if h.timer != nil {
		h.timer.Cancel()
	}
	h.state = StateFailed
	client := h.client
	h.client = nil
	h.mu.Unlock()

	if client != nil {
		_ = client.Disconnect()
	}

	logs.Warnf("login failed, user: %s, attempt: %d, kind: %s, err: %+v",
		userID, attemptID, provider.KindOf(cause), cause)
	s.metrics.IncAuthOutcome(obs.AuthOutcomeFailed)

	switch provider.KindOf(cause) {
	case provider.KindCancelled:
		s.emit(event.New(userID, event.TypeLoginCancelled))
	case provider.KindExpired:
		s.emit(event.New(userID, event.TypeSessionExpired))
	default:
		s.emit(event.NewError(userID, cause.Error()))
	}
}

// CancelLogin aborts the user's pending attempt.
func (s *Service) CancelLogin(ctx context.Context, userID string) error {
	if s == nil {
		return exception.ErrSessionNilService
	}
	h, ok := s.registry.Get(userID)
	if !ok {
		return exception.ErrSessionNoPendingLogin
	}
	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	if h.state != StateConfirmationPending {
		h.mu.Unlock()
		return exception.ErrSessionNoPendingLogin
	}
	if h.timer != nil {
		h.timer.Cancel()
	}
	h.state = StateCancelled
	client := h.client
	h.client = nil
	h.mu.Unlock()

	if client != nil {
		if err := client.Disconnect(); err != nil {
			logs.Warnf("disconnect cancelled client, user: %s, err: %+v", userID, err)
		}
	}
	s.registry.Remove(userID, h)

	s.metrics.IncAuthOutcome(obs.AuthOutcomeCancelled)
	s.emit(event.New(userID, event.TypeLoginCancelled))
	return nil
}

// Disconnect tears down an authenticated session and clears the persisted
// credential so the user is no longer restore-eligible.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if s == nil {
		return exception.ErrSessionNilService
	}
	h, ok := s.registry.Get(userID)
	if !ok {
		return exception.ErrSessionNotAuthenticated
	}
	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	if h.state != StateAuthenticated {
		h.mu.Unlock()
		return exception.ErrSessionNotAuthenticated
	}
	h.attemptID++ // fence out any stray callbacks
	h.state = StateIdle
	h.token = ""
	client := h.client
	h.client = nil
	h.mu.Unlock()

	if client != nil {
		if err := client.Disconnect(); err != nil {
			logs.Warnf("disconnect client, user: %s, err: %+v", userID, err)
		}
	}
	if err := s.store.ClearSessionToken(ctx, userID); err != nil {
		logs.Errorf("clear session token, user: %s, err: %+v", userID, err)
	}
	s.registry.Remove(userID, h)

	s.emit(event.New(userID, event.TypeDisconnected))
	return nil
}

// Channels lists the user's readable source channels from the live client.
func (s *Service) Channels(ctx context.Context, userID string, limit int) ([]provider.Channel, error) {
	h, ok := s.registry.Get(userID)
	if !ok {
		return nil, exception.ErrSessionNotAuthenticated
	}
	h.mu.Lock()
	client := h.client
	state := h.state
	h.mu.Unlock()
	if state != StateAuthenticated || client == nil {
		return nil, exception.ErrSessionNotAuthenticated
	}
	return client.ListChannels(ctx, limit)
}

// RebindIfLive refreshes the listener snapshot after a subscription
// change. A user without a live session is a no-op.
func (s *Service) RebindIfLive(ctx context.Context, userID string) error {
	h, ok := s.registry.Get(userID)
	if !ok {
		return nil
	}
	h.mu.Lock()
	live := h.state == StateAuthenticated && h.client != nil
	h.mu.Unlock()
	if !live || s.rebinder == nil {
		return nil
	}
	return s.rebinder.Rebind(ctx, h)
}

func (s *Service) emit(e event.Event) {
	s.metrics.ObserveEvent(e.Type)
	if s.queue == nil {
		return
	}
	if err := s.queue.TryPublish(e); err != nil {
		switch err {
		case bus.ErrQueueFull:
			s.metrics.IncQueueDrop()
		case bus.ErrQueueClosed:
			s.metrics.IncQueueClosed()
		}
		logs.Warnf("drop outbound event, user: %s, type: %s, err: %+v", e.UserID, e.Type, err)
	}
}
