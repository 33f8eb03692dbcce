package session

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/event"
	"main/internal/store"
	"main/pkg/exception"
)

// Restore rehydrates the user's session from the durable store. A live,
// connected handle short-circuits to a listener rebind; a missing or
// invalid credential degrades to notConnected/sessionExpired. It never
// opens a second connection for a user who already has one.
func (s *Service) Restore(ctx context.Context, userID string) error {
	if s == nil {
		return exception.ErrSessionNilService
	}
	h := s.registry.GetOrCreate(userID)
	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	if h.state == StateAuthenticated && h.client != nil && h.client.Connected() {
		h.mu.Unlock()
		if s.rebinder != nil {
			if err := s.rebinder.Rebind(ctx, h); err != nil {
				logs.Errorf("rebind on restore, user: %s, err: %+v", userID, err)
			}
		}
		s.emit(event.NewRestored(userID, true))
		return nil
	}
	// A pending attempt loses to the restore: fence out its callbacks and
	// tear down its connection before a replacement is dialed, so the user
	// never holds two provider connections.
	if h.timer != nil {
		h.timer.Cancel()
		h.timer = nil
	}
	stale := h.client
	h.client = nil
	h.attemptID++
	h.state = StateIdle
	h.mu.Unlock()

	if stale != nil {
		if err := stale.Disconnect(); err != nil {
			logs.Warnf("disconnect superseded client, user: %s, err: %+v", userID, err)
		}
	}

	rec, err := s.store.GetSession(ctx, userID)
	if err != nil {
		logs.Errorf("read session record, user: %s, err: %+v", userID, err)
		s.emit(event.NewError(userID, "session store unavailable"))
		return err
	}
	if rec == nil || rec.SessionToken == "" {
		s.emit(event.New(userID, event.TypeNotConnected))
		return nil
	}

	client, err := s.dialer.Dial(ctx)
	if err == nil {
		err = client.ImportSession(rec.SessionToken)
	}
	if err == nil {
		err = client.Connect(ctx)
	}
	if err != nil {
		logs.Warnf("restore connect, user: %s, err: %+v", userID, err)
		s.emit(event.NewError(userID, err.Error()))
		s.emit(event.NewRestored(userID, false))
		return nil
	}

	authorized, err := client.CheckAuthorization(ctx)
	if err != nil {
		_ = client.Disconnect()
		logs.Warnf("restore authorization check, user: %s, err: %+v", userID, err)
		s.emit(event.NewError(userID, err.Error()))
		s.emit(event.NewRestored(userID, false))
		return nil
	}
	if !authorized {
		_ = client.Disconnect()
		if err := s.store.ClearSessionToken(ctx, userID); err != nil {
			logs.Errorf("clear expired token, user: %s, err: %+v", userID, err)
		}
		s.emit(event.New(userID, event.TypeSessionExpired))
		return nil
	}

	// The provider may rotate the credential during validation; persist
	// the re-exported one, not the one read from the store.
	token := rec.SessionToken
	if exported, err := client.ExportSession(); err == nil && exported != "" {
		token = exported
	}

	h.mu.Lock()
	h.attemptID++
	h.state = StateAuthenticated
	h.client = client
	h.token = token
	h.identity = rec.Identity
	h.createdAt = time.Now().UTC()
	h.lastActivityAt = h.createdAt
	h.mu.Unlock()

	if err := s.store.SaveSession(ctx, &store.SessionRecord{
		UserID:       userID,
		Identity:     rec.Identity,
		SessionToken: token,
		Connected:    true,
	}); err != nil {
		logs.Errorf("mark session connected, user: %s, err: %+v", userID, err)
	}

	if s.rebinder != nil {
		if err := s.rebinder.Rebind(ctx, h); err != nil {
			logs.Errorf("rebind on restore, user: %s, err: %+v", userID, err)
		}
	}

	logs.Infof("session restored, user: %s", userID)
	s.emit(event.NewRestored(userID, true))
	return nil
}
