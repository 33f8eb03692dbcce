package control

import (
	"context"
	"errors"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/event"
	"main/internal/obs"
	"main/internal/session"
	"main/internal/store"
	"main/pkg/exception"
)

// Gateway routes validated commands onto the session service and the
// subscription store. Operations that produce data for the user publish
// outbound events; lifecycle operations leave event emission to the
// session core so each transition is reported exactly once.
type Gateway struct {
	svc          *session.Service
	store        store.Store
	queue        *bus.Queue
	metrics      *obs.Metrics
	channelLimit int
}

// NewGateway wires the command surface. channelLimit caps getChannels
// results when the command omits a limit.
func NewGateway(svc *session.Service, st store.Store, queue *bus.Queue, metrics *obs.Metrics, channelLimit int) *Gateway {
	return &Gateway{svc: svc, store: st, queue: queue, metrics: metrics, channelLimit: channelLimit}
}

// Handle executes one command. Session-level failures are reported to the
// user as events and swallowed; only transport/storage failures propagate.
func (g *Gateway) Handle(ctx context.Context, cmd Command) error {
	if g == nil {
		return exception.ErrControlNilGateway
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	switch cmd.Op {
	case OpRequestLogin:
		if err := g.svc.RequestLogin(ctx, cmd.UserID, cmd.Identity); err != nil {
			logs.Warnf("request login, user: %s, err: %+v", cmd.UserID, err)
		}
		return nil
	case OpCancelLogin:
		if err := g.svc.CancelLogin(ctx, cmd.UserID); err != nil {
			g.emit(event.NewError(cmd.UserID, "no login attempt to cancel"))
		}
		return nil
	case OpRestore:
		return g.svc.Restore(ctx, cmd.UserID)
	case OpGetChannels:
		return g.getChannels(ctx, cmd)
	case OpSubscribeChannel:
		return g.subscribe(ctx, cmd)
	case OpUnsubscribeChannel:
		return g.unsubscribe(ctx, cmd)
	case OpDisconnect:
		if err := g.svc.Disconnect(ctx, cmd.UserID); err != nil {
			g.emit(event.New(cmd.UserID, event.TypeNotConnected))
		}
		return nil
	default:
		return exception.ErrControlUnknownCommand
	}
}

// getChannels lists readable channels from the live client. A user
// without a live session gets notConnected instead of an error.
func (g *Gateway) getChannels(ctx context.Context, cmd Command) error {
	limit := cmd.Limit
	if limit <= 0 {
		limit = g.channelLimit
	}
	channels, err := g.svc.Channels(ctx, cmd.UserID, limit)
	if err != nil {
		if errors.Is(err, exception.ErrSessionNotAuthenticated) {
			g.emit(event.New(cmd.UserID, event.TypeNotConnected))
			return nil
		}
		g.emit(event.NewError(cmd.UserID, err.Error()))
		return err
	}

	payload := make([]event.ChannelPayload, 0, len(channels))
	for _, ch := range channels {
		payload = append(payload, event.ChannelPayload{
			ID:               ch.ID,
			Title:            ch.Title,
			IsChannelOrGroup: ch.IsChannelOrGroup,
		})
	}
	g.emit(event.NewChannels(cmd.UserID, payload))
	return nil
}

// subscribe upserts the subscription as enabled and refreshes the live
// listener snapshot. Subscribing twice is idempotent.
func (g *Gateway) subscribe(ctx context.Context, cmd Command) error {
	if err := g.store.UpsertSubscription(ctx, store.Subscription{
		UserID:    cmd.UserID,
		ChannelID: cmd.ChannelID,
		Title:     cmd.Title,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		g.emit(event.NewError(cmd.UserID, "subscription store unavailable"))
		return err
	}
	if err := g.svc.RebindIfLive(ctx, cmd.UserID); err != nil {
		logs.Errorf("rebind after subscribe, user: %s, err: %+v", cmd.UserID, err)
	}
	g.emit(event.NewChannelSubscribed(cmd.UserID, cmd.ChannelID, cmd.Title))
	return nil
}

// unsubscribe disables the subscription row, keeping it for history.
func (g *Gateway) unsubscribe(ctx context.Context, cmd Command) error {
	if err := g.store.DisableSubscription(ctx, cmd.UserID, cmd.ChannelID); err != nil {
		g.emit(event.NewError(cmd.UserID, "subscription store unavailable"))
		return err
	}
	if err := g.svc.RebindIfLive(ctx, cmd.UserID); err != nil {
		logs.Errorf("rebind after unsubscribe, user: %s, err: %+v", cmd.UserID, err)
	}
	g.emit(event.NewChannelUnsubscribed(cmd.UserID, cmd.ChannelID))
	return nil
}

func (g *Gateway) emit(e event.Event) {
	g.metrics.ObserveEvent(e.Type)
	if g.queue == nil {
		return
	}
	if err := g.queue.TryPublish(e); err != nil {
		switch err {
		case bus.ErrQueueFull:
			g.metrics.IncQueueDrop()
		case bus.ErrQueueClosed:
			g.metrics.IncQueueClosed()
		}
		logs.Warnf("drop control event, user: %s, type: %s, err: %+v", e.UserID, e.Type, err)
	}
}
