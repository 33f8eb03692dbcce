// Package dispatch owns the single inbound-message listener per live
// session and routes matched messages into the signal pipeline.
package dispatch

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/event"
	"main/internal/obs"
	"main/internal/provider"
	"main/internal/session"
	"main/internal/store"
	"main/pkg/exception"
)

// Processor is the downstream signal pipeline. Failures are isolated per
// message by the dispatcher and never unbind the listener.
type Processor interface {
	Process(ctx context.Context, userID string, channel event.ChannelPayload, message string) error
}

// channelMeta is the per-binding snapshot of one enabled subscription.
type channelMeta struct {
	id    string
	title string
}

// Binder maintains exactly one message handler per live client. Rebind is
// serialized per handle so no interleaving leaves zero or two handlers.
type Binder struct {
	store     store.Store
	processor Processor
	queue     *bus.Queue
	metrics   *obs.Metrics
}

// NewBinder wires the listener binding to its collaborators.
func NewBinder(st store.Store, processor Processor, queue *bus.Queue, metrics *obs.Metrics) *Binder {
	return &Binder{store: st, processor: processor, queue: queue, metrics: metrics}
}

var _ session.Rebinder = (*Binder)(nil)

// Rebind removes any existing handler, snapshots the user's enabled
// subscriptions, and installs a fresh handler closing over that snapshot.
// Idempotent when no handler is attached yet.
func (b *Binder) Rebind(ctx context.Context, h *session.Handle) error {
	h.LockBinding()
	defer h.UnlockBinding()

	client := h.Client()
	if client == nil || !client.Connected() {
		return exception.ErrSessionNotAuthenticated
	}

	client.SetMessageHandler(nil)

	subs, err := b.store.ListEnabledSubscriptions(ctx, h.UserID())
	if err != nil {
		return err
	}
	snapshot := make(map[string]channelMeta, len(subs))
	for _, sub := range subs {
		snapshot[sub.ChannelID] = channelMeta{id: sub.ChannelID, title: sub.Title}
	}

	client.SetMessageHandler(b.handlerFor(h, snapshot))
	logs.Infof("listener bound, user: %s, channels: %d", h.UserID(), len(snapshot))
	return nil
}

// handlerFor builds the single message handler for one binding snapshot.
// An inbound message matches at most one enabled subscription and is
// dispatched at most once.
func (b *Binder) handlerFor(h *session.Handle, snapshot map[string]channelMeta) provider.MessageHandler {
	userID := h.UserID()
	return func(msg provider.Message) {
		meta, ok := snapshot[msg.ChatID]
		if !ok {
			b.metrics.IncDispatchSkip()
			return
		}
		h.Touch()

		start := time.Now()
		b.emit(event.NewSignalReceived(userID, meta.id, meta.title, msg.Text, msg.Timestamp))
		b.metrics.IncDispatch()

		go func() {
			defer func() {
				if r := recover(); r != nil {
					logs.Errorf("signal processor panic, user: %s, channel: %s, recovered: %+v", userID, meta.id, r)
				}
			}()
			channel := event.ChannelPayload{ID: meta.id, Title: meta.title}
			if err := b.processor.Process(context.Background(), userID, channel, msg.Text); err != nil {
				logs.Errorf("signal processor, user: %s, channel: %s, err: %+v", userID, meta.id, err)
			}
			b.metrics.ObserveDispatch(time.Since(start))
		}()
	}
}

func (b *Binder) emit(e event.Event) {
	b.metrics.ObserveEvent(e.Type)
	if b.queue == nil {
		return
	}
	if err := b.queue.TryPublish(e); err != nil {
		switch err {
		case bus.ErrQueueFull:
			b.metrics.IncQueueDrop()
		case bus.ErrQueueClosed:
			b.metrics.IncQueueClosed()
		}
		logs.Warnf("drop signal event, user: %s, err: %+v", e.UserID, err)
	}
}
