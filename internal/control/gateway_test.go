package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/event"
	"main/internal/obs"
	"main/internal/provider"
	"main/internal/session"
	"main/internal/store"
	"main/pkg/exception"
)

type noDialer struct{}

func (noDialer) Dial(ctx context.Context) (provider.Client, error) {
	return nil, errors.New("no provider in this test")
}

// stubClient confirms immediately and records the limit ListChannels saw.
type stubClient struct {
	mu        sync.Mutex
	connected bool
	gotLimit  int
	pending   chan provider.Outcome
}

func newStubClient() *stubClient {
	return &stubClient{pending: make(chan provider.Outcome, 1)}
}

func (c *stubClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *stubClient) Authenticate(ctx context.Context, identity string) (*provider.PendingAuth, error) {
	return &provider.PendingAuth{Done: c.pending}, nil
}

func (c *stubClient) CheckAuthorization(ctx context.Context) (bool, error) { return true, nil }
func (c *stubClient) ExportSession() (string, error)                       { return "tok", nil }
func (c *stubClient) ImportSession(string) error                           { return nil }

func (c *stubClient) ListChannels(ctx context.Context, limit int) ([]provider.Channel, error) {
	c.mu.Lock()
	c.gotLimit = limit
	c.mu.Unlock()
	return []provider.Channel{{ID: "7", Title: "alerts", IsChannelOrGroup: true}}, nil
}

func (c *stubClient) SetMessageHandler(provider.MessageHandler) {}

func (c *stubClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *stubClient) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *stubClient) seenLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gotLimit
}

type stubDialer struct{ client *stubClient }

func (d stubDialer) Dial(ctx context.Context) (provider.Client, error) {
	return d.client, nil
}

type eventSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *eventSink) add(e event.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *eventSink) wait(t *testing.T, typ event.Type) event.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, e := range s.events {
			if e.Type == typ {
				s.mu.Unlock()
				return e
			}
		}
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event", typ)
	return event.Event{}
}

func newGatewayFixture(t *testing.T) (*Gateway, *store.Memory, *eventSink) {
	t.Helper()
	st := store.NewMemory()
	queue := bus.NewQueue(64)
	metrics := obs.NewMetrics()
	sink := &eventSink{}

	ctx, cancel := context.WithCancel(context.Background())
	go queue.Run(ctx, sink.add)
	t.Cleanup(func() {
		cancel()
		queue.Close()
	})

	svc := session.NewService(session.NewRegistry(), st, noDialer{}, queue, metrics, session.Config{})
	return NewGateway(svc, st, queue, metrics, 100), st, sink
}

func TestGatewaySubscribeChannel(t *testing.T) {
	g, st, sink := newGatewayFixture(t)
	ctx := context.Background()

	err := g.Handle(ctx, Command{
		Op: OpSubscribeChannel, UserID: "u1", ChannelID: "100", Title: "alerts",
	})
	require.NoError(t, err)

	e := sink.wait(t, event.TypeChannelSubscribed)
	require.NotNil(t, e.Channel)
	assert.Equal(t, "100", e.Channel.ID)

	subs, err := st.ListEnabledSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "alerts", subs[0].Title)
}

func TestGatewayUnsubscribeChannel(t *testing.T) {
	g, st, sink := newGatewayFixture(t)
	ctx := context.Background()

	require.NoError(t, g.Handle(ctx, Command{
		Op: OpSubscribeChannel, UserID: "u1", ChannelID: "100", Title: "alerts",
	}))
	require.NoError(t, g.Handle(ctx, Command{
		Op: OpUnsubscribeChannel, UserID: "u1", ChannelID: "100",
	}))

	sink.wait(t, event.TypeChannelUnsubscribed)

	enabled, err := st.ListEnabledSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, enabled)

	all, err := st.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGatewayGetChannelsDefaultsLimit(t *testing.T) {
	st := store.NewMemory()
	queue := bus.NewQueue(64)
	metrics := obs.NewMetrics()
	sink := &eventSink{}

	ctx, cancel := context.WithCancel(context.Background())
	go queue.Run(ctx, sink.add)
	t.Cleanup(func() {
		cancel()
		queue.Close()
	})

	client := newStubClient()
	svc := session.NewService(session.NewRegistry(), st, stubDialer{client}, queue, metrics, session.Config{})
	g := NewGateway(svc, st, queue, metrics, 25)

	require.NoError(t, g.Handle(ctx, Command{Op: OpRequestLogin, UserID: "u1", Identity: "+4790000001"}))
	client.pending <- provider.Outcome{Token: "tok"}
	sink.wait(t, event.TypeLoginSuccess)

	// No limit in the command: the configured default applies.
	require.NoError(t, g.Handle(ctx, Command{Op: OpGetChannels, UserID: "u1"}))
	sink.wait(t, event.TypeChannels)
	assert.Equal(t, 25, client.seenLimit())

	// An explicit limit wins over the default.
	require.NoError(t, g.Handle(ctx, Command{Op: OpGetChannels, UserID: "u1", Limit: 5}))
	assert.Equal(t, 5, client.seenLimit())
}

func TestGatewayGetChannelsWithoutSession(t *testing.T) {
	g, _, sink := newGatewayFixture(t)

	err := g.Handle(context.Background(), Command{Op: OpGetChannels, UserID: "u1"})
	require.NoError(t, err)
	sink.wait(t, event.TypeNotConnected)
}

func TestGatewayDisconnectWithoutSession(t *testing.T) {
	g, _, sink := newGatewayFixture(t)

	err := g.Handle(context.Background(), Command{Op: OpDisconnect, UserID: "u1"})
	require.NoError(t, err)
	sink.wait(t, event.TypeNotConnected)
}

func TestGatewayCancelWithoutPendingAttempt(t *testing.T) {
	g, _, sink := newGatewayFixture(t)

	err := g.Handle(context.Background(), Command{Op: OpCancelLogin, UserID: "u1"})
	require.NoError(t, err)
	sink.wait(t, event.TypeError)
}

func TestGatewayRejectsInvalidCommands(t *testing.T) {
	g, _, _ := newGatewayFixture(t)
	ctx := context.Background()

	err := g.Handle(ctx, Command{Op: OpRequestLogin, UserID: "u1"})
	assert.ErrorIs(t, err, exception.ErrControlInvalidRequest)

	err = g.Handle(ctx, Command{Op: "noSuchOp", UserID: "u1"})
	assert.ErrorIs(t, err, exception.ErrControlUnknownCommand)

	var nilGateway *Gateway
	err = nilGateway.Handle(ctx, Command{Op: OpRestore, UserID: "u1"})
	assert.ErrorIs(t, err, exception.ErrControlNilGateway)
}
