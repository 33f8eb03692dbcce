package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/event"
	"main/internal/provider"
	"main/internal/store"
)

type fakeClient struct {
	mu          sync.Mutex
	connected   bool
	authorized  bool
	token       string
	imported    string
	handler     provider.MessageHandler
	channels    []provider.Channel
	disconnects int

	connectErr error
	authErr    error
	checkErr   error

	pending chan provider.Outcome
}

func newFakeClient() *fakeClient {
	return &fakeClient{authorized: true, pending: make(chan provider.Outcome, 1)}
}

func (c *fakeClient) Connect(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Authenticate(ctx context.Context, identity string) (*provider.PendingAuth, error) {
	if c.authErr != nil {
		return nil, c.authErr
	}
	return &provider.PendingAuth{
		Browser:  "Safari",
		IP:       "203.0.113.7",
		Location: "Oslo",
		Done:     c.pending,
	}, nil
}

func (c *fakeClient) CheckAuthorization(ctx context.Context) (bool, error) {
	if c.checkErr != nil {
		return false, c.checkErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized, nil
}

func (c *fakeClient) ExportSession() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

func (c *fakeClient) ImportSession(token string) error {
	c.mu.Lock()
	c.imported = token
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) ListChannels(ctx context.Context, limit int) ([]provider.Channel, error) {
	return c.channels, nil
}

func (c *fakeClient) SetMessageHandler(h provider.MessageHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *fakeClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.disconnects++
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeClient) resolve(outcome provider.Outcome) {
	c.pending <- outcome
}

type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	dials   int
	dialErr error
}

func (d *fakeDialer) Dial(ctx context.Context) (provider.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if d.dials >= len(d.clients) {
		d.clients = append(d.clients, newFakeClient())
	}
	client := d.clients[d.dials]
	d.dials++
	return client, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeRebinder struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeRebinder) Rebind(ctx context.Context, h *Handle) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func (r *fakeRebinder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
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

func (s *eventSink) count(t event.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (s *eventSink) last(t event.Type) (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == t {
			return s.events[i], true
		}
	}
	return event.Event{}, false
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

type harness struct {
	svc      *Service
	registry *Registry
	store    *store.Memory
	dialer   *fakeDialer
	rebinder *fakeRebinder
	sink     *eventSink
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	registry := NewRegistry()
	st := store.NewMemory()
	dialer := &fakeDialer{}
	queue := bus.NewQueue(64)
	sink := &eventSink{}

	ctx, cancel := context.WithCancel(context.Background())
	go queue.Run(ctx, sink.add)

	svc := NewService(registry, st, dialer, queue, nil, cfg)
	rebinder := &fakeRebinder{}
	svc.SetRebinder(rebinder)

	t.Cleanup(func() {
		cancel()
		queue.Close()
	})
	return &harness{
		svc:      svc,
		registry: registry,
		store:    st,
		dialer:   dialer,
		rebinder: rebinder,
		sink:     sink,
		cancel:   cancel,
	}
}
