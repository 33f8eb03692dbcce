// Package remote implements the provider contract over the messaging
// network's websocket gateway using a JSON frame protocol.
package remote

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/provider"
)

const (
	opSessionImport = "session.import"
	opSessionStatus = "session.status"
	opAuthRequest   = "auth.request"
	opAuthPending   = "auth.pending"
	opAuthConfirmed = "auth.confirmed"
	opAuthFailed    = "auth.failed"
	opAuthCheck     = "auth.check"
	opAuthStatus    = "auth.status"
	opDialogsList   = "dialogs.list"
	opDialogs       = "dialogs"
	opMessage       = "message"

	reasonInvalidIdentity = "invalid_identity"
	reasonBanned          = "banned"
	reasonExpired         = "expired"
	reasonCancelled       = "cancelled"
)

// Dialer mints clients against a fixed gateway endpoint.
type Dialer struct {
	url string
}

// NewDialer creates a dialer for the given websocket URL.
func NewDialer(url string) *Dialer {
	return &Dialer{url: url}
}

// Dial creates a fresh, unconnected client.
func (d *Dialer) Dial(ctx context.Context) (provider.Client, error) {
	if d == nil || d.url == "" {
		return nil, provider.NewError(provider.KindNetwork, "empty gateway url")
	}
	return &Client{wss: ws.New(ctx, d.url)}, nil
}

// Client talks the gateway's JSON frame protocol. One instance is owned by
// exactly one session handle.
type Client struct {
	wss *ws.WebSocket

	mu        sync.Mutex
	token     string
	handler   provider.MessageHandler
	pending   chan provider.Outcome
	connected bool
	observing bool
}

var _ provider.Client = (*Client)(nil)

type requestFrame struct {
	Op       string `json:"op"`
	Identity string `json:"identity,omitempty"`
	Token    string `json:"token,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type gatewayFrame struct {
	Op         string        `json:"op"`
	Browser    string        `json:"browser,omitempty"`
	IP         string        `json:"ip,omitempty"`
	Location   string        `json:"location,omitempty"`
	Token      string        `json:"token,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Authorized bool          `json:"authorized,omitempty"`
	Valid      bool          `json:"valid,omitempty"`
	Dialogs    []dialogFrame `json:"dialogs,omitempty"`

	ChatID    int64  `json:"chatId,omitempty"`
	ChatTitle string `json:"chatTitle,omitempty"`
	Text      string `json:"text,omitempty"`
	Ts        int64  `json:"ts,omitempty"`
}

type dialogFrame struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	ChannelOrGroup bool   `json:"channelOrGroup"`
}

func frameParser(m ws.Message) (gatewayFrame, bool) {
	var f gatewayFrame
	err := m.Unmarshal(&f)
	return f, err == nil && f.Op != ""
}

// Connect starts the websocket and, when a credential was imported,
// replays it to the gateway.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.wss.Start(ctx); err != nil {
		return provider.NewError(provider.KindNetwork, errors.Wrap(err, "start wss").Error())
	}

	c.mu.Lock()
	c.connected = true
	token := c.token
	c.mu.Unlock()

	c.observe(ctx)

	if token == "" {
		return nil
	}
	if err := c.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, w *ws.WebSocket) error {
			payload := requestFrame{Op: opSessionImport, Token: token}
			if err := w.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write session import")
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			f, ok := frameParser(m)
			if !ok || f.Op != opSessionStatus {
				return false, nil
			}
			return true, nil
		},
	}, false); err != nil {
		return provider.NewError(provider.KindNetwork, errors.Wrap(err, "import session").Error())
	}
	return nil
}

// Authenticate asks the gateway to start provider-side confirmation and
// returns the pending info. Resolution arrives on PendingAuth.Done.
func (c *Client) Authenticate(ctx context.Context, identity string) (*provider.PendingAuth, error) {
	if identity == "" {
		return nil, provider.NewError(provider.KindInvalidIdentity, "empty identity")
	}

	done := make(chan provider.Outcome, 1)
	c.mu.Lock()
	c.pending = done
	c.mu.Unlock()

	var pending gatewayFrame
	if err := c.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, w *ws.WebSocket) error {
			payload := requestFrame{Op: opAuthRequest, Identity: identity}
			if err := w.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write auth request").With("identity", identity)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			f, ok := frameParser(m)
			if !ok {
				return false, nil
			}
			switch f.Op {
			case opAuthPending:
				pending = f
				return true, nil
			case opAuthFailed:
				return false, failureError(f.Reason)
			default:
				return false, nil
			}
		},
	}, false); err != nil {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
		if provider.KindOf(err) != provider.KindUnknown {
			return nil, err
		}
		return nil, provider.NewError(provider.KindNetwork, errors.Wrap(err, "auth request").Error())
	}

	return &provider.PendingAuth{
		Browser:  pending.Browser,
		IP:       pending.IP,
		Location: pending.Location,
		Done:     done,
	}, nil
}

// CheckAuthorization asks the gateway whether the current credential is
// still accepted by the provider.
func (c *Client) CheckAuthorization(ctx context.Context) (bool, error) {
	authorized := false
	if err := c.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, w *ws.WebSocket) error {
			if err := w.WriteJSON(requestFrame{Op: opAuthCheck}); err != nil {
				return errors.Wrap(err, "write auth check")
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			f, ok := frameParser(m)
			if !ok || f.Op != opAuthStatus {
				return false, nil
			}
			authorized = f.Authorized
			return true, nil
		},
	}, false); err != nil {
		return false, provider.NewError(provider.KindNetwork, errors.Wrap(err, "auth check").Error())
	}
	return authorized, nil
}

// ExportSession returns the credential captured on confirmation or import.
func (c *Client) ExportSession() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", provider.NewError(provider.KindExpired, "no session credential")
	}
	return c.token, nil
}

// ImportSession loads a previously exported credential. Call before Connect.
func (c *Client) ImportSession(token string) error {
	if token == "" {
		return provider.NewError(provider.KindExpired, "empty session credential")
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// ListChannels returns up to limit readable channels.
func (c *Client) ListChannels(ctx context.Context, limit int) ([]provider.Channel, error) {
	if limit <= 0 {
		limit = 100
	}
	var dialogs []dialogFrame
	if err := c.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, w *ws.WebSocket) error {
			if err := w.WriteJSON(requestFrame{Op: opDialogsList, Limit: limit}); err != nil {
				return errors.Wrap(err, "write dialogs list").With("limit", limit)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			f, ok := frameParser(m)
			if !ok || f.Op != opDialogs {
				return false, nil
			}
			dialogs = f.Dialogs
			return true, nil
		},
	}, false); err != nil {
		return nil, provider.NewError(provider.KindNetwork, errors.Wrap(err, "dialogs list").Error())
	}

	channels := make([]provider.Channel, 0, len(dialogs))
	for _, d := range dialogs {
		channels = append(channels, provider.Channel{
			ID:               strconv.FormatInt(d.ID, 10),
			Title:            d.Title,
			IsChannelOrGroup: d.ChannelOrGroup,
		})
	}
	return channels, nil
}

// SetMessageHandler installs the single inbound handler, replacing any
// prior one. A nil handler removes the current one.
func (c *Client) SetMessageHandler(h provider.MessageHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connected reports whether the transport is established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect closes the websocket and resolves any in-flight confirmation
// as cancelled. Safe to call repeatedly.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		select {
		case pending <- provider.Outcome{Err: provider.NewError(provider.KindCancelled, "disconnected")}:
		default:
		}
	}
	if wasConnected {
		c.wss.Close()
	}
	return nil
}

// observe runs the push loop routing confirmation results and inbound
// messages. Started once per Connect.
func (c *Client) observe(ctx context.Context) {
	c.mu.Lock()
	if c.observing {
		c.mu.Unlock()
		return
	}
	c.observing = true
	c.mu.Unlock()

	ch, cancel := c.wss.Subscribe()
	go func() {
		defer cancel()
		defer func() {
			c.mu.Lock()
			c.observing = false
			c.mu.Unlock()
		}()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				f, ok := frameParser(m)
				if !ok {
					continue
				}
				c.route(f)
			}
		}
	}()
}

func (c *Client) route(f gatewayFrame) {
	switch f.Op {
	case opAuthConfirmed:
		c.resolvePending(provider.Outcome{Token: f.Token})
		c.mu.Lock()
		c.token = f.Token
		c.mu.Unlock()
	case opAuthFailed:
		c.resolvePending(provider.Outcome{Err: failureError(f.Reason)})
	case opMessage:
		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler == nil {
			return
		}
		handler(provider.Message{
			ChatID:    strconv.FormatInt(f.ChatID, 10),
			ChatTitle: f.ChatTitle,
			Text:      f.Text,
			Timestamp: time.Unix(f.Ts, 0).UTC(),
		})
	default:
		logs.Warnf("unhandled gateway frame, op: %s", f.Op)
	}
}

func (c *Client) resolvePending(out provider.Outcome) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if pending == nil {
		return
	}
	select {
	case pending <- out:
	default:
	}
}

func failureError(reason string) error {
	switch reason {
	case reasonInvalidIdentity:
		return provider.NewError(provider.KindInvalidIdentity, "identity rejected")
	case reasonBanned:
		return provider.NewError(provider.KindBanned, "identity banned")
	case reasonExpired:
		return provider.NewError(provider.KindExpired, "credential expired")
	case reasonCancelled:
		return provider.NewError(provider.KindCancelled, "confirmation cancelled")
	default:
		return provider.NewError(provider.KindNetwork, "auth failed: "+reason)
	}
}
