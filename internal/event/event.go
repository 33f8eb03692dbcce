package event

import (
	"encoding/json"
	"time"
)

// Type defines the category of an outbound status event.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeConfirmationSent
	TypeLoginSuccess
	TypeLoginCancelled
	TypeLoginTimeout
	TypeRestored
	TypeNotConnected
	TypeSessionExpired
	TypeChannels
	TypeChannelSubscribed
	TypeChannelUnsubscribed
	TypeDisconnected
	TypeError
	TypeSignalReceived
	typeEnd
)

var typeNames = [...]string{
	TypeUnknown:             "unknown",
	TypeConfirmationSent:    "confirmationSent",
	TypeLoginSuccess:        "loginSuccess",
	TypeLoginCancelled:      "loginCancelled",
	TypeLoginTimeout:        "loginTimeout",
	TypeRestored:            "restored",
	TypeNotConnected:        "notConnected",
	TypeSessionExpired:      "sessionExpired",
	TypeChannels:            "channels",
	TypeChannelSubscribed:   "channelSubscribed",
	TypeChannelUnsubscribed: "channelUnsubscribed",
	TypeDisconnected:        "disconnected",
	TypeError:               "error",
	TypeSignalReceived:      "signalReceived",
}

func (t Type) String() string {
	if t >= typeEnd {
		return typeNames[TypeUnknown]
	}
	return typeNames[t]
}

func (t Type) IsAvailable() bool {
	return t > TypeUnknown && t < typeEnd
}

// MarshalJSON encodes the type by name so transports never see raw ordinals.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a type by name; unrecognized names map to unknown.
func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range typeNames {
		if n == name {
			*t = Type(i)
			return nil
		}
	}
	*t = TypeUnknown
	return nil
}

// Event is one outbound status event addressed to a single user.
type Event struct {
	UserID string    `json:"userId"`
	Type   Type      `json:"type"`
	At     time.Time `json:"at"`

	Confirmation *ConfirmationPayload `json:"confirmation,omitempty"`
	Restored     *RestoredPayload     `json:"restored,omitempty"`
	Channels     []ChannelPayload     `json:"channels,omitempty"`
	Channel      *ChannelPayload      `json:"channel,omitempty"`
	Signal       *SignalPayload       `json:"signal,omitempty"`
	Message      string               `json:"message,omitempty"`
}

// ConfirmationPayload mirrors the pending-confirmation info shown to the user.
type ConfirmationPayload struct {
	Browser  string `json:"browser"`
	IP       string `json:"ip"`
	Location string `json:"location"`
}

// RestoredPayload reports the outcome of a restore request.
type RestoredPayload struct {
	Success bool `json:"success"`
}

// ChannelPayload describes one source channel.
type ChannelPayload struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	IsChannelOrGroup bool   `json:"isChannelOrGroup"`
}

// SignalPayload carries one matched inbound message.
type SignalPayload struct {
	ChannelID    string    `json:"channelId"`
	ChannelTitle string    `json:"channelTitle"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// New builds an event stamped with the current time.
func New(userID string, t Type) Event {
	return Event{UserID: userID, Type: t, At: time.Now().UTC()}
}

// NewError builds an error event with the given message.
func NewError(userID, message string) Event {
	e := New(userID, TypeError)
	e.Message = message
	return e
}

// NewConfirmationSent builds the confirmationSent event.
func NewConfirmationSent(userID, browser, ip, location string) Event {
	e := New(userID, TypeConfirmationSent)
	e.Confirmation = &ConfirmationPayload{Browser: browser, IP: ip, Location: location}
	return e
}

// NewRestored builds the restored event.
func NewRestored(userID string, success bool) Event {
	e := New(userID, TypeRestored)
	e.Restored = &RestoredPayload{Success: success}
	return e
}

// NewChannels builds the channels listing event.
func NewChannels(userID string, channels []ChannelPayload) Event {
	e := New(userID, TypeChannels)
	e.Channels = channels
	return e
}

// NewChannelSubscribed builds the channelSubscribed event.
func NewChannelSubscribed(userID, channelID, title string) Event {
	e := New(userID, TypeChannelSubscribed)
	e.Channel = &ChannelPayload{ID: channelID, Title: title}
	return e
}

// NewChannelUnsubscribed builds the channelUnsubscribed event.
func NewChannelUnsubscribed(userID, channelID string) Event {
	e := New(userID, TypeChannelUnsubscribed)
	e.Channel = &ChannelPayload{ID: channelID}
	return e
}

// NewSignalReceived builds the signalReceived event.
func NewSignalReceived(userID, channelID, channelTitle, message string, ts time.Time) Event {
	e := New(userID, TypeSignalReceived)
	e.Signal = &SignalPayload{
		ChannelID:    channelID,
		ChannelTitle: channelTitle,
		Message:      message,
		Timestamp:    ts,
	}
	return e
}
