// Package control is the inbound command surface: a small JSON command
// schema and a gateway mapping each command onto the session service and
// the subscription store.
package control

import (
	"encoding/json"

	"main/pkg/exception"
)

// Op identifies one inbound command.
type Op string

const (
	OpRequestLogin       Op = "requestLogin"
	OpCancelLogin        Op = "cancelLogin"
	OpRestore            Op = "restore"
	OpGetChannels        Op = "getChannels"
	OpSubscribeChannel   Op = "subscribeChannel"
	OpUnsubscribeChannel Op = "unsubscribeChannel"
	OpDisconnect         Op = "disconnect"
)

// Command is one inbound request addressed to a single user's session.
type Command struct {
	Op     Op     `json:"op"`
	UserID string `json:"userId"`

	// Identity is required by requestLogin.
	Identity string `json:"identity,omitempty"`

	// ChannelID and Title serve subscribeChannel/unsubscribeChannel.
	ChannelID string `json:"channelId,omitempty"`
	Title     string `json:"title,omitempty"`

	// Limit caps getChannels results. Zero means the provider default.
	Limit int `json:"limit,omitempty"`
}

// ParseCommand decodes and validates one JSON command frame.
func ParseCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, exception.ErrControlInvalidRequest
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Validate checks the per-op required fields.
func (c Command) Validate() error {
	if c.UserID == "" {
		return exception.ErrControlInvalidRequest
	}
	switch c.Op {
	case OpRequestLogin:
		if c.Identity == "" {
			return exception.ErrControlInvalidRequest
		}
	case OpSubscribeChannel, OpUnsubscribeChannel:
		if c.ChannelID == "" {
			return exception.ErrControlInvalidRequest
		}
	case OpCancelLogin, OpRestore, OpGetChannels, OpDisconnect:
	default:
		return exception.ErrControlUnknownCommand
	}
	return nil
}
