// Package mqtt mirrors runner events to an MQTT broker and accepts pattern
// commands from it.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var qlog zerolog.Logger

func init() {
	qlog = log.With().Str("component", "mqtt").Logger()
}

const (
	EventsSuffix  = "events"
	CommandSuffix = "command"
)

const (
	CommandStop = "stop"
	CommandNext = "next"
)

var ErrBadCommand = errors.New("bad mqtt command")

// Client is the part of a broker connection the bridge needs.
type Client interface {
	// Publish sends payload on topic. Returns an error if publishing
	// fails; callers log it and carry on.
	Publish(topic string, payload []byte) error

	// Subscribe calls handler with the payload of every message on topic.
	Subscribe(topic string, handler func(payload []byte)) error

	Close() error
}

// Command is a message on the command topic: either a pattern to start
// or one of the bare commands "stop" and "next".
type Command struct {
	Command string `json:"command,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	DelayMs int    `json:"delay_ms,omitempty"`
	Repeat  int    `json:"repeat,omitempty"`
}

// ParseCommand decodes and checks a command payload. Pattern names are
// not checked here; the handler rejects ones it does not know.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrBadCommand, err)
	}
	cmd.Command = strings.ToLower(strings.TrimSpace(cmd.Command))
	cmd.Pattern = strings.TrimSpace(cmd.Pattern)

	switch {
	case cmd.Command != "" && cmd.Pattern != "":
		return Command{}, fmt.Errorf("%w: both command and pattern set", ErrBadCommand)
	case cmd.Command == CommandStop, cmd.Command == CommandNext:
		return cmd, nil
	case cmd.Command != "":
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrBadCommand, cmd.Command)
	case cmd.Pattern == "":
		return Command{}, fmt.Errorf("%w: no command or pattern", ErrBadCommand)
	case cmd.DelayMs < 0 || cmd.Repeat < 0:
		return Command{}, fmt.Errorf("%w: negative delay or repeat", ErrBadCommand)
	}
	return cmd, nil
}

// CommandHandler acts on commands received from the broker.
type CommandHandler interface {
	HandleCommand(cmd Command) error
}

type CommandHandlerFunc func(cmd Command) error

func (f CommandHandlerFunc) HandleCommand(cmd Command) error {
	return f(cmd)
}

// Bridge publishes events under <topic>/events and feeds
// <topic>/command into a CommandHandler.
type Bridge struct {
	client  Client
	topic   string
	handler CommandHandler
}

func NewBridge(client Client, topic string, handler CommandHandler) *Bridge {
	return &Bridge{
		client:  client,
		topic:   strings.TrimSuffix(topic, "/"),
		handler: handler,
	}
}

func (b *Bridge) EventsTopic() string {
	return b.topic + "/" + EventsSuffix
}

func (b *Bridge) CommandTopic() string {
	return b.topic + "/" + CommandSuffix
}

// PublishEvent sends v as JSON on the events topic.
func (b *Bridge) PublishEvent(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return b.client.Publish(b.EventsTopic(), payload)
}

// Listen subscribes to the command topic. Bad commands and handler
// errors are logged, never returned to the broker.
func (b *Bridge) Listen() error {
	return b.client.Subscribe(b.CommandTopic(), b.handle)
}

func (b *Bridge) handle(payload []byte) {
	cmd, err := ParseCommand(payload)
	if err != nil {
		qlog.Warn().Err(err).Bytes("payload", payload).Msg("Ignoring command")
		return
	}

	qlog.Info().Str("command", cmd.Command).Str("pattern", cmd.Pattern).Msg("Command received")
	if err := b.handler.HandleCommand(cmd); err != nil {
		qlog.Err(err).Str("command", cmd.Command).Str("pattern", cmd.Pattern).Msg("Command failed")
	}
}

func (b *Bridge) Close() error {
	return b.client.Close()
}
