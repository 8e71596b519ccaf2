package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	streamQos  = 0
	controlQos = 1
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt client not connected")

// A Command arrives on the control topic.
type Command string

const (
	CommandStop   Command = "stop"
	CommandReload Command = "reload"
)

// ParseCommand reads a control message payload.
func ParseCommand(payload []byte) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(string(payload))))
	switch c {
	case CommandStop, CommandReload:
		return c, nil
	}
	return "", fmt.Errorf("unknown command %q", payload)
}

// Snapshotter is a surface that can be encoded for streaming.
type Snapshotter interface {
	MarshalBinary() ([]byte, error)
	EncodePNG(w io.Writer) error
}

// Streamer publishes the surface over MQTT whenever an animation draws on it.
type Streamer struct {
	config  Config
	client  mqtt.Client
	surface Snapshotter
	limiter *rate.Limiter
	dirty   chan struct{}
	log     zerolog.Logger
}

// NewStreamer creates an instance of a Streamer.
func NewStreamer(config Config, client mqtt.Client, surface Snapshotter, logger zerolog.Logger) *Streamer {
	s := new(Streamer)
	s.config = config
	s.client = client
	s.surface = surface
	s.limiter = rate.NewLimiter(rate.Limit(config.Mqtt.MaxFps), 1)
	s.dirty = make(chan struct{}, 1)
	s.log = logger.With().Str("component", "streamer").Logger()
	return s
}

// Notify marks the surface as changed. It never blocks; changes made
// before the next publish are coalesced.
func (s *Streamer) Notify() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Streamer) payload() ([]byte, error) {
	if s.config.Mqtt.Format == FormatPNG {
		var buf bytes.Buffer
		if err := s.surface.EncodePNG(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return s.surface.MarshalBinary()
}

// SendFrame publishes the current surface.
func (s *Streamer) SendFrame() error {
	if !s.client.IsConnected() {
		return ErrNotConnected
	}

	b, err := s.payload()
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	token := s.client.Publish(s.config.Mqtt.Topics.Stream, streamQos, false, b)
	token.Wait()
	return token.Error()
}

// Run publishes changed frames, at most MaxFps a second, until ctx is done.
func (s *Streamer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.dirty:
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		if err := s.SendFrame(); err != nil {
			if errors.Is(err, ErrNotConnected) {
				s.log.Debug().Msg("dropping frame, not connected")
			} else {
				s.log.Warn().Err(err).Msg("publish failed")
			}
		}
	}
}

// Subscribe listens for commands on the control topic.
func (s *Streamer) Subscribe(handler func(Command)) error {
	topic := s.config.Mqtt.Topics.Control
	token := s.client.Subscribe(topic, controlQos, func(client mqtt.Client, msg mqtt.Message) {
		cmd, err := ParseCommand(msg.Payload())
		if err != nil {
			s.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("ignoring control message")
			return
		}
		s.log.Info().Str("command", string(cmd)).Msg("control command received")
		handler(cmd)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}

	s.log.Info().Str("topic", topic).Msg("subscribed to control topic")
	return nil
}
