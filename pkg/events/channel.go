package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"legal-assistant-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// Handler processes one delivered event. A returned error asks the bus to
// redeliver.
type Handler func(ctx context.Context, event Event) error

// Subscriber is implemented by every bus the handoff consumer can listen on.
type Subscriber interface {
	Subscribe(subject, durableName string, handler Handler) error
}

type envelope struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Encode is the wire form shared by every bus.
func Encode(event Event) ([]byte, error) {
	raw, err := json.Marshal(envelope{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return raw, nil
}

// Decode turns an encoded event back into an event.
func Decode(payload []byte) (BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return BaseEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if env.Type == "" {
		return BaseEvent{}, fmt.Errorf("failed to decode event: missing type")
	}
	return BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}

// ChannelPublisher publishes onto an in-process watermill channel. It is the
// bus used when NATS is not reachable.
type ChannelPublisher struct {
	pubSub *gochannel.GoChannel
	topic  string
}

func NewChannelPublisher(pubSub *gochannel.GoChannel, topic string) *ChannelPublisher {
	return &ChannelPublisher{pubSub: pubSub, topic: topic}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	raw, err := Encode(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(uuid.NewString(), raw)
	msg.SetContext(ctx)
	return p.pubSub.Publish(p.topic, msg)
}

// ChannelSubscriber consumes the in-process channel. subject filters by event
// type; "" or ">" takes everything.
type ChannelSubscriber struct {
	pubSub *gochannel.GoChannel
	topic  string
	logger logger.ILogger
	ctx    context.Context
}

func NewChannelSubscriber(ctx context.Context, pubSub *gochannel.GoChannel, topic string, log logger.ILogger) *ChannelSubscriber {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ChannelSubscriber{pubSub: pubSub, topic: topic, logger: log, ctx: ctx}
}

func (s *ChannelSubscriber) Subscribe(subject, durableName string, handler Handler) error {
	messages, err := s.pubSub.Subscribe(s.ctx, s.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}

	go func() {
		for msg := range messages {
			ev, err := Decode(msg.Payload)
			if err != nil {
				s.logger.Error("events", "dropping undecodable message", map[string]interface{}{
					"consumer": durableName,
					"error":    err.Error(),
				})
				msg.Ack()
				continue
			}
			if !MatchSubject(subject, ev.Type) {
				msg.Ack()
				continue
			}
			if err := handler(msg.Context(), ev); err != nil {
				s.logger.Warn("events", "handler failed, redelivering", map[string]interface{}{
					"consumer": durableName,
					"type":     ev.Type,
					"error":    err.Error(),
				})
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

// MatchSubject reports whether eventType is selected by subject, which is
// either an event type, "" or ">".
func MatchSubject(subject, eventType string) bool {
	return subject == "" || subject == ">" || subject == eventType
}
