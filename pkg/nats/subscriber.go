package nats

import (
	"context"
	"fmt"

	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber consumes domain events with durable JetStream consumers.
type Subscriber struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	logger   logger.ILogger
	contexts []jetstream.ConsumeContext
}

var _ events.Subscriber = (*Subscriber)(nil)

func NewSubscriber(url string, log logger.ILogger) (*Subscriber, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, logger: log}, nil
}

// Subscribe registers handler for one event type ("" or ">" for all) under a
// durable consumer, so events published while the service was down are
// still delivered.
func (s *Subscriber) Subscribe(subject, durableName string, handler events.Handler) error {
	ctx := context.Background()

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: Subject(subject),
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ev, err := events.Decode(msg.Data())
		if err != nil {
			s.logger.Error("nats", "dropping undecodable event", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			_ = msg.Term()
			return
		}

		if err := handler(context.Background(), ev); err != nil {
			s.logger.Warn("nats", "handler failed, redelivering", map[string]interface{}{
				"subject":  msg.Subject(),
				"consumer": durableName,
				"error":    err.Error(),
			})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	s.contexts = append(s.contexts, cc)

	s.logger.Info("nats", "subscribed", map[string]interface{}{
		"subject":  Subject(subject),
		"consumer": durableName,
	})
	return nil
}

func (s *Subscriber) Close() {
	for _, cc := range s.contexts {
		cc.Stop()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
