package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const fetchMaxWait = 5 * time.Second

// NATSStreamConfig configures a persistent JetStream stream and its durable consumer.
type NATSStreamConfig struct {
	URL          string
	StreamName   string
	Topic        string        // subject pattern, e.g. "orders.>"
	ConsumerName string
	MaxAge       time.Duration // retention window for replayable events
	MaxMsgs      int64         // 0 = unlimited
}

// NATSStream is a persistent event stream over NATS JetStream. The engine's
// core publishes are captured by subject so the kitchen board can replay the
// retained window after a restart instead of rescanning storage.
type NATSStream struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	stream   jetstream.Stream
	consumer jetstream.Consumer
	subject  string
}

// NewNATSStream connects and ensures the stream and durable consumer exist.
func NewNATSStream(cfg NATSStreamConfig) (*NATSStream, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := ensureStream(js, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	consumer, err := ensureConsumer(stream, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &NATSStream{
		conn:     conn,
		js:       js,
		stream:   stream,
		consumer: consumer,
		subject:  cfg.Topic,
	}, nil
}

func ensureStream(js jetstream.JetStream, cfg NATSStreamConfig) (jetstream.Stream, error) {
	streamConfig := jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.Topic},
		MaxAge:   cfg.MaxAge,
	}
	if cfg.MaxMsgs > 0 {
		streamConfig.MaxMsgs = cfg.MaxMsgs
	}

	stream, err := js.CreateOrUpdateStream(context.Background(), streamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.StreamName, err)
	}
	return stream, nil
}

func ensureConsumer(stream jetstream.Stream, cfg NATSStreamConfig) (jetstream.Consumer, error) {
	// Durable, replaying from the beginning so the board cache can rebuild.
	consumer, err := stream.CreateOrUpdateConsumer(context.Background(), jetstream.ConsumerConfig{
		Name:          cfg.ConsumerName,
		Durable:       cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		FilterSubject: cfg.Topic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.ConsumerName, err)
	}
	return consumer, nil
}

// Publish writes a message to the stream.
func (s *NATSStream) Publish(ctx context.Context, topic string, msg []byte) error {
	if _, err := s.js.Publish(ctx, topic, msg); err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

// Fetch drains up to limit retained messages. Used for replay on startup.
func (s *NATSStream) Fetch(ctx context.Context, limit int) ([]events.StreamMessage, error) {
	if limit <= 0 {
		limit = 1000
	}

	batch, err := s.consumer.Fetch(limit, jetstream.FetchMaxWait(fetchMaxWait))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var messages []events.StreamMessage
	for msg := range batch.Messages() {
		metadata, err := msg.Metadata()
		if err != nil {
			msg.Ack()
			continue
		}

		messages = append(messages, events.StreamMessage{
			Data:      msg.Data(),
			Sequence:  metadata.Sequence.Stream,
			Timestamp: metadata.Timestamp.UnixNano(),
		})
		msg.Ack()
	}

	return messages, nil
}

// SubscribeStream delivers new stream messages as they arrive.
func (s *NATSStream) SubscribeStream(ctx context.Context, handler events.HandlerFunc) error {
	_, err := s.consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Data()); err != nil {
			msg.Nak()
			return
		}
		msg.Ack()
	})
	return err
}

// Subscribe implements events.Subscriber. The topic argument is ignored; the
// consumer is already bound to the configured subject.
func (s *NATSStream) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	return s.SubscribeStream(ctx, handler)
}

func (s *NATSStream) Close() error {
	s.conn.Close()
	return nil
}
