package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrInvalidConfig = errors.New("events: invalid config")

// Envelope is the wire shape the realtime socket layer consumes off the
// bridge topic: one message per emission, keyed by room so all events for an
// actor land on one partition in order.
type Envelope struct {
	Room      string          `json:"room"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"ts"`
}

type KafkaBusConfig struct {
	Brokers []string
	Topic   string

	BatchTimeout time.Duration

	Now func() time.Time
}

// KafkaBus bridges server emissions to the realtime layer over Kafka.
type KafkaBus struct {
	writer *kafka.Writer
	topic  string
	now    func() time.Time
}

func NewKafkaBus(cfg KafkaBusConfig) (*KafkaBus, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: at least one broker is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &KafkaBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			BatchTimeout: batchTimeout,
			RequiredAcks: kafka.RequireAll,
		},
		topic: strings.TrimSpace(cfg.Topic),
		now:   now,
	}, nil
}

func (b *KafkaBus) Emit(ctx context.Context, room, event string, payload any) error {
	if room == "" || event == "" {
		return fmt.Errorf("%w: room and event are required", ErrInvalidConfig)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	env, err := json.Marshal(Envelope{
		Room:      room,
		Event:     event,
		Payload:   body,
		Timestamp: b.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: b.topic,
		Key:   []byte(room),
		Value: env,
	})
}

func (b *KafkaBus) Close() error {
	return b.writer.Close()
}

var _ Bus = (*KafkaBus)(nil)
