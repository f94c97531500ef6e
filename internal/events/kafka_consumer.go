package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// InboundMessage is one client->server event read off the bridge topic.
type InboundMessage struct {
	Key       []byte
	Value     []byte
	Timestamp time.Time

	ackFn func(context.Context) error
}

// Ack commits the message's offset.
func (m InboundMessage) Ack(ctx context.Context) error {
	if m.ackFn == nil {
		return nil
	}
	return m.ackFn(ctx)
}

type KafkaConsumerConfig struct {
	Brokers []string
	Group   string
	Topic   string

	MinBytes int
	MaxBytes int
}

// KafkaConsumer delivers inbound bridge messages over channels.
type KafkaConsumer struct {
	reader *kafka.Reader

	msgCh chan InboundMessage
	errCh chan error

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewKafkaConsumer(parent context.Context, cfg KafkaConsumerConfig) (*KafkaConsumer, error) {
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
	if strings.TrimSpace(cfg.Group) == "" || strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("%w: group and topic are required", ErrInvalidConfig)
	}

	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if maxBytes < minBytes {
		return nil, fmt.Errorf("%w: max bytes must be >= min bytes", ErrInvalidConfig)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  strings.TrimSpace(cfg.Group),
		Topic:    strings.TrimSpace(cfg.Topic),
		MinBytes: minBytes,
		MaxBytes: maxBytes,
	})

	ctx, cancel := context.WithCancel(parent)
	c := &KafkaConsumer{
		reader: reader,
		msgCh:  make(chan InboundMessage, 64),
		errCh:  make(chan error, 8),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(ctx)
	return c, nil
}

func (c *KafkaConsumer) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.msgCh)
	defer close(c.errCh)

	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			select {
			case c.errCh <- err:
			case <-ctx.Done():
				return
			}
			continue
		}

		msg := InboundMessage{
			Key:       append([]byte(nil), km.Key...),
			Value:     append([]byte(nil), km.Value...),
			Timestamp: km.Time,
			ackFn: func(ackCtx context.Context) error {
				return c.reader.CommitMessages(ackCtx, km)
			},
		}
		select {
		case c.msgCh <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *KafkaConsumer) Messages() <-chan InboundMessage {
	return c.msgCh
}

func (c *KafkaConsumer) Errors() <-chan error {
	return c.errCh
}

func (c *KafkaConsumer) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.reader.Close()
		<-c.done
	})
	return err
}
