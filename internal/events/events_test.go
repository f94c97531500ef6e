package events

import (
	"context"
	"testing"
)

func TestRoom(t *testing.T) {
	t.Parallel()

	if got := Room("0xA"); got != "player:0xA" {
		t.Fatalf("Room: got %q", got)
	}
}

func TestMemoryBusRecordsInOrder(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus()
	ctx := context.Background()

	_ = b.Emit(ctx, Room("0xA"), EventQueued, QueuedPayload{ID: "t1", Status: StatusQueued})
	_ = b.Emit(ctx, Room("0xA"), EventProcessing, ProcessingPayload{ID: "t1", Status: StatusProcessing})
	_ = b.Emit(ctx, Room("0xB"), EventQueued, QueuedPayload{ID: "t2", Status: StatusQueued})

	all := b.Emissions()
	if len(all) != 3 {
		t.Fatalf("emissions: got %d want 3", len(all))
	}
	if all[0].Event != EventQueued || all[1].Event != EventProcessing {
		t.Fatalf("order: %v", all)
	}

	queued := b.ByEvent(EventQueued)
	if len(queued) != 2 {
		t.Fatalf("queued: got %d want 2", len(queued))
	}
	if queued[1].Room != "player:0xB" {
		t.Fatalf("room: got %q", queued[1].Room)
	}
}

func TestKafkaBusValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewKafkaBus(KafkaBusConfig{Topic: "t"}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewKafkaBus(KafkaBusConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected error without topic")
	}
	if _, err := NewKafkaBus(KafkaBusConfig{Brokers: []string{" ", ""}, Topic: "t"}); err == nil {
		t.Fatalf("expected error with blank brokers")
	}

	b, err := NewKafkaBus(KafkaBusConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	if err != nil {
		t.Fatalf("NewKafkaBus: %v", err)
	}
	defer func() { _ = b.Close() }()

	if err := b.Emit(context.Background(), "", EventQueued, nil); err == nil {
		t.Fatalf("expected error for empty room")
	}
}

func TestKafkaConsumerValidatesConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, err := NewKafkaConsumer(ctx, KafkaConsumerConfig{Group: "g", Topic: "t"}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewKafkaConsumer(ctx, KafkaConsumerConfig{Brokers: []string{"b:9092"}, Topic: "t"}); err == nil {
		t.Fatalf("expected error without group")
	}
	if _, err := NewKafkaConsumer(ctx, KafkaConsumerConfig{
		Brokers: []string{"b:9092"}, Group: "g", Topic: "t", MinBytes: 10, MaxBytes: 5,
	}); err == nil {
		t.Fatalf("expected error for max < min")
	}
}
