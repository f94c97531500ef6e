package blobstore

import (
	"context"
	"errors"
	"testing"
)

func TestNewDriverSelection(t *testing.T) {
	t.Parallel()

	s, err := New(Config{})
	if err != nil || s != nil {
		t.Fatalf("empty driver must disable the store: %v %v", s, err)
	}

	if _, err := New(Config{Driver: "tape"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := New(Config{Driver: DriverS3}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("s3 without bucket must fail, got %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Driver: DriverMemory, Prefix: "relay"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	key := "transactions/D1/record.json"
	if err := s.Put(ctx, key, []byte(`{"digest":"D1"}`), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"intent-id": "t1"},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	obj, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(obj.Data) != `{"digest":"D1"}` || obj.ContentType != "application/json" {
		t.Fatalf("object: %+v", obj)
	}
	if obj.Metadata["intent-id"] != "t1" {
		t.Fatalf("metadata: %+v", obj.Metadata)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestKeyValidation(t *testing.T) {
	t.Parallel()

	s, _ := New(Config{Driver: DriverMemory})
	ctx := context.Background()

	for _, key := range []string{"", " padded ", "bad\x00key"} {
		if err := s.Put(ctx, key, nil, PutOptions{}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}
