package sink

import (
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestNewKafkaSink(t *testing.T) {
	sink, err := NewKafkaSink([]string{"localhost:9092", "localhost:9093"})
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	defer sink.Close()

	if sink.writer == nil {
		t.Fatal("expected non-nil writer")
	}

	// One message per batch so sync events go out immediately
	if sink.writer.BatchSize != 1 {
		t.Errorf("expected batch size 1, got %d", sink.writer.BatchSize)
	}

	if sink.writer.RequiredAcks != kafka.RequireAll {
		t.Errorf("expected RequireAll acks, got %v", sink.writer.RequiredAcks)
	}

	if sink.writer.Async {
		t.Error("expected synchronous writes")
	}

	if !sink.writer.AllowAutoTopicCreation {
		t.Error("expected auto topic creation")
	}
}

func TestNewKafkaSinkEmptyBrokers(t *testing.T) {
	_, err := NewKafkaSink(nil)
	if err == nil {
		t.Error("expected error for empty brokers, got nil")
	}
}

func TestKafkaSink_Close(t *testing.T) {
	sink, err := NewKafkaSink([]string{"localhost:9092"})
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Errorf("unexpected error closing sink: %v", err)
	}
}

func TestMockSink_Publish(t *testing.T) {
	mock := &MockSink{}

	if err := mock.Publish("notifile.sync.zones", "zones", []byte(`{"target":"zones"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := mock.Published()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	if msgs[0].Topic != "notifile.sync.zones" {
		t.Errorf("expected topic notifile.sync.zones, got %s", msgs[0].Topic)
	}

	if msgs[0].Key != "zones" {
		t.Errorf("expected key zones, got %s", msgs[0].Key)
	}
}

func TestMockSink_PublishError(t *testing.T) {
	expectedErr := errors.New("publish failed")
	mock := &MockSink{PublishErr: expectedErr}

	if err := mock.Publish("topic", "key", []byte("value")); err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}

	if len(mock.Published()) != 0 {
		t.Errorf("expected 0 messages on error, got %d", len(mock.Published()))
	}
}

func TestMockSink_Reset(t *testing.T) {
	mock := &MockSink{}

	mock.Publish("topic1", "key1", []byte("value1"))
	mock.Publish("topic2", "key2", []byte("value2"))
	mock.Reset()

	if len(mock.Published()) != 0 {
		t.Errorf("expected 0 messages after reset, got %d", len(mock.Published()))
	}
}

func TestMockSink_Concurrent(t *testing.T) {
	mock := &MockSink{}

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			mock.Publish("topic", "key", []byte("value"))
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if len(mock.Published()) != 10 {
		t.Errorf("expected 10 messages, got %d", len(mock.Published()))
	}
}
