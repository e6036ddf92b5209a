package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/notifile/notifile/cfg"
	"github.com/notifile/notifile/publisher"
)

const natsOpTimeout = 5 * time.Second

func init() {
	publisher.RegisterSink("nats", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		if config.NatsURL == "" {
			return nil, fmt.Errorf("nats sink requires nats_url")
		}
		return NewNatsSink(config.NatsURL)
	})
}

// NatsSink publishes sync events to NATS JetStream, one subject per
// target. Streams are created lazily and remembered, so after the
// first event for a subject a publish is a single round trip.
type NatsSink struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	mu      sync.Mutex
	streams map[string]struct{}
}

// NewNatsSink connects to the given NATS server. The connection keeps
// reconnecting forever; publishes fail fast in the meantime and the
// publisher worker retries them.
func NewNatsSink(url string) (*NatsSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NatsSink{nc: nc, js: js, streams: make(map[string]struct{})}, nil
}

// Publish sends one sync event to the subject named by topic. The
// target name travels in a header so consumers can route without
// decoding the payload.
func (n *NatsSink) Publish(topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), natsOpTimeout)
	defer cancel()

	if err := n.ensureStream(ctx, topic); err != nil {
		return err
	}

	_, err := n.js.PublishMsg(ctx, &nats.Msg{
		Subject: topic,
		Data:    value,
		Header:  nats.Header{"target": []string{key}},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// ensureStream creates the stream backing a subject on first use.
// Cached entries are never invalidated; a publish after an external
// stream deletion fails and the worker's retry comes back through
// here.
func (n *NatsSink) ensureStream(ctx context.Context, subject string) error {
	n.mu.Lock()
	_, known := n.streams[subject]
	n.mu.Unlock()
	if known {
		return nil
	}

	// Stream names cannot contain the "." that subjects use.
	name := strings.ReplaceAll(subject, ".", "_")
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", name, err)
	}

	n.mu.Lock()
	n.streams[subject] = struct{}{}
	n.mu.Unlock()
	return nil
}

// Close releases resources held by the NatsSink
func (n *NatsSink) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}
