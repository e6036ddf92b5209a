package publisher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifile/notifile/cfg"
	"github.com/notifile/notifile/common"
)

var (
	capturedSinksMu sync.Mutex
	capturedSinks   = make(map[string]*mockSink)
)

func init() {
	// Register a capturing sink and pass-through transformer for tests.
	// This avoids import cycles with the sink and transformer packages.
	RegisterSink("capture", func(config cfg.SinkConfiguration) (Sink, error) {
		s := &mockSink{}
		capturedSinksMu.Lock()
		capturedSinks[config.Name] = s
		capturedSinksMu.Unlock()
		return s, nil
	})

	RegisterTransformer("test", func() Transformer {
		return &mockTransformer{}
	})
}

func capturedSink(name string) *mockSink {
	capturedSinksMu.Lock()
	defer capturedSinksMu.Unlock()
	return capturedSinks[name]
}

func TestNewRegistryNoSinks(t *testing.T) {
	registry, err := NewRegistry("instance-1", nil)
	require.NoError(t, err)
	require.NotNil(t, registry)
	assert.Equal(t, 0, registry.Workers())
}

func TestNewRegistryUnknownSinkType(t *testing.T) {
	_, err := NewRegistry("instance-1", []cfg.SinkConfiguration{
		{Name: "bad", Type: "carrier-pigeon", Format: "test"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sink type")
}

func TestNewRegistryUnknownFormat(t *testing.T) {
	_, err := NewRegistry("instance-1", []cfg.SinkConfiguration{
		{Name: "bad", Type: "capture", Format: "xml"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestRegistryStartStop(t *testing.T) {
	registry, err := NewRegistry("instance-1", []cfg.SinkConfiguration{
		{Name: "lifecycle", Type: "capture", Format: "test"},
	})
	require.NoError(t, err)

	require.NoError(t, registry.Start())
	assert.Error(t, registry.Start(), "second start should fail")

	registry.Stop()
	registry.Stop() // Second stop is a no-op
}

func TestRegistryPublishFansOut(t *testing.T) {
	registry, err := NewRegistry("instance-1", []cfg.SinkConfiguration{
		{Name: "all-targets", Type: "capture", Format: "test"},
		{Name: "zones-only", Type: "capture", Format: "test", FilterTargets: []string{"zones"}},
	})
	require.NoError(t, err)
	require.NoError(t, registry.Start())
	defer registry.Stop()

	registry.Publish(common.SyncRecord{
		Target:    "zones",
		Outcome:   common.OutcomeWritten,
		Reason:    common.ReasonNotify,
		StartedAt: time.Now(),
	})
	registry.Publish(common.SyncRecord{
		Target:    "users",
		Outcome:   common.OutcomeUnchanged,
		Reason:    common.ReasonKeepalive,
		StartedAt: time.Now(),
	})

	all := capturedSink("all-targets")
	zonesOnly := capturedSink("zones-only")
	require.NotNil(t, all)
	require.NotNil(t, zonesOnly)

	waitForEvents(t, all, 2, 2*time.Second)
	waitForEvents(t, zonesOnly, 1, 2*time.Second)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 2, all.eventCount())
	assert.Equal(t, 1, zonesOnly.eventCount(), "filtered sink should only see matching targets")
	assert.Equal(t, "zones", zonesOnly.getEvents()[0].key)
}

func TestRegistryPublishWhenStopped(t *testing.T) {
	registry, err := NewRegistry("instance-1", []cfg.SinkConfiguration{
		{Name: "stopped-sink", Type: "capture", Format: "test"},
	})
	require.NoError(t, err)

	// Never started: publish is silently dropped
	registry.Publish(common.SyncRecord{Target: "zones", Outcome: common.OutcomeWritten})

	sink := capturedSink("stopped-sink")
	require.NotNil(t, sink)
	assert.Equal(t, 0, sink.eventCount())
}

func TestRegistryNilSafe(t *testing.T) {
	var registry *Registry

	assert.NoError(t, registry.Start())
	registry.Stop()
	registry.Publish(common.SyncRecord{Target: "zones"})
	assert.Equal(t, 0, registry.Workers())
}
