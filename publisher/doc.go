// Package publisher emits sync events to external systems.
//
// Every completed sync run (written, unchanged or failed) can be fanned
// out to one or more configured sinks (Kafka, NATS JetStream), letting
// downstream consumers observe file state changes without polling the
// daemon.
//
// # Architecture
//
// The package consists of three main components:
//
// 1. Registry: builds one Worker per configured sink and owns their lifecycle
// 2. Worker: a bounded in-memory queue drained by a dedicated goroutine
// 3. Interfaces: Sink, Transformer, and Filter abstractions
//
// # Delivery semantics
//
// Publishing is strictly best effort and never blocks the sync loop.
// Each worker holds a bounded queue; when a sink is slow or down the
// queue fills and the oldest events are dropped in favor of the newest,
// so consumers always converge on the most recent state. Failed
// publishes are retried with exponential backoff up to a per-sink
// retry budget, then dropped.
//
// Example usage:
//
//	registry, err := publisher.NewRegistry(instanceID, cfg.Config.Sinks)
//	if err != nil {
//		return err
//	}
//	registry.Start()
//	defer registry.Stop()
//
//	// From the sync loop
//	registry.Publish(record)
//
// # Filters
//
// GlobFilter restricts a sink to a subset of targets:
//
//	filter, err := NewGlobFilter([]string{"zones", "acl_*"})
//
//	if filter.Match("zones") {
//		// Publish event
//	}
//
// Sinks and transformers self-register through RegisterSink and
// RegisterTransformer from their init functions; importing the sink and
// transformer packages for side effects wires in the built-in set.
package publisher
