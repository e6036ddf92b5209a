package main

import (
	"context"
	"fmt"
	"time"
)

// reportProgress prints real-time progress every second.
func reportProgress(ctx context.Context, stats *Stats) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastSnapshot Snapshot
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := stats.GetSnapshot()
			elapsed := time.Since(startTime)

			opsSec := snapshot.Total() - lastSnapshot.Total()
			notifySec := snapshot.Notifies - lastSnapshot.Notifies
			cumThroughput := float64(snapshot.Total()) / elapsed.Seconds()

			fmt.Printf("[%5.0fs] ops/sec: %6d | notify/sec: %5d | total: %8d | errors: %4d | retries: %4d | throughput: %.1f ops/sec\n",
				elapsed.Seconds(),
				opsSec,
				notifySec,
				snapshot.Total(),
				snapshot.Errors,
				snapshot.Retries,
				cumThroughput,
			)

			lastSnapshot = snapshot
		}
	}
}
