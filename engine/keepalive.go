package engine

// KeepaliveCounter schedules the periodic full resync. It counts down
// one per timeout event; the frequency-th consecutive timeout fires a
// resync and rearms the counter. A frequency of zero disables periodic
// resyncs entirely, it never means "resync on every timeout".
//
// Only the event loop touches this counter. It is reset on (re)connect
// and on every full resync, and left alone by named events and subset
// resyncs.
type KeepaliveCounter struct {
	frequency int
	remaining int
}

// NewKeepaliveCounter creates an armed counter
func NewKeepaliveCounter(frequency int) *KeepaliveCounter {
	k := &KeepaliveCounter{frequency: frequency}
	k.Reset()
	return k
}

// Reset rearms the countdown to the full frequency
func (k *KeepaliveCounter) Reset() {
	k.remaining = k.frequency
}

// Remaining returns the number of timeouts left before the next resync
func (k *KeepaliveCounter) Remaining() int {
	return k.remaining
}

// Enabled reports whether periodic resyncs happen at all
func (k *KeepaliveCounter) Enabled() bool {
	return k.frequency > 0
}

// Tick consumes one timeout event. It returns true when this timeout
// is the one that must trigger a full resync; the counter has already
// rearmed itself for the next cycle.
func (k *KeepaliveCounter) Tick() bool {
	if k.frequency <= 0 {
		return false
	}
	if k.remaining <= 1 {
		k.remaining = k.frequency
		return true
	}
	k.remaining--
	return false
}
