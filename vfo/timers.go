package vfo

// TimerSource models the pair of free-running hardware counters behind the
// counting engine: a 16-bit counter clocked by the measured input signal and
// an 8-bit counter clocked by the prescaled internal reference. Each wrap of
// either counter raises a notification.
//
// Overflow handlers are invoked on the source's own event context (interrupt
// thread, ticker goroutine, ...) and must be brief. The handlers registered
// via Notify are the only writers of gate state; everything a handler touches
// is guarded by the gate's lock.
type TimerSource interface {
	// Notify registers the two overflow handlers. inputOverflow fires once
	// per wrap of the input edge counter; clockOverflow fires once per wrap
	// of the reference counter, i.e. once per gate segment. Must be called
	// before Start.
	Notify(inputOverflow, clockOverflow func())

	// SnapshotAndReset returns the input counter's current raw value and
	// clears it to zero in one step. Called from within the clockOverflow
	// handler when the gate closes, so it observes a consistent state.
	SnapshotAndReset() uint16

	// Start begins delivering notifications.
	Start() error

	// Close stops the source and releases any hardware it holds.
	Close() error
}
