package http2

import "sync/atomic"

// flowWindow is a connection- or stream-level HTTP/2 flow-control
// window: a signed credit counter that WINDOW_UPDATE frames replenish
// and outbound DATA frames spend. Signed because RFC 7540 §6.9.2
// allows a SETTINGS_INITIAL_WINDOW_SIZE change to drive an in-flight
// stream's window negative; callers must not send DATA while negative
// or zero, but the counter itself has to keep accepting updates.
//
// Reads and writes happen from both the connection's read loop (which
// applies WINDOW_UPDATEs and charges outbound DATA) and, for the
// per-stream windows, the stream bookkeeping goroutine, so every
// access goes through sync/atomic rather than a mutex.
type flowWindow struct {
	v int64
}

// Add applies a credit (positive, from a WINDOW_UPDATE) or a debit
// (negative, from bytes just written) and returns the resulting value.
func (w *flowWindow) Add(n int64) int64 {
	return atomic.AddInt64(&w.v, n)
}

// Sub is Add(-n); named separately so charging a DATA frame's length
// reads naturally at the call site.
func (w *flowWindow) Sub(n int64) int64 {
	return atomic.AddInt64(&w.v, -n)
}

// Load returns the current window value.
func (w *flowWindow) Load() int64 {
	return atomic.LoadInt64(&w.v)
}

// Store resets the window to n, as happens on a fresh SETTINGS
// exchange or when a stream is reinitialized.
func (w *flowWindow) Store(n int64) {
	atomic.StoreInt64(&w.v, n)
}

// Available reports whether at least n bytes of DATA may be sent
// against this window right now.
func (w *flowWindow) Available(n int64) bool {
	return w.Load() >= n
}
