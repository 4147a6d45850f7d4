package http2

import (
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// StreamState is one of the seven states a stream moves through per
// RFC 7540 section 5.1. Reserved and half-closed are split by direction
// so the state machine can tell a locally-initiated push from a
// remotely-initiated one, and a locally-closed write side from a
// remotely-closed one.
type StreamState int8

const (
	StreamStateIdle StreamState = iota
	StreamStateReservedLocal
	StreamStateReservedRemote
	StreamStateOpen
	StreamStateHalfClosedLocal
	StreamStateHalfClosedRemote
	StreamStateClosed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateIdle:
		return "Idle"
	case StreamStateReservedLocal:
		return "ReservedLocal"
	case StreamStateReservedRemote:
		return "ReservedRemote"
	case StreamStateOpen:
		return "Open"
	case StreamStateHalfClosedLocal:
		return "HalfClosedLocal"
	case StreamStateHalfClosedRemote:
		return "HalfClosedRemote"
	case StreamStateClosed:
		return "Closed"
	}

	return "IDK"
}

// Stream is the per-stream state the server connection engine tracks
// in its Streams table. ctx carries the fasthttp request/response pair
// being assembled for this stream; origType records whether the stream
// was opened by HEADERS or reserved by PUSH_PROMISE, which governs both
// the RFC 5.1.1 "implicitly closes lower idle streams" rule and the
// open-stream accounting in handleStreams.
type Stream struct {
	id     uint32
	window flowWindow
	state  StreamState

	ctx  *fasthttp.RequestCtx
	data interface{}

	origType        FrameType
	startedAt       time.Time
	scheme          []byte
	headersFinished bool

	depID  uint32
	weight uint8
}

var streamPool = sync.Pool{
	New: func() interface{} {
		return &Stream{}
	},
}

// NewStream returns a Stream from the pool, initialized to Idle with
// the given id and initial flow-control window.
func NewStream(id uint32, win int32) *Stream {
	s := streamPool.Get().(*Stream)
	s.id = id
	s.window.Store(int64(win))
	s.state = StreamStateIdle
	return s
}

// Release resets s and returns it to the pool. The caller is
// responsible for returning s.ctx to its own pool first.
func (s *Stream) Release() {
	s.id = 0
	s.window.Store(0)
	s.state = StreamStateIdle
	s.ctx = nil
	s.data = nil
	s.origType = 0
	s.startedAt = time.Time{}
	s.scheme = s.scheme[:0]
	s.headersFinished = false
	s.depID = 0
	s.weight = 0

	streamPool.Put(s)
}

func (s *Stream) ID() uint32 {
	return s.id
}

func (s *Stream) SetID(id uint32) {
	s.id = id
}

func (s *Stream) State() StreamState {
	return s.state
}

func (s *Stream) SetState(state StreamState) {
	s.state = state
}

// IsHalfClosed reports whether either side of the stream has stopped
// sending.
func (s *Stream) IsHalfClosed() bool {
	return s.state == StreamStateHalfClosedLocal || s.state == StreamStateHalfClosedRemote
}

// Window returns the stream's current send window.
func (s *Stream) Window() int32 {
	return int32(s.window.Load())
}

func (s *Stream) SetWindow(win int32) {
	s.window.Store(int64(win))
}

// IncrWindow atomically adds win to the stream's window and returns
// the new value, so callers can check it against the overflow limit
// without a separate load.
func (s *Stream) IncrWindow(win int64) int64 {
	return s.window.Add(win)
}

func (s *Stream) Data() interface{} {
	return s.data
}

func (s *Stream) SetData(data interface{}) {
	s.data = data
}

// SetPriority records PRIORITY bookkeeping; kept for observability
// only and never drives scheduling.
func (s *Stream) SetPriority(depID uint32, weight uint8) {
	s.depID = depID
	s.weight = weight
}

func (s *Stream) Priority() (depID uint32, weight uint8) {
	return s.depID, s.weight
}
