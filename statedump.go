package http2

// StreamSnapshot is one stream's state as of a state-dump query.
type StreamSnapshot struct {
	ID         uint32
	State      StreamState
	SendWindow int32
}

// ConnectionStateSnapshot is the observability surface spec.md sections
// 4.6 and 6 describe: a point-in-time view of a connection's open
// streams, their flow-control windows, the peer's settings, and the
// last GOAWAY seen (if any). It has no wire effect; it exists for tests
// and diagnostics, per spec.md section 8's "state-dump on client: zero
// open streams" assertions.
type ConnectionStateSnapshot struct {
	OpenStreamIDs []uint32
	Streams       []StreamSnapshot

	SendWindow int32
	RecvWindow int32

	PeerSettings Settings

	GoAwayReceived     bool
	LastGoAwayStreamID uint32
}

// DumpState returns a snapshot of the client connection: every stream
// still awaiting a response (reqQueued is the client's stream table),
// the connection-level windows, the server's settings, and whether a
// GOAWAY has been seen.
func (c *Conn) DumpState() ConnectionStateSnapshot {
	snap := ConnectionStateSnapshot{
		SendWindow:         c.serverStreamWindow,
		RecvWindow:         c.currentWindow,
		PeerSettings:       c.serverS,
		GoAwayReceived:     c.GoAwayReceived(),
		LastGoAwayStreamID: c.LastGoAwayStream(),
	}

	c.reqQueued.Range(func(k, v interface{}) bool {
		id := k.(uint32)

		snap.OpenStreamIDs = append(snap.OpenStreamIDs, id)
		snap.Streams = append(snap.Streams, StreamSnapshot{
			ID:    id,
			State: StreamStateOpen,
		})

		return true
	})

	return snap
}

// DumpState returns a snapshot of the server connection. handleStreams
// is the sole owner of the Streams table (spec.md section 5's
// single-accessor model), so the snapshot is built by sending a
// request over stateReq and waiting for handleStreams to answer it
// from its own goroutine rather than reading strms directly.
//
// On the server, GoAwayReceived and LastGoAwayStreamID describe the
// GOAWAY this server has sent (the connection state is closed and the
// recorded last stream id); a GOAWAY received from the client ends the
// connection instead of being recorded.
func (sc *serverConn) DumpState() ConnectionStateSnapshot {
	respCh := make(chan ConnectionStateSnapshot, 1)

	select {
	case sc.stateReq <- respCh:
	case <-sc.done:
		return ConnectionStateSnapshot{}
	}

	select {
	case snap := <-respCh:
		return snap
	case <-sc.done:
		return ConnectionStateSnapshot{}
	}
}
