package http2

// multiplexer feeds a single writer goroutine from two producer
// channels that share one underlying connection: control frames
// (SETTINGS acks, PING/PING-acks, RST_STREAM, GOAWAY) and data frames
// (HEADERS, DATA). Without it, a large response body queued ahead of a
// PING-ack on the same channel would delay the ack until the body
// finished writing, which is exactly the head-of-line problem HTTP/2
// multiplexing exists to avoid. control is always drained first.
type multiplexer struct {
	control chan *FrameHeader
	data    chan *FrameHeader
}

func newMultiplexer(control, data chan *FrameHeader) *multiplexer {
	return &multiplexer{control: control, data: data}
}

// next returns the next frame to write, preferring control over data
// whenever both have one ready, and reports false once both channels
// are closed and drained.
func (m *multiplexer) next() (*FrameHeader, bool) {
	for m.control != nil || m.data != nil {
		// a non-blocking pass gives control absolute priority when
		// both already have a frame sitting in the buffer.
		select {
		case fr, ok := <-m.control:
			if !ok {
				m.control = nil
				continue
			}
			return fr, true
		default:
		}

		select {
		case fr, ok := <-m.control:
			if !ok {
				m.control = nil
				continue
			}
			return fr, true
		case fr, ok := <-m.data:
			if !ok {
				m.data = nil
				continue
			}
			return fr, true
		}
	}

	return nil, false
}
