package http2

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
)

// serverSideHandshake plays the server's half of the handshake over a
// raw net.Conn, without spinning up a real serverConn: it reads the
// client's preface, SETTINGS and WINDOW_UPDATE, replies with a bare
// SETTINGS frame, then drains the client's SETTINGS ack.
func serverSideHandshake(remote net.Conn) error {
	if !ReadPreface(remote) {
		return ErrBadPreface
	}

	br := bufio.NewReader(remote)
	bw := bufio.NewWriter(remote)

	for i := 0; i < 2; i++ { // client's SETTINGS, then WINDOW_UPDATE
		if _, err := ReadFrameFrom(br); err != nil {
			return err
		}
	}

	fr := AcquireFrameHeader()
	st := AcquireFrame(FrameSettings).(*Settings)
	fr.SetBody(st)

	if _, err := fr.WriteTo(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	ReleaseFrameHeader(fr)

	_, err := ReadFrameFrom(br) // client's SETTINGS ack
	return err
}

// testFrameReader reads frames off a raw net.Conn for assertions in a
// test, independent of any Conn/serverConn machinery.
type testFrameReader struct {
	br *bufio.Reader
}

func newTestFrameReader(c net.Conn) *testFrameReader {
	return &testFrameReader{br: bufio.NewReader(c)}
}

func (r *testFrameReader) next() (*FrameHeader, error) {
	return ReadFrameFrom(r.br)
}

// TestResetStreamSurfacesAsError drives the server's MaxRequestTime
// timeout path, which resets a stream whose handler hasn't answered in
// time with RST_STREAM(CANCEL). The client's pending Ctx.Err must
// surface that as an Error carrying StreamCanceled rather than hanging
// or silently succeeding.
func TestResetStreamSurfacesAsError(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	s := NewServer(func(ctx *fasthttp.RequestCtx) {
		<-block
	}, ServerOpts{MaxRequestTime: 20 * time.Millisecond})

	c, ln := dialInmemory(t, s)
	defer c.Close()
	defer ln.Close()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI("https://localhost/slow")

	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(res)

	ctx := AcquireCtx(req, res)
	c.Write(ctx)

	select {
	case err := <-ctx.Err:
		if err == nil {
			t.Fatal("expected the stream to fail, got nil")
		}

		e, ok := err.(Error)
		if !ok {
			t.Fatalf("expected an Error, got %T: %s", err, err)
		}
		if e.Code() != StreamCanceled {
			t.Fatalf("expected StreamCanceled, got %s", e.Code())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reset to surface")
	}
}

// TestDroppedRequestCancelsStream checks that closing a BodyStream
// before its request completes emits RST_STREAM(CANCEL) on the wire,
// the client-side half of the same property.
func TestDroppedRequestCancelsStream(t *testing.T) {
	c, remote := pipeConn(t)
	defer remote.Close()

	done := make(chan error, 1)
	go func() { done <- c.Handshake() }()

	if err := serverSideHandshake(remote); err != nil {
		t.Fatalf("fake server handshake: %s", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("client handshake: %s", err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI("https://example.com/drop")

	future, body, err := c.StartRequest(req)
	if err != nil {
		t.Fatalf("StartRequest: %s", err)
	}

	br := newTestFrameReader(remote)

	fr, err := br.next()
	if err != nil {
		t.Fatalf("reading HEADERS: %s", err)
	}
	if fr.Type() != FrameHeaders {
		t.Fatalf("expected HEADERS, got %s", fr.Type())
	}
	streamID := fr.Stream()

	// give writeLoop a moment to record the assigned stream id before
	// cancelling; cancelStream is a no-op until it does.
	time.Sleep(5 * time.Millisecond)

	// drop the request before the server ever answers.
	if err := body.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}

	select {
	case <-future.Done():
		if _, err := future.Wait(); err != ErrRequestCanceled {
			t.Fatalf("expected ErrRequestCanceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the future to resolve after Close")
	}

	fr, err = br.next()
	if err != nil {
		t.Fatalf("reading RST_STREAM: %s", err)
	}
	if fr.Type() != FrameResetStream {
		t.Fatalf("expected RST_STREAM, got %s", fr.Type())
	}
	if fr.Stream() != streamID {
		t.Fatalf("RST_STREAM on stream %d, expected %d", fr.Stream(), streamID)
	}
	if code := fr.Body().(*RstStream).Code(); code != StreamCanceled {
		t.Fatalf("expected CANCEL, got %s", code)
	}
}

// TestContinuationViolationSendsGoAway crafts a HEADERS frame without
// END_HEADERS and follows it with a PING instead of the required
// CONTINUATION, which must be rejected as a connection error (GOAWAY),
// per RFC 7540 section 6.10.
func TestContinuationViolationSendsGoAway(t *testing.T) {
	s := NewServer(func(ctx *fasthttp.RequestCtx) {}, ServerOpts{})

	nc, ln := dialInmemory(t, s)
	defer nc.Close()
	defer ln.Close()

	fr := AcquireFrameHeader()
	fr.SetStream(1)

	h := AcquireFrame(FrameHeaders).(*Headers)
	fr.SetBody(h)

	hf := AcquireHeaderField()
	hf.SetBytes(StringMethod, []byte("GET"))
	nc.enc.AppendHeaderField(h, hf, true)
	ReleaseHeaderField(hf)

	if _, err := fr.WriteTo(nc.bw); err != nil {
		t.Fatalf("write headers: %s", err)
	}
	if err := nc.bw.Flush(); err != nil {
		t.Fatalf("flush: %s", err)
	}
	ReleaseFrameHeader(fr)

	pingFr := AcquireFrameHeader()
	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetCurrentTime()
	pingFr.SetBody(ping)

	if _, err := pingFr.WriteTo(nc.bw); err != nil {
		t.Fatalf("write ping: %s", err)
	}
	if err := nc.bw.Flush(); err != nil {
		t.Fatalf("flush: %s", err)
	}
	ReleaseFrameHeader(pingFr)

	deadline := time.After(2 * time.Second)
	for !nc.GoAwayReceived() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for GOAWAY")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
