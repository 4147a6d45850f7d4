package http2

import (
	"bufio"
	"net"
	"testing"

	"github.com/valyala/fasthttp"
)

// pipeConn gives writeRequest somewhere to write without needing a real
// socket or a peer that understands HTTP/2.
func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()

	c := NewConn(local, ConnOpts{})

	return c, remote
}

func TestWriteRequestHeadersOnly(t *testing.T) {
	c, remote := pipeConn(t)
	defer remote.Close()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI("https://example.com/foo/bar")
	req.Header.SetMethod("GET")

	done := make(chan struct{})
	var id uint32
	var err error
	go func() {
		id, err = c.writeRequest(req)
		close(done)
	}()

	br := bufio.NewReader(remote)
	fr, rerr := ReadFrameFrom(br)
	<-done

	if err != nil {
		t.Fatalf("writeRequest: %s", err)
	}
	if id != 1 {
		t.Fatalf("expected first stream id 1, got %d", id)
	}
	if rerr != nil {
		t.Fatalf("reading frame back: %s", rerr)
	}
	if fr.Type() != FrameHeaders {
		t.Fatalf("expected a HEADERS frame, got %s", fr.Type())
	}
	if fr.Stream() != 1 {
		t.Fatalf("expected stream 1, got %d", fr.Stream())
	}

	h := fr.Body().(*Headers)
	if !h.EndHeaders() {
		t.Fatal("expected END_HEADERS to be set for a headers-only request")
	}
	if !h.EndStream() {
		t.Fatal("expected END_STREAM to be set for a bodyless request")
	}
}

func TestWriteRequestStreamIDsIncrement(t *testing.T) {
	c, remote := pipeConn(t)
	defer remote.Close()

	go func() {
		br := bufio.NewReader(remote)
		for i := 0; i < 3; i++ {
			if _, err := ReadFrameFrom(br); err != nil {
				return
			}
		}
	}()

	for i, want := range []uint32{1, 3, 5} {
		req := fasthttp.AcquireRequest()
		req.SetRequestURI("https://example.com/")

		id, err := c.writeRequest(req)
		fasthttp.ReleaseRequest(req)
		if err != nil {
			t.Fatalf("request %d: %s", i, err)
		}
		if id != want {
			t.Fatalf("request %d: got stream id %d, expected %d", i, id, want)
		}
	}
}
