package http2

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serveInmemory(s *Server, ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			break
		}

		go func() { _ = s.ServeConn(c) }()
	}
}

func dialInmemory(t *testing.T, s *Server) (*Conn, net.Listener) {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	go serveInmemory(s, ln)

	c, err := ln.Dial()
	if err != nil {
		t.Fatalf("dial: %s", err)
	}

	nc := NewConn(c, ConnOpts{})
	if err := nc.Handshake(); err != nil {
		t.Fatalf("handshake: %s", err)
	}

	return nc, ln
}

func TestServerRoundTrip(t *testing.T) {
	s := NewServer(func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set("X-Served-By", "h2core")
		io.WriteString(ctx, "hello world")
	}, ServerOpts{})

	c, ln := dialInmemory(t, s)
	defer c.Close()
	defer ln.Close()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI("https://localhost/hello")

	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(res)

	ctx := AcquireCtx(req, res)
	c.Write(ctx)

	select {
	case err := <-ctx.Err:
		if err != nil {
			t.Fatalf("request failed: %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	if string(res.Body()) != "hello world" {
		t.Fatalf("unexpected body: %q", res.Body())
	}
	if string(res.Header.Peek("X-Served-By")) != "h2core" {
		t.Fatalf("unexpected header: %q", res.Header.Peek("X-Served-By"))
	}
}

func TestServerConcurrentStreams(t *testing.T) {
	s := NewServer(func(ctx *fasthttp.RequestCtx) {
		io.WriteString(ctx, string(ctx.Path()))
	}, ServerOpts{})

	c, ln := dialInmemory(t, s)
	defer c.Close()
	defer ln.Close()

	const n = 8
	ctxs := make([]*Ctx, n)

	for i := 0; i < n; i++ {
		req := fasthttp.AcquireRequest()
		req.SetRequestURI("https://localhost/stream")

		res := fasthttp.AcquireResponse()

		ctxs[i] = AcquireCtx(req, res)
		c.Write(ctxs[i])
	}

	for i, rc := range ctxs {
		select {
		case err := <-rc.Err:
			if err != nil {
				t.Fatalf("stream %d failed: %s", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("stream %d timed out", i)
		}

		if string(rc.Response.Body()) != "/stream" {
			t.Fatalf("stream %d: unexpected body %q", i, rc.Response.Body())
		}

		fasthttp.ReleaseRequest(rc.Request)
		fasthttp.ReleaseResponse(rc.Response)
	}
}
