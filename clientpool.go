package http2

import (
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// connsPool keeps a small set of HTTP/2 connections open to one host,
// opening a new one lazily when every existing connection is out of
// spare stream capacity or has gone away.
type connsPool struct {
	d    *Dialer
	opts ConnOpts

	mu    sync.Mutex
	conns []*Conn
}

// Init prepares the pool for use. Dialing happens lazily on first use.
func (p *connsPool) Init() {
	p.conns = p.conns[:0]
}

func (p *connsPool) remove(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, cc := range p.conns {
		if cc == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return
		}
	}
}

func (p *connsPool) get() (*Conn, error) {
	p.mu.Lock()
	for _, c := range p.conns {
		// a connection that received a GOAWAY is still draining its
		// in-flight streams but must not be handed new requests; the
		// pool dials a fresh connection instead, which is the
		// reconnect-on-GOAWAY behavior spec.md section 7 assigns to
		// the layer above the core.
		if !c.Closed() && !c.GoAwayReceived() && c.CanOpenStream() {
			p.mu.Unlock()
			return c, nil
		}
	}
	p.mu.Unlock()

	opts := p.opts
	opts.OnDisconnect = func(c *Conn) {
		p.remove(c)
		if cb := p.opts.OnDisconnect; cb != nil {
			cb(c)
		}
	}

	c, err := p.d.Dial(opts)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.conns = append(p.conns, c)
	p.mu.Unlock()

	return c, nil
}

// Client multiplexes requests over a pool of HTTP/2 connections to a
// single host, re-dialing whenever every pooled connection is either
// saturated or has disconnected (including after a GOAWAY).
type Client struct {
	conns connsPool
	onRTT func(time.Duration)
}

func createClient(d *Dialer) *Client {
	cl := &Client{}
	cl.conns.d = d
	return cl
}

// Do implements fasthttp's HostClient transport hook: it borrows a
// pooled connection, queues req on it, and blocks for the response or
// the stream's error.
func (cl *Client) Do(req *fasthttp.Request, res *fasthttp.Response) error {
	cl.conns.opts.OnRTT = cl.onRTT

	c, err := cl.conns.get()
	if err != nil {
		return err
	}

	ctx := AcquireCtx(req, res)
	c.Write(ctx)

	return <-ctx.Err
}
