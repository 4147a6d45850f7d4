package http2

import (
	"net"

	"github.com/valyala/fasthttp"
)

// Ctx is the client-side envelope for one in-flight request: Conn.Write
// queues it to be encoded onto the wire, and the matching response
// (or error) arrives on Err once the stream closes.
type Ctx struct {
	c        net.Conn
	streamID uint32
	hp       *HPACK

	Request  *fasthttp.Request
	Response *fasthttp.Response
	Err      chan error

	// future and body are non-nil only when this Ctx was created by
	// StartRequest: future resolves on response headers instead of
	// waiting for the whole body, and body is where DATA payloads are
	// written instead of being buffered onto Response.
	future *ResponseFuture
	body   *BodyStream
}

// AcquireCtx returns a Ctx wired to req/res, ready to be handed to
// Conn.Write.
func AcquireCtx(req *fasthttp.Request, res *fasthttp.Response) *Ctx {
	return &Ctx{
		Request:  req,
		Response: res,
		Err:      make(chan error, 1),
	}
}

func (ctx *Ctx) SetHPACK(hp *HPACK) {
	ctx.hp = hp
}

func (ctx *Ctx) SetStream(sid uint32) {
	ctx.streamID = sid
}

func (ctx *Ctx) StreamID() uint32 {
	return ctx.streamID
}
