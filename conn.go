package http2

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

// ConnOpts defines the connection options.
type ConnOpts struct {
	// PingInterval defines the interval in which the client will ping the server.
	//
	// An interval of 0 will make the library to use DefaultPingInterval. Because ping intervals can't be disabled
	PingInterval time.Duration
	// DisablePingChecking ...
	DisablePingChecking bool
	// OnDisconnect is a callback that fires when the Conn disconnects.
	OnDisconnect func(c *Conn)
	// OnRTT, if set, is called after every PING round trip completes
	// with the measured latency.
	OnRTT func(time.Duration)
	// EnablePush opts this connection into accepting server-initiated
	// PUSH_PROMISE frames. Disabled by default: per spec.md's
	// Non-goals, push is accepted only when explicitly requested.
	EnablePush bool
	// OnPush, if set and EnablePush is true, is called once a pushed
	// stream's promised headers have been decoded. errc closes once
	// the pushed response finishes (or fails).
	OnPush func(streamID uint32, res *fasthttp.Response, errc <-chan error)
}

// Handshake performs an HTTP/2 handshake. That means, it will send
// the preface if `preface` is true, send a settings frame and a
// window update frame (for the connection's window).
func Handshake(preface bool, bw *bufio.Writer, st *Settings, maxWin int32) error {
	if preface {
		err := WritePreface(bw)
		if err != nil {
			return err
		}
	}

	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	// write the settings
	st2 := &Settings{}
	st.CopyTo(st2)

	fr.SetBody(st2)

	_, err := fr.WriteTo(bw)
	if err == nil {
		// then send a window update
		fr = AcquireFrameHeader()
		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(int(maxWin))

		fr.SetBody(wu)

		_, err = fr.WriteTo(bw)
		if err == nil {
			err = bw.Flush()
		}
	}

	return err
}

// Conn represents a raw HTTP/2 connection over TLS + TCP.
type Conn struct {
	c net.Conn

	br *bufio.Reader
	bw *bufio.Writer

	enc *HPACK
	dec *HPACK

	nextID uint32

	serverWindow       flowWindow
	serverStreamWindow int32

	maxWindow     int32
	currentWindow int32

	openStreams int32

	current Settings
	serverS Settings

	reqQueued sync.Map

	in  chan *Ctx
	out chan *FrameHeader

	pingInterval time.Duration

	unacks      int
	disableAcks bool

	lastErr      error
	onDisconnect func(*Conn)
	onRTT        func(time.Duration)
	onPush       func(uint32, *fasthttp.Response, <-chan error)

	closed uint64

	// goawayReceived and lastGoAwayStream track the peer's GOAWAY, per
	// spec.md section 7: once set, StartRequest fails fast with
	// ErrRefusedStream instead of opening a stream the peer is already
	// refusing to process.
	goawayReceived   uint32
	lastGoAwayStream uint32
}

// NewConn returns a new HTTP/2 connection.
// To start using the connection you need to call Handshake.
func NewConn(c net.Conn, opts ConnOpts) *Conn {
	nc := &Conn{
		c:             c,
		br:            bufio.NewReaderSize(c, 4096),
		bw:            bufio.NewWriterSize(c, defaultMaxFrameSize),
		enc:           AcquireHPACK(),
		dec:           AcquireHPACK(),
		nextID:        1,
		maxWindow:     1 << 20,
		currentWindow: 1 << 20,
		in:            make(chan *Ctx, 128),
		out:           make(chan *FrameHeader, 128),
		pingInterval:  opts.PingInterval,
		disableAcks:   opts.DisablePingChecking,
		onDisconnect:  opts.OnDisconnect,
		onRTT:         opts.OnRTT,
		onPush:        opts.OnPush,
	}

	nc.serverS.Reset()
	nc.current.SetMaxWindowSize(1 << 20)
	nc.current.SetPush(opts.EnablePush)

	return nc
}

// Dialer allows to create HTTP/2 connections by specifying an address and tls configuration.
type Dialer struct {
	// Addr is the server's address in the form: `host:port`.
	Addr string

	// TLSConfig is the tls configuration.
	//
	// If TLSConfig is nil, a default one will be defined on the Dial call.
	TLSConfig *tls.Config

	// PingInterval defines the interval in which the client will ping the server.
	//
	// An interval of 0 will make the library to use DefaultPingInterval. Because ping intervals can't be disabled.
	PingInterval time.Duration
}

func (d *Dialer) tryDial() (net.Conn, error) {
	if d.TLSConfig == nil || !func() bool {
		for _, proto := range d.TLSConfig.NextProtos {
			if proto == "h2" {
				return true
			}
		}

		return false
	}() {
		configureDialer(d)
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", d.Addr)
	if err != nil {
		return nil, err
	}

	c, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(c, d.TLSConfig)

	if err := tlsConn.Handshake(); err != nil {
		_ = c.Close()
		return nil, err
	}

	if tlsConn.ConnectionState().NegotiatedProtocol != "h2" {
		_ = c.Close()
		return nil, ErrServerSupport
	}

	return tlsConn, nil
}

// Dial creates an HTTP/2 connection or returns an error.
//
// An expected error is ErrServerSupport.
func (d *Dialer) Dial(opts ConnOpts) (*Conn, error) {
	c, err := d.tryDial()
	if err != nil {
		return nil, err
	}

	if opts.PingInterval == 0 {
		opts.PingInterval = d.PingInterval
	}

	nc := NewConn(c, opts)

	err = nc.Handshake()
	return nc, err
}

// SetOnDisconnect sets the callback that will fire when the HTTP/2 connection is closed.
func (c *Conn) SetOnDisconnect(cb func(*Conn)) {
	c.onDisconnect = cb
}

// LastErr returns the last registered error in case the connection was closed by the server.
func (c *Conn) LastErr() error {
	return c.lastErr
}

// Handshake will perform the necessary handshake to establish the connection
// with the server. If an error is returned you can assume the TCP connection has been closed.
func (c *Conn) Handshake() error {
	var err error

	if err = Handshake(true, c.bw, &c.current, c.maxWindow-65535); err != nil {
		_ = c.c.Close()
		return err
	}

	var fr *FrameHeader

	if fr, err = ReadFrameFrom(c.br); err == nil && fr.Type() != FrameSettings {
		_ = c.c.Close()
		return fmt.Errorf("unexpected frame, expected settings, got %s", fr.Type())
	} else if err == nil {
		st := fr.Body().(*Settings)
		if !st.IsAck() {
			st.CopyTo(&c.serverS)

			c.serverStreamWindow += int32(c.serverS.MaxWindowSize())
			if st.HeaderTableSize() <= defaultHeaderTableSize {
				c.enc.SetMaxTableSize(int(st.HeaderTableSize()))
			}

			// reply back
			fr = AcquireFrameHeader()

			stRes := AcquireFrame(FrameSettings).(*Settings)
			stRes.SetAck(true)

			fr.SetBody(stRes)

			if _, err = fr.WriteTo(c.bw); err == nil {
				err = c.bw.Flush()
			}

			ReleaseFrameHeader(fr)
		}
	}

	if err != nil {
		_ = c.Close()
	} else {
		ReleaseFrameHeader(fr)

		go c.writeLoop()
		go c.readLoop()
	}

	return err
}

// CanOpenStream returns whether the client will be able to open a new stream or not.
func (c *Conn) CanOpenStream() bool {
	return atomic.LoadInt32(&c.openStreams) < int32(c.serverS.maxStreams)
}

// Closed indicates whether the connection is closed or not.
func (c *Conn) Closed() bool {
	return atomic.LoadUint64(&c.closed) == 1
}

// Close closes the connection gracefully, sending a GoAway message
// and then closing the underlying TCP connection.
func (c *Conn) Close() error {
	if !atomic.CompareAndSwapUint64(&c.closed, 0, 1) {
		return io.EOF
	}

	close(c.in)

	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetStream(0)
	ga.SetCode(NoError)

	fr.SetBody(ga)

	_, err := fr.WriteTo(c.bw)
	if err == nil {
		err = c.bw.Flush()
	}

	_ = c.c.Close()

	if c.onDisconnect != nil {
		c.onDisconnect(c)
	}

	return err
}

// Write queues the request to be sent to the server.
//
// Check if `c` has been previously closed before accessing this function.
func (c *Conn) Write(r *Ctx) {
	c.in <- r
}

// GoAwayReceived reports whether this connection has seen a GOAWAY
// from the peer. Once true, StartRequest refuses new streams.
func (c *Conn) GoAwayReceived() bool {
	return atomic.LoadUint32(&c.goawayReceived) == 1
}

// LastGoAwayStream returns the last-processed-stream-id carried by the
// most recent GOAWAY received, or 0 if none has been seen.
func (c *Conn) LastGoAwayStream() uint32 {
	return atomic.LoadUint32(&c.lastGoAwayStream)
}

// StartRequest queues req and returns immediately with a ResponseFuture
// that resolves once response headers arrive, and a BodyStream the
// caller reads the body from independently. Closing the BodyStream
// before it's drained cancels the stream with RST_STREAM(CANCEL). This
// is spec.md section 4.6's `start_request`, an alternative to the
// blocking Write/Ctx.Err path for callers that want to react to
// headers without waiting for the whole body.
func (c *Conn) StartRequest(req *fasthttp.Request) (*ResponseFuture, *BodyStream, error) {
	if c.Closed() {
		return nil, nil, ErrAlreadyClosed
	}

	if c.GoAwayReceived() {
		return nil, nil, ErrRefusedStream
	}

	res := fasthttp.AcquireResponse()
	ctx := AcquireCtx(req, res)
	ctx.future = newResponseFuture(res)
	ctx.body = newBodyStream(func() { c.cancelStream(ctx) })

	c.Write(ctx)

	return ctx.future, ctx.body, nil
}

// cancelStream emits RST_STREAM(CANCEL) for a request started through
// StartRequest whose BodyStream was closed early. If the stream id
// hasn't been assigned yet (the request is still queued on c.in), the
// peer has never seen it, so there's nothing to reset on the wire.
func (c *Conn) cancelStream(ctx *Ctx) {
	if ctx.future != nil {
		ctx.future.resolve(ErrRequestCanceled)
	}

	id := ctx.StreamID()
	if id == 0 {
		return
	}

	if _, ok := c.reqQueued.Load(id); !ok {
		return
	}

	fr := AcquireFrameHeader()
	fr.SetStream(id)

	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(StreamCanceled)
	fr.SetBody(rst)

	select {
	case c.out <- fr:
	default:
		ReleaseFrameHeader(fr)
	}
}

type WriteError struct {
	err error
}

func (we WriteError) Error() string {
	return fmt.Sprintf("writing error: %s", we.err)
}

func (we WriteError) Unwrap() error {
	return we.err
}

func (we WriteError) Is(target error) bool {
	return errors.Is(we.err, target)
}

func (we WriteError) As(target interface{}) bool {
	return errors.As(we.err, target)
}

func (c *Conn) writeLoop() {
	defer func() { _ = c.Close() }()

	if c.pingInterval <= 0 {
		c.pingInterval = DefaultPingInterval
	}

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	var lastErr error

loop:
	for {
		select {
		case r, ok := <-c.in: // sending requests
			if !ok {
				break loop
			}

			req := r.Request

			uid, err := c.writeRequest(req)
			if err != nil {
				r.Err <- err

				if errors.Is(err, ErrNotAvailableStreams) {
					continue
				}

				lastErr = WriteError{err}

				break loop
			}

			r.SetStream(uid)
			c.reqQueued.Store(uid, r)
		case fr := <-c.out: // generic output
			if _, err := fr.WriteTo(c.bw); err == nil {
				if err = c.bw.Flush(); err != nil {
					lastErr = WriteError{err}
					break loop
				}
			} else {
				lastErr = WriteError{err}
				break loop
			}

			ReleaseFrameHeader(fr)
		case <-ticker.C: // ping
			if err := c.writePing(); err != nil {
				lastErr = WriteError{err}
				break loop
			}
		}

		if !c.disableAcks && c.unacks >= 3 {
			lastErr = ErrTimeout
			break loop
		}
	}

	if lastErr == nil {
		lastErr = io.EOF
	}

	// send eofs to pending requests
	c.reqQueued.Range(func(_, v interface{}) bool {
		r := v.(*Ctx)
		r.Err <- lastErr
		return true
	})
}

func (c *Conn) finish(r *Ctx, stream uint32, err error) {
	atomic.AddInt32(&c.openStreams, -1)

	if r.future != nil {
		r.future.resolve(err)
	}

	r.Err <- err

	c.reqQueued.Delete(stream)

	close(r.Err)
}

func (c *Conn) readLoop() {
	defer func() { _ = c.Close() }()

	for {
		fr, err := c.readNext()
		if err != nil {
			c.lastErr = err
			break
		}

		// TODO: panic otherwise?
		if ri, ok := c.reqQueued.Load(fr.Stream()); ok {
			r := ri.(*Ctx)

			err := c.readStream(fr, r)
			if err == nil {
				if fr.Flags().Has(FlagEndStream) {
					if r.body != nil {
						r.body.closeWrite(nil)
					}

					c.finish(r, fr.Stream(), nil)
				}
			} else {
				if r.body != nil {
					r.body.closeWrite(err)
				}

				c.finish(r, fr.Stream(), err)

				fmt.Fprintf(os.Stderr, "%s. payload=%v\n", err, fr.payload)

				if e, ok := err.(Error); ok && e.Code() == FlowControlError {
					break
				}
			}
		}

		ReleaseFrameHeader(fr)
	}
}

func (c *Conn) writeRequest(req *fasthttp.Request) (uint32, error) {
	if !c.CanOpenStream() {
		return 0, ErrNotAvailableStreams
	}

	hasBody := len(req.Body()) != 0

	enc := c.enc

	id := c.nextID
	c.nextID += 2

	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	fr.SetStream(id)

	h := AcquireFrame(FrameHeaders).(*Headers)
	fr.SetBody(h)

	hf := AcquireHeaderField()

	hf.SetBytes(StringAuthority, req.URI().Host())
	enc.AppendHeaderField(h, hf, true)

	hf.SetBytes(StringMethod, req.Header.Method())
	enc.AppendHeaderField(h, hf, true)

	hf.SetBytes(StringPath, req.URI().RequestURI())
	enc.AppendHeaderField(h, hf, true)

	hf.SetBytes(StringScheme, req.URI().Scheme())
	enc.AppendHeaderField(h, hf, true)

	hf.SetBytes(StringUserAgent, req.Header.UserAgent())
	enc.AppendHeaderField(h, hf, true)

	req.Header.VisitAll(func(k, v []byte) {
		if bytes.EqualFold(k, StringUserAgent) {
			return
		}

		hf.SetBytes(ToLower(k), v)
		enc.AppendHeaderField(h, hf, false)
	})

	h.SetPadding(false)
	h.SetEndStream(!hasBody)
	h.SetEndHeaders(true)

	_, err := fr.WriteTo(c.bw)
	if err == nil && hasBody {
		// release headers bc it's going to get replaced by the data frame
		ReleaseFrame(h)

		err = writeData(c.bw, fr, req.Body())
	}

	if err == nil {
		err = c.bw.Flush()
		if err == nil {
			atomic.AddInt32(&c.openStreams, 1)
		}
	}

	if err != nil {
		c.lastErr = err
	}

	ReleaseHeaderField(hf)

	return id, err
}

func writeData(bw *bufio.Writer, fh *FrameHeader, body []byte) (err error) {
	step := 1 << 14

	data := AcquireFrame(FrameData).(*Data)
	fh.SetBody(data)

	for i := 0; err == nil && i < len(body); i += step {
		if i+step >= len(body) {
			step = len(body) - i
		}

		data.SetEndStream(i+step == len(body))
		data.SetPadding(false)
		data.SetData(body[i : step+i])

		_, err = fh.WriteTo(bw)
	}

	return err
}

func (c *Conn) readNext() (fr *FrameHeader, err error) {
	for err == nil {
		fr, err = ReadFrameFrom(c.br)
		if err != nil {
			if errors.Is(err, ErrUnknownFrameType) {
				err = nil
				continue
			}

			break
		}

		if fr.Type() == FramePushPromise {
			err = c.handlePushPromise(fr.Body().(*PushPromise))
			ReleaseFrameHeader(fr)
			continue
		}

		if fr.Stream() != 0 {
			break
		}

		switch fr.Type() {
		case FrameSettings:
			st := fr.Body().(*Settings)
			if !st.IsAck() { // if has ack, just ignore
				c.handleSettings(st)
			}
		case FrameWindowUpdate:
			win := int32(fr.Body().(*WindowUpdate).Increment())

			c.serverWindow.Add(int64(win))
		case FramePing:
			ping := fr.Body().(*Ping)
			if !ping.IsAck() {
				c.handlePing(ping)
			} else {
				c.unacks--
				if c.onRTT != nil {
					c.onRTT(time.Since(ping.SentAt()))
				}
			}
		case FrameGoAway:
			ga := fr.Body().(*GoAway)

			atomic.StoreUint32(&c.goawayReceived, 1)
			atomic.StoreUint32(&c.lastGoAwayStream, ga.Stream())

			err = ga
			_ = c.Close()
		}

		ReleaseFrameHeader(fr)
	}

	return
}

var ErrTimeout = errors.New("server is not replying to pings")

func (c *Conn) writePing() error {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetCurrentTime()

	fr.SetBody(ping)

	_, err := fr.WriteTo(c.bw)
	if err == nil {
		err = c.bw.Flush()
		if err == nil {
			c.unacks++
		}
	}

	return err
}

func (c *Conn) handleSettings(st *Settings) {
	st.CopyTo(&c.serverS)

	c.serverStreamWindow += int32(c.serverS.MaxWindowSize())
	c.enc.SetMaxTableSize(int(st.HeaderTableSize()))

	// reply back
	fr := AcquireFrameHeader()

	stRes := AcquireFrame(FrameSettings).(*Settings)
	stRes.SetAck(true)

	fr.SetBody(stRes)

	c.out <- fr
}

func (c *Conn) handlePing(ping *Ping) {
	// reply back
	fr := AcquireFrameHeader()

	ping.SetAck(true)

	fr.SetBody(ping)

	c.out <- fr
}

func (c *Conn) readStream(fr *FrameHeader, r *Ctx) (err error) {
	switch fr.Type() {
	case FrameResetStream:
		rst := fr.Body().(*RstStream)
		err = Error{frameType: FrameResetStream, code: rst.Code()}
	case FrameHeaders, FrameContinuation:
		h := fr.Body().(FrameWithHeaders)
		err = c.readHeader(h.Headers(), r.Response)

		if err == nil && r.future != nil && fr.Flags().Has(FlagEndHeaders) {
			r.future.resolve(nil)
		}
	case FrameData:
		c.currentWindow -= int32(fr.Len())
		currentWin := c.currentWindow

		c.serverWindow.Sub(int64(fr.Len()))

		data := fr.Body().(*Data)
		if data.Len() != 0 {
			if r.body != nil {
				err = r.body.write(data.Data())
			} else {
				r.Response.AppendBody(data.Data())
			}

			// let's send the window update
			c.updateWindow(fr.Stream(), fr.Len())
		}

		if currentWin < c.maxWindow/2 {
			nValue := c.maxWindow - currentWin

			c.currentWindow = c.maxWindow

			c.updateWindow(0, int(nValue))
		}
	}

	return
}

func (c *Conn) updateWindow(streamID uint32, size int) {
	fr := AcquireFrameHeader()

	fr.SetStream(streamID)

	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(size)

	fr.SetBody(wu)

	c.out <- fr
}

// handlePushPromise reacts to a server-initiated PUSH_PROMISE. Per
// spec.md's PUSH_PROMISE row, the client never requests push itself;
// it only accepts a promise when this connection's local SETTINGS
// advertised ENABLE_PUSH=1 (ConnOpts.EnablePush), otherwise it's a
// connection error. The promised stream is tracked the same way an
// outbound request is: inserted into reqQueued under its reserved id,
// so its later HEADERS/DATA frames are picked up by the ordinary
// readLoop dispatch above.
func (c *Conn) handlePushPromise(pp *PushPromise) error {
	if !c.current.Push() {
		return NewGoAwayError(ProtocolError, "push promise received with push disabled")
	}

	res := fasthttp.AcquireResponse()
	ctx := AcquireCtx(fasthttp.AcquireRequest(), res)
	ctx.SetStream(pp.Stream())

	// pp.Headers() carries the promised request's pseudo-headers
	// (method/path/scheme/authority), not a response; readHeader only
	// special-cases ":status", so the rest land verbatim on the
	// response's header set, which is enough for the observability
	// this minimal push path offers. CONTINUATION joining for pushed
	// streams isn't implemented, so a header block split across frames
	// decodes only as far as this first fragment goes.
	_ = c.readHeader(pp.Headers(), res)

	atomic.AddInt32(&c.openStreams, 1)
	c.reqQueued.Store(pp.Stream(), ctx)

	if c.onPush != nil {
		c.onPush(pp.Stream(), res, ctx.Err)
	}

	return nil
}

func (c *Conn) readHeader(b []byte, res *fasthttp.Response) error {
	var err error
	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	dec := c.dec

	for len(b) > 0 {
		b, err = dec.Next(hf, b)
		if err != nil {
			return err
		}

		if hf.IsPseudo() {
			if hf.KeyBytes()[1] == 's' { // status
				n, err := strconv.ParseInt(hf.Value(), 10, 64)
				if err != nil {
					return err
				}

				res.SetStatusCode(int(n))
				continue
			}
		}

		if bytes.Equal(hf.KeyBytes(), StringContentLength) {
			n, _ := strconv.Atoi(hf.Value())
			res.Header.SetContentLength(n)
		} else {
			res.Header.AddBytesKV(hf.KeyBytes(), hf.ValueBytes())
		}
	}

	return nil
}
