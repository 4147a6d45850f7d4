package http2

import (
	"bufio"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// ServerOpts configures a Server.
type ServerOpts struct {
	// MaxRequestTime bounds how long a single stream can stay open
	// before it's reset with StreamCanceled. Zero disables the limit.
	MaxRequestTime time.Duration
	// PingInterval is how often the server pings an idle connection.
	// Zero uses DefaultPingInterval.
	PingInterval time.Duration
	// MaxIdleTime closes a connection that hasn't completed a request
	// in this long. Zero disables the limit.
	MaxIdleTime time.Duration
	// MaxConcurrentStreams caps how many streams a client may have
	// open at once. Zero uses defaultConcurrentStreams.
	MaxConcurrentStreams uint32
	// Debug logs protocol-level events through Logger.
	Debug bool
	// Logger receives debug output when Debug is true. Defaults to
	// a logger writing to os.Stdout.
	Logger fasthttp.Logger
}

var defaultLogger = log.New(os.Stdout, "[HTTP/2] ", log.LstdFlags)

// Server serves HTTP/2 connections against a fasthttp.RequestHandler.
type Server struct {
	h    fasthttp.RequestHandler
	opts ServerOpts
}

// NewServer returns a Server dispatching completed requests to h.
func NewServer(h fasthttp.RequestHandler, opts ServerOpts) *Server {
	if opts.Logger == nil {
		opts.Logger = defaultLogger
	}
	if opts.MaxConcurrentStreams == 0 {
		opts.MaxConcurrentStreams = defaultConcurrentStreams
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = DefaultPingInterval
	}

	return &Server{h: h, opts: opts}
}

// ConfigureServer registers the server as fasthttp's ALPN handler for
// "h2", so a *fasthttp.Server also answers HTTP/2 over TLS.
func (s *Server) ConfigureServer(ss *fasthttp.Server) {
	s.h = ss.Handler
	ss.NextProto(H2TLSProto, func(c net.Conn) error {
		return s.ServeConn(c)
	})
}

// ListenAndServeTLS listens on addr and serves HTTP/2 connections
// negotiated via TLS ALPN.
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{H2TLSProto},
	}

	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return err
	}

	return s.Serve(ln)
}

var errUpgrade = errors.New("connection did not negotiate h2")

// Serve accepts connections from ln and serves each over HTTP/2. Plain
// (non-TLS) listeners are accepted as-is, on the assumption the caller
// already established this is an h2c connection; TLS listeners are
// checked for the "h2" ALPN protocol.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}

		if tlsConn, ok := c.(*tls.Conn); ok {
			if err := tlsConn.Handshake(); err != nil {
				_ = c.Close()
				continue
			}

			if tlsConn.ConnectionState().NegotiatedProtocol != H2TLSProto {
				_ = c.Close()
				s.opts.Logger.Printf("%s\n", errUpgrade)
				continue
			}
		}

		go func() {
			if err := s.ServeConn(c); err != nil && s.opts.Debug {
				s.opts.Logger.Printf("ServeConn: %s\n", err)
			}
		}()
	}
}

// ServeConn runs the HTTP/2 server engine over an already-accepted
// connection. It blocks until the connection closes.
func (s *Server) ServeConn(c net.Conn) error {
	defer func() { _ = c.Close() }()

	if !ReadPreface(c) {
		return ErrBadPreface
	}

	sc := &serverConn{
		c:        c,
		h:        s.h,
		br:       bufio.NewReaderSize(c, 4096),
		bw:       bufio.NewWriterSize(c, defaultMaxFrameSize*10),
		enc:      AcquireHPACK(),
		dec:      AcquireHPACK(),
		writer:   make(chan *FrameHeader, 128),
		control:  make(chan *FrameHeader, 32),
		reader:   make(chan *FrameHeader, 128),
		stateReq: make(chan chan ConnectionStateSnapshot),
		done:     make(chan struct{}),

		maxRequestTime: s.opts.MaxRequestTime,
		pingInterval:   s.opts.PingInterval,
		maxIdleTime:    s.opts.MaxIdleTime,

		debug:  s.opts.Debug,
		logger: s.opts.Logger,
	}
	sc.mux = newMultiplexer(sc.control, sc.writer)

	sc.maxWindow = 1 << 20
	sc.currentWindow = sc.maxWindow

	sc.st.Reset()
	sc.st.SetMaxWindowSize(sc.maxWindow)
	sc.st.SetMaxConcurrentStreams(s.opts.MaxConcurrentStreams)

	if err := sc.Handshake(); err != nil {
		return err
	}

	return sc.Serve()
}
