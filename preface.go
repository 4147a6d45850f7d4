package http2

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"time"
)

// http2Preface is the connection preface every HTTP/2 connection must
// start with, client side, before any frame.
//
// https://tools.ietf.org/html/rfc7540#section-3.5
var http2Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// DefaultPingInterval is used when a ConnOpts/ServerOpts leaves
// PingInterval unset.
const DefaultPingInterval = 2 * time.Minute

// WritePreface writes the connection preface to bw and flushes it.
func WritePreface(bw *bufio.Writer) error {
	if _, err := bw.Write(http2Preface); err != nil {
		return err
	}

	return bw.Flush()
}

// ReadPreface reads and validates the connection preface off c, using
// io.ReadFull directly rather than a bufio.Reader: the caller wraps c
// in its own buffered reader right after this call, and any byte left
// sitting in a throwaway buffer here would be lost to that reader. A
// connection whose first byte is 0x16 is almost certainly raw TLS
// record data arriving on a plaintext listener, so that case gets its
// own quick rejection instead of a confusing parse error further down.
func ReadPreface(c net.Conn) bool {
	b := make([]byte, len(http2Preface))

	if _, err := io.ReadFull(c, b[:1]); err != nil {
		return false
	}

	if b[0] == 0x16 {
		return false
	}

	if _, err := io.ReadFull(c, b[1:]); err != nil {
		return false
	}

	return bytes.Equal(b, http2Preface)
}
