package http2

import (
	"io"
	"sync"

	"github.com/valyala/fasthttp"
)

// ResponseFuture resolves once a request's response headers have been
// received (or the stream failed before that happened); the response
// body is delivered separately through the paired BodyStream. This is
// the split spec.md section 4.6's `start_request` describes, letting a
// caller react to headers without blocking on the whole body.
type ResponseFuture struct {
	done     chan struct{}
	once     sync.Once
	response *fasthttp.Response
	err      error
}

func newResponseFuture(res *fasthttp.Response) *ResponseFuture {
	return &ResponseFuture{done: make(chan struct{}), response: res}
}

// resolve stores the outcome and wakes any waiter. Only the first call
// has any effect: once headers have resolved the future successfully,
// a later body error belongs to the BodyStream, not the future.
func (f *ResponseFuture) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Wait blocks until response headers arrive or the request fails, then
// returns the response (status and headers only — read Body through
// the BodyStream returned alongside this future) or the failure.
func (f *ResponseFuture) Wait() (*fasthttp.Response, error) {
	<-f.done
	return f.response, f.err
}

// Done returns a channel closed once the future resolves, for a
// select alongside other events (timeouts, cancellation).
func (f *ResponseFuture) Done() <-chan struct{} {
	return f.done
}

// BodyStream is the lazy, finite byte-chunk sequence spec.md section
// 4.6 describes: Read yields response DATA payloads in wire order and
// returns io.EOF once END_STREAM arrives. Closing it before the stream
// ends cancels the request with RST_STREAM(CANCEL).
type BodyStream struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	cancelOnce sync.Once
	onCancel   func()
}

func newBodyStream(onCancel func()) *BodyStream {
	pr, pw := io.Pipe()
	return &BodyStream{pr: pr, pw: pw, onCancel: onCancel}
}

// Read implements io.Reader, blocking for the next chunk of the
// response body.
func (b *BodyStream) Read(p []byte) (int, error) {
	return b.pr.Read(p)
}

// Close cancels the underlying request if it hasn't finished yet,
// emitting RST_STREAM(CANCEL), and unblocks any pending Read.
func (b *BodyStream) Close() error {
	b.cancelOnce.Do(func() {
		if b.onCancel != nil {
			b.onCancel()
		}
	})

	return b.pr.Close()
}

// write delivers one DATA payload to the reader side. Called only from
// the connection's single read loop.
func (b *BodyStream) write(p []byte) error {
	_, err := b.pw.Write(p)
	return err
}

// closeWrite ends the stream: nil signals a clean END_STREAM, anything
// else is surfaced to the reader as the error from Read.
func (b *BodyStream) closeWrite(err error) {
	_ = b.pw.CloseWithError(err)
}
