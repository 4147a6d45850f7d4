package http2

import (
	"errors"
	"fmt"
)

// ErrorCode is a wire-level HTTP/2 error code.
//
// https://tools.ietf.org/html/rfc7540#section-7
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	StreamCanceled       ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectionError      ErrorCode = 0xa
	EnhanceYourCalm      ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11Required       ErrorCode = 0xd
)

var errorCodeNames = [...]string{
	NoError:              "NO_ERROR",
	ProtocolError:        "PROTOCOL_ERROR",
	InternalError:        "INTERNAL_ERROR",
	FlowControlError:     "FLOW_CONTROL_ERROR",
	SettingsTimeoutError: "SETTINGS_TIMEOUT",
	StreamClosedError:    "STREAM_CLOSED",
	FrameSizeError:       "FRAME_SIZE_ERROR",
	RefusedStreamError:   "REFUSED_STREAM",
	StreamCanceled:       "CANCEL",
	CompressionError:     "COMPRESSION_ERROR",
	ConnectionError:      "CONNECT_ERROR",
	EnhanceYourCalm:      "ENHANCE_YOUR_CALM",
	InadequateSecurity:   "INADEQUATE_SECURITY",
	HTTP11Required:       "HTTP_1_1_REQUIRED",
}

func (ec ErrorCode) String() string {
	if int(ec) < len(errorCodeNames) && errorCodeNames[ec] != "" {
		return errorCodeNames[ec]
	}

	return fmt.Sprintf("UNKNOWN_ERROR(0x%x)", uint32(ec))
}

// Error carries an ErrorCode plus the frame the caller should emit to
// surface it on the wire: a GOAWAY when frameType is FrameGoAway (the
// whole connection is in violation), a RST_STREAM when frameType is
// FrameResetStream (only the one stream is).
type Error struct {
	frameType FrameType
	code      ErrorCode
	message   string
}

// NewError builds a local-only Error (no wire frame implied); used for
// errors surfaced straight to the caller without touching the stream.
func NewError(code ErrorCode, message string) error {
	return Error{code: code, message: message}
}

// NewGoAwayError builds an Error that the connection-level handler
// must translate into a GOAWAY frame, closing the connection.
func NewGoAwayError(code ErrorCode, message string) error {
	return Error{frameType: FrameGoAway, code: code, message: message}
}

// NewResetStreamError builds an Error that the connection-level
// handler must translate into a RST_STREAM frame on the offending
// stream; the connection survives.
func NewResetStreamError(code ErrorCode, message string) error {
	return Error{frameType: FrameResetStream, code: code, message: message}
}

func (e Error) Error() string {
	if e.message == "" {
		return e.code.String()
	}

	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Code returns the wire error code carried by e.
func (e Error) Code() ErrorCode {
	return e.code
}

var (
	ErrUnknownFrameType = errors.New("unknown frame type")
	ErrMissingBytes     = errors.New("frame payload is missing required bytes")
	ErrPayloadExceeds   = errors.New("frame payload exceeds the negotiated maximum size")
	ErrBadPreface       = errors.New("bad preface")
	// ErrUnexpectedSize is returned by the HPACK decoder when a header
	// block fragment ends mid-field; the decoder keeps the partial bytes
	// itself, so the caller passes it the next fragment (the
	// CONTINUATION carrying the rest) when it arrives.
	ErrUnexpectedSize = errors.New("header block fragment ended mid-field")
	// ErrAlreadyClosed is returned by StartRequest when the
	// connection has already been closed locally.
	ErrAlreadyClosed = errors.New("connection already closed")
	// ErrRefusedStream is returned by StartRequest once the connection
	// has seen a GOAWAY: per RFC 7540 section 6.8, no new stream may be
	// opened past the announced last-stream-id, so new requests fail
	// fast instead of being written onto a connection the peer is
	// already tearing down.
	ErrRefusedStream = errors.New("connection received a goaway, refusing new stream")
	// ErrRequestCanceled resolves a ResponseFuture when its BodyStream
	// was closed before the response (or its headers) arrived.
	ErrRequestCanceled = errors.New("request canceled before a response arrived")
)
