package http2

import (
	"sync"
)

// FrameType is the 8-bit type field of a frame header.
//
// https://tools.ietf.org/html/rfc7540#section-4.1
type FrameType uint8

func (ft FrameType) String() string {
	switch ft {
	case FrameData:
		return "Data"
	case FrameHeaders:
		return "Headers"
	case FramePriority:
		return "Priority"
	case FrameResetStream:
		return "RstStream"
	case FrameSettings:
		return "Settings"
	case FramePushPromise:
		return "PushPromise"
	case FramePing:
		return "Ping"
	case FrameGoAway:
		return "GoAway"
	case FrameWindowUpdate:
		return "WindowUpdate"
	case FrameContinuation:
		return "Continuation"
	}

	return "Unknown"
}

// FrameFlags is the 8-bit flags field of a frame header. Flags are
// frame-type specific; see the per-type constants declared alongside
// each Frame implementation.
type FrameFlags uint8

// Has reports whether f carries flag.
func (f FrameFlags) Has(flag FrameFlags) bool {
	return f&flag == flag
}

// Add returns f with flag set.
func (f FrameFlags) Add(flag FrameFlags) FrameFlags {
	return f | flag
}

// Frame is the payload-level behavior every frame type implements:
// codec (Deserialize/Serialize against the already-parsed FrameHeader)
// plus pool lifecycle (Reset). FrameHeader.Body() returns one of these,
// type-asserted by callers against the concrete type indicated by
// Type().
type Frame interface {
	Type() FrameType
	Reset()
	Deserialize(fr *FrameHeader) error
	Serialize(fr *FrameHeader)
}

var framePools = [...]*sync.Pool{
	FrameData:         {New: func() interface{} { return &Data{} }},
	FrameHeaders:      {New: func() interface{} { return &Headers{} }},
	FramePriority:     {New: func() interface{} { return &Priority{} }},
	FrameResetStream:  {New: func() interface{} { return &RstStream{} }},
	FrameSettings:     {New: func() interface{} { st := &Settings{}; st.Reset(); return st }},
	FramePushPromise:  {New: func() interface{} { return &PushPromise{} }},
	FramePing:         {New: func() interface{} { return &Ping{} }},
	FrameGoAway:       {New: func() interface{} { return &GoAway{} }},
	FrameWindowUpdate: {New: func() interface{} { return &WindowUpdate{} }},
	FrameContinuation: {New: func() interface{} { return &Continuation{} }},
}

// AcquireFrame returns a pooled Frame body of the given type.
//
// Frame types above FrameContinuation are not recognized by this
// implementation; callers reach this only after FrameHeader has
// already rejected such a type with ErrUnknownFrameType.
func AcquireFrame(kind FrameType) Frame {
	if int(kind) >= len(framePools) {
		return nil
	}

	return framePools[kind].Get().(Frame)
}

// ReleaseFrame resets fr and returns it to its type's pool.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}

	fr.Reset()

	kind := fr.Type()
	if int(kind) < len(framePools) {
		framePools[kind].Put(fr)
	}
}
