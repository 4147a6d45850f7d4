package http2

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// HPACK wraps the real HPACK codec (golang.org/x/net/http2/hpack) with
// the header-field-at-a-time interface the connection engines use:
// AppendHeader/AppendHeaderField to encode one field onto a frame's
// header block, Next to pull one decoded field at a time out of
// (possibly CONTINUATION-fragmented) bytes received from the peer.
//
// An encoder and a decoder each keep their own dynamic table, as RFC
// 7541 requires: one HPACK instance encodes this endpoint's outbound
// headers, a second decodes the peer's inbound ones.
type HPACK struct {
	enc    *hpack.Encoder
	encBuf bytes.Buffer

	dec     *hpack.Decoder
	pending []HeaderField
}

// AcquireHPACK returns a new HPACK codec with the default dynamic
// table size. There's no pool here, unlike most other types in this
// package: an HPACK instance is stateful for the lifetime of a single
// connection (its dynamic table), so reuse across connections would be
// a correctness bug, not just a missed optimization.
func AcquireHPACK() *HPACK {
	hp := &HPACK{}
	hp.enc = hpack.NewEncoder(&hp.encBuf)
	hp.dec = hpack.NewDecoder(defaultHeaderTableSize, nil)
	hp.dec.SetEmitFunc(func(f hpack.HeaderField) {
		hf := HeaderField{}
		hf.SetKey(f.Name)
		hf.SetValue(f.Value)
		hf.sensible = f.Sensitive
		hp.pending = append(hp.pending, hf)
	})

	return hp
}

// ReleaseHPACK is a no-op kept for symmetry with the rest of the
// package's Acquire/Release pairs; see AcquireHPACK for why HPACK
// instances aren't pooled.
func ReleaseHPACK(*HPACK) {}

// SetMaxTableSize resizes both the encoder's and the decoder's view of
// the dynamic table, driven by a SETTINGS_HEADER_TABLE_SIZE exchange.
func (hp *HPACK) SetMaxTableSize(size int) {
	hp.enc.SetMaxDynamicTableSize(uint32(size))
	hp.dec.SetMaxDynamicTableSize(uint32(size))
}

// AppendHeader HPACK-encodes hf and appends the result to dst,
// returning the extended slice. store indicates whether the field may
// be added to the dynamic table; fields that must never be indexed
// (e.g. values the caller has marked sensitive) are encoded as
// never-indexed literals regardless of store.
func (hp *HPACK) AppendHeader(dst []byte, hf *HeaderField, store bool) []byte {
	hp.encBuf.Reset()

	_ = hp.enc.WriteField(hpack.HeaderField{
		Name:      hf.Key(),
		Value:     hf.Value(),
		Sensitive: hf.IsSensible() || !store,
	})

	return append(dst, hp.encBuf.Bytes()...)
}

// AppendHeaderField is AppendHeader specialized for Headers frames,
// used by the client connection engine to build an outbound HEADERS
// block field by field.
func (hp *HPACK) AppendHeaderField(dst *Headers, hf *HeaderField, store bool) {
	dst.rawHeaders = hp.AppendHeader(dst.rawHeaders, hf, store)
}

// Next decodes one header field out of b into hf, feeding b to the
// decoder when its field queue is empty. b may be one complete header
// block, or successive fragments handed over frame by frame (HEADERS,
// then zero or more CONTINUATION) — the decoder itself buffers an
// incomplete field across calls, exactly as RFC 7541 requires, so
// callers don't need to track partial state themselves.
//
// The returned slice is non-empty as long as more decoded fields are
// queued, so `for len(b) > 0 { b, err = dec.Next(hf, b) }` drains
// every field a Write produced before asking for more bytes.
func (hp *HPACK) Next(hf *HeaderField, b []byte) ([]byte, error) {
	if len(hp.pending) == 0 {
		if len(b) > 0 {
			if _, err := hp.dec.Write(b); err != nil {
				return nil, NewGoAwayError(CompressionError, err.Error())
			}
		}

		if len(hp.pending) == 0 {
			return nil, ErrUnexpectedSize
		}
	}

	f := hp.pending[0]
	hp.pending = hp.pending[1:]
	f.CopyTo(hf)

	if len(hp.pending) > 0 {
		return moreFieldsPending, nil
	}

	return nil, nil
}

// moreFieldsPending is a non-empty sentinel slice: its contents are
// never read, its only job is to keep `for len(b) > 0` loops iterating
// while HPACK.Next still has buffered fields to hand back.
var moreFieldsPending = []byte{0}
