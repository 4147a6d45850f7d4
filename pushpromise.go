package http2

import (
	"github.com/dgrr-student/h2core/http2utils"
)

const FramePushPromise FrameType = 0x5

var (
	_ Frame            = &PushPromise{}
	_ FrameWithHeaders = &PushPromise{}
)

// PushPromise https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromise struct {
	pad    bool
	ended  bool
	stream uint32
	header []byte // header block fragment
}

func (pp *PushPromise) Type() FrameType {
	return FramePushPromise
}

// Stream returns the id reserved for the promised (pushed) stream, as
// carried in the PUSH_PROMISE payload — distinct from the associated
// stream id carried on the frame header.
func (pp *PushPromise) Stream() uint32 {
	return pp.stream
}

// EndHeaders reports whether this frame carries the full header block,
// or whether CONTINUATION frames are expected to follow.
func (pp *PushPromise) EndHeaders() bool {
	return pp.ended
}

// Headers returns the (possibly partial) header block fragment.
func (pp *PushPromise) Headers() []byte {
	return pp.header
}

func (pp *PushPromise) Reset() {
	pp.pad = false
	pp.ended = false
	pp.stream = 0
	pp.header = pp.header[:0]
}

func (pp *PushPromise) SetHeader(h []byte) {
	pp.header = append(pp.header[:0], h...)
}

func (pp *PushPromise) Write(b []byte) (int, error) {
	n := len(b)
	pp.header = append(pp.header, b...)
	return n, nil
}

func (pp *PushPromise) Deserialize(fr *FrameHeader) error {
	payload := fr.payload

	if fr.Flags().Has(FlagPadded) {
		payload = http2utils.CutPadding(payload, fr.Len())
	}

	if len(fr.payload) < 4 {
		return ErrMissingBytes
	}

	pp.stream = http2utils.BytesToUint32(payload) & (1<<31 - 1)
	pp.header = append(pp.header, payload[4:]...)
	pp.ended = fr.Flags().Has(FlagEndHeaders)

	return nil
}

func (pp *PushPromise) Serialize(fr *FrameHeader) {
	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], pp.stream)

	// if pp.pad {
	// 	fr.Flags().Add(FlagPadded)
	// 	// TODO: Write padding flag
	// }

	fr.payload = append(fr.payload, pp.header...)
	// TODO: write padding
}
