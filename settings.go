package http2

import (
	"github.com/dgrr-student/h2core/http2utils"
)

const FrameSettings FrameType = 0x4

var _ Frame = &Settings{}

// Settings parameter identifiers.
//
// https://tools.ietf.org/html/rfc7540#section-6.5.2
const (
	settingHeaderTableSize      uint16 = 0x1
	settingEnablePush           uint16 = 0x2
	settingMaxConcurrentStreams uint16 = 0x3
	settingInitialWindowSize    uint16 = 0x4
	settingMaxFrameSize         uint16 = 0x5
	settingMaxHeaderListSize    uint16 = 0x6
)

const (
	defaultHeaderTableSize   = 4096
	defaultConcurrentStreams = 100
	defaultWindowSize        = 1<<16 - 1
	defaultMaxFrameSize      = 1 << 14
)

// Settings is both the SETTINGS frame payload and the negotiated
// configuration a Conn/serverConn keeps for its peer: fields are
// humanized (not wire byte order). Serialize writes every parameter,
// whether or not it differs from the default; MAX_HEADER_LIST_SIZE is
// written only when it is nonzero.
type Settings struct {
	ack bool

	headerTableSize   uint32
	push              bool
	maxStreams        uint32
	windowSize        uint32
	frameSize         uint32
	maxHeaderListSize uint32
}

func (st *Settings) Type() FrameType {
	return FrameSettings
}

// Reset restores default values per RFC 7540 section 6.5.2.
func (st *Settings) Reset() {
	st.ack = false
	st.headerTableSize = defaultHeaderTableSize
	st.push = true
	st.maxStreams = defaultConcurrentStreams
	st.windowSize = defaultWindowSize
	st.frameSize = defaultMaxFrameSize
	st.maxHeaderListSize = 0
}

// CopyTo copies st into other.
func (st *Settings) CopyTo(other *Settings) {
	other.ack = st.ack
	other.headerTableSize = st.headerTableSize
	other.push = st.push
	other.maxStreams = st.maxStreams
	other.windowSize = st.windowSize
	other.frameSize = st.frameSize
	other.maxHeaderListSize = st.maxHeaderListSize
}

func (st *Settings) IsAck() bool {
	return st.ack
}

func (st *Settings) SetAck(ack bool) {
	st.ack = ack
}

func (st *Settings) HeaderTableSize() uint32 {
	return st.headerTableSize
}

func (st *Settings) SetHeaderTableSize(size uint32) {
	st.headerTableSize = size
}

// MaxWindowSize returns the negotiated SETTINGS_INITIAL_WINDOW_SIZE.
func (st *Settings) MaxWindowSize() uint32 {
	return st.windowSize
}

func (st *Settings) SetMaxWindowSize(size int32) {
	st.windowSize = uint32(size)
}

func (st *Settings) Push() bool {
	return st.push
}

// SetPush enables or disables SETTINGS_ENABLE_PUSH for this endpoint.
func (st *Settings) SetPush(enabled bool) {
	st.push = enabled
}

func (st *Settings) MaxConcurrentStreams() uint32 {
	return st.maxStreams
}

func (st *Settings) SetMaxConcurrentStreams(n uint32) {
	st.maxStreams = n
}

func (st *Settings) MaxFrameSize() uint32 {
	if st.frameSize == 0 {
		return defaultMaxFrameSize
	}
	return st.frameSize
}

func (st *Settings) SetMaxFrameSize(size uint32) {
	st.frameSize = size
}

func (st *Settings) MaxHeaderListSize() uint32 {
	return st.maxHeaderListSize
}

func (st *Settings) SetMaxHeaderListSize(size uint32) {
	st.maxHeaderListSize = size
}

// Deserialize parses the wire SETTINGS payload: a sequence of 6-byte
// (uint16 identifier, uint32 value) entries. An ACK carries no payload.
func (st *Settings) Deserialize(fr *FrameHeader) error {
	st.ack = fr.Flags().Has(FlagAck)
	if st.ack {
		return nil
	}

	payload := fr.payload
	if len(payload)%6 != 0 {
		return ErrMissingBytes
	}

	for len(payload) >= 6 {
		id := uint16(payload[0])<<8 | uint16(payload[1])
		value := http2utils.BytesToUint32(payload[2:6])

		switch id {
		case settingHeaderTableSize:
			st.headerTableSize = value
		case settingEnablePush:
			st.push = value != 0
		case settingMaxConcurrentStreams:
			st.maxStreams = value
		case settingInitialWindowSize:
			st.windowSize = value
		case settingMaxFrameSize:
			st.frameSize = value
		case settingMaxHeaderListSize:
			st.maxHeaderListSize = value
		}

		payload = payload[6:]
	}

	return nil
}

// Serialize encodes st as a SETTINGS frame payload. An ACK carries no
// payload; a non-ACK frame writes every negotiable parameter so peers
// always receive an explicit, complete configuration.
func (st *Settings) Serialize(fr *FrameHeader) {
	if st.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		fr.payload = fr.payload[:0]
		return
	}

	payload := fr.payload[:0]
	payload = appendSetting(payload, settingHeaderTableSize, st.headerTableSize)
	payload = appendSetting(payload, settingEnablePush, boolToUint32(st.push))
	payload = appendSetting(payload, settingMaxConcurrentStreams, st.maxStreams)
	payload = appendSetting(payload, settingInitialWindowSize, st.windowSize)
	payload = appendSetting(payload, settingMaxFrameSize, st.MaxFrameSize())
	if st.maxHeaderListSize != 0 {
		payload = appendSetting(payload, settingMaxHeaderListSize, st.maxHeaderListSize)
	}

	fr.payload = payload
}

func appendSetting(dst []byte, id uint16, value uint32) []byte {
	dst = append(dst, byte(id>>8), byte(id))
	return http2utils.AppendUint32Bytes(dst, value)
}

func boolToUint32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
