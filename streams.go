package http2

import "sort"

// Streams is a stream table kept sorted by ascending id. Because
// HTTP/2 stream ids are strictly monotonic per endpoint, appending a
// newly created stream at the end always preserves the sort order, so
// lookups stay a binary search without a separate insertion step.
type Streams []*Stream

// Search finds the stream with the given id, or nil.
func (strms Streams) Search(id uint32) *Stream {
	i := sort.Search(len(strms), func(i int) bool {
		return strms[i].id >= id
	})

	if i < len(strms) && strms[i].id == id {
		return strms[i]
	}

	return nil
}

// Del removes and returns the stream with the given id, or nil if it
// isn't present.
func (strms *Streams) Del(id uint32) *Stream {
	s := *strms

	i := sort.Search(len(s), func(i int) bool {
		return s[i].id >= id
	})

	if i < len(s) && s[i].id == id {
		strm := s[i]
		*strms = append(s[:i], s[i+1:]...)
		return strm
	}

	return nil
}

// GetFirstOf returns the first stream in table order whose origType
// matches kind.
func (strms Streams) GetFirstOf(kind FrameType) *Stream {
	for _, s := range strms {
		if s.origType == kind {
			return s
		}
	}

	return nil
}

// getPrevious returns the stream before the most recently created
// stream of the given origType, used to check that the previous
// request's header block actually finished before a new one starts.
func (strms Streams) getPrevious(kind FrameType) *Stream {
	found := 0

	for i := len(strms) - 1; i >= 0; i-- {
		if strms[i].origType == kind {
			found++
			if found == 2 {
				return strms[i]
			}
		}
	}

	return nil
}
