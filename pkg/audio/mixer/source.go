// Package mixer implements the playback graph of the comparison engine: one
// shared [Source] fanned out to several processing chains whose outputs are
// weighted by ramped gains and summed on a single [Bus].
//
// The bus is a [beep.Streamer]. Every Stream call reads one block from the
// source and hands identical copies to all chains, so chains are sample
// aligned by construction and switching between them never changes the
// transport position.
package mixer

import "github.com/gopxl/beep"

// Source plays a decoded buffer from the start, optionally looping.
//
// Source is not safe for concurrent use; the owning [Bus] serialises access.
type Source struct {
	buf  *beep.Buffer
	st   beep.StreamSeeker
	loop bool
}

// NewSource returns a source positioned at the first frame of buf.
func NewSource(buf *beep.Buffer, loop bool) *Source {
	return &Source{
		buf:  buf,
		st:   buf.Streamer(0, buf.Len()),
		loop: loop,
	}
}

// SetLooping changes the loop flag. A source that has already run out stays
// ended.
func (s *Source) SetLooping(loop bool) { s.loop = loop }

// Looping reports the loop flag.
func (s *Source) Looping() bool { return s.loop }

// Position is the index of the next frame to be read.
func (s *Source) Position() int { return s.st.Position() }

// Len is the length of the underlying buffer in frames.
func (s *Source) Len() int { return s.buf.Len() }

// Read fills dst from the buffer and returns the number of frames written.
// A looping source wraps to the start and always fills dst unless the buffer
// is empty. A short read means the source has ended.
func (s *Source) Read(dst [][2]float64) int {
	if s.buf.Len() == 0 {
		return 0
	}
	n := 0
	for n < len(dst) {
		m, ok := s.st.Stream(dst[n:])
		n += m
		if m > 0 && ok {
			continue
		}
		if !s.loop {
			break
		}
		if err := s.st.Seek(0); err != nil {
			break
		}
	}
	return n
}
