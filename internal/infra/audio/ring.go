package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/osa030/wavbox/internal/domain/buffer"
)

// ringReader walks a TransferBuffer circularly, reporting each half it
// finishes. It is the io.Reader handed to the device. A half is read only
// after the engine has loaded it; until then the device underruns.
type ringReader struct {
	mu      sync.Mutex
	buf     *buffer.TransferBuffer
	drained func(buffer.Half)
	gain    func() float64
	pos     int

	held   atomic.Bool
	closed atomic.Bool
}

func newRingReader(buf *buffer.TransferBuffer, drained func(buffer.Half), gain func() float64) *ringReader {
	if gain == nil {
		gain = func() float64 { return 1 }
	}
	return &ringReader{buf: buf, drained: drained, gain: gain}
}

// Read stops short at a half that has not been refilled since it was played
// and blocks only when nothing could be read. A held reader yields silence
// without moving; a closed one reports io.EOF.
func (r *ringReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size, half := r.buf.Size(), r.buf.HalfSize()
	n := 0
	for n < len(p) && !r.closed.Load() {
		if r.held.Load() {
			if n == 0 {
				clear(p)
				return len(p), nil
			}
			break
		}

		h := buffer.Half(r.pos / half)
		if !r.buf.Filled(h) {
			if n > 0 {
				break
			}
			r.buf.WaitFilled(h, r.interrupted)
			continue
		}

		end := (r.pos/half + 1) * half
		chunk := min(len(p)-n, end-r.pos)
		r.buf.ReadAt(p[n:n+chunk], r.pos)
		n += chunk
		r.pos += chunk

		if r.pos == end {
			r.pos %= size
			r.buf.Consume(h)
			r.drained(h)
		}
	}
	if n == 0 && r.closed.Load() {
		return 0, io.EOF
	}
	applyGain(p[:n], r.gain())
	return n, nil
}

func (r *ringReader) interrupted() bool {
	return r.held.Load() || r.closed.Load()
}

// hold makes Read return silence until release.
func (r *ringReader) hold() {
	r.held.Store(true)
	r.buf.Wake()
}

func (r *ringReader) release() {
	r.held.Store(false)
}

// close ends the stream and unblocks a waiting Read.
func (r *ringReader) close() {
	r.closed.Store(true)
	r.buf.Wake()
}

// applyGain scales 16-bit little-endian samples in place.
func applyGain(p []byte, gain float64) {
	if gain >= 1 {
		return
	}
	le := binary.LittleEndian
	for i := 0; i+1 < len(p); i += 2 {
		s := float64(int16(le.Uint16(p[i:])))
		v := math.Round(s * gain)
		le.PutUint16(p[i:], uint16(int16(v)))
	}
}
