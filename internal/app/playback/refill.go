package playback

import (
	"github.com/osa030/wavbox/internal/domain/buffer"
	"github.com/osa030/wavbox/internal/domain/track"
)

// RefillState is the half the refill machine expects to drain next.
type RefillState int

const (
	ExpectFirstHalfDrained RefillState = iota
	ExpectSecondHalfDrained
)

// String returns the string representation of the refill state.
func (s RefillState) String() string {
	switch s {
	case ExpectFirstHalfDrained:
		return "expect_first"
	case ExpectSecondHalfDrained:
		return "expect_second"
	default:
		return "unknown"
	}
}

func (s RefillState) half() buffer.Half {
	if s == ExpectSecondHalfDrained {
		return buffer.SecondHalf
	}
	return buffer.FirstHalf
}

// RefillResult describes one drained-signal step.
type RefillResult struct {
	Accepted  bool // Signal matched the expected half
	Read      int  // Bytes read into the drained half
	Exhausted bool // Source has at most one half left; advance to the next track
	Err       error
}

// Refiller keeps the transfer buffer fed while the transport drains it.
type Refiller struct {
	state RefillState
	buf   *buffer.TransferBuffer
}

// NewRefiller creates a refiller over buf, expecting the first half.
func NewRefiller(buf *buffer.TransferBuffer) *Refiller {
	return &Refiller{buf: buf}
}

// State returns the half the machine expects next.
func (r *Refiller) State() RefillState {
	return r.state
}

// Reset re-arms the machine for a transfer that starts at the first half.
func (r *Refiller) Reset() {
	r.state = ExpectFirstHalfDrained
}

// OnHalfDrained refills the half that just finished playing from src.
// A signal for the half that is not expected is ignored.
func (r *Refiller) OnHalfDrained(which buffer.Half, src *track.Source) RefillResult {
	if which != r.state.half() {
		return RefillResult{}
	}

	n, err := r.buf.Load(which, src)
	res := RefillResult{Accepted: true, Read: n, Err: err}

	half := uint32(r.buf.HalfSize())
	switch {
	case src.RemainingBytes > half && n > 0:
		src.RemainingBytes -= uint32(n)
	default:
		// The tail still in flight is dropped: the caller reprograms the
		// transport for the next track straight away.
		src.RemainingBytes = 0
		res.Exhausted = true
	}

	if r.state == ExpectFirstHalfDrained {
		r.state = ExpectSecondHalfDrained
	} else {
		r.state = ExpectFirstHalfDrained
	}
	return res
}
