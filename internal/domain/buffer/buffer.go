// Package buffer provides the two-half transfer buffer shared by the engine
// and the audio transport.
package buffer

import (
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

// Half identifies one half of a TransferBuffer.
type Half int

const (
	FirstHalf  Half = iota // H0
	SecondHalf             // H1
)

// String returns the string representation of the half.
func (h Half) String() string {
	switch h {
	case FirstHalf:
		return "first"
	case SecondHalf:
		return "second"
	default:
		return "unknown"
	}
}

// Other returns the opposite half.
func (h Half) Other() Half {
	if h == FirstHalf {
		return SecondHalf
	}
	return FirstHalf
}

// ErrInvalidSize is returned for buffer sizes that cannot be split into two
// halves of whole 16-bit stereo frames.
var ErrInvalidSize = errors.New("invalid transfer buffer size")

// TransferBuffer is a fixed-size byte buffer split into two equal halves.
// The engine writes one half while the transport reads the other. Each half
// is marked filled by Load and consumed by the reader once played, so a
// half is never sent twice without a refill in between.
type TransferBuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	data    []byte
	scratch []byte
	filled  [2]bool
}

// New creates a TransferBuffer of size bytes. size must be a positive
// multiple of 8 so each half holds whole frames.
func New(size int) (*TransferBuffer, error) {
	if size <= 0 || size%8 != 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "%d", size)
	}
	b := &TransferBuffer{
		data:    make([]byte, size),
		scratch: make([]byte, size/2),
	}
	b.cond = sync.NewCond(&b.mu)
	return b, nil
}

// Size returns the total capacity in bytes.
func (b *TransferBuffer) Size() int {
	return len(b.data)
}

// HalfSize returns the capacity of one half in bytes.
func (b *TransferBuffer) HalfSize() int {
	return len(b.data) / 2
}

// Offset returns the byte offset at which h starts.
func (b *TransferBuffer) Offset(h Half) int {
	if h == SecondHalf {
		return b.HalfSize()
	}
	return 0
}

// Load reads up to one half from r into h and marks it filled. Bytes past
// the end of the read are zeroed. It returns the number of bytes read from r; io.EOF is not
// reported as an error. Only one goroutine may load at a time.
func (b *TransferBuffer) Load(h Half, r io.Reader) (int, error) {
	n, err := io.ReadFull(r, b.scratch)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}

	b.mu.Lock()
	dst := b.data[b.Offset(h) : b.Offset(h)+b.HalfSize()]
	copy(dst, b.scratch[:n])
	clear(dst[n:])
	b.filled[h] = true
	b.cond.Broadcast()
	b.mu.Unlock()

	return n, err
}

// LoadAll fills both halves from r, first half first.
func (b *TransferBuffer) LoadAll(r io.Reader) (int, error) {
	n0, err := b.Load(FirstHalf, r)
	if err != nil {
		return n0, err
	}
	n1, err := b.Load(SecondHalf, r)
	return n0 + n1, err
}

// ReadAt copies buffer bytes starting at off into p and returns the count.
func (b *TransferBuffer) ReadAt(p []byte, off int) int {
	if off < 0 || off >= len(b.data) {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return copy(p, b.data[off:])
}

// Filled reports whether h has been loaded since it was last consumed.
func (b *TransferBuffer) Filled(h Half) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filled[h]
}

// Consume marks h as played. The next read of h has to wait for a Load.
func (b *TransferBuffer) Consume(h Half) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filled[h] = false
}

// WaitFilled blocks until h is filled or cancelled returns true, and reports
// whether h is filled. cancelled is evaluated with the buffer lock held;
// callers changing its result must call Wake afterwards.
func (b *TransferBuffer) WaitFilled(h Half, cancelled func() bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.filled[h] && !cancelled() {
		b.cond.Wait()
	}
	return b.filled[h]
}

// Wake wakes every WaitFilled caller to re-check its cancel condition.
func (b *TransferBuffer) Wake() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cond.Broadcast()
}
