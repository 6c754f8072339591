package audio

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wavbox/internal/domain/buffer"
)

// BytesPerFrame is the size of one 16-bit stereo frame.
const BytesPerFrame = 4

// ClockedSettings holds settings for the null driver.
type ClockedSettings struct {
	TickMs int `yaml:"tick_ms" mapstructure:"tick_ms" default:"10" validate:"gte=1,lte=1000"`
}

// ClockedTransport consumes the transfer buffer in real time and discards
// the data. It stands in for a device on hosts without audio output.
type ClockedTransport struct {
	mu       sync.Mutex
	settings ClockedSettings
	codec    *SoftCodec

	rate    uint32
	reader  *ringReader
	paused  bool
	stop    chan struct{}
	done    chan struct{}
	scratch []byte
	carry   float64
}

// NewClockedTransport creates a clocked transport.
func NewClockedTransport(settings ClockedSettings, codec *SoftCodec) *ClockedTransport {
	return &ClockedTransport{settings: settings, codec: codec}
}

// Init sets the drain rate.
func (t *ClockedTransport) Init(sampleRate uint32) error {
	if sampleRate == 0 {
		return errors.New("sample rate is zero")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rate = sampleRate
	return nil
}

// StartTransfer starts draining buf from its first half.
func (t *ClockedTransport) StartTransfer(buf *buffer.TransferBuffer, drained func(buffer.Half)) error {
	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rate == 0 {
		return ErrNotInitialized
	}
	var gain func() float64
	if t.codec != nil {
		gain = t.codec.Gain
	}
	t.reader = newRingReader(buf, drained, gain)
	t.paused = false
	t.carry = 0
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.run(t.stop, t.done)
	return nil
}

func (t *ClockedTransport) run(stop, done chan struct{}) {
	defer close(done)

	interval := time.Duration(t.settings.TickMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			t.tick(now.Sub(last))
			last = now
		}
	}
}

// tick consumes the bytes played during elapsed. The read runs without the
// lock since it may wait for a refill.
func (t *ClockedTransport) tick(elapsed time.Duration) {
	t.mu.Lock()
	if t.paused || t.reader == nil {
		t.mu.Unlock()
		return
	}

	t.carry += elapsed.Seconds() * float64(t.rate) * BytesPerFrame
	n := int(t.carry) / BytesPerFrame * BytesPerFrame
	if n == 0 {
		t.mu.Unlock()
		return
	}
	t.carry -= float64(n)

	if cap(t.scratch) < n {
		t.scratch = make([]byte, n)
	}
	reader, p := t.reader, t.scratch[:n]
	t.mu.Unlock()

	_, _ = reader.Read(p)
}

// Pause stops consuming the buffer.
func (t *ClockedTransport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
	return nil
}

// Resume continues consuming the buffer.
func (t *ClockedTransport) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reader == nil {
		return ErrNotInitialized
	}
	t.paused = false
	return nil
}

// Stop ends the transfer and waits for the clock to exit.
func (t *ClockedTransport) Stop() error {
	t.mu.Lock()
	stop, done, reader := t.stop, t.done, t.reader
	t.stop, t.done = nil, nil
	t.reader = nil
	t.mu.Unlock()

	if reader != nil {
		reader.close()
	}
	if stop != nil {
		close(stop)
		<-done
		zlog.Debug().Msg("audio: clocked transfer stopped")
	}
	return nil
}
