package audio

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/oto/v3"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wavbox/internal/domain/buffer"
)

// ErrNotInitialized is returned when a transfer starts before Init.
var ErrNotInitialized = errors.New("audio output not initialized")

// OtoSettings holds settings for the oto driver.
type OtoSettings struct {
	BufferMs int `yaml:"buffer_ms" mapstructure:"buffer_ms" default:"100" validate:"gte=10,lte=2000"`
}

// OtoTransport plays the transfer buffer through the host audio device.
type OtoTransport struct {
	mu       sync.Mutex
	settings OtoSettings
	codec    *SoftCodec

	otoCtx *oto.Context
	rate   uint32
	player *oto.Player
	reader *ringReader
}

// NewOtoTransport creates an oto transport. Output is scaled by the codec gain.
func NewOtoTransport(settings OtoSettings, codec *SoftCodec) *OtoTransport {
	return &OtoTransport{settings: settings, codec: codec}
}

// Init opens the audio device at sampleRate, 16-bit stereo.
func (t *OtoTransport) Init(sampleRate uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sampleRate == 0 {
		return errors.New("sample rate is zero")
	}

	// oto allows a single context per process
	if t.otoCtx != nil {
		if t.rate != sampleRate {
			zlog.Warn().Msgf("audio: sample rate change %d -> %d Hz not supported, keeping %d Hz",
				t.rate, sampleRate, t.rate)
		}
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   int(sampleRate),
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(t.settings.BufferMs) * time.Millisecond,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return errors.Wrap(err, "failed to create oto context")
	}
	<-ready

	t.otoCtx = ctx
	t.rate = sampleRate
	zlog.Info().Msgf("audio: output initialized: %d Hz, 2 channels", sampleRate)
	return nil
}

// StartTransfer starts streaming buf from its first half.
func (t *OtoTransport) StartTransfer(buf *buffer.TransferBuffer, drained func(buffer.Half)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.otoCtx == nil {
		return ErrNotInitialized
	}
	t.closePlayerLocked()

	t.reader = newRingReader(buf, drained, t.codec.Gain)
	t.player = t.otoCtx.NewPlayer(t.reader)
	// Read one half at a time so each read crosses at most one boundary
	t.player.SetBufferSize(buf.HalfSize())
	t.player.Play()
	return t.player.Err()
}

// Pause holds the stream at its position. The player keeps running on
// silence, so no device read ever waits on a refill while paused.
func (t *OtoTransport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.player == nil {
		return nil
	}
	t.reader.hold()
	return t.player.Err()
}

// Resume continues a held stream.
func (t *OtoTransport) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.player == nil {
		return ErrNotInitialized
	}
	t.reader.release()
	return t.player.Err()
}

// Stop ends the transfer.
func (t *OtoTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closePlayerLocked()
	return nil
}

// closePlayerLocked must be called with lock held.
func (t *OtoTransport) closePlayerLocked() {
	if t.player == nil {
		return
	}
	t.reader.close()
	t.player.Pause()
	if err := t.player.Close(); err != nil {
		zlog.Debug().Err(err).Msg("audio: player closed with error")
	}
	t.player, t.reader = nil, nil
}
