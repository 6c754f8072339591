// Package audio provides the audio output transports and the software codec.
package audio

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// SoftCodec is a codec that applies power, mute and volume in software.
// Transports read its gain for every chunk they hand to the device.
type SoftCodec struct {
	mu      sync.RWMutex
	powered bool
	muted   bool
	volume  uint8
}

// NewSoftCodec creates a powered-down codec.
func NewSoftCodec() *SoftCodec {
	return &SoftCodec{}
}

// Init powers the codec up with the given mute state and volume.
func (c *SoftCodec) Init(muted bool, volume uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powered = true
	c.muted = muted
	c.volume = volume
	zlog.Debug().Msgf("codec: init muted=%v volume=%d", muted, volume)
	return nil
}

// SetVolume sets the output volume.
func (c *SoftCodec) SetVolume(v uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = v
	return nil
}

// Mute silences the output.
func (c *SoftCodec) Mute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = true
	return nil
}

// Unmute restores the output.
func (c *SoftCodec) Unmute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = false
	return nil
}

// Stop powers the codec down.
func (c *SoftCodec) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powered = false
	return nil
}

// Gain returns the sample multiplier: 0 when powered down or muted,
// volume/255 otherwise.
func (c *SoftCodec) Gain() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.powered || c.muted {
		return 0
	}
	return float64(c.volume) / 255
}
