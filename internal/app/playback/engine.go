package playback

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wavbox/internal/domain/buffer"
	"github.com/osa030/wavbox/internal/domain/playlist"
	"github.com/osa030/wavbox/internal/domain/track"
)

// DefaultListingLimit is the maximum size of a ListFiles reply in bytes.
const DefaultListingLimit = 4096

// Store is the file store holding the tracks.
type Store interface {
	playlist.Scanner
	// Open opens a track by name. Names match case-insensitively.
	Open(ctx context.Context, name string) (io.ReadSeekCloser, error)
}

// Transport streams the transfer buffer to the audio device and reports each
// half it finishes via drained. drained may be called from any goroutine.
type Transport interface {
	Init(sampleRate uint32) error
	StartTransfer(buf *buffer.TransferBuffer, drained func(buffer.Half)) error
	Pause() error
	Resume() error
	Stop() error
}

// Codec is the output stage: power, mute and volume.
type Codec interface {
	Init(muted bool, volume uint8) error
	SetVolume(v uint8) error
	Mute() error
	Unmute() error
	Stop() error
}

// Config holds engine configuration.
type Config struct {
	BufferSize   int           // Transfer buffer size in bytes
	Volume       uint8         // Initial codec volume
	Muted        bool          // Initial mute state
	IOTimeout    time.Duration // Bound on each store call (0 = none)
	ListingLimit int           // Maximum ListFiles reply size (0 = DefaultListingLimit)
	QueueDepth   int           // Pending drained signals (0 = 8)
}

// drainSignal is a drained notification tagged with the transfer it belongs to.
type drainSignal struct {
	transfer uint64
	half     buffer.Half
}

// Engine is the playback façade. Control operations and the refill task
// share one lock, so they never interleave mid-mutation.
type Engine struct {
	mu sync.Mutex

	store     Store
	transport Transport
	codec     Codec
	nav       *playlist.Navigator

	buf       *buffer.TransferBuffer
	refill    *Refiller
	lifecycle Lifecycle

	source   *track.Source
	current  string // Playlist cursor
	transfer uint64 // Incremented on every StartTransfer
	advance  bool   // Track ran out while paused; advance on resume

	volume uint8
	muted  bool

	config Config

	drainCh chan drainSignal
	eventCh chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    bool
}

// NewEngine creates an engine in the Idle state.
func NewEngine(config Config, store Store, transport Transport, codec Codec) (*Engine, error) {
	buf, err := buffer.New(config.BufferSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate transfer buffer")
	}
	if config.ListingLimit <= 0 {
		config.ListingLimit = DefaultListingLimit
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 8
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:     store,
		transport: transport,
		codec:     codec,
		nav:       playlist.NewNavigator(store),
		buf:       buf,
		refill:    NewRefiller(buf),
		volume:    config.Volume,
		muted:     config.Muted,
		config:    config,
		drainCh:   make(chan drainSignal, config.QueueDepth),
		eventCh:   make(chan Event, 32),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Events returns the event channel.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Run consumes drained signals until ctx or the engine is done.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		case sig := <-e.drainCh:
			e.mu.Lock()
			e.onHalfDrainedLocked(ctx, sig)
			e.mu.Unlock()
		}
	}
}

// ChooseFirstFile selects the first track of the listing without starting
// playback. It only acts while no file has been chosen.
func (e *Engine) ChooseFirstFile(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lifecycle.Chosen() {
		return false
	}

	ctx, cancel := e.ioContext(ctx)
	defer cancel()

	cur, err := e.store.Scan(ctx)
	if err != nil {
		zlog.Error().Err(err).Msg("playback: failed to scan track listing")
		return false
	}
	name, ok := cur.Next()
	if !ok {
		zlog.Warn().Msg("playback: no track to choose")
		return false
	}

	e.current = name
	e.fireLocked(TriggerFileChosen)
	zlog.Info().Msgf("playback: first track chosen: %s", name)
	return true
}

// PlayFile opens name and starts playing it.
func (e *Engine) PlayFile(ctx context.Context, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lifecycle.Chosen() {
		zlog.Debug().Msgf("playback: play %s ignored in state %s", name, e.lifecycle.State())
		return false
	}

	name, err := track.NormalizeName(name)
	if err != nil {
		zlog.Warn().Err(err).Msg("playback: rejected track name")
		return false
	}
	return e.switchToLocked(ctx, name)
}

// Next plays the entry after the current track.
func (e *Engine) Next(ctx context.Context) bool {
	return e.navigate(ctx, e.nav.Next, "next")
}

// Previous plays the entry before the current track.
func (e *Engine) Previous(ctx context.Context) bool {
	return e.navigate(ctx, e.nav.Previous, "previous")
}

func (e *Engine) navigate(ctx context.Context, step func(context.Context, string) (string, bool, error), dir string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lifecycle.Chosen() {
		zlog.Debug().Msgf("playback: %s ignored in state %s", dir, e.lifecycle.State())
		return false
	}

	name, ok := e.neighbourLocked(ctx, step)
	if !ok {
		zlog.Warn().Msgf("playback: no %s track for %s", dir, e.current)
		return false
	}
	return e.switchToLocked(ctx, name)
}

// Pause pauses the transport and powers down the codec.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lifecycle.Can(TriggerPause) {
		zlog.Debug().Msgf("playback: pause ignored in state %s", e.lifecycle.State())
		return
	}

	if err := e.codec.Stop(); err != nil {
		e.faultLocked(errors.Wrap(err, "codec stop"))
		return
	}
	if err := e.transport.Pause(); err != nil {
		e.faultLocked(errors.Wrap(err, "transport pause"))
		return
	}
	e.fireLocked(TriggerPause)
}

// Resume starts playback from Ready (opening the current track) or
// continues it from Paused.
func (e *Engine) Resume(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.lifecycle.State() {
	case StateReady:
		started, err := e.openLocked(ctx, e.current)
		if err != nil {
			zlog.Error().Err(err).Msg("playback: failed to start track")
			return
		}
		if started {
			e.fireLocked(TriggerResume)
			e.sendEventLocked(EventTrackStarted, "")
		}
	case StatePaused:
		// Refills queued before the pause land before the device reads again
		e.flushDrainedLocked(ctx)
		if e.advance {
			e.advance = false
			e.fireLocked(TriggerResume)
			e.advanceLocked(ctx)
			return
		}
		if err := e.codec.Init(e.muted, e.volume); err != nil {
			e.faultLocked(errors.Wrap(err, "codec init"))
			return
		}
		if err := e.transport.Resume(); err != nil {
			e.faultLocked(errors.Wrap(err, "transport resume"))
			return
		}
		e.fireLocked(TriggerResume)
	default:
		zlog.Debug().Msgf("playback: resume ignored in state %s", e.lifecycle.State())
	}
}

// Stop halts playback, rewinds the current track and reloads the buffer.
// The engine stays loaded in Ready.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lifecycle.Can(TriggerStop) {
		zlog.Debug().Msgf("playback: stop ignored in state %s", e.lifecycle.State())
		return
	}

	e.haltLocked()
	if e.source != nil {
		e.loadLocked()
	}
	e.fireLocked(TriggerStop)
}

// SetVolume sets the codec volume. The full 0..255 range is accepted.
func (e *Engine) SetVolume(v uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.volume = v
	e.codecCallLocked(e.codec.SetVolume(v), "codec set volume")
}

// Mute silences the codec.
func (e *Engine) Mute() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.muted = true
	e.codecCallLocked(e.codec.Mute(), "codec mute")
}

// Unmute restores codec output.
func (e *Engine) Unmute() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.muted = false
	e.codecCallLocked(e.codec.Unmute(), "codec unmute")
}

// ListFiles returns the track names, each terminated by a newline. The
// reply is cut at a whole name once it would exceed the listing limit.
func (e *Engine) ListFiles(ctx context.Context) string {
	ctx, cancel := e.ioContext(ctx)
	defer cancel()

	cur, err := e.store.Scan(ctx)
	if err != nil {
		zlog.Error().Err(err).Msg("playback: failed to scan track listing")
		return ""
	}

	var sb strings.Builder
	for name, ok := cur.Next(); ok; name, ok = cur.Next() {
		if sb.Len()+len(name)+1 > e.config.ListingLimit {
			break
		}
		sb.WriteString(name)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// NotifyLibraryChanged publishes a library change for subscribers.
func (e *Engine) NotifyLibraryChanged(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendEventLocked(EventLibraryChanged, name)
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.State()
}

// Current returns the loaded track, or the chosen name with ok=false when
// nothing is open yet.
func (e *Engine) Current() (track.Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.source == nil {
		return track.Info{Name: e.current}, false
	}
	return e.source.Info(), true
}

// Volume returns the codec volume.
func (e *Engine) Volume() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Muted returns the mute state.
func (e *Engine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// Close stops the hardware and releases the current track.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()

		e.mu.Lock()
		defer e.mu.Unlock()

		if e.source != nil {
			e.haltLocked()
			if err := e.source.Close(); err != nil {
				zlog.Warn().Err(err).Msg("playback: failed to close track")
			}
			e.source = nil
		}
		e.closed = true
		close(e.eventCh)
	})
}

// onHalfDrainedLocked runs one refill step. A half drained just before a
// pause is still refilled; only signals from an older transfer are dropped.
// Must be called with lock held.
func (e *Engine) onHalfDrainedLocked(ctx context.Context, sig drainSignal) {
	if sig.transfer != e.transfer || e.source == nil {
		return
	}
	state := e.lifecycle.State()
	if state != StatePlaying && state != StatePaused {
		return
	}

	res := e.refill.OnHalfDrained(sig.half, e.source)
	if !res.Accepted {
		zlog.Debug().Msgf("playback: ignoring %s half drained, expecting %s", sig.half, e.refill.State())
		return
	}
	if res.Err != nil {
		zlog.Warn().Err(res.Err).Msgf("playback: short refill of %s", e.source.Name)
	}
	if res.Exhausted {
		if state == StatePaused {
			e.advance = true
			return
		}
		e.advanceLocked(ctx)
	}
}

// flushDrainedLocked applies every queued drained signal.
// Must be called with lock held.
func (e *Engine) flushDrainedLocked(ctx context.Context) {
	for {
		select {
		case sig := <-e.drainCh:
			e.onHalfDrainedLocked(ctx, sig)
		default:
			return
		}
	}
}

// advanceLocked moves to the next track after the current one ran out.
// Must be called with lock held.
func (e *Engine) advanceLocked(ctx context.Context) {
	finished := e.current

	name, ok := e.neighbourLocked(ctx, e.nav.Next)
	if ok {
		started, err := e.openLocked(ctx, name)
		if err == nil {
			if started {
				zlog.Info().Msgf("playback: track advanced: %s -> %s", finished, name)
				e.sendEventLocked(EventTrackAdvanced, finished)
			}
			return
		}
		zlog.Error().Err(err).Msgf("playback: failed to advance to %s", name)
	}

	e.haltLocked()
	e.loadLocked()
	e.fireLocked(TriggerStop)
	e.sendEventLocked(EventPlaylistExhausted, finished)
}

// switchToLocked opens name and leaves the engine playing it.
// Must be called with lock held.
func (e *Engine) switchToLocked(ctx context.Context, name string) bool {
	started, err := e.openLocked(ctx, name)
	if err != nil {
		zlog.Error().Err(err).Msg("playback: failed to open track")
		return false
	}
	if started {
		e.fireLocked(TriggerResume)
		e.sendEventLocked(EventTrackStarted, "")
	}
	return true
}

// openLocked is the file-open procedure. Only the store open is reported as
// an error; started is false when the hardware failed to come up.
// Must be called with lock held.
func (e *Engine) openLocked(ctx context.Context, name string) (bool, error) {
	ioCtx, cancel := e.ioContext(ctx)
	f, err := e.store.Open(ioCtx, name)
	cancel()
	if err != nil {
		return false, errors.Wrapf(err, "failed to open %s", name)
	}

	if e.source != nil {
		e.haltLocked()
		if err := e.source.Close(); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to close %s", e.source.Name)
		}
	}

	src, err := track.Open(name, f)
	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: unreadable header in %s", name)
	}
	e.source = src
	e.current = name

	e.loadLocked()
	zlog.Debug().Msgf("playback: opened %s: data=%d rate=%d remaining=%d",
		name, src.TotalDataBytes, src.SampleRate, src.RemainingBytes)

	return e.startLocked(), nil
}

// loadLocked rewinds the source and fills both halves.
// Must be called with lock held.
func (e *Engine) loadLocked() {
	if err := e.source.Rewind(); err != nil {
		zlog.Warn().Err(err).Msg("playback: rewind failed")
	}
	n, err := e.buf.LoadAll(e.source)
	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: initial fill of %s failed", e.source.Name)
	}
	e.source.Reset(n)
	e.refill.Reset()
	e.advance = false
}

// startLocked programs the transport and codec for the loaded source.
// Must be called with lock held.
func (e *Engine) startLocked() bool {
	if err := e.transport.Init(e.source.SampleRate); err != nil {
		e.faultLocked(errors.Wrapf(err, "transport init at %d Hz", e.source.SampleRate))
		return false
	}

	e.transfer++
	transfer := e.transfer
	drained := func(h buffer.Half) { e.enqueueDrained(transfer, h) }
	if err := e.transport.StartTransfer(e.buf, drained); err != nil {
		e.faultLocked(errors.Wrap(err, "transport start"))
		return false
	}

	if err := e.codec.Init(e.muted, e.volume); err != nil {
		e.faultLocked(errors.Wrap(err, "codec init"))
		return false
	}
	return true
}

// haltLocked stops the transport and the codec, logging failures.
// Must be called with lock held.
func (e *Engine) haltLocked() {
	if err := e.codec.Stop(); err != nil {
		zlog.Warn().Err(err).Msg("playback: codec stop failed")
	}
	if err := e.transport.Stop(); err != nil {
		zlog.Warn().Err(err).Msg("playback: transport stop failed")
	}
}

// faultLocked handles a hardware failure: the current track is stopped and
// the lifecycle falls back to Ready. Must be called with lock held.
func (e *Engine) faultLocked(err error) {
	zlog.Error().Err(err).Msg("playback: hardware failure, stopping track")
	e.haltLocked()
	e.fireLocked(TriggerStop)
	e.sendEventLocked(EventHardwareFault, err.Error())
}

// codecCallLocked reports the result of a codec register write. A failure
// while a track is active is fatal to the track. Must be called with lock held.
func (e *Engine) codecCallLocked(err error, op string) {
	if err == nil {
		return
	}
	if e.lifecycle.Can(TriggerStop) {
		e.faultLocked(errors.Wrap(err, op))
		return
	}
	zlog.Warn().Err(err).Msgf("playback: %s failed", op)
}

// neighbourLocked runs one navigator step from the current track.
// Must be called with lock held.
func (e *Engine) neighbourLocked(ctx context.Context, step func(context.Context, string) (string, bool, error)) (string, bool) {
	ctx, cancel := e.ioContext(ctx)
	defer cancel()

	name, ok, err := step(ctx, e.current)
	if err != nil {
		zlog.Error().Err(err).Msg("playback: failed to scan track listing")
		return "", false
	}
	return name, ok
}

// fireLocked applies a lifecycle trigger and reports the change.
// Must be called with lock held.
func (e *Engine) fireLocked(t Trigger) {
	prev := e.lifecycle.State()
	state, ok := e.lifecycle.Fire(t)
	if !ok {
		return
	}
	zlog.Debug().Msgf("playback: %s: %s -> %s", t, prev, state)
	e.sendEventLocked(EventStateChanged, "")
}

// enqueueDrained hands a drained signal to the refill task without blocking.
func (e *Engine) enqueueDrained(transfer uint64, h buffer.Half) {
	select {
	case e.drainCh <- drainSignal{transfer: transfer, half: h}:
	case <-e.ctx.Done():
	default:
		zlog.Warn().Msgf("playback: refill queue full, dropping %s half signal", h)
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (e *Engine) sendEventLocked(t EventType, detail string) {
	if e.closed {
		return
	}
	ev := Event{Type: t, State: e.lifecycle.State(), Detail: detail}
	if e.source != nil {
		info := e.source.Info()
		ev.Track = &info
	}

	select {
	case e.eventCh <- ev:
	case <-e.ctx.Done():
	default:
		// Channel full, drop event
	}
}

// ioContext bounds a store call by the configured timeout.
func (e *Engine) ioContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.IOTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.config.IOTimeout)
}
