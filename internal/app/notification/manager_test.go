package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/wavbox/internal/app/playback"
)

type recordingStream struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	block chan struct{}
}

func (s *recordingStream) Send(n Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *recordingStream) received() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.got...)
}

func TestManager_SubscribeUnsubscribe(t *testing.T) {
	m := NewManager()
	a := m.Subscribe(&recordingStream{})
	b := m.Subscribe(&recordingStream{})
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, m.SubscriberCount())

	m.Unsubscribe(a)
	assert.Equal(t, 1, m.SubscriberCount())

	m.Close()
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestManager_BroadcastSequence(t *testing.T) {
	m := NewManager()
	ok := &recordingStream{}
	failing := &recordingStream{err: errors.New("closed")}
	m.Subscribe(ok)
	m.Subscribe(failing)

	m.Broadcast(playback.Event{Type: playback.EventStateChanged, State: playback.StatePlaying})
	m.Broadcast(playback.Event{Type: playback.EventTrackAdvanced})

	got := ok.received()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].SequenceNo)
	assert.Equal(t, playback.StatePlaying, got[0].Event.State)
	assert.Equal(t, uint64(2), got[1].SequenceNo)
	assert.Len(t, failing.received(), 2)
}

func TestManager_BroadcastSlowSubscriber(t *testing.T) {
	m := NewManager()
	m.sendTimeout = 20 * time.Millisecond

	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)
	fast := &recordingStream{}
	m.Subscribe(slow)
	m.Subscribe(fast)

	start := time.Now()
	m.Broadcast(playback.Event{Type: playback.EventStateChanged})
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, fast.received(), 1)
}

func TestManager_Pump(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	m.Subscribe(s)

	events := make(chan playback.Event, 2)
	events <- playback.Event{Type: playback.EventTrackStarted}
	events <- playback.Event{Type: playback.EventLibraryChanged, Detail: "NEW.WAV"}
	close(events)

	m.Pump(context.Background(), events)

	got := s.received()
	require.Len(t, got, 2)
	assert.Equal(t, "NEW.WAV", got[1].Event.Detail)
}

func TestManager_PumpStopsOnCancel(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Pump(ctx, make(chan playback.Event))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
}
