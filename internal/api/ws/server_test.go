package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/wavbox/internal/api/command"
	"github.com/osa030/wavbox/internal/app/notification"
	"github.com/osa030/wavbox/internal/app/playback"
	"github.com/osa030/wavbox/internal/domain/track"
)

type stubPlayer struct {
	mu     sync.Mutex
	volume uint8
	files  string
}

func (p *stubPlayer) Next(context.Context) bool { return true }
func (p *stubPlayer) Previous(context.Context) bool { return false }
func (p *stubPlayer) ListFiles(context.Context) string { return p.files }
func (p *stubPlayer) PlayFile(context.Context, string) bool { return false }
func (p *stubPlayer) Pause() {}
func (p *stubPlayer) Resume(context.Context) {}
func (p *stubPlayer) Stop() {}
func (p *stubPlayer) Mute() {}
func (p *stubPlayer) Unmute() {}
func (p *stubPlayer) SetVolume(v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg string) string {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestServer_Commands(t *testing.T) {
	player := &stubPlayer{files: "A.WAV\nB.WAV\n"}
	notifier := notification.NewManager()
	s := New(Config{Path: "/control"}, player, notifier)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/control")

	tests := []struct {
		msg  string
		want string
	}{
		{msg: "l", want: "A.WAV\nB.WAV\n"},
		{msg: ">", want: command.ReplySuccess},
		{msg: "<", want: command.ReplyNoAudioFile},
		{msg: "c x.wav", want: command.ReplyOpenFailed},
		{msg: "v 999", want: command.ReplyInvalidVolume},
		{msg: "v 12", want: command.ReplySuccess},
		{msg: "?", want: command.ReplyUndefined},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, roundTrip(t, conn, tt.msg), tt.msg)
	}

	player.mu.Lock()
	assert.Equal(t, uint8(12), player.volume)
	player.mu.Unlock()
}

func TestServer_EmptyListingSendsNothing(t *testing.T) {
	s := New(Config{Path: "/control"}, &stubPlayer{}, notification.NewManager())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/control")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("l")))

	// The next message on the wire answers the following command.
	assert.Equal(t, command.ReplySuccess, roundTrip(t, conn, "v 12"))
}

func TestServer_PushesEvents(t *testing.T) {
	notifier := notification.NewManager()
	s := New(Config{Path: "/control"}, &stubPlayer{}, notifier)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv, "/control")
	require.Eventually(t, func() bool { return notifier.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	notifier.Broadcast(playback.Event{
		Type:  playback.EventTrackAdvanced,
		Track: &track.Info{Name: "B.WAV"},
		State: playback.StatePlaying,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "[EVENT] track_advanced B.WAV playing\n", string(data))

	_ = conn.Close()
	require.Eventually(t, func() bool { return notifier.SubscriberCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   playback.Event
		want string
	}{
		{
			name: "no track",
			ev:   playback.Event{Type: playback.EventStateChanged, State: playback.StateReady},
			want: "[EVENT] state_changed - ready\n",
		},
		{
			name: "with detail",
			ev:   playback.Event{Type: playback.EventLibraryChanged, State: playback.StateIdle, Detail: "NEW.WAV"},
			want: "[EVENT] library_changed - idle NEW.WAV\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEvent(notification.Notification{Event: tt.ev}))
		})
	}
}

func TestSession_QueueFull(t *testing.T) {
	c := &session{send: make(chan string, 1), done: make(chan struct{})}
	require.NoError(t, c.enqueue("a"))
	assert.ErrorIs(t, c.enqueue("b"), ErrSendQueueFull)

	c.close()
	<-c.send
	assert.Error(t, c.enqueue("c"))
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Path: "/control"}, &stubPlayer{}, notification.NewManager())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
