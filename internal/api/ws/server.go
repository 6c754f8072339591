// Package ws serves the control protocol over websocket connections and
// pushes playback events to connected clients.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/wavbox/internal/api/command"
	"github.com/osa030/wavbox/internal/app/notification"
)

// EventPrefix starts every pushed event line.
const EventPrefix = "[EVENT]"

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendQueueSize = 16
)

// ErrSendQueueFull is returned when a client does not keep up with events.
var ErrSendQueueFull = errors.New("send queue full")

// Config holds server configuration.
type Config struct {
	Addr string
	Path string
}

// Server is the websocket control endpoint.
type Server struct {
	config   Config
	player   command.Player
	notifier *notification.Manager
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	wg sync.WaitGroup
}

// New creates a server. Commands drive player; events come from notifier.
func New(config Config, player command.Player, notifier *notification.Manager) *Server {
	s := &Server{
		config:   config,
		player:   player,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			// Control is meant for trusted local networks
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the websocket path.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("ws: listening on %s%s", s.config.Addr, s.config.Path)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return errors.Wrap(err, "websocket server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn().Err(err).Msg("ws: shutdown error")
	}
	s.wg.Wait()
	return nil
}

// session is one connected client.
type session struct {
	id   string
	conn *websocket.Conn
	send chan string
	done chan struct{}
	once sync.Once
}

// Send implements notification.Stream.
func (c *session) Send(n notification.Notification) error {
	return c.enqueue(FormatEvent(n))
}

func (c *session) enqueue(msg string) error {
	select {
	case <-c.done:
		return errors.New("session closed")
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *session) close() {
	c.once.Do(func() { close(c.done) })
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("ws: upgrade failed")
		return
	}

	c := &session{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan string, sendQueueSize),
		done: make(chan struct{}),
	}
	zlog.Info().Msgf("ws: session %s connected from %s", c.id, r.RemoteAddr)

	subID := s.notifier.Subscribe(c)
	defer s.notifier.Unsubscribe(subID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writer(c)
	}()

	s.reader(r.Context(), c)
	c.close()
	_ = conn.Close()
	zlog.Info().Msgf("ws: session %s closed", c.id)
}

// reader executes each text message as one command.
func (s *Server) reader(ctx context.Context, c *session) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Warn().Err(err).Msgf("ws: session %s read failed", c.id)
			}
			return
		}

		reply := command.Handle(ctx, s.player, string(data))
		if reply == "" {
			continue
		}
		if err := c.enqueue(reply); err != nil {
			zlog.Warn().Err(err).Msgf("ws: session %s reply dropped", c.id)
		}
	}
}

// writer owns all writes to the connection.
func (s *Server) writer(c *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				zlog.Debug().Err(err).Msgf("ws: session %s write failed", c.id)
				c.close()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.close()
				_ = c.conn.Close()
				return
			}
		}
	}
}

// FormatEvent renders a notification as an event line.
func FormatEvent(n notification.Notification) string {
	name := "-"
	if n.Event.Track != nil && n.Event.Track.Name != "" {
		name = n.Event.Track.Name
	}
	line := fmt.Sprintf("%s %s %s %s", EventPrefix, n.Event.Type, name, n.Event.State)
	if n.Event.Detail != "" {
		line += " " + n.Event.Detail
	}
	return line + "\n"
}
