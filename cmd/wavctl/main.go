// Package main provides the wavbox control client.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/osa030/wavbox/internal/api/ws"
	"github.com/osa030/wavbox/internal/infra/discovery"
)

var (
	app     = kingpin.New("wavctl", "wavbox control client")
	url     = app.Flag("url", "Control endpoint URL (discovered via mDNS when empty)").Envar("WAVCTL_URL").String()
	timeout = app.Flag("timeout", "Discovery and reply timeout").Default("3s").Duration()

	// send command
	sendCmd  = app.Command("send", "Send one command line, e.g. \"c SONG.WAV\" or \"v 128\"")
	sendLine = sendCmd.Arg("command", "Command and arguments").Required().Strings()

	// watch command
	watchCmd = app.Command("watch", "Print playback events")

	// discover command
	discoverCmd = app.Command("discover", "List wavbox players on the local network")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case sendCmd.FullCommand():
		err = send(ctx, strings.Join(*sendLine, " "))
	case watchCmd.FullCommand():
		err = watch(ctx)
	case discoverCmd.FullCommand():
		err = discover(ctx)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func endpoint(ctx context.Context) (string, error) {
	if *url != "" {
		return *url, nil
	}
	services, err := discovery.Lookup(ctx, *timeout)
	if err != nil {
		return "", err
	}
	if len(services) == 0 {
		return "", errors.New("no wavbox player found, use --url")
	}
	return services[0].URL(), nil
}

func dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := endpoint(ctx)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", target)
	}
	return conn, nil
}

func send(ctx context.Context, line string) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return errors.Wrap(err, "failed to send command")
	}

	_ = conn.SetReadDeadline(time.Now().Add(*timeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// An empty listing has no reply line
			var netErr net.Error
			if strings.HasPrefix(line, "l") && errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return errors.Wrap(err, "no reply")
		}
		if reply, ok := commandReply(string(data)); ok {
			fmt.Print(reply)
			return nil
		}
	}
}

// commandReply reports whether msg is a command reply rather than a pushed
// event.
func commandReply(msg string) (string, bool) {
	if strings.HasPrefix(msg, ws.EventPrefix) {
		return "", false
	}
	return msg, true
}

func watch(ctx context.Context) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Watching playback events. Press Ctrl+C to exit.")

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "connection closed")
		}
		if _, ok := commandReply(string(data)); ok {
			continue
		}
		fmt.Printf("%s %s", time.Now().Format(time.TimeOnly), data)
	}
}

func discover(ctx context.Context) error {
	services, err := discovery.Lookup(ctx, *timeout)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		fmt.Println("No players found.")
		return nil
	}
	for _, s := range services {
		fmt.Printf("%s\t%s\n", s.Name, s.URL())
	}
	return nil
}
