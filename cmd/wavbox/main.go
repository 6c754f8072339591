// Package main provides the player entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/wavbox/internal/api/command"
	"github.com/osa030/wavbox/internal/api/tui"
	"github.com/osa030/wavbox/internal/api/ws"
	"github.com/osa030/wavbox/internal/app/notification"
	"github.com/osa030/wavbox/internal/app/playback"
	"github.com/osa030/wavbox/internal/domain/track"
	"github.com/osa030/wavbox/internal/infra/audio"
	"github.com/osa030/wavbox/internal/infra/config"
	"github.com/osa030/wavbox/internal/infra/discovery"
	"github.com/osa030/wavbox/internal/infra/logger"
	"github.com/osa030/wavbox/internal/infra/store"
)

var (
	app        = kingpin.New("wavbox", "wavbox WAV player")
	configPath = app.Flag("config", "Path to config file").Default("config/wavbox.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list command
	listCmd = app.Command("list", "List playable tracks and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the player (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger from flags so config errors are reported
	if _, err := logger.Init(loggerConfig(nil)); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if cmd == listCmd.FullCommand() {
		if err := printTracks(context.Background(), cfg, os.Stdout); err != nil {
			zlog.Fatal().Msgf("Failed to list tracks: %v", err)
		}
		return
	}

	logWriter, err := logger.Init(loggerConfig(&cfg.Log))
	if err != nil {
		zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
	}
	if c, ok := logWriter.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// loggerConfig merges the log section of the config with the command-line flags.
func loggerConfig(c *config.LogConfig) logger.Config {
	lc := logger.Config{Output: "stdout", Level: "info"}
	if c != nil {
		lc = logger.Config{
			Output:     c.Output,
			Level:      c.Level,
			File:       c.File,
			MaxSizeMB:  c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
		}
	}
	// Override with command-line flags if specified
	if *verbose {
		lc.Level = "debug"
	}
	if *logfile != "" {
		lc.Output = "file"
		lc.File = *logfile
	}
	return lc
}

// run executes the main player logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.Player.MusicDir, cfg.Player.Extension)
	codec := audio.NewSoftCodec()
	out, err := audio.NewOutput(cfg.Output.Driver, cfg.Output.Settings, codec)
	if err != nil {
		return errors.Wrap(err, "failed to create audio output")
	}

	engine, err := playback.NewEngine(playback.Config{
		BufferSize: cfg.Player.BufferSize,
		Volume:     cfg.InitialVolume(),
		Muted:      cfg.Player.Muted,
		IOTimeout:  cfg.IOTimeout(),
	}, st, out, codec)
	if err != nil {
		return errors.Wrap(err, "failed to create playback engine")
	}
	defer engine.Close()

	notifier := notification.NewManager()
	defer notifier.Close()

	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error().Err(err).Msg("Refill task stopped")
		}
	}()
	go notifier.Pump(ctx, engine.Events())
	go func() {
		if err := st.Watch(ctx, engine.NotifyLibraryChanged); err != nil {
			zlog.Warn().Err(err).Msg("Library watch disabled")
		}
	}()

	if !engine.ChooseFirstFile(ctx) {
		zlog.Warn().Msgf("No playable track in %s", cfg.Player.MusicDir)
	}
	if cfg.Player.Autoplay {
		engine.Resume(ctx)
	}

	errCh := make(chan error, 1)
	if cfg.Control.Websocket.Enabled {
		srv := ws.New(ws.Config{Addr: cfg.Control.Websocket.Addr, Path: cfg.Control.Websocket.Path}, engine, notifier)
		go func() {
			if err := srv.Run(ctx); err != nil {
				errCh <- err
			}
		}()

		if cfg.Control.MDNS.Enabled {
			adv, err := advertise(cfg)
			if err != nil {
				zlog.Warn().Err(err).Msg("mDNS advertisement disabled")
			} else {
				defer func() { _ = adv.Shutdown() }()
			}
		}
	}

	// Execute startup hook if configured
	executeHooks(cfg.Hooks.OnStarted, "on_started")

	switch cfg.Control.Console {
	case config.ConsoleSerial:
		go func() {
			rw := struct {
				io.Reader
				io.Writer
			}{os.Stdin, os.Stdout}
			if err := command.Serve(ctx, engine, rw); err != nil {
				zlog.Error().Err(err).Msg("Console stopped")
			}
		}()
	case config.ConsoleTUI:
		// The console owns the terminal
		if cfg.Log.Output != "file" && *logfile == "" {
			zerolog.SetGlobalLevel(zerolog.Disabled)
		}
		go func() {
			if err := tui.Run(ctx, engine, notifier); err != nil {
				zlog.Error().Err(err).Msg("Console stopped")
			}
			stop()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		zlog.Info().Msg("Shutting down...")
	case err := <-errCh:
		runErr = err
	}

	engine.Stop()
	zlog.Info().Msg("Player stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Hooks.OnStopped, "on_stopped")

	return runErr
}

func advertise(cfg *config.Config) (*discovery.Advertiser, error) {
	port, err := discovery.PortFromAddr(cfg.Control.Websocket.Addr)
	if err != nil {
		return nil, err
	}
	return discovery.Advertise(discovery.Config{
		ServiceName: cfg.Control.MDNS.ServiceName,
		Port:        port,
		Path:        cfg.Control.Websocket.Path,
	})
}

// printTracks prints the playable tracks with their header fields.
func printTracks(ctx context.Context, cfg *config.Config, w io.Writer) error {
	st := store.New(cfg.Player.MusicDir, cfg.Player.Extension)
	entries, err := st.Entries(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "Size", "Data", "Rate", "Duration"})

	rows := lo.Map(entries, func(e store.Entry, i int) table.Row {
		h, err := st.Header(ctx, e.Name)
		if err != nil {
			return table.Row{i + 1, e.Name, e.Size, "-", "-", "-"}
		}
		return table.Row{i + 1, e.Name, e.Size, h.FileSize, h.SampleRate, duration(h)}
	})
	t.AppendRows(rows)
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d tracks", len(entries)), lo.SumBy(entries, func(e store.Entry) int64 { return e.Size })})
	t.Render()
	return nil
}

// duration is the playing time of the declared data at 16-bit stereo.
func duration(h track.Header) string {
	if h.SampleRate == 0 {
		return "-"
	}
	secs := float64(h.FileSize) / float64(h.SampleRate*audio.BytesPerFrame)
	return time.Duration(secs * float64(time.Second)).Round(time.Second).String()
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", strings.TrimSpace(hook))
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
