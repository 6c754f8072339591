package command

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Serve runs the protocol over rw until the input ends or ctx is done.
func Serve(ctx context.Context, p Player, rw io.ReadWriter) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		r := bufio.NewReader(rw)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- errors.Wrap(err, "failed to read command")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			// Blank lines from an interactive terminal carry no command
			if strings.TrimRight(line, "\r\n") == "" {
				continue
			}
			reply := Handle(ctx, p, line)
			if reply == "" {
				continue
			}
			if _, err := io.WriteString(rw, reply); err != nil {
				return errors.Wrap(err, "failed to write reply")
			}
			zlog.Debug().Msgf("command: replied %q", reply)
		}
	}
}
