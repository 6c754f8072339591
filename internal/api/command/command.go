// Package command implements the line-oriented control protocol: one
// command per line, one reply per command.
package command

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// MaxLineLen is the longest command line accepted; longer input is cut.
const MaxLineLen = 50

// Replies.
const (
	ReplySuccess       = "[SUCCESS]\n"
	ReplyNoAudioFile   = "[ERROR] couldn't find an audio file.\n"
	ReplyNoFileName    = "[ERROR] No file name.\n"
	ReplyOpenFailed    = "[ERROR] couldn't open the file.\n"
	ReplyInvalidVolume = "[ERROR] invalid volume value, volume range is [0-255].\n"
	ReplyUndefined     = "[ERROR] undefined command.\n"
)

// Parse errors.
var (
	ErrNoFileName    = errors.New("no file name")
	ErrInvalidVolume = errors.New("invalid volume value")
	ErrUndefined     = errors.New("undefined command")
)

// Player is the playback surface driven by commands.
type Player interface {
	Next(ctx context.Context) bool
	Previous(ctx context.Context) bool
	ListFiles(ctx context.Context) string
	PlayFile(ctx context.Context, name string) bool
	Pause()
	Resume(ctx context.Context)
	Stop()
	Mute()
	Unmute()
	SetVolume(v uint8)
}

// Kind identifies a command.
type Kind int

const (
	KindNext Kind = iota
	KindPrevious
	KindList
	KindChoose
	KindPause
	KindResume
	KindStop
	KindMute
	KindUnmute
	KindVolume
)

func (k Kind) String() string {
	switch k {
	case KindNext:
		return "NEXT"
	case KindPrevious:
		return "PREVIOUS"
	case KindList:
		return "LIST"
	case KindChoose:
		return "CHOOSE"
	case KindPause:
		return "PAUSE"
	case KindResume:
		return "RESUME"
	case KindStop:
		return "STOP"
	case KindMute:
		return "MUTE"
	case KindUnmute:
		return "UNMUTE"
	case KindVolume:
		return "VOLUME"
	default:
		return "UNKNOWN"
	}
}

// Command is one parsed command line.
type Command struct {
	Kind   Kind
	Name   string // KindChoose: upper-cased file name
	Volume uint8  // KindVolume
}

var simple = map[byte]Kind{
	'>': KindNext,
	'<': KindPrevious,
	'l': KindList,
	'p': KindPause,
	'r': KindResume,
	's': KindStop,
	'm': KindMute,
	'u': KindUnmute,
}

// Parse parses one command line. Only the first character selects the
// command; arguments start at the third character.
func Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) > MaxLineLen {
		line = line[:MaxLineLen]
	}
	if line == "" {
		return Command{}, ErrUndefined
	}

	if k, ok := simple[line[0]]; ok {
		return Command{Kind: k}, nil
	}

	switch line[0] {
	case 'c':
		if len(line) <= 2 {
			return Command{}, ErrNoFileName
		}
		return Command{Kind: KindChoose, Name: strings.ToUpper(line[2:])}, nil
	case 'v':
		v, err := parseVolume(argument(line))
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindVolume, Volume: v}, nil
	default:
		return Command{}, errors.Wrapf(ErrUndefined, "%q", line)
	}
}

func argument(line string) string {
	if len(line) <= 2 {
		return ""
	}
	return line[2:]
}

// parseVolume accepts one to three decimal digits with a value of at most 255.
func parseVolume(s string) (uint8, error) {
	if len(s) == 0 || len(s) > 3 {
		return 0, errors.Wrapf(ErrInvalidVolume, "%q", s)
	}
	v := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, errors.Wrapf(ErrInvalidVolume, "%q", s)
		}
		v = v*10 + int(s[i]-'0')
	}
	if v > 255 {
		return 0, errors.Wrapf(ErrInvalidVolume, "%q", s)
	}
	return uint8(v), nil
}

// Execute runs a parsed command and returns its reply.
func Execute(ctx context.Context, p Player, cmd Command) string {
	zlog.Debug().Msgf("command: %s", cmd.Kind)

	switch cmd.Kind {
	case KindNext:
		if !p.Next(ctx) {
			return ReplyNoAudioFile
		}
	case KindPrevious:
		if !p.Previous(ctx) {
			return ReplyNoAudioFile
		}
	case KindList:
		return p.ListFiles(ctx)
	case KindChoose:
		if !p.PlayFile(ctx, cmd.Name) {
			return ReplyOpenFailed
		}
	case KindPause:
		p.Pause()
	case KindResume:
		p.Resume(ctx)
	case KindStop:
		p.Stop()
	case KindMute:
		p.Mute()
	case KindUnmute:
		p.Unmute()
	case KindVolume:
		p.SetVolume(cmd.Volume)
	default:
		return ReplyUndefined
	}
	return ReplySuccess
}

// Handle parses and executes one line, returning the reply.
func Handle(ctx context.Context, p Player, line string) string {
	cmd, err := Parse(line)
	if err != nil {
		zlog.Debug().Err(err).Msg("command: rejected")
		return errorReply(err)
	}
	return Execute(ctx, p, cmd)
}

func errorReply(err error) string {
	switch {
	case errors.Is(err, ErrNoFileName):
		return ReplyNoFileName
	case errors.Is(err, ErrInvalidVolume):
		return ReplyInvalidVolume
	default:
		return ReplyUndefined
	}
}
