// Package store provides the track file store backed by afero.
package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/osa030/wavbox/internal/domain/playlist"
	"github.com/osa030/wavbox/internal/domain/track"
)

// DefaultExtension is the track file extension when none is configured.
const DefaultExtension = ".WAV"

var (
	// ErrNotFound is returned when no track matches a name.
	ErrNotFound = errors.New("track not found")
	// ErrNotWatchable is returned by Watch for stores without a host directory.
	ErrNotWatchable = errors.New("store has no host directory to watch")
)

// Entry is one track file in the listing.
type Entry struct {
	Name string
	Size int64
}

// Store lists and opens track files from a single flat directory.
type Store struct {
	fs  afero.Fs
	dir string // Host directory, empty for in-memory stores
	ext string
}

// New creates a store rooted at dir on the host file system.
func New(dir, ext string) *Store {
	s := NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir), ext)
	s.dir = dir
	return s
}

// NewWithFs creates a store over an arbitrary afero file system.
func NewWithFs(fs afero.Fs, ext string) *Store {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Store{fs: fs, ext: ext}
}

// Dir returns the host directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Entries returns the track files in directory order.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "store scan cancelled")
	}

	infos, err := bounded(ctx, func() ([]os.FileInfo, error) {
		return afero.ReadDir(s.fs, "/")
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read music directory")
	}

	return lo.FilterMap(infos, func(fi os.FileInfo, _ int) (Entry, bool) {
		if !fi.Mode().IsRegular() || !s.isTrack(fi.Name()) {
			return Entry{}, false
		}
		return Entry{Name: fi.Name(), Size: fi.Size()}, true
	}), nil
}

// Scan implements playlist.Scanner.
func (s *Store) Scan(ctx context.Context) (playlist.Cursor, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	names := lo.Map(entries, func(e Entry, _ int) string { return e.Name })
	return playlist.NewListing(names), nil
}

// Open opens a track by name. Names match case-insensitively.
func (s *Store) Open(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok := lo.Find(entries, func(e Entry) bool { return track.SameName(e.Name, name) })
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}

	f, err := bounded(ctx, func() (afero.File, error) {
		return s.fs.Open("/" + entry.Name)
	}, func(f afero.File) { _ = f.Close() })
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", entry.Name)
	}
	return f, nil
}

// Header reads the header of a track without keeping it open.
func (s *Store) Header(ctx context.Context, name string) (track.Header, error) {
	f, err := s.Open(ctx, name)
	if err != nil {
		return track.Header{}, err
	}
	defer func() { _ = f.Close() }()

	h, _, err := track.ReadHeader(f)
	return h, err
}

// Watch reports created, removed and renamed track files to fn until ctx
// is done.
func (s *Store) Watch(ctx context.Context, fn func(name string)) error {
	if s.dir == "" {
		return ErrNotWatchable
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", s.dir)
	}
	zlog.Debug().Msgf("store: watching %s", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !s.isTrack(name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				zlog.Debug().Msgf("store: %s %s", event.Op, name)
				fn(name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zlog.Warn().Err(err).Msg("store: watch error")
		}
	}
}

// bounded runs fn until it returns or ctx is done. A call given up on keeps
// running in the background and its result is passed to release.
func bounded[T any](ctx context.Context, fn func() (T, error), release func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil && release != nil {
				release(r.v)
			}
		}()
		var zero T
		return zero, errors.Wrap(ctx.Err(), "store call abandoned")
	}
}

func (s *Store) isTrack(name string) bool {
	if len(name) > track.MaxNameLen {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), s.ext)
}
