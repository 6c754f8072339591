package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/wavbox/internal/domain/playlist"
	"github.com/osa030/wavbox/internal/domain/track"
)

func memStore(t *testing.T, files ...string) *Store {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range files {
		raw := append(track.NewHeader(8, 22050).Bytes(), 1, 2, 3, 4, 5, 6, 7, 8)
		require.NoError(t, afero.WriteFile(fs, "/"+name, raw, 0o644))
	}
	return NewWithFs(fs, ".wav")
}

func names(t *testing.T, c playlist.Cursor) []string {
	t.Helper()
	var out []string
	for n, ok := c.Next(); ok; n, ok = c.Next() {
		out = append(out, n)
	}
	return out
}

func TestStore_Scan(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  []string
	}{
		{
			name:  "sorted by name",
			files: []string{"C.WAV", "A.WAV", "B.WAV"},
			want:  []string{"A.WAV", "B.WAV", "C.WAV"},
		},
		{
			name:  "extension matches case-insensitively",
			files: []string{"a.wav", "B.Wav", "C.MP3", "README"},
			want:  []string{"B.Wav", "a.wav"},
		},
		{
			name:  "long names are skipped",
			files: []string{"ABCDEFGH.WAV", "ABCDEFGHI.WAV"},
			want:  []string{"ABCDEFGH.WAV"},
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memStore(t, tt.files...)
			cur, err := s.Scan(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(t, cur))
		})
	}
}

func TestStore_ScanSkipsDirectories(t *testing.T) {
	s := memStore(t, "A.WAV")
	require.NoError(t, s.fs.Mkdir("/DIR.WAV", 0o755))

	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A.WAV", entries[0].Name)
	assert.Equal(t, int64(track.HeaderSize+8), entries[0].Size)
}

func TestStore_ScanCancelled(t *testing.T) {
	s := memStore(t, "A.WAV")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// stallingFs blocks opening one path until release is closed.
type stallingFs struct {
	afero.Fs
	path    string
	release chan struct{}
	opened  chan afero.File
}

func (fs *stallingFs) Open(name string) (afero.File, error) {
	if name != fs.path {
		return fs.Fs.Open(name)
	}
	<-fs.release
	f, err := fs.Fs.Open(name)
	if err == nil {
		fs.opened <- f
	}
	return f, err
}

func stallingStore(t *testing.T, path string) (*Store, *stallingFs) {
	t.Helper()
	base := memStore(t, "A.WAV")
	fs := &stallingFs{Fs: base.fs, path: path, release: make(chan struct{}), opened: make(chan afero.File, 1)}
	return NewWithFs(fs, ".wav"), fs
}

func TestStore_ScanTimesOut(t *testing.T) {
	s, fs := stallingStore(t, "/")
	defer close(fs.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStore_OpenTimesOut(t *testing.T) {
	s, fs := stallingStore(t, "/A.WAV")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Open(ctx, "A.WAV")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned open completes later and its file is closed.
	close(fs.release)
	f := <-fs.opened
	assert.Eventually(t, func() bool {
		_, err := f.ReadAt(make([]byte, 1), 0)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestStore_Open(t *testing.T) {
	s := memStore(t, "Song.wav")
	ctx := context.Background()

	f, err := s.Open(ctx, "SONG.WAV")
	require.NoError(t, err)
	raw, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, raw, track.HeaderSize+8)
	require.NoError(t, f.Close())

	_, err = s.Open(ctx, "OTHER.WAV")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Header(t *testing.T) {
	s := memStore(t, "A.WAV")

	h, err := s.Header(context.Background(), "a.wav")
	require.NoError(t, err)
	assert.Equal(t, uint32(22050), h.SampleRate)
	assert.Equal(t, uint32(8), h.FileSize)
}

func TestStore_NewOnHostDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "A.WAV"), track.NewHeader(0, 8000).Bytes(), 0o644))

	s := New(dir, "")
	assert.Equal(t, dir, s.Dir())
	cur, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A.WAV"}, names(t, cur))
}

func TestStore_WatchInMemory(t *testing.T) {
	s := memStore(t)
	assert.ErrorIs(t, s.Watch(context.Background(), func(string) {}), ErrNotWatchable)
}

func TestStore_Watch(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, ".WAV")

	var mu sync.Mutex
	var seen []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(name string) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name)
		})
	}()

	// Give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "NEW.WAV"), nil, 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "NEW.WAV", seen[0])
	mu.Unlock()

	cancel()
	assert.NoError(t, <-done)
}
