package command

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	calls   []string
	found   bool
	listing string
	volume  uint8
}

func (f *fakePlayer) Next(context.Context) bool { f.calls = append(f.calls, "next"); return f.found }
func (f *fakePlayer) Previous(context.Context) bool { f.calls = append(f.calls, "previous"); return f.found }
func (f *fakePlayer) ListFiles(context.Context) string {
	f.calls = append(f.calls, "list")
	return f.listing
}
func (f *fakePlayer) PlayFile(_ context.Context, name string) bool {
	f.calls = append(f.calls, "play "+name)
	return f.found
}
func (f *fakePlayer) Pause() { f.calls = append(f.calls, "pause") }
func (f *fakePlayer) Resume(context.Context) { f.calls = append(f.calls, "resume") }
func (f *fakePlayer) Stop() { f.calls = append(f.calls, "stop") }
func (f *fakePlayer) Mute() { f.calls = append(f.calls, "mute") }
func (f *fakePlayer) Unmute() { f.calls = append(f.calls, "unmute") }
func (f *fakePlayer) SetVolume(v uint8) {
	f.calls = append(f.calls, "volume")
	f.volume = v
}

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr error
	}{
		{line: ">", want: Command{Kind: KindNext}},
		{line: "<\r\n", want: Command{Kind: KindPrevious}},
		{line: "l", want: Command{Kind: KindList}},
		{line: "p", want: Command{Kind: KindPause}},
		{line: "r", want: Command{Kind: KindResume}},
		{line: "s", want: Command{Kind: KindStop}},
		{line: "m", want: Command{Kind: KindMute}},
		{line: "u", want: Command{Kind: KindUnmute}},
		{line: "stop", want: Command{Kind: KindStop}},
		{line: "c song.wav\n", want: Command{Kind: KindChoose, Name: "SONG.WAV"}},
		{line: "c:a.wav", want: Command{Kind: KindChoose, Name: "A.WAV"}},
		{line: "c ", wantErr: ErrNoFileName},
		{line: "c", wantErr: ErrNoFileName},
		{line: "v 0", want: Command{Kind: KindVolume, Volume: 0}},
		{line: "v 42", want: Command{Kind: KindVolume, Volume: 42}},
		{line: "v 255", want: Command{Kind: KindVolume, Volume: 255}},
		{line: "v 256", wantErr: ErrInvalidVolume},
		{line: "v 1000", wantErr: ErrInvalidVolume},
		{line: "v 4a", wantErr: ErrInvalidVolume},
		{line: "v -1", wantErr: ErrInvalidVolume},
		{line: "v", wantErr: ErrInvalidVolume},
		{line: "v5", wantErr: ErrInvalidVolume},
		{line: "x", wantErr: ErrUndefined},
		{line: "", wantErr: ErrUndefined},
		{line: "N", wantErr: ErrUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_LongLineIsCut(t *testing.T) {
	cmd, err := Parse("c " + strings.Repeat("a", 80))
	require.NoError(t, err)
	assert.Len(t, cmd.Name, MaxLineLen-2)
}

func TestHandle_Replies(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		found     bool
		want      string
		wantCalls []string
	}{
		{name: "next", line: ">", found: true, want: ReplySuccess, wantCalls: []string{"next"}},
		{name: "next missing", line: ">", want: ReplyNoAudioFile, wantCalls: []string{"next"}},
		{name: "previous missing", line: "<", want: ReplyNoAudioFile, wantCalls: []string{"previous"}},
		{name: "choose", line: "c b.wav", found: true, want: ReplySuccess, wantCalls: []string{"play B.WAV"}},
		{name: "choose fails", line: "c b.wav", want: ReplyOpenFailed, wantCalls: []string{"play B.WAV"}},
		{name: "choose no name", line: "c", want: ReplyNoFileName},
		{name: "pause", line: "p", want: ReplySuccess, wantCalls: []string{"pause"}},
		{name: "resume", line: "r", want: ReplySuccess, wantCalls: []string{"resume"}},
		{name: "stop", line: "s", want: ReplySuccess, wantCalls: []string{"stop"}},
		{name: "mute", line: "m", want: ReplySuccess, wantCalls: []string{"mute"}},
		{name: "unmute", line: "u", want: ReplySuccess, wantCalls: []string{"unmute"}},
		{name: "volume", line: "v 7", want: ReplySuccess, wantCalls: []string{"volume"}},
		{name: "bad volume", line: "v 300", want: ReplyInvalidVolume},
		{name: "undefined", line: "?", want: ReplyUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePlayer{found: tt.found}
			assert.Equal(t, tt.want, Handle(context.Background(), p, tt.line))
			assert.Equal(t, tt.wantCalls, p.calls)
		})
	}
}

func TestHandle_ListReturnsListing(t *testing.T) {
	p := &fakePlayer{listing: "A.WAV\nB.WAV\n"}
	assert.Equal(t, "A.WAV\nB.WAV\n", Handle(context.Background(), p, "l"))
}

type pipe struct {
	io.Reader
	out bytes.Buffer
}

func (p *pipe) Write(b []byte) (int, error) { return p.out.Write(b) }

func TestServe(t *testing.T) {
	p := &fakePlayer{found: true, listing: "A.WAV\n"}
	rw := &pipe{Reader: strings.NewReader("l\r\n\n> \nv 300\nv 9\nz")}

	require.NoError(t, Serve(context.Background(), p, rw))

	assert.Equal(t, "A.WAV\n"+ReplySuccess+ReplyInvalidVolume+ReplySuccess+ReplyUndefined, rw.out.String())
	assert.Equal(t, uint8(9), p.volume)
}

func TestServe_StopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()
	rw := &pipe{Reader: r}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, &fakePlayer{}, rw) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "CHOOSE", KindChoose.String())
	assert.Equal(t, "UNKNOWN", Kind(99).String())
}
