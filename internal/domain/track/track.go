// Package track provides the Track domain entity: one open PCM source.
package track

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	HeaderSize = 44 // Fixed WAV header length in bytes
	MaxNameLen = 12 // 8.3 short name
)

// ErrInvalidName is returned for empty or over-long track names.
var ErrInvalidName = errors.New("invalid track name")

// Header is the fixed-layout file header. Only the declared data length and
// the sample rate are used; the other fields are kept as read.
type Header struct {
	RiffMarker uint32
	FileSize   uint32 // Declared data length
	Reserved1  [4]uint32
	SampleRate uint32
	Reserved2  [4]uint32
}

// ParseHeader decodes a header from raw bytes. Missing trailing bytes read as
// zero; magic and format fields are not checked.
func ParseHeader(raw []byte) Header {
	var buf [HeaderSize]byte
	copy(buf[:], raw)

	le := binary.LittleEndian
	h := Header{
		RiffMarker: le.Uint32(buf[0:]),
		FileSize:   le.Uint32(buf[4:]),
		SampleRate: le.Uint32(buf[24:]),
	}
	for i := range h.Reserved1 {
		h.Reserved1[i] = le.Uint32(buf[8+4*i:])
	}
	for i := range h.Reserved2 {
		h.Reserved2[i] = le.Uint32(buf[28+4*i:])
	}
	return h
}

// NewHeader builds a 16-bit stereo PCM header for dataLen bytes at rate.
func NewHeader(dataLen, rate uint32) Header {
	return Header{
		RiffMarker: 0x46464952, // "RIFF"
		FileSize:   dataLen,
		Reserved1:  [4]uint32{0x45564157, 0x20746d66, 16, 0x00020001}, // "WAVE" "fmt " 16 PCM/2ch
		SampleRate: rate,
		Reserved2:  [4]uint32{rate * 4, 0x00100004, 0x61746164, dataLen}, // byte rate, align 4/16-bit, "data"
	}
}

// Bytes encodes the header in its on-disk layout.
func (h Header) Bytes() []byte {
	le := binary.LittleEndian
	raw := make([]byte, HeaderSize)
	le.PutUint32(raw[0:], h.RiffMarker)
	le.PutUint32(raw[4:], h.FileSize)
	for i, v := range h.Reserved1 {
		le.PutUint32(raw[8+4*i:], v)
	}
	le.PutUint32(raw[24:], h.SampleRate)
	for i, v := range h.Reserved2 {
		le.PutUint32(raw[28+4*i:], v)
	}
	return raw
}

// ReadHeader reads up to HeaderSize bytes from r and parses them.
// A short read is not an error.
func ReadHeader(r io.Reader) (Header, int, error) {
	raw := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, raw)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Header{}, n, errors.Wrap(err, "failed to read header")
	}
	return ParseHeader(raw[:n]), n, nil
}

// NormalizeName upper-cases a track name and checks its length.
func NormalizeName(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" || len(name) > MaxNameLen {
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return name, nil
}

// SameName reports whether two track names refer to the same file.
func SameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Info is a point-in-time copy of a Source without the file handle.
type Info struct {
	Name           string
	TotalDataBytes uint32
	SampleRate     uint32
	RemainingBytes uint32
}

// Source represents the currently selected, open track.
// It is replaced, never reused, when another track is opened.
type Source struct {
	Name           string
	TotalDataBytes uint32
	SampleRate     uint32
	RemainingBytes uint32

	file io.ReadSeekCloser
}

// Open wraps an open file as a Source and parses its header.
// The returned error, if any, is a read failure on the header; the Source
// is still usable with whatever was read.
func Open(name string, f io.ReadSeekCloser) (*Source, error) {
	h, _, err := ReadHeader(f)
	return &Source{
		Name:           name,
		TotalDataBytes: h.FileSize,
		SampleRate:     h.SampleRate,
		file:           f,
	}, err
}

// Read reads sample data, filling p as far as the file allows.
func (s *Source) Read(p []byte) (int, error) {
	n, err := io.ReadFull(s.file, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, io.EOF
	}
	return n, err
}

// Rewind positions the source right after the header.
func (s *Source) Rewind() error {
	if _, err := s.file.Seek(HeaderSize, io.SeekStart); err != nil {
		return errors.Wrapf(err, "failed to seek %s", s.Name)
	}
	return nil
}

// Reset recomputes RemainingBytes after an initial fill of n bytes.
func (s *Source) Reset(n int) {
	s.RemainingBytes = 0
	if uint32(n) < s.TotalDataBytes {
		s.RemainingBytes = s.TotalDataBytes - uint32(n)
	}
}

// Info returns a snapshot of the source.
func (s *Source) Info() Info {
	return Info{
		Name:           s.Name,
		TotalDataBytes: s.TotalDataBytes,
		SampleRate:     s.SampleRate,
		RemainingBytes: s.RemainingBytes,
	}
}

// Close releases the file handle.
func (s *Source) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
