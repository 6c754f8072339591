package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortFromAddr(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{addr: ":7070", want: 7070},
		{addr: "127.0.0.1:9000", want: 9000},
		{addr: "7070", wantErr: true},
		{addr: ":http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := PortFromAddr(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "kitchen._wavbox._tcp.local.",
		Host:       "pi.local.",
		AddrV4:     net.IPv4(192, 168, 1, 20),
		Port:       7070,
		InfoFields: []string{"path=/control"},
	}

	s := fromEntry(entry)
	assert.Equal(t, "kitchen", s.Name)
	assert.Equal(t, "192.168.1.20", s.Host)
	assert.Equal(t, "ws://192.168.1.20:7070/control", s.URL())
}

func TestFromEntry_NoAddress(t *testing.T) {
	s := fromEntry(&mdns.ServiceEntry{Name: "x", Host: "pi.local.", Port: 1})
	assert.Equal(t, "pi.local", s.Host)
	assert.Equal(t, "/", s.Path)
}
