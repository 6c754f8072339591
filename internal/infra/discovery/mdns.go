// Package discovery advertises and finds wavbox control endpoints via mDNS.
package discovery

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/mdns"
	zlog "github.com/rs/zerolog/log"
)

// ServiceType is the mDNS service type of the websocket control endpoint.
const ServiceType = "_wavbox._tcp"

// Config holds advertisement configuration.
type Config struct {
	ServiceName string
	Port        int
	Path        string // Websocket path, published as a TXT record
}

// Service describes a discovered endpoint.
type Service struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the websocket URL of the service.
func (s Service) URL() string {
	return "ws://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + s.Path
}

// Advertiser keeps a service advertised until shut down.
type Advertiser struct {
	server *mdns.Server
}

// Advertise starts answering mDNS queries for the service.
func Advertise(cfg Config) (*Advertiser, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get local IPs")
	}

	service, err := mdns.NewMDNSService(
		cfg.ServiceName,
		ServiceType,
		"",
		"",
		cfg.Port,
		ips,
		[]string{"path=" + cfg.Path},
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create service")
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create mdns server")
	}

	zlog.Info().Msgf("discovery: advertising %s on port %d (type: %s)", cfg.ServiceName, cfg.Port, ServiceType)
	return &Advertiser{server: server}, nil
}

// Shutdown stops the advertisement.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Lookup queries the local network for endpoints until timeout.
func Lookup(ctx context.Context, timeout time.Duration) ([]Service, error) {
	entries := make(chan *mdns.ServiceEntry, 10)
	var found []Service

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			found = append(found, fromEntry(entry))
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-done
	if err != nil {
		return nil, errors.Wrap(err, "mdns query failed")
	}
	return found, nil
}

func fromEntry(entry *mdns.ServiceEntry) Service {
	s := Service{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Port: entry.Port,
		Path: "/",
	}
	if entry.AddrV4 != nil {
		s.Host = entry.AddrV4.String()
	} else {
		s.Host = strings.TrimSuffix(entry.Host, ".")
	}
	for _, f := range entry.InfoFields {
		if p, ok := strings.CutPrefix(f, "path="); ok {
			s.Path = p
		}
	}
	return s
}

// PortFromAddr extracts the port of a listen address such as ":7070".
func PortFromAddr(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid address %q", addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid port in %q", addr)
	}
	return n, nil
}

// localIPs returns the non-loopback IPv4 addresses of the host.
func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
