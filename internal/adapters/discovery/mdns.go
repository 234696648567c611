// Package discovery advertises the relay on the local network so clients
// can find it without configuration.
package discovery

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

const DefaultService = "_inkroom._tcp"

type Advertiser struct {
	server *mdns.Server
}

// Advertise publishes service on port until Shutdown.
func Advertise(service string, port int, info ...string) (*Advertiser, error) {
	if service == "" {
		service = DefaultService
	}
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	if len(info) == 0 {
		info = []string{"Inkroom"}
	}

	zone, err := mdns.NewMDNSService(host, service, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	log.Info().Str("module", "discovery").Str("service", service).Str("host", host).Int("port", port).Msg("advertising")
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}

// Browse returns host:port addresses of relays answering within timeout.
func Browse(service string, timeout time.Duration) ([]string, error) {
	if service == "" {
		service = DefaultService
	}
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []string)
	go func() {
		var found []string
		for e := range entries {
			if addr, ok := entryAddr(e); ok {
				found = append(found, addr)
			}
		}
		done <- found
	}()

	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = timeout
	err := mdns.Query(params)
	close(entries)
	found := <-done
	if err != nil {
		return found, fmt.Errorf("mdns query %s: %w", service, err)
	}
	return found, nil
}

func entryAddr(e *mdns.ServiceEntry) (string, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return "", false
	}
	return fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port), true
}
