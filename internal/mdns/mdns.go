// Package mdns advertises the UDP input of a channel over zeroconf and
// browses for other instances.
package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// Service is the DNS-SD service type of a UDP source input.
	Service = "_udpsource._udp"
	Domain  = "local."
)

// Host represents a discovered UDP source input.
type Host struct {
	Instance  string
	Hostname  string
	Addresses []net.IP
	Port      int
	TXT       map[string]string
}

// Advertisement describes the service record to register.
type Advertisement struct {
	Instance string
	Port     int
	TXT      map[string]string
}

// Advertiser keeps a service registered until Shutdown.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers ad on all multicast-capable interfaces.
func Advertise(ad Advertisement) (*Advertiser, error) {
	if ad.Instance == "" {
		return nil, errors.New("instance name is required")
	}
	if ad.Port <= 0 || ad.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", ad.Port)
	}
	server, err := zeroconf.Register(ad.Instance, Service, Domain, ad.Port, EncodeTXT(ad.TXT), nil)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", Service, err)
	}
	return &Advertiser{server: server}, nil
}

// Update replaces the TXT records, e.g. after the sample format changed.
func (a *Advertiser) Update(txt map[string]string) {
	if a == nil || a.server == nil {
		return
	}
	a.server.SetText(EncodeTXT(txt))
}

// Shutdown withdraws the registration.
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// Discover performs a blocking browse for UDP source inputs. It returns
// cleaned and deduplicated host entries.
func Discover(ctx context.Context, timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				h := hostFromEntry(e)
				resultMap[fmt.Sprintf("%s|%d", h.Hostname, h.Port)] = h
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	<-done

	out := make([]Host, 0, len(resultMap))
	for _, h := range resultMap {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

func hostFromEntry(e *zeroconf.ServiceEntry) Host {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		TXT:       DecodeTXT(e.Text),
	}
}

// EncodeTXT renders key=value records sorted by key.
func EncodeTXT(txt map[string]string) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+txt[k])
	}
	return out
}

// DecodeTXT parses key=value records. A record without '=' maps to "".
func DecodeTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
