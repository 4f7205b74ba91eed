package mdns

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
	hmdns "github.com/hashicorp/mdns"
	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/discovery"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

const (
	txtID   = "id"
	txtRole = "role"
)

// Advertiser registers services with zeroconf.
type Advertiser struct {
	log *zap.Logger
}

// NewAdvertiser creates a zeroconf advertiser.
func NewAdvertiser(log *zap.Logger) *Advertiser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Advertiser{log: log}
}

type registration struct {
	name   string
	server *zeroconf.Server
}

func (r *registration) Name() string { return r.name }
func (r *registration) Shutdown()    { r.server.Shutdown() }

// Advertise publishes name on serviceType with TXT id and role.
func (a *Advertiser) Advertise(name string, serviceType string, domain string, port int, deviceID string) (discovery.Registration, error) {
	txt := []string{txtRole + "=player"}
	if deviceID != "" {
		txt = append(txt, txtID+"="+deviceID)
	}
	server, err := zeroconf.Register(name, serviceType, domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register: %w", err)
	}
	a.log.Debug("zeroconf registered", zap.String("name", name), zap.Strings("txt", txt))
	return &registration{name: name, server: server}, nil
}

// QueryFunc runs one mDNS query round.
type QueryFunc func(params *hmdns.QueryParam) error

// BrowserOptions tunes browse rounds.
type BrowserOptions struct {
	Interval     time.Duration
	QueryTimeout time.Duration
	// LostAfter is the number of consecutive rounds an instance may be
	// missing before it is reported lost.
	LostAfter int
	Query     QueryFunc
}

func (o BrowserOptions) withDefaults() BrowserOptions {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 2 * time.Second
	}
	if o.LostAfter <= 0 {
		o.LostAfter = 3
	}
	if o.Query == nil {
		o.Query = hmdns.Query
	}
	return o
}

// Browser polls hashicorp/mdns and turns rounds into Found/Lost events.
type Browser struct {
	log  *zap.Logger
	opts BrowserOptions
}

// NewBrowser creates a polling browser.
func NewBrowser(log *zap.Logger, opts BrowserOptions) *Browser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Browser{log: log, opts: opts.withDefaults()}
}

// Browse runs query rounds until ctx is cancelled.
func (b *Browser) Browse(ctx context.Context, serviceType string, domain string, events chan<- discovery.Event) error {
	missed := map[string]int{}
	ids := map[string]string{}
	for {
		seen, err := b.round(ctx, serviceType, domain, ids, events)
		if err != nil {
			b.log.Warn("mdns query failed", zap.Error(err))
		} else {
			for name := range seen {
				missed[name] = 0
			}
			for name := range missed {
				if seen[name] {
					continue
				}
				missed[name]++
				if missed[name] >= b.opts.LostAfter {
					delete(missed, name)
					delete(ids, name)
					if !send(ctx, events, discovery.Event{Kind: discovery.Lost, Record: remote.DeviceRecord{Name: name}}) {
						return ctx.Err()
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.opts.Interval):
		}
	}
}

func (b *Browser) round(ctx context.Context, serviceType string, domain string, ids map[string]string, events chan<- discovery.Event) (map[string]bool, error) {
	entries := make(chan *hmdns.ServiceEntry, 16)
	collected := make(chan []*hmdns.ServiceEntry, 1)
	go func() {
		var all []*hmdns.ServiceEntry
		for entry := range entries {
			all = append(all, entry)
		}
		collected <- all
	}()

	err := b.opts.Query(&hmdns.QueryParam{
		Service:     serviceType,
		Domain:      strings.TrimSuffix(domain, "."),
		Timeout:     b.opts.QueryTimeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	all := <-collected
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, entry := range all {
		name := instanceName(entry.Name, serviceType, domain)
		if name == "" {
			continue
		}
		address := entryAddress(entry)
		if address == "" {
			ev := discovery.Event{Kind: discovery.ResolveFailed, Record: remote.DeviceRecord{Name: name}, Err: fmt.Errorf("no address for %s", entry.Name)}
			if !send(ctx, events, ev) {
				return nil, ctx.Err()
			}
			continue
		}
		seen[name] = true
		id := txtValue(entry.InfoFields, txtID)
		if id == "" {
			if ids[name] == "" {
				ids[name] = uuid.NewString()
			}
			id = ids[name]
		}
		rec := remote.DeviceRecord{Name: name, Address: address, Port: entry.Port, DeviceID: id}
		if !send(ctx, events, discovery.Event{Kind: discovery.Found, Record: rec}) {
			return nil, ctx.Err()
		}
	}
	return seen, nil
}

func send(ctx context.Context, events chan<- discovery.Event, ev discovery.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func entryAddress(entry *hmdns.ServiceEntry) string {
	if entry.AddrV4 != nil {
		return entry.AddrV4.String()
	}
	if entry.AddrV6 != nil {
		return entry.AddrV6.String()
	}
	return ""
}

func txtValue(fields []string, key string) string {
	prefix := key + "="
	for _, field := range fields {
		if strings.HasPrefix(field, prefix) {
			return strings.TrimPrefix(field, prefix)
		}
	}
	return ""
}

// instanceName strips the service suffix and DNS escapes from a full
// instance name such as "Echo\ Player._echo._tcp.local.".
func instanceName(full string, serviceType string, domain string) string {
	suffix := "." + strings.Trim(serviceType, ".") + "." + strings.Trim(domain, ".") + "."
	name := strings.TrimSuffix(full, suffix)
	if name == full {
		name = strings.TrimSuffix(full, ".")
	}
	return unescape(name)
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			if v, err := strconv.Atoi(s[i+1 : i+4]); err == nil && v < 256 {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i+1])
		i++
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
