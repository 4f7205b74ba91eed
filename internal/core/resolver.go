package core

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/mikey-austin/echo_remote/internal/ports"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// Resolver resolves selectors to players.
type Resolver struct {
	Finder ports.DeviceFinder
	Config Config
}

// ResolvePlayer resolves a selector using aliases and the configured
// default. A host:port selector skips discovery.
func (r Resolver) ResolvePlayer(ctx context.Context, selector string) (remote.DeviceRecord, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		selector = r.Config.Defaults.Player
	}
	if alias, ok := r.Config.Aliases[selector]; ok {
		selector = alias
	}
	if rec, ok := parseAddress(selector); ok {
		return rec, nil
	}

	if r.Finder == nil {
		return remote.DeviceRecord{}, &CLIError{Code: ExitRuntime, Msg: "discovery unavailable"}
	}
	devices, err := r.Finder.FindDevices(ctx)
	if err != nil {
		return remote.DeviceRecord{}, WrapError(ExitRuntime, "discover players", err)
	}

	if selector == "" {
		switch len(devices) {
		case 1:
			return devices[0], nil
		case 0:
			return remote.DeviceRecord{}, &CLIError{Code: ExitNotFound, Msg: "no players found"}
		default:
			return remote.DeviceRecord{}, &CLIError{Code: ExitUsage, Msg: fmt.Sprintf("player required: %s", suggestionList(devices))}
		}
	}
	return resolveSelector(selector, devices)
}

func resolveSelector(selector string, devices []remote.DeviceRecord) (remote.DeviceRecord, error) {
	matches := make([]remote.DeviceRecord, 0)
	for _, d := range devices {
		if d.DeviceID != "" && d.DeviceID == selector {
			return d, nil
		}
		if strings.EqualFold(d.Name, selector) {
			matches = append(matches, d)
		}
	}

	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) == 0 {
		return remote.DeviceRecord{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("no match for %q", selector)}
	}
	return remote.DeviceRecord{}, &CLIError{Code: ExitUsage, Msg: fmt.Sprintf("ambiguous selector %q: %s", selector, suggestionList(matches))}
}

// parseAddress accepts host:port, ws://host:port and host (default port)
// when the host looks like an IP address.
func parseAddress(selector string) (remote.DeviceRecord, bool) {
	s := strings.TrimSuffix(strings.TrimPrefix(selector, "ws://"), "/")
	if s == "" {
		return remote.DeviceRecord{}, false
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		if ip := net.ParseIP(s); ip != nil {
			return remote.DeviceRecord{Name: s, Address: s, Port: remote.DefaultPort}, true
		}
		return remote.DeviceRecord{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 || host == "" {
		return remote.DeviceRecord{}, false
	}
	return remote.DeviceRecord{Name: s, Address: host, Port: port}, true
}

func suggestionList(matches []remote.DeviceRecord) string {
	names := make([]string, 0, len(matches))
	for _, d := range matches {
		names = append(names, fmt.Sprintf("%s (%s:%d)", d.Name, d.Address, d.Port))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
