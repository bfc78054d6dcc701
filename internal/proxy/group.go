package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrProxyFormat is returned when a proxy string is neither host:port
	// nor host:port:username:password.
	ErrProxyFormat = errors.New("invalid proxy format")

	// ErrProxyNotFound is returned when rotation is requested on an empty group.
	ErrProxyNotFound = errors.New("proxy not found")
)

// Rotator hands out the next egress proxy.
// Group is the production implementation; tests substitute their own.
type Rotator interface {
	Next() (*url.URL, error)
}

// Group is a fixed round-robin pool of HTTP proxy endpoints shared by every task.
// The slice never changes after construction; only the cursor moves.
type Group struct {
	mu      sync.RWMutex // Guards index
	proxies []*url.URL
	index   int // Position of the proxy most recently handed out
}

// ParseProxy converts "host:port" or "host:port:username:password" into an
// http proxy URL.
func ParseProxy(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")

	var u *url.URL
	switch len(parts) {
	case 2:
		u = &url.URL{Scheme: "http", Host: parts[0] + ":" + parts[1]}
	case 4:
		u = &url.URL{
			Scheme: "http",
			Host:   parts[0] + ":" + parts[1],
			User:   url.UserPassword(parts[2], parts[3]),
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrProxyFormat, raw)
	}

	if parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: %q has an empty host or port", ErrProxyFormat, raw)
	}

	// Round-trip through the parser so the URL is usable by net/http transports.
	parsed, err := url.Parse(u.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrProxyFormat, raw, err)
	}

	return parsed, nil
}

// NewGroup parses every raw proxy string. A single malformed entry fails the
// whole group; nothing is silently dropped.
func NewGroup(raw []string) (*Group, error) {
	proxies := make([]*url.URL, 0, len(raw))
	for i, r := range raw {
		u, err := ParseProxy(r)
		if err != nil {
			return nil, fmt.Errorf("proxy #%d: %w", i+1, err)
		}
		proxies = append(proxies, u)
	}

	return &Group{proxies: proxies}, nil
}

// Next advances the cursor by one (wrapping around) and returns the proxy at
// the new position. With one proxy it keeps returning that proxy.
func (g *Group) Next() (*url.URL, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.proxies) == 0 {
		return nil, ErrProxyNotFound
	}

	g.index = (g.index + 1) % len(g.proxies)

	// Hand out a copy so callers can't mutate the pool entry.
	u := *g.proxies[g.index]
	return &u, nil
}

// Len returns the number of proxies in the group.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.proxies)
}

// Index returns the cursor position of the most recently handed out proxy.
func (g *Group) Index() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.index
}
