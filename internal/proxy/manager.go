// Package proxy rotates the network identity of portal sessions.
package proxy

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
}

// Manager handles the rotation of proxies and user agents.
// One identity is used for a whole portal session.
type Manager struct {
	proxies    []*url.URL
	userAgents []string
	mu         sync.Mutex
	proxyIndex int
	pick       func(n int) int
}

// NewManager parses the proxy list. No user agents selects a built-in set of
// desktop browsers.
func NewManager(proxies, userAgents []string) (*Manager, error) {
	m := &Manager{pick: rand.IntN}
	for _, raw := range proxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", raw)
		}
		m.proxies = append(m.proxies, u)
	}
	for _, ua := range userAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			m.userAgents = append(m.userAgents, ua)
		}
	}
	if len(m.userAgents) == 0 {
		m.userAgents = defaultUserAgents
	}
	return m, nil
}

// Next returns the proxy for a new session, rotating sequentially, and a
// random user agent. The proxy is nil when none are configured.
func (m *Manager) Next() (*url.URL, string) {
	return m.nextProxy(), m.userAgents[m.pick(len(m.userAgents))]
}

func (m *Manager) nextProxy() *url.URL {
	if len(m.proxies) == 0 {
		return nil // direct
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return p
}

// Size is the number of configured proxies.
func (m *Manager) Size() int { return len(m.proxies) }
