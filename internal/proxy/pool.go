// internal/proxy/pool.go
package proxy

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// failureWindow is how long a proxy marked as failed is skipped during
// rotation before it becomes eligible again.
const failureWindow = 5 * time.Minute

// Pool rotates over a set of forward proxies. The fetch client asks for a
// fresh proxy per request; the browser session takes one fixed proxy at
// boot because Chrome cannot switch proxies mid-session.
type Pool struct {
	proxies []string
	index   int
	mu      sync.Mutex
	failed  map[string]time.Time
}

// NewPool creates a pool over the given proxy URLs. The slice may be empty,
// in which case Next always returns "".
func NewPool(proxies []string) *Pool {
	return &Pool{
		proxies: proxies,
		failed:  make(map[string]time.Time),
	}
}

// Size returns the number of proxies in the pool, healthy or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// First returns the first proxy in the pool without advancing rotation.
// Used for the browser allocator, which binds a single proxy for its
// whole lifetime.
func (p *Pool) First() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return ""
	}
	return p.proxies[0]
}

// Next returns the next healthy proxy from the pool.
func (p *Pool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}

	start := p.index
	for {
		proxy := p.proxies[p.index]
		p.index = (p.index + 1) % len(p.proxies)

		if failTime, ok := p.failed[proxy]; ok {
			if time.Since(failTime) < failureWindow {
				if p.index == start {
					// Every proxy is failed; hand out the current one
					// rather than stalling the crawl.
					return proxy
				}
				continue
			}
			delete(p.failed, proxy)
		}

		return proxy
	}
}

// MarkFailed marks a proxy as failed so it will be skipped for a while.
func (p *Pool) MarkFailed(proxy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[proxy] = time.Now()
}

// MarkHealthy clears the failure status of a proxy.
func (p *Pool) MarkHealthy(proxy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, proxy)
}

// Validate checks that a proxy URL is usable by both the HTTP client and
// the browser: it must parse, carry a host, and use a supported scheme.
func Validate(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("unsupported proxy scheme %q (want http, https or socks5)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy URL %q has no host", raw)
	}
	return nil
}
