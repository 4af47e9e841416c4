package adapter

import (
	"strings"
	"sync"
	"time"

	"github.com/near-pulse/internal/errors"
	"github.com/near-pulse/internal/logging"
)

const defaultEndpointCooldown = 60 * time.Second

// EndpointPool tracks several equivalent endpoints of one source.
// Strategy: stick to the current endpoint until it rate limits us, then move to
// the next one that is not cooling down. The primary is preferred again once
// its cooldown expires.
type EndpointPool struct {
	endpoints    []string
	currentIndex int
	mu           sync.Mutex
	cooldowns    map[int]time.Time // when each endpoint was rate limited
	cooldownTime time.Duration
	now          func() time.Time
}

// EndpointStatus represents the status of a single endpoint
type EndpointStatus struct {
	URL               string        `json:"url"`
	IsCurrent         bool          `json:"isCurrent"`
	InCooldown        bool          `json:"inCooldown"`
	CooldownRemaining time.Duration `json:"cooldownRemaining"`
}

// ParseEndpoints splits a comma-separated URL list, dropping blanks
func ParseEndpoints(urls string) []string {
	var endpoints []string
	for _, ep := range strings.Split(urls, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints
}

// NewEndpointPool creates a pool. cooldown <= 0 means 60s.
func NewEndpointPool(endpoints []string, cooldown time.Duration) *EndpointPool {
	if cooldown <= 0 {
		cooldown = defaultEndpointCooldown
	}
	return &EndpointPool{
		endpoints:    endpoints,
		cooldowns:    make(map[int]time.Time),
		cooldownTime: cooldown,
		now:          time.Now,
	}
}

// Len returns the number of endpoints in the pool
func (p *EndpointPool) Len() int {
	return len(p.endpoints)
}

// Current returns the index of the active endpoint, switching back to the
// primary when its cooldown has expired
func (p *EndpointPool) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentIndex != 0 && !p.coolingLocked(0) {
		p.currentIndex = 0
	}
	return p.currentIndex
}

// OnRateLimited marks the endpoint at index as cooling down and moves to the
// next available one. It returns false when every endpoint is cooling down.
func (p *EndpointPool) OnRateLimited(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cooldowns[index] = p.now()

	for i := 1; i <= len(p.endpoints); i++ {
		next := (index + i) % len(p.endpoints)
		if p.coolingLocked(next) {
			continue
		}
		if next != p.currentIndex {
			logging.WithFields(logging.Fields{
				"from": p.endpoints[index],
				"to":   p.endpoints[next],
			}).Warn("Endpoint rate limited, failing over")
		}
		p.currentIndex = next
		return true
	}
	return false
}

// coolingLocked reports whether index is still cooling down (must hold lock)
func (p *EndpointPool) coolingLocked(index int) bool {
	since, ok := p.cooldowns[index]
	if !ok {
		return false
	}
	if p.now().Sub(since) < p.cooldownTime {
		return true
	}
	delete(p.cooldowns, index)
	return false
}

// Status returns the current status of every endpoint
func (p *EndpointPool) Status() []EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := make([]EndpointStatus, len(p.endpoints))
	for i, url := range p.endpoints {
		es := EndpointStatus{URL: url, IsCurrent: i == p.currentIndex}
		if since, ok := p.cooldowns[i]; ok {
			if remaining := p.cooldownTime - p.now().Sub(since); remaining > 0 {
				es.InCooldown = true
				es.CooldownRemaining = remaining
			}
		}
		status[i] = es
	}
	return status
}

// isRateLimited checks if an upstream answered 429
func isRateLimited(err error) bool {
	catErr := errors.Categorize(err)
	return catErr != nil && catErr.Code == "SOURCE_RATE_LIMIT"
}
