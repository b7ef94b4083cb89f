// Package hints fetches role-scoped example phrases. Hints are decorative:
// failures yield an empty set and are never surfaced.
package hints

import (
	"context"
	"encoding/json"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const fetchTimeout = 10 * time.Second

// Hints is the answer for one role.
type Hints struct {
	Role    string   `json:"role"`
	Phrases []string `json:"hints"`
	Tip     string   `json:"tip,omitempty"`
}

// Getter is the transport used by Provider.
type Getter interface {
	GetJSON(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// Provider caches successful fetches per role for its lifetime.
type Provider struct {
	getter Getter
	path   string
	logger *logrus.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]Hints
}

// NewProvider returns a provider reading path on the hints service.
func NewProvider(getter Getter, path string, logger *logrus.Logger) *Provider {
	if path == "" {
		path = "/voice/hints"
	}
	return &Provider{getter: getter, path: path, logger: logger, cache: map[string]Hints{}}
}

// Fetch returns hints for role. It never fails; concurrent fetches for the
// same role share one request.
func (p *Provider) Fetch(ctx context.Context, role string) Hints {
	role = strings.ToUpper(strings.TrimSpace(role))
	p.mu.Lock()
	if h, ok := p.cache[role]; ok {
		p.mu.Unlock()
		h.Phrases = slices.Clone(h.Phrases)
		return h
	}
	p.mu.Unlock()

	v, _, _ := p.group.Do(role, func() (any, error) {
		h, ok := p.fetch(ctx, role)
		if ok {
			p.mu.Lock()
			p.cache[role] = h
			p.mu.Unlock()
		}
		return h, nil
	})
	h := v.(Hints)
	h.Phrases = slices.Clone(h.Phrases)
	return h
}

func (p *Provider) fetch(ctx context.Context, role string) (Hints, bool) {
	empty := Hints{Role: role, Phrases: []string{}}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	query := url.Values{}
	if role != "" {
		query.Set("role", role)
	}
	raw, err := p.getter.GetJSON(ctx, p.path, query)
	if err != nil {
		p.logger.Debugf("hints unavailable for %q: %v", role, err)
		return empty, false
	}
	var h Hints
	if err := json.Unmarshal(raw, &h); err != nil {
		p.logger.Debugf("hints decode: %v", err)
		return empty, false
	}
	phrases := make([]string, 0, len(h.Phrases))
	for _, ph := range h.Phrases {
		if ph = strings.TrimSpace(ph); ph != "" {
			phrases = append(phrases, ph)
		}
	}
	h.Phrases = phrases
	if h.Role == "" {
		h.Role = role
	}
	h.Tip = strings.TrimSpace(h.Tip)
	return h, true
}

// Invalidate drops every cached role.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = map[string]Hints{}
}
