// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// originPolicy is the normalized allow-list built from Config.AllowedOrigins.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(configured []string) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{}, len(configured))}

	for _, origin := range configured {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			p.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Printf("Ignoring invalid origin in configuration: %q", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}

	return p
}

// list returns the normalized origins in a stable order.
func (p originPolicy) list() []string {
	out := make([]string, 0, len(p.allowed)+1)
	for origin := range p.allowed {
		out = append(out, origin)
	}
	sort.Strings(out)
	if p.allowAll {
		out = append(out, "*")
	}
	return out
}

func (p originPolicy) allows(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	normalized, ok := normalizeOrigin(header)
	if ok {
		configMu.RLock()
		allowed := origins.allows(normalized)
		configMu.RUnlock()
		if allowed {
			return true
		}
	}

	log.Printf("Blocked WebSocket connection from disallowed origin: %q", header)
	return false
}
