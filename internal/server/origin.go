package server

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/collabboard/server/internal/logging"
)

// originChecker validates the Origin header of upgrade requests against a
// configured allow-list. A "*" entry admits any origin, including requests
// that carry no Origin header at all.
type originChecker struct {
	allowed  map[string]struct{}
	allowAll bool
}

func newOriginChecker(origins []string) *originChecker {
	oc := &originChecker{allowed: make(map[string]struct{})}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			oc.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logging.Warn("ignoring invalid origin in configuration", zap.String("origin", origin))
			continue
		}
		oc.allowed[normalized] = struct{}{}
	}

	return oc
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

func (oc *originChecker) isAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		// Non-browser clients send no Origin header; only the wildcard
		// admits them. An explicit allow-list stays browser-strict.
		return oc.allowAll
	}

	if oc.allowAll {
		return true
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	_, exists := oc.allowed[normalized]
	return exists
}

func (oc *originChecker) check(r *http.Request) bool {
	if oc.isAllowed(r) {
		return true
	}

	logging.Warn("blocked connection from disallowed origin",
		zap.String("origin", r.Header.Get("Origin")))
	return false
}
