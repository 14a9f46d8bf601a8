// Package metadata derives analytics client hints from the request's
// User-Agent. The client IP is deliberately not captured.
package metadata

import (
	"context"
	"net/http"

	"github.com/mssola/useragent"
)

type contextKeyHints struct{}

// Hints are the client properties attached to tracked events.
type Hints struct {
	OS             string
	Browser        string
	BrowserVersion string
	Mobile         bool
}

// ParseUserAgent extracts Hints from a raw User-Agent header.
func ParseUserAgent(raw string) Hints {
	if raw == "" {
		return Hints{}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return Hints{
		OS:             ua.OS(),
		Browser:        name,
		BrowserVersion: version,
		Mobile:         ua.Mobile(),
	}
}

// Properties renders h as PostHog-style $ properties. Unknown values are
// omitted.
func (h Hints) Properties() map[string]any {
	props := map[string]any{}
	if h.OS != "" {
		props["$os"] = h.OS
	}
	if h.Browser != "" {
		props["$browser"] = h.Browser
		if h.BrowserVersion != "" {
			props["$browser_version"] = h.BrowserVersion
		}
	}
	if h.Mobile {
		props["$device_type"] = "Mobile"
	}
	return props
}

// ClientHints parses the User-Agent once per request and stores the result
// in the context.
func ClientHints(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithHints(r.Context(), ParseUserAgent(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithHints injects hints into a context.
func WithHints(ctx context.Context, h Hints) context.Context {
	return context.WithValue(ctx, contextKeyHints{}, h)
}

// HintsFrom returns the hints stored in ctx, or zero Hints.
func HintsFrom(ctx context.Context) Hints {
	h, _ := ctx.Value(contextKeyHints{}).(Hints)
	return h
}

// ClientProperties returns a fresh property map for the hints in ctx. Callers
// may merge into it freely.
func ClientProperties(ctx context.Context) map[string]any {
	return HintsFrom(ctx).Properties()
}
