package middleware

import (
	"net/http"
	"strings"
)

// OriginPolicy decides which browser origins may call the API. Entries are
// matched case-insensitively; "*" allows everything and a leading "*." in
// the host ("https://*.neonvault.xyz") allows any subdomain.
type OriginPolicy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

// NewOriginPolicy compiles the configured origins. An empty list allows all.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]struct{}, len(origins))}
	if len(origins) == 0 {
		p.any = true
	}
	for _, o := range origins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		switch {
		case o == "":
		case o == "*":
			p.any = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			p.suffixes = append(p.suffixes, scheme+"://|"+host)
		default:
			p.exact[o] = struct{}{}
		}
	}
	return p
}

// Allows reports whether origin may use the API.
func (p *OriginPolicy) Allows(origin string) bool {
	if p.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, s := range p.suffixes {
		scheme, host, _ := strings.Cut(s, "|")
		if rest, ok := strings.CutPrefix(origin, scheme); ok && strings.HasSuffix(rest, host) && len(rest) > len(host) {
			return true
		}
	}
	return false
}

// AllowsRequest is Allows for the request's Origin header. Requests without
// one are not cross-origin and always pass.
func (p *OriginPolicy) AllowsRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || p.Allows(origin)
}

// CORS returns middleware that answers preflights and tags responses for
// origins the policy allows. Preflights from other origins get 403.
func CORS(policy *OriginPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			allowed := origin != "" && policy.Allows(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", RequestIDHeader+", Retry-After")
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if origin != "" && !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			if allowed {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, "+RequestIDHeader)
				h.Set("Access-Control-Max-Age", "600")
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
