package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// CORSConfig holds the configuration for CORS middleware.
type CORSConfig struct {
	AllowedOrigins []string // explicit origins, no wildcards
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int // preflight cache duration in seconds
}

// DefaultCORSConfig returns the methods and headers the command API uses.
func DefaultCORSConfig(origins []string) CORSConfig {
	return CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		MaxAge:         600,
	}
}

// OriginPolicy decides which browser origins may call the API and open the
// view stream.
type OriginPolicy struct {
	allowed map[string]bool
}

// NewOriginPolicy builds a policy from an allowlist. An empty list allows
// only same-origin requests.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]bool)}
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			p.allowed[o] = true
		}
	}
	return p
}

// Allowed reports whether origin may make cross-origin requests. An empty
// origin is a same-origin or non-browser request and is always allowed.
func (p *OriginPolicy) Allowed(origin string) bool {
	return origin == "" || p.allowed[origin]
}

// AllowedRequest is Allowed, but also accepts an Origin naming the host the
// request was sent to.
func (p *OriginPolicy) AllowedRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return p.Allowed(origin) || sameOrigin(origin, r.Host)
}

// CheckOrigin has the signature of websocket.Upgrader.CheckOrigin.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	return p.AllowedRequest(r)
}

func sameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

// CORS enforces the origin allowlist and answers preflight requests.
// Disallowed origins receive 403.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := NewOriginPolicy(cfg.AllowedOrigins)
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || sameOrigin(origin, r.Host) {
				next.ServeHTTP(w, r)
				return
			}
			if !policy.Allowed(origin) {
				SetErrorCode(r.Context(), "origin_not_allowed")
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)

			if r.Method == http.MethodOptions {
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
