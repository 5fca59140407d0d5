package security

import (
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	applog "carteira/internal/log"
)

// CrossOrigin reports whether a state-changing request was issued by a page
// served from another origin. Requests without Origin or Sec-Fetch-Site
// (curl, older browsers) pass.
func CrossOrigin(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	// sandboxed frames and privacy-sensitive redirects send "null"
	if origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return true
	}
	return !strings.EqualFold(u.Host, r.Host)
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// SameOrigin refuses unsafe methods coming from other origins, so a page on
// another site cannot post forms to the logged-in session.
func (d *Detector) SameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) || !CrossOrigin(r) {
			next.ServeHTTP(w, r)
			return
		}
		atomic.AddInt64(&d.blocked, 1)
		d.logger.WarnContext(r.Context(), "Cross-origin request rejected",
			applog.FieldClientIP, d.ClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			"origin", r.Header.Get("Origin"),
			"fetch_site", r.Header.Get("Sec-Fetch-Site"))
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	})
}
