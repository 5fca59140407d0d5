package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	applog "carteira/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady reports whether the server can render pages. The backend is not
// queried: an anonymous session has nothing to ask it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	snap := s.sess.Snapshot()
	checks["session"] = map[string]any{
		"state": snap.State.String(),
		"epoch": snap.Epoch,
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP blocked_requests_total Total requests rejected by method filter or ban list\n")
	fmt.Fprintf(w, "# TYPE blocked_requests_total counter\n")
	fmt.Fprintf(w, "blocked_requests_total %d\n\n", securityMetrics.BlockedRequests)

	fmt.Fprintf(w, "# HELP tracked_offenders Clients with recent suspicious requests\n")
	fmt.Fprintf(w, "# TYPE tracked_offenders gauge\n")
	fmt.Fprintf(w, "tracked_offenders %d\n\n", securityMetrics.TrackedOffenders)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", time.Since(s.started).Seconds())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Página não encontrada", http.StatusNotFound)
}

type authView struct {
	Tab string
}

func (s *Server) handleAuthPage(w http.ResponseWriter, r *http.Request) {
	if s.sess.Snapshot().Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	tab := "login"
	if r.URL.Query().Get("tab") == "register" {
		tab = "register"
	}
	s.render(w, r, "auth.html", "Entrar", "auth", authView{Tab: tab})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Formato de requisição inválido", http.StatusBadRequest)
		return
	}
	email := sanitizeInput(r.PostForm.Get("email"))
	// passwords are passed through untouched
	password := r.PostForm.Get("password")

	if _, err := s.sess.Login(r.Context(), email, password); err != nil {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}
	// the mirror was cleared by the transition; load the new owner's data now
	s.loadLedger(r.Context())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Formato de requisição inválido", http.StatusBadRequest)
		return
	}
	name := sanitizeInput(r.PostForm.Get("name"))
	email := sanitizeInput(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	if err := s.sess.Register(r.Context(), name, email, password); err != nil {
		http.Redirect(w, r, "/auth?tab=register", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/auth?tab=login", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	prev := s.sess.Snapshot().OwnerID()
	s.sess.Logout(r.Context())
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Logout via web", applog.FieldOwnerID, prev)
	http.Redirect(w, r, "/auth", http.StatusSeeOther)
}
