package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"carteira/internal/core"
	applog "carteira/internal/log"
	"carteira/internal/middleware/ratelimit"
	"carteira/internal/middleware/security"
	"carteira/internal/middleware/trace"
	"carteira/internal/notify"
	"carteira/internal/services"
	"carteira/internal/session"
	appweb "carteira/web"
)

// Deps are the collaborators the web layer renders and mutates through.
type Deps struct {
	Ledger      *services.LedgerService
	Session     *session.Manager
	Inbox       *notify.Inbox
	Logger      *applog.Logger
	RecentLimit int
	// Now is the clock used for deadlines; defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server
	templates   *template.Template
	ledger      *services.LedgerService
	sess        *session.Manager
	inbox       *notify.Inbox
	logger      *applog.Logger
	recentLimit int
	now         func() time.Time

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, d Deps) (*Server, error) {
	if d.Logger == nil {
		d.Logger = applog.Discard()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.RecentLimit <= 0 {
		d.RecentLimit = 5
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		templates:   t,
		ledger:      d.Ledger,
		sess:        d.Session,
		inbox:       d.Inbox,
		logger:      d.Logger.WithComponent(applog.ComponentHTTP),
		recentLimit: d.RecentLimit,
		now:         d.Now,
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		started:     time.Now(),
	}
	s.detector = security.NewDetector(d.Logger)
	s.tracer = trace.NewMiddleware(s.detector.ClientIP)
	s.Handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.PathPrefix("/static/").Handler(security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	pages := r.NewRoute().Subrouter()
	pages.Use(security.NoStore)

	pages.HandleFunc("/auth", s.handleAuthPage).Methods(http.MethodGet)
	pages.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	pages.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	pages.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	app := pages.NewRoute().Subrouter()
	app.Use(s.requireAuth)

	app.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
	app.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	app.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	app.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	app.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	app.HandleFunc("/transactions/{id:[0-9]+}/undo", s.handleUndoTransaction).Methods(http.MethodPost)
	app.HandleFunc("/goals", s.handleGoals).Methods(http.MethodGet)
	app.HandleFunc("/goals", s.handleCreateGoal).Methods(http.MethodPost)
	app.HandleFunc("/goals/{id:[0-9]+}/deposit", s.handleDeposit).Methods(http.MethodPost)
	app.HandleFunc("/goals/{id:[0-9]+}/progress", s.handleGoalProgress).Methods(http.MethodGet)
	app.HandleFunc("/investments", s.handleInvestments).Methods(http.MethodGet)
	app.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	// mux only runs Use middleware on matched routes, so the outer chain wraps
	// the router itself and also sees scans of unknown paths.
	var h http.Handler = r
	h = s.rateLimiter.Middleware(s.detector.ClientIP, s.onRateLimit)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.SameOrigin(h)
	h = s.detector.Middleware(h)
	h = applog.Middleware(s.logger, trace.GetRequestID)(h)
	h = s.tracer.Middleware(h)
	return h
}

// requireAuth sends anyone without an authenticated session to the login page.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.sess.Snapshot().Authenticated() {
			http.Redirect(w, r, "/auth", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ClientIP(r),
		applog.FieldPath, r.URL.Path)
	http.Error(w, "Muitas requisições. Tente novamente em instantes.", http.StatusTooManyRequests)
}

// pageData is what every full page template receives.
type pageData struct {
	Title  string
	Active string
	User   string
	Toasts []notify.Notification
	Data   any
}

// render executes a page into a buffer first so a template failure never
// produces half a page. Pending notifications are drained into the page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name, title, active string, data any) {
	pd := pageData{
		Title:  title,
		Active: active,
		Toasts: s.inbox.Drain(),
		Data:   data,
	}
	if snap := s.sess.Snapshot(); snap.Authenticated() {
		pd.User = snap.User.Name
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, pd); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).Err(r.Context(), "Template execution failed", err,
			applog.FieldOperation, applog.OpRender,
			"template", name)
		http.Error(w, "Erro ao renderizar a página", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// redirect completes a form post (Post/Redirect/Get). A session that changed or
// ended while the request was in flight goes back to the login page.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, to string, err error) {
	switch {
	case errors.Is(err, services.ErrNotAuthenticated):
		to = "/auth"
	case errors.Is(err, core.ErrStaleSession) && !s.sess.Snapshot().Authenticated():
		to = "/auth"
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// loadLedger makes sure the mirror belongs to the current session. Failures are
// already reported to the user, so the page renders with what is there.
func (s *Server) loadLedger(ctx context.Context) {
	if err := s.ledger.EnsureLoaded(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Rendering without fresh ledger data", applog.FieldError, err)
	}
}

// Shutdown gracefully shuts down the server and its background routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
