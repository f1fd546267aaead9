package httpapi

import (
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/logger"
	"mercadinho/backend/internal/metrics"
	"mercadinho/backend/internal/service"
)

const idempotencyHeader = "Idempotency-Key"

type API struct {
	service        *service.Service
	auth           *AuthManager
	log            *logger.Logger
	metrics        *metrics.POS
	metricsHandler http.Handler
	allowedOrigin  string
	loginLimiter   *attemptLimiter
	now            func() time.Time
}

type Option func(*API)

func WithAllowedOrigin(origin string) Option {
	return func(a *API) { a.allowedOrigin = origin }
}

func WithLogger(log *logger.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// WithMetrics records request latency into m and serves handler on /metrics.
func WithMetrics(m *metrics.POS, handler http.Handler) Option {
	return func(a *API) {
		a.metrics = m
		a.metricsHandler = handler
	}
}

func New(svc *service.Service, auth *AuthManager, opts ...Option) *API {
	a := &API{
		service:      svc,
		auth:         auth,
		log:          logger.Nop(),
		loginLimiter: newAttemptLimiter(5, time.Minute),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		a.recoverer,
		a.requestID,
		a.requestLogging,
		a.securityHeaders,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)
	if a.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", a.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.NoCache)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin, domain.RoleUser))

			r.Get("/auth/me", a.handleMe)

			r.Route("/sales", func(r chi.Router) {
				r.Post("/", a.handleRecordSale)
				r.Get("/", a.handleListSales)
				r.Get("/{id}", a.handleGetSale)
				r.Put("/{id}", a.handleEditSale)
				r.Delete("/{id}", a.handleDeleteSale)
				r.Post("/{id}/cancel", a.handleCancelSale)
				r.Get("/{id}/edit-logs", a.handleSaleEditLogs)
			})
			r.Get("/edit-logs", a.handleEditLogsByEditor)

			r.Route("/register", func(r chi.Router) {
				r.Post("/open", a.handleOpenRegister)
				r.Post("/close", a.handleCloseRegister)
				r.Get("/current", a.handleCurrentRegister)
				r.Get("/sessions", a.handleListRegisterSessions)
				r.Get("/sessions/{id}/report", a.handleSessionReport)
				r.Get("/closings", a.handleListClosings)
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Post("/", a.handleCreateProduct)
				r.Get("/{id}", a.handleGetProduct)
				r.Patch("/{id}", a.handleUpdateProduct)
			})

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", a.handleListCustomers)
				r.Post("/", a.handleCreateCustomer)
				r.Get("/{id}", a.handleGetCustomer)
				r.Patch("/{id}", a.handleUpdateCustomer)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin))
			r.Get("/users", a.handleListUsers)
			r.Post("/users", a.handleCreateUser)
		})
	})

	return r
}

// requireAuth resolves the bearer token into an actor and rejects roles
// outside allowed.
func (a *API) requireAuth(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				a.writeError(w, r, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
			if err != nil {
				a.writeError(w, r, http.StatusUnauthorized, err)
				return
			}
			if len(allowed) > 0 && !isRoleAllowed(actor.Role, allowed) {
				a.writeError(w, r, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			ctx := service.WithActor(r.Context(), actor)
			ctx = a.log.WithActor(ctx, actor.Username, actor.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": a.now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInactiveAccount) {
			a.log.Zerolog(r.Context()).Info().Str("username", req.Username).Msg("login rejected")
			a.writeError(w, r, http.StatusUnauthorized, err)
			return
		}
		a.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"username": actor.Username,
		"role":     actor.Role,
		"is_admin": service.IsCallerAdmin(r.Context()),
	})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users := a.auth.ListUsers(r.Context())
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.service.Validate(req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.log.Zerolog(r.Context()).Info().Str("username", user.Username).Str("role", user.Role).Msg("user created")
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
	now     func() time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time), now: time.Now}
}

// Allow reports whether key has made fewer than max attempts inside the
// sliding window, and counts this attempt if so.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
