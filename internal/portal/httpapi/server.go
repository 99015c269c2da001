// Package httpapi serves the portal's JSON API, the auth event stream and
// the guarded single-page app routes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/printflow/portal/internal/errors"
	"github.com/printflow/portal/internal/httputil"
	"github.com/printflow/portal/internal/logging"
	"github.com/printflow/portal/internal/metrics"
	"github.com/printflow/portal/internal/middleware"
	"github.com/printflow/portal/internal/portal/auth"
	"github.com/printflow/portal/internal/portal/dashboard"
	"github.com/printflow/portal/internal/portal/orders"
	"github.com/printflow/portal/internal/portal/payments"
	"github.com/printflow/portal/internal/portal/profile"
	"github.com/printflow/portal/internal/portal/session"
	"github.com/printflow/portal/internal/portal/support"
	"github.com/printflow/portal/supabase/client"
)

const serviceName = "portal"

// CookieConfig describes the browser session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// Deps are the collaborators of a Server. Verifier, RateLimiter and Health
// are optional.
type Deps struct {
	Registry    *auth.Registry
	Orders      orders.Repository
	Payments    payments.Repository
	Tickets     support.Repository
	Verifier    *middleware.TokenVerifier
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Metrics
	Logger      *logging.Logger

	Cookie      CookieConfig
	CORSOrigins []string
	StaticDir   string
	// Health adds fields to the /health response.
	Health func() map[string]interface{}
	Now    func() time.Time
}

// Server is the portal HTTP front.
type Server struct {
	registry  *auth.Registry
	orders    orders.Repository
	payments  payments.Repository
	tickets   support.Repository
	dashboard *dashboard.Service
	verifier  *middleware.TokenVerifier
	limiter   *middleware.RateLimiter
	metrics   *metrics.Metrics
	logger    *logging.Logger
	cors      *middleware.CORSMiddleware
	cookie    CookieConfig
	staticDir string
	health    func() map[string]interface{}
	now       func() time.Time
}

// NewServer wires a Server.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logging.NewDiscard()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(serviceName)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Cookie.Name == "" {
		d.Cookie.Name = "portal_session"
	}
	return &Server{
		registry:  d.Registry,
		orders:    d.Orders,
		payments:  d.Payments,
		tickets:   d.Tickets,
		dashboard: &dashboard.Service{Orders: d.Orders, Payments: d.Payments, Now: d.Now},
		verifier:  d.Verifier,
		limiter:   d.RateLimiter,
		metrics:   d.Metrics,
		logger:    d.Logger,
		cors:      middleware.NewCORSMiddleware(d.CORSOrigins),
		cookie:    d.Cookie,
		staticDir: d.StaticDir,
		health:    d.Health,
		now:       d.Now,
	}
}

// Handler returns the root handler. CORS wraps the router so preflight
// requests are answered before route method matching.
func (s *Server) Handler() http.Handler {
	return s.cors.Handler(s.Router())
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Tracing)
	r.Use(middleware.LoggingMiddleware(s.logger))
	r.Use(middleware.MetricsMiddleware(serviceName, s.metrics))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	authAPI := api.PathPrefix("/auth").Subrouter()
	authAPI.HandleFunc("/state", s.handleAuthState).Methods(http.MethodGet)
	authAPI.HandleFunc("/events", s.handleAuthEvents).Methods(http.MethodGet)

	// Credential endpoints are throttled per client address.
	creds := authAPI.NewRoute().Subrouter()
	if s.limiter != nil {
		creds.Use(s.limiter.Handler)
	}
	creds.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	creds.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	creds.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	creds.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)

	api.HandleFunc("/profile", s.handleGetProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.handleUpdateProfile).Methods(http.MethodPatch)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/invoices", s.handleListInvoices).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id}", s.handleGetInvoice).Methods(http.MethodGet)
	api.HandleFunc("/support/tickets", s.handleListTickets).Methods(http.MethodGet)
	api.HandleFunc("/support/tickets", s.handleCreateTicket).Methods(http.MethodPost)

	s.registerPages(r)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":    "healthy",
		"service":   serviceName,
		"sessions":  s.registry.Len(),
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	if s.health != nil {
		for k, v := range s.health() {
			body[k] = v
		}
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// lookup finds the caller's container from a bearer token or the session
// cookie. It returns nil for anonymous callers and never creates a session.
func (s *Server) lookup(r *http.Request) (*auth.Container, error) {
	if token, ok := middleware.BearerToken(r); ok && s.verifier != nil {
		claims, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			return nil, err
		}
		identity := session.Identity{UserID: claims.UserID, Email: claims.Email, Metadata: claims.UserMetadata}
		return s.registry.Attach(token, identity, claims.ExpiresAt), nil
	}

	cookie, err := r.Cookie(s.cookie.Name)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	c, ok, err := s.registry.Lookup(r.Context(), cookie.Value)
	if err != nil {
		return nil, errors.Unavailable("Session store unavailable", err)
	}
	if !ok {
		return nil, nil
	}
	return c, nil
}

// customer is a request made on behalf of a signed-in customer with a
// loaded profile.
type customer struct {
	container *auth.Container
	profile   *profile.Profile
	// ctx carries the customer's access token for row-level security.
	ctx context.Context
}

// requireCustomer waits for the caller's profile resolution and writes an
// error response when there is no usable profile.
func (s *Server) requireCustomer(w http.ResponseWriter, r *http.Request) (*customer, bool) {
	c, err := s.lookup(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}
	if c == nil {
		httputil.WriteError(w, r, errors.NotAuthenticated())
		return nil, false
	}
	if err := c.Wait(r.Context()); err != nil {
		httputil.WriteError(w, r, errors.Unavailable("Request cancelled", err))
		return nil, false
	}

	state := c.State()
	if !state.Authenticated {
		httputil.WriteError(w, r, errors.NotAuthenticated())
		return nil, false
	}
	if state.Profile == nil {
		reason := state.Reason
		if reason == "" {
			reason = auth.ReasonProfileUnavailable
		}
		httputil.WriteError(w, r, errors.Unavailable(reason, nil))
		return nil, false
	}

	ctx := logging.WithSessionID(logging.WithUserID(r.Context(), state.Profile.UserID), c.ID())
	ctx = client.WithAccessToken(ctx, c.AccessToken())
	return &customer{container: c, profile: state.Profile, ctx: ctx}, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.cookie.TTL / time.Second),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
