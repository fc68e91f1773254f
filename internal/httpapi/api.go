// Package httpapi is the HTTP surface: routing, middleware, and the
// translation between wire payloads and domain operations.
package httpapi

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"forkline.io/internal/audit"
	"forkline.io/internal/auth"
	"forkline.io/internal/config"
	"forkline.io/internal/crm"
	"forkline.io/internal/obs"
	"forkline.io/internal/store"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *store.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// API is the HTTP layer. Handlers delegate to the CRM service and the
// auth controller; no business logic lives here.
type API struct {
	mux         *http.ServeMux
	svc         *crm.Service
	ctrl        *auth.Controller
	auditor     *audit.Auditor
	readyProbe  ReadyProbe
	log         *zap.Logger
	version     string
	publicPaths []*regexp.Regexp
	maxBody     int64
	limiter     *RateLimiter
}

func New(svc *crm.Service, ctrl *auth.Controller, auditor *audit.Auditor, rp ReadyProbe, cfg config.Config, version string, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{
		mux:         http.NewServeMux(),
		svc:         svc,
		ctrl:        ctrl,
		auditor:     auditor,
		readyProbe:  rp,
		log:         log,
		version:     version,
		publicPaths: cfg.CompilePublicPaths(),
		maxBody:     cfg.MaxBodyBytes,
		limiter:     NewRateLimiter(cfg.Rate.Burst, cfg.Rate.PerSecond),
	}
	a.routes()
	return a
}

// Close stops background work owned by the API, currently the rate
// limiter sweeper.
func (a *API) Close() {
	a.limiter.Stop()
}

func (a *API) routes() {
	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.HandleFunc("GET /readyz", a.ready)
	a.mux.HandleFunc("GET /v1/info", a.info)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("POST /v1/auth/login", a.login)
	a.mux.HandleFunc("POST /v1/auth/register", a.register)
	a.mux.HandleFunc("GET /v1/auth/me", a.me)

	manage := auth.AnyPermission(auth.PermManageRestaurants)
	contacts := auth.AnyPermission(auth.PermManageContacts)
	interact := auth.AnyPermission(auth.PermRecordInteractions)
	orders := auth.AnyPermission(auth.PermManageOrders)
	plans := auth.AnyPermission(auth.PermManageCallPlans)
	view := auth.AnyPermission(auth.PermViewPerformance)
	recompute := auth.AnyPermission(auth.PermRecomputePerformance)
	seniors := auth.AnyRole(auth.RoleAdmin, auth.RoleManager)

	// restaurants
	a.mux.HandleFunc("POST /v1/restaurants", a.gated(manage, a.createRestaurant))
	a.mux.HandleFunc("GET /v1/restaurants", a.gated(view, a.listRestaurants))
	a.mux.HandleFunc("GET /v1/restaurants/{id}", a.gated(view, a.getRestaurant))
	a.mux.HandleFunc("PATCH /v1/restaurants/{id}", a.gated(manage, a.updateRestaurant))
	a.mux.HandleFunc("DELETE /v1/restaurants/{id}", a.gated(auth.AllOf(manage, seniors), a.deleteRestaurant))

	// contacts
	a.mux.HandleFunc("POST /v1/contacts", a.gated(contacts, a.createContact))
	a.mux.HandleFunc("GET /v1/contacts", a.gated(view, a.listAllContacts))
	a.mux.HandleFunc("GET /v1/contacts/{id}", a.gated(view, a.getContact))
	a.mux.HandleFunc("PATCH /v1/contacts/{id}", a.gated(auth.AllOf(contacts, seniors), a.updateContact))
	a.mux.HandleFunc("DELETE /v1/contacts/{id}", a.gated(auth.AllOf(contacts, seniors), a.deleteContact))
	a.mux.HandleFunc("GET /v1/restaurants/{id}/contacts", a.gated(view, a.listContacts))
	a.mux.HandleFunc("GET /v1/contacts/{id}/interactions", a.gated(view, a.listContactInteractions))

	// interactions
	a.mux.HandleFunc("POST /v1/interactions", a.gated(interact, a.recordInteraction))
	a.mux.HandleFunc("GET /v1/interactions/{id}", a.gated(view, a.getInteraction))
	a.mux.HandleFunc("GET /v1/restaurants/{id}/interactions", a.gated(view, a.listInteractions))

	// orders
	a.mux.HandleFunc("POST /v1/orders", a.gated(orders, a.placeOrder))
	a.mux.HandleFunc("GET /v1/orders/{id}", a.gated(view, a.getOrder))
	a.mux.HandleFunc("PATCH /v1/orders/{id}/status", a.gated(orders, a.updateOrderStatus))
	a.mux.HandleFunc("GET /v1/restaurants/{id}/orders", a.gated(view, a.listOrders))

	// call plans
	a.mux.HandleFunc("POST /v1/call-plans", a.gated(plans, a.createCallPlan))
	a.mux.HandleFunc("GET /v1/call-plans/due", a.gated(view, a.dueCallPlans))
	a.mux.HandleFunc("GET /v1/call-plans/{id}", a.gated(view, a.getCallPlan))
	a.mux.HandleFunc("DELETE /v1/call-plans/{id}", a.gated(auth.AllOf(plans, seniors), a.deleteCallPlan))
	a.mux.HandleFunc("GET /v1/restaurants/{id}/call-plans", a.gated(view, a.listCallPlans))

	// performance
	a.mux.HandleFunc("GET /v1/restaurants/{id}/performance", a.gated(view, a.performance))
	a.mux.HandleFunc("GET /v1/restaurants/{id}/performance/history", a.gated(view, a.performanceHistory))
	a.mux.HandleFunc("POST /v1/restaurants/{id}/performance/recompute", a.gated(auth.AllOf(recompute, auth.AnyRole(auth.RoleAdmin)), a.recomputePerformance))
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = a.limiter.Middleware(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h, a.log)
	h = RequestID(h)
	return h
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "forkline-api",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "forkline-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
