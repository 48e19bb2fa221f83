// Package httpapi exposes the storefront and admin back office over HTTP.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	app "github.com/patisserie-labs/storefront/internal/app"
	"github.com/patisserie-labs/storefront/internal/app/metrics"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/internal/httputil"
	"github.com/patisserie-labs/storefront/internal/middleware"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// publicCache is applied to anonymous catalog reads.
const publicCache = "public, max-age=60, stale-while-revalidate=300"

// Config tunes the HTTP surface.
type Config struct {
	CORSOrigins  []string
	CookieSecure bool
	// AuthPerMinute bounds sign-in attempts per client IP.
	AuthPerMinute int
	// AuditFile appends admin audit entries as JSON lines when set.
	AuditFile string
	Logger    *logger.Logger
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app          *app.Application
	log          *logger.Logger
	cookieSecure bool
	audit        *auditLog
	validate     *validator
}

// NewHandler returns the router exposing the storefront API.
func NewHandler(application *app.Application, cfg Config) (http.Handler, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("http")
	}
	httputil.SetLogger(log)

	sink, err := newFileAuditSink(cfg.AuditFile)
	if err != nil {
		return nil, err
	}
	h := &handler{
		app:          application,
		log:          log,
		cookieSecure: cfg.CookieSecure,
		audit:        newAuditLog(500, sink),
		validate:     newValidator(),
	}

	tracing := middleware.NewTracingMiddleware(log)
	cors := middleware.NewCORSMiddleware(cfg.CORSOrigins)
	authn := middleware.NewAuthMiddleware(application.Tokens, log.Named("auth"))
	perMinute := cfg.AuthPerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	authLimiter := middleware.NewRateLimiter("auth", perMinute, time.Minute, 0, log.Named("ratelimit"))
	if err := application.Attach(authLimiter); err != nil {
		return nil, err
	}

	root := mux.NewRouter()
	root.Use(tracing.Handler, tracing.Recover, cors.Handler, middleware.MetricsMiddleware())
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, http.StatusNotFound, string(svcerrors.CodeNotFound), "route not found", nil)
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, http.StatusMethodNotAllowed, string(svcerrors.CodeBadRequest), "method not allowed", nil)
	})
	// Preflight requests are answered by the CORS middleware; the route must
	// exist so the router runs the middleware chain.
	root.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	root.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	root.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := root.PathPrefix("/api").Subrouter()

	catalog := api.NewRoute().Subrouter()
	catalog.Use(middleware.CacheControl(publicCache))
	catalog.HandleFunc("/categories", h.listCategories).Methods(http.MethodGet)
	catalog.HandleFunc("/categories/{slug}", h.getCategory).Methods(http.MethodGet)
	catalog.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	catalog.HandleFunc("/products/{slug}", h.getProduct).Methods(http.MethodGet)
	catalog.HandleFunc("/products/{id}/reviews", h.listProductReviews).Methods(http.MethodGet)
	catalog.HandleFunc("/banners", h.listBanners).Methods(http.MethodGet)

	signin := api.PathPrefix("/auth").Subrouter()
	signin.Use(middleware.NoStore, authLimiter.Handler)
	signin.HandleFunc("/otp/request", h.requestOTP).Methods(http.MethodPost)
	signin.HandleFunc("/otp/verify", h.verifyOTP).Methods(http.MethodPost)
	signin.HandleFunc("/oauth", h.oauth).Methods(http.MethodPost)
	signin.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	api.HandleFunc("/payments/webhook", h.paymentWebhook).Methods(http.MethodPost)

	user := api.NewRoute().Subrouter()
	user.Use(authn.Handler, middleware.NoStore)
	user.HandleFunc("/me", h.getMe).Methods(http.MethodGet)
	user.HandleFunc("/me", h.updateMe).Methods(http.MethodPatch)
	user.HandleFunc("/cart", h.getCart).Methods(http.MethodGet)
	user.HandleFunc("/cart", h.clearCart).Methods(http.MethodDelete)
	user.HandleFunc("/cart/items", h.addCartItem).Methods(http.MethodPost)
	user.HandleFunc("/cart/items/{productID}", h.setCartItem).Methods(http.MethodPut)
	user.HandleFunc("/cart/items/{productID}", h.removeCartItem).Methods(http.MethodDelete)
	user.HandleFunc("/favorites", h.listFavorites).Methods(http.MethodGet)
	user.HandleFunc("/favorites/{productID}", h.addFavorite).Methods(http.MethodPut)
	user.HandleFunc("/favorites/{productID}", h.removeFavorite).Methods(http.MethodDelete)
	user.HandleFunc("/coupons/validate", h.validateCoupon).Methods(http.MethodPost)
	user.HandleFunc("/delivery/quote", h.quoteDelivery).Methods(http.MethodPost)
	user.HandleFunc("/checkout", h.startCheckout).Methods(http.MethodPost)
	user.HandleFunc("/checkout/{id}", h.getCheckout).Methods(http.MethodGet)
	user.HandleFunc("/checkout/{id}/verify", h.verifyCheckout).Methods(http.MethodPost)
	user.HandleFunc("/orders", h.listMyOrders).Methods(http.MethodGet)
	user.HandleFunc("/orders/{id}", h.getMyOrder).Methods(http.MethodGet)
	user.HandleFunc("/orders/{id}/cancel", h.cancelMyOrder).Methods(http.MethodPost)
	user.HandleFunc("/products/{id}/reviews", h.submitReview).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authn.Handler, middleware.RequireAdmin, middleware.NoStore, h.auditAdmin)
	h.registerAdmin(admin)

	return root, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": h.app.Events.Subscribers(),
	})
}

// decode reads a JSON body into dst and validates its struct tags.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := httputil.DecodeJSON(w, r, dst); err != nil {
		httputil.WriteError(w, r, err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httputil.WriteError(w, r, err)
		return false
	}
	return true
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if svcerrors.HTTPStatus(err) >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	httputil.WriteError(w, r, err)
}

func userID(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

// pagination reads page and limit query parameters.
func pagination(r *http.Request) (page, limit int, err error) {
	q := r.URL.Query()
	if page, err = intParam(q.Get("page"), "page", 1); err != nil {
		return 0, 0, err
	}
	if limit, err = intParam(q.Get("limit"), "limit", 0); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func intParam(raw, name string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, svcerrors.Validation(name, name+" must be a non-negative integer")
	}
	return n, nil
}
