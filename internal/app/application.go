package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/patisserie-labs/storefront/internal/app/events"
	"github.com/patisserie-labs/storefront/internal/app/services/accounts"
	"github.com/patisserie-labs/storefront/internal/app/services/banners"
	"github.com/patisserie-labs/storefront/internal/app/services/carts"
	catalogsvc "github.com/patisserie-labs/storefront/internal/app/services/catalog"
	"github.com/patisserie-labs/storefront/internal/app/services/checkout"
	"github.com/patisserie-labs/storefront/internal/app/services/coupons"
	"github.com/patisserie-labs/storefront/internal/app/services/favorites"
	"github.com/patisserie-labs/storefront/internal/app/services/orders"
	pricingsvc "github.com/patisserie-labs/storefront/internal/app/services/pricing"
	"github.com/patisserie-labs/storefront/internal/app/services/reviews"
	"github.com/patisserie-labs/storefront/internal/app/storage"
	"github.com/patisserie-labs/storefront/internal/app/storage/memory"
	"github.com/patisserie-labs/storefront/internal/app/system"
	"github.com/patisserie-labs/storefront/internal/auth"
	"github.com/patisserie-labs/storefront/internal/config"
	"github.com/patisserie-labs/storefront/internal/mail"
	"github.com/patisserie-labs/storefront/internal/media"
	"github.com/patisserie-labs/storefront/internal/payment"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users      storage.UserStore
	Categories storage.CategoryStore
	Products   storage.ProductStore
	Carts      storage.CartStore
	Favorites  storage.FavoriteStore
	Coupons    storage.CouponStore
	Orders     storage.OrderStore
	Checkout   storage.CheckoutStore
	Payments   storage.PaymentStore
	Banners    storage.BannerStore
	Reviews    storage.ReviewStore
	Settings   storage.SettingsStore
	OTPs       storage.OTPStore
	Reports    storage.ReportStore
}

func (s *Stores) fillDefaults() {
	var mem *memory.Store
	pick := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
		}
		return mem
	}
	if s.Users == nil {
		s.Users = pick()
	}
	if s.Categories == nil {
		s.Categories = pick()
	}
	if s.Products == nil {
		s.Products = pick()
	}
	if s.Carts == nil {
		s.Carts = pick()
	}
	if s.Favorites == nil {
		s.Favorites = pick()
	}
	if s.Coupons == nil {
		s.Coupons = pick()
	}
	if s.Orders == nil {
		s.Orders = pick()
	}
	if s.Checkout == nil {
		s.Checkout = pick()
	}
	if s.Payments == nil {
		s.Payments = pick()
	}
	if s.Banners == nil {
		s.Banners = pick()
	}
	if s.Reviews == nil {
		s.Reviews = pick()
	}
	if s.Settings == nil {
		s.Settings = pick()
	}
	if s.OTPs == nil {
		s.OTPs = pick()
	}
	if s.Reports == nil {
		s.Reports = pick()
	}
}

// Options carries the external collaborators. Zero values fall back to
// development defaults: a disabled gateway, a logging mailer and an
// unconfigured CDN.
type Options struct {
	Tokens        *auth.TokenManager
	Gateway       checkout.Gateway
	Currency      string
	Mailer        mail.Mailer
	Templates     mail.Templates
	Media         *media.Client
	Identity      accounts.IdentityProvider
	OTPLimiter    accounts.Limiter
	OTPPerMinute  int
	Pricing       *config.Pricing
	AdminEmails   map[string]bool
	SweepSchedule string
	// CheckOrigin guards the admin websocket upgrade.
	CheckOrigin func(r *http.Request) bool
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	closers []func() error
	log     *logger.Logger

	Tokens *auth.TokenManager
	Events *events.Hub
	Media  *media.Client

	Accounts  *accounts.Service
	Catalog   *catalogsvc.Service
	Carts     *carts.Service
	Favorites *favorites.Service
	Coupons   *coupons.Service
	Pricing   *pricingsvc.Service
	Checkout  *checkout.Service
	Orders    *orders.Service
	Banners   *banners.Service
	Reviews   *reviews.Service
	Reports   storage.ReportStore
	Sweeper   *checkout.Sweeper
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	stores.fillDefaults()

	tokens := opts.Tokens
	if tokens == nil {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		tokens, err = auth.NewTokenManager(secret, auth.DefaultTTL)
		if err != nil {
			return nil, err
		}
		log.Warn("JWT_SECRET not set; sessions will not survive a restart")
	}
	gateway := opts.Gateway
	if gateway == nil {
		gateway = payment.Disabled{}
		log.Warn("payment gateway keys not set; checkout is disabled")
	}
	mailer := opts.Mailer
	if mailer == nil {
		mailer = mail.NewLogMailer(log.Named("mail"))
	}
	prices := opts.Pricing
	if prices == nil {
		prices = config.DefaultPricing()
	}
	mediaClient := opts.Media
	if mediaClient == nil {
		mediaClient = media.New(media.Config{}, log.Named("media"))
	}

	hub := events.NewHub(opts.CheckOrigin, log.Named("events"))

	pricingService := pricingsvc.New(stores.Settings, prices.Tax, prices.Delivery, log.Named("pricing"))
	catalogService := catalogsvc.New(stores.Categories, stores.Products, log.Named("catalog"))
	cartService := carts.New(stores.Carts, stores.Products, pricingService, log.Named("carts"))
	favoriteService := favorites.New(stores.Favorites, stores.Products, log.Named("favorites"))
	couponService := coupons.New(stores.Coupons, stores.Orders, log.Named("coupons"))
	orderService := orders.New(stores.Orders, stores.Products, stores.Payments, hub, log.Named("orders"))
	bannerService := banners.New(stores.Banners, log.Named("banners"))
	reviewService := reviews.New(stores.Reviews, stores.Products, stores.Orders, stores.Users, log.Named("reviews"))

	accountService := accounts.New(stores.Users, stores.OTPs, mailer, tokens, accounts.Config{
		AdminEmails:  opts.AdminEmails,
		Templates:    opts.Templates,
		OTPPerMinute: opts.OTPPerMinute,
	}, log.Named("accounts"))
	if opts.Identity != nil {
		accountService.WithIdentityProvider(opts.Identity)
	}
	if opts.OTPLimiter != nil {
		accountService.WithLimiter(opts.OTPLimiter)
	}

	checkoutService := checkout.New(checkout.Stores{
		Sessions: stores.Checkout,
		Orders:   stores.Orders,
		Payments: stores.Payments,
		Products: stores.Products,
		Carts:    stores.Carts,
		Users:    stores.Users,
	}, cartService, couponService, pricingService, gateway, log.Named("checkout"))
	checkoutService.WithMailer(mailer, opts.Templates)
	checkoutService.WithPublisher(hub)
	checkoutService.WithCurrency(opts.Currency)

	sweeper := checkout.NewSweeper(checkoutService, opts.SweepSchedule, log.Named("checkout-sweeper"))

	manager := system.NewManager()
	services := []system.Service{hub, sweeper}
	if svc, ok := opts.OTPLimiter.(system.Service); ok {
		services = append(services, svc)
	}
	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:   manager,
		log:       log,
		Tokens:    tokens,
		Events:    hub,
		Media:     mediaClient,
		Accounts:  accountService,
		Catalog:   catalogService,
		Carts:     cartService,
		Favorites: favoriteService,
		Coupons:   couponService,
		Pricing:   pricingService,
		Checkout:  checkoutService,
		Orders:    orderService,
		Banners:   bannerService,
		Reviews:   reviewService,
		Reports:   stores.Reports,
		Sweeper:   sweeper,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// OnClose registers a release function run by Close in reverse order.
func (a *Application) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Close releases database and cache connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
