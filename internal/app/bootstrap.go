package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patisserie-labs/storefront/internal/app/services/accounts"
	"github.com/patisserie-labs/storefront/internal/app/storage/postgres"
	"github.com/patisserie-labs/storefront/internal/app/storage/redisstore"
	supastore "github.com/patisserie-labs/storefront/internal/app/storage/supabase"
	"github.com/patisserie-labs/storefront/internal/auth"
	"github.com/patisserie-labs/storefront/internal/config"
	"github.com/patisserie-labs/storefront/internal/httputil"
	"github.com/patisserie-labs/storefront/internal/mail"
	"github.com/patisserie-labs/storefront/internal/media"
	"github.com/patisserie-labs/storefront/internal/middleware"
	"github.com/patisserie-labs/storefront/internal/payment"
	"github.com/patisserie-labs/storefront/pkg/logger"
	"github.com/patisserie-labs/storefront/supabase/client"
)

// Build assembles the application from configuration: it selects the
// storage backend, connects optional Postgres reporting and the Redis OTP
// store, and configures the gateway, mailer, CDN and OAuth provider.
// Callers must Close the application to release connections.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	var (
		stores  Stores
		closers []func() error
	)
	fail := func(err error) (*Application, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	var supa *client.Client
	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceKey != "" {
		retry := httputil.DefaultRetryConfig()
		c, err := client.New(client.Config{
			URL:     cfg.Supabase.URL,
			APIKey:  cfg.Supabase.ServiceKey,
			Timeout: 20 * time.Second,
			Retry:   &retry,
		})
		if err != nil {
			return fail(fmt.Errorf("supabase client: %w", err))
		}
		supa = c
	}

	switch strings.ToLower(cfg.Storage.Backend) {
	case "supabase":
		s := supastore.New(supa)
		stores = Stores{
			Users: s, Categories: s, Products: s, Carts: s, Favorites: s,
			Coupons: s, Orders: s, Checkout: s, Payments: s, Banners: s,
			Reviews: s, Settings: s, OTPs: s, Reports: s,
		}
		log.WithField("url", cfg.Supabase.URL).Info("using supabase storage")
	default:
		log.Warn("using in-memory storage; data is lost on restart")
	}

	if dsn := strings.TrimSpace(cfg.Storage.DatabaseURL); dsn != "" {
		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Close)
		stores.Reports = postgres.NewReports(db)
		log.Info("sales reports served from postgres")
	}

	if url := strings.TrimSpace(cfg.Storage.RedisURL); url != "" {
		rdb, err := redisstore.Open(ctx, url)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rdb.Close)
		stores.OTPs = redisstore.NewOTPStore(rdb)
		log.Info("otp codes stored in redis")
	}

	opts := Options{
		Currency:      cfg.Payment.Currency,
		Templates:     mail.Templates{Shop: cfg.ShopName, BaseURL: cfg.HTTP.PublicBaseURL},
		AdminEmails:   cfg.AdminEmailSet(),
		OTPPerMinute:  cfg.Auth.OTPPerMinute,
		SweepSchedule: cfg.Payment.SweepSchedule,
		CheckOrigin:   middleware.NewCORSMiddleware(cfg.CORSOriginList()).CheckOrigin,
		OTPLimiter:    middleware.NewRateLimiter("otp", cfg.Auth.OTPPerMinute, time.Minute, 0, log.Named("ratelimit")),
	}

	if cfg.Auth.JWTSecret != "" {
		tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return fail(err)
		}
		opts.Tokens = tokens
	}

	pricing, err := config.LoadPricingOrDefault(cfg.PricingFile)
	if err != nil {
		return fail(err)
	}
	opts.Pricing = pricing

	if cfg.Payment.KeyID != "" {
		gw, err := payment.New(payment.Config{
			BaseURL:       cfg.Payment.BaseURL,
			KeyID:         cfg.Payment.KeyID,
			KeySecret:     cfg.Payment.KeySecret,
			WebhookSecret: cfg.Payment.WebhookSecret,
		})
		if err != nil {
			return fail(err)
		}
		opts.Gateway = gw
	}

	if cfg.SMTP.Host != "" {
		m, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			From:        cfg.SMTP.From,
			ImplicitTLS: cfg.SMTP.ImplicitTLS,
		}, log.Named("mail"))
		if err != nil {
			return fail(err)
		}
		opts.Mailer = m
	}

	opts.Media = media.New(media.Config{
		CloudName: cfg.CDN.CloudName,
		APIKey:    cfg.CDN.APIKey,
		APISecret: cfg.CDN.APISecret,
		Folder:    cfg.CDN.Folder,
	}, log.Named("media"))

	if supa != nil {
		opts.Identity = supabaseIdentity{auth: supa.Auth()}
	}

	application, err := New(stores, opts, log)
	if err != nil {
		return fail(err)
	}
	for _, c := range closers {
		application.OnClose(c)
	}
	return application, nil
}

// supabaseIdentity resolves OAuth access tokens through Supabase Auth.
type supabaseIdentity struct {
	auth *client.AuthClient
}

func (s supabaseIdentity) GetUser(ctx context.Context, accessToken string) (accounts.Identity, error) {
	u, err := s.auth.GetUser(ctx, accessToken)
	if err != nil {
		return accounts.Identity{}, err
	}
	return accounts.Identity{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.DisplayName(),
		Provider: u.Provider(),
	}, nil
}
