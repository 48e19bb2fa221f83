// Package app composes the storefront: it builds every service over a set of
// stores and owns the lifecycle of the background components.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring and lifecycle
//	├── bootstrap.go        # Build: config -> stores, gateway, mailer, CDN
//	├── domain/             # Domain models (pure data structures)
//	│   ├── catalog/        # Categories, products, favorites
//	│   ├── checkout/       # Checkout sessions
//	│   ├── order/          # Orders, order lines, payments
//	│   └── ...             # cart, coupon, pricing, review, banner, user, report
//	├── services/           # Business rules, one package per concern
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # UserStore, ProductStore, OrderStore, ...
//	│   ├── memory/         # In-memory implementation (tests, local runs)
//	│   ├── supabase/       # PostgREST implementation (production)
//	│   ├── postgres/       # Migrations and SQL reports
//	│   └── redisstore/     # Login codes in Redis
//	├── events/             # Live order feed over websockets
//	├── httpapi/            # Routes, request DTOs, handlers
//	├── system/             # Lifecycle manager for background services
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/storefront/
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      ├──► internal/app/httpapi/ (transport)
//	      │
//	      ├──► internal/app/services/ (business rules)
//	      │           │
//	      │           └──► internal/app/storage/ (interfaces)
//	      │
//	      └──► internal/app/domain/ (models)
//
// Services never import httpapi, and storage implementations never import
// services.
package app
