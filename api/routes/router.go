package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/cards"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// Params carries everything the router hands to middleware and controllers.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
	Health      map[string]controllers.Pinger

	Roles       middleware.RoleLookup
	Limiter     redis.RateLimiter
	Idempotency redis.ResponseStore

	Profiles      controllers.ProfileService
	Catalog       controllers.CatalogService
	Products      controllers.ProductService
	Media         controllers.SignedURLResolver
	Cards         cards.Service
	Verification  controllers.CodeService
	Orders        orders.Service
	Notifications notifications.Service
	Payments      controllers.PaymentService
	Invoices      controllers.InvoiceService
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Health))
	})

	authenticate := middleware.Auth(cfg.Auth, p.Roles, logg)
	idempotent := middleware.Idempotency(p.Idempotency, middleware.DefaultIdempotencyTTL, logg)
	critical := middleware.Idempotency(p.Idempotency, middleware.CriticalIdempotencyTTL, logg)
	paymentLimit := middleware.RateLimit(middleware.NewRateLimitPolicy(
		"payment",
		cfg.RateLimit.PaymentWindow,
		cfg.RateLimit.PaymentIPLimit,
		cfg.RateLimit.PaymentCallerLimit,
	), p.Limiter, logg)

	r.Route("/api", func(r chi.Router) {
		// public
		r.Get("/products", controllers.ListProducts(p.Products, logg))
		r.Get("/products/{id}", controllers.GetProduct(p.Products, logg))
		r.Get("/brands", controllers.ListBrands(p.Catalog, logg))
		r.Get("/categories", controllers.ListCategories(p.Catalog, logg))
		r.With(middleware.OptionalAuth(cfg.Auth, p.Roles, logg)).Get("/announcements", controllers.ListAnnouncements(p.Catalog, logg))
		r.Get("/banks", controllers.ListBanks(p.Catalog, logg))
		r.Get("/bank-accounts", controllers.ListBankAccounts(p.Catalog, logg))
		r.Get("/media/signed-url", controllers.SignedURL(p.Media, logg))

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/profile", controllers.Profile(p.Profiles, logg))

			r.Route("/cards", func(r chi.Router) {
				r.Get("/", controllers.ListCards(p.Cards, logg))
				r.With(idempotent).Post("/", controllers.AddCard(p.Cards, logg))
				r.Route("/{cardId}", func(r chi.Router) {
					r.Delete("/", controllers.DeleteCard(p.Cards, logg))
					r.Patch("/", controllers.EditCard(p.Cards, logg))
					r.Post("/default", controllers.SetDefaultCard(p.Cards, logg))
					r.Post("/verification", controllers.RequestCardCode(p.Verification, logg))
					r.Post("/verification/confirm", controllers.ConfirmCardCode(p.Verification, logg))
				})
			})

			r.Get("/orders", controllers.ListOrders(p.Orders, logg))
			r.Get("/orders/{id}", controllers.GetOrder(p.Orders, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(p.Notifications, logg))
				r.Post("/{id}/read", controllers.MarkNotificationRead(p.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			})

			r.With(paymentLimit, critical).Post("/payment/complete", controllers.CompletePayment(p.Payments, logg))

			r.With(critical).Post("/invoice/generate", controllers.GenerateInvoice(p.Invoices, logg))
			r.Get("/invoice/download/{id}", controllers.DownloadInvoice(p.Invoices, logg))

			r.Route("/seller", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleSeller))
				r.Get("/products", controllers.SellerListProducts(p.Products, logg))
				r.With(idempotent).Post("/products", controllers.SellerCreateProduct(p.Products, logg))
				r.Patch("/products/{id}", controllers.SellerUpdateProduct(p.Products, logg))
				r.Delete("/products/{id}", controllers.SellerDeleteProduct(p.Products, logg))
				r.Get("/orders", controllers.SellerListOrders(p.Orders, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleAdmin))

				r.Get("/products/pending", controllers.AdminPendingProducts(p.Products, logg))
				r.Post("/products/{id}/approve", controllers.AdminApproveProduct(p.Products, logg))
				r.Post("/products/{id}/reject", controllers.AdminRejectProduct(p.Products, logg))

				r.Route("/brands", func(r chi.Router) {
					r.Get("/", controllers.AdminListBrands(p.Catalog, logg))
					r.Post("/", controllers.AdminCreateBrand(p.Catalog, logg))
					r.Patch("/{id}", controllers.AdminUpdateBrand(p.Catalog, logg))
					r.Delete("/{id}", controllers.AdminDeleteBrand(p.Catalog, logg))
				})
				r.Route("/categories", func(r chi.Router) {
					r.Get("/", controllers.AdminListCategories(p.Catalog, logg))
					r.Post("/", controllers.AdminCreateCategory(p.Catalog, logg))
					r.Patch("/{id}", controllers.AdminUpdateCategory(p.Catalog, logg))
					r.Delete("/{id}", controllers.AdminDeleteCategory(p.Catalog, logg))
				})
				r.Route("/announcements", func(r chi.Router) {
					r.Get("/", controllers.AdminListAnnouncements(p.Catalog, logg))
					r.Post("/", controllers.AdminCreateAnnouncement(p.Catalog, logg))
					r.Patch("/{id}", controllers.AdminUpdateAnnouncement(p.Catalog, logg))
					r.Delete("/{id}", controllers.AdminDeleteAnnouncement(p.Catalog, logg))
				})
				r.Route("/banks", func(r chi.Router) {
					r.Get("/", controllers.AdminListBanks(p.Catalog, logg))
					r.Post("/", controllers.AdminCreateBank(p.Catalog, logg))
					r.Patch("/{id}", controllers.AdminUpdateBank(p.Catalog, logg))
					r.Delete("/{id}", controllers.AdminDeleteBank(p.Catalog, logg))
				})
				r.Route("/bank-accounts", func(r chi.Router) {
					r.Get("/", controllers.AdminListBankAccounts(p.Catalog, logg))
					r.Post("/", controllers.AdminCreateBankAccount(p.Catalog, logg))
					r.Patch("/{id}", controllers.AdminUpdateBankAccount(p.Catalog, logg))
					r.Delete("/{id}", controllers.AdminDeleteBankAccount(p.Catalog, logg))
				})

				r.With(idempotent).Post("/notifications", controllers.AdminBroadcastNotification(p.Notifications, logg))
			})
		})
	})

	return r
}
