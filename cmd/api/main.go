package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	"github.com/angelmondragon/bazaar-backend/api/routes"
	"github.com/angelmondragon/bazaar-backend/internal/cards"
	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/internal/media"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/internal/profiles"
	"github.com/angelmondragon/bazaar-backend/internal/verification"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/invoicing"
	"github.com/angelmondragon/bazaar-backend/pkg/instance"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/mailer"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	"github.com/angelmondragon/bazaar-backend/pkg/square"
	"github.com/angelmondragon/bazaar-backend/pkg/storage/gcs"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	bootCtx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(bootCtx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	must(bootCtx, logg, "failed to load config", err)
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	must(bootCtx, logg, "failed to bootstrap database", err)
	defer closeQuietly(logg, "database", dbClient.Close)
	must(bootCtx, logg, "failed to run dev migrations", migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient))

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	must(bootCtx, logg, "failed to bootstrap redis", err)
	defer closeQuietly(logg, "redis", redisClient.Close)

	gcsClient, err := gcs.NewClient(bootCtx, cfg.GCS, cfg.GCP, logg)
	must(bootCtx, logg, "failed to bootstrap gcs", err)
	defer closeQuietly(logg, "gcs", gcsClient.Close)

	sender, err := mailer.New(cfg.SMTP, cfg.FeatureFlags.SendEmails, logg)
	must(bootCtx, logg, "failed to create mailer", err)

	domainMetrics := metrics.NewDomainMetrics(prometheus.DefaultRegisterer)
	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)

	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	profileRepo := profiles.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	cardRepo := cards.NewRepository(conn)

	resolver, err := media.NewResolver(media.ResolverParams{
		Signer:  gcsClient,
		Cache:   redisClient,
		Metrics: domainMetrics,
		Logger:  logg,
		GCS:     cfg.GCS,
		Media:   cfg.Media,
	})
	must(bootCtx, logg, "failed to create media resolver", err)

	profileService, err := profiles.NewService(profileRepo)
	must(bootCtx, logg, "failed to create profile service", err)
	catalogService, err := catalog.NewService(conn)
	must(bootCtx, logg, "failed to create catalog service", err)
	productService, err := product.NewService(product.NewRepository(conn), dbClient, emitter, resolver)
	must(bootCtx, logg, "failed to create product service", err)
	orderService, err := orders.NewService(orderRepo)
	must(bootCtx, logg, "failed to create order service", err)
	notificationService, err := notifications.NewService(notifications.NewRepository(conn), dbClient, emitter)
	must(bootCtx, logg, "failed to create notification service", err)

	verificationService, err := verification.NewService(verification.ServiceParams{
		Repo:      verification.NewRepository(conn),
		Cards:     cardRepo,
		Profiles:  profileRepo,
		Mailer:    sender,
		Limiter:   redisClient,
		Metrics:   domainMetrics,
		Logger:    logg,
		Config:    cfg.Verification,
		RateLimit: cfg.RateLimit,
	})
	must(bootCtx, logg, "failed to create verification service", err)
	cardService, err := cards.NewService(cards.ServiceParams{
		Repo:     cardRepo,
		Tx:       dbClient,
		Verifier: verificationService,
	})
	must(bootCtx, logg, "failed to create card service", err)

	params := routes.Params{
		Config:      cfg,
		Logger:      logg,
		Gatherer:    prometheus.DefaultGatherer,
		HTTPMetrics: httpMetrics,
		Health: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
			"gcs":      gcsClient,
		},
		Roles:         profileRepo,
		Limiter:       redisClient,
		Idempotency:   redisClient,
		Profiles:      profileService,
		Catalog:       catalogService,
		Products:      productService,
		Media:         resolver,
		Cards:         cardService,
		Verification:  verificationService,
		Orders:        orderService,
		Notifications: notificationService,
	}

	// payment and invoicing providers are optional; their routes answer 503 when unset
	if gateway, err := square.NewClient(bootCtx, cfg.Square, logg); err != nil {
		logg.Warn(bootCtx, "square gateway disabled: "+err.Error())
	} else {
		paymentService, err := payments.NewService(payments.ServiceParams{
			Repo:    payments.NewRepository(conn),
			Orders:  orderRepo,
			Tx:      dbClient,
			Gateway: gateway,
			Outbox:  emitter,
			Metrics: domainMetrics,
			Logger:  logg,
		})
		must(bootCtx, logg, "failed to create payment service", err)
		params.Payments = paymentService
	}

	if provider, err := invoicing.NewClient(cfg.Invoice); err != nil {
		logg.Warn(bootCtx, "invoice provider disabled: "+err.Error())
	} else {
		invoiceService, err := invoices.NewService(invoices.ServiceParams{
			Repo:     invoices.NewRepository(conn),
			Orders:   orderRepo,
			Profiles: profileRepo,
			Tx:       dbClient,
			Provider: provider,
			Store:    gcsClient,
			Signer:   gcsClient,
			Locker:   redisClient,
			Outbox:   emitter,
			Metrics:  domainMetrics,
			Logger:   logg,
			Invoice:  cfg.Invoice,
			GCS:      cfg.GCS,
		})
		must(bootCtx, logg, "failed to create invoice service", err)
		params.Invoices = invoiceService
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instanceId":  instance.GetID(serviceKind),
		"addr":        server.Addr,
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

func must(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
