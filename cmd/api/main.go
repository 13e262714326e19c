package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/shoplane/api/internal/di"
	"github.com/shoplane/api/internal/handlers"
	"github.com/shoplane/api/internal/platform/auth"
	"github.com/shoplane/api/internal/platform/config"
	pfirestore "github.com/shoplane/api/internal/platform/firestore"
	"github.com/shoplane/api/internal/platform/idempotency"
	"github.com/shoplane/api/internal/platform/jobs"
	"github.com/shoplane/api/internal/platform/observability"
	"github.com/shoplane/api/internal/platform/secrets"
	firestoreRepo "github.com/shoplane/api/internal/repositories/firestore"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.Payments.StripeAPIKey == "" {
		logger.Warn("stripe api key not configured; card payments disabled")
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	containerOpts := []di.Option{di.WithLogger(logger)}

	var pubsubClient *pubsub.Client
	if cfg.Events.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(cfg.Events.OrderEventsTopic)
		publisher, err := jobs.NewPubSubOrderPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithOrderEventPublisher(publisher))
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("events project not configured; order events disabled")
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	ownerResolver := auth.NewOwnerResolver(firebaseVerifier, container.GuestSessions)

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup

	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		backgroundWG.Add(1)
		go func() {
			defer backgroundWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(backgroundCtx, time.Minute)
					removed, err := idempotencyStore.PruneExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency prune removed entries", zap.Int("count", removed))
					}
				case <-backgroundCtx.Done():
					return
				}
			}
		}()
	}

	var purgeTicker *time.Ticker
	if cfg.Carts.PurgeInterval > 0 {
		purgeTicker = time.NewTicker(cfg.Carts.PurgeInterval)
		backgroundWG.Add(1)
		go func() {
			defer backgroundWG.Done()
			purgeLogger := logger.Named("carts")
			for {
				select {
				case <-purgeTicker.C:
					runCtx, cancel := context.WithTimeout(backgroundCtx, time.Minute)
					purged, err := container.Services.Cart.PurgeExpiredCarts(runCtx, cfg.Carts.PurgeBatchSize)
					cancel()
					if err != nil {
						purgeLogger.Error("cart purge error", zap.Error(err))
						continue
					}
					if purged > 0 {
						purgeLogger.Info("purged expired carts", zap.Int("count", purged))
					}
				case <-backgroundCtx.Done():
					return
				}
			}
		}()
	}

	guestHandlers := handlers.NewGuestSessionHandlers(container.GuestSessions)
	cartHandlers := handlers.NewCartHandlers(container.Services.Cart, container.GuestSessions)
	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders)
	searchHandlers := handlers.NewSearchHandlers(container.Services.Catalog)
	webhookHandlers := handlers.NewWebhookHandlers(container.Payments, container.Services.Orders, logger.Named("webhooks"))
	healthHandlers := handlers.NewHealthHandlers(container.Services.System)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	searchLimiter := handlers.NewSearchRateLimiter(cfg.RateLimits.DefaultPerMinute)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithGuestRoutes(guestHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithSearchRoutes(searchHandlers.Routes),
		handlers.WithCatalogRoutes(searchHandlers.ShopRoutes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithOwnerMiddlewares(ownerResolver.ResolveOwner()),
		handlers.WithMutationMiddlewares(idempotencyMiddleware),
		handlers.WithSearchMiddlewares(handlers.NewRateLimitMiddleware(searchLimiter)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("shoplane api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	if purgeTicker != nil {
		purgeTicker.Stop()
	}
	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func traceProjectID(cfg config.Config) string {
	if cfg.Firebase.ProjectID != "" {
		return cfg.Firebase.ProjectID
	}
	return cfg.Firestore.ProjectID
}

// requiredSecretNames lists the configuration fields that must resolve to a
// non-empty value before the server starts. Stripe credentials are only
// mandatory when an API key is configured at all, so cash-only deployments
// can run without them.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Guest.SigningKey"}
	if strings.TrimSpace(env["API_PAYMENTS_STRIPE_API_KEY"]) != "" {
		required = append(required, "Payments.StripeAPIKey", "Payments.StripeWebhookSecret")
	}
	return required
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	versionPins := secretVersionPinsFromEnv(env)
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if len(versionPins) > 0 {
		opts = append(opts, secrets.WithVersionPins(versionPins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// secretProjectMapFromEnv parses API_SECRET_PROJECT_IDS, a comma separated
// list of environment=project pairs, e.g. "prod=shoplane-prod,dev=shoplane-dev".
func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	projects := make(map[string]string)
	for _, entry := range strings.Split(strings.TrimSpace(raw), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

// secretVersionPinsFromEnv parses API_SECRET_VERSION_PINS, a comma separated
// list of ref=version pairs used to pin specific secret versions.
func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_VERSION_PINS"]
	}
	pins := make(map[string]string)
	for _, entry := range strings.Split(strings.TrimSpace(raw), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		version := strings.TrimSpace(parts[1])
		if ref == "" || version == "" {
			continue
		}
		pins[ref] = version
	}
	return pins
}
