package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/clovermart/api/internal/payments"
	"github.com/clovermart/api/internal/platform/cache"
	"github.com/clovermart/api/internal/platform/config"
	"github.com/clovermart/api/internal/platform/events"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/repositories"
	fsrepo "github.com/clovermart/api/internal/repositories/firestore"
	"github.com/clovermart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Reviews  services.ReviewService
	System   services.SystemService
}

// Container wires repositories, services, and supporting infrastructure
// for runtime use.
type Container struct {
	Config    config.Config
	Firestore *pfirestore.Provider
	Services  Services

	closers []func(ctx context.Context) error
}

// NewContainer constructs the runtime dependency graph from configuration.
// The logger feeds service event logs; a nil logger disables them.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg}

	provider := pfirestore.NewProvider(cfg.Firestore)
	c.Firestore = provider
	c.closers = append(c.closers, provider.Close)

	catalogRepo, err := fsrepo.NewCatalogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build catalog repository: %w", err)
	}
	orderRepo, err := fsrepo.NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	cartRepo, err := fsrepo.NewCartRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	reviewRepo, err := fsrepo.NewReviewRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build review repository: %w", err)
	}
	unitOfWork, err := fsrepo.NewUnitOfWork(provider)
	if err != nil {
		return nil, fmt.Errorf("build unit of work: %w", err)
	}

	eventLog := eventLogger(logger)

	var redisClient redis.UniversalClient
	var catalogCache cache.Cache
	if cfg.Features.EnableCatalogCache && cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisClient = client
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })

		catalogCache, err = cache.NewRedisCache(client, cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("build catalog cache: %w", err)
		}
	}

	var publisher services.OrderEventPublisher
	if !cfg.Events.PublishDisabled && cfg.Events.ProjectID != "" && cfg.Events.OrderTopic != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		topic := psClient.Topic(cfg.Events.OrderTopic)
		c.closers = append(c.closers, func(context.Context) error {
			topic.Stop()
			return psClient.Close()
		})

		publisher, err = events.NewPubSubPublisher(topic)
		if err != nil {
			return nil, fmt.Errorf("build order event publisher: %w", err)
		}
	}

	verifier, err := payments.NewSignatureVerifier(cfg.Payments.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("build payment proof verifier: %w", err)
	}

	var (
		gateway services.PaymentGateway
		refunds services.RefundGateway
	)
	if cfg.Payments.StripeAPIKey != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Logger: eventLog,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		manager, err := payments.NewManager(map[string]payments.Provider{"stripe": stripeProvider})
		if err != nil {
			return nil, fmt.Errorf("build payment manager: %w", err)
		}
		gateway = manager
		refunds = manager
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog:  catalogRepo,
		Cache:    catalogCache,
		CacheTTL: cfg.Redis.CatalogCacheTTL,
		Clock:    time.Now,
		Logger:   eventLog,
	})
	if err != nil {
		return nil, fmt.Errorf("build catalog service: %w", err)
	}
	c.Services.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:   cartRepo,
		Catalog: catalogRepo,
		Clock:   time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("build cart service: %w", err)
	}
	c.Services.Cart = cartSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Catalog:               catalogRepo,
		Orders:                orderRepo,
		Carts:                 cartRepo,
		UnitOfWork:            unitOfWork,
		Verifier:              verifier,
		Gateway:               gateway,
		Events:                publisher,
		Clock:                 time.Now,
		Logger:                eventLog,
		Currency:              cfg.Payments.Currency,
		ShippingFlatFee:       cfg.Shipping.FlatFee,
		FreeShippingThreshold: cfg.Shipping.FreeShippingThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout service: %w", err)
	}
	c.Services.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     orderRepo,
		Catalog:    catalogRepo,
		UnitOfWork: unitOfWork,
		Verifier:   verifier,
		Refunds:    refunds,
		Events:     publisher,
		Clock:      time.Now,
		Logger:     eventLog,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	c.Services.Orders = orderSvc

	if cfg.Features.EnableReviews {
		reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
			Reviews: reviewRepo,
			Orders:  orderRepo,
			Clock:   time.Now,
			Logger:  eventLog,
		})
		if err != nil {
			return nil, fmt.Errorf("build review service: %w", err)
		}
		c.Services.Reviews = reviewSvc
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(dependencyChecks(provider, redisClient))
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}
	c.Services.System = systemSvc

	return c, nil
}

// Close releases held resources in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func dependencyChecks(provider *pfirestore.Provider, redisClient redis.UniversalClient) []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				client, err := provider.Client(ctx)
				if err != nil {
					return err
				}
				iter := client.Collections(ctx)
				if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		},
	}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return checks
}

func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		return nil
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
