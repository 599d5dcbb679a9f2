package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/eventdesk/api/internal/platform/cache"
	"github.com/eventdesk/api/internal/platform/config"
	"github.com/eventdesk/api/internal/platform/events"
	pfirestore "github.com/eventdesk/api/internal/platform/firestore"
	"github.com/eventdesk/api/internal/platform/idempotency"
	"github.com/eventdesk/api/internal/platform/observability"
	"github.com/eventdesk/api/internal/platform/sqldb"
	"github.com/eventdesk/api/internal/repositories"
	firestorerepo "github.com/eventdesk/api/internal/repositories/firestore"
	sqliterepo "github.com/eventdesk/api/internal/repositories/sqlite"
	"github.com/eventdesk/api/internal/services"
)

const (
	analyticsNamespace   = "eventdesk:analytics"
	idempotencyNamespace = "eventdesk:idempotency"
	meterName            = "github.com/eventdesk/api/internal/services"
	probeTimeout         = 2 * time.Second
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders   services.OrderService
	Numbers  services.OrderNumberService
	Messages services.OrderMessageService
	Queries  services.OrderQueryService
	System   services.SystemService
	Audit    services.AuditLogService
}

// EventPublisher is an order event sink that holds resources until closed.
type EventPublisher interface {
	services.OrderEventPublisher
	Close(ctx context.Context) error
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Idempotency  idempotency.Store

	closers []func(context.Context) error
}

// Option customises container construction. Tests use them to swap out external infrastructure.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	registry  repositories.Registry
	publisher EventPublisher
	redis     redis.UniversalClient
	clock     func() time.Time
}

// WithLogger sets the base logger used by services and publishers.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry bypasses backend selection and uses reg directly. The container takes ownership
// of reg and closes it.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithEventPublisher overrides the configured event transport.
func WithEventPublisher(pub EventPublisher) Option {
	return func(o *options) {
		o.publisher = pub
	}
}

// WithRedisClient overrides the Redis client built from configuration. The caller keeps
// ownership of client.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

// WithClock overrides the clock handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies for cfg. On error every resource opened so
// far is released.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (_ *Container, err error) {
	o := options{
		logger: zap.NewNop(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.Close(closeCtx)
		}
	}()

	var probes []repositories.DependencyProbe

	redisClient := o.redis
	if redisClient == nil && strings.TrimSpace(cfg.Redis.Addr) != "" {
		client, err := cache.NewRedisClient(cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("build redis client: %w", err)
		}
		c.addCloser(func(context.Context) error { return client.Close() })
		redisClient = client
	}

	var analyticsCache services.AnalyticsCache
	if redisClient != nil {
		redisCache, err := cache.NewRedisCache(redisClient, analyticsNamespace)
		if err != nil {
			return nil, fmt.Errorf("build analytics cache: %w", err)
		}
		analyticsCache = redisCache
		probes = append(probes, repositories.DependencyProbe{Name: "redis", Timeout: probeTimeout, Probe: redisCache.Ping})

		store, err := idempotency.NewRedisStore(redisClient, idempotencyNamespace)
		if err != nil {
			return nil, fmt.Errorf("build idempotency store: %w", err)
		}
		c.Idempotency = store
	} else {
		o.logger.Warn("redis not configured; idempotency records and analytics are process local")
		c.Idempotency = idempotency.NewMemoryStore()
	}

	reg := o.registry
	if reg == nil {
		reg, err = c.openRegistry(ctx, cfg, probes, o.clock)
		if err != nil {
			return nil, err
		}
	} else {
		c.addCloser(reg.Close)
	}
	c.Repositories = reg

	publisher := o.publisher
	if publisher == nil {
		publisher, err = c.openPublisher(ctx, cfg, o.logger)
		if err != nil {
			return nil, err
		}
	}

	c.Services, err = buildServices(cfg, reg, publisher, analyticsCache, o)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) openRegistry(ctx context.Context, cfg config.Config, probes []repositories.DependencyProbe, clock func() time.Time) (repositories.Registry, error) {
	healthOpts := []repositories.HealthOption{
		repositories.WithEnvironment(cfg.Security.Environment),
		repositories.WithHealthClock(clock),
	}

	switch cfg.Database.Backend {
	case config.BackendSQLite:
		db, err := sqldb.Open(ctx, cfg.Database.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		probes = append([]repositories.DependencyProbe{{Name: "database", Timeout: probeTimeout, Probe: db.Ping}}, probes...)
		health, err := repositories.NewProbeHealthRepository(probes, healthOpts...)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("build health repository: %w", err)
		}
		reg, err := sqliterepo.NewRegistry(db, health)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("build sqlite registry: %w", err)
		}
		c.addCloser(reg.Close)
		return reg, nil

	case config.BackendFirestore:
		var providerOpts []pfirestore.ProviderOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		provider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
		probes = append([]repositories.DependencyProbe{{Name: "firestore", Timeout: probeTimeout, Probe: provider.Ping}}, probes...)
		health, err := repositories.NewProbeHealthRepository(probes, healthOpts...)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, fmt.Errorf("build health repository: %w", err)
		}
		reg, err := firestorerepo.NewRegistry(provider, health)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		c.addCloser(reg.Close)
		return reg, nil
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Database.Backend)
}

func (c *Container) openPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (EventPublisher, error) {
	switch cfg.Events.Transport {
	case config.TransportPubSub:
		projectID := firstNonEmpty(cfg.Firestore.ProjectID, cfg.Firebase.ProjectID)
		if projectID == "" {
			return nil, errors.New("pubsub transport requires a project id")
		}
		var clientOpts []option.ClientOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(file))
		}
		client, err := pubsub.NewClient(ctx, projectID, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		c.addCloser(func(context.Context) error { return client.Close() })
		topic := client.Topic(cfg.Events.Topic)
		topic.EnableMessageOrdering = true
		pub, err := events.NewPubSubPublisher(topic)
		if err != nil {
			return nil, fmt.Errorf("build pubsub publisher: %w", err)
		}
		c.addCloser(pub.Close)
		return pub, nil

	case config.TransportKafka:
		pub, err := events.NewKafkaPublisher(events.KafkaOptions{
			Brokers:  cfg.Events.KafkaBrokers,
			Topic:    cfg.Events.Topic,
			ClientID: "eventdesk-api",
		})
		if err != nil {
			return nil, fmt.Errorf("build kafka publisher: %w", err)
		}
		c.addCloser(pub.Close)
		return pub, nil

	case config.TransportNone, "":
		return events.NewLogPublisher(logger.Named("events")), nil
	}
	return nil, fmt.Errorf("unsupported events transport %q", cfg.Events.Transport)
}

func buildServices(cfg config.Config, reg repositories.Registry, publisher EventPublisher, analytics services.AnalyticsCache, o options) (Services, error) {
	var svc Services
	eventLogger := observability.EventLogger(o.logger.Named("services"))

	audit, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: reg.AuditLogs(),
		Clock:      o.clock,
		Logger:     eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = audit

	numbers, err := services.NewOrderNumberService(services.OrderNumberServiceDeps{
		Counters: reg.Counters(),
		Prefix:   cfg.Orders.NumberPrefix,
		Width:    cfg.Orders.NumberWidth,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order number service: %w", err)
	}
	svc.Numbers = numbers

	metrics := services.NewOrderMetrics(otel.GetMeterProvider().Meter(meterName), o.logger.Named("metrics"))
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Numbers:    numbers,
		Quotes:     services.NewQuoteEngine(services.QuoteEngineDeps{ValidityDays: cfg.Orders.QuoteValidityDays, Currency: cfg.Orders.Currency}),
		UnitOfWork: reg,
		Audit:      audit,
		Events:     publisher,
		Metrics:    metrics,
		Clock:      o.clock,
		Logger:     eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	messages, err := services.NewOrderMessageService(services.OrderMessageServiceDeps{
		Orders:   reg.Orders(),
		Messages: reg.OrderMessages(),
		Audit:    audit,
		Events:   publisher,
		Clock:    o.clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order message service: %w", err)
	}
	svc.Messages = messages

	queries, err := services.NewOrderQueryService(services.OrderQueryServiceDeps{
		Orders:   reg.Orders(),
		Numbers:  numbers,
		Cache:    analytics,
		CacheTTL: cfg.Analytics.CacheTTL,
		Clock:    o.clock,
		Logger:   eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order query service: %w", err)
	}
	svc.Queries = queries

	if health := reg.Health(); health != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            o.clock,
			Environment:      cfg.Security.Environment,
			Audit:            audit,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

func (c *Container) addCloser(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Close releases publishers, repository clients and caches in reverse order of construction.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.closers[i](ctx))
	}
	c.closers = nil
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
