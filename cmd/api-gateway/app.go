package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/service-order-api/internal/models"
	"github.com/noah-isme/service-order-api/internal/repository"
	"github.com/noah-isme/service-order-api/internal/service"
	"github.com/noah-isme/service-order-api/pkg/cache"
	"github.com/noah-isme/service-order-api/pkg/config"
	"github.com/noah-isme/service-order-api/pkg/database"
	"github.com/noah-isme/service-order-api/pkg/jobs"
	"github.com/noah-isme/service-order-api/pkg/lock"
)

const notificationBuffer = 256

type catalogSource interface {
	LoadSnapshot(ctx context.Context) (*models.CatalogSnapshot, error)
}

type contactDirectory interface {
	FindContact(ctx context.Context, id string) (*models.UserContact, error)
}

type app struct {
	db            *sqlx.DB
	redis         *redis.Client
	metrics       *service.MetricsService
	auth          *service.AuthService
	engine        *service.Engine
	readModel     *service.ReadModelService
	notifications *service.NotificationService
	logger        *zap.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*app, error) {
	a := &app{metrics: service.NewMetricsService(), logger: logr}

	var (
		uow       repository.UnitOfWork
		source    catalogSource
		directory contactDirectory
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := repository.NewMemoryStore()
		ref := repository.NewMemoryReference()
		seedDemo(store, ref)
		uow, source, directory = store, ref, ref
		logr.Warn("using in-memory store; data is lost on restart")
	default:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.db = db
		uow = repository.NewPostgresStore(db)
		source = repository.NewCatalogRepository(db)
		directory = repository.NewUserRepository(db)
	}

	if cfg.ReadModel.CacheEnabled || cfg.Lock.Backend == config.LockBackendRedis {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
	}

	var cacheSvc *service.CacheService
	if a.redis != nil {
		cacheRepo := repository.NewCacheRepository(a.redis, logr)
		cacheSvc = service.NewCacheService(cacheRepo, a.metrics, cfg.ReadModel.CacheTTL, logr, true)
	}

	var locker lock.Locker
	if cfg.Lock.Backend == config.LockBackendRedis {
		locker = lock.NewRedis(a.redis, cfg.Lock.Wait, cfg.Lock.TTL, logr)
	} else {
		locker = lock.NewLocal(cfg.Lock.Wait)
	}

	var readCache *service.CacheService
	if cfg.ReadModel.CacheEnabled {
		readCache = cacheSvc
	}
	a.readModel = service.NewReadModelService(uow, readCache, cfg.ReadModel.CacheTTL, logr)

	var sink service.Sink
	if smtp := cfg.Notifications.SMTP; smtp.Host != "" {
		sink = service.NewSMTPSink(smtp.Host, smtp.Port, smtp.Username, smtp.Password, smtp.From)
	} else {
		sink = service.NewLogSink(logr)
	}
	a.notifications = service.NewNotificationService(directory, sink, a.metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: notificationBuffer,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
	})
	a.notifications.Start(ctx)

	catalog := service.NewCatalogService(source, cacheSvc, cfg.Catalog.CacheTTL, logr)
	a.engine = service.NewEngine(uow, catalog, logr,
		service.WithLocker(locker),
		service.WithNotifier(a.notifications),
		service.WithReadModel(a.readModel),
		service.WithEngineMetrics(a.metrics),
	)

	a.auth = service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiry,
		Issuer:            cfg.JWT.Issuer,
	})
	return a, nil
}

// Ready reports whether the backing stores answer.
func (a *app) Ready(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *app) Close() {
	if a.notifications != nil {
		a.notifications.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing postgres", zap.Error(err))
		}
	}
}

// seedDemo loads a minimal plant so the in-memory driver is usable out of the box.
func seedDemo(store *repository.MemoryStore, ref *repository.MemoryReference) {
	ref.PutDepartment(models.Department{ID: "dep-mech", Name: "Mechanical"})
	ref.PutSector(models.Sector{ID: "sec-weld", DepartmentID: "dep-mech", Name: "Welding"})
	ref.PutSector(models.Sector{ID: "sec-paint", DepartmentID: "dep-mech", Name: "Painting"})
	ref.PutReworkCause(models.CatalogItem{ID: "rc-weld-defect", Label: "Weld defect"})
	store.PutOrder(models.ServiceOrder{Number: "OS-1001", Customer: "ACME", Status: models.OrderStatusOpen, Priority: 5})
}
