package main

import (
	"context"
	"errors"
	"fmt"

	"zoomgo/internal/config"
	handlers "zoomgo/internal/handlers/shared"
	"zoomgo/internal/middleware"
	"zoomgo/internal/repositories/firestore"
	"zoomgo/internal/repositories/interfaces"
	"zoomgo/internal/repositories/memory"
	"zoomgo/internal/repositories/mongodb"
	"zoomgo/internal/repositories/postgres"
	"zoomgo/internal/repositories/redisnotify"
	"zoomgo/pkg/auth"
	"zoomgo/pkg/cache"
	"zoomgo/pkg/database"
	"zoomgo/pkg/logger"
	"zoomgo/pkg/push"
	"zoomgo/pkg/sms"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// dependencies holds everything built from config that needs closing.
type dependencies struct {
	Store        interfaces.DocumentStore
	Verifier     auth.TokenVerifier
	SMS          sms.SMSProvider
	Push         []push.PushProvider
	Redis        *cache.RedisCache
	HealthChecks map[string]handlers.HealthCheck

	closers []func() error
	logger  *logger.Logger
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.WithError(err).Warn("Failed to close dependency")
		}
	}
}

// RateLimiter is nil when Redis is not configured, which turns the limit off.
func (d *dependencies) RateLimiter() middleware.WindowCounter {
	if d.Redis == nil {
		return nil
	}
	return d.Redis
}

func buildDependencies(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *dependencies, err error) {
	deps := &dependencies{
		HealthChecks: map[string]handlers.HealthCheck{},
		logger:       log,
	}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	var app *firebase.App
	if cfg.NeedsFirebase() {
		app, err = newFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
	}

	if err = deps.buildStore(ctx, cfg, app, log); err != nil {
		return nil, err
	}
	if err = deps.buildRedis(ctx, cfg, log); err != nil {
		return nil, err
	}
	if err = deps.buildVerifier(ctx, cfg, app); err != nil {
		return nil, err
	}
	if err = deps.buildNotifiers(ctx, cfg, app, log); err != nil {
		return nil, err
	}

	return deps, nil
}

func newFirebaseApp(ctx context.Context, cfg *config.FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	return app, nil
}

func (d *dependencies) buildStore(ctx context.Context, cfg *config.Config, app *firebase.App, log *logger.Logger) error {
	switch cfg.Ledger.Store {
	case config.StoreMemory:
		d.Store = memory.NewDocumentStore()
		log.Warn("Using in-memory document store; data is lost on restart")

	case config.StoreMongoDB:
		db, err := database.NewMongoDB(ctx, &database.DatabaseConfig{
			URI:            cfg.Database.URI,
			Database:       cfg.Database.Database,
			MaxPoolSize:    cfg.Database.MaxPoolSize,
			MinPoolSize:    cfg.Database.MinPoolSize,
			ConnectTimeout: cfg.Database.ConnectTimeout,
			SocketTimeout:  cfg.Database.SocketTimeout,
		})
		if err != nil {
			return err
		}
		d.closers = append(d.closers, db.Close)

		if cfg.Ledger.Migrate {
			if err := database.NewMigrator(db.Database, log).Up(ctx); err != nil {
				return fmt.Errorf("failed to migrate mongodb: %w", err)
			}
		}
		d.Store = mongodb.NewDocumentStore(db.Database, log)
		d.HealthChecks["mongodb"] = db.Ping

	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
			URL:             cfg.Postgres.URL,
			MaxConns:        int32(cfg.Postgres.MaxConns),
			MinConns:        int32(cfg.Postgres.MinConns),
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
			ConnectRetries:  cfg.Postgres.ConnectRetries,
			RetryInterval:   cfg.Postgres.RetryInterval,
		}, log)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func() error {
			pool.Close()
			return nil
		})

		if cfg.Ledger.Migrate {
			if err := database.MigratePostgres(ctx, pool, log); err != nil {
				return err
			}
		}
		d.Store = postgres.NewDocumentStore(pool, log)
		d.HealthChecks["postgres"] = pool.Ping

	case config.StoreFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("failed to create firestore client: %w", err)
		}
		d.closers = append(d.closers, client.Close)
		d.Store = firestore.NewDocumentStore(client, log)

	default:
		return fmt.Errorf("unsupported store %q", cfg.Ledger.Store)
	}

	return nil
}

// buildRedis connects when Redis carries change notifications or rate
// limits. A rate-limit-only Redis that is down disables the limit rather
// than failing startup.
func (d *dependencies) buildRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	required := cfg.Ledger.Notify == config.NotifyRedis
	if !required && cfg.Security.RateLimitPerMinute <= 0 {
		return nil
	}

	redisCache, err := cache.NewRedisCache(ctx, &cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		if required {
			return err
		}
		log.WithError(err).Warn("Redis unavailable; rate limiting disabled")
		return nil
	}

	d.Redis = redisCache
	d.closers = append(d.closers, redisCache.Close)
	d.HealthChecks["redis"] = redisCache.Ping

	if required {
		d.Store = redisnotify.NewDocumentStore(d.Store, redisCache, log)
	}
	return nil
}

func (d *dependencies) buildVerifier(ctx context.Context, cfg *config.Config, app *firebase.App) error {
	switch cfg.Security.AuthProvider {
	case config.AuthFirebase:
		client, err := app.Auth(ctx)
		if err != nil {
			return fmt.Errorf("failed to create firebase auth client: %w", err)
		}
		d.Verifier = auth.NewFirebaseVerifier(client)
	case config.AuthJWT:
		d.Verifier = auth.NewJWTVerifier(cfg.Security.JWTSecret)
	default:
		return fmt.Errorf("unsupported auth provider %q", cfg.Security.AuthProvider)
	}
	return nil
}

func (d *dependencies) buildNotifiers(ctx context.Context, cfg *config.Config, app *firebase.App, log *logger.Logger) error {
	if cfg.Push.FCM.Enabled {
		fcm, err := push.NewFCMProvider(ctx, app)
		if err != nil {
			return err
		}
		d.Push = append(d.Push, fcm)
	}

	if apnsCfg := cfg.Push.APNS; apnsCfg.Enabled() {
		apns, err := push.NewAPNSProvider(apnsCfg.KeyFile, apnsCfg.KeyID, apnsCfg.TeamID, apnsCfg.BundleID, apnsCfg.Production)
		if err != nil {
			return err
		}
		d.Push = append(d.Push, apns)
	}

	switch cfg.SMS.Provider {
	case config.SMSTwilio:
		twilioCfg := cfg.SMS.Twilio
		if twilioCfg.AccountSID == "" || twilioCfg.AuthToken == "" {
			return errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required for twilio sms")
		}
		d.SMS = sms.NewTwilioProvider(twilioCfg.AccountSID, twilioCfg.AuthToken, twilioCfg.FromNumber)
	case config.SMSAWS:
		provider, err := sms.NewAWSSNSProvider(ctx, cfg.SMS.AWS.Region, cfg.SMS.AWS.SenderID)
		if err != nil {
			return err
		}
		d.SMS = provider
	}

	if len(d.Push) == 0 && d.SMS == nil {
		log.Info("No push or sms provider configured; approvals notify open streams only")
	}
	return nil
}
