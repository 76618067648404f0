// Package bootstrap assembles the escalation components from config.App so the
// server, worker and crmctl processes share one wiring.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/travelhub/crm-escalation/db"
	"github.com/travelhub/crm-escalation/internal/config"
	"github.com/travelhub/crm-escalation/services"
)

type App struct {
	DB       *sql.DB
	Store    *db.Store
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *services.Metrics
	Push     *services.PushService
	Engine   *services.EscalationEngine
}

// OpenDatabase connects to Postgres and pins the session to UTC.
func OpenDatabase(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable (or config) is required")
	}

	pg, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pg.Ping(); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set timezone to UTC for consistent time handling
	if _, err := pg.Exec("SET TIME ZONE 'UTC'"); err != nil {
		log.Printf("Failed to set timezone to UTC: %v", err)
	} else {
		log.Println("  Set database timezone to UTC")
	}

	log.Println("  Connected to database successfully")
	return pg, nil
}

// OpenRedis returns nil when no REDIS_URL is configured.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Println("  Connected to redis successfully")
	return client, nil
}

// New builds the store, push adapter, email channel, cycle lock and engine on top of pg.
func New(ctx context.Context, cfg config.Config, pg *sql.DB) (*App, error) {
	app := &App{
		DB:       pg,
		Store:    db.NewStore(pg),
		Registry: prometheus.NewRegistry(),
	}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = services.NewMetrics(app.Registry)

	provider, err := services.NewPushProvider(ctx, services.PushProviderConfig{
		Kind:            cfg.Push.Provider,
		CredentialsFile: cfg.Push.FirebaseCredentialsFile,
		Relay: services.RelayConfig{
			URL:        cfg.NotificationGatewayDetails.URL,
			Token:      cfg.NotificationGatewayDetails.APIToken,
			InstanceID: cfg.NotificationGatewayDetails.InstanceID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create push provider: %w", err)
	}
	log.Printf("  Push provider: %s", provider.Name())
	app.Push = services.NewPushService(app.Store, provider, app.Metrics)

	opts := services.EscalationOptions{
		CatchUp:   cfg.Escalation.CatchUp,
		BatchSize: cfg.Escalation.BatchSize,
		Metrics:   app.Metrics,
	}

	if cfg.Email.Enabled() {
		opts.Email = services.NewSendGridEmailService(cfg.Email.SendGridAPIKey, cfg.Email.AppName, cfg.Email.FromEmail)
		log.Println("  Escalation email channel enabled (SendGrid)")
	}

	app.Redis, err = OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if app.Redis != nil {
		opts.Lock = services.NewCycleLock(app.Redis, cfg.Escalation.LockKey, cfg.Escalation.LockTTL)
	} else {
		log.Println("  REDIS_URL not set, using in-process cycle lock")
		opts.Lock = &services.LocalLock{}
	}

	app.Engine = services.NewEscalationEngine(app.Store, app.Push, opts)
	return app, nil
}

// Close releases the redis client. The database handle belongs to the caller.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("Failed to close redis client: %v", err)
		}
	}
}
