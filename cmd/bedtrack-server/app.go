package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/config"
	"github.com/bedtrack/bedtrack/internal/domain/alert"
	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/domain/bedrequest"
	"github.com/bedtrack/bedtrack/internal/domain/cleaning"
	"github.com/bedtrack/bedtrack/internal/domain/occupancy"
	"github.com/bedtrack/bedtrack/internal/domain/patient"
	"github.com/bedtrack/bedtrack/internal/domain/settings"
	"github.com/bedtrack/bedtrack/internal/domain/transfer"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/db"
	"github.com/bedtrack/bedtrack/internal/platform/realtime"
	"github.com/bedtrack/bedtrack/internal/platform/redisx"
)

// app holds the wired services. Every command builds one from the same pool
// so the CLI paths run the exact code the HTTP handlers do.
type app struct {
	settings  *settings.Store
	alerts    *alert.Service
	beds      *bed.Service
	cleaning  *cleaning.Service
	patients  *patient.Service
	requests  *bedrequest.Service
	transfers *transfer.Service
	occupancy *occupancy.Service
	redis     *redis.Client
	locker    *redisx.Locker
}

// bedInventory exposes the bed repository as an occupancy.BedSource without
// going through bed.Service, which itself publishes through the occupancy
// watcher.
type bedInventory struct {
	bed.Repository
}

func (b bedInventory) Stats(ctx context.Context) ([]bed.WardCount, error) {
	return b.CountByWardStatus(ctx)
}

func connect(ctx context.Context) (*pgxpool.Pool, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, cfg, nil
}

// newTransports builds the outbound publisher chain: the local hub (mirrored
// through Redis when configured) plus the MQTT bridge when configured.
func newTransports(ctx context.Context, cfg *config.Config, hub *realtime.Hub, logger zerolog.Logger) (realtime.Publisher, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var local realtime.Publisher = hub
	if cfg.RedisURL != "" {
		client, err := redisx.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { client.Close() })
		relay := realtime.NewRedisRelay(client, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("redis relay stopped")
			}
		}()
		local = relay
		logger.Info().Msg("realtime relay enabled")
	}

	fanout := realtime.Fanout{local}
	if cfg.MQTTBrokerURL != "" {
		bridge, closeMQTT, err := realtime.DialMQTT(cfg.MQTTBrokerURL, cfg.MQTTClientID, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, closeMQTT)
		fanout = append(fanout, bridge)
		logger.Info().Str("broker", cfg.MQTTBrokerURL).Msg("mqtt bridge enabled")
	}
	return fanout, closeAll, nil
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, pub realtime.Publisher, logger zerolog.Logger) (*app, error) {
	policy := auth.DefaultPolicy()
	tx := db.NewTxManager(pool)
	seq := db.NewSequence(pool)

	store := settings.NewStore(settings.NewRepoPG(pool), policy, logger)
	if _, err := store.Reload(ctx); err != nil {
		return nil, err
	}

	alerts := alert.NewService(alert.NewRepoPG(pool), policy, pub, logger)
	if cfg.AlertWebhookURL != "" {
		alerts.SetForwarder(alert.NewWebhookForwarder(cfg.AlertWebhookURL))
	}

	bedRepo := bed.NewRepoPG(pool)
	occ := occupancy.NewService(bedInventory{bedRepo}, alerts, store, logger)
	beds := bed.NewService(bedRepo, policy, occupancy.NewWatcher(pub, occ), logger)

	clean := cleaning.NewService(cleaning.NewJobRepoPG(pool), cleaning.NewStaffRepoPG(pool), beds, tx, policy, pub, logger)
	beds.SetCleaningScheduler(clean)

	patients := patient.NewService(patient.NewRepoPG(pool), seq, beds, tx, policy, pub, logger)
	beds.SetOccupantReleaser(patients, tx)

	requests := bedrequest.NewService(bedrequest.Deps{
		Repo:     bedrequest.NewRepoPG(pool),
		Seq:      seq,
		Beds:     beds,
		Patients: patients,
		Alerts:   alerts,
		Settings: store,
		Tx:       tx,
		Policy:   policy,
		Pub:      pub,
	}, logger)

	transfers := transfer.NewService(transfer.Deps{
		Repo:     transfer.NewRepoPG(pool),
		Beds:     beds,
		Patients: patients,
		Alerts:   alerts,
		Settings: store,
		Tx:       tx,
		Policy:   policy,
		Pub:      pub,
	}, logger)

	a := &app{
		settings:  store,
		alerts:    alerts,
		beds:      beds,
		cleaning:  clean,
		patients:  patients,
		requests:  requests,
		transfers: transfers,
		occupancy: occ,
	}

	if cfg.RedisURL != "" {
		client, err := redisx.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.locker = redisx.NewLocker(client)
	}
	return a, nil
}

func (a *app) healthChecks() []db.Check {
	if a.redis == nil {
		return nil
	}
	return []db.Check{{Name: "redis", Ping: func(ctx context.Context) error {
		return a.redis.Ping(ctx).Err()
	}}}
}

func (a *app) registerRoutes(api *echo.Group) {
	bed.NewHandler(a.beds).RegisterRoutes(api)
	bedrequest.NewHandler(a.requests).RegisterRoutes(api)
	transfer.NewHandler(a.transfers).RegisterRoutes(api)
	cleaning.NewHandler(a.cleaning).RegisterRoutes(api)
	patient.NewHandler(a.patients).RegisterRoutes(api)
	alert.NewHandler(a.alerts).RegisterRoutes(api)
	settings.NewHandler(a.settings).RegisterRoutes(api)
	occupancy.NewHandler(a.occupancy).RegisterRoutes(api)
}
