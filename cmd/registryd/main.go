// Device registry daemon.
//
// registryd mints unique device identifiers for authenticated accounts,
// enforces the per-account ownership limit, and fans registrations out to
// MQTT, Redis, the audit trail, InfluxDB and WebSocket clients.
//
// Issue a token for an account with:
//
//	registryd -issue-token alice
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	_ "github.com/nerrad567/gray-logic-registry/migrations"

	"github.com/nerrad567/gray-logic-registry/internal/api"
	"github.com/nerrad567/gray-logic-registry/internal/audit"
	"github.com/nerrad567/gray-logic-registry/internal/auth"
	"github.com/nerrad567/gray-logic-registry/internal/device"
	"github.com/nerrad567/gray-logic-registry/internal/entropy"
	"github.com/nerrad567/gray-logic-registry/internal/events"
	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/etcd"
	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/redis"
	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/tracing"
	"github.com/nerrad567/gray-logic-registry/internal/mint"
	"github.com/nerrad567/gray-logic-registry/internal/sequencer"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	issueFor := flag.String("issue-token", "", "print an access token for `account` and exit")
	flag.Parse()

	if *issueFor != "" {
		if err := issueToken(os.Stdout, getConfigPath(), *issueFor); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// issueToken writes a signed access token for account to w.
func issueToken(w io.Writer, configPath, account string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	token, err := auth.GenerateAccessToken(account, cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// run wires every component and blocks until ctx is cancelled. Deferred
// closes run in reverse: the API stops taking requests, the sequencer
// finishes its running call, the emitter drains, then the subscriber
// sinks and storage close.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting device registry",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"store", cfg.Registry.Store,
		"max_owned", cfg.Registry.MaxOwned,
	)

	tp, shutdownTracing, err := tracing.Setup(cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if shutdownErr := shutdownTracing(context.Background()); shutdownErr != nil {
			log.Error("error shutting down tracing", "error", shutdownErr)
		}
	}()

	// The audit trail lives in SQLite whichever store is selected.
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	var redisClient *goredis.Client
	if cfg.Redis.Enabled || cfg.Registry.Store == config.StoreRedis {
		redisClient, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		log.Info("Redis connected", "prefix", cfg.Redis.KeyPrefix)
	}

	store, closeStore, err := openStore(ctx, cfg, db, redisClient)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("reading device count: %w", err)
	}
	log.Info("registry store ready", "store", cfg.Registry.Store, "devices", count)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	emitter := events.NewEmitter(events.Options{
		Buffer:        cfg.Registry.EventBuffer,
		RetryAttempts: cfg.Registry.EventRetryAttempts,
		RetryDelay:    cfg.Registry.EventRetryDelay,
	}, log.With("component", "events"))
	defer func() {
		log.Info("draining event emitter")
		emitter.Close()
	}()

	seq := sequencer.NewLoop(cfg.Registry.RoundInterval)
	seq.Start()
	defer seq.Close()

	svc := mint.NewService(store, entropy.NewCryptoSource(), seq,
		mint.Config{MaxOwned: cfg.Registry.MaxOwned, ContextTag: cfg.Registry.ContextTag},
		mint.WithLogger(log.With("component", "mint")),
		mint.WithNotifier(emitter),
		mint.WithTracerProvider(tp),
	)

	auditRepo := audit.NewSQLiteRepository(db.DB)

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Registry: svc,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	subscribeSinks(emitter, cfg, sinks{
		audit:  auditRepo,
		hub:    server.Hub(),
		mqtt:   mqttClient,
		redis:  redisClient,
		influx: influxClient,
	})
	log.Info("event subscribers registered", "subscribers", emitter.Subscribers())

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openStore builds the configured registry store. The returned close
// function releases anything the store owns exclusively.
func openStore(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *goredis.Client) (device.Store, func() error, error) {
	noop := func() error { return nil }
	maxOwned := cfg.Registry.MaxOwned

	switch cfg.Registry.Store {
	case config.StoreMemory:
		return device.NewMemoryStore(maxOwned), noop, nil
	case config.StoreSQLite:
		return device.NewSQLiteStore(db.DB, maxOwned), noop, nil
	case config.StoreRedis:
		return device.NewRedisStore(redisClient, cfg.Redis.KeyPrefix, maxOwned), noop, nil
	case config.StoreEtcd:
		cli, err := etcd.Connect(ctx, cfg.Etcd)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to etcd: %w", err)
		}
		return device.NewEtcdStore(cli, cfg.Etcd.KeyPrefix, maxOwned), cli.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Registry.Store)
	}
}

// sinks are the optional event destinations; nil entries are skipped.
type sinks struct {
	audit  audit.Repository
	hub    events.Broadcaster
	mqtt   *mqtt.Client
	redis  *goredis.Client
	influx *influxdb.Client
}

// subscribeSinks registers one emitter handler per available sink.
// Handlers run in subscription order.
func subscribeSinks(emitter *events.Emitter, cfg *config.Config, s sinks) {
	if s.audit != nil {
		emitter.Subscribe("audit", audit.Subscriber(s.audit))
	}
	if s.hub != nil {
		emitter.Subscribe("websocket", events.BroadcastHandler(s.hub))
	}
	if s.mqtt != nil {
		topic := mqtt.Topics{}.CoreEvent(events.TypeDeviceRegistered)
		emitter.Subscribe("mqtt", events.MQTTHandler(s.mqtt, topic, byte(cfg.MQTT.QoS))) //nolint:gosec // QoS validated to 0-2
	}
	if s.redis != nil && cfg.Redis.PublishEvents {
		emitter.Subscribe("redis", events.RedisHandler(s.redis, cfg.Redis.KeyPrefix+":events"))
	}
	if s.influx != nil {
		emitter.Subscribe("influxdb", events.MetricsHandler(s.influx))
	}
}

// getConfigPath returns REGISTRY_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("REGISTRY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the connections the registry depends on. Optional
// clients may be nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
