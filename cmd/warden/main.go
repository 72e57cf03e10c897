package main

import (
	"context"
	"strings"
	"time"

	"github.com/KainCH/omniasylum-sub001/internal/chat"
	"github.com/KainCH/omniasylum-sub001/internal/counters"
	"github.com/KainCH/omniasylum-sub001/internal/dispatch"
	"github.com/KainCH/omniasylum-sub001/internal/eventsub"
	"github.com/KainCH/omniasylum-sub001/internal/handlers"
	"github.com/KainCH/omniasylum-sub001/internal/lifecycle"
	"github.com/KainCH/omniasylum-sub001/internal/rooms"
	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/internal/supervisor"
	"github.com/KainCH/omniasylum-sub001/internal/tokens"
	"github.com/KainCH/omniasylum-sub001/pkg/config"
	"github.com/KainCH/omniasylum-sub001/pkg/crypto"
	"github.com/KainCH/omniasylum-sub001/pkg/database"
	"github.com/KainCH/omniasylum-sub001/pkg/kafka"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/monitoring"
	"github.com/KainCH/omniasylum-sub001/pkg/redis"
	"github.com/KainCH/omniasylum-sub001/pkg/secrets"
	"github.com/KainCH/omniasylum-sub001/pkg/server"
	"github.com/KainCH/omniasylum-sub001/pkg/version"

	"github.com/google/uuid"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("warden")

	// Load environment variables
	config.LoadEnv(logger)

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
	}).Info("Starting Warden (Overlay Event Broker)")

	// Secrets come from SECRETS_DIR files when present, env otherwise
	provider := secrets.NewFileEnvProvider(config.GetEnv("SECRETS_DIR", ""))
	jwtSecret := mustSecret(provider, "JWT_SECRET", logger)
	serviceToken := mustSecret(provider, "SERVICE_TOKEN", logger)
	twitchClientID := mustSecret(provider, "TWITCH_CLIENT_ID", logger)
	twitchClientSecret := mustSecret(provider, "TWITCH_CLIENT_SECRET", logger)

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("warden", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("warden", version.Version, version.GitCommit)

	tokenRefreshes := metricsCollector.NewCounter("token_refreshes_total",
		"Upstream token refresh attempts", []string{"result"})
	roomSubscribers := metricsCollector.NewGauge("room_subscribers",
		"Connected room subscribers", []string{"room"})
	sessionGauge := metricsCollector.NewGauge("sessions_active",
		"Running upstream and chat sessions", []string{"kind"})

	// Store selection: postgres when DATABASE_URL is set, filestore otherwise
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backing store.Store
	if dbURL := config.GetEnv("DATABASE_URL", ""); dbURL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = dbURL
		db := database.MustConnect(dbCfg, logger)
		defer db.Close()

		pg, err := store.NewPostgresStore(ctx, db, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize postgres store")
		}
		backing = pg
		healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	} else {
		dataDir := config.GetEnv("DATA_DIR", "./data")
		fs, err := store.NewFileStore(dataDir, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize file store")
		}
		backing = fs
		healthChecker.AddCheck("data_dir", monitoring.DataDirHealthCheck(dataDir))
	}

	// Credentials are encrypted at rest with a key derived from the JWT secret
	encryptor, err := crypto.DeriveFieldEncryptor([]byte(jwtSecret), "credentials")
	if err != nil {
		logger.WithError(err).Fatal("Failed to derive field encryptor")
	}
	repo := store.NewRepository(backing, encryptor)

	// Counter engine reads milestone thresholds from the tenant record
	engine := counters.NewEngine(repo, counters.ThresholdSourceFunc(func(ctx context.Context, tenantID string) models.ThresholdConfig {
		t, err := repo.GetTenant(ctx, tenantID)
		if err != nil {
			return models.ThresholdConfig{}
		}
		return t.CounterThresholds
	}), logger)

	broker := tokens.NewBroker(repo, tokens.Config{
		ClientID:     twitchClientID,
		ClientSecret: twitchClientSecret,
		TokenURL:     config.GetEnv("OAUTH_TOKEN_URL", tokens.DefaultTokenURL),
	}, logger, tokenRefreshes)

	sup := supervisor.New(repo, broker, nil, supervisor.Config{
		EventSub: eventsub.Config{
			WSURL:           config.GetEnv("EVENTSUB_WS_URL", eventsub.DefaultWSURL),
			HelixURL:        config.GetEnv("HELIX_URL", eventsub.DefaultHelixURL),
			ClientID:        twitchClientID,
			KeepaliveWindow: config.GetEnvDuration("EVENTSUB_KEEPALIVE_TIMEOUT", 60*time.Second),
		},
		Chat: chat.Config{
			WSURL: config.GetEnv("CHAT_WS_URL", chat.DefaultWSURL),
		},
	}, logger)

	// Optional sinks
	var relay *dispatch.RedisRelay
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		client, err := redis.NewClientFromURL(ctx, redisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to redis")
		}
		defer client.Close()
		relay = dispatch.NewRedisRelay(client, uuid.NewString())
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(client))
		logger.Info("Redis room relay enabled")
	}

	var firehose kafka.ProducerInterface
	if brokersEnv := config.GetEnv("KAFKA_BROKERS", ""); brokersEnv != "" {
		topic := config.GetEnv("KAFKA_TOPIC", "overlay_events")
		producer, err := kafka.NewKafkaProducer(strings.Split(brokersEnv, ","), topic, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize kafka producer")
		}
		defer producer.Close()
		firehose = producer
		healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.GetClient()))
		logger.WithField("topic", topic).Info("Kafka firehose enabled")
	}

	webhook := dispatch.NewWebhookSender(config.GetEnvDuration("WEBHOOK_TIMEOUT", 5*time.Second), logger)
	dispatchCfg := dispatch.Config{
		Chat:     sup,
		Firehose: firehose,
		Webhook:  webhook,
	}
	if relay != nil {
		dispatchCfg.Relay = relay
	}
	dispatcher := dispatch.New(engine, repo, dispatchCfg, logger)

	hub := rooms.NewHub(repo, dispatcher, sup, []byte(jwtSecret), logger)
	dispatcher.SetHub(hub)
	sup.SetBroadcaster(hub)
	sup.SetSink(dispatcher)

	controller := lifecycle.NewController(repo, dispatcher, sup, logger)

	go hub.Run(ctx)
	go dispatcher.Run(ctx)
	if relay != nil {
		go func() {
			if err := relay.Subscribe(ctx, hub); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Redis relay subscription ended")
			}
		}()
	}

	// Periodic gauge refresh for rooms and sessions
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for room, n := range hub.RoomCounts() {
					roomSubscribers.WithLabelValues(room).Set(float64(n))
				}
				monitors, bots := sup.Counts()
				sessionGauge.WithLabelValues("eventsub").Set(float64(monitors))
				sessionGauge.WithLabelValues("chat").Set(float64(bots))
			}
		}
	}()

	// Setup router with unified monitoring
	allowedOrigins := strings.Split(config.GetEnv("ALLOWED_ORIGINS", "*"), ",")
	router := server.SetupServiceRouter(logger, "warden", healthChecker, metricsCollector, allowedOrigins)

	h := handlers.New(repo, dispatcher, controller, sup, broker, hub, webhook, handlers.Config{
		JWTSecret:    []byte(jwtSecret),
		ServiceToken: serviceToken,
	}, logger)
	h.Register(router)

	// Start server with graceful shutdown; sessions stop before the drain
	serverConfig := server.DefaultConfig("warden", "8085")
	serverConfig.OnShutdown = func(shutdownCtx context.Context) {
		sup.StopAll()
		cancel()
	}
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

func mustSecret(provider *secrets.FileEnvProvider, key string, logger logging.Logger) string {
	v, err := provider.Get(key)
	if err != nil {
		logger.WithError(err).WithField("key", key).Fatal("Missing required secret")
	}
	return v
}
