package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-live/live-engine/internal/archive"
	"github.com/weiawesome/wes-io-live/live-engine/internal/cache"
	"github.com/weiawesome/wes-io-live/live-engine/internal/client"
	"github.com/weiawesome/wes-io-live/live-engine/internal/config"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/gift"
	"github.com/weiawesome/wes-io-live/live-engine/internal/handler"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
	"github.com/weiawesome/wes-io-live/live-engine/internal/kafka"
	"github.com/weiawesome/wes-io-live/live-engine/internal/pk"
	"github.com/weiawesome/wes-io-live/live-engine/internal/presence"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/internal/room"
	"github.com/weiawesome/wes-io-live/live-engine/internal/signaling"
	"github.com/weiawesome/wes-io-live/live-engine/internal/wallet"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/database"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-live/live-engine/pkg/log"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/middleware"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	if cfg.Log.InstanceID == "" {
		cfg.Log.InstanceID, _ = os.Hostname()
	}
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting live-engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db, domain.AllModels()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	// Session cache (optional)
	var sessionCache cache.SessionCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisSessionCache(cfg.Redis, "live")
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to redis, session cache disabled")
		} else {
			sessionCache = redisCache
			defer redisCache.Close()
			logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis session cache")
		}
	}

	// Cross-instance fan-out (optional)
	var bus pubsub.PubSub
	bus, err = pubsub.NewPubSub(cfg.PubSub)
	switch {
	case errors.Is(err, pubsub.ErrDisabled):
		bus = nil
		logger.Info().Msg("pubsub disabled, fan-out stays local")
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	default:
		defer bus.Close()
		logger.Info().Str("driver", cfg.PubSub.Driver).Msg("pubsub connected")
	}

	// Kafka producer for live-session events
	var producer kafka.LiveEventProducer = kafka.NopProducer{}
	if cfg.Kafka.Enabled {
		p, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, live events disabled")
		} else {
			producer = p
			defer p.Close()
			logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
		}
	}

	// Session archive
	store, err := storage.New(ctx, cfg.Archive)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize archive storage")
	}
	archiver := archive.NewArchiver(store)

	ids, err := idgen.NewSet(cfg.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure id generators")
	}

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessDuration)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure token validation")
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	// Repositories
	users := repository.NewGormUserRepository(db)
	follows := repository.NewGormFollowRepository(db)

	// Engine components
	hub := presence.NewHub(cfg.WebSocket)
	fanout := presence.NewFanout(hub, bus, cfg.Log.InstanceID)
	registry := room.NewRegistry(repository.NewGormRoomRepository(db), follows, ids.Room, fanout,
		sessionCache, cfg.Redis.SessionTTL, archiver, producer)
	presenceSvc := presence.NewService(registry, hub, fanout)
	ledger := wallet.NewLedger(repository.NewGormWalletRepository(db), users, ids.Transaction, cfg.Wallet.OpTimeout)
	media := client.NewMediaClient(cfg.Media.APIURL, cfg.Media.APIToken, cfg.Media.Timeout)
	relay := signaling.NewRelay(media, repository.NewGormSignalingRepository(db), registry, users, ids.Session)
	gifts := gift.NewProcessor(repository.NewGormGiftRepository(db), ledger, registry, users, follows,
		presenceSvc, producer, cfg.Gift)
	battles := pk.NewController(cfg.PK, registry, users, presenceSvc, producer, ids.Battle)
	gifts.AddObserver(battles)

	// Initialize handlers
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), pkglog.GinMiddleware(logger))

	handler.NewHandler(handler.Services{
		Registry: registry,
		Presence: presenceSvc,
		Relay:    relay,
		Gifts:    gifts,
		Battles:  battles,
		Ledger:   ledger,
		Users:    users,
		History:  archiver,
	}, authMiddleware).RegisterRoutes(engine)
	handler.NewWSHandler(hub, presenceSvc, registry, users, tokens, nil).RegisterRoutes(engine)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	apiServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     corsHandler.Handler(engine),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	hooks := handler.NewHooksHandler(registry, relay, ledger, presenceSvc, cfg.Hooks.WebhookSecret)
	if cfg.Hooks.WebhookSecret == "" {
		logger.Warn().Msg("payment webhook secret not set, payment webhook disabled")
	}
	hooksServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Hooks.Host, cfg.Hooks.Port),
		Handler:      pkglog.HTTPMiddleware(logger)(hooks.Router()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return fanout.Listen(gctx)
	})
	g.Go(func() error {
		logger.Info().Str("addr", apiServer.Addr).Msg("live-engine listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", hooksServer.Addr).Msg("hooks listening")
		if err := hooksServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("hooks server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down live-engine")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api server forced to shutdown")
		}
		if err := hooksServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("hooks server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("live-engine stopped with error")
		return
	}
	logger.Info().Msg("live-engine stopped")
}
