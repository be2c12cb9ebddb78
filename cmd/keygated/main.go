package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/keygate/adapters/events"
	"github.com/layer-3/keygate/adapters/store"
	"github.com/layer-3/keygate/adapters/tokenizer"
	"github.com/layer-3/keygate/ceremony"
	"github.com/layer-3/keygate/config"
	"github.com/layer-3/keygate/ports"
	"github.com/layer-3/keygate/service"
	"github.com/layer-3/keygate/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	signKey, err := cfg.SigningKey()
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}

	var (
		challenges  ports.ChallengeStore
		credentials ports.CredentialStore
		refresh     ports.RefreshTokenStore
		users       ports.UserStore
		eventPub    ports.EventPublisher
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			log.Fatalf("Failed to create Redis publisher: %v", err)
		}

		challenges = store.NewRedisChallengeStore(redisClient)
		credentials = store.NewRedisCredentialStore(redisClient)
		refresh = store.NewRedisRefreshStore(redisClient)
		users = store.NewRedisUserStore(redisClient)
		eventPub = events.NewWatermillPublisher(publisher)
	} else {
		logger.Warn("no redis configured, using in-memory stores")
		challenges = store.NewMemoryChallengeStore()
		credentials = store.NewMemoryCredentialStore()
		refresh = store.NewMemoryRefreshStore()
		users = store.NewMemoryUserStore()
	}

	jwtTokenizer := tokenizer.NewJWTTokenizer(signKey)
	tokens := service.NewTokenService(jwtTokenizer, refresh, cfg.AccessTTL, cfg.RefreshTTL)
	verifier := ceremony.NewVerifier(challenges, credentials, cfg.RPID, cfg.Origin)

	authService := service.NewAuthService(
		challenges, credentials, users,
		verifier, tokens, eventPub,
		logger, cfg.RPID, cfg.ChallengeTTL,
	)

	if cfg.SeedUserID != "" {
		if err := authService.CreateUser(context.Background(), cfg.SeedUserID, cfg.SeedPassword, cfg.SeedPIN); err != nil {
			logger.Warn("seed user not created", "user_id", cfg.SeedUserID, "err", err)
		}
	}

	router := http.SetupRouter(authService)

	logger.Info("starting keygate", "addr", cfg.ListenAddr, "rp_id", cfg.RPID)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
