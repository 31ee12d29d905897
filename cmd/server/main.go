// Command server runs the SMART-on-FHIR authorization server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	echoapi "github.com/fhirhub/smartauth/api/echo"
	"github.com/fhirhub/smartauth/cache"
	cacheredis "github.com/fhirhub/smartauth/cache/redis"
	"github.com/fhirhub/smartauth/config"
	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/inmem"
	"github.com/fhirhub/smartauth/internal/auth"
	"github.com/fhirhub/smartauth/internal/metrics"
	"github.com/fhirhub/smartauth/keys"
	applog "github.com/fhirhub/smartauth/log"
	"github.com/fhirhub/smartauth/mongodb"
	"github.com/fhirhub/smartauth/services"
)

const shutdownTimeout = 15 * time.Second

type repositories struct {
	clients  domain.ClientRepository
	codes    domain.AuthCodeRepository
	tokens   domain.TokenRepository
	keys     domain.SigningKeyRepository
	consents domain.ConsentRepository
	users    domain.UserRepository
}

func main() {
	applog.Setup(os.Getenv("SMARTAUTH_LOG_LEVEL"), os.Getenv("SMARTAUTH_LOG_PRETTY") == "true")

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("configuration invalid")
	}
	applog.Setup(cfg.LogLevel, os.Getenv("SMARTAUTH_LOG_PRETTY") == "true")
	metrics.Init(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, cleanup := buildRepositories(ctx, cfg)
	defer cleanup()

	revoked := buildRevocationList(ctx, cfg)
	defer revoked.Close()

	keyMgr, err := keys.NewManager(ctx, repos.keys, keys.ManagerConfig{
		RotationInterval:    cfg.Keys.RotationInterval,
		MinRotationInterval: cfg.Keys.MinRotationInterval,
		RetiringWindow:      cfg.Keys.RetiringWindow,
	})
	if err != nil {
		// Refusing to start beats serving tokens nothing can verify.
		zlog.Fatal().Err(err).Msg("signing keys unavailable")
	}
	keyMgr.StartRotation(ctx)

	clientSvc := services.NewClientService(repos.clients, auth.NewBcryptSecretHasher(cfg.BcryptCost))
	codeSvc := services.NewAuthCodeService(repos.codes, clientSvc, cfg.Token.AuthCodeTTL)
	consentSvc := services.NewConsentService(repos.consents, repos.tokens)
	tokenSvc := services.NewTokenService(repos.tokens, clientSvc, codeSvc, consentSvc,
		services.NewTokenSigner(keyMgr, cfg.Issuer), revoked, services.TokenServiceConfig{
			AccessTokenTTL:  cfg.Token.AccessTTL,
			RefreshTokenTTL: cfg.Token.RefreshTTL,
		})
	userSvc := services.NewUserService(repos.users)

	codeSvc.StartPurge(ctx, cfg.Token.PurgeInterval)
	tokenSvc.StartPurge(ctx, cfg.Token.PurgeInterval)

	e := echo.New()
	e.HideBanner = true
	echoapi.NewServer(clientSvc, codeSvc, tokenSvc, consentSvc, userSvc, keyMgr).Register(e)

	go func() {
		zlog.Info().Str("addr", cfg.HTTPAddr).Str("issuer", cfg.Issuer).Msg("authorization server listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			zlog.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	zlog.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func buildRepositories(ctx context.Context, cfg *config.Config) (repositories, func()) {
	if cfg.Mongo.URI == "" {
		zlog.Warn().Msg("no mongo uri configured, using in-memory stores")
		return repositories{
			clients:  inmem.NewClientRepository(),
			codes:    inmem.NewAuthCodeRepository(),
			tokens:   inmem.NewTokenRepository(),
			keys:     inmem.NewSigningKeyRepository(),
			consents: inmem.NewConsentRepository(),
			users:    inmem.NewUserRepository(),
		}, func() {}
	}

	db, disconnect, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		zlog.Fatal().Err(err).Msg("mongodb unavailable")
	}
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		zlog.Fatal().Err(err).Msg("index creation failed")
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := disconnect(shutdownCtx); err != nil {
			zlog.Error().Err(err).Msg("mongodb disconnect failed")
		}
	}
	return repositories{
		clients:  mongodb.NewClientRepository(db),
		codes:    mongodb.NewAuthCodeRepository(db),
		tokens:   mongodb.NewTokenRepository(db),
		keys:     mongodb.NewSigningKeyRepository(db),
		consents: mongodb.NewConsentRepository(db),
		users:    mongodb.NewUserRepository(db),
	}, cleanup
}

func buildRevocationList(ctx context.Context, cfg *config.Config) cache.RevocationList {
	if cfg.Redis.Addr == "" {
		zlog.Warn().Msg("no redis addr configured, revocation list is per-instance")
		return cache.NewMemoryRevocationList()
	}
	list, err := cacheredis.NewRevocationList(ctx, &goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("redis unavailable")
	}
	return list
}
