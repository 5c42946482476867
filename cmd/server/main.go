// Command server runs the relay backend: an HTTP surface that forwards
// questions to a human responder over a message channel and correlates the
// (possibly multi-part, out-of-order) answers back to the waiting caller.
//
// The backend mode is selected at startup: "local" owns the SQLite store and
// the Telegram channel directly; "remote" forwards every operation to another
// deployment of the same surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-backend/internal/channel"
	"github.com/tbourn/go-relay-backend/internal/config"
	"github.com/tbourn/go-relay-backend/internal/domain"
	httpapi "github.com/tbourn/go-relay-backend/internal/http"
	"github.com/tbourn/go-relay-backend/internal/observability"
	"github.com/tbourn/go-relay-backend/internal/repo"
	"github.com/tbourn/go-relay-backend/internal/services"
	"github.com/tbourn/go-relay-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// requestRepoShim adapts the repository free functions to the
// services.RequestRepo interface expected by the RequestService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type requestRepoShim struct{}

func (requestRepoShim) CreateRequest(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	return repo.CreateRequest(ctx, db, req)
}

func (requestRepoShim) GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.Request, error) {
	return repo.GetRequest(ctx, db, id)
}

func (requestRepoShim) SetExternalMessageID(ctx context.Context, db *gorm.DB, id string, externalID int64) error {
	return repo.SetExternalMessageID(ctx, db, id, externalID)
}

func (requestRepoShim) CompleteRequest(ctx context.Context, db *gorm.DB, id, response string, responseAt time.Time) error {
	return repo.CompleteRequest(ctx, db, id, response, responseAt)
}

func (requestRepoShim) ListRecentRequests(ctx context.Context, db *gorm.DB, limit int, completedOnly bool) ([]domain.Request, error) {
	return repo.ListRecentRequests(ctx, db, limit, completedOnly)
}

func (requestRepoShim) PurgeOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, int64, error) {
	return repo.PurgeOlderThan(ctx, db, cutoff)
}

// @title           Relay Backend API
// @version         1.0
// @description     Human-in-the-loop request/response relay over a chat channel.
//
// @contact.name    API Support
//
// @license.name    MIT
//
// @BasePath  /api/v1
//
// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	// Best effort; the environment wins over .env.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	var (
		db      *gorm.DB
		backend services.Backend
	)
	switch cfg.BackendMode {
	case config.BackendLocal:
		db, err = repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
		}
		if err := repo.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrate database failed")
		}

		var client *channel.TelegramClient
		if cfg.Channel.BaseURL != "" {
			client = channel.NewTelegramClientWithBase(cfg.Channel.BaseURL, cfg.Channel.BotToken, cfg.Channel.ChatID)
		} else {
			client = channel.NewTelegramClient(cfg.Channel.BotToken, cfg.Channel.ChatID)
		}
		poller := channel.NewPoller(client, cfg.Channel.Wait)
		go poller.Run(ctx)

		svc := services.NewRequestService(db, requestRepoShim{}, client, poller, cfg.Channel.ChatID)
		svc.DefaultTimeout = cfg.RequestTimeoutDefault
		svc.PollInterval = cfg.PollInterval
		svc.CollectionWindow = cfg.CollectionWindow
		svc.Logger = log.Logger
		backend = svc

		log.Info().Str("db", cfg.DBPath).Str("destination", cfg.Channel.ChatID).Msg("local backend ready")

	case config.BackendRemote:
		rb := services.NewRemoteBackend(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.UserID)
		rb.DefaultTimeout = cfg.RequestTimeoutDefault
		rb.PollInterval = cfg.PollInterval
		rb.Logger = log.Logger
		backend = rb

		log.Info().Str("url", cfg.Remote.URL).Msg("remote backend ready")

	default:
		// Unreachable: config validation rejects unknown modes.
		log.Fatal().Str("mode", cfg.BackendMode).Msg("unknown backend mode")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, backend, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.LongPollWriteDeadline(r),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
