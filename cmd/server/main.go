// Command server runs the recycling-rewards HTTP API: receipt submissions,
// verification, and points-to-B3TR reward claims.
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
	"gorm.io/plugin/opentelemetry/tracing"

	_ "github.com/rebottle/go-recycle-backend/docs"
	"github.com/rebottle/go-recycle-backend/internal/chain"
	"github.com/rebottle/go-recycle-backend/internal/config"
	"github.com/rebottle/go-recycle-backend/internal/extraction"
	httpapi "github.com/rebottle/go-recycle-backend/internal/http"
	"github.com/rebottle/go-recycle-backend/internal/observability"
	"github.com/rebottle/go-recycle-backend/internal/repo"
	"github.com/rebottle/go-recycle-backend/internal/services"
	"github.com/rebottle/go-recycle-backend/internal/storage"
	"github.com/rebottle/go-recycle-backend/internal/sysutil"
)

var version = "dev"

// @title        Recycle Rewards API
// @version      1.0
// @description  Receipt submission, verification and B3TR reward claims.
// @BasePath     /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in   header
// @name Authorization
func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin")
		}
	}
	if err := repo.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store, err := storage.New(ctx, storage.Config{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKeyID:    cfg.S3.AccessKeyID,
		SecretKey:      cfg.S3.SecretAccessKey,
		ForcePathStyle: cfg.S3.UsePathStyle,
		UploadTTL:      cfg.S3.PresignTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("object storage setup")
	}

	var ex services.Extractor
	if cfg.Extraction.Mock {
		log.Warn().Msg("extraction runs in mock mode; receipts are fabricated")
		ex = extraction.Mock{}
	} else {
		ex = extraction.NewClient(extraction.Config{
			URL:     cfg.Extraction.URL,
			APIKey:  cfg.Extraction.APIKey,
			Timeout: cfg.Extraction.Timeout,
		})
	}

	var cc services.ChainClient
	if cfg.Chain.Mock {
		log.Warn().Msg("chain runs in mock mode; distributions never reach a node")
		cc = chain.Mock{}
	} else {
		hc, err := chain.NewHTTP(chain.Config{
			NodeURL:         cfg.Chain.NodeURL,
			SponsorURL:      cfg.Chain.SponsorURL,
			OriginKeyHex:    cfg.Chain.OriginKeyHex,
			ContractAddress: cfg.Chain.ContractAddress,
			AppID:           cfg.Chain.AppID,
			Timeout:         cfg.Chain.Timeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("chain client setup")
		}
		log.Info().Str("origin", hc.Origin()).Msg("chain client ready")
		cc = hc
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, store, ex, cc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}
