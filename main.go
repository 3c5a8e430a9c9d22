package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gorillacontext "github.com/gorilla/context"
	"go.uber.org/zap"

	"github.com/ShovonSheikh/temp-box/logging"
	"github.com/ShovonSheikh/temp-box/mailtm"
	"github.com/ShovonSheikh/temp-box/tempbox"
)

var sweepOnly bool

func init() {
	flag.BoolVar(&sweepOnly, "sweep-only", false, "when true will run a single cleanup sweep and exit instead of serving")
	flag.Parse()
}

func main() {
	cfg := mustParseConfig()

	logger, err := logging.New(cfg.loggingConfig())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db := cfg.mustBuildDatabase(logger)
	provider := mailtm.New(mailtm.WithBaseURL(cfg.ProviderURL))

	s, err := tempbox.New(cfg.serverConfig(), db, provider, logger)
	if err != nil {
		logger.Fatal("failed to setup server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// run a one-off sweep and exit, for cron style deployments
	if sweepOnly {
		result, err := s.Cleaner().Sweep(ctx)
		if err != nil {
			logger.Fatal("sweep failed", zap.Error(err))
		}
		logger.Info("sweep finished",
			zap.Int("candidates", result.Candidates),
			zap.Int("deleted", result.Deleted),
			zap.Int("failed", result.Failed),
			zap.Int("pruned", result.Pruned),
		)
		return
	}

	go s.Cleaner().Run(ctx)

	server := &http.Server{
		Addr: cfg.ListenAddr,
		// wrap mux in ClearHandler as per gorilla docs to prevent leaking memory
		Handler: gorillacontext.ClearHandler(s.Router),
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server exited", zap.Error(err))
	}
}
