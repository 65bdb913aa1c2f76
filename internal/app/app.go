// Package app hosts the barograph core as a long-running process: every
// suspend becomes a timer wait that a button wake or a signal can cut
// short.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/log"
	"github.com/chrissnell/barograph/internal/snapshot"
	"github.com/chrissnell/barograph/internal/types"
	"github.com/chrissnell/barograph/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	fs             afero.Fs
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		fs:             afero.NewOsFs(),
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	dev, err := Open(cfg, a.fs, prometheus.NewRegistry(), a.logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	st, rep, err := dev.Restore(time.Now())
	if err != nil {
		return err
	}

	if cfg.HTTP.ListenAddr != "" {
		server := &http.Server{
			Addr:              cfg.HTTP.ListenAddr,
			Handler:           snapshot.NewRouter(dev.Publisher, dev.Queue, dev.Latch, dev.Metrics, a.logger.Named("http")),
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("snapshot server error: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			log.Info("shutting down the snapshot server...")
			server.Shutdown(context.Background())
		}()
		log.Infof("snapshot server listening on %s", cfg.HTTP.ListenAddr)
	}

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	log.Infof("barograph %s started", cfg.Device.Name)

	cause := types.CauseTimer
	if rep.ColdStart {
		cause = types.CauseUndefined
	}

	for {
		out, err := dev.Runner.Run(ctx, st, cause)
		if err != nil {
			break
		}

		timer := time.NewTimer(out.Decision.Duration())
		select {
		case <-timer.C:
			cause = types.CauseTimer
			continue
		case <-dev.Latch.Wake():
			cause = types.CauseExt0
			timer.Stop()
			continue
		case <-sigs:
			log.Info("shutdown signal received, initiating graceful shutdown...")
		case <-ctx.Done():
			log.Info("context cancelled, shutting down...")
		}
		timer.Stop()
		break
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
