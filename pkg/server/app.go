package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ForecastMix/internal/usecase"
	pkgch "ForecastMix/pkg/clickhouse"
	"ForecastMix/pkg/config"
	xhttp "ForecastMix/pkg/http"
	pkgkafka "ForecastMix/pkg/kafka"
	applogger "ForecastMix/pkg/logger"
	"ForecastMix/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg          *config.Config
	l            *applogger.Logger
	collector    *usecase.ForecastCollector
	consumer     *pkgkafka.Consumer
	kh           pkgkafka.MessageHandler
	chClient     *pkgch.Client
	mixtures     *usecase.MixtureService
	queue        *queue.RedisQueue
	httpServer   *xhttp.Server
	httpHandler  xhttp.Handler
	ForecastProc *usecase.ForecastProcessor
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.ForecastCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	mixtures *usecase.MixtureService,
	q *queue.RedisQueue,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
		mixtures:  mixtures,
		queue:     q,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.l

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start oracle job queue
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			l.Error("oracle queue start error", applogger.Error(err))
		} else {
			a.queue.StartRetryProcessor()
			l.Info("oracle queue started")
		}
	}

	// Start feed collector if configured
	if a.cfg.Feed.Enabled && a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("collector error", applogger.Error(err))
			}
		}()
		l.Info("collector started", applogger.Strings("mixtures", a.cfg.Feed.Mixtures))
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.l
	l.Info("shutting down...")

	// Stop collector (pipeline + stream)
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop consumer before checkpointing so no step lands mid-snapshot
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Stop oracle queue
	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			l.Warn("oracle queue stop error", applogger.Error(err))
		}
	}

	// Persist every live mixture so a restart resumes where we stopped
	if a.mixtures != nil {
		a.mixtures.Checkpoint(shutdownCtx)
		l.Info("mixtures checkpointed")
	}

	// Close infrastructure clients
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	// Close forecast processor resources (publisher)
	if a.ForecastProc != nil {
		a.ForecastProc.Close()
	}

	// Flush any aggregated error logs still buffered
	l.RemoveCollector()

	l.Info("shutdown complete")
	return nil
}
