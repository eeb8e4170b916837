package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"

	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/internal/usecase"
	pkgch "github.com/duke524-dev/synth-subnet/pkg/clickhouse"
	"github.com/duke524-dev/synth-subnet/pkg/config"
	xhttp "github.com/duke524-dev/synth-subnet/pkg/http"
	pkgkafka "github.com/duke524-dev/synth-subnet/pkg/kafka"
	applogger "github.com/duke524-dev/synth-subnet/pkg/logger"
)

// App encapsulates the entire application lifecycle: state restore, the tick
// pipeline, background scoring and diagnostics loops, and the HTTP API.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	collector *usecase.TickCollector
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler
	chClient  *pkgch.Client
	events    domrepo.EventPublisher
	persister *usecase.StatePersister
	scorer    *usecase.Scorer
	scheduler *usecase.TuningScheduler

	httpServer   *xhttp.Server
	httpHandlers []xhttp.Handler
}

// New creates a new App instance with all dependencies. Optional components
// (collector, consumer, ClickHouse, events, scorer) may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	events domrepo.EventPublisher,
	persister *usecase.StatePersister,
	scorer *usecase.Scorer,
	scheduler *usecase.TuningScheduler,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
		events:    events,
		persister: persister,
		scorer:    scorer,
		scheduler: scheduler,
	}
}

// AddHTTPHandler registers an HTTP handler group with the server.
func (a *App) AddHTTPHandler(h xhttp.Handler) {
	a.httpHandlers = append(a.httpHandlers, h)
}

type routeSet struct {
	handlers []xhttp.Handler
}

func (r routeSet) RegisterRoutes(e *echo.Echo) {
	for _, h := range r.handlers {
		h.RegisterRoutes(e)
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.persister != nil {
		loaded := a.persister.Restore()
		a.log.Info("startup state restore complete", applogger.Int("assets", loaded))
		a.persister.Start(ctx)
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			a.log.Error("tick collector start failed", applogger.Error(err))
			return err
		}
		a.log.Info("tick collector started", applogger.Strings("assets", a.cfg.Pricefeed.Assets))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.scorer != nil {
		a.scorer.Start(ctx, a.cfg.Scoring.Interval, a.cfg.Scoring.Lookback)
		a.log.Info("scoring loop started", applogger.Duration("interval", a.cfg.Scoring.Interval))
	}
	if a.scheduler != nil {
		a.scheduler.Start(ctx, a.cfg.Scoring.Diagnostics, a.cfg.Scoring.ReportWindow)
	}

	a.httpServer = xhttp.NewServer(routeSet{handlers: a.httpHandlers},
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Warn("http server shutdown error", applogger.Error(err))
		}
	}
	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.log.Warn("tick collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Warn("event publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
