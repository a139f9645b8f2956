package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/internal/scheduler"
	"TasaPull/pkg/config"
	xhttp "TasaPull/pkg/http"
	pkgkafka "TasaPull/pkg/kafka"
	applogger "TasaPull/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	scheduler  *scheduler.Service
	consumer   *pkgkafka.Consumer
	events     domrepo.EventPublisher
}

// New creates a new App instance with all dependencies. consumer may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	sched *scheduler.Service,
	consumer *pkgkafka.Consumer,
	events domrepo.EventPublisher,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		scheduler:  sched,
		consumer:   consumer,
		events:     events,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	return a.run(sigCh)
}

func (a *App) run(sigCh <-chan os.Signal) error {
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.IngestTopic))
	}

	if a.cfg.Scheduler.Enabled {
		a.scheduler.Start()
	} else {
		a.log.Info("scheduler disabled, jobs run only on demand")
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		a.stopWorkers()
		return err
	}

	sig := <-sigCh
	a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))
	return a.shutdown()
}

// shutdown stops intake first, then waits for running cycles, then closes the publisher.
func (a *App) shutdown() error {
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Stop(httpCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	a.stopWorkers()
	a.log.Info("shutdown complete")
	return nil
}

// stopWorkers stops the consumer and the scheduler, then closes the publisher.
func (a *App) stopWorkers() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+a.cfg.Engine.CycleTimeout)
	defer cancel()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.scheduler.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop error", applogger.Error(err))
	}

	// the collector flushes its last batch through the publisher
	a.log.RemoveCollector()
	if err := a.events.Close(); err != nil {
		a.log.Warn("event publisher close error", applogger.Error(err))
	}
}
