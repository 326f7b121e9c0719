// Maestro Engine — исполняет workflow runs.
//
// Engine:
//   - Исполняет дерево шагов с guard-ами, retry и компенсациями
//   - Сохраняет состояние runs после каждого перехода
//   - Запускает runs по cron, событиям из RabbitMQ и вручную
//   - Экспортирует метрики и события переходов
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Maestro/internal/action"
	"github.com/shaiso/Maestro/internal/engine"
	"github.com/shaiso/Maestro/internal/mq"
	"github.com/shaiso/Maestro/internal/scheduler"
	"github.com/shaiso/Maestro/internal/store"
	"github.com/shaiso/Maestro/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting maestro-engine")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Stores: Postgres, при недоступности — in-memory fallback
	var (
		runs        store.RunStore
		definitions store.DefinitionStore
		schedules   store.ScheduleStore
	)
	pool, err := store.NewPool(ctx)
	if err != nil {
		logger.Warn("database not available, using in-memory stores", "error", err)
		runs = store.NewMemoryRunStore()
		definitions = store.NewMemoryDefinitionStore()
		schedules = store.NewMemoryScheduleStore()
	} else {
		defer pool.Close()
		logger.Info("database connected")
		runs = store.NewPostgresRunStore(pool)
		definitions = store.NewPostgresDefinitionStore(pool)
		schedules = store.NewPostgresScheduleStore(pool)
	}

	// RabbitMQ (опционально: без него работают cron и ручной запуск)
	var mqConn *mq.Connection
	mqConn, err = mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, event triggers disabled", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
	}

	// Actions
	registry := action.NewRegistry()
	action.RegisterBuiltins(registry, logger)

	// Observability: лог, метрики и (если есть MQ) лента событий
	metrics := telemetry.NewMetrics(nil)
	sinks := telemetry.MultiSink{
		telemetry.NewSlogSink(logger),
		telemetry.NewMetricsSink(metrics),
	}
	if mqConn != nil {
		publisher := mq.NewPublisher(mqConn, logger)
		sinks = append(sinks, mq.NewEventSink(publisher, logger))
	}

	// Engine
	eng := engine.New(engine.Config{
		Runs:        runs,
		Definitions: definitions,
		Registry:    registry,
		Sink:        sinks,
		Logger:      logger,
	})

	// Scheduler
	sched := scheduler.New(scheduler.Config{
		Engine:    eng,
		Schedules: schedules,
		Runs:      runs,
		Conn:      mqConn,
		Logger:    logger,
	})

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8080"
	if v := os.Getenv("ENGINE_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем scheduler и ждём воркеров
	sched.Stop()
	logger.Info("maestro-engine stopped",
		"active_runs", eng.ActiveRunsCount(),
	)
}
