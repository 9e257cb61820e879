package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	actasia "github.com/btoaldas/actas-ia"
	"github.com/btoaldas/actas-ia/internal/api"
	"github.com/btoaldas/actas-ia/internal/audio"
	"github.com/btoaldas/actas-ia/internal/audit"
	"github.com/btoaldas/actas-ia/internal/config"
	"github.com/btoaldas/actas-ia/internal/database"
	"github.com/btoaldas/actas-ia/internal/events"
	"github.com/btoaldas/actas-ia/internal/metrics"
	"github.com/btoaldas/actas-ia/internal/mqttclient"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "directory holding audio recordings")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("acta-engine starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, actasia.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	prometheus.MustRegister(metrics.NewPoolCollector(db.Pool))

	// Event bus and audit collector
	bus := events.NewBus(256)
	auditLog := log.With().Str("component", "audit").Logger()
	collector := audit.NewCollector(db.InsertFrontendEvents, audit.CollectorOptions{}, auditLog)
	defer collector.Close()

	// Audio storage
	audioLog := log.With().Str("component", "audio").Logger()
	store, err := audio.New(cfg.S3, cfg.AudioDir, audioLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio storage")
	}

	// MQTT mirror of bus events, when a broker is configured
	var mqttStatus api.MQTTStatus
	if cfg.MQTTBrokerURL != "" {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			TopicBase: cfg.MQTTTopicBase,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
		mqttStatus = mqtt

		ch, unsubscribe := bus.Subscribe(events.Filter{})
		defer unsubscribe()
		go func() {
			for ev := range ch {
				topic := "operaciones"
				if ev.TranscriptionID != 0 {
					topic = fmt.Sprintf("transcripciones/%d/mutaciones", ev.TranscriptionID)
				}
				mqtt.Publish(topic, ev)
			}
		}()
	}

	// Drop directory watcher, when configured
	watcherStatus := func() string { return "disabled" }
	if cfg.AudioDropDir != "" {
		watchLog := log.With().Str("component", "drop-watcher").Logger()
		watcher := audio.NewDropWatcher(store, cfg.AudioDropDir, func(id int64, variant, key string) {
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := db.SetAudioPath(saveCtx, id, variant, key); err != nil {
				watchLog.Error().Err(err).Int64("transcripcion_id", id).Msg("failed to record audio path")
				return
			}
			bus.Publish(events.TypeAudioReceived, id, map[string]string{
				"variante": variant,
				"ruta":     key,
			})
		}, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start drop watcher")
		}
		defer watcher.Stop()
		watcherStatus = watcher.Status
	}

	// HTTP server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.ServerDeps{
		DB:            db,
		Bus:           bus,
		Collector:     collector,
		AudioStore:    store,
		MQTT:          mqttStatus,
		WatcherStatus: watcherStatus,
		Version:       version,
		StartTime:     startTime,
	}, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("acta-engine stopped")
}
