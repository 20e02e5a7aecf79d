package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/cache"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/config"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/dispatch"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/journey"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/metrics"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/platform"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/server"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/sos"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/store"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/threat"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/trigger"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	// .env is optional; environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var history store.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		cancel()

		pg := store.NewPostgres(db)
		if err := pg.Migrate(context.Background()); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		history = pg
	} else {
		slog.Warn("DATABASE_URL not set, history is in-memory only")
		history = store.NewMemory()
	}

	registry := prometheus.NewRegistry()
	met := metrics.New(registry)

	bus := trigger.NewBus(32)
	device := platform.NewDevice()
	contacts := platform.NewFileContacts(cfg.ContactsFile)

	var smsSender dispatch.SMSSender
	var emailSender dispatch.EmailSender
	var caller dispatch.Caller
	if cfg.GatewayWebhookURL != "" {
		gateway := platform.NewWebhookGateway(cfg.GatewayWebhookURL)
		smsSender, emailSender, caller = gateway, gateway, gateway
	} else {
		slog.Warn("GATEWAY_WEBHOOK_URL not set, channel sends go to the log")
		gateway := platform.LogGateway{}
		smsSender, emailSender, caller = gateway, gateway, gateway
	}

	engine := threat.New(bus)
	threatCache := cache.New()
	engine.OnAssess(func(a model.ThreatAssessment) {
		if data, err := json.Marshal(a); err == nil {
			threatCache.Set(data)
		}
	})

	machine := sos.New(sos.Config{
		CountdownSeconds: cfg.CountdownSeconds,
		DrainTimeout:     cfg.DrainTimeout,
	}, bus, contacts, device, platform.LogAlarm{}, history, met)

	dispatcher := dispatch.New(dispatch.Config{
		Template:               cfg.SMSTemplate,
		PersonalInfo:           cfg.PersonalInfo,
		MaxSendAttempts:        cfg.MaxSendAttempts,
		RetryBackoff:           cfg.RetryBackoff,
		AutoCall:               cfg.AutoCall,
		AutoCallDelay:          cfg.AutoCallDelay,
		EmergencyNumber:        cfg.EmergencyNumber,
		LocationUpdates:        cfg.LocationUpdates,
		LocationUpdateInterval: cfg.LocationUpdateInterval,
		MaxLocationUpdates:     cfg.MaxLocationUpdates,
	}, smsSender, emailSender, caller, device, machine)
	machine.SetDispatcher(dispatcher)

	monitor := journey.New(journey.Config{
		CheckInInterval: cfg.CheckInInterval,
		CheckInTimeout:  cfg.CheckInTimeout,
	}, bus, dispatch.NewCompanionNotifier(smsSender, contacts), history, met)

	adapters := &trigger.Adapters{
		Button:   trigger.NewButtonSequenceMatcher(bus, cfg.ButtonSequence, cfg.ButtonWindow, cfg.ButtonIdleReset),
		Shake:    trigger.NewShakeDetector(bus, cfg.ShakeThreshold, cfg.ShakeSampleCount, cfg.ShakeWindow),
		Phrase:   trigger.NewPhraseMatcher(bus, func() { machine.Cancel() }),
		Wearable: trigger.NewWearableSignalReceiver(bus),
		Manual:   trigger.NewManualTrigger(bus),
	}
	adapters.ApplyToggles(cfg.EnabledTriggers)

	runCtx, stopMachine := context.WithCancel(context.Background())
	go machine.Run(runCtx)

	srv := server.New(cfg, machine, engine, monitor, adapters, device, history, threatCache,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down")

	stopMachine()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
