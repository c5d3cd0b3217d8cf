package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/beobridge/halo-bridge-go/internal/adapters/homeassistant"
	"github.com/beobridge/halo-bridge-go/internal/adapters/mqtt"
	"github.com/beobridge/halo-bridge-go/internal/api"
	"github.com/beobridge/halo-bridge-go/internal/api/handlers"
	"github.com/beobridge/halo-bridge-go/internal/config"
	"github.com/beobridge/halo-bridge-go/internal/core/halosync"
	"github.com/beobridge/halo-bridge-go/internal/core/metrics"
	"github.com/beobridge/halo-bridge-go/internal/database"
	"github.com/beobridge/halo-bridge-go/internal/halo"
	"github.com/beobridge/halo-bridge-go/pkg/logger"
	"github.com/beobridge/halo-bridge-go/pkg/version"
)

// telemetryFan forwards device telemetry to every configured sink.
type telemetryFan struct {
	mqtt      *mqtt.Publisher
	collector *metrics.Collector
}

func (f *telemetryFan) PowerChanged(capacity int, state halo.PowerEventState) {
	f.collector.BatteryCapacity(capacity)
	if f.mqtt != nil {
		f.mqtt.PowerChanged(capacity, state)
	}
}

func (f *telemetryFan) SystemChanged(state halo.SystemEventState) {
	if f.mqtt != nil {
		f.mqtt.SystemChanged(state)
	}
}

func (f *telemetryFan) ConnectionChanged(connected bool) {
	if f.mqtt != nil {
		f.mqtt.ConnectionChanged(connected)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Infof("Starting halo-bridge %s", version.GetFullVersion())

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsPath, log); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	bindingRepo := database.NewBindingRepository(db)
	snapshotRepo := database.NewSnapshotRepository(db)

	collector := metrics.NewCollector()
	client := halo.NewClient(cfg.Halo.Host, log, collector)

	restoreConfiguration(client, snapshotRepo, log)

	haClient := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, log)
	listener := homeassistant.NewEventListener(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, log)

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = mqtt.NewPublisher(cfg.MQTT, log)
		if err != nil {
			log.WithError(err).Warn("MQTT telemetry disabled")
		}
	}

	syncer := halosync.NewSynchronizer(client, haClient, haClient, log,
		halosync.WithDebounce(cfg.Halo.WheelDebounce),
		halosync.WithTelemetrySink(&telemetryFan{mqtt: publisher, collector: collector}),
		halosync.WithGestureMetrics(collector),
	)
	syncer.Attach()

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	bindings, err := bindingRepo.List(startCtx)
	startCancel()
	if err != nil {
		log.Fatal("Failed to load bindings: ", err)
	}
	syncer.ReplaceBindings(bindings)
	log.Infof("Loaded %d button bindings", len(bindings))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go listener.Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-listener.Events():
				syncer.OnEntityStateChanged(st)
			}
		}
	}()

	client.Connect(cfg.Halo.Reconnect, cfg.Halo.SendInitial)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Halo.SnapshotInterval, func() {
		persistSnapshot(client, snapshotRepo, log)
	}); err != nil {
		log.WithError(err).Warn("Invalid snapshot interval, periodic snapshots disabled")
	}
	if _, err := scheduler.AddFunc(cfg.Halo.ProbeInterval, func() {
		if client.Connected() {
			return
		}
		probeCtx, probeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer probeCancel()
		if err := client.CheckDeviceConnection(probeCtx); err != nil {
			log.WithError(err).Debug("Halo still unreachable")
		}
	}); err != nil {
		log.WithError(err).Warn("Invalid probe interval, connectivity probe disabled")
	}
	scheduler.Start()

	h := handlers.New(log, client, syncer, bindingRepo, snapshotRepo, haClient)
	router := api.NewRouter(cfg, h, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	scheduler.Stop()
	cancel()
	client.Disconnect()
	persistSnapshot(client, snapshotRepo, log)
	if publisher != nil {
		publisher.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Info("Server exited")
}

// restoreConfiguration seeds the client with the last persisted
// configuration so the device comes back with the same button tree
// after a restart.
func restoreConfiguration(client *halo.Client, snapshots *database.SnapshotRepository, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := snapshots.Load(ctx)
	if err != nil {
		if err != database.ErrNotFound {
			log.WithError(err).Warn("Unable to load configuration snapshot")
		}
		return
	}

	cfg, err := halo.UnmarshalConfigurationFrame(payload)
	if err != nil {
		log.WithError(err).Warn("Stored configuration snapshot is corrupt, starting empty")
		return
	}
	client.SetConfiguration(cfg, false)
	log.Info("Restored configuration snapshot")
}

// persistSnapshot writes the current configuration tree to the
// database.
func persistSnapshot(client *halo.Client, snapshots *database.SnapshotRepository, log *logrus.Logger) {
	frame, err := client.Snapshot().MarshalFrame()
	if err != nil {
		log.WithError(err).Warn("Unable to serialize configuration snapshot")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := snapshots.Save(ctx, frame); err != nil {
		log.WithError(err).Warn("Unable to persist configuration snapshot")
	}
}
