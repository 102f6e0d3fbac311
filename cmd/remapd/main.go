// remapd - input remapping daemon
//
// remapd reads keyboards, mice and game controllers through device
// providers (in-process virtual devices, raw HID, devices bridged over
// MQTT), routes their controls through the behaviors of the active profile
// and writes the results to output devices. Profiles are edited over the
// HTTP API and stored in SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/remapd/internal/api"
	"github.com/nerrad567/remapd/internal/infrastructure/config"
	"github.com/nerrad567/remapd/internal/infrastructure/database"
	"github.com/nerrad567/remapd/internal/infrastructure/influxdb"
	"github.com/nerrad567/remapd/internal/infrastructure/logging"
	"github.com/nerrad567/remapd/internal/infrastructure/mqtt"
	"github.com/nerrad567/remapd/internal/infrastructure/watcher"
	"github.com/nerrad567/remapd/internal/plugin"
	"github.com/nerrad567/remapd/internal/plugin/builtin"
	"github.com/nerrad567/remapd/internal/profile"
	"github.com/nerrad567/remapd/internal/provider"
	"github.com/nerrad567/remapd/internal/provider/hidprovider"
	"github.com/nerrad567/remapd/internal/provider/mqttprovider"
	"github.com/nerrad567/remapd/internal/telemetry"
	"github.com/nerrad567/remapd/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting remapd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// .env values feed the REMAPD_* overrides below.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	// Telemetry
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}
	recorders := []profile.Recorder{metrics}

	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			st := influxClient.Stats()
			log.Info("closing InfluxDB connection", "written", st.Written, "dropped", st.Dropped)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, telemetry.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
			"record_inputs", cfg.InfluxDB.RecordInputs,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Behaviors
	catalog := plugin.NewCatalog()
	if err := builtin.Register(catalog); err != nil {
		return fmt.Errorf("registering behaviors: %w", err)
	}

	// Device providers
	devices := provider.NewMulti()
	devices.SetLogger(log)

	if cfg.Devices.Memory.Enabled {
		devices.Add(provider.NewMemoryFromConfig(cfg.Devices.Memory))
		log.Info("virtual devices enabled",
			"keyboards", cfg.Devices.Memory.Keyboards,
			"joysticks", cfg.Devices.Memory.Joysticks,
		)
	}

	if cfg.Devices.HID.Enabled {
		hid := hidprovider.New(cfg.Devices.HID, log)
		if err := hid.Open(); err != nil {
			return fmt.Errorf("opening HID: %w", err)
		}
		defer func() {
			if closeErr := hid.Close(); closeErr != nil {
				log.Error("error closing HID", "error", closeErr)
			}
		}()
		devices.Add(hid)
		log.Info("HID devices enabled")
	}

	var (
		mqttClient *mqtt.Client
		bridged    *mqttprovider.Provider
	)
	if cfg.Devices.MQTT.Enabled {
		topics := mqtt.Topics{Prefix: cfg.Devices.MQTT.TopicPrefix}
		mqttClient, err = mqtt.Connect(cfg.MQTT, topics)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		bridged = mqttprovider.New(mqttClient, topics,
			mqttprovider.WithQoS(byte(cfg.MQTT.QoS)),
			mqttprovider.WithLogger(log),
		)
		devices.Add(bridged)
		log.Info("MQTT device bridge enabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"prefix", topics.Prefix,
		)
	}

	// Profile context. editMu is shared by every editor of the context:
	// the API, the import file watcher and MQTT bridge rescans.
	var editMu sync.Mutex
	hub := api.NewHub(cfg.WebSocket, log)
	pctx := profile.NewContext(devices, catalog,
		profile.WithLogger(log),
		profile.WithRecorder(telemetry.NewFanout(recorders...)),
		profile.WithNotifier(hub.Notify),
	)
	defer pctx.Close()

	if err := pctx.Init(); err != nil {
		return fmt.Errorf("building device inventory: %w", err)
	}

	repo := profile.NewSQLiteRepository(db)
	if err := restoreConfiguration(ctx, pctx, repo, cfg.Profiles, log); err != nil {
		return err
	}

	if bridged != nil {
		bridged.OnChange(func() {
			editMu.Lock()
			defer editMu.Unlock()
			if err := pctx.Init(); err != nil {
				log.Error("rescan after MQTT discovery failed", "error", err)
			}
		})
		if err := bridged.Start(); err != nil {
			return fmt.Errorf("starting MQTT device bridge: %w", err)
		}
		defer func() {
			if stopErr := bridged.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT device bridge", "error", stopErr)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log,
			Context:    pctx,
			Repository: repo,
			Metrics:    metrics.Handler(),
			DB:         db,
			MQTT:       mqttClient,
			Hub:        hub,
			EditLock:   &editMu,
			Version:    version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	if cfg.Profiles.Watch {
		w, err := watcher.New(cfg.Profiles.ImportFile,
			reloadHandler(pctx, &editMu, log),
			watcher.WithDebounce(cfg.GetWatchDebounce()),
			watcher.WithLogger(log),
		)
		if err != nil {
			return fmt.Errorf("watching %s: %w", cfg.Profiles.ImportFile, err)
		}
		log.Info("watching profile file", "path", w.Path())
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	log.Info("shutdown signal received, cleaning up")

	if cfg.Profiles.SaveOnExit && pctx.IsChanged() {
		// The run context is already cancelled.
		if err := repo.Save(context.WithoutCancel(ctx), pctx.Snapshot()); err != nil {
			log.Error("saving configuration on exit failed", "error", err)
		} else {
			log.Info("configuration saved on exit")
		}
	}

	log.Info("remapd stopped")
	return runErr
}

// getConfigPath returns the configuration file path.
// Uses REMAPD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("REMAPD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the configuration file. A missing default file falls
// back to built-in defaults; a missing explicit REMAPD_CONFIG is an error.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	switch {
	case err == nil:
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	case errors.Is(err, fs.ErrNotExist) && os.Getenv("REMAPD_CONFIG") == "":
		log.Warn("no configuration file, using defaults", "path", path)
		cfg = config.Default()
		if vErr := cfg.Validate(); vErr != nil {
			return nil, fmt.Errorf("validating config: %w", vErr)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("loading config: %w", err)
	}
}

// restoreConfiguration loads the saved snapshot, falling back to the
// import file when the database is empty, and activates the saved profile.
// With nothing saved anywhere, Global is activated on its own.
func restoreConfiguration(ctx context.Context, pctx *profile.Context, repo profile.Repository, cfg config.ProfilesConfig, log *logging.Logger) error {
	snap, err := repo.Load(ctx)
	source := "database"
	if errors.Is(err, profile.ErrNoSnapshot) && cfg.ImportFile != "" {
		snap, err = profile.NewYAMLFileRepository(cfg.ImportFile).Load(ctx)
		source = cfg.ImportFile
	}

	var report profile.ActivationReport
	switch {
	case errors.Is(err, profile.ErrNoSnapshot):
		log.Info("no saved configuration, starting empty")
		report, err = pctx.ActivateProfile(pctx.EnsureGlobal())
	case err != nil:
		return fmt.Errorf("loading configuration from %s: %w", source, err)
	default:
		report, err = pctx.Load(snap)
	}
	if err != nil {
		return fmt.Errorf("activating restored configuration: %w", err)
	}

	logActivation(log, report)
	return nil
}

// reloadHandler re-imports the watched profile file. Unsaved edits made
// through the API are replaced.
func reloadHandler(pctx *profile.Context, editMu sync.Locker, log *logging.Logger) watcher.Handler {
	return func(ctx context.Context, path string) error {
		snap, err := profile.NewYAMLFileRepository(path).Load(ctx)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		editMu.Lock()
		defer editMu.Unlock()

		if pctx.IsChanged() {
			log.Warn("reloading profile file over unsaved edits", "path", path)
		}
		report, err := pctx.Load(snap)
		if err != nil {
			return err
		}
		log.Info("profile file reloaded", "path", path)
		logActivation(log, report)
		return nil
	}
}

func logActivation(log *logging.Logger, report profile.ActivationReport) {
	if report.OK() {
		log.Info("profile activated", "profile", report.Profile, "duration", report.Duration)
		return
	}
	for _, f := range report.Outcome.Failures {
		log.Warn("binding failed to subscribe",
			"profile", report.Profile,
			"plugin", f.Plugin,
			"slot", f.Slot,
			"reason", f.Reason,
		)
	}
}
