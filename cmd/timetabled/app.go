package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/nerrad567/gray-logic-timetable/migrations"

	"github.com/nerrad567/gray-logic-timetable/internal/api"
	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-timetable/internal/infrastructure/scheduler"
	"github.com/nerrad567/gray-logic-timetable/internal/metrics"
	"github.com/nerrad567/gray-logic-timetable/internal/timetable"
)

const (
	// dispatcherDrainTimeout bounds how long shutdown waits for queued
	// state updates to reach their sinks.
	dispatcherDrainTimeout = 5 * time.Second

	// pruneInterval is how often history older than the retention is removed.
	pruneInterval = time.Hour
)

// app is a running timetabled instance. Components are torn down in the
// reverse order they were started.
type app struct {
	log      *logging.Logger
	cfg      *config.Config
	cfgPath  string
	db       *database.DB
	registry *timetable.Registry
	server   *api.Server

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// onShutdown registers fn to run during shutdown, after everything
// registered later.
func (a *app) onShutdown(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// shutdown runs the registered closers in reverse order, logging failures.
func (a *app) shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		a.log.Info("stopping " + c.name)
		if err := c.fn(); err != nil {
			a.log.Error("error stopping "+c.name, "error", err)
		}
	}
	a.closers = nil
	a.log.Info("timetabled stopped")
}

// start loads the configuration at configPath and brings up every
// component. If any step fails, whatever was already started is stopped
// before the error is returned.
func start(ctx context.Context, configPath string) (_ *app, err error) {
	// Use default logger until config is loaded
	a := &app{log: logging.Default(), cfgPath: configPath}
	a.log.Info("starting timetabled",
		"version", version,
		"commit", commit,
		"build_date", date,
	)
	defer func() {
		if err != nil {
			a.shutdown()
		}
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg
	a.log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	a.log = logging.New(cfg.Logging, version)
	a.log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if err := a.openDatabase(ctx); err != nil {
		return nil, err
	}

	sched, err := a.startScheduler()
	if err != nil {
		return nil, err
	}

	mqttClient, err := a.connectMQTT()
	if err != nil {
		return nil, err
	}
	influxClient := a.connectInfluxDB(ctx)

	recorder := metrics.NewPrometheusRecorder(nil)
	history := timetable.NewSQLiteHistoryRepository(a.db.DB)
	restore := timetable.NewSQLiteRestoreStore(a.db.DB)

	// The hub outlives the dispatcher so late broadcasts still find it.
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := api.NewHub(cfg.WebSocket, a.log)
	go hub.Run(hubCtx)
	a.onShutdown("websocket hub", func() error {
		stopHub()
		return nil
	})

	dispatcher := timetable.NewDispatcher(cfg.Notify.QueueSize, a.log,
		a.buildSinks(restore, history, hub, mqttClient, influxClient, recorder)...)
	dispatcher.SetDropRecorder(recorder)
	dispatcher.Start()
	a.onShutdown("state dispatcher", func() error {
		drainCtx, cancel := context.WithTimeout(context.Background(), dispatcherDrainTimeout)
		defer cancel()
		return dispatcher.Stop(drainCtx)
	})

	// A nil Timer selects the registry's clockwork timer.
	var timer timetable.Timer
	if cfg.Scheduler.Backend == config.SchedulerGocron {
		timer = schedulerTimer{scheduler: sched}
	}

	a.registry = timetable.NewRegistry(timetable.RegistryOptions{
		Repo:      timetable.NewSQLiteRepository(a.db.DB),
		Restore:   restore,
		History:   history,
		Timer:     timer,
		Location:  cfg.Location(),
		Publisher: dispatcher,
		Logger:    a.log.With("component", "timetable"),
	})
	a.onShutdown("timetables", func() error {
		a.registry.Close()
		return nil
	})

	if err := a.registry.LoadStorage(ctx); err != nil {
		return nil, fmt.Errorf("loading stored timetables: %w", err)
	}
	if err := a.syncDefinitions(ctx, cfg); err != nil {
		// Skipped definitions are reported but do not stop the service.
		a.log.Warn("some configured timetables were not started", "error", err)
	}
	a.log.Info("timetables started", "count", a.registry.Len())

	if mqttClient != nil {
		if err := a.subscribeCommands(mqttClient); err != nil {
			return nil, err
		}
	}

	checks := map[string]api.HealthChecker{"database": a.db}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	if err := a.startAPI(ctx, hub, history, recorder, checks); err != nil {
		return nil, err
	}

	if err := a.watchConfig(ctx, configPath); err != nil {
		// Hot reload is a convenience; POST /timetables/reload still works.
		a.log.Warn("config watcher not started", "error", err)
	}

	if err := a.schedulePrune(ctx, sched, history); err != nil {
		return nil, err
	}

	if err := healthCheck(ctx, checks); err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	a.log.Info("all health checks passed")
	a.log.Info("timetabled started successfully")

	return a, nil
}

// openDatabase opens SQLite and applies pending migrations.
func (a *app) openDatabase(ctx context.Context) error {
	db, err := database.Open(database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	a.onShutdown("database", db.Close)
	a.log.Info("database connected", "path", a.cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	a.log.Info("database migrations complete")
	return nil
}

// startScheduler creates the gocron scheduler. It always runs the
// maintenance jobs; it also arms timetable transitions when the gocron
// backend is selected.
func (a *app) startScheduler() (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(scheduler.Options{
		Location: a.cfg.Location(),
		Logger:   a.log.With("component", "scheduler"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	sched.Start()
	a.onShutdown("scheduler", sched.Stop)
	a.log.Info("scheduler started", "backend", a.cfg.Scheduler.Backend)
	return sched, nil
}

// connectMQTT connects to the broker when MQTT is enabled. It returns a nil
// client when it is not.
func (a *app) connectMQTT() (*mqtt.Client, error) {
	if !a.cfg.MQTT.Enabled {
		a.log.Info("MQTT disabled")
		return nil, nil //nolint:nilnil // nil client means MQTT is disabled
	}

	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(a.log)
	a.onShutdown("MQTT", client.Close)
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"client_id", a.cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// connectInfluxDB connects to InfluxDB when it is enabled. Telemetry is
// optional: a failed connection is logged and the service runs without it.
func (a *app) connectInfluxDB(ctx context.Context) *influxdb.Client {
	if !a.cfg.InfluxDB.Enabled {
		return nil
	}

	client, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
	if err != nil {
		a.log.Warn("InfluxDB connection failed, continuing without telemetry", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		a.log.Error("InfluxDB write error", "error", err)
	})
	a.onShutdown("InfluxDB", client.Close)
	a.log.Info("InfluxDB connected",
		"url", a.cfg.InfluxDB.URL,
		"bucket", a.cfg.InfluxDB.Bucket,
	)
	return client
}

// buildSinks lists the dispatcher's sinks in delivery order. The restore
// sink comes first so a crash after publishing never loses the snapshot.
func (a *app) buildSinks(
	restore timetable.RestoreStore,
	history timetable.HistoryRecorder,
	hub *api.Hub,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	recorder *metrics.PrometheusRecorder,
) []timetable.Sink {
	sinks := []timetable.Sink{
		timetable.NewRestoreSink(restore),
		timetable.NewHistorySink(history),
	}
	if mqttClient != nil {
		sinks = append(sinks, timetable.NewMQTTSink(mqttClient, mqtt.Topics{}.TimetableState, a.mqttQoS()))
	}
	sinks = append(sinks, timetable.NewBroadcastSink(hub))
	if influxClient != nil {
		sinks = append(sinks, timetable.NewTelemetrySink(influxClient))
	}
	return append(sinks, timetable.NewMetricsSink(recorder))
}

// subscribeCommands routes bus commands to the registry and publishes
// their acknowledgements.
func (a *app) subscribeCommands(client *mqtt.Client) error {
	handler := timetable.NewCommandHandler(a.registry, client, mqtt.Topics{}.TimetableAck, a.mqttQoS(),
		a.log.With("component", "commands"))
	adapter := &mqttCommandAdapter{handler: handler}

	topic := mqtt.Topics{}.AllTimetableCommands()
	if err := client.Subscribe(topic, a.mqttQoS(), adapter.handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	a.log.Info("listening for timetable commands", "topic", topic)
	return nil
}

// startAPI starts the HTTP server.
func (a *app) startAPI(
	ctx context.Context,
	hub *api.Hub,
	history timetable.HistoryRepository,
	recorder *metrics.PrometheusRecorder,
	checks map[string]api.HealthChecker,
) error {
	server, err := api.New(api.Deps{
		Config:   a.cfg.API,
		WS:       a.cfg.WebSocket,
		Security: a.cfg.Security,
		Logger:   a.log,
		Registry: a.registry,
		History:  history,
		Hub:      hub,
		Metrics:  recorder.Handler(),
		Reload: func(ctx context.Context) error {
			next, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			return a.syncDefinitions(ctx, next)
		},
		Checks:  checks,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	a.server = server
	a.onShutdown("API server", server.Close)
	return nil
}

// watchConfig reloads the read-only timetables when the configuration file
// changes on disk.
func (a *app) watchConfig(ctx context.Context, configPath string) error {
	w, err := config.NewWatcher(configPath, a.syncDefinitions, a.log.With("component", "config"))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop() //nolint:errcheck // already failing
		return err
	}
	a.onShutdown("config watcher", w.Stop)
	return nil
}

// schedulePrune registers the history retention job. A retention of zero
// keeps history forever.
func (a *app) schedulePrune(ctx context.Context, sched *scheduler.Scheduler, history *timetable.SQLiteHistoryRepository) error {
	retention := a.cfg.GetHistoryRetention()
	if retention <= 0 {
		return nil
	}

	_, err := sched.Every("history-prune", pruneInterval, func() {
		removed, err := history.PruneHistory(ctx, retention)
		if err != nil {
			a.log.Error("pruning state history failed", "error", err)
			return
		}
		if removed > 0 {
			a.log.Info("pruned state history", "rows", removed, "older_than", retention.String())
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling history pruning: %w", err)
	}
	return nil
}

// syncDefinitions applies the timetables section of cfg to the registry.
// Other settings only take effect after a restart.
func (a *app) syncDefinitions(ctx context.Context, cfg *config.Config) error {
	if a.cfg != nil && cfg.Site.Timezone != a.cfg.Site.Timezone {
		a.log.Warn("site.timezone changed; restart to apply",
			"current", a.cfg.Site.Timezone,
			"configured", cfg.Site.Timezone,
		)
	}
	return a.registry.SyncYAML(ctx, definitions(cfg))
}

func (a *app) mqttQoS() byte {
	return byte(a.cfg.MQTT.QoS) // #nosec G115 -- validated to 0..2
}

// definitions converts the configured read-only collection.
func definitions(cfg *config.Config) []timetable.Definition {
	configured := cfg.TimetableDefinitions()
	defs := make([]timetable.Definition, 0, len(configured))
	for _, d := range configured {
		defs = append(defs, timetable.Definition{ID: d.ID, Name: d.Name})
	}
	return defs
}

// healthCheck verifies all infrastructure connections are healthy.
// It returns every failure, not only the first.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	var errs []error
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
