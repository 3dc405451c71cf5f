package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/roomsync-core/internal/api"
	"github.com/nerrad567/roomsync-core/internal/engine"
	"github.com/nerrad567/roomsync-core/internal/engine/mqtttransport"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/logging"
	"github.com/nerrad567/roomsync-core/internal/supervisor"
)

// runServe runs the sync engine until ctx is cancelled or the broker
// session cannot be restored.
//
// Startup order: engine loop, InfluxDB export, API server, then the
// supervised broker session. Shutdown runs in reverse.
func runServe(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	eng := engine.New(
		mqtttransport.Factory(cfg.MQTT, log.Component("mqtt")),
		engineOptions(cfg),
	)
	eng.SetLogger(log.Component("engine"))

	eng.OnConnectionChange(func(change engine.StateChange) {
		if change.Err != nil {
			log.Warn("MQTT connection changed", "state", change.State.String(), "generation", change.Generation, "error", change.Err)
			return
		}
		log.Info("MQTT connection changed", "state", change.State.String(), "generation", change.Generation)
	})

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			stats := influxClient.Stats()
			log.Info("closing InfluxDB connection", "written", stats.Written, "failed", stats.Failed)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		eng.OnApplied(exportApplied(influxClient, eng))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	sup := supervisor.New(sessionConfig(cfg.MQTT.Reconnect, log), func(sctx context.Context) error {
		return eng.Serve(sctx, mqtttransport.Endpoint(cfg.MQTT))
	})
	sup.SetLogger(log.Component("supervisor"))

	// Start API server (optional)
	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Engine:  eng,
			Session: sup,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	defer stopLoop()

	g.Go(func() error {
		return eng.Run(loopCtx)
	})
	g.Go(func() error {
		// The session is torn down before the loop stops, so its final
		// Disconnected event is still applied.
		defer stopLoop()
		if err := sup.Run(gctx); err != nil {
			return fmt.Errorf("mqtt session: %w", err)
		}
		return nil
	})

	log.Info("initialisation complete",
		"broker", mqtttransport.Endpoint(cfg.MQTT).URL,
		"client_id", cfg.MQTT.Broker.ClientID,
		"root", cfg.Sync.RootPrefix,
		"room", cfg.Sync.DefaultRoom,
	)

	err := g.Wait()
	log.Info("Room Sync Core stopped")
	return err
}

// engineOptions maps the sync configuration onto engine options.
func engineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		Root:           cfg.Sync.RootPrefix,
		SensorKinds:    cfg.Sync.SensorKinds,
		SeriesCapacity: cfg.Sync.SeriesCapacity,
		LogCapacity:    cfg.Sync.LogCapacity,
		EventBuffer:    cfg.Sync.EventBuffer,
		QoS:            byte(cfg.MQTT.QoS),
		DefaultContext: cfg.Sync.DefaultRoom,
	}
}

// sessionConfig maps the reconnect policy onto a supervisor configuration.
// An initial delay of 0 disables reconnection.
func sessionConfig(rc config.MQTTReconnectConfig, log *logging.Logger) supervisor.Config {
	sc := supervisor.DefaultConfig("mqtt")
	sc.RestartOnFailure = rc.InitialDelay > 0
	sc.MaxRestartAttempts = rc.MaxAttempts
	if rc.InitialDelay > 0 {
		sc.RestartDelay = time.Duration(rc.InitialDelay) * time.Second
	}
	if rc.MaxDelay > 0 {
		sc.MaxRestartDelay = time.Duration(rc.MaxDelay) * time.Second
	}
	sc.OnRestart = func(attempt int, delay time.Duration) {
		log.Info("reconnecting to MQTT", "attempt", attempt, "delay", delay.String())
	}
	sc.OnStop = func(err error) {
		if err != nil {
			log.Warn("MQTT session lost", "error", err)
		}
	}
	return sc
}
