package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/alerter"
	"github.com/sentryhome/sentryhome/internal/api"
	"github.com/sentryhome/sentryhome/internal/audio"
	"github.com/sentryhome/sentryhome/internal/config"
	"github.com/sentryhome/sentryhome/internal/metrics"
	"github.com/sentryhome/sentryhome/internal/mqtt"
	"github.com/sentryhome/sentryhome/internal/notifier"
	"github.com/sentryhome/sentryhome/internal/security"
	"github.com/sentryhome/sentryhome/internal/version"
	"github.com/sentryhome/sentryhome/internal/weather"
	"github.com/sentryhome/sentryhome/internal/webui"
	"github.com/sentryhome/sentryhome/internal/websocket"
)

func main() {
	configPath := flag.String("config", "/config/sentryhome.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	flag.Parse()

	// Create log buffer for /api/logs (captures last 1000 log entries)
	logBuffer := webui.NewLogBuffer(1000)

	// Write to both stdout and the log buffer
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	logger := zerolog.New(multiWriter).With().
		Timestamp().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Logger()

	logger.Info().Msg("Starting sentryhome")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("config_path", *configPath).
			Msg("Failed to load configuration")
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		parsedLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsedLevel)

	logger.Info().
		Int("max_alerts", cfg.Queue.MaxAlerts).
		Dur("sweep_interval", cfg.Queue.SweepInterval).
		Stringer("security_level", cfg.Security.InitialLevel).
		Int("channels", len(cfg.Notifications.Channels)).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	state, err := security.NewState(cfg.Security.InitialLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid initial security level")
	}

	// Notifications: Apprise channels plus live push to display clients
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	channels := notifier.ResolveChannels(cfg.Notifications.Channels, os.Getenv, logger)
	apprise := notifier.NewApprise(cfg.Notifications.AppriseAPIURL, channels, logger)
	gate := alerter.NewGate(notifier.NewMulti(apprise, hub), cfg.Notifications.Timeout, m, logger)

	storm := alerter.NewStormDetector(logger, cfg.Storm.Threshold, cfg.Storm.Window, m)
	engine := alerter.NewEngine(state, logger,
		alerter.WithMaxAlerts(cfg.Queue.MaxAlerts),
		alerter.WithGate(gate),
		alerter.WithStormDetector(storm),
		alerter.WithMetrics(m),
	)

	monitor := security.NewMonitor(state, engine, cfg.Security.ChangeLifetime, logger)
	monitor.AddListener(hub)

	cues, err := audio.ParseCues(cfg.Audio.Cues)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid audio cue configuration")
	}
	selector := audio.NewSelector(cues, audio.NewLogPlayer(logger), logger)

	sweeper := alerter.NewSweeper(alerter.SweeperOptions{
		Engine:   engine,
		Interval: cfg.Queue.SweepInterval,
		Cues:     selector,
		Storm:    storm,
		Metrics:  m,
		Logger:   logger,
	})
	sweeper.Start(ctx)

	adapter := weather.NewAdapter(weather.Config{
		Allow:           cfg.Weather.Allow,
		Deny:            cfg.Weather.Deny,
		SeverityMap:     cfg.Weather.SeverityMap,
		DefaultLifetime: cfg.Weather.DefaultLifetime,
	}, logger)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(cfg.MQTT, logger)
		bridge := mqtt.NewBridge(cfg.MQTT.Topics, engine, monitor, adapter, logger)
		go connectMQTT(ctx, mqttClient, bridge, logger)
	} else {
		logger.Info().Msg("MQTT disabled, producers must use the HTTP API")
	}

	apiServer := api.NewServer(api.Options{
		Engine:    engine,
		Levels:    monitor,
		Storm:     storm,
		Hub:       hub,
		LogBuffer: logBuffer,
		Gatherer:  registry,
		Logger:    logger,
		Port:      cfg.API.Port,
	})
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().
				Err(err).
				Msg("API server error")
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Int("port", cfg.API.Port).Msg("sentryhome running, press Ctrl+C to stop")

	<-sigChan
	logger.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	sweeper.Stop()
	gate.Wait()
	cancel()

	logger.Info().Msg("sentryhome stopped")
}

// connectMQTT connects with exponential backoff, then subscribes the
// bridge. paho handles reconnects after the first successful connect.
func connectMQTT(ctx context.Context, client *mqtt.Client, bridge *mqtt.Bridge, logger zerolog.Logger) {
	reconnectDelay := 5 * time.Second
	const maxReconnectDelay = 120 * time.Second

	for {
		err := client.Connect()
		if err == nil {
			break
		}
		logger.Error().
			Err(err).
			Dur("retry_in", reconnectDelay).
			Msg("Failed to connect to MQTT broker, will retry")

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
		reconnectDelay = reconnectDelay * 2
		if reconnectDelay > maxReconnectDelay {
			reconnectDelay = maxReconnectDelay
		}
	}

	if err := bridge.Subscribe(client); err != nil {
		logger.Error().Err(err).Msg("Failed to subscribe producer topics")
	}
}
