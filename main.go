package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Eriyc/music-visualizer/audio"
	"github.com/Eriyc/music-visualizer/bridge"
	"github.com/Eriyc/music-visualizer/config"
	"github.com/Eriyc/music-visualizer/discovery"
	"github.com/Eriyc/music-visualizer/engine"
	"github.com/Eriyc/music-visualizer/events"
	"github.com/Eriyc/music-visualizer/health"
	"github.com/Eriyc/music-visualizer/localplay"
	"github.com/Eriyc/music-visualizer/remote"
	"github.com/Eriyc/music-visualizer/sound"
	"github.com/Eriyc/music-visualizer/webapi"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	envFiles := pflag.StringSlice("env", nil, "dotenv files to load (default .env)")
	name := pflag.String("name", "", "speaker name, overrides the settings file")
	settingsPath := pflag.String("settings", "", "settings file path")
	device := pflag.String("device", "", "output device name (default device when empty)")
	format := pflag.String("format", "", "sample format: S16 or F32")
	listen := pflag.String("listen", "", "websocket bridge address")
	healthAddr := pflag.String("health", "", "gRPC health address (disabled when empty)")
	engineName := pflag.String("engine", "", "remote engine: "+strings.Join(remote.Engines(), ", "))
	mediaDir := pflag.String("media", "", "media directory of the local engine")
	retryDelay := pflag.Duration("retry-delay", 0, "delay before reconnecting a dropped session")
	strict := pflag.Bool("strict-events", false, "validate player events before sending them")
	autostart := pflag.Bool("autostart", false, "start listening without waiting for start_listen")
	listDevices := pflag.Bool("list-devices", false, "print output devices and exit")
	logLevel := pflag.String("log-level", "", "debug, info, warn or error")
	logFormat := pflag.String("log-format", "", "console or json")
	pflag.Parse()

	cfg, err := config.LoadConfig(*envFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 2
	}
	override := func(flagName string, dst *string, v string) {
		if pflag.CommandLine.Changed(flagName) {
			*dst = v
		}
	}
	override("name", &cfg.Name, *name)
	override("settings", &cfg.SettingsPath, *settingsPath)
	override("device", &cfg.AudioDevice, *device)
	override("format", &cfg.AudioFormat, *format)
	override("listen", &cfg.ListenAddr, *listen)
	override("health", &cfg.HealthAddr, *healthAddr)
	override("engine", &cfg.Engine, *engineName)
	override("media", &cfg.MediaDir, *mediaDir)
	override("log-level", &cfg.LogLevel, *logLevel)
	override("log-format", &cfg.LogFormat, *logFormat)
	if pflag.CommandLine.Changed("retry-delay") {
		cfg.RetryDelay = *retryDelay
	}
	if pflag.CommandLine.Changed("strict-events") {
		cfg.StrictEvents = *strict
	}
	if pflag.CommandLine.Changed("autostart") {
		cfg.Autostart = *autostart
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)

	sampleFormat, err := audio.ParseFormat(cfg.AudioFormat)
	if err != nil {
		logger.Error().Err(err).Msg("invalid audio format")
		return 2
	}

	host := sound.NewPortaudioHost(sound.PortaudioConfig{Logger: logger})
	if err := host.Initialize(); err != nil {
		logger.Error().Err(err).Msg("failed to initialize PortAudio")
		return 1
	}
	defer host.Terminate()

	if *listDevices {
		names, err := host.OutputDevices()
		if err != nil {
			logger.Error().Err(err).Msg("failed to list output devices")
			return 1
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return 0
	}

	speakerName := cfg.Name
	if speakerName == "" {
		settings, err := config.OpenSettings(cfg.SettingsPath)
		if err != nil {
			logger.Error().Err(err).Msg("failed to open settings")
			return 1
		}
		speakerName, err = settings.DisplayName()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to persist default speaker name")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// start_listen may arrive more than once; the launcher only lets the first through.
	startCh := make(chan string, 1)
	launcher := engine.NewLauncher(func(n string) {
		if n == "" {
			n = speakerName
		}
		startCh <- n
	})

	var validator *events.Validator
	if cfg.StrictEvents {
		validator, err = events.NewValidator()
		if err != nil {
			logger.Error().Err(err).Msg("failed to compile event schema")
			return 1
		}
	}
	hub := bridge.NewHub(bridge.Config{
		Validator: validator,
		OnStartListen: func(n string) {
			if !launcher.Trigger(n) {
				logger.Debug().Msg("speaker already started, ignoring start_listen")
			}
		},
		Logger: logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("bridge listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	var hs *health.Server
	if cfg.HealthAddr != "" {
		ln, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			logger.Error().Err(err).Msg("failed to listen for health checks")
			return 1
		}
		hs = health.NewServer(logger)
		g.Go(func() error {
			return hs.Serve(ln)
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.Stop()
			return nil
		})
	}

	if cfg.Autostart {
		launcher.Trigger(speakerName)
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case n := <-startCh:
			return runSpeaker(gctx, n, cfg, sampleFormat, host, hub, hs, logger)
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("speaker stopped")
		return 1
	}
	logger.Info().Msg("speaker stopped")
	return 0
}

func runSpeaker(ctx context.Context, name string, cfg *config.Config, format audio.Format, host sound.Host, hub *bridge.Hub, hs *health.Server, logger zerolog.Logger) error {
	logger.Info().Str("name", name).Str("engine", cfg.Engine).Msg("starting speaker")

	protocol, err := remote.Open(cfg.Engine, remote.Options{MediaDir: cfg.MediaDir, Logger: logger})
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	identity := engine.NewIdentity(name)
	core, err := engine.Initialize(ctx, identity, engine.Config{
		Device:          cfg.AudioDevice,
		Format:          format,
		CaptureCapacity: cfg.CaptureCapacity,
		MaxPending:      cfg.MaxPending,
		DiscoveryPort:   cfg.DiscoveryPort,
		RetryDelay:      cfg.RetryDelay,
	}, engine.Deps{
		Engine: protocol,
		Host:   host,
		Discover: func(dc discovery.Config) (discovery.Stream, error) {
			z, err := discovery.Launch(dc, logger)
			if err != nil {
				return nil, err
			}
			return z, nil
		},
		Emitter: hub,
		Logger:  logger,
		OnState: func(s engine.State) {
			if hs != nil {
				hs.SetConnected(s == engine.StateConnected)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("initialize speaker: %w", err)
	}

	api := webapi.NewClient()
	eng := engine.NewEngine(core, engine.EngineConfig{
		ShutdownTimeout: shutdownTimeout,
		OnConnected: func(ctx context.Context, token string) {
			who := "local listener"
			if cfg.Engine != localplay.Name {
				profile, err := api.CurrentUser(ctx, token)
				if err != nil {
					logger.Warn().Err(err).Msg("failed to look up connected user")
					return
				}
				who = profile.Name()
			}
			if err := hub.Emit(events.EventInfo, who+" connected"); err != nil {
				logger.Warn().Err(err).Msg("failed to emit info")
			}
		},
		Logger: logger,
	})
	return eng.Run(ctx)
}

func newLogger(level, format string) zerolog.Logger {
	var logger zerolog.Logger
	if strings.EqualFold(format, "json") {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger = logger.With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		logger.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}
