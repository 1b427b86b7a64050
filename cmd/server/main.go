package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/voicegate/internal/adapters/auth"
	"github.com/dkeye/voicegate/internal/adapters/guild"
	router "github.com/dkeye/voicegate/internal/adapters/http"
	"github.com/dkeye/voicegate/internal/adapters/kurento"
	"github.com/dkeye/voicegate/internal/adapters/presence"
	"github.com/dkeye/voicegate/internal/adapters/rtc"
	sigws "github.com/dkeye/voicegate/internal/adapters/signal"
	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/app/orch"
	"github.com/dkeye/voicegate/internal/config"
	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/metrics"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to the YAML config file (default config/config.<CONFIG_ENV>.yaml)",
		EnvVars: []string{"VOICEGATE_CONFIG"},
	},
}

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cliApp := &cli.App{
		Name:        "voicegate",
		Usage:       "voice room signaling coordinator",
		Description: "run without subcommands to start the server",
		Flags:       baseFlags,
		Action:      startServer,
		Commands: []*cli.Command{
			{
				Name:   "token",
				Usage:  "issue a signed member token for local testing",
				Action: issueToken,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "member", Usage: "member id", Required: true},
					&cli.StringFlag{Name: "nickname"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("voicegate")
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func newEngine(ctx context.Context, cfg *config.Config) (core.Engine, error) {
	switch cfg.SFU.Driver {
	case "kurento":
		client, err := kurento.Dial(ctx, cfg.SFU.KMSURL, kurento.ClientOptions{RequestTimeout: cfg.SFU.RequestTimeout})
		if err != nil {
			return nil, err
		}
		return kurento.NewEngine(client), nil
	default:
		servers := make([]webrtc.ICEServer, 0, len(cfg.ICE.Servers))
		for _, s := range cfg.ICE.Servers {
			servers = append(servers, webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
		}
		engine, err := rtc.NewEngine(rtc.NewWebRTCConfig(servers))
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}

func newPresence(ctx context.Context, cfg config.RedisConfig) (app.Presence, func(), error) {
	if !cfg.Enabled {
		return app.NoopPresence{}, func() {}, nil
	}
	p, err := presence.Connect(ctx, presence.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		TTL:      cfg.TTL,
		Prefix:   cfg.Prefix,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Close() }, nil
}

func startServer(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	validator, err := auth.NewJWTValidator(auth.Options{
		Secret:       cfg.Auth.Secret,
		SecretBase64: cfg.Auth.SecretBase64,
		Issuer:       cfg.Auth.Issuer,
		Leeway:       cfg.Auth.Leeway,
	})
	if err != nil {
		return err
	}

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("sfu engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error().Err(err).Msg("engine close")
		}
	}()

	pres, closePresence, err := newPresence(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("presence: %w", err)
	}
	defer closePresence()

	reg := app.NewRegistry(engine, pres)
	o := orch.New(reg, app.NewMediaTracker(reg), cfg.Signal.OfferTimeout)

	ctl := sigws.NewSignalWSController(o, validator, sigws.Options{
		SendBuffer:     cfg.Signal.SendBuffer,
		RateLimit:      cfg.Signal.RateLimit,
		RateInterval:   cfg.Signal.RateInterval,
		Scope:          sigws.ParseBroadcastScope(cfg.Signal.BroadcastScope),
		Policy:         app.SimplePolicy{Action: app.ParseBackpressureAction(cfg.Signal.Backpressure)},
		AllowedOrigins: cfg.Signal.AllowedOrigins,
		PingInterval:   cfg.Signal.PingPeriod,
		PongWait:       cfg.Signal.PongWait,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		ReadLimit:      cfg.Signal.ReadLimit,
	})

	deps := router.Deps{Orch: o, Signal: ctl, Auth: validator}
	if h, ok := engine.(interface{ Healthy() error }); ok {
		deps.Health = h.Healthy
	}
	if cfg.Guild.URL != "" {
		deps.Guilds = guild.NewClient(cfg.Guild.URL, cfg.Guild.Token, cfg.Guild.Timeout)
	}

	r := router.SetupRouter(ctx, cfg, deps)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("sfu", cfg.SFU.Driver).Msg("voicegate started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		ctl.Close()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
