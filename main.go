package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"timebot/internal/adapters/gateway"
	"timebot/internal/adapters/handler"
	"timebot/internal/adapters/health"
	"timebot/internal/adapters/metrics"
	"timebot/internal/adapters/sender"
	"timebot/internal/core/domain"
	"timebot/internal/core/domain/command"
	"timebot/internal/core/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	exitRuntime = 1
	exitStartup = 2
)

var errUnexpectedExit = errors.New("task stopped unexpectedly")

type config struct {
	token           string
	closeTimeout    time.Duration
	shutdownTimeout time.Duration
	handlerTimeout  time.Duration
	healthListen    string
	gracePeriod     time.Duration
}

func main() {
	log.Info().Msg("starting timebot...")

	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(exitStartup)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("timebot stopped with an error")
		os.Exit(exitRuntime)
	}

	log.Info().Msg("timebot stopped")
}

func loadConfig() (*config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	viper.SetEnvPrefix("timebot")
	viper.AutomaticEnv()
	if err := viper.BindEnv("discord.token", "DISCORD_TOKEN"); err != nil {
		return nil, fmt.Errorf("binding token env: %w", err)
	}

	viper.SetDefault("bot.log_level", "info")
	viper.SetDefault("supervisor.close_timeout", service.DefaultCloseTimeout.String())
	viper.SetDefault("supervisor.shutdown_timeout", "10s")
	viper.SetDefault("handler.timeout", handler.DefaultTimeout.String())
	viper.SetDefault("health.listen", health.DefaultListen)
	viper.SetDefault("health.grace_period", health.DefaultGracePeriod.String())

	log.Info().Msg("reading config file...")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
		log.Info().Msg("no config file, using defaults and environment")
	}

	var logLevel zerolog.Level

	switch viper.GetString("bot.log_level") {
	case "info":
		logLevel = zerolog.InfoLevel
	case "debug":
		logLevel = zerolog.DebugLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	cfg := &config{
		token:        viper.GetString("discord.token"),
		healthListen: viper.GetString("health.listen"),
	}
	if cfg.token == "" {
		return nil, errors.New("no discord token configured, set DISCORD_TOKEN or discord.token")
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"supervisor.close_timeout", &cfg.closeTimeout},
		{"supervisor.shutdown_timeout", &cfg.shutdownTimeout},
		{"handler.timeout", &cfg.handlerTimeout},
		{"health.grace_period", &cfg.gracePeriod},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(viper.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid duration for %s in config: %w", d.key, err)
		}
		*d.target = v
	}

	return cfg, nil
}

func run(cfg *config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.NewPrometheus(reg)

	state := service.NewState()
	identity := service.NewIdentity()

	allowlist, err := service.NewGuildAllowlist()
	if err != nil {
		return err
	}

	supervisor := service.NewSupervisor(service.SupervisorOptions{
		CloseTimeout: cfg.closeTimeout,
		Metrics:      promMetrics,
	})

	registry := command.NewRegistry()

	// the supervisor and its guild handlers outlive the gateway so they can take the shutdown it sends
	supCtx, supCancel := context.WithCancel(context.Background())
	defer supCancel()

	var events *handler.Events
	gw, err := gateway.New(gateway.Config{
		Token:     cfg.token,
		Events:    supervisor.Sender(),
		Identity:  identity,
		State:     state,
		Commands:  registry,
		Allowlist: allowlist,
		NewGuild: func(id domain.GuildID, name string) *service.GuildHandler {
			return service.NewGuildHandler(id, name, events, service.GuildOptions{Metrics: promMetrics})
		},
		CloseTimeout:   cfg.closeTimeout,
		HandlerContext: supCtx,
	})
	if err != nil {
		return err
	}

	discordSender := sender.NewDiscordSender(gw.Session())

	registry.MustRegister(command.NewPing(), command.CapCommand)
	registry.MustRegister(command.NewSay(discordSender), command.CapCommand, command.CapFollowup, command.CapModal)
	registry.MustRegister(command.NewHide(), command.CapCommand)
	registry.MustRegister(command.NewTime(), command.CapCommand, command.CapAutocomplete, command.CapFollowup)
	registry.MustRegister(command.NewDebug(supervisor, state), command.CapCommand)

	events = handler.NewEvents(registry, discordSender, identity, promMetrics, cfg.handlerTimeout)

	healthServer := health.New(health.Config{Listen: cfg.healthListen, GracePeriod: cfg.gracePeriod}, state, reg)

	supErr := make(chan error, 1)
	go func() { supErr <- supervisor.Run(supCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return expectCancel(gctx, "gateway", gw.Run(gctx))
	})
	g.Go(func() error {
		return expectCancel(gctx, "health server", healthServer.Start(gctx))
	})
	g.Go(func() error {
		select {
		case err := <-supErr:
			supErr <- err
			if gctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errUnexpectedExit
			}
			return fmt.Errorf("supervisor: %w", err)
		case <-gctx.Done():
			return nil
		}
	})

	log.Info().Msg("bot listening")
	groupErr := g.Wait()

	// usually sent by the gateway already, a closed mailbox is fine here
	_ = supervisor.Sender().Send(service.Shutdown{})

	timer := time.NewTimer(cfg.shutdownTimeout)
	defer timer.Stop()

	var runErr error
	select {
	case runErr = <-supErr:
	case <-timer.C:
		log.Warn().Dur("timeout", cfg.shutdownTimeout).Msg("supervisor did not finish shutting down, cancelling")
		supCancel()
		runErr = <-supErr
	}

	if groupErr != nil {
		return groupErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("supervisor: %w", runErr)
	}

	return nil
}

// expectCancel turns an early return of a long-running task into an error so the group stops.
func expectCancel(ctx context.Context, name string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if ctx.Err() == nil {
		return fmt.Errorf("%s: %w", name, errUnexpectedExit)
	}

	return nil
}
