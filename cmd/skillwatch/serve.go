package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"skillwatch/internal/config"
	"skillwatch/internal/digest"
	"skillwatch/internal/esi"
	"skillwatch/internal/history"
	"skillwatch/internal/logging"
	"skillwatch/internal/monitor"
	"skillwatch/internal/telegram"
	"skillwatch/internal/web"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot",
	Long: `Run the skillwatch bot: the Telegram connection, the OAuth webserver,
and the monitoring loop. Runs until interrupted (Ctrl+C) or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log, logCloser, err := logging.New(logging.Config{Level: "info"})
	if err != nil {
		return err
	}

	cfgm := config.NewManager(cfgPath, log.With().Str("comp", "config").Logger())
	cfg, err := cfgm.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Re-open logging with the configured sinks.
	if logCloser != nil {
		_ = logCloser.Close()
	}
	log, logCloser, err = logging.New(logging.Config{
		Level: cfg.Logging.Level,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	period, err := config.ParseDurationOrDefault("monitor.rotation_period", cfg.Monitor.RotationPeriod, monitor.DefaultRotationPeriod)
	if err != nil {
		return err
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	busyTimeout, err := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
	if err != nil {
		return err
	}

	esiClient := esi.New(esi.Config{
		ClientID:     cfg.ESI.ClientID,
		ClientSecret: cfg.ESI.ClientSecret,
		RedirectURL:  cfg.Web.PublicURL + "/callback",
		RatePerSec:   cfg.ESI.RatePerSec,
	}, log.With().Str("comp", "esi").Logger())

	store, err := monitor.NewCheckpointStore(cfg.Monitor.StorageDir, log.With().Str("comp", "storage").Logger())
	if err != nil {
		return err
	}

	hist, err := history.Open(history.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busyTimeout,
	}, log.With().Str("comp", "history").Logger())
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
		log.Info().Str("driver", cfg.History.Driver).Msg("history enabled")
	}

	bot, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		GuildChatID: cfg.Telegram.GuildChatID,
		PollTimeout: pollTimeout,
	}, log.With().Str("comp", "telegram").Logger())
	if err != nil {
		return err
	}

	monLog := log.With().Str("comp", "monitor").Logger()
	updater := monitor.NewUpdater(store, esiClient, bot, hist,
		monitor.RetryPolicy{Limit: cfg.Monitor.RetryLimit}, period, monLog)
	sched := monitor.NewScheduler(updater, period, monLog)
	onboard := monitor.NewOnboarding(store, sched, updater, bot, bot, monLog)

	pending := web.NewPendingStore(cfg.Web.PublicURL, bot, log.With().Str("comp", "web").Logger())
	bot.SetMonitorFlow(pending)

	listen := cfg.Web.Listen
	if listen == "" {
		listen = ":3000"
	}
	srv := web.NewServer(listen, pending, esiClient, onboard, log.With().Str("comp", "web").Logger())

	dig := digest.New(store, hist, bot, cfg.Digest.Schedule, log.With().Str("comp", "digest").Logger())

	// Rebuild the live registry from disk, skipping suspended characters.
	cps, err := store.All()
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}
	for _, cp := range cps {
		if cp.Suspended {
			continue
		}
		sched.Add(&monitor.Entity{CharacterID: cp.CharacterID})
	}
	log.Info().Int("characters", sched.Len()).Msg("registry loaded")

	go func() {
		if err := sched.Run(ctx); err != nil {
			// Operator error: the checkpoint store and the live registry
			// have diverged. Nothing sensible to recover to.
			log.Fatal().Err(err).Msg("monitor loop failed")
		}
	}()
	go pending.Sweep(ctx)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("webserver failed")
		}
	}()
	go func() {
		if err := cfgm.Watch(ctx, func(c *config.Config) {
			logging.SetLevel(c.Logging.Level)
			updater.SetRetryLimit(c.Monitor.RetryLimit)
			if p, err := config.ParseDurationOrDefault("monitor.rotation_period", c.Monitor.RotationPeriod, monitor.DefaultRotationPeriod); err == nil {
				sched.SetPeriod(p)
				updater.SetRotationPeriod(p)
			}
			log.Info().Msg("applied log level, rotation period and retry limit; other changes need a restart")
		}); err != nil {
			log.Warn().Err(err).Msg("config watch stopped")
		}
	}()
	if err := dig.Start(); err != nil {
		return err
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); ok && err == nil {
		log.Debug().Msg("notified systemd readiness")
	}

	// Blocks until ctx is cancelled.
	bot.Start(ctx)

	dig.Stop()
	shCtx, shCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn().Err(err).Msg("webserver shutdown")
	}
	log.Info().Msg("bye")
	return nil
}
