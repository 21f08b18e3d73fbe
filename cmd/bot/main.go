package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"levelbot/internal/config"
	"levelbot/internal/cooldown"
	"levelbot/internal/discord"
	"levelbot/internal/keepalive"
	"levelbot/internal/progression"
	"levelbot/internal/roles"
	"levelbot/internal/rotation"
	"levelbot/internal/store"
	"levelbot/internal/tracker"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize the progression store: Postgres when a DSN is configured,
	// the JSON file store otherwise.
	var st store.Store
	if cfg.DatabaseDSN != "" {
		st, err = store.NewPostgresStore(cfg.DatabaseDSN, logger)
		if err != nil {
			logger.Error("failed to initialize database store", "error", err)
			os.Exit(1)
		}
	} else {
		st = store.NewFileStore(cfg.DataFile, logger)
	}
	defer st.Close()

	weekday, err := config.ParseWeekday(cfg.RotationWeekday)
	if err != nil {
		logger.Error("invalid rotation weekday", "error", err)
		os.Exit(1)
	}
	boundary := rotation.Boundary{
		Weekday:  weekday,
		Hour:     cfg.RotationHour,
		Minute:   cfg.RotationMinute,
		Location: cfg.RotationLocation(),
	}

	// Create the gateway first; the role policy and progression service are
	// layered on top of its collaborator surface.
	bot, err := discord.New(cfg.DiscordToken, cfg.GuildID, st, boundary, logger)
	if err != nil {
		logger.Error("failed to create Discord bot", "error", err)
		os.Exit(1)
	}

	policy := roles.NewPolicy(cfg.TierTable(), cfg.AchievementTable(), cfg.ChampionTable(), bot, logger)
	gate := cooldown.NewGate(cfg.Cooldown())
	svc := progression.NewService(st, gate, policy, bot, progression.Config{
		DailyBonusXP: cfg.DailyBonusXP,
		MessageXPMin: cfg.MessageXPMin,
		MessageXPMax: cfg.MessageXPMax,
		VoiceXP:      cfg.VoiceXP,
	}, logger)
	bot.SetProgression(svc)

	tr := tracker.New(cfg.VoiceInterval(), svc, bot, logger)
	bot.SetTracker(tr)

	rot := rotation.NewRotator(st, policy, bot, svc, boundary, cfg.NotifyChannelID, cfg.MarkerFile, logger)

	// Keep-alive endpoint for free-tier hosting
	ka := keepalive.New(cfg.KeepAliveAddr, logger)
	bot.SetReadyFunc(ka.SetReady)
	ka.Start()

	// Start bot
	if err := bot.Start(); err != nil {
		logger.Error("failed to start bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go rot.Run(ctx)

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("shutting down bot")
	cancel()
	tr.Stop()
	if err := bot.Stop(); err != nil {
		logger.Warn("gateway close failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := ka.Shutdown(shutdownCtx); err != nil {
		logger.Warn("keepalive shutdown failed", "error", err)
	}
}
