package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aquamon/aquamon/pkg/alert"
	"github.com/aquamon/aquamon/pkg/config"
	"github.com/aquamon/aquamon/pkg/gateway"
	"github.com/aquamon/aquamon/pkg/infra/eventbus"
	"github.com/aquamon/aquamon/pkg/infra/logger"
	"github.com/aquamon/aquamon/pkg/infra/ratelimit"
	"github.com/aquamon/aquamon/pkg/infra/store"
	"github.com/aquamon/aquamon/pkg/notify"
	"github.com/aquamon/aquamon/pkg/realtime"
	"github.com/aquamon/aquamon/pkg/service"
)

func NewServeCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(root.cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	log := logger.Default()

	thresholds, err := config.LoadThresholds(cfg.Alert.ThresholdFile)
	if err != nil {
		return fmt.Errorf("load thresholds: %w", err)
	}
	log.Info("thresholds loaded", "version", thresholds.Version, "profiles", len(thresholds.Profiles))

	alerts, obligations, prefs, closeStore := buildStores(cfg)
	defer closeStore()

	bus := eventbus.NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	router := notify.NewRouter(prefs, obligations)
	deduper := alert.NewDeduper(alerts, cfg.Cooldowns())
	monitor := service.NewMonitor(thresholds, deduper, alerts, router, bus)

	senders := map[notify.Channel]notify.Sender{
		notify.ChannelEmail: notify.NewEmailSender(notify.EmailConfig{
			Host:     cfg.Notify.Email.Host,
			Port:     cfg.Notify.Email.Port,
			From:     cfg.Notify.Email.From,
			Username: cfg.Notify.Email.Username,
			Password: cfg.Notify.Email.Password,
		}),
		notify.ChannelPush: notify.NewPushSender(notify.PushConfig{
			Endpoint: cfg.Notify.Push.Endpoint,
			Token:    cfg.Notify.Push.Token,
		}),
	}
	dispatcher := notify.NewDispatcher(obligations, prefs, alerts, senders, notify.DispatcherOptions{
		Workers:      cfg.Notify.Workers,
		PollInterval: cfg.Notify.PollIntervalD,
		MaxAttempts:  cfg.Notify.MaxAttempts,
		Backoff: notify.Backoff{
			Base:    cfg.Notify.BackoffBaseD,
			Ceiling: cfg.Notify.BackoffCapD,
			Jitter:  cfg.Notify.JitterPct,
		},
	})

	hub := realtime.NewHub()
	go hub.Run()
	defer hub.Close()

	publishers := []realtime.Publisher{hub}
	if cfg.Realtime.NATSURL != "" {
		bridge, conn, err := realtime.Connect(cfg.Realtime.NATSURL, cfg.Realtime.NATSPrefix)
		if err != nil {
			log.Warn("NATS bridge unavailable", "url", cfg.Realtime.NATSURL, "error", err)
		} else {
			log.Info("NATS bridge connected", "url", cfg.Realtime.NATSURL)
			defer conn.Close()
			publishers = append(publishers, bridge)
		}
	}

	relay := realtime.NewRelay(bus, publishers...)
	if err := relay.Start(); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	defer relay.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	resolver := service.NewResolver(monitor, alerts, cfg.Alert.AutoResolveAfterD, cfg.Alert.ResolveIntervalD)
	resolver.Start(ctx)
	defer resolver.Stop()

	srv := gateway.NewServer(gateway.Options{
		ListenAddr:  cfg.API.ListenAddr,
		DeviceKeys:  cfg.API.DeviceKeys,
		Monitor:     monitor,
		Alerts:      alerts,
		Obligations: obligations,
		Prefs:       prefs,
		Limiter:     ratelimit.PerMinute(cfg.API.RateLimitPerMin),
		Hub:         hub,
		Validator:   realtime.NewTokenValidator(cfg.Realtime.TokenSecret),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// buildStores opens the SQLite database, falling back to the in-memory
// stores if the file cannot be opened.
func buildStores(cfg *config.Config) (alert.Store, notify.ObligationStore, notify.PreferenceStore, func()) {
	log := logger.Default()

	dataDir := cfg.General.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Warn("creating data dir failed, using memory stores", "dir", dataDir, "error", err)
		return alert.NewMemoryStore(), notify.NewMemoryObligationStore(), notify.NewMemoryPreferenceStore(), func() {}
	}

	dbPath := filepath.Join(dataDir, "aquamon.db")
	db, err := store.Open(dbPath)
	if err != nil {
		log.Warn("opening sqlite failed, using memory stores", "path", dbPath, "error", err)
		return alert.NewMemoryStore(), notify.NewMemoryObligationStore(), notify.NewMemoryPreferenceStore(), func() {}
	}

	log.Info("using SQLite database for persistent storage", "path", dbPath)
	return store.NewAlertStore(db), store.NewObligationStore(db), store.NewPreferenceStore(db), func() { _ = db.Close() }
}
