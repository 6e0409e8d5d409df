package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tommyle1310/flashfood-sync/internal/chat"
	"github.com/tommyle1310/flashfood-sync/internal/config"
	"github.com/tommyle1310/flashfood-sync/internal/dashboard"
	"github.com/tommyle1310/flashfood-sync/internal/db"
	"github.com/tommyle1310/flashfood-sync/internal/driverloc"
	"github.com/tommyle1310/flashfood-sync/internal/notify"
	"github.com/tommyle1310/flashfood-sync/internal/persist"
	"github.com/tommyle1310/flashfood-sync/internal/tracking"
	"github.com/tommyle1310/flashfood-sync/internal/transport"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the sync daemon",
		Long:  "Connects to the FlashFood gateway, hydrates the local mirror, and keeps chat, order tracking, and driver position in sync until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ffsync.yaml", "path to ffsync config file")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Open(cfg.Storage)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	persister := persist.New(gormDB)
	if cfg.Storage.Driver == "sqlite" {
		legacyPath := filepath.Join(filepath.Dir(cfg.Storage.Path), "legacy_messages.json")
		if err := persister.ImportLegacy(legacyPath); err != nil {
			log.Printf("ffsync: legacy import: %v", err)
		}
	}
	snap, err := persister.Hydrate()
	if err != nil {
		return fmt.Errorf("hydrate mirror: %w", err)
	}

	store := chat.NewStore(persister.Enqueue)
	store.Load(snap)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	newConn := func(namespace string) (*transport.Conn, error) {
		return transport.New(transport.Opts{
			BaseURL:     cfg.Gateway.URL,
			Namespace:   namespace,
			Token:       cfg.Auth.Token,
			BaseDelay:   time.Duration(cfg.Reconnect.BaseDelaySec) * time.Second,
			MaxDelay:    time.Duration(cfg.Reconnect.MaxDelaySec) * time.Second,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		})
	}

	chatConn, err := newConn(transport.NamespaceChat)
	if err != nil {
		return err
	}
	ordersConn, err := newConn(transport.NamespaceOrders)
	if err != nil {
		return err
	}
	locConn, err := newConn(transport.NamespaceLocations)
	if err != nil {
		return err
	}

	notifier := notify.NewDesktop(cfg.Notify)

	engine, err := chat.NewEngine(chat.EngineOpts{
		Store:       store,
		Gateway:     chatConn,
		Inbound:     chatConn.Inbound(),
		LocalUserID: cfg.Auth.UserID,
		Notifier:    notifier,
	})
	if err != nil {
		return err
	}

	tracker, err := tracking.NewSynchronizer(tracking.SyncOpts{
		REST:       tracking.NewClient(cfg.Tracking.RESTBaseURL, cfg.Auth.Token),
		CustomerID: cfg.Auth.UserID,
	})
	if err != nil {
		return err
	}
	tracker.PersistHook = persister.EnqueueOrders
	if orders, err := persister.HydrateOrders(); err != nil {
		log.Printf("ffsync: order hydration: %v", err)
	} else {
		tracker.Seed(orders)
	}

	driver, err := driverloc.New(driverloc.Opts{
		Gateway:          locConn,
		Notifier:         notifier,
		ArrivalThreshold: float64(cfg.Driver.ArrivalThresholdMin),
		InactivityWindow: time.Duration(cfg.Driver.InactivityWindowSec) * time.Second,
	})
	if err != nil {
		return err
	}

	// Reconnect and give-up wiring. Queued sends flush on every chat
	// reconnect; the orders namespace reconciles against the authoritative
	// list on every reconnect, since pushes may have been missed offline.
	chatConn.OnConnect(engine.FlushOutbox)
	ordersConn.OnConnect(func() {
		go func() {
			rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := tracker.Reconcile(rctx); err != nil {
				log.Printf("ffsync: reconnect reconciliation: %v", err)
			}
		}()
	})
	go func() {
		select {
		case <-ctx.Done():
		case <-ordersConn.GaveUp():
			tracker.Clear()
		}
	}()
	tracker.DriverHook = func(driverID string) {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := driver.Subscribe(sctx, driverID); err != nil {
			log.Printf("ffsync: driver subscribe: %v", err)
		}
	}

	for ns, conn := range map[string]*transport.Conn{
		transport.NamespaceChat:      chatConn,
		transport.NamespaceOrders:    ordersConn,
		transport.NamespaceLocations: locConn,
	} {
		if err := conn.Dial(ctx); err != nil {
			return fmt.Errorf("connect %s: %w", ns, err)
		}
		defer conn.Close()
	}

	go persister.Run(ctx)
	go tracker.Run(ctx, ordersConn.Inbound(), cfg.Tracking.RefreshCron)
	go driver.Run(ctx, locConn.Inbound())

	if cfg.Dashboard.Enabled {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				Store:   store,
				Tracker: tracker,
				Driver:  driver,
				Conns: map[string]dashboard.ConnStatus{
					transport.NamespaceChat:      chatConn,
					transport.NamespaceOrders:    ordersConn,
					transport.NamespaceLocations: locConn,
				},
				Port: cfg.Dashboard.Port,
				Out:  cmd.OutOrStdout(),
			})
			if err != nil {
				log.Printf("ffsync: dashboard: %v", err)
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ffsync online (user %s)\n", cfg.Auth.UserID)
	if err := engine.Run(ctx); err != nil {
		return err
	}

	// Flush the last snapshot before exit so the mirror is current.
	if err := persister.Flush(store.Snapshot()); err != nil {
		log.Printf("ffsync: final flush: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ffsync stopped\n")
	return nil
}
