package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tommyle1310/flashfood-sync/internal/chat"
	"github.com/tommyle1310/flashfood-sync/internal/config"
	"github.com/tommyle1310/flashfood-sync/internal/db"
	"github.com/tommyle1310/flashfood-sync/internal/persist"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a summary of the local mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ffsync.yaml", "path to ffsync config file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string) error {
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
	snap, err := persister.Hydrate()
	if err != nil {
		return fmt.Errorf("hydrate mirror: %w", err)
	}
	orders, err := persister.HydrateOrders()
	if err != nil {
		return fmt.Errorf("hydrate orders: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rooms: %d\n", len(snap.Rooms))
	if snap.Session != nil {
		fmt.Fprintf(out, "session: %s (mode %s, %s)\n", snap.Session.SessionID, snap.Session.ChatMode, snap.Session.Status)
	} else {
		fmt.Fprintln(out, "session: none")
	}
	if snap.ActiveRoomID != "" {
		fmt.Fprintf(out, "active room: %s\n", snap.ActiveRoomID)
	}

	rooms := append([]chat.Room(nil), snap.Rooms...)
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	for _, room := range rooms {
		last := ""
		if room.LastMessage != nil {
			last = truncate(room.LastMessage.Content, 48)
		}
		fmt.Fprintf(out, "  %-34s %3d msgs  unread %d  %s\n", room.ID, len(snap.Messages[room.ID]), room.UnreadCount, last)
	}

	fmt.Fprintf(out, "tracked orders: %d\n", len(orders))
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderID < orders[j].OrderID })
	for _, o := range orders {
		fmt.Fprintf(out, "  %-20s %-12s stage %d  %s\n", o.OrderID, o.Status, o.Stage(), o.TrackingInfo)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
