package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tommyle1310/flashfood-sync/internal/chat"
	"github.com/tommyle1310/flashfood-sync/internal/config"
	"github.com/tommyle1310/flashfood-sync/internal/db"
	"github.com/tommyle1310/flashfood-sync/internal/notify"
	"github.com/tommyle1310/flashfood-sync/internal/persist"
	"github.com/tommyle1310/flashfood-sync/internal/transport"
	"golang.org/x/term"
)

func newChatCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat console",
		Long: `Opens an interactive console against the chat namespace. Commands:

  /support        start a support session (scripted bot first)
  /order <peer> <orderId>   open an order chat
  /rooms          list rooms
  /select <room>  switch the active room
  /history        request history for the active room
  /close          end the support session
  /quit           exit

Anything else is sent as a message to the active room.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ffsync.yaml", "path to ffsync config file")
	return cmd
}

func runChat(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Auth.Token == "" {
		token, err := promptToken(cmd)
		if err != nil {
			return err
		}
		cfg.Auth.Token = token
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

	store := chat.NewStore(persister.Enqueue)
	store.Load(snap)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := transport.New(transport.Opts{
		BaseURL:     cfg.Gateway.URL,
		Namespace:   transport.NamespaceChat,
		Token:       cfg.Auth.Token,
		BaseDelay:   time.Duration(cfg.Reconnect.BaseDelaySec) * time.Second,
		MaxDelay:    time.Duration(cfg.Reconnect.MaxDelaySec) * time.Second,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	engine, err := chat.NewEngine(chat.EngineOpts{
		Store:       store,
		Gateway:     conn,
		Inbound:     conn.Inbound(),
		LocalUserID: cfg.Auth.UserID,
		Notifier:    notify.NewDesktop(cfg.Notify),
		Observer: func(msg chat.Message) {
			fmt.Fprintf(out, "\r[%s] %s: %s\n> ", msg.RoomID, msg.SenderID, msg.Content)
		},
	})
	if err != nil {
		return err
	}

	conn.OnConnect(engine.FlushOutbox)
	if err := conn.Dial(ctx); err != nil {
		return fmt.Errorf("connect chat: %w", err)
	}
	defer conn.Close()

	go persister.Run(ctx)
	go func() {
		if err := engine.Run(ctx); err != nil {
			log.Printf("ffsync: engine: %v", err)
		}
	}()

	fmt.Fprintln(out, "connected, /quit to exit")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		handleConsoleLine(out, engine, store, line)

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
	if err := persister.Flush(store.Snapshot()); err != nil {
		log.Printf("ffsync: final flush: %v", err)
	}
	return scanner.Err()
}

func handleConsoleLine(out io.Writer, engine *chat.Engine, store *chat.Store, line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/support":
		engine.StartSupportChat(chat.SessionChatbot)
	case "/order":
		if len(fields) != 3 {
			fmt.Fprintln(out, "usage: /order <peerUserId> <orderId>")
			return
		}
		engine.StartOrderChat(fields[1], fields[2])
	case "/rooms":
		for _, room := range store.Rooms() {
			fmt.Fprintf(out, "  %s (%s) unread %d\n", room.ID, room.Type, room.UnreadCount)
		}
	case "/select":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: /select <roomId>")
			return
		}
		engine.SelectRoom(fields[1])
	case "/history":
		if active := store.ActiveRoom(); active != "" {
			engine.RequestHistory(active)
		} else {
			fmt.Fprintln(out, "no active room")
		}
	case "/close":
		engine.CloseSupportSession()
	default:
		active := store.ActiveRoom()
		if active == "" {
			fmt.Fprintln(out, "no active room, /support or /order first")
			return
		}
		if room, ok := store.Room(active); ok && room.Type == chat.SessionOrder {
			engine.SendOrderMessage(active, line)
		} else {
			engine.SendSupportMessage(line, false)
		}
	}
}

// promptToken reads the gateway token without echoing when stdin is a
// terminal, falling back to a plain line read when it is not.
func promptToken(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "gateway token: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
