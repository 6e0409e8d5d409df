// Package dashboard serves a read-only local view of the sync engine:
// rooms, messages, tracked orders, and driver position, as JSON plus an
// SSE change stream.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/tommyle1310/flashfood-sync/internal/chat"
	"github.com/tommyle1310/flashfood-sync/internal/driverloc"
	"github.com/tommyle1310/flashfood-sync/internal/tracking"
)

// ConnStatus reports one namespace's transport health.
type ConnStatus interface {
	Connected() bool
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Store   *chat.Store
	Tracker *tracking.Synchronizer
	Driver  *driverloc.Manager
	Conns   map[string]ConnStatus // namespace -> transport
	Port    int
	Out     io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("dashboard: store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)

	addr := fmt.Sprintf("127.0.0.1:%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://%s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/api/status", handleStatus(opts))
	router.GET("/api/rooms", handleRooms(opts.Store))
	router.GET("/api/rooms/:id/messages", handleMessages(opts.Store))
	router.GET("/api/orders", handleOrders(opts.Tracker))
	router.GET("/api/driver", handleDriver(opts.Driver))
	router.GET("/api/events", handleSSE(opts))
}

func handleStatus(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		conns := make(map[string]bool, len(opts.Conns))
		for ns, conn := range opts.Conns {
			conns[ns] = conn.Connected()
		}
		c.JSON(http.StatusOK, gin.H{
			"connections": conns,
			"activeRoom":  opts.Store.ActiveRoom(),
			"session":     opts.Store.Session(),
		})
	}
}

func handleRooms(store *chat.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms := store.Rooms()
		sort.Slice(rooms, func(i, j int) bool {
			return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
		})
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	}
}

func handleMessages(store *chat.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("id")
		if _, ok := store.Room(roomID); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"roomId":   roomID,
			"messages": store.Messages(roomID),
		})
	}
}

func handleOrders(tracker *tracking.Synchronizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tracker == nil {
			c.JSON(http.StatusOK, gin.H{"orders": []tracking.Order{}})
			return
		}
		orders := tracker.Orders()
		sort.Slice(orders, func(i, j int) bool {
			return orders[i].OrderID < orders[j].OrderID
		})
		type orderView struct {
			tracking.Order
			Stage int `json:"stage"`
		}
		views := make([]orderView, len(orders))
		for i, o := range orders {
			views[i] = orderView{Order: o, Stage: o.Stage()}
		}
		c.JSON(http.StatusOK, gin.H{"orders": views})
	}
}

func handleDriver(mgr *driverloc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if mgr == nil {
			c.JSON(http.StatusOK, gin.H{"active": false})
			return
		}
		state, ok := mgr.State()
		if !ok {
			c.JSON(http.StatusOK, gin.H{"active": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"active": true, "driver": state})
	}
}
