package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// changeEvent is the payload of a "change" SSE event: counters a client can
// diff cheaply to decide what to refetch.
type changeEvent struct {
	Rooms       int     `json:"rooms"`
	Messages    int     `json:"messages"`
	Orders      int     `json:"orders"`
	ActiveRoom  string  `json:"activeRoom"`
	DriverID    string  `json:"driverId,omitempty"`
	DriverETA   float64 `json:"driverEta,omitempty"`
	GeneratedAt string  `json:"generatedAt"`
}

// handleSSE streams change events by polling the in-memory state.
func handleSSE(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		ticker := time.NewTicker(2 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		var last changeEvent
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				cur := buildChange(opts)
				if sameChange(cur, last) {
					continue
				}
				last = cur
				cur.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
				writeSSE(c.Writer, "change", cur)
				c.Writer.Flush()
			}
		}
	}
}

func buildChange(opts StartOpts) changeEvent {
	ev := changeEvent{ActiveRoom: opts.Store.ActiveRoom()}
	rooms := opts.Store.Rooms()
	ev.Rooms = len(rooms)
	for _, r := range rooms {
		ev.Messages += len(opts.Store.Messages(r.ID))
	}
	if opts.Tracker != nil {
		ev.Orders = len(opts.Tracker.Orders())
	}
	if opts.Driver != nil {
		if state, ok := opts.Driver.State(); ok {
			ev.DriverID = state.DriverID
			ev.DriverETA = state.ETAMinutes
		}
	}
	return ev
}

func sameChange(a, b changeEvent) bool {
	return a.Rooms == b.Rooms && a.Messages == b.Messages &&
		a.Orders == b.Orders && a.ActiveRoom == b.ActiveRoom &&
		a.DriverID == b.DriverID && a.DriverETA == b.DriverETA
}

// writeSSE writes one SSE frame.
func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
