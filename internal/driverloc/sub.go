// Package driverloc maintains the single live driver location subscription:
// position/ETA pushes, a silence-window inactivity timer, and the
// once-per-activity-burst arrival notification.
package driverloc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tommyle1310/flashfood-sync/internal/wire"
)

// Default tuning.
const (
	DefaultArrivalThreshold = 5.0 // minutes
	DefaultInactivityWindow = 120 * time.Second
)

// Gateway is the outbound half of the locations transport.
type Gateway interface {
	Send(ctx context.Context, event string, payload interface{}) error
	Connected() bool
}

// Notifier surfaces the arrival alert.
type Notifier interface {
	Notify(title, body string)
}

// State is a copy of the current subscription for read-only consumers.
type State struct {
	DriverID        string    `json:"driverId"`
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	ETAMinutes      float64   `json:"etaMinutes"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
	NotifiedArrival bool      `json:"notifiedArrival"`
}

// subscription is the mutable state for one driver. A fresh subscription
// value is allocated per driver so a stale timer can recognize itself.
type subscription struct {
	driverID string
	lat, lng float64
	eta      float64
	lastSeen time.Time
	notified bool
	timer    *time.Timer
}

// Manager owns at most one active subscription. Switching drivers tears
// down the previous subscription, cancelling its timer, before the new one
// is established; a torn-down subscription can never mutate state.
type Manager struct {
	gw        Gateway
	notifier  Notifier
	threshold float64
	window    time.Duration

	mu  sync.Mutex
	sub *subscription
}

// Opts holds parameters for creating a Manager.
type Opts struct {
	Gateway          Gateway
	Notifier         Notifier      // optional
	ArrivalThreshold float64       // minutes; defaults to DefaultArrivalThreshold
	InactivityWindow time.Duration // defaults to DefaultInactivityWindow
}

// New creates a Manager.
func New(opts Opts) (*Manager, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("driverloc: gateway is required")
	}
	threshold := opts.ArrivalThreshold
	if threshold <= 0 {
		threshold = DefaultArrivalThreshold
	}
	window := opts.InactivityWindow
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	return &Manager{
		gw:        opts.Gateway,
		notifier:  opts.Notifier,
		threshold: threshold,
		window:    window,
	}, nil
}

// Subscribe targets the location stream at a driver. Subscribing to the
// current driver is a no-op; a different driver tears the old subscription
// down first.
func (m *Manager) Subscribe(ctx context.Context, driverID string) error {
	if driverID == "" {
		return fmt.Errorf("driverloc: driver id is required")
	}
	m.mu.Lock()
	if m.sub != nil {
		if m.sub.driverID == driverID {
			m.mu.Unlock()
			return nil
		}
		m.teardownLocked()
	}
	m.sub = &subscription{driverID: driverID}
	m.mu.Unlock()

	if err := m.gw.Send(ctx, wire.EvSubscribeDriver, wire.SubscribeDriver{DriverID: driverID}); err != nil {
		return fmt.Errorf("driverloc: subscribe %s: %w", driverID, err)
	}
	log.Printf("driverloc: subscribed to driver %s", driverID)
	return nil
}

// Unsubscribe tears down the current subscription, if any. Timers are
// cancelled before return.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()
}

// teardownLocked cancels the active subscription. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	if m.sub == nil {
		return
	}
	if m.sub.timer != nil {
		m.sub.timer.Stop()
	}
	log.Printf("driverloc: unsubscribed from driver %s", m.sub.driverID)
	m.sub = nil
}

// HandlePush applies one location/ETA push. Pushes for a driver other than
// the active subscription are dropped; they are echoes of a torn-down
// target and must not write under a stale driverId.
func (m *Manager) HandlePush(p wire.DriverLocation) {
	if err := p.Validate(); err != nil {
		log.Printf("driverloc: %v", err)
		return
	}

	m.mu.Lock()
	sub := m.sub
	if sub == nil || sub.driverID != p.DriverID {
		m.mu.Unlock()
		log.Printf("driverloc: push for inactive driver %s dropped", p.DriverID)
		return
	}

	sub.lat = p.Lat
	sub.lng = p.Lng
	sub.eta = p.ETA
	sub.lastSeen = time.Now()

	// Every push restarts the silence window. When the window elapses with
	// no pushes the notified flag clears, permitting a fresh arrival alert
	// on the next activity burst. ETA rising back above the threshold does
	// NOT clear the flag.
	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.timer = time.AfterFunc(m.window, func() { m.expire(sub) })

	fire := false
	if p.ETA < m.threshold && !sub.notified {
		sub.notified = true
		fire = true
	}
	driverID := sub.driverID
	m.mu.Unlock()

	if fire {
		log.Printf("driverloc: driver %s arriving (eta %.1f min)", driverID, p.ETA)
		if m.notifier != nil {
			m.notifier.Notify("Driver arriving", fmt.Sprintf("Your driver is about %.0f minutes away", p.ETA))
		}
	}
}

// expire clears the arrival flag after a silence window. The subscription
// identity check discards firings from timers of torn-down subscriptions.
func (m *Manager) expire(sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != sub {
		return
	}
	sub.notified = false
}

// State returns a copy of the active subscription, ok=false when none.
func (m *Manager) State() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub == nil {
		return State{}, false
	}
	return State{
		DriverID:        m.sub.driverID,
		Lat:             m.sub.lat,
		Lng:             m.sub.lng,
		ETAMinutes:      m.sub.eta,
		LastActivityAt:  m.sub.lastSeen,
		NotifiedArrival: m.sub.notified,
	}, true
}

// Run consumes location pushes from the locations namespace until the
// context is cancelled or the channel closes.
func (m *Manager) Run(ctx context.Context, inbound <-chan wire.Envelope) {
	for {
		select {
		case <-ctx.Done():
			m.Unsubscribe()
			return
		case env, ok := <-inbound:
			if !ok {
				m.Unsubscribe()
				return
			}
			if env.Event != wire.EvDriverLocation {
				log.Printf("driverloc: ignoring event %q", env.Event)
				continue
			}
			var p wire.DriverLocation
			if err := unmarshalEnvelope(env, &p); err != nil {
				log.Printf("driverloc: %v", err)
				continue
			}
			m.HandlePush(p)
		}
	}
}

func unmarshalEnvelope(env wire.Envelope, v interface{}) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("bad %s payload dropped: %w", env.Event, err)
	}
	return nil
}
