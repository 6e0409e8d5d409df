// Package tracking keeps the local view of active orders in sync: partial
// real-time pushes merged over authoritative REST snapshots, with staleness
// cleanup on every reconnect.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tommyle1310/flashfood-sync/internal/wire"
)

// Order is the in-memory tracking record for one order.
type Order struct {
	OrderID           string          `json:"orderId"`
	Status            string          `json:"status"`
	TrackingInfo      string          `json:"trackingInfo"`
	RestaurantAddress map[string]any  `json:"restaurantAddress,omitempty"`
	CustomerAddress   map[string]any  `json:"customerAddress,omitempty"`
	DriverRef         string          `json:"driverRef,omitempty"`
	TotalAmount       float64         `json:"totalAmount"`
	OrderItems        json.RawMessage `json:"orderItems,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	PaymentMethod     string          `json:"paymentMethod,omitempty"`
	AwaitingRating    bool            `json:"awaitingRating"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Stage returns the order's progress stage index.
func (o Order) Stage() int { return Stage(o.Status) }

// Lister fetches the authoritative order list. *Client satisfies it; tests
// inject a mock.
type Lister interface {
	FetchOrders(ctx context.Context, customerID string) ([]OrderSnapshot, error)
	FetchOrderStatus(ctx context.Context, orderID string) (string, bool, error)
}

// Synchronizer maintains the table of tracked orders keyed by order id.
type Synchronizer struct {
	rest       Lister
	customerID string

	mu     sync.RWMutex
	orders map[string]*Order

	// vetted carries pushes whose unknown order id survived the off-loop
	// REST check, re-entering the Run loop for the merge.
	vetted chan wire.NotifyOrderStatus

	// DriverHook fires when a push changes an order's driver ref, letting
	// the location subscription retarget. Optional.
	DriverHook func(driverID string)

	// PersistHook fires with a copy of the full table after every mutation.
	// Optional; the persist layer coalesces the writes.
	PersistHook func(orders []Order)
}

// SyncOpts holds parameters for creating a Synchronizer.
type SyncOpts struct {
	REST       Lister // optional; disables snapshot reconciliation when nil
	CustomerID string
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(opts SyncOpts) (*Synchronizer, error) {
	if opts.CustomerID == "" {
		return nil, fmt.Errorf("tracking: customer id is required")
	}
	return &Synchronizer{
		rest:       opts.REST,
		customerID: opts.CustomerID,
		orders:     make(map[string]*Order),
		vetted:     make(chan wire.NotifyOrderStatus, 16),
	}, nil
}

// ApplyPush merges a partial order-status push onto the local record.
// Missing fields retain their prior values; updatedAt moves forward only.
// Applying the same push twice is a no-op. Unknown order ids are admitted
// here; the Run loop vets them against the REST status endpoint first.
func (s *Synchronizer) ApplyPush(p wire.NotifyOrderStatus) {
	if err := p.Validate(); err != nil {
		log.Printf("tracking: %v", err)
		return
	}

	incomingAt := time.UnixMilli(p.UpdatedAt)

	s.mu.Lock()
	o, ok := s.orders[p.OrderID]
	if !ok {
		o = &Order{OrderID: p.OrderID}
		s.orders[p.OrderID] = o
	}
	prevDriver := o.DriverRef

	if p.Status != "" {
		o.Status = p.Status
		if IsTerminal(p.Status) {
			o.AwaitingRating = p.Status == StatusDelivered
		}
	}
	if p.TrackingInfo != "" {
		o.TrackingInfo = p.TrackingInfo
	}
	if len(p.RestaurantAddress) > 0 {
		o.RestaurantAddress = p.RestaurantAddress
	}
	if len(p.CustomerAddress) > 0 {
		o.CustomerAddress = p.CustomerAddress
	}
	if p.DriverID != "" {
		o.DriverRef = p.DriverID
	} else if id, ok := driverIDFrom(p.DriverDetails); ok {
		o.DriverRef = id
	}
	if p.TotalAmount > 0 {
		o.TotalAmount = p.TotalAmount
	}
	if incomingAt.After(o.UpdatedAt) {
		o.UpdatedAt = incomingAt
	}
	driver := o.DriverRef
	s.mu.Unlock()

	if driver != "" && driver != prevDriver && s.DriverHook != nil {
		s.DriverHook(driver)
	}
	s.notifyPersist()
}

// Seed loads previously persisted orders into an empty table. Used once at
// startup before any push arrives; does not fire the persist hook.
func (s *Synchronizer) Seed(orders []Order) {
	s.mu.Lock()
	for i := range orders {
		o := orders[i]
		if o.OrderID == "" {
			continue
		}
		if _, ok := s.orders[o.OrderID]; !ok {
			s.orders[o.OrderID] = &o
		}
	}
	s.mu.Unlock()
}

// ApplySnapshot reconciles the local table against the authoritative list:
// locally tracked orders absent from the snapshot are removed (staleness
// cleanup), and snapshot-only fields are backfilled onto survivors.
func (s *Synchronizer) ApplySnapshot(snaps []OrderSnapshot) {
	present := make(map[string]struct{}, len(snaps))

	s.mu.Lock()
	for _, snap := range snaps {
		if snap.OrderID == "" {
			continue
		}
		present[snap.OrderID] = struct{}{}
		o, ok := s.orders[snap.OrderID]
		if !ok {
			o = &Order{OrderID: snap.OrderID}
			s.orders[snap.OrderID] = o
		}
		incomingAt := time.UnixMilli(snap.UpdatedAt)
		// The snapshot is authoritative only for fields the push stream
		// does not carry, unless it is also newer.
		if incomingAt.After(o.UpdatedAt) {
			if snap.Status != "" {
				o.Status = snap.Status
			}
			if snap.TrackingInfo != "" {
				o.TrackingInfo = snap.TrackingInfo
			}
			o.UpdatedAt = incomingAt
		}
		if o.Status == "" {
			o.Status = snap.Status
		}
		if len(snap.RestaurantAddress) > 0 && o.RestaurantAddress == nil {
			o.RestaurantAddress = snap.RestaurantAddress
		}
		if len(snap.CustomerAddress) > 0 && o.CustomerAddress == nil {
			o.CustomerAddress = snap.CustomerAddress
		}
		if snap.DriverID != "" && o.DriverRef == "" {
			o.DriverRef = snap.DriverID
		}
		if snap.TotalAmount > 0 {
			o.TotalAmount = snap.TotalAmount
		}
		if len(snap.OrderItems) > 0 {
			o.OrderItems = snap.OrderItems
		}
		if snap.Notes != "" {
			o.Notes = snap.Notes
		}
		if snap.PaymentMethod != "" {
			o.PaymentMethod = snap.PaymentMethod
		}
	}

	for id := range s.orders {
		if _, ok := present[id]; !ok {
			delete(s.orders, id)
			log.Printf("tracking: removed stale order %s", id)
		}
	}
	s.mu.Unlock()
	s.notifyPersist()
}

// Reconcile fetches the authoritative list and applies it. Wired to the
// orders transport's OnConnect hook, since pushes may have been missed
// while offline; also runs on the optional periodic schedule.
func (s *Synchronizer) Reconcile(ctx context.Context) error {
	if s.rest == nil {
		return nil
	}
	snaps, err := s.rest.FetchOrders(ctx, s.customerID)
	if err != nil {
		return fmt.Errorf("tracking: reconcile: %w", err)
	}
	s.ApplySnapshot(snaps)
	return nil
}

// Clear drops all tracked orders. Called when the transport gives up
// reconnecting: without a live push stream the table would only go stale.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	n := len(s.orders)
	s.orders = make(map[string]*Order)
	s.mu.Unlock()
	if n > 0 {
		log.Printf("tracking: cleared %d orders after connection loss", n)
		s.notifyPersist()
	}
}

// ClearDelivered drops a terminal order the UI has finished with (e.g. the
// rating prompt was dismissed).
func (s *Synchronizer) ClearDelivered(orderID string) {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	removed := ok && IsTerminal(o.Status)
	if removed {
		delete(s.orders, orderID)
	}
	s.mu.Unlock()
	if removed {
		s.notifyPersist()
	}
}

// notifyPersist hands a copy of the table to the persist hook, outside the
// lock so a slow subscriber cannot stall the push path.
func (s *Synchronizer) notifyPersist() {
	if s.PersistHook == nil {
		return
	}
	s.PersistHook(s.Orders())
}

// Order returns a copy of one tracked order.
func (s *Synchronizer) Order(orderID string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Orders returns copies of all tracked orders.
func (s *Synchronizer) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

func driverIDFrom(details map[string]any) (string, bool) {
	if details == nil {
		return "", false
	}
	for _, key := range []string{"driverId", "id"} {
		if v, ok := details[key].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
