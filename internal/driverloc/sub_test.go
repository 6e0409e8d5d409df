package driverloc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tommyle1310/flashfood-sync/internal/wire"
)

type mockGateway struct {
	mu   sync.Mutex
	subs []string
}

func (g *mockGateway) Send(_ context.Context, event string, payload interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if event == wire.EvSubscribeDriver {
		g.subs = append(g.subs, payload.(wire.SubscribeDriver).DriverID)
	}
	return nil
}

func (g *mockGateway) Connected() bool { return true }

func (g *mockGateway) subscriptions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.subs...)
}

type mockNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *mockNotifier) Notify(_, _ string) {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

func (n *mockNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func newManager(t *testing.T, window time.Duration) (*Manager, *mockGateway, *mockNotifier) {
	t.Helper()
	gw := &mockGateway{}
	notifier := &mockNotifier{}
	m, err := New(Opts{
		Gateway:          gw,
		Notifier:         notifier,
		ArrivalThreshold: 5,
		InactivityWindow: window,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, gw, notifier
}

func loc(driver string, eta float64) wire.DriverLocation {
	return wire.DriverLocation{DriverID: driver, Lat: 10.7, Lng: 106.6, ETA: eta}
}

func TestArrivalNotifiedOncePerBurst(t *testing.T) {
	m, _, notifier := newManager(t, time.Hour)
	if err := m.Subscribe(context.Background(), "d1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.HandlePush(loc("d1", 12))
	if notifier.count() != 0 {
		t.Fatal("notified above threshold")
	}

	m.HandlePush(loc("d1", 4))
	m.HandlePush(loc("d1", 3))
	m.HandlePush(loc("d1", 2))
	if got := notifier.count(); got != 1 {
		t.Errorf("notified %d times in one burst, want 1", got)
	}

	// ETA climbing back above the threshold does not rearm the alert.
	m.HandlePush(loc("d1", 8))
	m.HandlePush(loc("d1", 4))
	if got := notifier.count(); got != 1 {
		t.Errorf("eta bounce rearmed the alert: %d notifications", got)
	}
}

func TestInactivityWindowRearmsAlert(t *testing.T) {
	m, _, notifier := newManager(t, 30*time.Millisecond)
	if err := m.Subscribe(context.Background(), "d1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.HandlePush(loc("d1", 3))
	if notifier.count() != 1 {
		t.Fatalf("first arrival not notified")
	}

	// Silence past the window clears the flag.
	deadline := time.After(2 * time.Second)
	for {
		if st, ok := m.State(); ok && !st.NotifiedArrival {
			break
		}
		select {
		case <-deadline:
			t.Fatal("notified flag never cleared after silence")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.HandlePush(loc("d1", 2))
	if got := notifier.count(); got != 2 {
		t.Errorf("fresh burst after silence notified %d times total, want 2", got)
	}
}

func TestPushForInactiveDriverDropped(t *testing.T) {
	m, _, notifier := newManager(t, time.Hour)
	if err := m.Subscribe(context.Background(), "d1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.HandlePush(loc("d2", 1))

	if st, _ := m.State(); st.DriverID != "d1" || st.ETAMinutes != 0 {
		t.Errorf("stale driver push mutated state: %+v", st)
	}
	if notifier.count() != 0 {
		t.Error("stale driver push notified")
	}
}

func TestSubscribeSwitchesDriver(t *testing.T) {
	m, gw, _ := newManager(t, time.Hour)
	ctx := context.Background()

	if err := m.Subscribe(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Subscribe(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Subscribe(ctx, "d2"); err != nil {
		t.Fatal(err)
	}

	// Same-driver resubscribe did not hit the wire again.
	if subs := gw.subscriptions(); len(subs) != 2 || subs[0] != "d1" || subs[1] != "d2" {
		t.Errorf("wire subscriptions = %v, want [d1 d2]", subs)
	}
	if st, ok := m.State(); !ok || st.DriverID != "d2" {
		t.Errorf("active driver = %+v", st)
	}
}

func TestStaleTimerCannotClearNewSubscription(t *testing.T) {
	m, _, notifier := newManager(t, 20*time.Millisecond)
	ctx := context.Background()

	if err := m.Subscribe(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	m.HandlePush(loc("d1", 3))

	// Switch before d1's window elapses; d1's timer must not touch d2.
	if err := m.Subscribe(ctx, "d2"); err != nil {
		t.Fatal(err)
	}
	m.HandlePush(loc("d2", 2))
	if notifier.count() != 2 {
		t.Fatalf("d2 arrival not notified")
	}

	time.Sleep(50 * time.Millisecond)
	// d2's own window has also elapsed by now; what matters is that the
	// manager still points at d2 and the state is consistent.
	if st, ok := m.State(); !ok || st.DriverID != "d2" {
		t.Errorf("state after stale timer = %+v, ok=%v", st, ok)
	}
}

func TestUnsubscribe(t *testing.T) {
	m, _, _ := newManager(t, time.Hour)
	if err := m.Subscribe(context.Background(), "d1"); err != nil {
		t.Fatal(err)
	}
	m.Unsubscribe()
	if _, ok := m.State(); ok {
		t.Error("state present after unsubscribe")
	}
}

func TestRunConsumesPushes(t *testing.T) {
	m, _, notifier := newManager(t, time.Hour)
	if err := m.Subscribe(context.Background(), "d1"); err != nil {
		t.Fatal(err)
	}

	inbound := make(chan wire.Envelope, 4)
	inbound <- envelope(t, wire.EvDriverLocation, loc("d1", 3))
	inbound <- wire.Envelope{Event: wire.EvDriverLocation, Data: []byte(`{"driverId":7}`)}
	inbound <- wire.Envelope{Event: "somethingElse", Data: []byte(`{}`)}
	close(inbound)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.Run(ctx, inbound)

	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.count())
	}
	// Channel close unsubscribes.
	if _, ok := m.State(); ok {
		t.Error("subscription survived channel close")
	}
}

func envelope(t *testing.T, event string, payload interface{}) wire.Envelope {
	t.Helper()
	raw, err := wire.Encode(event, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	env, err := wire.Decode(raw)
	if err != nil {
		t.Fatalf("decode %s: %v", event, err)
	}
	return env
}
