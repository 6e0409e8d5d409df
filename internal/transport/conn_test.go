package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tommyle1310/flashfood-sync/internal/wire"
	"nhooyr.io/websocket"
)

// gatewayStub accepts one websocket client, pushes one envelope, and echoes
// the first client frame back on a channel.
type gatewayStub struct {
	srv      *httptest.Server
	tokens   chan string
	received chan wire.Envelope
}

func newGatewayStub(t *testing.T, pushEvent string, pushPayload interface{}) *gatewayStub {
	t.Helper()
	g := &gatewayStub{
		tokens:   make(chan string, 4),
		received: make(chan wire.Envelope, 4),
	}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.tokens <- r.URL.Query().Get("token")
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		if pushEvent != "" {
			raw, err := wire.Encode(pushEvent, pushPayload)
			if err != nil {
				return
			}
			if err := ws.Write(ctx, websocket.MessageText, raw); err != nil {
				return
			}
		}
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			env, err := wire.Decode(data)
			if err != nil {
				continue
			}
			g.received <- env
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gatewayStub) wsURL() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func TestConnDialSendReceive(t *testing.T) {
	stub := newGatewayStub(t, wire.EvNewMessage, wire.NewMessage{
		MessageID: "m1", RoomID: "room42", SenderID: "peer", Content: "hi",
	})

	conn, err := New(Opts{
		BaseURL:   stub.wsURL(),
		Namespace: NamespaceChat,
		Token:     "tok123",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var connects int
	conn.OnConnect(func() { connects++ })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Dial(ctx); err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if !conn.Connected() {
		t.Error("not connected after dial")
	}
	if connects != 1 {
		t.Errorf("connect hooks fired %d times, want 1", connects)
	}

	select {
	case token := <-stub.tokens:
		if token != "tok123" {
			t.Errorf("token on dial url = %q", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the dial")
	}

	select {
	case env := <-conn.Inbound():
		if env.Event != wire.EvNewMessage {
			t.Errorf("inbound event = %q", env.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pushed envelope never delivered")
	}

	if err := conn.Send(ctx, wire.EvSendMessage, wire.SendMessage{RoomID: "room42", Content: "yo", Type: "TEXT"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case env := <-stub.received:
		if env.Event != wire.EvSendMessage {
			t.Errorf("server saw event %q", env.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sent envelope never reached the server")
	}
}

func TestConnSendWhileDisconnected(t *testing.T) {
	conn, err := New(Opts{BaseURL: "ws://127.0.0.1:1", Namespace: NamespaceOrders})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := conn.Send(context.Background(), wire.EvSendMessage, nil); err == nil {
		t.Error("send on a never-dialed conn succeeded")
	}
}

func TestConnGiveUpClosesChannels(t *testing.T) {
	stub := newGatewayStub(t, "", nil)

	conn, err := New(Opts{
		BaseURL:     stub.wsURL(),
		Namespace:   NamespaceOrders,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		MaxAttempts: 2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Dial(ctx); err != nil {
		t.Fatalf("dial: %v", err)
	}

	// Kill the server so reconnect attempts can never succeed.
	stub.srv.CloseClientConnections()
	stub.srv.Close()

	select {
	case <-conn.GaveUp():
	case <-time.After(5 * time.Second):
		t.Fatal("gave-up signal never fired")
	}
	// The inbound channel closes with it.
	for {
		select {
		case _, ok := <-conn.Inbound():
			if !ok {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("inbound channel never closed")
		}
	}
}

func TestConnCloseStopsReconnect(t *testing.T) {
	stub := newGatewayStub(t, "", nil)

	conn, err := New(Opts{
		BaseURL:   stub.wsURL(),
		Namespace: NamespaceLocations,
		BaseDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Dial(ctx); err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if conn.Connected() {
		t.Error("connected after close")
	}
	select {
	case <-conn.GaveUp():
		t.Error("clean close raised the give-up signal")
	case <-time.After(100 * time.Millisecond):
	}
	if err := conn.Dial(ctx); err == nil {
		t.Error("dial after close succeeded")
	}
}
