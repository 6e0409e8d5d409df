// Package transport manages websocket connections to the FlashFood realtime
// gateway: one connection per logical namespace, with auth injection,
// bounded reconnect-with-backoff, and a terminal give-up signal.
package transport

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tommyle1310/flashfood-sync/internal/wire"
	"nhooyr.io/websocket"
)

// Gateway namespaces.
const (
	NamespaceChat      = "chat"
	NamespaceOrders    = "orders"
	NamespaceLocations = "locations"
)

// Conn is a single-namespace gateway connection. Inbound envelopes are
// delivered on a buffered channel; the channel closes when the connection is
// closed or reconnection gives up.
type Conn struct {
	baseURL   string
	namespace string
	token     string

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool
	closed    bool
	cancel    context.CancelFunc
	onConnect []func()

	recon   *reconnector
	inbound chan wire.Envelope
	gaveUp  chan struct{}
}

// Opts holds parameters for creating a Conn.
type Opts struct {
	BaseURL   string // gateway base URL (ws:// or wss://)
	Namespace string // NamespaceChat, NamespaceOrders, NamespaceLocations
	Token     string // bearer token injected into the dial URL

	BaseDelay   time.Duration // defaults to DefaultBaseDelay
	MaxDelay    time.Duration // defaults to DefaultMaxDelay
	MaxAttempts int           // defaults to DefaultMaxAttempts
}

// New creates a Conn. Dial must be called before Inbound delivers anything.
func New(opts Opts) (*Conn, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("transport: base URL is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("transport: namespace is required")
	}
	return &Conn{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		namespace: opts.Namespace,
		token:     opts.Token,
		recon:     newReconnector(opts.BaseDelay, opts.MaxDelay, opts.MaxAttempts),
		inbound:   make(chan wire.Envelope, 256),
		gaveUp:    make(chan struct{}),
	}, nil
}

// dialURL builds the namespace URL with the auth token attached.
func (c *Conn) dialURL() string {
	u := c.baseURL + "/" + c.namespace
	if c.token != "" {
		u += "?token=" + c.token
	}
	return u
}

// Dial establishes the connection and starts the read/reconnect loop.
func (c *Conn) Dial(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("transport: %s: already closed", c.namespace)
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ws, _, err := websocket.Dial(ctx, c.dialURL(), nil)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", c.namespace, err)
	}
	ws.SetReadLimit(1 << 20)

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.cancel = cancel
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()
	c.recon.markConnected()

	log.Printf("transport: %s connected", c.namespace)
	for _, h := range hooks {
		h()
	}

	go c.run(runCtx, ws)
	return nil
}

// OnConnect registers a hook fired after every successful (re)connect.
// Hooks registered after Dial fire from the next reconnect onward.
func (c *Conn) OnConnect(h func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, h)
	c.mu.Unlock()
}

// Connected reports whether the connection is currently up.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Inbound returns the channel of decoded gateway envelopes.
func (c *Conn) Inbound() <-chan wire.Envelope {
	return c.inbound
}

// GaveUp returns a channel that closes when reconnection has exhausted its
// attempt bound. Consumers clear derived state rather than retrying forever.
func (c *Conn) GaveUp() <-chan struct{} {
	return c.gaveUp
}

// Send marshals an envelope and writes it to the gateway. Returns an error
// when disconnected; callers that must not drop sends buffer and retry on
// the OnConnect hook.
func (c *Conn) Send(ctx context.Context, event string, payload interface{}) error {
	c.mu.Lock()
	ws := c.ws
	up := c.connected
	c.mu.Unlock()
	if !up || ws == nil {
		return fmt.Errorf("transport: %s: not connected", c.namespace)
	}
	b, err := wire.Encode(event, payload)
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("transport: %s: send %s: %w", c.namespace, event, err)
	}
	return nil
}

// Close tears down the connection and stops the reconnect loop. Owned
// goroutines are cancelled before Close returns.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	ws := c.ws
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Close(websocket.StatusNormalClosure, "client shutdown")
	}
	return nil
}

// run reads envelopes until the connection drops, then reconnects with
// backoff. Exhausting the attempt bound closes gaveUp and inbound.
func (c *Conn) run(ctx context.Context, ws *websocket.Conn) {
	for {
		err := c.readLoop(ctx, ws)

		c.mu.Lock()
		closedByUs := c.closed
		c.connected = false
		c.mu.Unlock()

		if closedByUs || ctx.Err() != nil {
			close(c.inbound)
			return
		}
		log.Printf("transport: %s disconnected: %v", c.namespace, err)

		ws = c.reconnect(ctx)
		if ws == nil {
			// Bound exhausted or shutdown raced the reconnect.
			c.mu.Lock()
			gaveUp := !c.closed
			c.mu.Unlock()
			if gaveUp {
				log.Printf("transport: %s giving up after %d attempts", c.namespace, c.recon.maxAttempts)
				close(c.gaveUp)
			}
			close(c.inbound)
			return
		}
	}
}

// readLoop decodes envelopes until a read error.
func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		env, err := wire.Decode(data)
		if err != nil {
			// Undecodable frames are logged and dropped, never fatal.
			log.Printf("transport: %s: %v", c.namespace, err)
			continue
		}
		select {
		case c.inbound <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reconnect retries the dial with backoff. Returns the new connection, or
// nil when the bound is exhausted or the Conn was closed.
func (c *Conn) reconnect(ctx context.Context) *websocket.Conn {
	for c.recon.shouldReconnect() {
		delay := c.recon.nextDelay()
		log.Printf("transport: %s reconnecting in %s (attempt %d/%d)",
			c.namespace, delay.Round(time.Millisecond), c.recon.attempt, c.recon.maxAttempts)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		ws, _, err := websocket.Dial(dialCtx, c.dialURL(), nil)
		cancel()
		if err != nil {
			continue
		}
		ws.SetReadLimit(1 << 20)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			ws.Close(websocket.StatusNormalClosure, "client shutdown")
			return nil
		}
		c.ws = ws
		c.connected = true
		hooks := append([]func(){}, c.onConnect...)
		c.mu.Unlock()
		c.recon.markConnected()

		log.Printf("transport: %s reconnected", c.namespace)
		for _, h := range hooks {
			h()
		}
		return ws
	}
	return nil
}
