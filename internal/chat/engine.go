package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/tommyle1310/flashfood-sync/internal/wire"
)

// Gateway is the outbound half of the chat transport. *transport.Conn
// satisfies it; tests inject a mock.
type Gateway interface {
	Send(ctx context.Context, event string, payload interface{}) error
	Connected() bool
}

// Notifier surfaces user-facing alerts (agent hand-off). A nil notifier
// disables alerts.
type Notifier interface {
	Notify(title, body string)
}

// Engine is the chat synchronization loop. All wire events and user actions
// are processed sequentially on one goroutine; handlers receive current
// state through the store rather than capturing it, so no long-lived
// closure can act on stale state.
type Engine struct {
	store       *Store
	ingress     *Ingress
	gw          Gateway
	localUserID string
	notifier    Notifier

	inbound  <-chan wire.Envelope
	commands chan func(context.Context)
	outbox   []outboxEntry
	observer func(Message)
}

// outboxEntry is a buffered user send awaiting a live connection.
type outboxEntry struct {
	event   string
	payload interface{}
}

// EngineOpts holds parameters for creating an Engine.
type EngineOpts struct {
	Store       *Store
	Gateway     Gateway
	Inbound     <-chan wire.Envelope
	LocalUserID string
	Notifier    Notifier      // optional
	Observer    func(Message) // optional; called for every remotely admitted message
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("chat: engine: store is required")
	}
	if opts.Inbound == nil {
		return nil, fmt.Errorf("chat: engine: inbound channel is required")
	}
	if opts.LocalUserID == "" {
		return nil, fmt.Errorf("chat: engine: local user id is required")
	}
	return &Engine{
		store:       opts.Store,
		ingress:     NewIngress(opts.Store, opts.LocalUserID),
		gw:          opts.Gateway,
		localUserID: opts.LocalUserID,
		notifier:    opts.Notifier,
		observer:    opts.Observer,
		inbound:     opts.Inbound,
		commands:    make(chan func(context.Context), 64),
	}, nil
}

// Store exposes the engine's store for read-only consumers (dashboard, CLI).
func (e *Engine) Store() *Store { return e.store }

// Run pumps wire events and user commands until the context is cancelled or
// the inbound channel closes (transport shut down or gave up reconnecting).
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-e.inbound:
			if !ok {
				log.Printf("chat: engine: transport channel closed")
				return nil
			}
			e.dispatch(ctx, env)
		case cmd := <-e.commands:
			cmd(ctx)
		}
	}
}

// enqueue posts a user action onto the engine loop.
func (e *Engine) enqueue(cmd func(context.Context)) {
	select {
	case e.commands <- cmd:
	default:
		// Command buffer full; run a blocking send rather than drop a
		// user-initiated action.
		e.commands <- cmd
	}
}

// dispatch decodes and applies one inbound envelope. Unknown events and
// payloads failing validation are logged and dropped, never partially
// applied.
func (e *Engine) dispatch(ctx context.Context, env wire.Envelope) {
	switch env.Event {
	case wire.EvStartSupportChatResponse:
		var p wire.StartSupportChatResponse
		if !decode(env, &p) || logDrop(p.Validate()) {
			return
		}
		e.handleSessionStarted(ctx, p)
	case wire.EvChatbotMessage:
		var p wire.ChatbotMessage
		if !decode(env, &p) || logDrop(p.Validate()) {
			return
		}
		if msg, ok := e.ingress.IngestChatbotMessage(p); ok {
			e.observe(msg)
		}
	case wire.EvAgentMessage:
		var p wire.AgentMessage
		if !decode(env, &p) || logDrop(p.Validate()) {
			return
		}
		e.handleAgentMessage(p)
	case wire.EvChatStarted:
		var p wire.ChatStarted
		if !decode(env, &p) || logDrop(p.Validate()) {
			return
		}
		e.handleChatStarted(ctx, p)
	case wire.EvNewMessage:
		var p wire.NewMessage
		if !decode(env, &p) {
			return
		}
		// A replay of our own sendSupportMessage arrives without a room id;
		// route it to the session's current room.
		if sess := e.store.Session(); p.Room() == "" && sess != nil {
			roomID := ChatbotRoomID(sess.SessionID)
			if sess.ChatMode == ModeAgent {
				roomID = SupportRoomID(sess.SessionID)
			}
			if msg, ok := e.ingress.IngestSupportEcho(roomID, p); ok {
				e.observe(msg)
			}
			return
		}
		if msg, ok := e.ingress.IngestOrderMessage(p); ok {
			e.observe(msg)
		}
	case wire.EvChatHistory:
		var p wire.ChatHistory
		if !decode(env, &p) || logDrop(p.Validate()) {
			return
		}
		e.store.ReplaceMessages(p.RoomID, e.ingress.HistoryMessages(p.RoomID, p.Messages))
	case wire.EvSupportHistory:
		var p wire.SupportHistory
		if !decode(env, &p) || logDrop(p.Validate()) {
			return
		}
		e.handleSupportHistory(p)
	default:
		log.Printf("chat: engine: ignoring event %q", env.Event)
	}
}

// handleSessionStarted resolves the pending support/chatbot room to the
// server-issued session id and requests history.
func (e *Engine) handleSessionStarted(ctx context.Context, p wire.StartSupportChatResponse) {
	t := SessionChatbot
	mode := SessionChatbot
	if p.Type == string(SessionSupport) {
		t = SessionSupport
		mode = ModeAgent
	}

	sess := SupportSession{
		SessionID: p.SessionID,
		ChatMode:  mode,
		Status:    "ACTIVE",
		Priority:  p.Priority,
		Category:  p.Category,
	}
	if p.SLADeadline != "" {
		if dl, err := time.Parse(time.RFC3339, p.SLADeadline); err == nil {
			sess.SLADeadline = &dl
		}
	}
	e.store.SetSession(sess)

	roomID := ResolveRoomID(t, KnownIDs{SessionID: p.SessionID})
	pending := PendingRoomID(t)
	e.store.MigrateEchoes(pending, roomID)
	e.store.MigrateRoom(pending, roomID)
	e.store.AddRoom(Room{ID: roomID, Type: t})
	e.store.SetActiveRoom(roomID)

	e.trySend(ctx, wire.EvGetSupportHistory, wire.GetSupportHistory{SessionID: p.SessionID})
	e.drainOutbox(ctx)
}

// handleAgentMessage applies the hand-off on a session match, then admits
// the message through the normal ingress path.
func (e *Engine) handleAgentMessage(p wire.AgentMessage) {
	sess := e.store.Session()
	if sess == nil || sess.SessionID != p.SessionID {
		log.Printf("chat: engine: agentMessage for unknown session %q dropped", p.SessionID)
		return
	}
	Handoff(e.store, p.SessionID)
	if msg, ok := e.ingress.IngestAgentMessage(p); ok {
		e.observe(msg)
		if e.notifier != nil {
			e.notifier.Notify("Support agent joined", fmt.Sprintf("%s: %s", p.AgentName, p.Message))
		}
	}
}

// observe forwards an admitted message to the optional observer.
func (e *Engine) observe(msg Message) {
	if e.observer != nil {
		e.observer(msg)
	}
}

// handleChatStarted resolves the pending ORDER room to the server room id.
func (e *Engine) handleChatStarted(ctx context.Context, p wire.ChatStarted) {
	roomID := p.DBRoomID
	if roomID == "" {
		roomID = p.ChatID
	}
	pending := PendingRoomID(SessionOrder)
	e.store.MigrateEchoes(pending, roomID)
	e.store.MigrateRoom(pending, roomID)
	e.store.AddRoom(Room{ID: roomID, Type: SessionOrder, OrderID: p.OrderID})
	e.store.SetActiveRoom(roomID)

	e.trySend(ctx, wire.EvGetChatHistory, wire.GetChatHistory{RoomID: roomID})
	e.drainOutbox(ctx)
}

// handleSupportHistory replaces the history of whichever support-family room
// the session is currently in.
func (e *Engine) handleSupportHistory(p wire.SupportHistory) {
	sess := e.store.Session()
	if sess == nil || sess.SessionID != p.SessionID {
		log.Printf("chat: engine: supportHistory for unknown session %q dropped", p.SessionID)
		return
	}
	roomID := ChatbotRoomID(p.SessionID)
	if sess.ChatMode == ModeAgent {
		roomID = SupportRoomID(p.SessionID)
	}
	e.store.ReplaceMessages(roomID, e.ingress.HistoryMessages(roomID, p.Messages))
}

// StartSupportChat opens a support or chatbot session. A pending room
// buffers anything sent before the server responds.
func (e *Engine) StartSupportChat(t SessionType) {
	e.enqueue(func(ctx context.Context) {
		pending := PendingRoomID(t)
		e.store.AddRoom(Room{ID: pending, Type: t})
		e.store.SetActiveRoom(pending)
		e.trySend(ctx, wire.EvStartSupportChat, wire.StartSupportChat{Type: string(t)})
	})
}

// SendSupportMessage optimistically admits a support/chatbot message and
// forwards it to the gateway.
func (e *Engine) SendSupportMessage(text string, isOption bool) {
	e.enqueue(func(ctx context.Context) {
		sess := e.store.Session()
		if sess == nil {
			e.admitLocal(PendingRoomID(SessionChatbot), text)
			// Session id not issued yet; the wire send waits for
			// startSupportChatResponse.
			e.outbox = append(e.outbox, outboxEntry{
				event:   wire.EvSendSupportMessage,
				payload: deferredSupportSend{engine: e, content: text, isOption: isOption},
			})
			return
		}
		roomID := ChatbotRoomID(sess.SessionID)
		if sess.ChatMode == ModeAgent {
			roomID = SupportRoomID(sess.SessionID)
		}
		e.admitLocal(roomID, text)
		e.trySend(ctx, wire.EvSendSupportMessage, wire.SendSupportMessage{
			SessionID:         sess.SessionID,
			Message:           text,
			Type:              string(KindText),
			IsOptionSelection: isOption,
		})
	})
}

// StartOrderChat opens a per-order room with another user.
func (e *Engine) StartOrderChat(withUserID, orderID string) {
	e.enqueue(func(ctx context.Context) {
		pending := PendingRoomID(SessionOrder)
		e.store.AddRoom(Room{ID: pending, Type: SessionOrder, OrderID: orderID})
		e.store.SetActiveRoom(pending)
		e.trySend(ctx, wire.EvStartChat, wire.StartChat{
			WithUserID: withUserID,
			Type:       string(SessionOrder),
			OrderID:    orderID,
		})
	})
}

// SendOrderMessage optimistically admits a message into an ORDER room and
// forwards it. The store shows the message immediately; the server echo is
// discarded by the ingress dedup step.
func (e *Engine) SendOrderMessage(roomID, text string) {
	e.enqueue(func(ctx context.Context) {
		if roomID == "" {
			roomID = e.store.ActiveRoom()
		}
		if roomID == "" {
			log.Printf("chat: engine: send with no active room dropped")
			return
		}
		e.admitLocal(roomID, text)
		if IsPending(roomID) {
			// Room id not issued yet; the wire send waits for chatStarted.
			e.outbox = append(e.outbox, outboxEntry{
				event:   wire.EvSendMessage,
				payload: deferredOrderSend{engine: e, content: text},
			})
			return
		}
		e.trySend(ctx, wire.EvSendMessage, wire.SendMessage{
			RoomID:  roomID,
			Content: text,
			Type:    string(KindText),
		})
	})
}

// deferredPayload is an outbox payload whose wire form is not known until a
// server response fills in an identifier.
type deferredPayload interface {
	resolve() (interface{}, bool)
}

// deferredOrderSend resolves the room id at flush time, after chatStarted
// has replaced the pending placeholder.
type deferredOrderSend struct {
	engine  *Engine
	content string
}

// resolve builds the concrete payload, or ok=false if still pending.
func (d deferredOrderSend) resolve() (interface{}, bool) {
	roomID := d.engine.store.ActiveRoom()
	if roomID == "" || IsPending(roomID) {
		return nil, false
	}
	return wire.SendMessage{RoomID: roomID, Content: d.content, Type: string(KindText)}, true
}

// deferredSupportSend resolves the session id at flush time, after
// startSupportChatResponse has issued one.
type deferredSupportSend struct {
	engine   *Engine
	content  string
	isOption bool
}

func (d deferredSupportSend) resolve() (interface{}, bool) {
	sess := d.engine.store.Session()
	if sess == nil {
		return nil, false
	}
	return wire.SendSupportMessage{
		SessionID:         sess.SessionID,
		Message:           d.content,
		Type:              string(KindText),
		IsOptionSelection: d.isOption,
	}, true
}

// SelectRoom moves the active room pointer (resets its unread counter).
func (e *Engine) SelectRoom(roomID string) {
	e.enqueue(func(ctx context.Context) {
		e.store.SetActiveRoom(roomID)
	})
}

// CloseSupportSession ends the support session. Rooms and history persist;
// only the session descriptor ends.
func (e *Engine) CloseSupportSession() {
	e.enqueue(func(ctx context.Context) {
		if sess := e.store.Session(); sess != nil {
			sess.Status = "ENDED"
			e.store.SetSession(*sess)
		}
		e.store.ClearSession()
	})
}

// RequestHistory re-fetches a room's authoritative history.
func (e *Engine) RequestHistory(roomID string) {
	e.enqueue(func(ctx context.Context) {
		if IsPending(roomID) {
			return
		}
		if sessID := SessionIDOf(roomID); sessID != roomID {
			e.trySend(ctx, wire.EvGetSupportHistory, wire.GetSupportHistory{SessionID: sessID})
			return
		}
		e.trySend(ctx, wire.EvGetChatHistory, wire.GetChatHistory{RoomID: roomID})
	})
}

// FlushOutbox retries buffered sends. Wired to the transport's OnConnect
// hook so queued sends drain on every reconnect.
func (e *Engine) FlushOutbox() {
	e.enqueue(e.drainOutbox)
}

// drainOutbox retries buffered sends on the engine loop. Also runs from the
// room-resolution handlers, so a deferred send goes out as soon as the
// server issues the missing identifier rather than waiting for a reconnect.
func (e *Engine) drainOutbox(ctx context.Context) {
	pending := e.outbox
	e.outbox = nil
	for _, entry := range pending {
		payload := entry.payload
		if d, ok := payload.(deferredPayload); ok {
			resolved, ready := d.resolve()
			if !ready {
				e.outbox = append(e.outbox, entry)
				continue
			}
			payload = resolved
		}
		e.trySend(ctx, entry.event, payload)
	}
}

// admitLocal admits an optimistic local message and registers its content
// in the pending-echo set.
func (e *Engine) admitLocal(roomID, text string) {
	e.store.AddMessage(Message{
		MessageID: fmt.Sprintf("local_%d", time.Now().UnixNano()),
		RoomID:    roomID,
		SenderID:  e.localUserID,
		Content:   text,
		Kind:      KindText,
		Timestamp: time.Now(),
	})
	e.store.RegisterEcho(roomID, text)
}

// trySend forwards an event to the gateway, buffering it in the outbox when
// the connection is down or the write fails. A user-initiated send is never
// silently dropped.
func (e *Engine) trySend(ctx context.Context, event string, payload interface{}) {
	if e.gw == nil || !e.gw.Connected() {
		log.Printf("chat: engine: %s buffered while disconnected", event)
		e.outbox = append(e.outbox, outboxEntry{event: event, payload: payload})
		return
	}
	if err := e.gw.Send(ctx, event, payload); err != nil {
		log.Printf("chat: engine: %s failed, buffered for retry: %v", event, err)
		e.outbox = append(e.outbox, outboxEntry{event: event, payload: payload})
	}
}

// decode unmarshals an envelope payload, logging and dropping bad frames.
func decode(env wire.Envelope, v interface{}) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		log.Printf("chat: engine: bad %s payload dropped: %v", env.Event, err)
		return false
	}
	return true
}

// logDrop logs a validation failure and reports whether the event drops.
func logDrop(err error) bool {
	if err != nil {
		log.Printf("chat: engine: %v", err)
		return true
	}
	return false
}
