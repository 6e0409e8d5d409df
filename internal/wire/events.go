package wire

import "fmt"

// Gateway event names. These are the verbatim strings the gateway speaks;
// renaming any of them breaks interoperability.
const (
	// Chat namespace, client to server.
	EvStartSupportChat   = "startSupportChat"
	EvSendSupportMessage = "sendSupportMessage"
	EvStartChat          = "startChat"
	EvSendMessage        = "sendMessage"
	EvGetChatHistory     = "getChatHistory"
	EvGetSupportHistory  = "getSupportHistory"

	// Chat namespace, server to client.
	EvStartSupportChatResponse = "startSupportChatResponse"
	EvChatbotMessage           = "chatbotMessage"
	EvAgentMessage             = "agentMessage"
	EvChatStarted              = "chatStarted"
	EvNewMessage               = "newMessage"
	EvChatHistory              = "chatHistory"
	EvSupportHistory           = "supportHistory"

	// Order tracking namespace.
	EvNotifyOrderStatus = "notifyOrderStatus"

	// Location namespace.
	EvSubscribeDriver = "subscribeToDriverLocation"
	EvDriverLocation  = "driverCurrentLocation"
)

// StartSupportChat requests a new support or chatbot session.
type StartSupportChat struct {
	Type string `json:"type"` // SUPPORT or CHATBOT
}

// StartSupportChatResponse carries the server-issued support session.
type StartSupportChatResponse struct {
	SessionID   string `json:"sessionId"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Category    string `json:"category,omitempty"`
	SLADeadline string `json:"slaDeadline,omitempty"`
}

// SendSupportMessage sends a message into a support/chatbot session.
type SendSupportMessage struct {
	SessionID         string `json:"sessionId"`
	Message           string `json:"message"`
	Type              string `json:"type"`
	IsOptionSelection bool   `json:"isOptionSelection,omitempty"`
}

// ChatbotMessage is a scripted bot reply.
type ChatbotMessage struct {
	SessionID      string   `json:"sessionId"`
	Message        string   `json:"message"`
	Type           string   `json:"type"`
	Options        []string `json:"options,omitempty"`
	QuickReplies   []string `json:"quickReplies,omitempty"`
	FormFields     []string `json:"formFields,omitempty"`
	FollowUpPrompt string   `json:"followUpPrompt,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// AgentMessage is a human agent reply; the first one for a session triggers
// the chatbot to agent hand-off.
type AgentMessage struct {
	SessionID   string `json:"sessionId"`
	AgentID     string `json:"agentId"`
	AgentName   string `json:"agentName"`
	Message     string `json:"message"`
	MessageType string `json:"messageType"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// StartChat requests an order-scoped room with another user.
type StartChat struct {
	WithUserID string `json:"withUserId"`
	Type       string `json:"type"` // ORDER
	OrderID    string `json:"orderId"`
}

// ChatStarted confirms an order chat with the server-issued room id.
type ChatStarted struct {
	ChatID   string         `json:"chatId"`
	DBRoomID string         `json:"dbRoomId"`
	WithUser map[string]any `json:"withUser,omitempty"`
	Type     string         `json:"type"`
	OrderID  string         `json:"orderId"`
}

// SendMessage sends a message into an order room.
type SendMessage struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// NewMessage is an inbound order-room message (including server echoes of
// our own sends). Field names vary by gateway build, so alternates are kept.
type NewMessage struct {
	MessageID string         `json:"messageId"`
	ID        string         `json:"id"` // alternate of messageId
	RoomID    string         `json:"roomId"`
	ChatID    string         `json:"chatId"` // alternate of roomId
	SenderID  string         `json:"senderId"`
	From      string         `json:"from"` // alternate of senderId
	Content   string         `json:"content"`
	Message   string         `json:"message"` // alternate of content
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// GetChatHistory requests the message history of an order room.
type GetChatHistory struct {
	RoomID string `json:"roomId"`
}

// ChatHistory is the full history of an order room.
type ChatHistory struct {
	RoomID   string       `json:"roomId"`
	Messages []NewMessage `json:"messages"`
}

// GetSupportHistory requests the message history of a support session.
type GetSupportHistory struct {
	SessionID string `json:"sessionId"`
}

// SupportHistory is the full history of a support session.
type SupportHistory struct {
	SessionID string       `json:"sessionId"`
	Messages  []NewMessage `json:"messages"`
}

// NotifyOrderStatus is a partial order-state push.
type NotifyOrderStatus struct {
	OrderID           string         `json:"orderId"`
	Status            string         `json:"status"`
	TrackingInfo      string         `json:"tracking_info"`
	RestaurantAddress map[string]any `json:"restaurantAddress,omitempty"`
	CustomerAddress   map[string]any `json:"customerAddress,omitempty"`
	DriverDetails     map[string]any `json:"driverDetails,omitempty"`
	DriverID          string         `json:"driverId,omitempty"`
	TotalAmount       float64        `json:"total_amount,omitempty"`
	UpdatedAt         int64          `json:"updated_at"`
}

// SubscribeDriver targets the location stream at one driver.
type SubscribeDriver struct {
	DriverID string `json:"driverId"`
}

// DriverLocation is a driver position/ETA push.
type DriverLocation struct {
	DriverID string  `json:"driverId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	ETA      float64 `json:"eta"` // minutes
}

// Validate checks that an inbound payload carries the identifiers the
// engine needs. Payloads failing validation are dropped at the boundary,
// never partially applied.

func (p StartSupportChatResponse) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("wire: startSupportChatResponse missing sessionId")
	}
	return nil
}

func (p ChatbotMessage) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("wire: chatbotMessage missing sessionId")
	}
	return nil
}

func (p AgentMessage) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("wire: agentMessage missing sessionId")
	}
	return nil
}

func (p ChatStarted) Validate() error {
	if p.ChatID == "" && p.DBRoomID == "" {
		return fmt.Errorf("wire: chatStarted missing chatId and dbRoomId")
	}
	return nil
}

func (p NewMessage) Validate() error {
	if p.Room() == "" {
		return fmt.Errorf("wire: newMessage missing roomId")
	}
	return nil
}

func (p ChatHistory) Validate() error {
	if p.RoomID == "" {
		return fmt.Errorf("wire: chatHistory missing roomId")
	}
	return nil
}

func (p SupportHistory) Validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("wire: supportHistory missing sessionId")
	}
	return nil
}

func (p NotifyOrderStatus) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("wire: notifyOrderStatus missing orderId")
	}
	return nil
}

func (p DriverLocation) Validate() error {
	if p.DriverID == "" {
		return fmt.Errorf("wire: driverCurrentLocation missing driverId")
	}
	return nil
}

// Room returns the room id, preferring roomId over the chatId alternate.
func (p NewMessage) Room() string {
	if p.RoomID != "" {
		return p.RoomID
	}
	return p.ChatID
}

// Sender returns the sender id, preferring senderId over the from alternate.
func (p NewMessage) Sender() string {
	if p.SenderID != "" {
		return p.SenderID
	}
	return p.From
}

// Body returns the message text, preferring content over the message alternate.
func (p NewMessage) Body() string {
	if p.Content != "" {
		return p.Content
	}
	return p.Message
}

// MsgID returns the message id, preferring messageId over the id alternate.
func (p NewMessage) MsgID() string {
	if p.MessageID != "" {
		return p.MessageID
	}
	return p.ID
}
