package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/journal-sentinel/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeMasking is sent whenever text was run through the masker
	EventTypeMasking EventType = "masking"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping message
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// MaskingEvent tells the UI that a text was protected. It never carries
// the text itself.
type MaskingEvent struct {
	RequestID    string               `json:"request_id"`
	Source       string               `json:"source"`
	Provider     string               `json:"provider,omitempty"`
	Findings     []privacy.Finding    `json:"findings"`
	Stats        privacy.MaskingStats `json:"stats"`
	ProcessingMS float64              `json:"processing_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	PIIRequests      int64  `json:"pii_requests"`
	MaskedSpans      int64  `json:"masked_spans"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu sync.Mutex
	// nil means every event type
	subscriptions map[EventType]bool
}

func (c *Client) subscribe(events []EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(events) == 0 {
		c.subscriptions = nil
		return
	}
	c.subscriptions = make(map[EventType]bool, len(events))
	for _, e := range events {
		c.subscriptions[e] = true
	}
}

func (c *Client) wants(t EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions == nil || c.subscriptions[t]
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	DroppedClients     int64     `json:"dropped_clients"`
	LastConnectionTime time.Time `json:"last_connection_time"`
	LastBroadcastTime  time.Time `json:"last_broadcast_time"`
}
