package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/camden-git/faceattend/recognition"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	EventAttendance = "attendance"
	EventEnrollment = "enrollment"
	EventHello      = "hello"
)

// Event is a message sent to websocket clients
type Event struct {
	Type      string `json:"type"`
	ID        int64  `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
	Client    string `json:"client,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans attendance events out to websocket clients.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	origins    []string
}

var _ recognition.AttendanceNotifier = (*Hub)(nil)

// NewHub accepts websocket upgrades from the same host and from
// allowedOrigins. "*" allows every origin.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		origins:    allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin lets through requests without an Origin header, which only
// non-browser clients send.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	log.Printf("realtime: rejected websocket from origin %s", origin)
	return false
}

// Run dispatches until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					log.Printf("realtime: client %s too slow, disconnecting", client.id)
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		log.Printf("realtime: failed to marshal event: %v", err)
		return
	}
	select {
	case h.broadcast <- encoded:
	default:
		log.Printf("realtime: dropping event, broadcast channel full")
	}
}

// AttendanceRecorded publishes a stored attendance event.
func (h *Hub) AttendanceRecorded(ev recognition.AttendanceEvent) {
	ts := ev.At.Unix()
	if ev.At.IsZero() {
		ts = 0
	}
	h.Broadcast(Event{Type: EventAttendance, ID: ev.IdentityID, Name: ev.Name, Date: ev.Date, Time: ev.Time, Timestamp: ts})
}

// EnrollmentCompleted publishes a successful enrollment.
func (h *Hub) EnrollmentCompleted(id recognition.Identity) {
	h.Broadcast(Event{Type: EventEnrollment, ID: id.ID, Name: id.Name})
}

// ServeWS upgrades the connection and registers a client
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: websocket upgrade error: %v", err)
		return
	}
	client := &Client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 256)}
	hello, _ := json.Marshal(Event{Type: EventHello, Client: client.id, Timestamp: time.Now().Unix()})
	client.send <- hello

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// writer
	go func() {
		for msg := range client.send {
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		client.conn.Close()
	}()

	// reader (just consume pings/close)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
