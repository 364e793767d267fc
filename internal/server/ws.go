package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/kayteedberserker/oreblogda-sub000/internal/store"
	"github.com/kayteedberserker/oreblogda-sub000/internal/war"
)

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	MsgWarUpdate = "war_update"
	MsgSubscribe = "subscribe"
	MsgError     = "error"
)

// Client is one live scoreboard viewer.
type Client struct {
	ID    string
	WarID string
	conn  *websocket.Conn
	send  chan WSMessage
}

// WarSource looks up the current state of a war by pair key.
type WarSource interface {
	Get(ctx context.Context, warID string) (*store.War, error)
}

// Hub fans war updates out to every viewer subscribed to that war.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*Client
	rooms        map[string]map[string]*Client
	wars         WarSource
	metrics      *Metrics
	pingInterval time.Duration
	logger       *slog.Logger
}

func NewHub(wars WarSource, pingInterval time.Duration, metrics *Metrics, logger *slog.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*Client),
		rooms:        make(map[string]map[string]*Client),
		wars:         wars,
		metrics:      metrics,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

var _ war.Observer = (*Hub)(nil)

// ServeHTTP upgrades GET /ws/wars/{warId} and subscribes the viewer to that war.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	warID := war.NormalizeWarID(r.PathValue("warId"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(4096)

	client := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan WSMessage, 64),
	}

	h.register(client)
	defer h.unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, client)
	if warID != "" {
		h.subscribe(ctx, client, warID)
	}
	h.readPump(ctx, client)
}

// WarUpdated broadcasts the new state of w to its viewers.
func (h *Hub) WarUpdated(w *store.War) {
	if w == nil {
		return
	}
	payload, err := json.Marshal(w)
	if err != nil {
		h.logger.Error("marshal war update", "war", w.WarID, "err", err)
		return
	}
	h.BroadcastRoom(w.WarID, WSMessage{Type: MsgWarUpdate, Payload: payload})
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	if h.metrics != nil {
		h.metrics.IncrWSConn()
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
		if h.metrics != nil {
			h.metrics.DecrWSConn()
		}
	}
	h.leaveRoomLocked(c)
}

func (h *Hub) leaveRoomLocked(c *Client) {
	if c.WarID == "" {
		return
	}
	if room, ok := h.rooms[c.WarID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, c.WarID)
		}
	}
}

// JoinRoom moves a client to the broadcast group of warID.
func (h *Hub) JoinRoom(clientID, warID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	if c.WarID != warID {
		h.leaveRoomLocked(c)
	}
	c.WarID = warID
	if _, ok := h.rooms[warID]; !ok {
		h.rooms[warID] = make(map[string]*Client)
	}
	h.rooms[warID][c.ID] = c
}

// BroadcastRoom sends a message to every client watching a war.
func (h *Hub) BroadcastRoom(warID string, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[warID]
	if !ok {
		return
	}
	for _, c := range room {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client send buffer full", "client", c.ID, "war", warID)
		}
	}
}

// Viewers returns how many clients watch warID.
func (h *Hub) Viewers(warID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[warID])
}

func (h *Hub) sendTo(c *Client, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// subscribe joins the war room and sends the current snapshot.
func (h *Hub) subscribe(ctx context.Context, c *Client, warID string) {
	h.JoinRoom(c.ID, warID)
	if h.wars == nil {
		return
	}
	w, err := h.wars.Get(ctx, warID)
	if err != nil {
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		h.sendTo(c, WSMessage{Type: MsgError, Payload: payload})
		return
	}
	payload, err := json.Marshal(w)
	if err != nil {
		return
	}
	h.sendTo(c, WSMessage{Type: MsgWarUpdate, Payload: payload})
}

func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		if err := c.conn.CloseNow(); err != nil {
			h.logger.Debug("close conn", "err", err)
		}
	}()
	for {
		var msg WSMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}
		if msg.Type != MsgSubscribe {
			continue
		}
		var req struct {
			WarID string `json:"warId"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.WarID == "" {
			continue
		}
		h.subscribe(ctx, c, war.NormalizeWarID(req.WarID))
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, c.conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
