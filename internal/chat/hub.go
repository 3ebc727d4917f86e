package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	wsConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_connections_total",
		Help: "Total number of chat WebSocket connections accepted",
	})
	wsDisconnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_disconnections_total",
		Help: "Total number of chat WebSocket disconnections",
	})
	wsActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_active_connections",
		Help: "Currently connected chat WebSocket clients",
	})
	wsEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_events_total",
		Help: "Chat gateway events processed, by type",
	}, []string{"type"})
	wsBroadcastLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_ws_broadcast_latency_seconds",
		Help:    "Room broadcast latency in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

// HubConfig tunes the gateway's socket handling.
type HubConfig struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (c HubConfig) withDefaults() HubConfig {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 54 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = 64
	}
	return c
}

// Hub manages conversation rooms and fan-out for one gateway instance.
// Cross-instance delivery goes through the redis bridge; events carry the
// originating hub's ID so a hub never re-applies its own publications.
type Hub struct {
	id       string
	logger   *zap.Logger
	service  ChatService
	presence *Presence
	bridge   *Bridge
	config   HubConfig

	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates and starts a hub. presence and bridge may be nil; the hub
// then runs single-instance without cross-node fan-out.
func NewHub(logger *zap.Logger, service ChatService, presence *Presence, bridge *Bridge, config HubConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		id:         uuid.NewString(),
		logger:     logger,
		service:    service,
		presence:   presence,
		bridge:     bridge,
		config:     config.withDefaults(),
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}

	h.wg.Add(1)
	go h.run()

	if bridge != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			bridge.Run(ctx, h.deliverRemote)
		}()
	}

	return h
}

// Shutdown stops the hub and disconnects all clients.
func (h *Hub) Shutdown() {
	h.cancel()

	h.mu.Lock()
	for _, room := range h.rooms {
		for client := range room {
			client.conn.Close()
		}
	}
	h.rooms = make(map[uuid.UUID]map[*Client]struct{})
	h.mu.Unlock()

	h.wg.Wait()
}

// HandleUpgrade upgrades an authenticated request and starts the client's
// pumps. userID must already be validated by the caller.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, h.config.SendBuffer),
		hub:    h,
		joined: make(map[uuid.UUID]bool),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			wsConnectionsTotal.Inc()
			wsActiveConnections.Inc()
			if h.presence != nil {
				h.presence.Touch(h.ctx, client.userID)
			}
			h.logger.Debug("chat client connected", zap.String("user_id", client.userID.String()))
		case client := <-h.unregister:
			h.dropClient(client)
		}
	}
}

func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	for conversationID, room := range h.rooms {
		if _, ok := room[client]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, conversationID)
			}
		}
	}
	h.mu.Unlock()

	client.closeSend()
	wsDisconnectionsTotal.Inc()
	wsActiveConnections.Dec()
	if h.presence != nil {
		h.presence.Drop(h.ctx, client.userID)
	}
	h.logger.Debug("chat client disconnected", zap.String("user_id", client.userID.String()))
}

// joinRoom adds an already-authorized client to a conversation room.
func (h *Hub) joinRoom(conversationID uuid.UUID, client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[conversationID] = room
	}
	room[client] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) leaveRoom(conversationID uuid.UUID, client *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	h.mu.Unlock()
}

// Broadcast fans an event out to the conversation's local room and, via the
// bridge, to every other gateway instance. exclude suppresses echo to the
// originating client (nil broadcasts to everyone).
func (h *Hub) Broadcast(conversationID uuid.UUID, event Event, exclude *Client) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", zap.Error(err))
		return
	}

	h.deliverLocal(conversationID, payload, exclude)

	if h.bridge != nil {
		if err := h.bridge.Publish(h.ctx, h.id, conversationID, payload); err != nil {
			h.logger.Warn("bridge publish", zap.Error(err))
		}
	}
}

func (h *Hub) deliverLocal(conversationID uuid.UUID, payload []byte, exclude *Client) {
	start := time.Now()
	defer func() {
		wsBroadcastLatency.Observe(time.Since(start).Seconds())
	}()

	h.mu.RLock()
	room := h.rooms[conversationID]
	for client := range room {
		if client == exclude {
			continue
		}
		select {
		case client.send <- payload:
		default:
			// Slow client: drop the frame rather than stall the room.
			h.logger.Warn("dropping frame for slow client",
				zap.String("user_id", client.userID.String()),
				zap.String("conversation_id", conversationID.String()))
		}
	}
	h.mu.RUnlock()
}

// deliverRemote applies an event published by another hub instance.
func (h *Hub) deliverRemote(origin string, conversationID uuid.UUID, payload []byte) {
	if origin == h.id {
		return
	}
	h.deliverLocal(conversationID, payload, nil)
}
