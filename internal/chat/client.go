package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
)

// Client is one authenticated WebSocket connection. joined caches the
// membership checks already performed on this socket, so the store is hit
// at most once per conversation per connection.
type Client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub

	mu     sync.Mutex
	joined map[uuid.UUID]bool

	closeOnce sync.Once
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *Client) isJoined(conversationID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined[conversationID]
}

func (c *Client) setJoined(conversationID uuid.UUID, member bool) {
	c.mu.Lock()
	c.joined[conversationID] = member
	c.mu.Unlock()
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump parses inbound events and dispatches them.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
		if c.hub.presence != nil {
			c.hub.presence.Touch(c.hub.ctx, c.userID)
		}
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("chat read error", zap.Error(err))
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.reply(errorEvent(uuid.Nil, "malformed event"))
			continue
		}

		wsEventsTotal.WithLabelValues(event.Type).Inc()
		c.dispatch(event)
	}
}

func (c *Client) dispatch(event Event) {
	switch event.Type {
	case EventJoin:
		c.handleJoin(event)
	case EventLeave:
		c.handleLeave(event)
	case EventSend:
		c.handleSend(event)
	case EventTyping:
		c.handleTyping(event)
	case EventMarkRead:
		c.handleMarkRead(event)
	default:
		c.reply(errorEvent(event.ConversationID, "unknown event type"))
	}
}

// handleJoin checks membership against the store once per conversation for
// this socket, then subscribes the client to the room.
func (c *Client) handleJoin(event Event) {
	conversationID := event.ConversationID
	if conversationID == uuid.Nil {
		c.reply(errorEvent(conversationID, "conversation_id is required"))
		return
	}

	if !c.isJoined(conversationID) {
		member, err := c.hub.service.IsMember(c.hub.ctx, conversationID, c.userID)
		if err != nil {
			c.hub.logger.Error("membership check", zap.Error(err))
			c.reply(errorEvent(conversationID, "membership check failed"))
			return
		}
		if !member {
			c.reply(errorEvent(conversationID, "not a member of this conversation"))
			return
		}
		c.setJoined(conversationID, true)
	}

	c.hub.joinRoom(conversationID, c)
	c.reply(Event{Type: EventJoined, ConversationID: conversationID})
	c.hub.Broadcast(conversationID, Event{
		Type:           EventPresence,
		ConversationID: conversationID,
		UserID:         c.userID,
		Online:         true,
	}, c)
}

func (c *Client) handleLeave(event Event) {
	if !c.isJoined(event.ConversationID) {
		return
	}
	c.hub.leaveRoom(event.ConversationID, c)
	c.hub.Broadcast(event.ConversationID, Event{
		Type:           EventPresence,
		ConversationID: event.ConversationID,
		UserID:         c.userID,
		Online:         false,
	}, c)
}

// handleSend persists the message idempotently and fans it out. Duplicate
// deliveries echo the stored message back to the sender only.
func (c *Client) handleSend(event Event) {
	if !c.isJoined(event.ConversationID) {
		c.reply(errorEvent(event.ConversationID, "join the conversation first"))
		return
	}

	message, created, err := c.hub.service.SaveMessage(c.hub.ctx, event.ConversationID, c.userID, event.Body, event.ClientMsgID)
	if err != nil {
		c.replyServiceError(event.ConversationID, err)
		return
	}

	out := Event{
		Type:           EventMessage,
		ConversationID: event.ConversationID,
		Message:        message,
		Duplicate:      !created,
	}
	if !created {
		c.reply(out)
		return
	}
	c.hub.Broadcast(event.ConversationID, out, nil)
}

// handleTyping refreshes the typing upsert and relays the indicator to the
// rest of the room.
func (c *Client) handleTyping(event Event) {
	if !c.isJoined(event.ConversationID) {
		return
	}
	if c.hub.presence != nil {
		c.hub.presence.SetTyping(c.hub.ctx, event.ConversationID, c.userID)
	}
	c.hub.Broadcast(event.ConversationID, Event{
		Type:           EventTyping,
		ConversationID: event.ConversationID,
		UserID:         c.userID,
	}, c)
}

func (c *Client) handleMarkRead(event Event) {
	if !c.isJoined(event.ConversationID) {
		c.reply(errorEvent(event.ConversationID, "join the conversation first"))
		return
	}

	count, err := c.hub.service.MarkRead(c.hub.ctx, event.ConversationID, c.userID, event.MessageID)
	if err != nil {
		c.replyServiceError(event.ConversationID, err)
		return
	}

	c.hub.Broadcast(event.ConversationID, Event{
		Type:           EventReceipt,
		ConversationID: event.ConversationID,
		UserID:         c.userID,
		MessageID:      event.MessageID,
		ReadCount:      count,
	}, nil)
}

func (c *Client) reply(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) replyServiceError(conversationID uuid.UUID, err error) {
	var apiErr *apierrors.Error
	if apierrors.As(err, &apiErr) {
		c.reply(errorEvent(conversationID, apiErr.Message))
		return
	}
	c.hub.logger.Error("chat service error", zap.Error(err))
	c.reply(errorEvent(conversationID, "internal error"))
}
