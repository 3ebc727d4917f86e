package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crewcall/crewcall/pkg/models"
)

// newTestGateway stands up a hub over a sqlite-backed service and an HTTP
// test server that upgrades any request, trusting the user_id query param.
func newTestGateway(t *testing.T) (*Hub, *Service, *httptest.Server) {
	t.Helper()
	svc := newTestService(t, nil)
	hub := NewHub(zap.NewNop(), svc, nil, nil, HubConfig{})
	t.Cleanup(hub.Shutdown)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		hub.HandleUpgrade(w, r, userID)
	}))
	t.Cleanup(srv.Close)
	return hub, svc, srv
}

func dial(t *testing.T, srv *httptest.Server, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user_id=" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event Event) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(event))
}

func recv(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func joinConversation(t *testing.T, conn *websocket.Conn, conversationID uuid.UUID) {
	t.Helper()
	send(t, conn, Event{Type: EventJoin, ConversationID: conversationID})
	event := recv(t, conn)
	require.Equal(t, EventJoined, event.Type)
}

func TestJoinRequiresMembership(t *testing.T) {
	_, svc, srv := newTestGateway(t)
	a, b := uuid.New(), uuid.New()
	conv, err := svc.EnsureConversation(context.Background(), a, b)
	require.NoError(t, err)

	outsider := dial(t, srv, uuid.New())
	send(t, outsider, Event{Type: EventJoin, ConversationID: conv.ID})
	event := recv(t, outsider)
	assert.Equal(t, EventError, event.Type)
	assert.Contains(t, event.Error, "not a member")

	member := dial(t, srv, a)
	joinConversation(t, member, conv.ID)
}

func TestSendFansOutToRoom(t *testing.T) {
	_, svc, srv := newTestGateway(t)
	a, b := uuid.New(), uuid.New()
	conv, err := svc.EnsureConversation(context.Background(), a, b)
	require.NoError(t, err)

	connA := dial(t, srv, a)
	connB := dial(t, srv, b)
	joinConversation(t, connA, conv.ID)
	joinConversation(t, connB, conv.ID)
	// connA sees connB come online.
	presence := recv(t, connA)
	require.Equal(t, EventPresence, presence.Type)
	assert.Equal(t, b, presence.UserID)
	assert.True(t, presence.Online)

	send(t, connA, Event{Type: EventSend, ConversationID: conv.ID, ClientMsgID: "m-1", Body: "picture is up"})

	for _, conn := range []*websocket.Conn{connA, connB} {
		event := recv(t, conn)
		require.Equal(t, EventMessage, event.Type)
		require.NotNil(t, event.Message)
		assert.Equal(t, "picture is up", event.Message.Body)
		assert.Equal(t, a, event.Message.SenderID)
		assert.False(t, event.Duplicate)
	}
}

func TestDuplicateSendEchoesSenderOnly(t *testing.T) {
	_, svc, srv := newTestGateway(t)
	a, b := uuid.New(), uuid.New()
	conv, err := svc.EnsureConversation(context.Background(), a, b)
	require.NoError(t, err)

	connA := dial(t, srv, a)
	connB := dial(t, srv, b)
	joinConversation(t, connA, conv.ID)
	joinConversation(t, connB, conv.ID)
	recv(t, connA) // presence for b

	send(t, connA, Event{Type: EventSend, ConversationID: conv.ID, ClientMsgID: "m-1", Body: "rolling"})
	first := recv(t, connA)
	require.Equal(t, EventMessage, first.Type)
	recv(t, connB)

	send(t, connA, Event{Type: EventSend, ConversationID: conv.ID, ClientMsgID: "m-1", Body: "rolling"})
	dup := recv(t, connA)
	require.Equal(t, EventMessage, dup.Type)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, first.Message.ID, dup.Message.ID)

	// connB got nothing for the redelivery; the next frame it sees is a
	// fresh message.
	send(t, connA, Event{Type: EventSend, ConversationID: conv.ID, ClientMsgID: "m-2", Body: "cut"})
	next := recv(t, connB)
	require.Equal(t, EventMessage, next.Type)
	assert.Equal(t, "cut", next.Message.Body)
}

func TestSendRequiresJoin(t *testing.T) {
	_, svc, srv := newTestGateway(t)
	a, b := uuid.New(), uuid.New()
	conv, err := svc.EnsureConversation(context.Background(), a, b)
	require.NoError(t, err)

	conn := dial(t, srv, a)
	send(t, conn, Event{Type: EventSend, ConversationID: conv.ID, ClientMsgID: "m-1", Body: "hello"})
	event := recv(t, conn)
	assert.Equal(t, EventError, event.Type)
	assert.Contains(t, event.Error, "join")
}

func TestTypingExcludesSender(t *testing.T) {
	_, svc, srv := newTestGateway(t)
	a, b := uuid.New(), uuid.New()
	conv, err := svc.EnsureConversation(context.Background(), a, b)
	require.NoError(t, err)

	connA := dial(t, srv, a)
	connB := dial(t, srv, b)
	joinConversation(t, connA, conv.ID)
	joinConversation(t, connB, conv.ID)
	recv(t, connA) // presence for b

	send(t, connA, Event{Type: EventTyping, ConversationID: conv.ID})
	event := recv(t, connB)
	require.Equal(t, EventTyping, event.Type)
	assert.Equal(t, a, event.UserID)
}

func TestMarkReadBroadcastsReceipt(t *testing.T) {
	_, svc, srv := newTestGateway(t)
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()
	conv, err := svc.EnsureConversation(ctx, a, b)
	require.NoError(t, err)
	msg, _, err := svc.SaveMessage(ctx, conv.ID, a, "check the callsheet", "m-1")
	require.NoError(t, err)

	connA := dial(t, srv, a)
	connB := dial(t, srv, b)
	joinConversation(t, connA, conv.ID)
	joinConversation(t, connB, conv.ID)
	recv(t, connA) // presence for b

	send(t, connB, Event{Type: EventMarkRead, ConversationID: conv.ID, MessageID: msg.ID})
	for _, conn := range []*websocket.Conn{connA, connB} {
		event := recv(t, conn)
		require.Equal(t, EventReceipt, event.Type)
		assert.Equal(t, b, event.UserID)
		assert.Equal(t, msg.ID, event.MessageID)
		assert.Equal(t, int64(1), event.ReadCount)
	}

	var stored models.Message
	require.NoError(t, svc.db.Where("id = ?", msg.ID).First(&stored).Error)
	require.NotNil(t, stored.ReadAt)
}
