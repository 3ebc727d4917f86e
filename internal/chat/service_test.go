package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
)

type fakeNotifier struct {
	notified []uuid.UUID
}

func (f *fakeNotifier) Notify(_ context.Context, userID uuid.UUID, _ string, _ map[string]interface{}) {
	f.notified = append(f.notified, userID)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Conversation{}, &models.Message{}))
	return db
}

func newTestService(t *testing.T, notifier Notifier) *Service {
	t.Helper()
	svc, err := NewService(zap.NewNop(), newTestDB(t), notifier)
	require.NoError(t, err)
	return svc
}

func TestEnsureConversationDeduplicates(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	first, err := svc.EnsureConversation(ctx, a, b)
	require.NoError(t, err)

	// Same pair in either order resolves to the same thread.
	second, err := svc.EnsureConversation(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = svc.EnsureConversation(ctx, a, a)
	require.Error(t, err)
	assert.Equal(t, "invalid", apierrors.Kind(err))
}

func TestSaveMessageIdempotent(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newTestService(t, notifier)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	conv, err := svc.EnsureConversation(ctx, a, b)
	require.NoError(t, err)

	msg, created, err := svc.SaveMessage(ctx, conv.ID, a, "see you on set", "client-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []uuid.UUID{b}, notifier.notified)

	// Redelivery with the same client_msg_id returns the stored row and
	// does not notify again.
	dup, created, err := svc.SaveMessage(ctx, conv.ID, a, "see you on set", "client-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, msg.ID, dup.ID)
	assert.Len(t, notifier.notified, 1)
}

func TestSaveMessageValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	conv, err := svc.EnsureConversation(ctx, a, b)
	require.NoError(t, err)

	_, _, err = svc.SaveMessage(ctx, conv.ID, a, "hello", "")
	require.Error(t, err)
	assert.Equal(t, "invalid", apierrors.Kind(err))

	// A body that is nothing but markup sanitizes to empty.
	_, _, err = svc.SaveMessage(ctx, conv.ID, a, "<script>alert(1)</script>", "client-2")
	require.Error(t, err)
	assert.Equal(t, "invalid", apierrors.Kind(err))

	_, _, err = svc.SaveMessage(ctx, conv.ID, uuid.New(), "hi", "client-3")
	require.Error(t, err)
	assert.Equal(t, "forbidden", apierrors.Kind(err))
}

func TestMarkReadBulkAndFallback(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	conv, err := svc.EnsureConversation(ctx, a, b)
	require.NoError(t, err)

	var last *models.Message
	for i := 0; i < 3; i++ {
		msg, _, err := svc.SaveMessage(ctx, conv.ID, a, fmt.Sprintf("take %d", i), fmt.Sprintf("c-%d", i))
		require.NoError(t, err)
		last = msg
		time.Sleep(2 * time.Millisecond)
	}

	count, err := svc.MarkRead(ctx, conv.ID, b, last.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Marking again is a no-op: everything up to the boundary is read.
	count, err = svc.MarkRead(ctx, conv.ID, b, last.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = svc.MarkRead(ctx, conv.ID, b, uuid.New())
	require.Error(t, err)
	assert.Equal(t, "not_found", apierrors.Kind(err))
}

func TestHistoryPaginatesNewestFirst(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	conv, err := svc.EnsureConversation(ctx, a, b)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err := svc.SaveMessage(ctx, conv.ID, a, fmt.Sprintf("line %d", i), fmt.Sprintf("h-%d", i))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	page, err := svc.History(ctx, b, conv.ID, "", 3)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "line 4", page.Items[0].Body)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.History(ctx, b, conv.ID, page.NextCursor, 3)
	require.NoError(t, err)
	require.Len(t, rest.Items, 2)
	assert.Equal(t, "line 0", rest.Items[1].Body)

	_, err = svc.History(ctx, uuid.New(), conv.ID, "", 10)
	require.Error(t, err)
	assert.Equal(t, "forbidden", apierrors.Kind(err))
}

func TestListConversationsSummaries(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	me := uuid.New()
	peer1, peer2 := uuid.New(), uuid.New()

	conv1, err := svc.EnsureConversation(ctx, me, peer1)
	require.NoError(t, err)
	conv2, err := svc.EnsureConversation(ctx, me, peer2)
	require.NoError(t, err)

	_, _, err = svc.SaveMessage(ctx, conv1.ID, peer1, "old thread", "l-1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, _, err = svc.SaveMessage(ctx, conv2.ID, peer2, "fresh thread", "l-2")
	require.NoError(t, err)

	page, err := svc.ListConversations(ctx, me, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	// Most recent activity first, with peer, last message and unread count.
	assert.Equal(t, conv2.ID, page.Items[0].ID)
	assert.Equal(t, peer2, page.Items[0].PeerID)
	require.NotNil(t, page.Items[0].LastMessage)
	assert.Equal(t, "fresh thread", page.Items[0].LastMessage.Body)
	assert.Equal(t, int64(1), page.Items[0].UnreadCount)
}
