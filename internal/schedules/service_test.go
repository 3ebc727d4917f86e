package schedules

import (
	"context"
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

type fakeOwners struct {
	owner uuid.UUID
}

func (f *fakeOwners) OwnerOf(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
	return f.owner, nil
}

type fakeAccepted struct {
	ids []uuid.UUID
}

func (f *fakeAccepted) AcceptedUserIDs(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return f.ids, nil
}

type recordingNotifier struct {
	notified []uuid.UUID
}

func (r *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, _ string, _ map[string]interface{}) {
	r.notified = append(r.notified, userID)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ScheduleEntry{}, &models.ScheduleAssignee{}))
	return db
}

func TestCreateRequiresOwner(t *testing.T) {
	db := newTestDB(t)
	owner := uuid.New()
	svc, err := NewService(zap.NewNop(), db, &fakeOwners{owner: owner}, &fakeAccepted{})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), uuid.New(), uuid.New(), &models.ScheduleEntryRequest{
		CallTime: time.Now().Add(48 * time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, "forbidden", apierrors.Kind(err))
}

func TestAssigneesMustBeAccepted(t *testing.T) {
	db := newTestDB(t)
	owner := uuid.New()
	accepted := uuid.New()
	svc, err := NewService(zap.NewNop(), db, &fakeOwners{owner: owner}, &fakeAccepted{ids: []uuid.UUID{accepted}})
	require.NoError(t, err)
	ctx := context.Background()
	projectID := uuid.New()

	_, err = svc.Create(ctx, owner, projectID, &models.ScheduleEntryRequest{
		CallTime:  time.Now().Add(48 * time.Hour),
		Assignees: []uuid.UUID{uuid.New()},
	})
	require.Error(t, err)
	assert.Equal(t, "invalid", apierrors.Kind(err))

	entry, err := svc.Create(ctx, owner, projectID, &models.ScheduleEntryRequest{
		CallTime:  time.Now().Add(48 * time.Hour),
		Assignees: []uuid.UUID{accepted},
	})
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, accepted)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, entry.ID, mine[0].ID)
}

func TestUpdateResetsReminder(t *testing.T) {
	db := newTestDB(t)
	owner := uuid.New()
	svc, err := NewService(zap.NewNop(), db, &fakeOwners{owner: owner}, &fakeAccepted{})
	require.NoError(t, err)
	ctx := context.Background()

	entry, err := svc.Create(ctx, owner, uuid.New(), &models.ScheduleEntryRequest{
		CallTime: time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.ScheduleEntry{}).Where("id = ?", entry.ID).
		Update("reminder_sent", true).Error)

	updated, err := svc.Update(ctx, owner, entry.ID, &models.ScheduleEntryRequest{
		CallTime: time.Now().Add(72 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, updated.ReminderSent)
}

func TestReminderSweep(t *testing.T) {
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	reminder := NewReminder(zap.NewNop(), db, notifier)
	ctx := context.Background()

	assignee := uuid.New()
	due := models.ScheduleEntry{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		CallTime:  time.Now().Add(6 * time.Hour),
	}
	farOut := models.ScheduleEntry{
		ID:        uuid.New(),
		ProjectID: due.ProjectID,
		CallTime:  time.Now().Add(90 * time.Hour),
	}
	require.NoError(t, db.Create(&due).Error)
	require.NoError(t, db.Create(&farOut).Error)
	require.NoError(t, db.Create(&models.ScheduleAssignee{ID: uuid.New(), EntryID: due.ID, UserID: assignee}).Error)
	require.NoError(t, db.Create(&models.ScheduleAssignee{ID: uuid.New(), EntryID: farOut.ID, UserID: assignee}).Error)

	require.NoError(t, reminder.Sweep(ctx))
	assert.Equal(t, []uuid.UUID{assignee}, notifier.notified)

	// Second sweep is a no-op: the due entry is marked reminded.
	require.NoError(t, reminder.Sweep(ctx))
	assert.Len(t, notifier.notified, 1)
}
