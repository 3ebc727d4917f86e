package applications

import (
	"context"
	"testing"

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
	calls []string
}

func (f *fakeNotifier) Notify(_ context.Context, _ uuid.UUID, typ string, _ map[string]interface{}) {
	f.calls = append(f.calls, typ)
}

type fakeChat struct {
	pairs [][2]uuid.UUID
}

func (f *fakeChat) EnsureConversation(_ context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	f.pairs = append(f.pairs, [2]uuid.UUID{a, b})
	return &models.Conversation{ID: uuid.New(), UserA: a, UserB: b}, nil
}

type fixture struct {
	svc      *Service
	notifier *fakeNotifier
	chat     *fakeChat
	owner    uuid.UUID
	project  *models.Project
	post     *models.RolePost
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Project{}, &models.RolePost{}, &models.Application{}))

	notifier := &fakeNotifier{}
	chat := &fakeChat{}
	svc, err := NewService(zap.NewNop(), db, notifier, chat)
	require.NoError(t, err)

	owner := uuid.New()
	project := &models.Project{
		ID:             uuid.New(),
		OwnerID:        owner,
		Title:          "Night Shoot",
		ProductionType: "short",
		Status:         models.ProjectStatusOpen,
	}
	require.NoError(t, db.Create(project).Error)

	post := &models.RolePost{
		ID:        uuid.New(),
		ProjectID: project.ID,
		Title:     "Lead",
		Category:  "actor",
		Slots:     1,
		Status:    models.PostStatusOpen,
	}
	require.NoError(t, db.Create(post).Error)

	return &fixture{svc: svc, notifier: notifier, chat: chat, owner: owner, project: project, post: post}
}

func TestApplyOncePerPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	applicant := uuid.New()

	application, err := f.svc.Apply(ctx, applicant, f.post.ID, "pick me")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusSubmitted, application.Status)
	assert.Contains(t, f.notifier.calls, models.NotificationTypeApplication)

	_, err = f.svc.Apply(ctx, applicant, f.post.ID, "again")
	require.Error(t, err)
	assert.Equal(t, "conflict", apierrors.Kind(err))
}

func TestOwnerCannotApplyToOwnPost(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Apply(context.Background(), f.owner, f.post.ID, "")
	require.Error(t, err)
	assert.Equal(t, "invalid", apierrors.Kind(err))
}

func TestAcceptOpensConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	applicant := uuid.New()

	application, err := f.svc.Apply(ctx, applicant, f.post.ID, "")
	require.NoError(t, err)

	// Only the owner can transition.
	_, err = f.svc.SetStatus(ctx, applicant, application.ID, models.ApplicationStatusAccepted)
	require.Error(t, err)
	assert.Equal(t, "forbidden", apierrors.Kind(err))

	accepted, err := f.svc.SetStatus(ctx, f.owner, application.ID, models.ApplicationStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusAccepted, accepted.Status)
	require.Len(t, f.chat.pairs, 1)
	assert.Equal(t, f.owner, f.chat.pairs[0][0])
	assert.Equal(t, applicant, f.chat.pairs[0][1])
	assert.Contains(t, f.notifier.calls, models.NotificationTypeApplicationStatus)
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	applicant := uuid.New()

	application, err := f.svc.Apply(ctx, applicant, f.post.ID, "")
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, f.owner, application.ID, models.ApplicationStatusShortlisted)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, f.owner, application.ID, models.ApplicationStatusDeclined)
	require.NoError(t, err)

	// Declined is terminal.
	_, err = f.svc.SetStatus(ctx, f.owner, application.ID, models.ApplicationStatusAccepted)
	require.Error(t, err)
	assert.Equal(t, "conflict", apierrors.Kind(err))
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	applicant := uuid.New()

	application, err := f.svc.Apply(ctx, applicant, f.post.ID, "")
	require.NoError(t, err)

	// Someone else cannot withdraw it.
	_, err = f.svc.Withdraw(ctx, uuid.New(), application.ID)
	require.Error(t, err)
	assert.Equal(t, "forbidden", apierrors.Kind(err))

	withdrawn, err := f.svc.Withdraw(ctx, applicant, application.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusWithdrawn, withdrawn.Status)

	_, err = f.svc.Withdraw(ctx, applicant, application.ID)
	require.Error(t, err)
	assert.Equal(t, "conflict", apierrors.Kind(err))
}

func TestListForPostOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Apply(ctx, uuid.New(), f.post.ID, "")
		require.NoError(t, err)
	}

	page, err := f.svc.ListForPost(ctx, f.owner, f.post.ID, "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)

	_, err = f.svc.ListForPost(ctx, uuid.New(), f.post.ID, "", 10)
	require.Error(t, err)
	assert.Equal(t, "forbidden", apierrors.Kind(err))
}

func TestAcceptedUserIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := uuid.New()
	b := uuid.New()
	appA, err := f.svc.Apply(ctx, a, f.post.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, b, f.post.ID, "")
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, f.owner, appA.ID, models.ApplicationStatusAccepted)
	require.NoError(t, err)

	ids, err := f.svc.AcceptedUserIDs(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, ids)
}
