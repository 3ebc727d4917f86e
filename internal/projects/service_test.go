package projects

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Project{}, &models.RolePost{}))

	svc, err := NewService(zap.NewNop(), db)
	require.NoError(t, err)
	return svc
}

func openProject(t *testing.T, svc *Service, ownerID uuid.UUID) *models.Project {
	t.Helper()
	ctx := context.Background()
	project, err := svc.Create(ctx, ownerID, &models.ProjectRequest{
		Title:          "Night Shoot",
		ProductionType: "short",
		City:           "Berlin",
	})
	require.NoError(t, err)
	project, err = svc.SetStatus(ctx, ownerID, project.ID, models.ProjectStatusOpen)
	require.NoError(t, err)
	return project
}

func TestCreateAndUpdateProject(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	project, err := svc.Create(ctx, owner, &models.ProjectRequest{
		Title:          "Night Shoot",
		ProductionType: "short",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusDraft, project.Status)

	updated, err := svc.Update(ctx, owner, project.ID, &models.ProjectRequest{
		Title:          "Night Shoot II",
		ProductionType: "short",
		City:           "Leipzig",
	})
	require.NoError(t, err)
	assert.Equal(t, "Night Shoot II", updated.Title)

	// A stranger cannot mutate it.
	_, err = svc.Update(ctx, uuid.New(), project.ID, &models.ProjectRequest{
		Title:          "Hijacked",
		ProductionType: "short",
	})
	require.Error(t, err)
	assert.Equal(t, "forbidden", apierrors.Kind(err))
}

func TestClosingProjectClosesPosts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	project := openProject(t, svc, owner)

	post, err := svc.CreatePost(ctx, owner, project.ID, &models.RolePostRequest{
		Title:    "Lead actor",
		Category: "actor",
		Paid:     true,
		PayRate:  decimal.NewFromInt(400),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusOpen, post.Status)

	_, err = svc.SetStatus(ctx, owner, project.ID, models.ProjectStatusClosed)
	require.NoError(t, err)

	got, err := svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusClosed, got.Status)

	// No new posts on a closed project.
	_, err = svc.CreatePost(ctx, owner, project.ID, &models.RolePostRequest{
		Title:    "Gaffer",
		Category: "lighting",
	})
	require.Error(t, err)
	assert.Equal(t, "conflict", apierrors.Kind(err))
}

func TestFeedFiltersAndPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	project := openProject(t, svc, owner)

	for i := 0; i < 3; i++ {
		_, err := svc.CreatePost(ctx, owner, project.ID, &models.RolePostRequest{
			Title:    "Actor",
			Category: "actor",
			Paid:     true,
		})
		require.NoError(t, err)
	}
	_, err := svc.CreatePost(ctx, owner, project.ID, &models.RolePostRequest{
		Title:    "Runner",
		Category: "production",
	})
	require.NoError(t, err)

	page, err := svc.Feed(ctx, FeedFilter{Category: "actor", PaidOnly: true, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.Feed(ctx, FeedFilter{Category: "actor", PaidOnly: true, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, next.Items, 1)

	// Draft projects never surface in the feed.
	draftOwner := uuid.New()
	draft, err := svc.Create(ctx, draftOwner, &models.ProjectRequest{Title: "Secret", ProductionType: "film"})
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, draftOwner, draft.ID, &models.RolePostRequest{Title: "Spy", Category: "actor"})
	require.NoError(t, err)

	all, err := svc.Feed(ctx, FeedFilter{Category: "actor", Limit: 50})
	require.NoError(t, err)
	for _, p := range all.Items {
		assert.NotEqual(t, "Spy", p.Title)
	}
}

func TestClosePostIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	project := openProject(t, svc, owner)

	post, err := svc.CreatePost(ctx, owner, project.ID, &models.RolePostRequest{Title: "DP", Category: "camera"})
	require.NoError(t, err)

	closed, err := svc.ClosePost(ctx, owner, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusClosed, closed.Status)

	again, err := svc.ClosePost(ctx, owner, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusClosed, again.Status)
}
