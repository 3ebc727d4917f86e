package profiles

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

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Profile{}))

	svc, err := NewService(zap.NewNop(), db)
	require.NoError(t, err)
	return svc
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	created, err := svc.Upsert(ctx, userID, &models.ProfileUpdateRequest{
		Role:        models.ProfileRoleTalent,
		DisplayName: "Ada Lumen",
		City:        "Berlin",
		Categories:  []string{"actor", "voice"},
	})
	require.NoError(t, err)
	assert.Equal(t, userID, created.UserID)

	updated, err := svc.Upsert(ctx, userID, &models.ProfileUpdateRequest{
		Role:        models.ProfileRoleTalent,
		DisplayName: "Ada L.",
		City:        "Hamburg",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Hamburg", updated.City)

	mine, err := svc.GetMine(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", mine.DisplayName)
}

func TestUpsertSanitizesBio(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	profile, err := svc.Upsert(ctx, uuid.New(), &models.ProfileUpdateRequest{
		Role:        models.ProfileRoleCrew,
		DisplayName: "Gaffer Joe",
		Bio:         `hi <script>alert("x")</script><b>there</b>`,
	})
	require.NoError(t, err)
	assert.NotContains(t, profile.Bio, "<script>")
	assert.Contains(t, profile.Bio, "<b>there</b>")
}

func TestGetMineMissing(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetMine(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, "not_found", apierrors.Kind(err))
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		role := models.ProfileRoleTalent
		if i%2 == 1 {
			role = models.ProfileRoleCrew
		}
		_, err := svc.Upsert(ctx, uuid.New(), &models.ProfileUpdateRequest{
			Role:        role,
			DisplayName: "Person",
			City:        "Berlin",
		})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListFilter{Role: models.ProfileRoleTalent, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.List(ctx, ListFilter{Role: models.ProfileRoleTalent, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.NotEmpty(t, next.Items)
	for _, p := range next.Items {
		assert.Equal(t, models.ProfileRoleTalent, p.Role)
	}

	// A cursor minted under one filter is rejected under another.
	_, err = svc.List(ctx, ListFilter{Role: models.ProfileRoleCrew, Limit: 2, Cursor: page.NextCursor})
	require.Error(t, err)
	assert.Equal(t, "invalid", apierrors.Kind(err))
}
