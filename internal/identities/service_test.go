package identities

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
)

type capturingSender struct {
	phone string
	body  string
}

func (c *capturingSender) Send(_ context.Context, phone, body string) error {
	c.phone = phone
	c.body = body
	return nil
}

func newTestService(t *testing.T) (*Service, *capturingSender) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	otp := NewOTPManager(rdb, 5*time.Minute, 10*time.Minute, 5, 3)
	sender := &capturingSender{}
	svc, err := NewService(zap.NewNop(), db, rdb, otp, sender, Options{
		JWTSecret:     "test-secret",
		RefreshSecret: "test-refresh-secret",
	})
	require.NoError(t, err)
	return svc, sender
}

// extractCode pulls the 6-digit code out of the SMS body.
func extractCode(t *testing.T, body string) string {
	t.Helper()
	require.GreaterOrEqual(t, len(body), 6)
	return body[len(body)-6:]
}

func TestOTPLoginFlow(t *testing.T) {
	svc, sender := newTestService(t)
	ctx := context.Background()
	phone := "+15550001111"

	require.NoError(t, svc.RequestOTP(ctx, phone))
	assert.Equal(t, phone, sender.phone)
	code := extractCode(t, sender.body)

	pair, err := svc.VerifyOTP(ctx, phone, code)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	userID, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.UserID.String(), userID)

	// Same phone logs into the same user.
	require.NoError(t, svc.RequestOTP(ctx, phone))
	pair2, err := svc.VerifyOTP(ctx, phone, extractCode(t, sender.body))
	require.NoError(t, err)
	assert.Equal(t, pair.UserID, pair2.UserID)
}

func TestVerifyOTPWrongCode(t *testing.T) {
	svc, sender := newTestService(t)
	ctx := context.Background()
	phone := "+15550002222"

	require.NoError(t, svc.RequestOTP(ctx, phone))
	code := extractCode(t, sender.body)

	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}
	_, err := svc.VerifyOTP(ctx, phone, wrong)
	require.Error(t, err)
	assert.Equal(t, "unauthorized", apierrors.Kind(err))

	// The real code still works afterwards.
	_, err = svc.VerifyOTP(ctx, phone, code)
	assert.NoError(t, err)
}

func TestVerifyOTPAttemptBudget(t *testing.T) {
	svc, sender := newTestService(t)
	ctx := context.Background()
	phone := "+15550003333"

	require.NoError(t, svc.RequestOTP(ctx, phone))
	code := extractCode(t, sender.body)

	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}
	for i := 0; i < 5; i++ {
		_, err := svc.VerifyOTP(ctx, phone, wrong)
		require.Error(t, err)
	}

	// Budget exhausted: even the right code is rejected now.
	_, err := svc.VerifyOTP(ctx, phone, code)
	require.Error(t, err)
	assert.Equal(t, "rate_limited", apierrors.Kind(err))
}

func TestRequestOTPRateLimit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	phone := "+15550004444"

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.RequestOTP(ctx, phone))
	}
	err := svc.RequestOTP(ctx, phone)
	require.Error(t, err)
	assert.Equal(t, "rate_limited", apierrors.Kind(err))
}

func TestRefreshRotation(t *testing.T) {
	svc, sender := newTestService(t)
	ctx := context.Background()
	phone := "+15550005555"

	require.NoError(t, svc.RequestOTP(ctx, phone))
	pair, err := svc.VerifyOTP(ctx, phone, extractCode(t, sender.body))
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.UserID, next.UserID)

	// The consumed token cannot be replayed.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, "unauthorized", apierrors.Kind(err))
}

func TestValidateTokenRejectsRefreshToken(t *testing.T) {
	svc, sender := newTestService(t)
	ctx := context.Background()
	phone := "+15550006666"

	require.NoError(t, svc.RequestOTP(ctx, phone))
	pair, err := svc.VerifyOTP(ctx, phone, extractCode(t, sender.body))
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.RefreshToken)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}
