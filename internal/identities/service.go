// Package identities implements phone-based OTP authentication and JWT
// issuance for the crewcall API and WebSocket gateway.
package identities

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
)

// SMSSender delivers OTP codes. Production wires an SMS provider; dev and
// tests use LogSender.
type SMSSender interface {
	Send(ctx context.Context, phone, body string) error
}

// LogSender logs codes instead of sending them.
type LogSender struct {
	Logger *zap.Logger
}

// Send implements SMSSender.
func (s *LogSender) Send(_ context.Context, phone, body string) error {
	s.Logger.Info("sms (log sender)", zap.String("phone", phone), zap.String("body", body))
	return nil
}

// IdentityService defines the auth operations.
type IdentityService interface {
	RequestOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, phone, code string) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	ValidateToken(token string) (string, error)
}

// Service implements IdentityService.
type Service struct {
	logger        *zap.Logger
	db            *gorm.DB
	redis         *redis.Client
	otp           *OTPManager
	sms           SMSSender
	jwtSecret     string
	refreshSecret string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// Options configures NewService.
type Options struct {
	JWTSecret     string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// NewService creates the identity service.
func NewService(logger *zap.Logger, db *gorm.DB, rdb *redis.Client, otp *OTPManager, sms SMSSender, opts Options) (*Service, error) {
	if opts.JWTSecret == "" || opts.RefreshSecret == "" {
		return nil, fmt.Errorf("jwt secrets are required")
	}
	if opts.AccessTTL == 0 {
		opts.AccessTTL = 24 * time.Hour
	}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		logger:        logger,
		db:            db,
		redis:         rdb,
		otp:           otp,
		sms:           sms,
		jwtSecret:     opts.JWTSecret,
		refreshSecret: opts.RefreshSecret,
		accessTTL:     opts.AccessTTL,
		refreshTTL:    opts.RefreshTTL,
	}, nil
}

// RequestOTP issues a code and hands it to the SMS sender.
func (s *Service) RequestOTP(ctx context.Context, phone string) error {
	code, err := s.otp.Issue(ctx, phone)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Your crewcall code is %s", code)
	if err := s.sms.Send(ctx, phone, body); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// VerifyOTP checks the code, creates the user row on first login, and
// issues a token pair.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (*models.TokenPair, error) {
	if err := s.otp.Verify(ctx, phone, code); err != nil {
		return nil, err
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		user = models.User{ID: uuid.New(), Phone: phone}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Update("last_login", now).Error; err != nil {
		s.logger.Warn("update last login", zap.Error(err))
	}

	return s.issueTokens(ctx, user.ID)
}

// Refresh rotates a refresh token for a new pair. The old token's jti is
// burned so a replayed token fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.parseToken(refreshToken, s.refreshSecret, "refresh")
	if err != nil {
		return nil, err
	}
	sub, _ := claims["sub"].(string)
	jti, _ := claims["jti"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil || jti == "" {
		return nil, apierrors.Unauthorized("malformed refresh token")
	}

	key := refreshKey(userID, jti)
	deleted, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if deleted == 0 {
		return nil, apierrors.Unauthorized("refresh token revoked or already used")
	}

	return s.issueTokens(ctx, userID)
}

// ValidateToken verifies an access token and returns the user ID.
func (s *Service) ValidateToken(token string) (string, error) {
	claims, err := s.parseToken(token, s.jwtSecret, "access")
	if err != nil {
		return "", err
	}
	sub, _ := claims["sub"].(string)
	if _, err := uuid.Parse(sub); err != nil {
		return "", apierrors.Unauthorized("malformed token subject")
	}
	return sub, nil
}

func (s *Service) issueTokens(ctx context.Context, userID uuid.UUID) (*models.TokenPair, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTTL)

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"typ": "access",
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	})
	accessToken, err := access.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	jti := uuid.NewString()
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"typ": "refresh",
		"jti": jti,
		"iat": now.Unix(),
		"exp": now.Add(s.refreshTTL).Unix(),
	})
	refreshToken, err := refresh.SignedString([]byte(s.refreshSecret))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := s.redis.Set(ctx, refreshKey(userID, jti), "1", s.refreshTTL).Err(); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		UserID:       userID,
	}, nil
}

func (s *Service) parseToken(tokenString, secret, wantTyp string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, apierrors.Unauthorized("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierrors.Unauthorized("invalid token claims")
	}
	if typ, _ := claims["typ"].(string); typ != wantTyp {
		return nil, apierrors.Unauthorized("wrong token type")
	}
	return claims, nil
}

func refreshKey(userID uuid.UUID, jti string) string {
	return "refresh:" + userID.String() + ":" + jti
}
