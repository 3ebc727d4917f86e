package identities

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp/hotp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
)

const (
	otpRequestKey = "otp:req:"
	otpSecretKey  = "otp:secret:"
	otpCounterKey = "otp:ctr:"
	otpCodeKey    = "otp:code:"
	otpAttemptKey = "otp:att:"
)

// OTPManager issues and verifies the one-time codes sent over SMS. Codes are
// HOTP values over a per-phone secret with a redis-held counter; only a
// bcrypt hash of the active code is stored.
type OTPManager struct {
	redis       *redis.Client
	ttl         time.Duration
	window      time.Duration
	maxAttempts int
	maxRequests int
}

// NewOTPManager creates an OTPManager.
func NewOTPManager(rdb *redis.Client, ttl, window time.Duration, maxAttempts, maxRequests int) *OTPManager {
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	if maxRequests == 0 {
		maxRequests = 3
	}
	return &OTPManager{
		redis:       rdb,
		ttl:         ttl,
		window:      window,
		maxAttempts: maxAttempts,
		maxRequests: maxRequests,
	}
}

// Issue generates a fresh code for the phone, enforcing the per-phone
// request budget. The plaintext code is returned for delivery and never
// persisted.
func (m *OTPManager) Issue(ctx context.Context, phone string) (string, error) {
	requests, err := m.redis.Incr(ctx, otpRequestKey+phone).Result()
	if err != nil {
		return "", fmt.Errorf("otp request counter: %w", err)
	}
	if requests == 1 {
		m.redis.Expire(ctx, otpRequestKey+phone, m.window)
	}
	if requests > int64(m.maxRequests) {
		return "", apierrors.RateLimited("too many code requests, try again later")
	}

	secret, err := m.phoneSecret(ctx, phone)
	if err != nil {
		return "", err
	}

	counter, err := m.redis.Incr(ctx, otpCounterKey+phone).Result()
	if err != nil {
		return "", fmt.Errorf("otp counter: %w", err)
	}

	code, err := hotp.GenerateCode(secret, uint64(counter))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash otp: %w", err)
	}
	if err := m.redis.Set(ctx, otpCodeKey+phone, string(hash), m.ttl).Err(); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	m.redis.Del(ctx, otpAttemptKey+phone)

	return code, nil
}

// Verify checks a submitted code, burning it on success. Attempts beyond the
// budget invalidate the code.
func (m *OTPManager) Verify(ctx context.Context, phone, code string) error {
	attempts, err := m.redis.Incr(ctx, otpAttemptKey+phone).Result()
	if err != nil {
		return fmt.Errorf("otp attempt counter: %w", err)
	}
	if attempts == 1 {
		m.redis.Expire(ctx, otpAttemptKey+phone, m.ttl)
	}
	if attempts > int64(m.maxAttempts) {
		m.redis.Del(ctx, otpCodeKey+phone)
		return apierrors.RateLimited("too many attempts, request a new code")
	}

	hash, err := m.redis.Get(ctx, otpCodeKey+phone).Result()
	if err == redis.Nil {
		return apierrors.Unauthorized("code expired or not requested")
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return apierrors.Unauthorized("invalid code")
	}

	m.redis.Del(ctx, otpCodeKey+phone, otpAttemptKey+phone)
	return nil
}

// phoneSecret returns the per-phone HOTP secret, creating it on first use.
func (m *OTPManager) phoneSecret(ctx context.Context, phone string) (string, error) {
	secret, err := m.redis.Get(ctx, otpSecretKey+phone).Result()
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("load otp secret: %w", err)
	}

	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate otp secret: %w", err)
	}
	secret = base32.StdEncoding.EncodeToString(raw)
	if err := m.redis.Set(ctx, otpSecretKey+phone, secret, 24*time.Hour).Err(); err != nil {
		return "", fmt.Errorf("store otp secret: %w", err)
	}
	return secret, nil
}
