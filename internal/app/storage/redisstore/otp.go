// Package redisstore keeps short-lived login codes in Redis so they expire
// without a sweeper and are shared across replicas.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/patisserie-labs/storefront/internal/app/domain/user"
	"github.com/patisserie-labs/storefront/internal/app/storage"
)

const defaultPrefix = "storefront:otp:"

// incrementIfExists bumps the attempt counter only while the code is alive,
// returning -1 once it has expired.
var incrementIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

// OTPStore implements storage.OTPStore on a Redis hash per e-mail.
type OTPStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ storage.OTPStore = (*OTPStore)(nil)

// NewOTPStore wraps an existing client.
func NewOTPStore(rdb redis.UniversalClient) *OTPStore {
	return &OTPStore{rdb: rdb, prefix: defaultPrefix, now: time.Now}
}

// Open parses a redis:// URL and verifies the connection.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *OTPStore) key(email string) string {
	return s.prefix + strings.ToLower(email)
}

// SaveOTP replaces any pending code and sets the key to expire with it.
func (s *OTPStore) SaveOTP(ctx context.Context, otp user.OTP) error {
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = s.now()
	}
	ttl := otp.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("otp for %s already expired", otp.Email)
	}
	key := s.key(otp.Email)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeOTP(otp))
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

func (s *OTPStore) GetOTP(ctx context.Context, email string) (user.OTP, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(email)).Result()
	if err != nil {
		return user.OTP{}, fmt.Errorf("get otp: %w", err)
	}
	if len(fields) == 0 {
		return user.OTP{}, storage.NotFound("otp", email)
	}
	return decodeOTP(strings.ToLower(email), fields)
}

func (s *OTPStore) IncrementOTPAttempts(ctx context.Context, email string) (int, error) {
	n, err := incrementIfExists.Run(ctx, s.rdb, []string{s.key(email)}).Int()
	if err != nil {
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}
	if n < 0 {
		return 0, storage.NotFound("otp", email)
	}
	return n, nil
}

func (s *OTPStore) DeleteOTP(ctx context.Context, email string) error {
	if err := s.rdb.Del(ctx, s.key(email)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

func encodeOTP(otp user.OTP) map[string]any {
	return map[string]any{
		"code_hash":  otp.CodeHash,
		"attempts":   otp.Attempts,
		"expires_at": otp.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"created_at": otp.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeOTP(email string, fields map[string]string) (user.OTP, error) {
	otp := user.OTP{Email: email, CodeHash: fields["code_hash"]}
	var err error
	if v := fields["attempts"]; v != "" {
		if otp.Attempts, err = strconv.Atoi(v); err != nil {
			return user.OTP{}, fmt.Errorf("decode otp attempts: %w", err)
		}
	}
	if otp.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields["expires_at"]); err != nil {
		return user.OTP{}, fmt.Errorf("decode otp expiry: %w", err)
	}
	if v := fields["created_at"]; v != "" {
		if otp.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return user.OTP{}, fmt.Errorf("decode otp created_at: %w", err)
		}
	}
	return otp, nil
}
