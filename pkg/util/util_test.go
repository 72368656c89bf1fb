package util

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/circuitbreaker"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "CONSULTANT", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.ActorID)
	assert.Equal(t, "CONSULTANT", claims.Role)

	_, err = ParseJWT(token, "other")
	assert.Error(t, err)

	expired, err := GenerateJWT(42, "ADMIN", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.Error(t, err)

	missingRole, err := GenerateJWT(42, "", "secret", time.Hour)
	require.NoError(t, err)
	_, err = ParseJWT(missingRole, "secret")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", ExtractToken(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", ExtractToken(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", ExtractToken(r))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"validation", apperr.Validation("bad"), false, "validation"},
		{"dependency", apperr.Dependency(errors.New("x"), "blob store"), true, "dependency_error"},
		{"no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), false, "not_found"},
		{"unique", &pgconn.PgError{Code: "23505"}, false, "duplicate_key"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "serialization_failure"},
		{"connection", &pgconn.PgError{Code: "08006"}, true, "db_connection_error"},
		{"breaker", circuitbreaker.ErrCircuitBreakerOpen, true, "circuit_open"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, kind := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestRetry(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

	t.Run("retries retryable errors", func(t *testing.T) {
		calls := 0
		v, err := Retry(context.Background(), p, func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, context.DeadlineExceeded
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), p, func(ctx context.Context) (int, error) {
			calls++
			return 0, apperr.NotFound("project", 1)
		})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), p, func(ctx context.Context) (struct{}, error) {
			calls++
			return struct{}{}, context.DeadlineExceeded
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 3, calls)
	})
}

func TestDeduperFailsOpenWithoutRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	d := NewDeduper(rdb, time.Minute, zap.NewNop())
	assert.True(t, d.AcquireOnce(context.Background(), "notify", "evt-1"))
	assert.Equal(t, "retry:notify:evt-1", FormatRetryKey("notify", "evt-1"))
}

func TestRetryCounterReportsRedisErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	rc := NewRetryCounter(rdb, time.Minute)
	key := FormatRetryKey("notify", "evt-1")
	_, err := rc.IncrementAndGet(context.Background(), key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), key)
	assert.Error(t, rc.Reset(context.Background(), key))
}
