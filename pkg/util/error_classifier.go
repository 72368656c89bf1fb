package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/circuitbreaker"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsRetryableError determines if an error is retryable
// Returns: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// 业务错误 - 只有依赖故障可重试
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if appErr.Retryable() {
			return true, "dependency_error"
		}
		return false, string(appErr.Kind)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			// 唯一约束冲突 - 不可重试（幂等性）
			return false, "duplicate_key"
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return true, "serialization_failure"
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01":
			return true, "db_connection_error"
		default:
			return false, "db_error"
		}
	}

	if pgconn.Timeout(err) {
		return true, "db_timeout"
	}

	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return true, "circuit_open"
	}

	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	// 默认：未知错误，保守处理 - 不重试
	return false, "unknown_error"
}

// ShouldRetry checks if an error should be retried based on retry count
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}
