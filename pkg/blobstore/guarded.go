package blobstore

import (
	"context"
	"time"

	"projectmonitor/pkg/circuitbreaker"
)

// Guarded bounds every call to the inner store with a timeout and a
// circuit breaker.
type Guarded struct {
	inner   Store
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

func NewGuarded(inner Store, breaker *circuitbreaker.CircuitBreaker, timeout time.Duration) *Guarded {
	return &Guarded{inner: inner, breaker: breaker, timeout: timeout}
}

func (g *Guarded) Put(ctx context.Context, scope, fileName string, data []byte) (string, error) {
	var objectPath string
	err := g.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		objectPath, err = g.inner.Put(ctx, scope, fileName, data)
		return err
	})
	return objectPath, err
}

func (g *Guarded) Sign(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	var signed string
	err := g.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		signed, err = g.inner.Sign(ctx, objectPath, ttl)
		return err
	})
	return signed, err
}
