package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBoundedAppliesQueryTimeout(t *testing.T) {
	r := NewNotificationRepository(nil, zap.NewNop(), 50*time.Millisecond)
	ctx, cancel := r.bounded(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)

	unbounded := NewNotificationRepository(nil, zap.NewNop(), 0)
	ctx, cancel = unbounded.bounded(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok)
}
