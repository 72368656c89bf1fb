package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"projectmonitor/notification-service/internal/repository"
	"projectmonitor/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu     sync.Mutex
	rows   []repository.Notification
	seen   map[string]bool
	failOn int64
}

func newMemStore() *memStore {
	return &memStore{seen: map[string]bool{}}
}

func (m *memStore) Insert(_ context.Context, n *repository.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.RecipientID == m.failOn {
		return false, errors.New("db down")
	}
	key := fmt.Sprintf("%s/%d", n.EventID, n.RecipientID)
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	n.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *n)
	return true, nil
}

func (m *memStore) ListByRecipient(_ context.Context, recipientID int64, limit int) ([]repository.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Notification
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].RecipientID == recipientID {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

func (m *memStore) MarkAsRead(_ context.Context, id, recipientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].RecipientID == recipientID {
			m.rows[i].IsRead = true
			return nil
		}
	}
	return repository.ErrNotFound
}

type recordingSender struct {
	sent []int64
	err  error
}

func (s *recordingSender) Send(_ context.Context, n *repository.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n.RecipientID)
	return nil
}

func rendered() *Rendered {
	return &Rendered{EventID: "evt-1", Kind: "COMMENT_ADDED", Message: "New comment", Recipients: []int64{1, 2}}
}

func TestDeliverIsIdempotentPerRecipient(t *testing.T) {
	st := newMemStore()
	sender := &recordingSender{}
	svc := NewNotificationService(st, sender, "EMAIL", 10, zap.NewNop())

	before := testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("EMAIL", "sent"))

	n, err := svc.Deliver(context.Background(), rendered())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.Deliver(context.Background(), rendered())
	require.NoError(t, err)
	assert.Zero(t, n, "redelivery writes nothing")

	assert.Equal(t, []int64{1, 2}, sender.sent)
	assert.Len(t, st.rows, 2)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("EMAIL", "sent")))
}

func TestDeliverKeepsRowWhenSendFails(t *testing.T) {
	st := newMemStore()
	sender := &recordingSender{err: errors.New("smtp down")}
	svc := NewNotificationService(st, sender, "EMAIL", 10, zap.NewNop())
	failed := metrics.NotificationsSent.WithLabelValues("EMAIL", "failed")
	before := testutil.ToFloat64(failed)

	n, err := svc.Deliver(context.Background(), rendered())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, st.rows, 2)
	assert.Equal(t, before+2, testutil.ToFloat64(failed))

	// the rows already exist, so a redelivered event sends nothing
	sender.err = nil
	n, err = svc.Deliver(context.Background(), rendered())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sender.sent)
	assert.Equal(t, before+2, testutil.ToFloat64(failed))

	items, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestDeliverStoreFailure(t *testing.T) {
	st := newMemStore()
	st.failOn = 2
	svc := NewNotificationService(st, &recordingSender{}, "EMAIL", 10, zap.NewNop())

	n, err := svc.Deliver(context.Background(), rendered())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestListAndMarkAsRead(t *testing.T) {
	st := newMemStore()
	svc := NewNotificationService(st, &recordingSender{}, "PUSH", 10, zap.NewNop())
	_, err := svc.Deliver(context.Background(), rendered())
	require.NoError(t, err)

	items, err := svc.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "PUSH", items[0].Channel)

	require.NoError(t, svc.MarkAsRead(context.Background(), items[0].ID, 2))
	assert.ErrorIs(t, svc.MarkAsRead(context.Background(), items[0].ID, 1), repository.ErrNotFound)
}

func TestNewSender(t *testing.T) {
	for _, ch := range []string{"EMAIL", "push", "Webhook"} {
		s, err := NewSender(ch, zap.NewNop())
		require.NoError(t, err, ch)
		assert.NoError(t, s.Send(context.Background(), &repository.Notification{ID: 1}))
	}
	_, err := NewSender("SMS", zap.NewNop())
	assert.Error(t, err)
}
