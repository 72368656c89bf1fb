package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	mqcontracts "projectmonitor/contracts/mq"
	"projectmonitor/notification-service/internal/service"
	"projectmonitor/pkg/mq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDeduper struct {
	held     map[string]bool
	released int
}

func (d *fakeDeduper) AcquireOnce(_ context.Context, handler, eventID string) bool {
	key := handler + ":" + eventID
	if d.held[key] {
		return false
	}
	d.held[key] = true
	return true
}

func (d *fakeDeduper) Release(_ context.Context, handler, eventID string) {
	delete(d.held, handler+":"+eventID)
	d.released++
}

type fakeCounter struct {
	counts map[string]int64
}

func (c *fakeCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	c.counts[key]++
	return c.counts[key], nil
}

func (c *fakeCounter) Reset(_ context.Context, key string) error {
	delete(c.counts, key)
	return nil
}

type dlqMessage struct {
	routingKey string
	messageID  string
	reason     string
}

type fakeDLQ struct {
	parked []dlqMessage
}

func (f *fakeDLQ) PublishToDLQ(_ context.Context, routingKey, messageID string, _ []byte, originalError, _ string) error {
	f.parked = append(f.parked, dlqMessage{routingKey: routingKey, messageID: messageID, reason: originalError})
	return nil
}

type fakeDeliverer struct {
	calls int
	err   error
	got   []*service.Rendered
}

func (f *fakeDeliverer) Deliver(_ context.Context, r *service.Rendered) (int, error) {
	f.calls++
	f.got = append(f.got, r)
	if f.err != nil {
		return 0, f.err
	}
	return len(r.Recipients), nil
}

type fixture struct {
	handler   *WorkflowEventHandler
	deliverer *fakeDeliverer
	deduper   *fakeDeduper
	counter   *fakeCounter
	dlq       *fakeDLQ
}

func newFixture(maxRetries int) *fixture {
	f := &fixture{
		deliverer: &fakeDeliverer{},
		deduper:   &fakeDeduper{held: map[string]bool{}},
		counter:   &fakeCounter{counts: map[string]int64{}},
		dlq:       &fakeDLQ{},
	}
	f.handler = NewWorkflowEventHandler(f.deliverer, f.deduper, f.counter, f.dlq, maxRetries, zap.NewNop())
	return f
}

func approvedMessage(t *testing.T) mq.Message {
	t.Helper()
	p := mqcontracts.SubmissionReviewedPayload{
		EventMeta:    mqcontracts.NewEventMeta(mqcontracts.RoutingKeySubmissionApproved, "", time.Now()),
		SubmissionID: 2,
		MilestoneID:  1,
		Status:       "APPROVED",
		RecipientIDs: []int64{3},
	}
	body, err := json.Marshal(p)
	require.NoError(t, err)
	return mq.Message{ID: p.EventID, RoutingKey: mqcontracts.RoutingKeySubmissionApproved, Body: body}
}

func TestHandleDeliversOnce(t *testing.T) {
	f := newFixture(3)
	msg := approvedMessage(t)

	require.NoError(t, f.handler.Handle(context.Background(), msg))
	require.NoError(t, f.handler.Handle(context.Background(), msg))

	assert.Equal(t, 1, f.deliverer.calls, "duplicate delivery is skipped")
	assert.Equal(t, msg.ID, f.deliverer.got[0].EventID)
	assert.Empty(t, f.dlq.parked)
}

func TestHandleFallsBackToMessageID(t *testing.T) {
	f := newFixture(3)
	msg := mq.Message{ID: "amqp-1", RoutingKey: mqcontracts.RoutingKeyCommentAdded, Body: []byte(`{"project_id":1,"recipient_ids":[2]}`)}

	require.NoError(t, f.handler.Handle(context.Background(), msg))
	assert.Equal(t, "amqp-1", f.deliverer.got[0].EventID)
}

func TestHandleMalformedGoesToDLQ(t *testing.T) {
	f := newFixture(3)
	msg := mq.Message{ID: "m-1", RoutingKey: mqcontracts.RoutingKeyCommentAdded, Body: []byte(`{broken`)}

	require.NoError(t, f.handler.Handle(context.Background(), msg), "dead-lettered messages are acked")
	require.Len(t, f.dlq.parked, 1)
	assert.Equal(t, "m-1", f.dlq.parked[0].messageID)
	assert.Zero(t, f.deliverer.calls)
}

func TestHandleRetriesThenDeadLetters(t *testing.T) {
	f := newFixture(2)
	f.deliverer.err = &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	msg := approvedMessage(t)

	assert.Error(t, f.handler.Handle(context.Background(), msg))
	assert.Error(t, f.handler.Handle(context.Background(), msg))
	assert.Equal(t, 2, f.deduper.released, "dedupe marker is released for redelivery")
	assert.Empty(t, f.dlq.parked)

	require.NoError(t, f.handler.Handle(context.Background(), msg))
	assert.Equal(t, 3, f.deliverer.calls)
	require.Len(t, f.dlq.parked, 1)
	assert.Equal(t, mqcontracts.RoutingKeySubmissionApproved, f.dlq.parked[0].routingKey)
	assert.Empty(t, f.counter.counts, "retry counter is reset after dead-lettering")
}

func TestHandleNonRetryableErrorDeadLettersAtOnce(t *testing.T) {
	f := newFixture(5)
	f.deliverer.err = errors.New("constraint violated")

	require.NoError(t, f.handler.Handle(context.Background(), approvedMessage(t)))
	assert.Len(t, f.dlq.parked, 1)
	assert.Equal(t, 1, f.deliverer.calls)
}
