package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// NewEvent encodes payload into a pending outbox event.
func NewEvent(aggregateType string, aggregateID int64, routingKey string, payload interface{}) (*Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	id := aggregateID
	return &Event{
		AggregateType: aggregateType,
		AggregateID:   &id,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}, nil
}

// InsertEventInTx 在事务中插入事件到 outbox（辅助函数）
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID int64,
	routingKey string,
	payload interface{},
) error {
	event, err := NewEvent(aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return err
	}
	return repo.InsertEvent(ctx, tx, event)
}

// envelope is the subset of every payload the dispatcher reads.
type envelope struct {
	EventID string `json:"event_id"`
	TraceID string `json:"trace_id"`
}

func readEnvelope(payload json.RawMessage) envelope {
	var env envelope
	_ = json.Unmarshal(payload, &env)
	return env
}
