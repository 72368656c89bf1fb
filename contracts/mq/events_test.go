package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMetaIsFlattenedIntoPayload(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("WAT", 3600))
	p := SubmissionReviewedPayload{
		EventMeta:    NewEventMeta(RoutingKeySubmissionQueried, "trace-1", at),
		SubmissionID: 9,
		Status:       "QUERIED",
		QueryNote:    "photos blurry",
		RecipientIDs: []int64{3},
	}

	body, err := json.Marshal(p)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(body, &flat))
	assert.Equal(t, p.EventID, flat["event_id"])
	assert.Equal(t, "submission.queried", flat["type"])
	assert.Equal(t, "trace-1", flat["trace_id"])
	assert.Equal(t, "2025-03-01T09:00:00Z", flat["occurred_at"])
	assert.NotEmpty(t, p.EventID)
}
