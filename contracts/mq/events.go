package mq

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the events exchange.
const (
	RoutingKeyProjectCreated     = "project.created"
	RoutingKeySubmissionCreated  = "submission.created"
	RoutingKeySubmissionApproved = "submission.approved"
	RoutingKeySubmissionQueried  = "submission.queried"
	RoutingKeyCommentAdded       = "comment.added"
)

// WorkflowRoutingKeys lists every routing key monitor-service emits.
var WorkflowRoutingKeys = []string{
	RoutingKeyProjectCreated,
	RoutingKeySubmissionCreated,
	RoutingKeySubmissionApproved,
	RoutingKeySubmissionQueried,
	RoutingKeyCommentAdded,
}

// EventMeta is embedded in every payload. EventID doubles as the AMQP
// message id and the consumer dedup key.
type EventMeta struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}

func NewEventMeta(routingKey, traceID string, at time.Time) EventMeta {
	return EventMeta{
		EventID:    uuid.NewString(),
		Type:       routingKey,
		OccurredAt: at.UTC(),
		TraceID:    traceID,
	}
}

// ProjectCreatedPayload project.created
type ProjectCreatedPayload struct {
	EventMeta
	ProjectID      int64    `json:"project_id"`
	Title          string   `json:"title"`
	CreatedBy      int64    `json:"created_by"`
	MilestoneCount int      `json:"milestone_count"`
	Warnings       []string `json:"warnings,omitempty"`
	RecipientIDs   []int64  `json:"recipient_ids"`
}

// SubmissionCreatedPayload submission.created
type SubmissionCreatedPayload struct {
	EventMeta
	SubmissionID  int64   `json:"submission_id"`
	MilestoneID   int64   `json:"milestone_id"`
	ProjectID     int64   `json:"project_id"`
	ContractorID  int64   `json:"contractor_id"`
	EvidenceCount int     `json:"evidence_count"`
	MaterialCount int     `json:"material_count"`
	RecipientIDs  []int64 `json:"recipient_ids"`
}

// SubmissionReviewedPayload submission.approved / submission.queried
type SubmissionReviewedPayload struct {
	EventMeta
	SubmissionID int64   `json:"submission_id"`
	MilestoneID  int64   `json:"milestone_id"`
	ProjectID    int64   `json:"project_id"`
	ReviewerID   int64   `json:"reviewer_id"`
	Status       string  `json:"status"`
	QueryNote    string  `json:"query_note,omitempty"`
	RecipientIDs []int64 `json:"recipient_ids"`
}

// CommentAddedPayload comment.added
type CommentAddedPayload struct {
	EventMeta
	CommentID    int64   `json:"comment_id"`
	ProjectID    int64   `json:"project_id"`
	AuthorID     int64   `json:"author_id"`
	Excerpt      string  `json:"excerpt"`
	RecipientIDs []int64 `json:"recipient_ids"`
}
