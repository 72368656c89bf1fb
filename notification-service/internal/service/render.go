package service

import (
	"encoding/json"
	"errors"
	"fmt"

	mqcontracts "projectmonitor/contracts/mq"
)

// ErrUnsupportedEvent marks messages that can never be rendered; they go
// straight to the DLQ.
var ErrUnsupportedEvent = errors.New("unsupported event")

// Rendered is one workflow event turned into per-recipient text.
type Rendered struct {
	EventID    string
	Kind       string
	Message    string
	Recipients []int64
}

func Render(routingKey string, body []byte) (*Rendered, error) {
	switch routingKey {
	case mqcontracts.RoutingKeyProjectCreated:
		var p mqcontracts.ProjectCreatedPayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("Project %q was created with %d milestone(s)", p.Title, p.MilestoneCount)
		if len(p.Warnings) > 0 {
			msg += fmt.Sprintf(" (%d warning(s))", len(p.Warnings))
		}
		return &Rendered{EventID: p.EventID, Kind: "PROJECT_CREATED", Message: msg, Recipients: p.RecipientIDs}, nil

	case mqcontracts.RoutingKeySubmissionCreated:
		var p mqcontracts.SubmissionCreatedPayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("Submission #%d for milestone #%d awaits review (%d evidence file(s))",
			p.SubmissionID, p.MilestoneID, p.EvidenceCount)
		return &Rendered{EventID: p.EventID, Kind: "SUBMISSION_CREATED", Message: msg, Recipients: p.RecipientIDs}, nil

	case mqcontracts.RoutingKeySubmissionApproved, mqcontracts.RoutingKeySubmissionQueried:
		var p mqcontracts.SubmissionReviewedPayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		r := &Rendered{EventID: p.EventID, Recipients: p.RecipientIDs}
		if routingKey == mqcontracts.RoutingKeySubmissionApproved {
			r.Kind = "SUBMISSION_APPROVED"
			r.Message = fmt.Sprintf("Submission #%d for milestone #%d was approved", p.SubmissionID, p.MilestoneID)
		} else {
			r.Kind = "SUBMISSION_QUERIED"
			r.Message = fmt.Sprintf("Submission #%d for milestone #%d was queried: %s", p.SubmissionID, p.MilestoneID, p.QueryNote)
		}
		return r, nil

	case mqcontracts.RoutingKeyCommentAdded:
		var p mqcontracts.CommentAddedPayload
		if err := decode(body, &p); err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("New comment on project #%d: %s", p.ProjectID, p.Excerpt)
		return &Rendered{EventID: p.EventID, Kind: "COMMENT_ADDED", Message: msg, Recipients: p.RecipientIDs}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, routingKey)
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedEvent, err)
	}
	return nil
}
