// Package store declares the persistence contract shared by the Postgres
// repositories and the in-memory store used in tests.
package store

import (
	"context"
	"errors"
	"time"

	"projectmonitor/monitor-service/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict covers unique violations and failed status guards.
	ErrConflict = errors.New("record conflict")
)

type ActorRepository interface {
	// Insert registers a new actor, or refreshes the name of an existing one.
	// Re-registering with another role is ErrConflict.
	Insert(ctx context.Context, a *model.Actor) error
	Get(ctx context.Context, id int64) (*model.Actor, error)
}

// ProjectFilter narrows ListProjects to what one actor may see. Nil fields
// do not filter.
type ProjectFilter struct {
	// ConsultantID matches projects assigned to that consultant or to none.
	ConsultantID *int64
	// ContractorID matches projects whose pool holds that contractor.
	ContractorID *int64
}

type ProjectRepository interface {
	Insert(ctx context.Context, p *model.Project) error
	Get(ctx context.Context, id int64) (*model.Project, error)
	List(ctx context.Context, filter ProjectFilter) ([]model.Project, error)
	UpdateStatus(ctx context.Context, id int64, status model.ProjectStatus) error
	SetConsultant(ctx context.Context, id int64, consultantID int64) error
	// AddContractor reports whether the contractor was newly added.
	AddContractor(ctx context.Context, projectID, contractorID int64, at time.Time) (bool, error)
	// ListContractors returns the pool in insertion order.
	ListContractors(ctx context.Context, projectID int64) ([]model.ProjectContractor, error)
	IsContractor(ctx context.Context, projectID, contractorID int64) (bool, error)
}

type MilestoneRepository interface {
	Insert(ctx context.Context, m *model.Milestone) error
	Get(ctx context.Context, id int64) (*model.Milestone, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*model.Milestone, error)
	// ListByProject orders by sort_order, then id.
	ListByProject(ctx context.Context, projectID int64) ([]model.Milestone, error)
	UpdateStatus(ctx context.Context, id int64, status model.MilestoneStatus) error
}

type SectionRepository interface {
	Insert(ctx context.Context, s *model.Section) error
	// Get fills MilestoneIDs and ContractorID.
	Get(ctx context.Context, id int64) (*model.Section, error)
	ListByProject(ctx context.Context, projectID int64) ([]model.Section, error)
	// LinkMilestone is ErrConflict when the milestone already has a section.
	LinkMilestone(ctx context.Context, sectionID, milestoneID int64) error
	// SectionOfMilestone is ErrNotFound for an unmapped milestone.
	SectionOfMilestone(ctx context.Context, milestoneID int64) (*model.Section, error)
	// Assign upserts the section contractor and returns the previous one.
	Assign(ctx context.Context, sectionID, contractorID int64, at time.Time) (previous *int64, err error)
}

type SubmissionRepository interface {
	// Insert writes the submission with its evidence and materials. A
	// repeated (contractor, idempotency key) is ErrConflict.
	Insert(ctx context.Context, s *model.Submission) error
	Get(ctx context.Context, id int64) (*model.Submission, error)
	FindByIdempotencyKey(ctx context.Context, contractorID int64, key string) (*model.Submission, error)
	// Latest is ErrNotFound when the milestone has no submission.
	Latest(ctx context.Context, milestoneID int64) (*model.Submission, error)
	// LatestByProject maps milestone id to its latest submission, without
	// evidence or materials.
	LatestByProject(ctx context.Context, projectID int64) (map[int64]model.Submission, error)
	// ListByMilestone returns history oldest first.
	ListByMilestone(ctx context.Context, milestoneID int64) ([]model.Submission, error)
	ListByProject(ctx context.Context, projectID int64, status *model.SubmissionStatus) ([]model.Submission, error)
	// Review moves a submission whose status is one of from to to. A guard
	// miss is ErrConflict.
	Review(ctx context.Context, r Review) error
}

type Review struct {
	SubmissionID int64
	From         []model.SubmissionStatus
	To           model.SubmissionStatus
	ReviewerID   int64
	QueryNote    *string
	At           time.Time
}

type CommentRepository interface {
	Insert(ctx context.Context, c *model.Comment) error
	// ListWithAuthors joins author name and role, newest first.
	ListWithAuthors(ctx context.Context, projectID int64) ([]model.Comment, error)
	// List is the plain read, newest first, Author always nil.
	List(ctx context.Context, projectID int64) ([]model.Comment, error)
}

// Outbox records an event to be published after commit.
type Outbox interface {
	Enqueue(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error
}

// Repositories is one consistent view of the store, either the pool or a
// transaction.
type Repositories interface {
	Actors() ActorRepository
	Projects() ProjectRepository
	Milestones() MilestoneRepository
	Sections() SectionRepository
	Submissions() SubmissionRepository
	Comments() CommentRepository
	Outbox() Outbox
}

type Store interface {
	Repositories
	// WithTx commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
	Ping(ctx context.Context) error
}
