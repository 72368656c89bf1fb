// Package memory is an in-process store.Store for tests and local runs.
// Transactions are serialized and roll back by restoring a snapshot; writes
// made outside WithTx while a transaction is open may be lost on rollback.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/outbox"
)

type state struct {
	seq                map[string]int64
	actors             map[int64]model.Actor
	projects           map[int64]model.Project
	pool               map[int64][]model.ProjectContractor
	milestones         map[int64]model.Milestone
	sections           map[int64]model.Section
	sectionOfMilestone map[int64]int64
	assignments        map[int64]model.SectionAssignment
	submissions        map[int64]model.Submission
	comments           []model.Comment
	events             []outbox.Event
}

func newState() *state {
	return &state{
		seq:                make(map[string]int64),
		actors:             make(map[int64]model.Actor),
		projects:           make(map[int64]model.Project),
		pool:               make(map[int64][]model.ProjectContractor),
		milestones:         make(map[int64]model.Milestone),
		sections:           make(map[int64]model.Section),
		sectionOfMilestone: make(map[int64]int64),
		assignments:        make(map[int64]model.SectionAssignment),
		submissions:        make(map[int64]model.Submission),
	}
}

// clone copies every container; stored records are values and slices
// inside them are never appended to in place.
func (s *state) clone() *state {
	c := &state{
		seq:                maps.Clone(s.seq),
		actors:             maps.Clone(s.actors),
		projects:           maps.Clone(s.projects),
		pool:               make(map[int64][]model.ProjectContractor, len(s.pool)),
		milestones:         maps.Clone(s.milestones),
		sections:           maps.Clone(s.sections),
		sectionOfMilestone: maps.Clone(s.sectionOfMilestone),
		assignments:        maps.Clone(s.assignments),
		submissions:        maps.Clone(s.submissions),
		comments:           slices.Clone(s.comments),
		events:             slices.Clone(s.events),
	}
	for k, v := range s.pool {
		c.pool[k] = slices.Clone(v)
	}
	return c
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state

	joinErr error
}

func New() *Store {
	return &Store{st: newState()}
}

// FailAuthorJoin makes ListWithAuthors fail with err (nil restores it).
func (s *Store) FailAuthorJoin(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinErr = err
}

func (s *Store) Actors() store.ActorRepository           { return actorRepo{s} }
func (s *Store) Projects() store.ProjectRepository       { return projectRepo{s} }
func (s *Store) Milestones() store.MilestoneRepository   { return milestoneRepo{s} }
func (s *Store) Sections() store.SectionRepository       { return sectionRepo{s} }
func (s *Store) Submissions() store.SubmissionRepository { return submissionRepo{s} }
func (s *Store) Comments() store.CommentRepository       { return commentRepo{s} }
func (s *Store) Outbox() store.Outbox                    { return outboxRepo{s} }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- actors

type actorRepo struct{ s *Store }

func (r actorRepo) Insert(ctx context.Context, a *model.Actor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.st.actors[a.ID]; ok {
		if existing.Role != a.Role {
			return store.ErrConflict
		}
		existing.FullName = a.FullName
		r.s.st.actors[a.ID] = existing
		a.CreatedAt = existing.CreatedAt
		return nil
	}
	r.s.st.actors[a.ID] = *a
	return nil
}

func (r actorRepo) Get(ctx context.Context, id int64) (*model.Actor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.st.actors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

// --- projects

type projectRepo struct{ s *Store }

func (r projectRepo) Insert(ctx context.Context, p *model.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.st.next("projects")
	r.s.st.projects[p.ID] = *p
	return nil
}

func (r projectRepo) Get(ctx context.Context, id int64) (*model.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.st.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r projectRepo) List(ctx context.Context, f store.ProjectFilter) ([]model.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Project
	for _, p := range r.s.st.projects {
		if f.ConsultantID != nil && p.ConsultantID != nil && *p.ConsultantID != *f.ConsultantID {
			continue
		}
		if f.ContractorID != nil && !r.s.st.inPool(p.ID, *f.ContractorID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r projectRepo) UpdateStatus(ctx context.Context, id int64, status model.ProjectStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.projects[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Status = status
	r.s.st.projects[id] = p
	return nil
}

func (r projectRepo) SetConsultant(ctx context.Context, id int64, consultantID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.projects[id]
	if !ok {
		return store.ErrNotFound
	}
	p.ConsultantID = &consultantID
	r.s.st.projects[id] = p
	return nil
}

func (st *state) inPool(projectID, contractorID int64) bool {
	for _, pc := range st.pool[projectID] {
		if pc.ContractorID == contractorID {
			return true
		}
	}
	return false
}

func (r projectRepo) AddContractor(ctx context.Context, projectID, contractorID int64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.projects[projectID]; !ok {
		return false, store.ErrNotFound
	}
	if r.s.st.inPool(projectID, contractorID) {
		return false, nil
	}
	pool := slices.Clone(r.s.st.pool[projectID])
	r.s.st.pool[projectID] = append(pool, model.ProjectContractor{
		ProjectID:    projectID,
		ContractorID: contractorID,
		AddedAt:      at,
	})
	return true, nil
}

func (r projectRepo) ListContractors(ctx context.Context, projectID int64) ([]model.ProjectContractor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return slices.Clone(r.s.st.pool[projectID]), nil
}

func (r projectRepo) IsContractor(ctx context.Context, projectID, contractorID int64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.st.inPool(projectID, contractorID), nil
}

// --- milestones

type milestoneRepo struct{ s *Store }

func (r milestoneRepo) Insert(ctx context.Context, m *model.Milestone) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.projects[m.ProjectID]; !ok {
		return store.ErrNotFound
	}
	m.ID = r.s.st.next("milestones")
	r.s.st.milestones[m.ID] = *m
	return nil
}

func (r milestoneRepo) Get(ctx context.Context, id int64) (*model.Milestone, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.st.milestones[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

// GetForUpdate needs no lock of its own: transactions are serialized.
func (r milestoneRepo) GetForUpdate(ctx context.Context, id int64) (*model.Milestone, error) {
	return r.Get(ctx, id)
}

func (r milestoneRepo) ListByProject(ctx context.Context, projectID int64) ([]model.Milestone, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Milestone
	for _, m := range r.s.st.milestones {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r milestoneRepo) UpdateStatus(ctx context.Context, id int64, status model.MilestoneStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.st.milestones[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Status = status
	r.s.st.milestones[id] = m
	return nil
}

// --- sections

type sectionRepo struct{ s *Store }

func (r sectionRepo) Insert(ctx context.Context, sec *model.Section) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.projects[sec.ProjectID]; !ok {
		return store.ErrNotFound
	}
	sec.ID = r.s.st.next("sections")
	stored := *sec
	stored.MilestoneIDs = nil
	stored.ContractorID = nil
	r.s.st.sections[sec.ID] = stored
	return nil
}

// view joins links and assignment; callers hold mu.
func (st *state) view(sec model.Section) model.Section {
	sec.MilestoneIDs = []int64{}
	for mid, sid := range st.sectionOfMilestone {
		if sid == sec.ID {
			sec.MilestoneIDs = append(sec.MilestoneIDs, mid)
		}
	}
	slices.Sort(sec.MilestoneIDs)
	if a, ok := st.assignments[sec.ID]; ok {
		id := a.ContractorID
		sec.ContractorID = &id
	}
	return sec
}

func (r sectionRepo) Get(ctx context.Context, id int64) (*model.Section, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sec, ok := r.s.st.sections[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	v := r.s.st.view(sec)
	return &v, nil
}

func (r sectionRepo) ListByProject(ctx context.Context, projectID int64) ([]model.Section, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Section
	for _, sec := range r.s.st.sections {
		if sec.ProjectID == projectID {
			out = append(out, r.s.st.view(sec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r sectionRepo) LinkMilestone(ctx context.Context, sectionID, milestoneID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.sections[sectionID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := r.s.st.milestones[milestoneID]; !ok {
		return store.ErrNotFound
	}
	if _, linked := r.s.st.sectionOfMilestone[milestoneID]; linked {
		return fmt.Errorf("%w: section_milestones_milestone_key", store.ErrConflict)
	}
	r.s.st.sectionOfMilestone[milestoneID] = sectionID
	return nil
}

func (r sectionRepo) SectionOfMilestone(ctx context.Context, milestoneID int64) (*model.Section, error) {
	r.s.mu.RLock()
	sid, ok := r.s.st.sectionOfMilestone[milestoneID]
	r.s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.Get(ctx, sid)
}

func (r sectionRepo) Assign(ctx context.Context, sectionID, contractorID int64, at time.Time) (*int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.sections[sectionID]; !ok {
		return nil, store.ErrNotFound
	}
	var previous *int64
	if a, ok := r.s.st.assignments[sectionID]; ok {
		prev := a.ContractorID
		previous = &prev
	}
	r.s.st.assignments[sectionID] = model.SectionAssignment{
		SectionID:    sectionID,
		ContractorID: contractorID,
		AssignedAt:   at,
	}
	return previous, nil
}

// --- submissions

type submissionRepo struct{ s *Store }

func (r submissionRepo) Insert(ctx context.Context, sub *model.Submission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.milestones[sub.MilestoneID]; !ok {
		return store.ErrNotFound
	}
	if sub.IdempotencyKey != nil {
		for _, existing := range r.s.st.submissions {
			if existing.ContractorID == sub.ContractorID && existing.IdempotencyKey != nil &&
				*existing.IdempotencyKey == *sub.IdempotencyKey {
				return fmt.Errorf("%w: submissions_idempotency_key", store.ErrConflict)
			}
		}
	}
	sub.ID = r.s.st.next("submissions")
	evidence := make([]model.Evidence, len(sub.Evidence))
	for i, e := range sub.Evidence {
		e.ID = r.s.st.next("evidence")
		e.SubmissionID = sub.ID
		e.URL = ""
		evidence[i] = e
	}
	materials := make([]model.MaterialUsage, len(sub.Materials))
	for i, m := range sub.Materials {
		m.ID = r.s.st.next("material_usage")
		m.SubmissionID = sub.ID
		materials[i] = m
	}
	sub.Evidence = evidence
	sub.Materials = materials

	stored := *sub
	stored.Evidence = slices.Clone(evidence)
	stored.Materials = slices.Clone(materials)
	r.s.st.submissions[sub.ID] = stored
	return nil
}

// copyOut detaches a stored submission so callers may mutate it.
func copyOut(sub model.Submission) model.Submission {
	sub.Evidence = slices.Clone(sub.Evidence)
	sub.Materials = slices.Clone(sub.Materials)
	if sub.Evidence == nil {
		sub.Evidence = []model.Evidence{}
	}
	if sub.Materials == nil {
		sub.Materials = []model.MaterialUsage{}
	}
	return sub
}

func (r submissionRepo) Get(ctx context.Context, id int64) (*model.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sub, ok := r.s.st.submissions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := copyOut(sub)
	return &out, nil
}

func (r submissionRepo) FindByIdempotencyKey(ctx context.Context, contractorID int64, key string) (*model.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sub := range r.s.st.submissions {
		if sub.ContractorID == contractorID && sub.IdempotencyKey != nil && *sub.IdempotencyKey == key {
			out := copyOut(sub)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// byMilestone returns history oldest first; callers hold mu.
func (st *state) byMilestone(milestoneID int64) []model.Submission {
	var subs []model.Submission
	for _, sub := range st.submissions {
		if sub.MilestoneID == milestoneID {
			subs = append(subs, copyOut(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[j].After(subs[i]) })
	return subs
}

func (r submissionRepo) Latest(ctx context.Context, milestoneID int64) (*model.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	latest := model.Latest(r.s.st.byMilestone(milestoneID))
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (r submissionRepo) LatestByProject(ctx context.Context, projectID int64) (map[int64]model.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[int64]model.Submission)
	for _, sub := range r.s.st.submissions {
		m, ok := r.s.st.milestones[sub.MilestoneID]
		if !ok || m.ProjectID != projectID {
			continue
		}
		if cur, ok := out[sub.MilestoneID]; !ok || sub.After(cur) {
			out[sub.MilestoneID] = sub
		}
	}
	for id, sub := range out {
		sub.Evidence, sub.Materials = nil, nil
		out[id] = sub
	}
	return out, nil
}

func (r submissionRepo) ListByMilestone(ctx context.Context, milestoneID int64) ([]model.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.st.byMilestone(milestoneID), nil
}

func (r submissionRepo) ListByProject(ctx context.Context, projectID int64, status *model.SubmissionStatus) ([]model.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Submission
	for _, sub := range r.s.st.submissions {
		m, ok := r.s.st.milestones[sub.MilestoneID]
		if !ok || m.ProjectID != projectID {
			continue
		}
		if status != nil && sub.Status != *status {
			continue
		}
		out = append(out, copyOut(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[j].After(out[i]) })
	return out, nil
}

func (r submissionRepo) Review(ctx context.Context, rv store.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.st.submissions[rv.SubmissionID]
	if !ok || !slices.Contains(rv.From, sub.Status) {
		return store.ErrConflict
	}
	at := rv.At
	reviewer := rv.ReviewerID
	sub.Status = rv.To
	if rv.QueryNote != nil {
		sub.QueryNote = rv.QueryNote
	}
	sub.ReviewedAt = &at
	sub.ReviewedBy = &reviewer
	r.s.st.submissions[sub.ID] = sub
	return nil
}

// --- comments

type commentRepo struct{ s *Store }

func (r commentRepo) Insert(ctx context.Context, c *model.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.projects[c.ProjectID]; !ok {
		return store.ErrNotFound
	}
	c.ID = r.s.st.next("comments")
	stored := *c
	stored.Author = nil
	r.s.st.comments = append(slices.Clone(r.s.st.comments), stored)
	return nil
}

func (r commentRepo) newestFirst(projectID int64) []model.Comment {
	out := []model.Comment{}
	for _, c := range r.s.st.comments {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r commentRepo) ListWithAuthors(ctx context.Context, projectID int64) ([]model.Comment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.joinErr != nil {
		return nil, r.s.joinErr
	}
	out := r.newestFirst(projectID)
	for i := range out {
		if a, ok := r.s.st.actors[out[i].AuthorID]; ok {
			out[i].Author = &model.CommentAuthor{FullName: a.FullName, Role: a.Role}
		}
	}
	return out, nil
}

func (r commentRepo) List(ctx context.Context, projectID int64) ([]model.Comment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.newestFirst(projectID), nil
}

// --- outbox

type outboxRepo struct{ s *Store }

func (r outboxRepo) Enqueue(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	e, err := outbox.NewEvent(aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.st.next("outbox_events")
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	r.s.st.events = append(slices.Clone(r.s.st.events), *e)
	return nil
}

// Events returns every recorded outbox event in insertion order.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.events)
}

// EventsByKey decodes the payloads recorded under routingKey.
func EventsByKey[T any](s *Store, routingKey string) ([]T, error) {
	var out []T
	for _, e := range s.Events() {
		if e.RoutingKey != routingKey {
			continue
		}
		var v T
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// The methods below let an outbox.Dispatcher drain the in-memory outbox.

func (s *Store) GetPendingEvents(ctx context.Context, limit int) ([]*outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*outbox.Event
	for _, e := range s.st.events {
		if e.Status != outbox.StatusPending {
			continue
		}
		e := e
		out = append(out, &e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkAsSent(ctx context.Context, eventID int64) error {
	return s.updateEvent(eventID, func(e *outbox.Event) { e.Status = outbox.StatusSent })
}

func (s *Store) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	return s.updateEvent(eventID, func(e *outbox.Event) {
		e.RetryCount++
		if e.RetryCount >= maxRetries {
			e.Status = outbox.StatusFailed
		}
	})
}

func (s *Store) updateEvent(eventID int64, fn func(e *outbox.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := slices.Clone(s.st.events)
	for i := range events {
		if events[i].ID == eventID {
			fn(&events[i])
			events[i].UpdatedAt = time.Now()
			s.st.events = events
			return nil
		}
	}
	return errors.Join(outbox.ErrEventNotFound, fmt.Errorf("event %d", eventID))
}
