package progress

import (
	"context"
	"testing"
	"time"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/repository/memory"
	"projectmonitor/monitor-service/internal/store"
	"projectmonitor/pkg/apperr"
	"projectmonitor/pkg/util"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	admin      = model.Actor{ID: 1, Role: model.RoleAdmin}
	contractor = model.Actor{ID: 3, Role: model.RoleContractor}
	t0         = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	st      *memory.Store
	svc     *Service
	project *model.Project
	section *model.Section
	mapped  []int64
	loose   int64
}

// newFixture builds a project with two milestones in one section and one
// unassigned milestone.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{st: memory.New()}
	f.svc = NewService(f.st, zap.NewNop()).WithRetry(util.RetryPolicy{Attempts: 2})

	f.project = &model.Project{Title: "ICT Center", Status: model.ProjectActive, CreatedAt: t0}
	require.NoError(t, f.st.Projects().Insert(ctx, f.project))

	for i, title := range []string{"Foundation", "Walls", "Landscaping"} {
		m := &model.Milestone{ProjectID: f.project.ID, Title: title, SortOrder: i, Status: model.MilestoneNotStarted}
		require.NoError(t, f.st.Milestones().Insert(ctx, m))
		if i < 2 {
			f.mapped = append(f.mapped, m.ID)
		} else {
			f.loose = m.ID
		}
	}

	f.section = &model.Section{ProjectID: f.project.ID, Name: "Civil Works"}
	require.NoError(t, f.st.Sections().Insert(ctx, f.section))
	for _, id := range f.mapped {
		require.NoError(t, f.st.Sections().LinkMilestone(ctx, f.section.ID, id))
	}
	return f
}

func (f *fixture) submit(t *testing.T, milestoneID int64, at time.Time) *model.Submission {
	t.Helper()
	sub := &model.Submission{
		MilestoneID:     milestoneID,
		ContractorID:    contractor.ID,
		Status:          model.SubmissionPendingApproval,
		WorkDescription: "done",
		SubmittedAt:     at,
	}
	require.NoError(t, f.st.Submissions().Insert(context.Background(), sub))
	return sub
}

func (f *fixture) review(t *testing.T, sub *model.Submission, to model.SubmissionStatus) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.st.Submissions().Review(ctx, store.Review{
		SubmissionID: sub.ID,
		From:         []model.SubmissionStatus{model.SubmissionPendingApproval},
		To:           to,
		ReviewerID:   2,
		At:           t0,
	}))
	if to == model.SubmissionApproved {
		require.NoError(t, f.st.Milestones().UpdateStatus(ctx, sub.MilestoneID, model.MilestoneCompleted))
	}
}

func (f *fixture) report(t *testing.T) *ProjectReport {
	t.Helper()
	r, err := f.svc.ProjectReport(context.Background(), admin, f.project.ID)
	require.NoError(t, err)
	return r
}

func TestProjectReportFresh(t *testing.T) {
	f := newFixture(t)
	r := f.report(t)

	assert.Equal(t, 0, r.Percent)
	assert.Equal(t, 0, r.StagedPercent)
	require.Len(t, r.Sections, 1)
	assert.Equal(t, model.MilestoneInProgress, r.Sections[0].Status)
	require.Len(t, r.Unassigned, 1)
	assert.Equal(t, f.loose, r.Unassigned[0].Milestone.ID)
}

// Unassigned milestones count toward the project but never show up in a
// section.
func TestUnassignedMilestones(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, f.loose, t0)
	f.review(t, sub, model.SubmissionApproved)

	r := f.report(t)
	assert.Equal(t, 33, r.Percent)
	assert.Equal(t, 0, r.Sections[0].Percent)
	for _, mp := range r.Sections[0].Milestones {
		assert.NotEqual(t, f.loose, mp.Milestone.ID)
	}
	assert.Equal(t, model.MilestoneCompleted, r.Unassigned[0].Status)
}

func TestSectionFollowsLatestSubmission(t *testing.T) {
	f := newFixture(t)
	m1, m2 := f.mapped[0], f.mapped[1]

	s1 := f.submit(t, m1, t0)
	sec := f.report(t).Sections[0]
	assert.Equal(t, model.MilestonePendingApproval, sec.Status)
	assert.Equal(t, 38, sec.StagedPercent) // (75 + 0) / 2

	f.review(t, s1, model.SubmissionQueried)
	sec = f.report(t).Sections[0]
	assert.Equal(t, model.MilestoneQueried, sec.Status)
	assert.Equal(t, 25, sec.StagedPercent)

	s2 := f.submit(t, m1, t0.Add(time.Hour))
	f.review(t, s2, model.SubmissionApproved)
	s3 := f.submit(t, m2, t0.Add(2*time.Hour))
	f.review(t, s3, model.SubmissionApproved)

	sec = f.report(t).Sections[0]
	assert.Equal(t, model.MilestoneCompleted, sec.Status)
	assert.Equal(t, 100, sec.Percent)
	assert.Equal(t, 100, sec.StagedPercent)
	require.NotNil(t, sec.Milestones[0].LatestSubmissionID)
	assert.Equal(t, s2.ID, *sec.Milestones[0].LatestSubmissionID)
}

func TestApproveNeverLowersQueryNeverRaises(t *testing.T) {
	f := newFixture(t)
	m1 := f.mapped[0]

	before := f.report(t)
	s1 := f.submit(t, m1, t0)
	afterSubmit := f.report(t)
	f.review(t, s1, model.SubmissionQueried)
	afterQuery := f.report(t)
	assert.LessOrEqual(t, afterQuery.StagedPercent, afterSubmit.StagedPercent)
	assert.LessOrEqual(t, afterQuery.Percent, afterSubmit.Percent)

	s2 := f.submit(t, m1, t0.Add(time.Minute))
	afterResubmit := f.report(t)
	f.review(t, s2, model.SubmissionApproved)
	afterApprove := f.report(t)
	assert.GreaterOrEqual(t, afterApprove.StagedPercent, afterResubmit.StagedPercent)
	assert.GreaterOrEqual(t, afterApprove.Percent, afterResubmit.Percent)
	assert.GreaterOrEqual(t, afterApprove.StagedPercent, before.StagedPercent)
}

func TestStartedMilestoneScoresHalf(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.st.Milestones().UpdateStatus(context.Background(), f.mapped[0], model.MilestoneInProgress))

	mp, err := f.svc.MilestoneReport(context.Background(), admin, f.mapped[0])
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneInProgress, mp.Status)
	assert.Equal(t, float64(50), mp.Staged)
	assert.Nil(t, mp.LatestSubmissionID)
}

func TestSectionReportMatchesProjectReport(t *testing.T) {
	f := newFixture(t)
	f.submit(t, f.mapped[1], t0)

	sec, err := f.svc.SectionReport(context.Background(), admin, f.section.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(f.report(t).Sections[0], *sec); diff != "" {
		t.Errorf("section report mismatch (-project +section):\n%s", diff)
	}
}

func TestReportsHideInvisibleProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ProjectReport(ctx, contractor, f.project.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.SectionReport(ctx, contractor, f.section.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.MilestoneReport(ctx, contractor, f.loose)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

type flatPolicy struct{}

func (flatPolicy) Staged(_, derived model.MilestoneStatus) float64 {
	if derived == model.MilestoneCompleted {
		return 100
	}
	return 0
}

func TestCustomPolicy(t *testing.T) {
	f := newFixture(t)
	f.svc.WithPolicy(flatPolicy{})
	f.submit(t, f.mapped[0], t0)
	assert.Equal(t, 0, f.report(t).StagedPercent)
}

// flakyStore fails the next LatestByProject calls with a timeout.
type flakyStore struct {
	store.Store
	fails int
	calls int
}

func (f *flakyStore) Submissions() store.SubmissionRepository {
	return flakySubmissions{SubmissionRepository: f.Store.Submissions(), f: f}
}

type flakySubmissions struct {
	store.SubmissionRepository
	f *flakyStore
}

func (s flakySubmissions) LatestByProject(ctx context.Context, projectID int64) (map[int64]model.Submission, error) {
	s.f.calls++
	if s.f.fails > 0 {
		s.f.fails--
		return nil, context.DeadlineExceeded
	}
	return s.SubmissionRepository.LatestByProject(ctx, projectID)
}

func TestReportRetriesTransientStoreErrors(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, f.loose, t0)
	f.review(t, sub, model.SubmissionApproved)

	t.Run("recovers within the policy", func(t *testing.T) {
		flaky := &flakyStore{Store: f.st, fails: 1}
		svc := NewService(flaky, zap.NewNop()).WithRetry(util.RetryPolicy{Attempts: 2})
		r, err := svc.ProjectReport(context.Background(), admin, f.project.ID)
		require.NoError(t, err)
		assert.Equal(t, 33, r.Percent)
		assert.Equal(t, 2, flaky.calls)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		flaky := &flakyStore{Store: f.st, fails: 5}
		svc := NewService(flaky, zap.NewNop()).WithRetry(util.RetryPolicy{Attempts: 2})
		_, err := svc.ProjectReport(context.Background(), admin, f.project.ID)
		assert.True(t, apperr.Is(err, apperr.KindDependency))
		assert.Equal(t, 2, flaky.calls)
	})
}
