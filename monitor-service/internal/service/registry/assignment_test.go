package registry

import (
	"context"
	"testing"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func projectWithMilestones(t *testing.T, svc *Service, titles ...string) *ProjectResult {
	t.Helper()
	in := ictCenter()
	for _, title := range titles {
		in.Milestones = append(in.Milestones, MilestoneInput{Title: title, DueDate: due()})
	}
	res, err := svc.CreateProject(context.Background(), admin, in)
	require.NoError(t, err)
	return res
}

func TestCreateSection(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	p := projectWithMilestones(t, svc, "M1", "M2")
	m1, m2 := p.Milestones[0].ID, p.Milestones[1].ID

	sec, err := svc.CreateSection(ctx, consultant, p.Project.ID, SectionInput{
		Name:         "Civil Works",
		MilestoneIDs: []int64{m1},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{m1}, sec.MilestoneIDs)

	t.Run("duplicate ids", func(t *testing.T) {
		_, err := svc.CreateSection(ctx, consultant, p.Project.ID, SectionInput{Name: "x", MilestoneIDs: []int64{m2, m2}})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
	t.Run("milestone of another project", func(t *testing.T) {
		q := projectWithMilestones(t, svc, "Q1")
		_, err := svc.CreateSection(ctx, consultant, p.Project.ID, SectionInput{Name: "x", MilestoneIDs: []int64{q.Milestones[0].ID}})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
	t.Run("already linked elsewhere", func(t *testing.T) {
		_, err := svc.CreateSection(ctx, consultant, p.Project.ID, SectionInput{Name: "x", MilestoneIDs: []int64{m2, m1}})
		assert.True(t, apperr.Is(err, apperr.KindConflict))

		// the failed section is rolled back with its links
		sections, err := svc.ListSections(ctx, admin, p.Project.ID)
		require.NoError(t, err)
		assert.Len(t, sections, 1)
	})
	t.Run("contractor may not", func(t *testing.T) {
		_, err := svc.CreateSection(ctx, contractor, p.Project.ID, SectionInput{Name: "x"})
		assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	})
	t.Run("unknown project", func(t *testing.T) {
		_, err := svc.CreateSection(ctx, admin, 999, SectionInput{Name: "x"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestLinkMilestones(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	p := projectWithMilestones(t, svc, "M1", "M2")
	m1, m2 := p.Milestones[0].ID, p.Milestones[1].ID

	sec, err := svc.CreateSection(ctx, admin, p.Project.ID, SectionInput{Name: "Civil", MilestoneIDs: []int64{m1}})
	require.NoError(t, err)

	sec, err = svc.LinkMilestones(ctx, admin, sec.ID, []int64{m1, m2})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{m1, m2}, sec.MilestoneIDs)

	other, err := svc.CreateSection(ctx, admin, p.Project.ID, SectionInput{Name: "Electrical"})
	require.NoError(t, err)
	_, err = svc.LinkMilestones(ctx, admin, other.ID, []int64{m2})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestAssignContractor(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	p := projectWithMilestones(t, svc, "M1")
	sec, err := svc.CreateSection(ctx, consultant, p.Project.ID, SectionInput{Name: "Civil", MilestoneIDs: []int64{p.Milestones[0].ID}})
	require.NoError(t, err)

	res, err := svc.AssignContractor(ctx, consultant, sec.ID, contractor.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Nil(t, res.Previous)
	require.NotNil(t, res.Section.ContractorID)
	assert.Equal(t, contractor.ID, *res.Section.ContractorID)

	again, err := svc.AssignContractor(ctx, consultant, sec.ID, contractor.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed)

	replaced, err := svc.AssignContractor(ctx, consultant, sec.ID, other.ID)
	require.NoError(t, err)
	assert.True(t, replaced.Changed)
	require.NotNil(t, replaced.Previous)
	assert.Equal(t, contractor.ID, *replaced.Previous)

	pool, err := svc.GetProjectContractors(ctx, admin, p.Project.ID)
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, contractor.ID, pool[0].ContractorID)
	assert.Equal(t, other.ID, pool[1].ContractorID)

	_, err = svc.AssignContractor(ctx, consultant, sec.ID, consultant.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.AssignContractor(ctx, consultant, sec.ID, 404)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestStartMilestone(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	p := projectWithMilestones(t, svc, "M1", "M2")
	m1, m2 := p.Milestones[0].ID, p.Milestones[1].ID
	sec, err := svc.CreateSection(ctx, admin, p.Project.ID, SectionInput{Name: "Civil", MilestoneIDs: []int64{m1}})
	require.NoError(t, err)
	_, err = svc.AssignContractor(ctx, admin, sec.ID, contractor.ID)
	require.NoError(t, err)
	_, err = svc.AddProjectContractor(ctx, admin, p.Project.ID, other.ID)
	require.NoError(t, err)

	m, err := svc.StartMilestone(ctx, contractor, m1)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneInProgress, m.Status)

	// pool contractor, but the section belongs to someone else
	_, err = svc.StartMilestone(ctx, other, m1)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	// unmapped milestone: any pool contractor
	m, err = svc.StartMilestone(ctx, other, m2)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneInProgress, m.Status)

	_, err = svc.StartMilestone(ctx, admin, m1)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}
