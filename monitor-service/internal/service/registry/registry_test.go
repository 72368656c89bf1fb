package registry

import (
	"context"
	"testing"
	"time"

	contracts "projectmonitor/contracts/mq"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/repository/memory"
	"projectmonitor/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	admin      = model.Actor{ID: 1, Role: model.RoleAdmin, FullName: "Ada Admin"}
	consultant = model.Actor{ID: 2, Role: model.RoleConsultant, FullName: "Chidi Consultant"}
	contractor = model.Actor{ID: 3, Role: model.RoleContractor, FullName: "Kemi Contractor"}
	other      = model.Actor{ID: 4, Role: model.RoleContractor, FullName: "Tunde Contractor"}
)

func setup(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	for _, a := range []model.Actor{admin, consultant, contractor, other} {
		a := a
		require.NoError(t, st.Actors().Insert(ctx, &a))
	}
	svc := NewService(st, zap.NewNop()).WithClock(func() time.Time {
		return time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	})
	return svc, st
}

func due() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

func ictCenter(milestones ...MilestoneInput) CreateProjectInput {
	return CreateProjectInput{
		Title:       "ICT Center",
		Location:    "Abuja",
		TotalBudget: 25_000_000,
		Milestones:  milestones,
	}
}

func TestCreateProject(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()

	res, err := svc.CreateProject(ctx, admin, ictCenter(
		MilestoneInput{Title: "Foundation Pouring", Budget: 10_000_000, DueDate: due()},
		MilestoneInput{Title: "Roofing", Budget: 5_000_000, DueDate: due()},
	))
	require.NoError(t, err)

	assert.Equal(t, model.ProjectActive, res.Project.Status)
	assert.Equal(t, "NGN", res.Project.Currency)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Milestones, 2)
	for i, m := range res.Milestones {
		assert.Equal(t, i, m.SortOrder)
		assert.Equal(t, model.MilestoneNotStarted, m.Status)
		assert.Equal(t, res.Project.ID, m.ProjectID)
	}

	events, err := memory.EventsByKey[contracts.ProjectCreatedPayload](st, contracts.RoutingKeyProjectCreated)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, res.Project.ID, events[0].ProjectID)
	assert.Equal(t, []int64{admin.ID}, events[0].RecipientIDs)
	assert.NotEmpty(t, events[0].EventID)
}

func TestCreateProjectBudgetOverrunIsWarning(t *testing.T) {
	svc, _ := setup(t)

	in := ictCenter(MilestoneInput{Title: "Everything", Budget: 30_000_000, DueDate: due()})
	res, err := svc.CreateProject(context.Background(), admin, in)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "above the project budget")
}

func TestCreateProjectValidation(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateProjectInput
	}{
		{"empty title", CreateProjectInput{Title: "  "}},
		{"negative budget", CreateProjectInput{Title: "x", TotalBudget: -1}},
		{"milestone without title", ictCenter(MilestoneInput{DueDate: due()})},
		{"milestone without due date", ictCenter(MilestoneInput{Title: "x"})},
		{"negative milestone budget", ictCenter(MilestoneInput{Title: "x", DueDate: due(), Budget: -5})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProject(ctx, admin, tt.in)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
	assert.Empty(t, st.Events())
}

func TestCreateProjectAdminOnly(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.CreateProject(context.Background(), consultant, ictCenter())
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestExplicitSortOrder(t *testing.T) {
	svc, _ := setup(t)
	order := 7
	res, err := svc.CreateProject(context.Background(), admin, ictCenter(
		MilestoneInput{Title: "a", DueDate: due(), SortOrder: &order},
	))
	require.NoError(t, err)
	assert.Equal(t, 7, res.Milestones[0].SortOrder)
}

func TestAddMilestone(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	res, err := svc.CreateProject(ctx, admin, ictCenter(
		MilestoneInput{Title: "Foundation", Budget: 20_000_000, DueDate: due()},
	))
	require.NoError(t, err)

	added, err := svc.AddMilestone(ctx, consultant, res.Project.ID,
		MilestoneInput{Title: "Roofing", Budget: 10_000_000, DueDate: due()})
	require.NoError(t, err)
	assert.Equal(t, 1, added.Milestone.SortOrder)
	assert.Len(t, added.Warnings, 1)

	_, err = svc.AddMilestone(ctx, contractor, res.Project.ID, MilestoneInput{Title: "x", DueDate: due()})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	ms, err := svc.ListMilestones(ctx, admin, res.Project.ID)
	require.NoError(t, err)
	assert.Len(t, ms, 2)
}

func TestVisibilityOfProjects(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	a, err := svc.CreateProject(ctx, admin, ictCenter())
	require.NoError(t, err)
	b, err := svc.CreateProject(ctx, admin, CreateProjectInput{Title: "Library"})
	require.NoError(t, err)

	_, err = svc.AssignConsultant(ctx, admin, b.Project.ID, consultant.ID)
	require.NoError(t, err)
	added, err := svc.AddProjectContractor(ctx, admin, a.Project.ID, contractor.ID)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = svc.AddProjectContractor(ctx, admin, a.Project.ID, contractor.ID)
	require.NoError(t, err)
	assert.False(t, added)

	all, err := svc.ListProjects(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := svc.ListProjects(ctx, contractor)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.Project.ID, mine[0].ID)

	none, err := svc.ListProjects(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.GetProject(ctx, other, a.Project.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	pool, err := svc.GetProjectContractors(ctx, consultant, a.Project.ID)
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, contractor.ID, pool[0].ContractorID)
}

func TestAssignConsultantRequiresConsultantActor(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	res, err := svc.CreateProject(ctx, admin, ictCenter())
	require.NoError(t, err)

	_, err = svc.AssignConsultant(ctx, admin, res.Project.ID, contractor.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.AssignConsultant(ctx, consultant, res.Project.ID, consultant.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = svc.AssignConsultant(ctx, admin, 999, consultant.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdateProjectStatus(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	res, err := svc.CreateProject(ctx, admin, ictCenter())
	require.NoError(t, err)

	p, err := svc.UpdateProjectStatus(ctx, admin, res.Project.ID, "suspended")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectSuspended, p.Status)

	_, err = svc.UpdateProjectStatus(ctx, admin, res.Project.ID, "paused")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRegisterActor(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	a, err := svc.RegisterActor(ctx, admin, 10, "consultant", " Ngozi ")
	require.NoError(t, err)
	assert.Equal(t, model.RoleConsultant, a.Role)
	assert.Equal(t, "Ngozi", a.FullName)

	_, err = svc.RegisterActor(ctx, admin, 10, "CONTRACTOR", "Ngozi")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.RegisterActor(ctx, consultant, 11, "ADMIN", "Eve")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = svc.RegisterActor(ctx, admin, 12, "OWNER", "Eve")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
