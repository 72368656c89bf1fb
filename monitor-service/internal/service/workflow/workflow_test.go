package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/repository/memory"
	"projectmonitor/monitor-service/internal/service/registry"
	"projectmonitor/pkg/blobstore"
	"projectmonitor/pkg/util"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	admin      = model.Actor{ID: 1, Role: model.RoleAdmin, FullName: "Ada Admin"}
	consultant = model.Actor{ID: 2, Role: model.RoleConsultant, FullName: "Chidi Consultant"}
	c1         = model.Actor{ID: 3, Role: model.RoleContractor, FullName: "Kemi Contractor"}
	c2         = model.Actor{ID: 4, Role: model.RoleContractor, FullName: "Tunde Contractor"}
	outsider   = model.Actor{ID: 5, Role: model.RoleConsultant, FullName: "Other Consultant"}
)

type env struct {
	st       *memory.Store
	blobs    *blobstore.LocalStore
	registry *registry.Service
	svc      *Service
	project  int64
	section  int64
	m1, m2   int64 // m1 is in the section, m2 is unassigned
}

// newEnv builds the ICT Center project: M1 in section "Civil Works"
// assigned to c1, M2 unassigned, c1 and c2 in the pool, consultant in
// charge.
func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{st: memory.New()}
	for _, a := range []model.Actor{admin, consultant, c1, c2, outsider} {
		a := a
		require.NoError(t, e.st.Actors().Insert(ctx, &a))
	}

	var err error
	e.blobs, err = blobstore.NewLocalStore(t.TempDir(), "http://localhost:8080", "blob-secret")
	require.NoError(t, err)

	clock := func() time.Time { return time.Now().UTC() }
	e.registry = registry.NewService(e.st, zap.NewNop()).WithClock(clock)
	e.svc = NewService(e.st, e.blobs, cfg, zap.NewNop()).
		WithClock(clock).
		WithRetry(util.RetryPolicy{Attempts: 2})

	res, err := e.registry.CreateProject(ctx, admin, ictInput())
	require.NoError(t, err)
	e.project = res.Project.ID
	e.m1, e.m2 = res.Milestones[0].ID, res.Milestones[1].ID

	_, err = e.registry.AssignConsultant(ctx, admin, e.project, consultant.ID)
	require.NoError(t, err)
	sec, err := e.registry.CreateSection(ctx, consultant, e.project, registry.SectionInput{
		Name:         "Civil Works",
		MilestoneIDs: []int64{e.m1},
	})
	require.NoError(t, err)
	e.section = sec.ID
	_, err = e.registry.AssignContractor(ctx, consultant, sec.ID, c1.ID)
	require.NoError(t, err)
	_, err = e.registry.AddProjectContractor(ctx, consultant, e.project, c2.ID)
	require.NoError(t, err)
	return e
}

func ictInput() registry.CreateProjectInput {
	return registry.CreateProjectInput{
		Title:       "ICT Center",
		TotalBudget: 25_000_000,
		Milestones: []registry.MilestoneInput{
			{Title: "Foundation Pouring", Budget: 10_000_000, DueDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
			{Title: "Fencing", Budget: 1_000_000, DueDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func photo(name string) EvidenceFile {
	return EvidenceFile{FileName: name, ContentType: "image/jpeg", Data: []byte("\xff\xd8\xff\xe0 fake jpeg " + name)}
}

func (e *env) submit(t *testing.T, actor model.Actor, milestoneID int64) *model.Submission {
	t.Helper()
	res, err := e.svc.CreateSubmission(context.Background(), actor, SubmissionInput{
		MilestoneID:     milestoneID,
		WorkDescription: "Poured the foundation slab",
		Evidence:        []EvidenceFile{photo("slab-1.jpg"), photo("slab-2.jpg")},
		Materials:       []MaterialInput{{Name: "Concrete", Quantity: 45, Unit: "m³"}},
	})
	require.NoError(t, err)
	require.False(t, res.Replayed)
	return res.Submission
}

// failingBlobs refuses every upload.
type failingBlobs struct{ err error }

func (f failingBlobs) Put(context.Context, string, string, []byte) (string, error) {
	return "", f.err
}

func (f failingBlobs) Sign(context.Context, string, time.Duration) (string, error) {
	return "", f.err
}

var errBlobDown = errors.New("blob backend unreachable")
