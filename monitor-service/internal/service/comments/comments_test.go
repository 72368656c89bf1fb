package comments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contracts "projectmonitor/contracts/mq"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/repository/memory"
	"projectmonitor/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	admin      = model.Actor{ID: 1, Role: model.RoleAdmin, FullName: "Ada Admin"}
	consultant = model.Actor{ID: 2, Role: model.RoleConsultant, FullName: "Chidi Consultant"}
	contractor = model.Actor{ID: 3, Role: model.RoleContractor, FullName: "Kemi Contractor"}
	stranger   = model.Actor{ID: 9, Role: model.RoleContractor, FullName: "Stranger"}
)

func setup(t *testing.T) (*Service, *memory.Store, int64) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	for _, a := range []model.Actor{admin, consultant, contractor, stranger} {
		a := a
		require.NoError(t, st.Actors().Insert(ctx, &a))
	}
	cid := consultant.ID
	p := &model.Project{Title: "ICT Center", CreatedBy: admin.ID, ConsultantID: &cid, Status: model.ProjectActive}
	require.NoError(t, st.Projects().Insert(ctx, p))
	_, err := st.Projects().AddContractor(ctx, p.ID, contractor.ID, time.Now())
	require.NoError(t, err)

	tick := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(st, zap.NewNop()).WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	})
	return svc, st, p.ID
}

func TestAddComment(t *testing.T) {
	svc, st, pid := setup(t)
	ctx := context.Background()

	c, err := svc.AddComment(ctx, contractor, pid, "  Rebar delivered on site  ")
	require.NoError(t, err)
	assert.Equal(t, "Rebar delivered on site", c.Body)
	require.NotNil(t, c.Author)
	assert.Equal(t, model.RoleContractor, c.Author.Role)

	events, err := memory.EventsByKey[contracts.CommentAddedPayload](st, contracts.RoutingKeyCommentAdded)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []int64{admin.ID, consultant.ID}, events[0].RecipientIDs)
	assert.Equal(t, c.ID, events[0].CommentID)
}

func TestAddCommentValidation(t *testing.T) {
	svc, st, pid := setup(t)
	ctx := context.Background()

	_, err := svc.AddComment(ctx, admin, pid, " \t ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.AddComment(ctx, admin, pid, strings.Repeat("é", MaxBodyLength+1))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.AddComment(ctx, admin, pid, strings.Repeat("é", MaxBodyLength))
	assert.NoError(t, err)

	_, err = svc.AddComment(ctx, stranger, pid, "hello")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	events, err := memory.EventsByKey[contracts.CommentAddedPayload](st, contracts.RoutingKeyCommentAdded)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, []rune(events[0].Excerpt), excerptLength+1)
}

func TestListCommentsNewestFirst(t *testing.T) {
	svc, _, pid := setup(t)
	ctx := context.Background()

	for _, body := range []string{"first", "second", "third"} {
		_, err := svc.AddComment(ctx, consultant, pid, body)
		require.NoError(t, err)
	}

	list, err := svc.ListComments(ctx, contractor, pid)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Body)
	assert.Equal(t, "first", list[2].Body)
	require.NotNil(t, list[0].Author)
	assert.Equal(t, "Chidi Consultant", list[0].Author.FullName)

	// appending never rewrites what was there
	_, err = svc.AddComment(ctx, admin, pid, "fourth")
	require.NoError(t, err)
	again, err := svc.ListComments(ctx, contractor, pid)
	require.NoError(t, err)
	assert.Equal(t, list, again[1:])

	_, err = svc.ListComments(ctx, stranger, pid)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListCommentsWithoutAuthors(t *testing.T) {
	svc, st, pid := setup(t)
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	svc.logger = zap.New(core)

	_, err := svc.AddComment(ctx, consultant, pid, "pour scheduled for Monday")
	require.NoError(t, err)

	st.FailAuthorJoin(errors.New("actors table unavailable"))
	list, err := svc.ListComments(ctx, admin, pid)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Author)
	assert.Equal(t, "pour scheduled for Monday", list[0].Body)
	assert.Equal(t, 1, logs.FilterMessage("Comment author join failed, listing without authors").Len())
}
