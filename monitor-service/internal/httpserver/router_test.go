package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"projectmonitor/monitor-service/internal/handler"
	"projectmonitor/monitor-service/internal/model"
	"projectmonitor/monitor-service/internal/repository/memory"
	"projectmonitor/monitor-service/internal/service/comments"
	"projectmonitor/monitor-service/internal/service/progress"
	"projectmonitor/monitor-service/internal/service/registry"
	"projectmonitor/monitor-service/internal/service/workflow"
	"projectmonitor/pkg/blobstore"
	"projectmonitor/pkg/trace"
	"projectmonitor/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "test-secret"

type server struct {
	t      *testing.T
	engine *gin.Engine
	st     *memory.Store
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	st := memory.New()

	blobs, err := blobstore.NewLocalStore(t.TempDir(), "", "blob-secret")
	require.NoError(t, err)

	h := Handlers{
		Projects:    handler.NewProjectHandler(registry.NewService(st, log), log),
		Submissions: handler.NewSubmissionHandler(workflow.NewService(st, blobs, workflow.DefaultConfig(), log), 32<<20, log),
		Progress:    handler.NewProgressHandler(progress.NewService(st, log), log),
		Comments:    handler.NewCommentHandler(comments.NewService(st, log), log),
		Blobs:       handler.NewBlobHandler(blobs, log),
	}
	r := NewRouter(h, secret, st.Actors(), st, nil, log)

	for _, a := range []model.Actor{
		{ID: 1, Role: model.RoleAdmin, FullName: "Ada Admin"},
		{ID: 2, Role: model.RoleConsultant, FullName: "Chidi Consultant"},
		{ID: 3, Role: model.RoleContractor, FullName: "Kemi Contractor"},
	} {
		a := a
		require.NoError(t, st.Actors().Insert(context.Background(), &a))
	}
	return &server{t: t, engine: r.Engine, st: st}
}

func token(t *testing.T, id int64, role string) string {
	t.Helper()
	tok, err := util.GenerateJWT(id, role, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *server) do(req *http.Request, tok string) *httptest.ResponseRecorder {
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *server) json(method, path, tok string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, tok)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthEndpoints(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/healthz", "/health", "/readyz"} {
		w := s.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	w := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthentication(t *testing.T) {
	s := newServer(t)

	w := s.json(http.MethodGet, "/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.json(http.MethodGet, "/projects", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// registered as consultant, token claims admin
	w = s.json(http.MethodGet, "/projects", token(t, 2, "ADMIN"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.json(http.MethodGet, "/projects", token(t, 1, "ADMIN"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName()))
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	admin := token(t, 1, "ADMIN")
	consultant := token(t, 2, "CONSULTANT")

	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		body   any
		want   int
	}{
		{"validation", http.MethodPost, "/projects", admin, map[string]any{"title": ""}, http.StatusBadRequest},
		{"authorization", http.MethodPost, "/projects", consultant, map[string]any{"title": "x"}, http.StatusForbidden},
		{"not found", http.MethodGet, "/projects/404", admin, nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/projects/abc", admin, nil, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/projects", admin, map[string]any{
			"title":      "x",
			"milestones": []map[string]any{{"title": "m", "due_date": "March 1st"}},
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.json(tt.method, tt.path, tt.tok, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func (s *server) submit(milestoneID int64, tok, key string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(s.t, mw.WriteField("work_description", "Poured the foundation slab"))
	require.NoError(s.t, mw.WriteField("materials", `[{"material_name":"Concrete","quantity":45,"unit":"m3"}]`))
	for _, name := range []string{"slab-1.jpg", "slab-2.jpg"} {
		part, err := mw.CreateFormFile("evidence", name)
		require.NoError(s.t, err)
		_, err = part.Write([]byte("\xff\xd8\xff\xe0 jpeg bytes of " + name))
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/milestones/"+itoa(milestoneID)+"/submissions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if key != "" {
		req.Header.Set(handler.IdempotencyHeader, key)
	}
	return s.do(req, tok)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestSubmissionFlowOverHTTP(t *testing.T) {
	s := newServer(t)
	admin := token(t, 1, "ADMIN")
	consultant := token(t, 2, "CONSULTANT")
	contractor := token(t, 3, "CONTRACTOR")

	w := s.json(http.MethodPost, "/projects", admin, map[string]any{
		"title":        "ICT Center",
		"total_budget": 25000000,
		"milestones": []map[string]any{
			{"title": "Foundation Pouring", "budget": 10000000, "due_date": "2025-03-01"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[registry.ProjectResult](t, w)
	pid, m1 := created.Project.ID, created.Milestones[0].ID

	w = s.json(http.MethodPost, "/projects/"+itoa(pid)+"/sections", consultant, map[string]any{
		"name": "Civil Works", "milestone_ids": []int64{m1},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sec := decode[model.Section](t, w)

	w = s.json(http.MethodPut, "/sections/"+itoa(sec.ID)+"/contractor", consultant, map[string]any{"contractor_id": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.submit(m1, contractor, "retry-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sub := decode[model.Submission](t, w)
	require.Len(t, sub.Evidence, 2)

	// same key: the original comes back
	w = s.submit(m1, contractor, "retry-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, sub.ID, decode[model.Submission](t, w).ID)

	// evidence is served through the signed link only
	link, err := url.Parse(sub.Evidence[0].URL)
	require.NoError(t, err)
	w = s.do(httptest.NewRequest(http.MethodGet, link.RequestURI(), nil), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "slab-")
	w = s.do(httptest.NewRequest(http.MethodGet, link.Path+"?token=forged", nil), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.json(http.MethodPost, "/submissions/"+itoa(sub.ID)+"/query", consultant, map[string]any{"query_note": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.json(http.MethodPost, "/submissions/"+itoa(sub.ID)+"/approve", consultant, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.json(http.MethodPost, "/submissions/"+itoa(sub.ID)+"/approve", consultant, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.json(http.MethodGet, "/sections/"+itoa(sec.ID)+"/progress", contractor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[progress.SectionReport](t, w)
	assert.Equal(t, 100, report.Percent)
	assert.Equal(t, model.MilestoneCompleted, report.Status)

	w = s.json(http.MethodPost, "/projects/"+itoa(pid)+"/comments", contractor, map[string]any{"body": "Thanks!"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.json(http.MethodGet, "/projects/"+itoa(pid)+"/comments", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Comments []model.Comment `json:"comments"`
	}](t, w)
	require.Len(t, list.Comments, 1)
	require.NotNil(t, list.Comments[0].Author)
	assert.Equal(t, "Kemi Contractor", list.Comments[0].Author.FullName)
}
