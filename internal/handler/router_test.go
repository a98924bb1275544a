package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/hiring/internal/domain"
	"github.com/sumire/hiring/internal/repository/memory"
	"github.com/sumire/hiring/internal/service"
)

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

type testServer struct {
	e      *echo.Echo
	tokens *service.TokenService
	org    uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	jobs := service.NewJobService(store, store, store, nil)
	tokens := service.NewTokenService(service.TokenConfig{Secret: "test-secret", Issuer: "hiring"})
	e := NewRouter(Services{
		Pipelines:    service.NewPipelineService(store, store),
		Jobs:         jobs,
		Applications: service.NewApplicationService(store, store, store, store, nil, service.NewAutoTransitionTrigger(store, jobs)),
		Tokens:       tokens,
		TokenTTL:     15 * time.Minute,
	})
	return &testServer{e: e, tokens: tokens, org: uuid.New()}
}

func (s *testServer) token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := s.tokens.Issue(domain.Actor{ID: "user-" + roles[0], Roles: roles})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, token, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

func decode[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	other := service.NewTokenService(service.TokenConfig{Secret: "other-secret", Issuer: "hiring"})
	forged, err := other.Issue(domain.Actor{ID: "mallory"})
	require.NoError(t, err)

	for name, token := range map[string]string{"missing": "", "forged": forged} {
		t.Run(name, func(t *testing.T) {
			code, resp := s.do(t, token, http.MethodGet, "/api/v1/pipelines?organization_id="+s.org.String(), nil)
			assert.Equal(t, http.StatusUnauthorized, code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "unauthorized", resp.Error.Code)
		})
	}
}

func TestRouter_MeAndRefresh(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "recruiter", "hiring_manager")

	code, resp := s.do(t, tok, http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.Actor{ID: "user-recruiter", Roles: []string{"recruiter", "hiring_manager"}}, decode[domain.Actor](t, resp))

	code, resp = s.do(t, tok, http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusOK, code)
	renewed := decode[tokenResponse](t, resp)
	assert.Equal(t, "Bearer", renewed.TokenType)
	assert.Equal(t, 900, renewed.ExpiresIn)

	actor, err := s.tokens.Verify(renewed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-recruiter", actor.ID)
}

func TestRouter_ValidationErrors(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "admin")

	code, resp := s.do(t, tok, http.MethodPost, "/api/v1/pipelines", map[string]any{"organization_id": s.org, "name": "Eng"})
	require.Equal(t, http.StatusCreated, code)
	p := decode[domain.Pipeline](t, resp)

	tests := []struct {
		name      string
		method    string
		path      string
		body      any
		wantCode  int
		wantError string
		wantField string
	}{
		{
			name:      "bad stage key",
			method:    http.MethodPost,
			path:      "/api/v1/pipelines/" + p.ID.String() + "/stages",
			body:      map[string]any{"key": "Phone Screen", "name": "Phone", "type": "screening"},
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "key",
		},
		{
			name:      "bad stage type",
			method:    http.MethodPost,
			path:      "/api/v1/pipelines/" + p.ID.String() + "/stages",
			body:      map[string]any{"key": "phone", "name": "Phone", "type": "lunch"},
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "type",
		},
		{
			name:      "bad path id",
			method:    http.MethodGet,
			path:      "/api/v1/pipelines/not-a-uuid",
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "id",
		},
		{
			name:      "unknown pipeline",
			method:    http.MethodGet,
			path:      "/api/v1/pipelines/" + uuid.NewString(),
			wantCode:  http.StatusNotFound,
			wantError: "not_found",
		},
		{
			name:      "duplicate name",
			method:    http.MethodPost,
			path:      "/api/v1/pipelines",
			body:      map[string]any{"organization_id": s.org, "name": "Eng"},
			wantCode:  http.StatusConflict,
			wantError: "conflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.do(t, tok, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantError, resp.Error.Code)
			if tt.wantField != "" {
				require.Len(t, resp.Error.Details, 1)
				assert.Equal(t, tt.wantField, resp.Error.Details[0].Field)
			}
		})
	}
}

func TestRouter_HiringFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "admin")
	recruiter := s.token(t, "recruiter")

	code, resp := s.do(t, admin, http.MethodPost, "/api/v1/pipelines/default", map[string]any{"organization_id": s.org})
	require.Equal(t, http.StatusCreated, code)
	detail := decode[service.PipelineDetail](t, resp)
	require.NotEmpty(t, detail.Stages)

	code, resp = s.do(t, admin, http.MethodGet, "/api/v1/pipelines/"+detail.ID.String()+"/validation", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[domain.ValidationReport](t, resp).Valid)

	code, resp = s.do(t, admin, http.MethodPost, "/api/v1/jobs", map[string]any{
		"organization_id": s.org,
		"title":           "Platform Engineer",
		"pipeline_id":     detail.ID,
	})
	require.Equal(t, http.StatusCreated, code)
	job := decode[domain.Job](t, resp)
	assert.Equal(t, domain.JobStatusDraft, job.Status)
	jobPath := "/api/v1/jobs/" + job.ID.String()

	code, resp = s.do(t, admin, http.MethodPost, jobPath+"/transitions", map[string]any{"status": "active"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_transition", resp.Error.Code)

	for _, status := range []string{"pending_approval", "active"} {
		code, _ = s.do(t, admin, http.MethodPost, jobPath+"/transitions", map[string]any{"status": status})
		require.Equal(t, http.StatusOK, code, status)
	}

	code, resp = s.do(t, recruiter, http.MethodPost, jobPath+"/applications", map[string]any{"candidate_id": uuid.New()})
	require.Equal(t, http.StatusCreated, code)
	app := decode[domain.Application](t, resp)
	appPath := "/api/v1/applications/" + app.ID.String()

	code, resp = s.do(t, recruiter, http.MethodGet, appPath+"/next-stages", nil)
	require.Equal(t, http.StatusOK, code)
	next := decode[[]domain.Stage](t, resp)
	require.Len(t, next, 1)
	entry := next[0].Key

	code, resp = s.do(t, recruiter, http.MethodPost, appPath+"/stage", map[string]any{"stage_key": entry, "notes": "looks good"})
	require.Equal(t, http.StatusOK, code)
	moved := decode[domain.Application](t, resp)
	require.NotNil(t, moved.CurrentStageKey)
	assert.Equal(t, entry, *moved.CurrentStageKey)

	code, resp = s.do(t, recruiter, http.MethodPost, appPath+"/stage", map[string]any{"stage_key": "ghost"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_input", resp.Error.Code)

	code, resp = s.do(t, recruiter, http.MethodPost, appPath+"/status", map[string]any{"status": "daydreaming"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.Error.Code)

	code, resp = s.do(t, recruiter, http.MethodPost, appPath+"/status", map[string]any{"status": "withdrawn", "reason": "relocated"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.ApplicationStatusWithdrawn, decode[domain.Application](t, resp).Status)

	code, _ = s.do(t, admin, http.MethodPost, jobPath+"/transitions", map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, code)
	code, resp = s.do(t, admin, http.MethodPost, jobPath+"/transitions", map[string]any{"status": "active"})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "terminal_state", resp.Error.Code)

	code, resp = s.do(t, admin, http.MethodGet, jobPath+"/transitions", nil)
	require.Equal(t, http.StatusOK, code)
	var lifecycle struct {
		Status      domain.JobStatus   `json:"status"`
		Terminal    bool               `json:"terminal"`
		Transitions []domain.JobStatus `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &lifecycle))
	assert.Equal(t, domain.JobStatusCancelled, lifecycle.Status)
	assert.True(t, lifecycle.Terminal)
	assert.Empty(t, lifecycle.Transitions)
}

func TestRouter_StageEdgeRequired(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "admin")

	code, resp := s.do(t, admin, http.MethodPost, "/api/v1/pipelines", map[string]any{"organization_id": s.org, "name": "Tiny"})
	require.Equal(t, http.StatusCreated, code)
	p := decode[domain.Pipeline](t, resp)
	base := "/api/v1/pipelines/" + p.ID.String()

	for _, st := range []map[string]any{
		{"key": "applied", "name": "Applied", "type": "custom"},
		{"key": "screen", "name": "Screen", "type": "screening"},
		{"key": "offer", "name": "Offer", "type": "offer"},
	} {
		code, resp := s.do(t, admin, http.MethodPost, base+"/stages", st)
		require.Equal(t, http.StatusCreated, code, resp.Error)
	}
	code, _ = s.do(t, admin, http.MethodPost, base+"/transitions", map[string]any{"from_stage_key": "applied", "to_stage_key": "screen"})
	require.Equal(t, http.StatusCreated, code)

	code, resp = s.do(t, admin, http.MethodPost, "/api/v1/jobs", map[string]any{"organization_id": s.org, "title": "Designer", "pipeline_id": p.ID})
	require.Equal(t, http.StatusCreated, code)
	jobPath := "/api/v1/jobs/" + decode[domain.Job](t, resp).ID.String()
	for _, status := range []string{"pending_approval", "active"} {
		code, _ = s.do(t, admin, http.MethodPost, jobPath+"/transitions", map[string]any{"status": status})
		require.Equal(t, http.StatusOK, code)
	}
	code, resp = s.do(t, admin, http.MethodPost, jobPath+"/applications", map[string]any{"candidate_id": uuid.New()})
	require.Equal(t, http.StatusCreated, code)
	appPath := "/api/v1/applications/" + decode[domain.Application](t, resp).ID.String()

	code, _ = s.do(t, admin, http.MethodPost, appPath+"/stage", map[string]any{"stage_key": "applied"})
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, admin, http.MethodPost, appPath+"/stage", map[string]any{"stage_key": "offer"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_transition", resp.Error.Code)
	assert.Equal(t, []string{"screen"}, resp.Error.Available)
}
