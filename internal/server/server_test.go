package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionline/internal/config"
	"visionline/internal/db"
	"visionline/internal/domain"
	"visionline/internal/engine"
	"visionline/internal/metrics"
	"visionline/internal/migrate"
)

const testProject = "proj-1"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default(testProject))
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	e.Metrics = metrics.New()
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return srv
}

func doRequest(t *testing.T, method, target, contentType string, body []byte, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, target, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func doJSON(t *testing.T, method, target string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return doRequest(t, method, target, "application/json", payload, headers)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Violations []string `json:"violations"`
		} `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func projectURL(srv *httptest.Server, parts ...string) string {
	return srv.URL + "/v0/projects/" + testProject + strings.Join(parts, "")
}

func visionBody() map[string]any {
	return map[string]any{
		"target_audience":           "platform teams",
		"unique_value_proposition":  "faster delivery",
		"strategic_alignment_score": 0.8,
		"innovation_priorities":     []string{"ai"},
		"objectives": []map[string]any{
			{"id": "obj-1", "title": "Grow adoption", "current_value": 25, "target_value": 100, "deadline_in_days": 90},
		},
	}
}

func createVision(t *testing.T, srv *httptest.Server) {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, projectURL(srv, "/vision?name=Demo"), visionBody(), map[string]string{"X-Actor-Id": "alice"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestVisionHierarchyOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	createVision(t, srv)

	res, data := doJSON(t, http.MethodGet, projectURL(srv, "/vision"), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var view domain.ProjectVisionView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, testProject, view.ProjectID)
	assert.InDelta(t, 25.0, view.OverallProgress, 1e-9)

	res, data = doJSON(t, http.MethodPost, projectURL(srv, "/branches"), map[string]any{
		"branch_id":                 "feature/x",
		"branch_objectives":         []string{"ship onboarding"},
		"alignment_with_project":    0.9,
		"contributes_to_objectives": []string{"obj-1"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	branchPath := "/branches/" + url.PathEscape("feature/x")
	res, data = doJSON(t, http.MethodPatch, projectURL(srv, branchPath, "/alignment"), map[string]any{"alignment": 0.8}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var branch domain.BranchVisionView
	require.NoError(t, json.Unmarshal(data, &branch))
	assert.Equal(t, "feature/x", branch.BranchID)
	assert.Equal(t, 0.8, branch.AlignmentWithProject)

	res, data = doJSON(t, http.MethodPost, projectURL(srv, "/tasks"), map[string]any{
		"task_id":                   "task-1",
		"branch_id":                 "feature/x",
		"contributes_to_objectives": []string{"ship onboarding"},
		"business_value":            9,
		"user_impact":               8.5,
		"innovation_score":          7,
		"technical_debt_impact":     2,
		"strategic_importance":      "high",
		"success_criteria":          []string{"flow completes"},
		"strategic_rationale":       "adoption",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, projectURL(srv, "/tasks/task-1"), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var task domain.TaskAlignmentView
	require.NoError(t, json.Unmarshal(data, &task))
	assert.InDelta(t, 7.29, task.PriorityScore, 1e-9)

	res, data = doJSON(t, http.MethodGet, projectURL(srv, "/health"), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var health map[string]float64
	require.NoError(t, json.Unmarshal(data, &health))
	assert.Len(t, health, 4)
	assert.InDelta(t, 0.8, health["branch_alignment"], 1e-9)

	res, data = doJSON(t, http.MethodGet, projectURL(srv, "/objectives/at-risk"), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.JSONEq(t, `[]`, string(data))

	res, data = doJSON(t, http.MethodGet, projectURL(srv, "/events?type=branch.alignment.updated"), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "feature/x", page.Items[0].EntityID)
	assert.Equal(t, 0.8, page.Items[0].Payload["new_alignment"])
}

func TestCreateVisionAcceptsYAML(t *testing.T) {
	srv := newTestServer(t)
	body := `
target_audience: platform teams
unique_value_proposition: faster delivery
strategic_alignment_score: 0.5
objectives:
  - title: Grow adoption
    target_value: 10
    deadline_in_days: 30
`
	res, data := doRequest(t, http.MethodPost, projectURL(srv, "/vision"), "application/yaml", []byte(body), nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var view domain.ProjectVisionView
	require.NoError(t, json.Unmarshal(data, &view))
	require.Len(t, view.Objectives, 1)
	assert.NotEmpty(t, view.Objectives[0].ID)
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, http.MethodGet, projectURL(srv, "/vision"), nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Error.Code)

	res, data = doRequest(t, http.MethodPost, projectURL(srv, "/vision"), "application/json", []byte("{not yaml: ["), nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_document", decodeError(t, data).Error.Code)

	createVision(t, srv)

	res, data = doJSON(t, http.MethodPost, projectURL(srv, "/vision"), visionBody(), nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "conflict", decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodPost, projectURL(srv, "/branches"), map[string]any{
		"branch_id":                 "weak",
		"alignment_with_project":    0.2,
		"contributes_to_objectives": []string{"obj-9"},
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	env := decodeError(t, data)
	assert.Equal(t, "aggregate_validation", env.Error.Code)
	assert.Len(t, env.Error.Details.Violations, 2)

	res, data = doRequest(t, http.MethodPost, projectURL(srv, "/branches"), "application/yaml",
		[]byte("branch_id: nan\nalignment_with_project: .nan\ncontributes_to_objectives: [obj-1]\n"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	env = decodeError(t, data)
	assert.Equal(t, "aggregate_validation", env.Error.Code)
	assert.Equal(t, []string{"alignment with project must be a number"}, env.Error.Details.Violations)

	res, data = doJSON(t, http.MethodPost, projectURL(srv, "/objectives"), map[string]any{
		"id": "obj-1", "title": "dup", "target_value": 1, "deadline_in_days": 5,
	}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "duplicate_objective", decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodPatch, projectURL(srv, "/objectives/obj-1"), map[string]any{"current_value": 5}, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, http.MethodPatch, projectURL(srv, "/objectives/missing"), map[string]any{"current_value": 5}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/alignment/score", map[string]any{
		"objective_alignment": 1.5, "strategic_alignment": 1, "value_alignment": 1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "value_construction", decodeError(t, data).Error.Code)
}

func TestAuditEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createVision(t, srv)

	res, data := doJSON(t, http.MethodPost, projectURL(srv, "/audits"), nil, map[string]string{"X-Actor-Id": "auditor"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var audit struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		CreatedBy string `json:"created_by"`
	}
	require.NoError(t, json.Unmarshal(data, &audit))
	assert.Equal(t, "passed", audit.Status)
	assert.Equal(t, "auditor", audit.CreatedBy)

	res, data = doJSON(t, http.MethodGet, projectURL(srv, "/audits"), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), audit.ID)

	res, data = doJSON(t, http.MethodGet, projectURL(srv, "/audits/", audit.ID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), `"status":"passed"`)

	res, data = doJSON(t, http.MethodGet, projectURL(srv, "/audits/missing"), nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Error.Code)
}

func TestScoreAlignmentEndpoint(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/alignment/score", map[string]any{
		"objective_alignment": 0.9, "strategic_alignment": 0.8, "value_alignment": 0.6,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var score engine.AlignmentScore
	require.NoError(t, json.Unmarshal(data, &score))
	assert.InDelta(t, 0.795, score.Overall, 1e-9)
	assert.Equal(t, domain.AlignmentGood, score.Level)
}

func TestMetricsAndOpenAPI(t *testing.T) {
	srv := newTestServer(t)
	createVision(t, srv)

	res, data := doRequest(t, http.MethodGet, srv.URL+"/metrics", "", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "visionline_commands_total")

	res, data = doRequest(t, http.MethodGet, srv.URL+"/v0/openapi.json", "", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/v0/projects/{project_id}/vision")

	res, _ = doRequest(t, http.MethodGet, srv.URL+"/v0/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
