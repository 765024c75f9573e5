package http

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/outlet-feedback/internal/api/http/handlers"
	"github.com/spec-kit/outlet-feedback/internal/auth"
	"github.com/spec-kit/outlet-feedback/internal/domain"
	"github.com/spec-kit/outlet-feedback/internal/events"
	"github.com/spec-kit/outlet-feedback/internal/observability"
	"github.com/spec-kit/outlet-feedback/internal/persistence"
	"github.com/spec-kit/outlet-feedback/internal/repository"
	"github.com/spec-kit/outlet-feedback/internal/service"
)

type testServer struct {
	app    *fiber.App
	store  *repository.MemoryStore
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddOutlet(domain.Outlet{Code: "OUT1", Name: "Highway One", City: "Pune"})
	store.AddOutlet(domain.Outlet{Code: "OUT2", Name: "Harbour Road", City: "Mumbai"})
	store.AddOfficer(domain.Officer{Username: "ro_one", Role: domain.RoleRO, HomeOutlet: "OUT1", City: "Pune", Active: true})
	store.AddOfficer(domain.Officer{Username: "ro_two", Role: domain.RoleRO, HomeOutlet: "OUT2", City: "Mumbai", Active: true})
	store.AddOfficer(domain.Officer{Username: "fo_alice", FullName: "Alice", Role: domain.RoleFO, Active: true})
	store.AddEdge(domain.AssignmentEdge{Username: "do_dave", Role: domain.RoleDO, OutletCode: "OUT1"})
	store.AddEdge(domain.AssignmentEdge{Username: "fo_alice", Role: domain.RoleFO, OutletCode: "OUT1"})
	store.InsertCase(domain.FeedbackCase{OutletCode: "OUT1", Phone: "9811111111", CreatedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)})
	store.InsertCase(domain.FeedbackCase{OutletCode: "OUT2", Phone: "9822222222", CreatedAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)})

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	directory := service.NewHierarchyDirectory(store, store)
	access := service.NewAccessFilter(directory, nil)
	feedbackService := service.NewFeedbackService(service.FeedbackDependencies{
		FeedbackRepo:   store,
		HistoryRepo:    store,
		OutletRepo:     store.Outlets(),
		AssignmentRepo: store,
		OfficerRepo:    store,
		Access:         access,
	})
	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		FeedbackRepo: store,
		Access:       access,
		Directory:    directory,
		Dispatcher:   events.NewInMemoryDispatcher(),
		Metrics:      metrics,
	})
	tokens := auth.NewTokenManager("test-secret", "outlet-feedback", 5)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("outlet-feedback", "test", &persistence.Postgres{}, nil),
		Feedback:       handlers.NewFeedbackHandler(feedbackService, workflowService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       registry,
	})
	return &testServer{app: app, store: store, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, actor *domain.Actor, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if actor != nil {
		token, _, err := s.tokens.GenerateToken(*actor)
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, raw []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return env
}

var (
	vendorActor = &domain.Actor{ID: "vendor_vic", Role: domain.RoleVendor}
	doActor     = &domain.Actor{ID: "do_dave", Role: domain.RoleDO, City: "Pune"}
	foActor     = &domain.Actor{ID: "fo_alice", Role: domain.RoleFO}
)

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, fiber.MethodGet, "/health/live", nil, "")
	assert.Equal(t, fiber.StatusOK, status)

	status, raw := s.do(t, fiber.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"postgres":"memory"`)
	assert.Contains(t, string(raw), `"redis":"disabled"`)
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, fiber.MethodGet, "/api/feedbacks", nil, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, raw).Error.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, fiber.MethodGet, "/nope", nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", decodeError(t, raw).Error.Code)
}

func TestListFeedbacksIsScoped(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, fiber.MethodGet, "/api/feedbacks?limit=10", doActor, "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var body struct {
		Data struct {
			Items []struct {
				ID     int64  `json:"id"`
				ROCode string `json:"ro_code"`
			} `json:"items"`
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, 1, body.Data.Total)
	require.Len(t, body.Data.Items, 1)
	assert.Equal(t, "OUT1", body.Data.Items[0].ROCode)

	status, raw = s.do(t, fiber.MethodGet, "/api/feedbacks/2", doActor, "")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", decodeError(t, raw).Error.Code)

	status, _ = s.do(t, fiber.MethodGet, "/api/feedbacks/abc", doActor, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestWorkflowUpdateOverHTTP(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, fiber.MethodPatch, "/api/feedbacks/1/workflow", vendorActor, `{"status":"Vendor Verified"}`)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var body struct {
		Data struct {
			WorkflowStatus string   `json:"workflow_status"`
			Status         string   `json:"status"`
			AllowedActions []string `json:"allowed_actions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "Vendor Verified", body.Data.WorkflowStatus)
	assert.Equal(t, "Reviewed", body.Data.Status)
	assert.Equal(t, []string{"Rejected"}, body.Data.AllowedActions)

	status, raw = s.do(t, fiber.MethodPatch, "/api/feedbacks/1/workflow", vendorActor, `{"status":"Vendor Verified"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	env := decodeError(t, raw)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
	assert.Equal(t, "Vendor Verified", env.Error.Details["current_state"])

	status, raw = s.do(t, fiber.MethodPatch, "/api/feedbacks/1/workflow", doActor, `{"status":"Assigned"}`)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), `"assigned_to":"fo_alice"`)

	status, raw = s.do(t, fiber.MethodPatch, "/api/feedbacks/1/workflow", doActor, `{"status":"Done"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, raw).Error.Code)

	status, raw = s.do(t, fiber.MethodGet, "/api/feedbacks/1/history", doActor, "")
	require.Equal(t, fiber.StatusOK, status)
	var history struct {
		Data []struct {
			NewStatus string `json:"new_status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &history))
	require.Len(t, history.Data, 2)
	assert.Equal(t, "Assigned", history.Data[1].NewStatus)
}

func TestReviewOverHTTP(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, fiber.MethodPatch, "/api/feedbacks/1/review", foActor, `{"status":"Verified"}`)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", decodeError(t, raw).Error.Code)

	status, raw = s.do(t, fiber.MethodPatch, "/api/feedbacks/1/review", doActor, `{"status":"Resolved"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, raw).Error.Code)

	status, raw = s.do(t, fiber.MethodPatch, "/api/feedbacks/2/review", doActor, `{"status":"NotVerified"}`)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", decodeError(t, raw).Error.Code)

	status, raw = s.do(t, fiber.MethodPatch, "/api/feedbacks/1/review", doActor, `{"status":"NotVerified","comment":"no receipt"}`)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var body struct {
		Data struct {
			Status         string `json:"status"`
			WorkflowStatus string `json:"workflow_status"`
			ReviewedBy     string `json:"reviewed_by"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "Not Verified", body.Data.Status)
	assert.Equal(t, "Pending", body.Data.WorkflowStatus)
	assert.Equal(t, "do_dave", body.Data.ReviewedBy)

	status, raw = s.do(t, fiber.MethodPatch, "/api/feedbacks/2/review", vendorActor, `{}`)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), `"status":"Reviewed"`)

	status, raw = s.do(t, fiber.MethodGet, "/api/feedbacks/1/history", doActor, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"new_overall":"Not Verified"`)
	assert.Contains(t, string(raw), `"comment":"no receipt"`)
}

func TestDashboardChartsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	good, poor := 4, 1
	s.store.InsertCase(domain.FeedbackCase{OutletCode: "OUT1", RatingWater: &good, OverallStatus: domain.OverallNotVerified, CreatedAt: time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)})
	s.store.InsertCase(domain.FeedbackCase{OutletCode: "OUT2", RatingWater: &poor, CreatedAt: time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)})
	window := "?startDate=2026-03-25&endDate=2026-04-05"

	status, raw := s.do(t, fiber.MethodGet, "/api/dashboard/daily-complaints"+window, vendorActor, "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var daily struct {
		Data []struct {
			Date  string `json:"date"`
			Count int    `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &daily))
	require.Len(t, daily.Data, 2)
	assert.Equal(t, "2026-04-01", daily.Data[0].Date)
	assert.Equal(t, 2, daily.Data[0].Count)
	assert.Equal(t, "2026-04-02", daily.Data[1].Date)

	status, raw = s.do(t, fiber.MethodGet, "/api/dashboard/not-verified-distribution"+window, doActor, "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	assert.JSONEq(t, `{"data":[{"date":"2026-04-01","count":1}]}`, string(raw))

	status, raw = s.do(t, fiber.MethodGet, "/api/dashboard/drinking-water-feedback"+window, vendorActor, "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	assert.JSONEq(t, `{"data":[{"name":"Good","count":1,"value":50},{"name":"Poor","count":1,"value":50}],"total":2}`, string(raw))

	status, raw = s.do(t, fiber.MethodGet, "/api/dashboard/drinking-water-feedback", doActor, "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	assert.JSONEq(t, `{"data":[{"name":"Good","count":1,"value":100}],"total":1}`, string(raw))

	status, raw = s.do(t, fiber.MethodGet, "/api/dashboard/free-air-feedback", doActor, "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	assert.JSONEq(t, `{"data":[],"total":0}`, string(raw))

	status, raw = s.do(t, fiber.MethodGet, "/api/dashboard/washroom-feedback?startDate=04-01-2026", vendorActor, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, raw).Error.Code)
}

func TestFieldOfficersRoleGuard(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, fiber.MethodGet, "/api/outlets/OUT1/field-officers", foActor, "")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", decodeError(t, raw).Error.Code)

	status, raw = s.do(t, fiber.MethodGet, "/api/outlets/OUT1/field-officers", doActor, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"fo_alice"`)
}

func TestExportCSVOverHTTP(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/feedbacks/export/csv?timezone_offset=330", nil)
	token, _, err := s.tokens.GenerateToken(*vendorActor)
	require.NoError(t, err)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get(fiber.HeaderContentType))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "attachment; filename=feedbacks_")
	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2026-04-02 14:30", rows[1][1])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, fiber.MethodGet, "/health/live", nil, "")

	status, raw := s.do(t, fiber.MethodGet, "/metrics", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), "http_requests_total")
}
