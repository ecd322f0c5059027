package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"machine_monitor"
	"machine_monitor/internal/kpi"
	"machine_monitor/internal/models"
	"machine_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockTracker struct {
	offlineErr  error
	lastOffline service.OfflineRequest
	offlineCall int

	healReport service.HealReport
	healErr    error
}

func (m *mockTracker) ProcessSignal(context.Context, machine_monitor.Signal) error { return nil }
func (m *mockTracker) Record(context.Context, service.Observation) error           { return nil }
func (m *mockTracker) Heal(context.Context, string) (int, error)                   { return 0, nil }

func (m *mockTracker) MarkOffline(_ context.Context, req service.OfflineRequest) error {
	m.offlineCall++
	m.lastOffline = req
	return m.offlineErr
}

func (m *mockTracker) HealAll(context.Context) (service.HealReport, error) {
	return m.healReport, m.healErr
}

type mockMonitoring struct {
	state     *models.ActivityInterval
	intervals []models.ActivityInterval
	err       error

	lastRef   string
	lastRange service.TimeRange
}

func (m *mockMonitoring) CurrentState(_ context.Context, ref string) (*models.ActivityInterval, error) {
	m.lastRef = ref
	return m.state, m.err
}

func (m *mockMonitoring) Timeline(_ context.Context, ref string, r service.TimeRange) ([]models.ActivityInterval, error) {
	m.lastRef = ref
	m.lastRange = r
	return m.intervals, m.err
}

type mockMetrics struct {
	summary     kpi.Summary
	job         kpi.JobMetrics
	buckets     []models.DowntimeBucket
	utilization kpi.UtilizationResult
	err         error

	lastScope string
	lastJobID string
}

func (m *mockMetrics) MachineOEE(context.Context, string, service.TimeRange) (kpi.Summary, error) {
	return m.summary, m.err
}

func (m *mockMetrics) JobOEE(_ context.Context, id string) (kpi.JobMetrics, error) {
	m.lastJobID = id
	return m.job, m.err
}

func (m *mockMetrics) Downtime(context.Context, string, service.TimeRange) ([]models.DowntimeBucket, error) {
	return m.buckets, m.err
}

func (m *mockMetrics) Utilization(_ context.Context, _ string, _ service.TimeRange, scope string) (kpi.UtilizationResult, error) {
	m.lastScope = scope
	return m.utilization, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, nil, nil, nil)
	return h.InitRoutes()
}

func do(t *testing.T, r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
