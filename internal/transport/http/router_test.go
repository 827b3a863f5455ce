package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	grievanceHandler "nivaran/internal/grievance/handler"
	"nivaran/internal/pipeline"
	id "nivaran/pkg/domain"
	dErrors "nivaran/pkg/domain-errors"
)

type stubService struct{}

func (stubService) Submit(context.Context, pipeline.SubmitRequest) (id.GrievanceID, error) {
	return id.NewGrievanceID(), nil
}

func (stubService) GetStatus(context.Context, id.GrievanceID) (pipeline.StatusReport, error) {
	return pipeline.StatusReport{}, dErrors.New(dErrors.CodeNotFound, "grievance not found")
}

func newTestRouter(checks map[string]HealthChecker) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(Config{
		Grievances: grievanceHandler.New(stubService{}, logger),
		Logger:     logger,
		Checks:     checks,
	})
}

func TestHealthzOK(t *testing.T) {
	router := newTestRouter(map[string]HealthChecker{
		"records": HealthCheckFunc(func(context.Context) error { return nil }),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["records"])
}

func TestHealthzDegraded(t *testing.T) {
	router := newTestRouter(map[string]HealthChecker{
		"redis": HealthCheckFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsExposed(t *testing.T) {
	router := newTestRouter(nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestIDPropagatesToResponse(t *testing.T) {
	router := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-Id"))
}
