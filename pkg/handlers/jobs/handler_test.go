package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/models/api"
	"github.com/blush-marketing/core/pkg/scheduler"
	"github.com/blush-marketing/core/pkg/shutdown"
)

func newTestHandler(t *testing.T) (*Handler, *scheduler.Service, *shutdown.Coordinator) {
	t.Helper()
	log := logger.New("jobs-handler-test")
	sched := scheduler.NewService(log)
	coord := shutdown.New(log, sched, shutdown.WithExitFunc(func(int) {}))
	t.Cleanup(sched.Stop)
	return NewHandler(sched, coord, log), sched, coord
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) api.Response {
	t.Helper()
	var resp api.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestListJobs(t *testing.T) {
	handler, sched, _ := newTestHandler(t)

	err := sched.Schedule(context.Background(), "revenue_sync", "5 * * * *",
		func(context.Context) error { return nil }, scheduler.Options{})
	require.NoError(t, err)
	sched.Start()

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var status api.SchedulerStatusResponse
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "running", status.Mode)
	require.Len(t, status.Jobs, 1)
	assert.Equal(t, "revenue_sync", status.Jobs[0].Name)
}

func TestTriggerJob(t *testing.T) {
	handler, sched, _ := newTestHandler(t)

	invoked := false
	err := sched.Schedule(context.Background(), "keyword_rank_sync", "30 6 * * *",
		func(context.Context) error {
			invoked = true
			return nil
		}, scheduler.Options{})
	require.NoError(t, err)
	sched.Start()

	rec := httptest.NewRecorder()
	handler.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/keyword_rank_sync/run", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, invoked)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestTriggerJobFailure(t *testing.T) {
	handler, sched, _ := newTestHandler(t)

	err := sched.Schedule(context.Background(), "content_generation", "0 9 * * 1-5",
		func(context.Context) error {
			return errors.New("brief service unavailable")
		}, scheduler.Options{})
	require.NoError(t, err)
	sched.Start()

	rec := httptest.NewRecorder()
	handler.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/content_generation/run", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "brief service unavailable")
}

func TestTriggerUnknownJob(t *testing.T) {
	handler, sched, _ := newTestHandler(t)
	sched.Start()

	rec := httptest.NewRecorder()
	handler.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/nope/run", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestTriggerBlockedDuringDrain(t *testing.T) {
	handler, sched, coord := newTestHandler(t)

	err := sched.Schedule(context.Background(), "revenue_sync", "5 * * * *",
		func(context.Context) error { return nil }, scheduler.Options{})
	require.NoError(t, err)
	sched.Start()

	coord.EnterDrainMode()

	rec := httptest.NewRecorder()
	handler.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/revenue_sync/run", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestTriggerMethodNotAllowed(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Trigger(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/revenue_sync/run", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTriggerBadPath(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/revenue_sync", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestartCheck(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.RestartCheck(rec, httptest.NewRequest(http.MethodGet, "/api/system/restart-check", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var check shutdown.RestartCheck
	require.NoError(t, json.Unmarshal(data, &check))
	assert.True(t, check.CanRestart)
}
