package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentops/statuslog/internal/model"
	"github.com/agentops/statuslog/internal/repository"
)

type testValidator struct {
	validate *validator.Validate
}

func (v *testValidator) Validate(i any) error { return v.validate.Struct(i) }

type fakeStore struct {
	insertID   int64
	insertErr  error
	queryLogs  []model.StatusEvent
	queryErr   error
	lastFilter repository.Filter
}

func (f *fakeStore) Insert(_ context.Context, ev model.NewStatusEvent) (int64, error) {
	return f.insertID, f.insertErr
}

func (f *fakeStore) Query(_ context.Context, filter repository.Filter) ([]model.StatusEvent, error) {
	f.lastFilter = filter
	return f.queryLogs, f.queryErr
}

type fakeProber bool

func (p fakeProber) Healthy(context.Context) bool { return bool(p) }

func newHandler(store *fakeStore, healthy bool) (*LogHandler, *echo.Echo) {
	e := echo.New()
	e.Validator = &testValidator{validate: validator.New()}
	return &LogHandler{Store: store, Prober: fakeProber(healthy), Logger: zerolog.Nop()}, e
}

func doJSON(e *echo.Echo, method, target, body string, h echo.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = h(c)
	return rec
}

func TestHealth_NeverFailsWithoutStorage(t *testing.T) {
	h, e := newHandler(&fakeStore{}, false)

	rec := doJSON(e, http.MethodGet, "/health", "", h.Health)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.False(t, resp.DatabaseConnected)
}

func TestHealth_ReportsConnectedPool(t *testing.T) {
	h, e := newHandler(&fakeStore{}, true)

	rec := doJSON(e, http.MethodGet, "/health", "", h.Health)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.DatabaseConnected)
}

func TestLogStatus_Success(t *testing.T) {
	h, e := newHandler(&fakeStore{insertID: 77}, true)

	body := `{"session_id":"s-1","user_id":"u-1","agent_name":"advisor","status_type":"info","message":"hello","metadata":{"k":"v"}}`
	rec := doJSON(e, http.MethodPost, "/log_status", body, h.LogStatus)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LogStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.LogID)
	assert.Equal(t, int64(77), *resp.LogID)
}

func TestLogStatus_MissingRequiredFields(t *testing.T) {
	h, e := newHandler(&fakeStore{insertID: 1}, true)

	body := `{"session_id":"s-1","user_id":"u-1"}`
	rec := doJSON(e, http.MethodPost, "/log_status", body, h.LogStatus)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp LogStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Nil(t, resp.LogID)
}

func TestLogStatus_InvalidJSON(t *testing.T) {
	h, e := newHandler(&fakeStore{}, true)

	rec := doJSON(e, http.MethodPost, "/log_status", "{not json", h.LogStatus)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogStatus_StorageFailure(t *testing.T) {
	h, e := newHandler(&fakeStore{insertErr: errors.New("connection reset")}, true)

	body := `{"session_id":"s-1","user_id":"u-1","agent_name":"advisor","status_type":"error","message":"x"}`
	rec := doJSON(e, http.MethodPost, "/log_status", body, h.LogStatus)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp LogStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "connection reset")
}

func TestQueryLogs_DefaultsAndFilters(t *testing.T) {
	store := &fakeStore{queryLogs: []model.StatusEvent{}}
	h, e := newHandler(store, true)

	rec := doJSON(e, http.MethodGet, "/query_logs?session_id=s-1&agent_name=advisor", "", h.QueryLogs)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, repository.DefaultQueryLimit, store.lastFilter.Limit)
	assert.Equal(t, "s-1", store.lastFilter.SessionID)
	assert.Equal(t, "advisor", store.lastFilter.AgentName)
}

func TestQueryLogs_LimitClamping(t *testing.T) {
	cases := map[string]int{
		"5000": repository.MaxQueryLimit,
		"0":    1,
		"-3":   1,
		"250":  250,
	}
	for raw, want := range cases {
		store := &fakeStore{queryLogs: []model.StatusEvent{}}
		h, e := newHandler(store, true)

		rec := doJSON(e, http.MethodGet, "/query_logs?limit="+raw, "", h.QueryLogs)
		require.Equal(t, http.StatusOK, rec.Code, "limit=%s", raw)
		assert.Equal(t, want, store.lastFilter.Limit, "limit=%s", raw)
	}
}

func TestQueryLogs_NonNumericLimit(t *testing.T) {
	h, e := newHandler(&fakeStore{}, true)

	rec := doJSON(e, http.MethodGet, "/query_logs?limit=abc", "", h.QueryLogs)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp QueryLogsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "invalid limit")
}

func TestQueryLogs_ResponseShape(t *testing.T) {
	now := time.Now()
	store := &fakeStore{queryLogs: []model.StatusEvent{
		{ID: 2, Timestamp: now, SessionID: "s-1", AgentName: "advisor", StatusType: "info", Message: "b"},
		{ID: 1, Timestamp: now, SessionID: "s-1", AgentName: "advisor", StatusType: "info", Message: "a"},
	}}
	h, e := newHandler(store, true)

	rec := doJSON(e, http.MethodGet, "/query_logs", "", h.QueryLogs)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryLogsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, int64(2), resp.Logs[0].ID)
}

func TestQueryLogs_StorageFailure(t *testing.T) {
	h, e := newHandler(&fakeStore{queryErr: errors.New("read timeout")}, true)

	rec := doJSON(e, http.MethodGet, "/query_logs", "", h.QueryLogs)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp QueryLogsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotNil(t, resp.Logs)
	assert.Contains(t, resp.Message, "read timeout")
}

func TestRoot_ListsEndpoints(t *testing.T) {
	h, e := newHandler(&fakeStore{}, false)

	rec := doJSON(e, http.MethodGet, "/", "", h.Root)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "statuslog", resp["service"])
	assert.Contains(t, resp, "endpoints")
}
