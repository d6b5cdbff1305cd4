package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studysphere/studysphere/cmd/server/internal/apperr"
	"github.com/studysphere/studysphere/cmd/server/internal/middleware"
	"github.com/studysphere/studysphere/cmd/server/internal/models"
	"github.com/studysphere/studysphere/cmd/server/internal/services"
	"github.com/studysphere/studysphere/cmd/server/internal/storage"
	"github.com/studysphere/studysphere/cmd/server/internal/util"
)

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Generate(ctx context.Context, topic string, durationDays int, level models.Level) ([]models.DayPlan, error) {
	if g.err != nil {
		return nil, g.err
	}
	plans := make([]models.DayPlan, 0, durationDays)
	for d := 1; d <= durationDays; d++ {
		plans = append(plans, models.DayPlan{
			Day:   d,
			Topic: fmt.Sprintf("%s part %d", topic, d),
			Tasks: []string{fmt.Sprintf("%s d%d t1", topic, d), fmt.Sprintf("%s d%d t2", topic, d)},
		})
	}
	return plans, nil
}

type apiEnv struct {
	router    *gin.Engine
	clock     *util.ManualClock
	generator *stubGenerator
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, err := storage.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	clock := util.NewManualClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	store := services.NewRoadmapStore(repo, clock, nil)
	processor := services.NewBacklogProcessor(store, clock, 2, nil)
	gen := &stubGenerator{}
	svc := services.NewRoadmapService(gen, store, processor, clock, nil)

	r := gin.New()
	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Authenticate(middleware.AuthConfig{AllowHeader: true}, nil))
	NewRoadmapHandler(svc).RegisterRoutes(apiGroup)

	return &apiEnv{router: r, clock: clock, generator: gen}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *apiEnv) do(t *testing.T, method, path, user string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decodeView(t *testing.T, raw json.RawMessage) models.RoadmapView {
	t.Helper()
	var v models.RoadmapView
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestCreateAndGetRoadmap(t *testing.T) {
	e := newAPIEnv(t)

	status, env := e.do(t, http.MethodPost, "/api/roadmap", "u1", gin.H{"topic": "Binary Search", "duration": 3})
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, env.Success)
	created := decodeView(t, env.Data)
	assert.Equal(t, "Binary Search", created.Topic)
	assert.Equal(t, models.LevelBeginner, created.Level)
	assert.Len(t, created.Days, 3)
	assert.Equal(t, 6, created.Progress.TotalTasks)

	status, env = e.do(t, http.MethodGet, "/api/roadmap", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	got := decodeView(t, env.Data)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 1, got.Progress.TodayOrdinal)
}

func TestGetRoadmapNoneActive(t *testing.T) {
	e := newAPIEnv(t)

	status, env := e.do(t, http.MethodGet, "/api/roadmap", "u1", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Equal(t, "null", string(env.Data))
}

func TestCompleteTaskEndpoint(t *testing.T) {
	e := newAPIEnv(t)
	_, env := e.do(t, http.MethodPost, "/api/roadmap", "u1", gin.H{"topic": "Go", "duration": 2})
	created := decodeView(t, env.Data)

	status, env := e.do(t, http.MethodPost, "/api/roadmap/complete", "u1", gin.H{"taskId": 0})
	require.Equal(t, http.StatusOK, status)
	status, env = e.do(t, http.MethodPost, "/api/roadmap/complete", "u1", gin.H{"roadmapId": created.ID, "dayId": 1, "taskId": 1})
	require.Equal(t, http.StatusOK, status)

	got := decodeView(t, env.Data)
	assert.True(t, got.Days[0].IsCompleted)
	assert.Equal(t, 1, got.Streak)
	assert.Equal(t, 2, got.Progress.CompletedTasks)
	assert.Equal(t, 50, got.Progress.Percent)
}

func TestCompleteTaskErrors(t *testing.T) {
	e := newAPIEnv(t)
	e.do(t, http.MethodPost, "/api/roadmap", "u1", gin.H{"topic": "Go", "duration": 2})

	status, env := e.do(t, http.MethodPost, "/api/roadmap/complete", "u1", gin.H{"dayId": 9, "taskId": 0})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(apperr.NOT_FOUND), env.Error.Code)

	status, env = e.do(t, http.MethodPost, "/api/roadmap/complete", "u1", gin.H{"dayId": 1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(apperr.VALIDATION_ERROR), env.Error.Code)

	status, _ = e.do(t, http.MethodPost, "/api/roadmap/complete", "u2", gin.H{"taskId": 0})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateRoadmapErrors(t *testing.T) {
	e := newAPIEnv(t)

	status, env := e.do(t, http.MethodPost, "/api/roadmap", "u1", gin.H{"duration": 3})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)

	status, env = e.do(t, http.MethodPost, "/api/roadmap", "u1", gin.H{"topic": "Go", "duration": 90})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(apperr.VALIDATION_ERROR), env.Error.Code)

	e.generator.err = apperr.NewParseError("bad plan", nil)
	status, env = e.do(t, http.MethodPost, "/api/roadmap", "u1", gin.H{"topic": "Go"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, string(apperr.GENERATION_PARSE_ERROR), env.Error.Code)
	assert.Equal(t, generationFailedMessage, env.Error.Message)

	status, _ = e.do(t, http.MethodPost, "/api/roadmap", "", gin.H{"topic": "Go"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHistoryAndClearBacklog(t *testing.T) {
	e := newAPIEnv(t)
	e.do(t, http.MethodPost, "/api/roadmap", "u1", gin.H{"topic": "Go", "duration": 2})
	e.clock.AddDays(1)
	e.do(t, http.MethodPost, "/api/roadmap", "u1", gin.H{"topic": "Rust", "duration": 3})

	status, env := e.do(t, http.MethodGet, "/api/roadmap/history", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	var list []models.RoadmapView
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Rust", list[0].Topic)
	assert.Equal(t, models.StatusAbandoned, list[1].Status)

	e.clock.AddDays(2)
	status, env = e.do(t, http.MethodGet, "/api/roadmap", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, decodeView(t, env.Data).Progress.BacklogDays)

	status, env = e.do(t, http.MethodPost, "/api/roadmap/backlog/clear", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	cleared := decodeView(t, env.Data)
	assert.Equal(t, 0, cleared.Progress.BacklogDays)

	status, env = e.do(t, http.MethodPost, "/api/roadmap/backlog/clear", "u9", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
}

func TestStatusMapping(t *testing.T) {
	cases := map[apperr.Code]int{
		apperr.VALIDATION_ERROR:        http.StatusBadRequest,
		apperr.NOT_FOUND:               http.StatusNotFound,
		apperr.INVALID_STATE:           http.StatusConflict,
		apperr.CONFLICT:                http.StatusConflict,
		apperr.GENERATION_FORMAT_ERROR: http.StatusBadGateway,
		apperr.GENERATION_PARSE_ERROR:  http.StatusBadGateway,
		apperr.GENERATION_UNAVAILABLE:  http.StatusBadGateway,
		apperr.INTERNAL:                http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(code), code)
	}
}

func TestRespondErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, fmt.Errorf("boom: %w", apperr.NewInternalError("roadmap storage failure", fmt.Errorf("disk"))))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk")
	assert.Contains(t, w.Body.String(), string(apperr.INTERNAL))
}
