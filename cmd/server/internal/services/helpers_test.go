package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studysphere/studysphere/cmd/server/internal/apperr"
	"github.com/studysphere/studysphere/cmd/server/internal/models"
	"github.com/studysphere/studysphere/cmd/server/internal/storage"
	"github.com/studysphere/studysphere/cmd/server/internal/util"
)

var testStart = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

// stubGenerator 返回固定计划，每天 tasksPerDay 个任务
type stubGenerator struct {
	mu          sync.Mutex
	tasksPerDay int
	err         error
	calls       int
}

func (g *stubGenerator) Generate(ctx context.Context, topic string, durationDays int, level models.Level) ([]models.DayPlan, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	n := g.tasksPerDay
	if n == 0 {
		n = 2
	}
	plans := make([]models.DayPlan, 0, durationDays)
	for d := 1; d <= durationDays; d++ {
		tasks := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			tasks = append(tasks, fmt.Sprintf("%s d%d t%d", topic, d, i))
		}
		plans = append(plans, models.DayPlan{Day: d, Topic: fmt.Sprintf("%s part %d", topic, d), Tasks: tasks})
	}
	return plans, nil
}

type testEnv struct {
	repo      storage.Repository
	clock     *util.ManualClock
	store     *RoadmapStore
	processor *BacklogProcessor
	service   *RoadmapService
	generator *stubGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := storage.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	return newTestEnvWithRepo(t, repo)
}

func newTestEnvWithRepo(t *testing.T, repo storage.Repository) *testEnv {
	t.Helper()
	clock := util.NewManualClock(testStart)
	store := NewRoadmapStore(repo, clock, nil)
	processor := NewBacklogProcessor(store, clock, 2, nil)
	gen := &stubGenerator{}
	return &testEnv{
		repo:      repo,
		clock:     clock,
		store:     store,
		processor: processor,
		service:   NewRoadmapService(gen, store, processor, clock, nil),
		generator: gen,
	}
}

func (e *testEnv) create(t *testing.T, userID, topic string, days int) *models.Roadmap {
	t.Helper()
	rm, err := e.service.CreateRoadmap(context.Background(), userID, topic, days, "beginner")
	require.NoError(t, err)
	return rm
}

func intPtr(v int) *int {
	return &v
}

func codeOf(err error) apperr.Code {
	return apperr.CodeOf(err)
}
