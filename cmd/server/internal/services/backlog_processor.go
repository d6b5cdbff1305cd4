package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studysphere/studysphere/cmd/server/internal/models"
	"github.com/studysphere/studysphere/cmd/server/internal/util"
	"github.com/studysphere/studysphere/pkg/logger"
	"github.com/studysphere/studysphere/pkg/metrics"
)

// MaxBacklogPerDay 当天最多容纳的积压注入任务数
const MaxBacklogPerDay = 2

// RecomputeResult 单次积压重算结果
type RecomputeResult struct {
	Injected int
	Changed  bool
}

// SweepReport 一次批量巡检的统计
type SweepReport struct {
	Total     int      `json:"total"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Failed    int      `json:"failed"`
	Injected  int      `json:"injected"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// markBacklog 纯重算每天的 backlog 标记：日期早于今天、未完成、且用户未清除
func markBacklog(r *models.Roadmap, today string) (bool, error) {
	changed := false
	for _, d := range r.Days {
		cmp, err := util.CompareDates(d.Date, today)
		if err != nil {
			return false, fmt.Errorf("day %d of roadmap %s: %w", d.Day, r.ID, err)
		}
		want := cmp < 0 && !d.IsCompleted && !d.BacklogCleared
		if d.Backlog != want {
			d.Backlog = want
			changed = true
		}
	}
	return changed, nil
}

// originOf 返回任务的来源；注入任务沿用原始来源，普通任务以所在天为来源
func originOf(d *models.Day, t *models.Task) models.TaskOrigin {
	if t.Origin != nil {
		return *t.Origin
	}
	return models.TaskOrigin{Day: d.Day, Title: t.Title, Key: models.OriginKey(d.Day, t.Title)}
}

// RecomputeBacklog 在内存中重算积压状态并向今天注入积压任务
//
//  1. 重算每天的 backlog 标记
//  2. 按天、按任务顺序收集积压天中未完成的任务，按来源去重，跳过已有完成副本的来源
//  3. 今天最多保留 MaxBacklogPerDay 个注入任务，已在今天的来源不再注入
//  4. 注入后重算今天的完成标记
//
// 连续调用（中间没有完成操作）结果不变。
func RecomputeBacklog(r *models.Roadmap, today string) (RecomputeResult, error) {
	var res RecomputeResult

	changed, err := markBacklog(r, today)
	if err != nil {
		return res, err
	}
	res.Changed = changed

	if !r.IsActive() {
		return res, nil
	}
	todayDay := r.DayByDate(today)
	if todayDay == nil {
		return res, nil
	}

	completedKeys := make(map[string]bool)
	for _, d := range r.Days {
		for _, t := range d.Tasks {
			if t.Completed {
				completedKeys[originOf(d, t).Key] = true
			}
		}
	}

	onToday := make(map[string]bool)
	injectedToday := 0
	for _, t := range todayDay.Tasks {
		if t.IsInjected() {
			onToday[t.Origin.Key] = true
			injectedToday++
		}
	}
	if injectedToday >= MaxBacklogPerDay {
		return res, nil
	}

	seen := make(map[string]bool)
	for _, d := range r.Days {
		if !d.Backlog {
			continue
		}
		for _, t := range d.Tasks {
			if t.Completed {
				continue
			}
			origin := originOf(d, t)
			if seen[origin.Key] || completedKeys[origin.Key] || onToday[origin.Key] {
				continue
			}
			seen[origin.Key] = true

			o := origin
			todayDay.Tasks = append(todayDay.Tasks, &models.Task{
				Title:  models.BacklogPrefix + origin.Title,
				Origin: &o,
			})
			onToday[origin.Key] = true
			injectedToday++
			res.Injected++
			if injectedToday >= MaxBacklogPerDay {
				break
			}
		}
		if injectedToday >= MaxBacklogPerDay {
			break
		}
	}

	if res.Injected > 0 {
		todayDay.RecomputeCompleted()
		res.Changed = true
	}
	return res, nil
}

// BacklogProcessor 积压处理：读取时按需重算，定时批量巡检
type BacklogProcessor struct {
	store   *RoadmapStore
	clock   util.Clock
	workers int
	logger  *slog.Logger
}

// NewBacklogProcessor 创建积压处理器，workers 为巡检并发数
func NewBacklogProcessor(store *RoadmapStore, clock util.Clock, workers int, log *slog.Logger) *BacklogProcessor {
	if workers < 1 {
		workers = 4
	}
	return &BacklogProcessor{
		store:   store,
		clock:   clock,
		workers: workers,
		logger:  logger.Or(log).With("component", "backlog_processor"),
	}
}

// Refresh 重算并持久化单个路线图的积压状态，非活跃路线图只读返回
func (p *BacklogProcessor) Refresh(ctx context.Context, roadmapID, source string) (*models.Roadmap, RecomputeResult, error) {
	var res RecomputeResult
	rm, _, err := p.store.Mutate(ctx, roadmapID, func(r *models.Roadmap) (bool, error) {
		res = RecomputeResult{}
		if !r.IsActive() {
			return false, nil
		}
		var err error
		res, err = RecomputeBacklog(r, util.Today(p.clock))
		if err != nil {
			return false, err
		}
		return res.Changed, nil
	})
	if err != nil {
		return nil, RecomputeResult{}, err
	}
	metrics.RecordBacklogInjected(source, res.Injected)
	return rm, res, nil
}

// Sweep 对所有活跃路线图执行积压重算
// 每个路线图独立处理，单个失败（包括 panic）只记录并跳过；只有列举失败才使整批失败
func (p *BacklogProcessor) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	ids, err := p.store.ListActiveIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list active roadmaps: %w", err)
	}
	report.Total = len(ids)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.workers)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			res, err := p.sweepOne(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				report.FailedIDs = append(report.FailedIDs, id)
				metrics.RecordSweepRoadmap("failed")
				p.logger.Error("backlog sweep failed for roadmap", "roadmap_id", id, "error", err)
			case res.Changed:
				report.Updated++
				report.Injected += res.Injected
				metrics.RecordSweepRoadmap("updated")
			default:
				report.Unchanged++
				metrics.RecordSweepRoadmap("unchanged")
			}
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

func (p *BacklogProcessor) sweepOne(ctx context.Context, id string) (res RecomputeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while sweeping roadmap %s: %v", id, r)
		}
	}()

	start := time.Now()
	_, res, err = p.Refresh(ctx, id, "sweep")
	if err == nil {
		p.logger.Debug("roadmap swept",
			"roadmap_id", id,
			"changed", res.Changed,
			"injected", res.Injected,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return res, err
}
