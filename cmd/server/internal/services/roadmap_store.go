package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/studysphere/studysphere/cmd/server/internal/apperr"
	"github.com/studysphere/studysphere/cmd/server/internal/models"
	"github.com/studysphere/studysphere/cmd/server/internal/storage"
	"github.com/studysphere/studysphere/cmd/server/internal/util"
	"github.com/studysphere/studysphere/pkg/logger"
	"github.com/studysphere/studysphere/pkg/metrics"
)

// maxMutateAttempts 版本冲突时的最大尝试次数
const maxMutateAttempts = 3

// MutateFunc 在路线图副本上执行修改，返回是否有实际变更
// 版本冲突重试时会被再次调用，必须只依赖传入的路线图
type MutateFunc func(r *models.Roadmap) (changed bool, err error)

// CreateRoadmapParams 创建路线图参数
type CreateRoadmapParams struct {
	UserID       string
	Topic        string
	Level        models.Level
	DurationDays int
	StartDate    string // 为空时取今天
	Plans        []models.DayPlan
}

// RoadmapStore 路线图持久化状态的唯一拥有者，所有修改都经过 Mutate 落盘
type RoadmapStore struct {
	repo      storage.Repository
	clock     util.Clock
	logger    *slog.Logger
	locks     *keyedMutex // 按路线图 ID
	userLocks *keyedMutex // 按用户 ID，串行化创建
}

// NewRoadmapStore 创建路线图存储服务
func NewRoadmapStore(repo storage.Repository, clock util.Clock, log *slog.Logger) *RoadmapStore {
	return &RoadmapStore{
		repo:      repo,
		clock:     clock,
		logger:    logger.Or(log).With("component", "roadmap_store"),
		locks:     newKeyedMutex(),
		userLocks: newKeyedMutex(),
	}
}

// translate 把存储层错误转换为应用错误
func translate(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidIdentifier):
		return apperr.NewNotFoundError("roadmap %s not found", id)
	case errors.Is(err, storage.ErrVersionConflict):
		return apperr.NewConflictError(err)
	case errors.Is(err, storage.ErrDuplicate):
		return apperr.New(apperr.CONFLICT, "an active roadmap already exists for this user", err)
	default:
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.NewInternalError("roadmap storage failure", err)
	}
}

// GetRoadmap 读取路线图
func (s *RoadmapStore) GetRoadmap(ctx context.Context, id string) (*models.Roadmap, error) {
	rm, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translate(err, id)
	}
	return rm, nil
}

// GetActiveRoadmap 返回用户当前活跃路线图，没有时返回 nil
func (s *RoadmapStore) GetActiveRoadmap(ctx context.Context, userID string) (*models.Roadmap, error) {
	actives, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "")
	}
	if len(actives) == 0 {
		return nil, nil
	}
	if len(actives) > 1 {
		s.logger.Warn("user has more than one active roadmap, using newest",
			"user_id", userID, "count", len(actives))
	}
	return actives[0], nil
}

// ListRoadmaps 列出用户全部路线图（含归档），最新的在前
func (s *RoadmapStore) ListRoadmaps(ctx context.Context, userID string) ([]*models.Roadmap, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "")
	}
	return list, nil
}

// ListActiveIDs 列出所有活跃路线图 ID
func (s *RoadmapStore) ListActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListActiveIDs(ctx)
	if err != nil {
		return nil, translate(err, "")
	}
	return ids, nil
}

// Ping 检查存储可用
func (s *RoadmapStore) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Mutate 读取-修改-写入的唯一入口
// 进程内按路线图 ID 串行，跨进程依赖存储层的版本比较；冲突时重新读取并重放 fn
func (s *RoadmapStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*models.Roadmap, bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 1; ; attempt++ {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, false, translate(err, id)
		}

		working := current.Clone()
		changed, err := fn(working)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return working, false, nil
		}

		working.Version = current.Version + 1
		working.UpdatedAt = s.clock.Now()
		err = s.repo.Replace(ctx, working, current.Version)
		if err == nil {
			return working, true, nil
		}
		if errors.Is(err, storage.ErrVersionConflict) && attempt < maxMutateAttempts {
			s.logger.Debug("roadmap version conflict, retrying",
				"roadmap_id", id, "attempt", attempt, "version", current.Version)
			continue
		}
		return nil, false, translate(err, id)
	}
}

// Save 以乐观锁方式持久化整个路线图，r.Version 为读取时的版本
func (s *RoadmapStore) Save(ctx context.Context, r *models.Roadmap) error {
	unlock := s.locks.Lock(r.ID)
	defer unlock()

	expected := r.Version
	r.Version = expected + 1
	r.UpdatedAt = s.clock.Now()
	if err := s.repo.Replace(ctx, r, expected); err != nil {
		r.Version = expected
		return translate(err, r.ID)
	}
	return nil
}

// CreateRoadmap 按生成计划创建新路线图，并归档该用户原有的活跃路线图
// 写入失败时恢复被归档的路线图，用户原有状态不受影响
func (s *RoadmapStore) CreateRoadmap(ctx context.Context, p CreateRoadmapParams) (*models.Roadmap, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, apperr.NewValidationError("user id is required")
	}
	if len(p.Plans) == 0 {
		return nil, apperr.NewValidationError("roadmap needs at least one day")
	}
	if p.DurationDays == 0 {
		p.DurationDays = len(p.Plans)
	}
	if p.DurationDays != len(p.Plans) {
		return nil, apperr.NewValidationError("expected %d day plans, got %d", p.DurationDays, len(p.Plans))
	}

	now := s.clock.Now()
	startDate := p.StartDate
	if startDate == "" {
		startDate = util.FormatDate(now)
	}
	rm, err := buildRoadmap(p, startDate)
	if err != nil {
		return nil, err
	}
	rm.CreatedAt = now
	rm.UpdatedAt = now

	unlock := s.userLocks.Lock(p.UserID)
	defer unlock()

	actives, err := s.repo.FindActiveByUser(ctx, p.UserID)
	if err != nil {
		return nil, translate(err, "")
	}

	retired := make([]string, 0, len(actives))
	for _, a := range actives {
		_, _, err := s.Mutate(ctx, a.ID, func(r *models.Roadmap) (bool, error) {
			if !r.IsActive() {
				return false, nil
			}
			retiredAt := now
			r.Status = models.StatusAbandoned
			r.RetiredAt = &retiredAt
			return true, nil
		})
		if err != nil {
			s.restore(ctx, retired)
			return nil, fmt.Errorf("retire roadmap %s: %w", a.ID, err)
		}
		retired = append(retired, a.ID)
	}

	if err := s.repo.Insert(ctx, rm); err != nil {
		s.restore(ctx, retired)
		return nil, translate(err, rm.ID)
	}

	metrics.RecordRoadmapCreated(string(rm.Level))
	s.logger.Info("roadmap created",
		"roadmap_id", rm.ID,
		"user_id", rm.UserID,
		"duration", rm.Duration,
		"retired", len(retired))
	return rm, nil
}

// restore 尽力恢复被归档的路线图
func (s *RoadmapStore) restore(ctx context.Context, ids []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		_, _, err := s.Mutate(ctx, id, func(r *models.Roadmap) (bool, error) {
			if r.Status != models.StatusAbandoned {
				return false, nil
			}
			r.Status = models.StatusActive
			r.RetiredAt = nil
			return true, nil
		})
		if err != nil {
			s.logger.Error("failed to restore retired roadmap", "roadmap_id", id, "error", err)
		}
	}
}

func buildRoadmap(p CreateRoadmapParams, startDate string) (*models.Roadmap, error) {
	if _, err := util.ParseDate(startDate); err != nil {
		return nil, apperr.NewValidationError("%v", err)
	}
	rm := &models.Roadmap{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Topic:     p.Topic,
		Level:     p.Level,
		Duration:  p.DurationDays,
		StartDate: startDate,
		Status:    models.StatusActive,
		Streak:    0,
		Version:   1,
		Days:      make([]*models.Day, 0, len(p.Plans)),
	}
	for i, plan := range p.Plans {
		ordinal := i + 1
		date, err := util.AddDays(startDate, i)
		if err != nil {
			return nil, err
		}
		day := &models.Day{
			Day:   ordinal,
			Date:  date,
			Topic: plan.Topic,
			Tasks: make([]*models.Task, 0, len(plan.Tasks)),
		}
		for _, title := range plan.Tasks {
			day.Tasks = append(day.Tasks, &models.Task{Title: title})
		}
		rm.Days = append(rm.Days, day)
	}
	return rm, nil
}

// CompleteTask 完成某天的某个任务
//
// 已完成的任务重复提交不报错、不写入、不重复累计连续天数。
// 天由未完成变为完成时连续天数加一，每天最多计一次。
func (s *RoadmapStore) CompleteTask(ctx context.Context, roadmapID string, dayOrdinal, taskIndex int) (*models.Roadmap, error) {
	var firstCompletion bool
	rm, _, err := s.Mutate(ctx, roadmapID, func(r *models.Roadmap) (bool, error) {
		firstCompletion = false

		day := r.DayByOrdinal(dayOrdinal)
		if day == nil {
			return false, apperr.NewNotFoundError("day %d not found in roadmap %s", dayOrdinal, roadmapID)
		}
		if taskIndex < 0 || taskIndex >= len(day.Tasks) {
			return false, apperr.NewNotFoundError("task %d not found on day %d", taskIndex, dayOrdinal)
		}
		task := day.Tasks[taskIndex]
		if task.Completed {
			return false, nil
		}
		if !r.IsActive() {
			return false, apperr.NewInvalidStateError("roadmap %s is %s", roadmapID, r.Status)
		}

		now := s.clock.Now()
		task.Completed = true
		task.CompletedAt = &now
		if day.RecomputeCompleted() && !day.StreakCounted {
			day.StreakCounted = true
			r.Streak++
		}
		if r.AllDaysCompleted() {
			r.Status = models.StatusCompleted
			r.CompletedAt = &now
		}
		if _, err := markBacklog(r, util.Today(s.clock)); err != nil {
			return false, err
		}
		firstCompletion = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if firstCompletion {
		metrics.RecordTaskCompleted()
	}
	return rm, nil
}
