package services

import (
	"context"
	"log/slog"

	"github.com/studysphere/studysphere/cmd/server/internal/apperr"
	"github.com/studysphere/studysphere/cmd/server/internal/models"
	"github.com/studysphere/studysphere/cmd/server/internal/roadmapgen"
	"github.com/studysphere/studysphere/cmd/server/internal/util"
	"github.com/studysphere/studysphere/pkg/logger"
)

// DefaultDurationDays 未指定时长时的默认天数
const DefaultDurationDays = 7

// RoadmapGenerator 生成按天学习计划
type RoadmapGenerator interface {
	Generate(ctx context.Context, topic string, durationDays int, level models.Level) ([]models.DayPlan, error)
}

// CompleteTaskInput 完成任务参数
// RoadmapID 为空时使用活跃路线图，DayOrdinal 为空时使用今天
type CompleteTaskInput struct {
	RoadmapID  string
	DayOrdinal *int
	TaskIndex  int
}

// RoadmapService 面向请求的路线图操作
type RoadmapService struct {
	generator RoadmapGenerator
	store     *RoadmapStore
	processor *BacklogProcessor
	clock     util.Clock
	logger    *slog.Logger
}

// NewRoadmapService 创建路线图服务实例
func NewRoadmapService(generator RoadmapGenerator, store *RoadmapStore, processor *BacklogProcessor, clock util.Clock, log *slog.Logger) *RoadmapService {
	return &RoadmapService{
		generator: generator,
		store:     store,
		processor: processor,
		clock:     clock,
		logger:    logger.Or(log).With("component", "roadmap_service"),
	}
}

// Today 返回服务时钟下的今天
func (s *RoadmapService) Today() string {
	return util.Today(s.clock)
}

// View 组装带进度的对外视图
func (s *RoadmapService) View(r *models.Roadmap) *models.RoadmapView {
	return models.NewRoadmapView(r, s.Today())
}

// CreateRoadmap 校验参数、调用生成器并保存新路线图
// 生成失败时不写入任何数据，原活跃路线图保持不变
func (s *RoadmapService) CreateRoadmap(ctx context.Context, userID, topic string, durationDays int, level string) (*models.Roadmap, error) {
	if durationDays == 0 {
		durationDays = DefaultDurationDays
	}
	topic, lvl, err := roadmapgen.ValidateRequest(topic, durationDays, models.Level(level))
	if err != nil {
		return nil, err
	}

	plans, err := s.generator.Generate(ctx, topic, durationDays, lvl)
	if err != nil {
		return nil, err
	}

	return s.store.CreateRoadmap(ctx, CreateRoadmapParams{
		UserID:       userID,
		Topic:        topic,
		Level:        lvl,
		DurationDays: durationDays,
		Plans:        plans,
	})
}

// GetActiveRoadmap 返回重算积压后的活跃路线图，没有时返回 nil
func (s *RoadmapService) GetActiveRoadmap(ctx context.Context, userID string) (*models.Roadmap, error) {
	rm, err := s.store.GetActiveRoadmap(ctx, userID)
	if err != nil || rm == nil {
		return nil, err
	}

	refreshed, _, err := s.processor.Refresh(ctx, rm.ID, "read")
	if err != nil {
		s.logger.Warn("backlog refresh on read failed, returning in-memory recompute",
			"roadmap_id", rm.ID, "error", err)
		fallback := rm.Clone()
		if _, rerr := RecomputeBacklog(fallback, s.Today()); rerr != nil {
			return rm, nil
		}
		return fallback, nil
	}
	return refreshed, nil
}

// ListRoadmaps 返回用户的路线图历史
func (s *RoadmapService) ListRoadmaps(ctx context.Context, userID string) ([]*models.Roadmap, error) {
	return s.store.ListRoadmaps(ctx, userID)
}

// resolveRoadmap 定位用户要操作的路线图，不属于该用户的路线图视为不存在
func (s *RoadmapService) resolveRoadmap(ctx context.Context, userID, roadmapID string) (*models.Roadmap, error) {
	if roadmapID == "" {
		rm, err := s.store.GetActiveRoadmap(ctx, userID)
		if err != nil {
			return nil, err
		}
		if rm == nil {
			return nil, apperr.NewNotFoundError("no active roadmap")
		}
		return rm, nil
	}

	rm, err := s.store.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return nil, err
	}
	if rm.UserID != userID {
		return nil, apperr.NewNotFoundError("roadmap %s not found", roadmapID)
	}
	return rm, nil
}

// CompleteTask 校验归属后完成任务
func (s *RoadmapService) CompleteTask(ctx context.Context, userID string, in CompleteTaskInput) (*models.Roadmap, error) {
	rm, err := s.resolveRoadmap(ctx, userID, in.RoadmapID)
	if err != nil {
		return nil, err
	}

	var ordinal int
	if in.DayOrdinal != nil {
		ordinal = *in.DayOrdinal
	} else {
		today := rm.DayByDate(s.Today())
		if today == nil {
			return nil, apperr.NewNotFoundError("no roadmap day scheduled for today")
		}
		ordinal = today.Day
	}

	return s.store.CompleteTask(ctx, rm.ID, ordinal, in.TaskIndex)
}

// ClearBacklog 确认并清除过去未完成天的积压提示，不修改任务，不删除已注入的任务
func (s *RoadmapService) ClearBacklog(ctx context.Context, userID string) (*models.Roadmap, error) {
	rm, err := s.resolveRoadmap(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	today := s.Today()
	updated, _, err := s.store.Mutate(ctx, rm.ID, func(r *models.Roadmap) (bool, error) {
		if !r.IsActive() {
			return false, apperr.NewInvalidStateError("roadmap %s is %s", r.ID, r.Status)
		}
		changed := false
		for _, d := range r.Days {
			cmp, err := util.CompareDates(d.Date, today)
			if err != nil {
				return false, err
			}
			if cmp >= 0 || d.IsCompleted {
				continue
			}
			if d.Backlog || !d.BacklogCleared {
				d.Backlog = false
				d.BacklogCleared = true
				changed = true
			}
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
