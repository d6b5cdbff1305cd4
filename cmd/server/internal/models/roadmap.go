package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// RoadmapStatus 路线图状态
type RoadmapStatus string

const (
	StatusActive    RoadmapStatus = "active"
	StatusCompleted RoadmapStatus = "completed"
	StatusAbandoned RoadmapStatus = "abandoned" // 被新路线图替换后归档
)

// Level 学习难度
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Valid 判断难度是否合法
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// BacklogPrefix 注入到当天的积压任务标题前缀
const BacklogPrefix = "[BACKLOG] "

// Roadmap 学习路线图（聚合根，一个路线图持久化为一个文档）
type Roadmap struct {
	ID          string        `json:"id" bson:"_id"`
	UserID      string        `json:"user_id" bson:"user_id"`
	Topic       string        `json:"topic" bson:"topic"`
	Level       Level         `json:"level" bson:"level"`
	Duration    int           `json:"duration" bson:"duration"`
	StartDate   string        `json:"start_date" bson:"start_date"` // YYYY-MM-DD format
	Status      RoadmapStatus `json:"status" bson:"status"`
	Streak      int           `json:"streak" bson:"streak"`
	Version     int64         `json:"version" bson:"version"`
	Days        []*Day        `json:"days" bson:"days"`
	CreatedAt   time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" bson:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	RetiredAt   *time.Time    `json:"retired_at,omitempty" bson:"retired_at,omitempty"`
}

// Day 路线图中的一天
type Day struct {
	Day            int     `json:"day" bson:"day"`
	Date           string  `json:"date" bson:"date"` // YYYY-MM-DD format
	Topic          string  `json:"topic" bson:"topic"`
	Tasks          []*Task `json:"tasks" bson:"tasks"`
	IsCompleted    bool    `json:"is_completed" bson:"is_completed"`
	Backlog        bool    `json:"backlog" bson:"backlog"`
	BacklogCleared bool    `json:"backlog_cleared" bson:"backlog_cleared"`
	StreakCounted  bool    `json:"streak_counted" bson:"streak_counted"` // 连续天数已为该天计数
}

// Task 单个学习任务
type Task struct {
	Title       string      `json:"title" bson:"title"`
	Completed   bool        `json:"completed" bson:"completed"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Origin      *TaskOrigin `json:"origin,omitempty" bson:"origin,omitempty"`
}

// TaskOrigin 积压注入任务的来源
type TaskOrigin struct {
	Day   int    `json:"day" bson:"day"`
	Title string `json:"title" bson:"title"`
	Key   string `json:"key" bson:"key"`
}

// OriginKey 根据来源天序号和任务标题生成稳定的去重键
func OriginKey(day int, title string) string {
	sum := sha256.Sum256([]byte(strconv.Itoa(day) + "\x00" + title))
	return hex.EncodeToString(sum[:8])
}

// IsActive 是否为活跃路线图
func (r *Roadmap) IsActive() bool {
	return r.Status == StatusActive
}

// DayByOrdinal 按序号查找某一天，不存在返回 nil
func (r *Roadmap) DayByOrdinal(ordinal int) *Day {
	for _, d := range r.Days {
		if d.Day == ordinal {
			return d
		}
	}
	return nil
}

// DayByDate 按日期查找某一天，不存在返回 nil
func (r *Roadmap) DayByDate(date string) *Day {
	for _, d := range r.Days {
		if d.Date == date {
			return d
		}
	}
	return nil
}

// AllDaysCompleted 是否所有天都已完成
func (r *Roadmap) AllDaysCompleted() bool {
	if len(r.Days) == 0 {
		return false
	}
	for _, d := range r.Days {
		if !d.IsCompleted {
			return false
		}
	}
	return true
}

// Clone 深拷贝，重试和回退计算时使用
func (r *Roadmap) Clone() *Roadmap {
	if r == nil {
		return nil
	}
	cp := *r
	cp.CompletedAt = cloneTime(r.CompletedAt)
	cp.RetiredAt = cloneTime(r.RetiredAt)
	cp.Days = make([]*Day, len(r.Days))
	for i, d := range r.Days {
		dc := *d
		dc.Tasks = make([]*Task, len(d.Tasks))
		for j, t := range d.Tasks {
			tc := *t
			tc.CompletedAt = cloneTime(t.CompletedAt)
			if t.Origin != nil {
				o := *t.Origin
				tc.Origin = &o
			}
			dc.Tasks[j] = &tc
		}
		cp.Days[i] = &dc
	}
	return &cp
}

// RecomputeCompleted 按任务状态重算当天完成标记
// 返回值表示本次是否发生 false->true 翻转
func (d *Day) RecomputeCompleted() bool {
	done := len(d.Tasks) > 0
	for _, t := range d.Tasks {
		if !t.Completed {
			done = false
			break
		}
	}
	flipped := done && !d.IsCompleted
	d.IsCompleted = done
	return flipped
}

// CompletedTasks 已完成任务数
func (d *Day) CompletedTasks() int {
	n := 0
	for _, t := range d.Tasks {
		if t.Completed {
			n++
		}
	}
	return n
}

// IsInjected 是否为积压注入任务
func (t *Task) IsInjected() bool {
	return t.Origin != nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// DayPlan 生成器输出的单日计划
type DayPlan struct {
	Day   int      `json:"day"`
	Topic string   `json:"topic"`
	Tasks []string `json:"tasks"`
}

// CreateRoadmapRequest 创建路线图请求
type CreateRoadmapRequest struct {
	Topic    string `json:"topic" binding:"required"`
	Duration int    `json:"duration"`
	Level    string `json:"level"`
}

// CompleteTaskRequest 完成任务请求
// DayID 为空时表示今天
type CompleteTaskRequest struct {
	RoadmapID string `json:"roadmapId"`
	DayID     *int   `json:"dayId"`
	TaskID    *int   `json:"taskId" binding:"required"`
}
