package models

import "math"

// Progress 路线图进度统计（计算字段，不持久化）
type Progress struct {
	CompletedTasks int `json:"completed_tasks"`
	TotalTasks     int `json:"total_tasks"`
	Percent        int `json:"percent"` // 0-100
	CompletedDays  int `json:"completed_days"`
	TotalDays      int `json:"total_days"`
	BacklogDays    int `json:"backlog_days"`
	TodayOrdinal   int `json:"today_ordinal"` // 0 表示今天不在计划范围内
}

// RoadmapView 对外返回的路线图（文档 + 进度）
type RoadmapView struct {
	*Roadmap
	Progress Progress `json:"progress"`
}

// ComputeProgress 统计路线图进度
func ComputeProgress(r *Roadmap, today string) Progress {
	p := Progress{TotalDays: len(r.Days)}
	for _, d := range r.Days {
		p.TotalTasks += len(d.Tasks)
		p.CompletedTasks += d.CompletedTasks()
		if d.IsCompleted {
			p.CompletedDays++
		}
		if d.Backlog {
			p.BacklogDays++
		}
		if d.Date == today {
			p.TodayOrdinal = d.Day
		}
	}
	if p.TotalTasks > 0 {
		p.Percent = int(math.Round(float64(p.CompletedTasks) * 100 / float64(p.TotalTasks)))
	}
	return p
}

// NewRoadmapView 组装对外视图
func NewRoadmapView(r *Roadmap, today string) *RoadmapView {
	if r == nil {
		return nil
	}
	return &RoadmapView{Roadmap: r, Progress: ComputeProgress(r, today)}
}
