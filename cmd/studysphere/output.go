package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// roadmapView 客户端只关心的路线图字段
type roadmapView struct {
	ID       string       `json:"id"`
	Topic    string       `json:"topic"`
	Level    string       `json:"level"`
	Status   string       `json:"status"`
	Streak   int          `json:"streak"`
	Days     []dayView    `json:"days"`
	Progress progressView `json:"progress"`
}

type dayView struct {
	Day         int        `json:"day"`
	Date        string     `json:"date"`
	Topic       string     `json:"topic"`
	IsCompleted bool       `json:"is_completed"`
	Backlog     bool       `json:"backlog"`
	Tasks       []taskView `json:"tasks"`
}

type taskView struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type progressView struct {
	CompletedTasks int `json:"completed_tasks"`
	TotalTasks     int `json:"total_tasks"`
	Percent        int `json:"percent"`
	BacklogDays    int `json:"backlog_days"`
	TodayOrdinal   int `json:"today_ordinal"`
}

// printOutput 按指定格式输出响应数据
func printOutput(w io.Writer, format string, data []byte) error {
	if format == "json" {
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			// 非 JSON 数据直接输出
			fmt.Fprintln(w, string(data))
			return nil
		}
		fmt.Fprintln(w, out.String())
		return nil
	}
	return printText(w, data)
}

// printText 把 data 渲染为可读文本，data 可以是单个路线图、列表或 null
func printText(w io.Writer, data []byte) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	raw := bytes.TrimSpace(env.Data)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		fmt.Fprintln(w, "No active roadmap.")
		return nil
	case raw[0] == '[':
		var list []roadmapView
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("parse roadmaps: %w", err)
		}
		if len(list) == 0 {
			fmt.Fprintln(w, "No roadmaps.")
		}
		for _, r := range list {
			fmt.Fprintf(w, "%s  %-10s %3d%%  %s (%s)\n", r.ID, r.Status, r.Progress.Percent, r.Topic, r.Level)
		}
		return nil
	default:
		var r roadmapView
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("parse roadmap: %w", err)
		}
		renderRoadmap(w, &r)
		return nil
	}
}

func renderRoadmap(w io.Writer, r *roadmapView) {
	fmt.Fprintf(w, "%s (%s) [%s]\n", r.Topic, r.Level, r.Status)
	fmt.Fprintf(w, "id: %s  streak: %d  progress: %d/%d (%d%%)  backlog days: %d\n",
		r.ID, r.Streak, r.Progress.CompletedTasks, r.Progress.TotalTasks, r.Progress.Percent, r.Progress.BacklogDays)
	for _, d := range r.Days {
		var marks []string
		if d.Day == r.Progress.TodayOrdinal {
			marks = append(marks, "today")
		}
		if d.IsCompleted {
			marks = append(marks, "done")
		}
		if d.Backlog {
			marks = append(marks, "backlog")
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = " (" + strings.Join(marks, ", ") + ")"
		}
		fmt.Fprintf(w, "\nDay %d  %s  %s%s\n", d.Day, d.Date, d.Topic, suffix)
		for i, t := range d.Tasks {
			box := "[ ]"
			if t.Completed {
				box = "[x]"
			}
			fmt.Fprintf(w, "  %d. %s %s\n", i, box, t.Title)
		}
	}
}
