package util

import (
	"fmt"
	"sync"
	"time"
)

// DateLayout 日期格式（仅日期部分）
const DateLayout = "2006-01-02"

// Clock 时钟接口，所有"今天"的计算都通过它注入
type Clock interface {
	Now() time.Time
}

// SystemClock 基于系统时间的时钟，Location 为空时使用 time.Local
type SystemClock struct {
	Location *time.Location
}

// Now 返回当前时间（已转换到配置时区）
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// ManualClock 可手动推进的时钟，用于测试和离线重放
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock 创建固定在 t 的时钟
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set 设置当前时间
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// AddDays 时钟前进 n 天
func (c *ManualClock) AddDays(n int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, n)
	c.mu.Unlock()
}

// FormatDate 格式化为 "YYYY-MM-DD"
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Today 返回时钟当前日期
func Today(c Clock) string {
	return FormatDate(c.Now())
}

// ParseDate 解析 "YYYY-MM-DD" 日期
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// AddDays 日期加 n 天，返回 "YYYY-MM-DD"
// 以 UTC 零点计算，避免夏令时切换导致跨日误差
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, n)), nil
}

// CompareDates 比较两个日期：a<b 返回 -1，相等返回 0，a>b 返回 1
func CompareDates(a, b string) (int, error) {
	ta, err := ParseDate(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseDate(b)
	if err != nil {
		return 0, err
	}
	switch {
	case ta.Before(tb):
		return -1, nil
	case ta.After(tb):
		return 1, nil
	default:
		return 0, nil
	}
}

// DaysBetween 返回 to - from 的天数
func DaysBetween(from, to string) (int, error) {
	tf, err := ParseDate(from)
	if err != nil {
		return 0, err
	}
	tt, err := ParseDate(to)
	if err != nil {
		return 0, err
	}
	return int(tt.Sub(tf).Hours() / 24), nil
}
