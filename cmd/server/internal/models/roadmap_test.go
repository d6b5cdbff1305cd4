package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoadmap() *Roadmap {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	return &Roadmap{
		ID:        "r1",
		UserID:    "u1",
		Topic:     "Go",
		Level:     LevelBeginner,
		Duration:  2,
		StartDate: "2024-03-10",
		Status:    StatusActive,
		Version:   1,
		Days: []*Day{
			{Day: 1, Date: "2024-03-10", Tasks: []*Task{{Title: "a", Completed: true, CompletedAt: &now}, {Title: "b"}}},
			{Day: 2, Date: "2024-03-11", Tasks: []*Task{{Title: "c", Origin: &TaskOrigin{Day: 1, Title: "b", Key: OriginKey(1, "b")}}}},
		},
	}
}

func TestRecomputeCompleted(t *testing.T) {
	d := &Day{Tasks: []*Task{{Title: "a"}, {Title: "b"}}}
	assert.False(t, d.RecomputeCompleted())
	assert.False(t, d.IsCompleted)

	d.Tasks[0].Completed = true
	d.Tasks[1].Completed = true
	assert.True(t, d.RecomputeCompleted())
	assert.True(t, d.IsCompleted)

	// 已完成再次计算不算翻转
	assert.False(t, d.RecomputeCompleted())

	empty := &Day{}
	assert.False(t, empty.RecomputeCompleted())
	assert.False(t, empty.IsCompleted)
}

func TestCloneIsDeep(t *testing.T) {
	r := sampleRoadmap()
	cp := r.Clone()

	cp.Days[0].Tasks[1].Completed = true
	cp.Days[1].Tasks[0].Origin.Title = "changed"
	*cp.Days[0].Tasks[0].CompletedAt = time.Time{}

	assert.False(t, r.Days[0].Tasks[1].Completed)
	assert.Equal(t, "b", r.Days[1].Tasks[0].Origin.Title)
	assert.False(t, r.Days[0].Tasks[0].CompletedAt.IsZero())
}

func TestLookups(t *testing.T) {
	r := sampleRoadmap()
	require.NotNil(t, r.DayByOrdinal(2))
	assert.Equal(t, "2024-03-11", r.DayByOrdinal(2).Date)
	assert.Nil(t, r.DayByOrdinal(3))
	assert.Equal(t, 1, r.DayByDate("2024-03-10").Day)
	assert.Nil(t, r.DayByDate("2024-03-12"))
	assert.False(t, r.AllDaysCompleted())
	assert.True(t, r.Days[1].Tasks[0].IsInjected())
}

func TestOriginKeyStable(t *testing.T) {
	assert.Equal(t, OriginKey(1, "read docs"), OriginKey(1, "read docs"))
	assert.NotEqual(t, OriginKey(1, "read docs"), OriginKey(2, "read docs"))
	assert.Len(t, OriginKey(1, "x"), 16)
}

func TestComputeProgress(t *testing.T) {
	r := sampleRoadmap()
	r.Days[0].Backlog = true
	p := ComputeProgress(r, "2024-03-11")

	assert.Equal(t, 1, p.CompletedTasks)
	assert.Equal(t, 3, p.TotalTasks)
	assert.Equal(t, 33, p.Percent)
	assert.Equal(t, 0, p.CompletedDays)
	assert.Equal(t, 1, p.BacklogDays)
	assert.Equal(t, 2, p.TodayOrdinal)

	assert.Equal(t, 0, ComputeProgress(r, "2024-04-01").TodayOrdinal)
	assert.Nil(t, NewRoadmapView(nil, "2024-03-11"))
}

func TestLevelValid(t *testing.T) {
	assert.True(t, LevelAdvanced.Valid())
	assert.False(t, Level("expert").Valid())
}
