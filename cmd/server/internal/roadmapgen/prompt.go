package roadmapgen

import (
	"fmt"
	"strings"

	"github.com/studysphere/studysphere/cmd/server/internal/models"
)

const systemPrompt = "You are a study planner for students. You reply with a JSON array only, never with prose or markdown."

// BuildPrompt 构造生成路线图的提示词，相同输入得到相同输出
func BuildPrompt(topic string, durationDays int, level models.Level) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %d-day study roadmap for learning %q at %s level.\n", durationDays, topic, level)
	fmt.Fprintf(&b, "Return ONLY a JSON array with exactly %d elements, one per day, in order.\n", durationDays)
	b.WriteString("Each element must have exactly this shape:\n")
	b.WriteString(`{ "day": 1, "topic": "string", "tasks": ["task1", "task2"] }` + "\n")
	b.WriteString("Give every day 2 to 4 short, concrete tasks that can be finished in one sitting.\n")
	b.WriteString("Do not add explanations, comments or code fences.")
	return b.String()
}
