package roadmapgen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/studysphere/studysphere/cmd/server/internal/apperr"
	"github.com/studysphere/studysphere/cmd/server/internal/models"
)

// rawDay 生成结果中的单日结构；day 字段不参与解析，序号按数组位置分配
type rawDay struct {
	Topic string    `json:"topic"`
	Tasks []rawTask `json:"tasks"`
}

// rawTask 任务既可以是字符串，也可以是带 title 的对象
type rawTask string

func (t *rawTask) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Title string `json:"title"`
			Task  string `json:"task"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Title != "" {
			*t = rawTask(obj.Title)
		} else {
			*t = rawTask(obj.Task)
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = rawTask(s)
	return nil
}

// ExtractArrays 返回文本中所有平衡的 JSON 数组子串（按出现顺序，只取最外层）
// 括号匹配会跳过 JSON 字符串中的括号和转义字符，数组外的引号按普通文本处理。
// 未闭合的 '[' 不产生候选，但其中已闭合的数组仍会返回。单次扫描完成
func ExtractArrays(text string) []string {
	var candidates []string
	var open []int      // 尚未闭合的 '[' 下标
	var pending [][2]int // 已闭合但外层仍未闭合的数组，互不包含
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if len(open) > 0 {
				inString = true
			}
		case '[':
			open = append(open, i)
		case ']':
			if len(open) == 0 {
				continue
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]
			// 被当前数组包含的内层数组不再是最外层
			for len(pending) > 0 && pending[len(pending)-1][0] > start {
				pending = pending[:len(pending)-1]
			}
			if len(open) == 0 {
				candidates = append(candidates, text[start:i+1])
			} else {
				pending = append(pending, [2]int{start, i})
			}
		}
	}

	for _, p := range pending {
		candidates = append(candidates, text[p[0]:p[1]+1])
	}
	return candidates
}

// ParsePlan 从生成文本中解析出 durationDays 天的计划
//
//   - 没有任何平衡数组 -> GENERATION_FORMAT_ERROR
//   - 有候选但都无法解析为非空的天数组 -> GENERATION_PARSE_ERROR
//   - 解析成功但天数不足或某天没有任务 -> GENERATION_PARSE_ERROR
func ParsePlan(text string, durationDays int) ([]models.DayPlan, error) {
	candidates := ExtractArrays(text)
	if len(candidates) == 0 {
		return nil, apperr.NewFormatError("generator response contains no JSON array")
	}

	var days []rawDay
	var lastErr error
	for _, c := range candidates {
		var parsed []rawDay
		if err := json.Unmarshal([]byte(c), &parsed); err != nil {
			lastErr = err
			continue
		}
		if len(parsed) == 0 {
			lastErr = fmt.Errorf("empty array")
			continue
		}
		days = parsed
		break
	}
	if days == nil {
		return nil, apperr.NewParseError("generator response is not a valid roadmap array", lastErr)
	}

	return normalize(days, durationDays)
}

// normalize 截断多余天数、按位置编号、清理任务标题
// 非空任务标题按原顺序一一保留
func normalize(days []rawDay, durationDays int) ([]models.DayPlan, error) {
	if len(days) < durationDays {
		return nil, apperr.NewParseError(
			fmt.Sprintf("generator returned %d days, expected %d", len(days), durationDays), nil)
	}
	days = days[:durationDays]

	plans := make([]models.DayPlan, 0, durationDays)
	for i, d := range days {
		ordinal := i + 1
		titles := make([]string, 0, len(d.Tasks))
		for _, t := range d.Tasks {
			if title := strings.TrimSpace(string(t)); title != "" {
				titles = append(titles, title)
			}
		}
		if len(titles) == 0 {
			return nil, apperr.NewParseError(fmt.Sprintf("day %d has no tasks", ordinal), nil)
		}

		topic := strings.TrimSpace(d.Topic)
		if topic == "" {
			topic = fmt.Sprintf("Day %d", ordinal)
		}
		plans = append(plans, models.DayPlan{Day: ordinal, Topic: topic, Tasks: titles})
	}
	return plans, nil
}
