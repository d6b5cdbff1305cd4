package roadmapgen

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/studysphere/studysphere/cmd/server/internal/apperr"
	"github.com/studysphere/studysphere/cmd/server/internal/models"
	"github.com/studysphere/studysphere/cmd/server/internal/simhash"
	"github.com/studysphere/studysphere/pkg/logger"
	"github.com/studysphere/studysphere/pkg/metrics"
)

const (
	MinDurationDays = 1
	MaxDurationDays = 60
	MaxTopicLength  = 200
)

// Options 生成器配置
type Options struct {
	Timeout       time.Duration // 单次调用超时，默认 30s
	MaxConcurrent int           // 同时进行的生成调用上限，默认 4
	Logger        *slog.Logger
}

// Generator 调用外部文本生成服务并把结果解析为按天计划
type Generator struct {
	client  TextGenerator
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerator 创建生成器
func NewGenerator(client TextGenerator, opts Options) *Generator {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 4
	}
	return &Generator{
		client:  client,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		timeout: opts.Timeout,
		logger:  logger.Or(opts.Logger).With("component", "roadmapgen"),
	}
}

// ValidateRequest 校验生成参数，返回规范化的主题和难度
func ValidateRequest(topic string, durationDays int, level models.Level) (string, models.Level, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", "", apperr.NewValidationError("topic is required")
	}
	if utf8.RuneCountInString(topic) > MaxTopicLength {
		return "", "", apperr.NewValidationError("topic must be at most %d characters", MaxTopicLength)
	}
	if durationDays < MinDurationDays || durationDays > MaxDurationDays {
		return "", "", apperr.NewValidationError("duration must be between %d and %d days", MinDurationDays, MaxDurationDays)
	}
	if level == "" {
		level = models.LevelBeginner
	}
	level = models.Level(strings.ToLower(string(level)))
	if !level.Valid() {
		return "", "", apperr.NewValidationError("level must be one of beginner, intermediate, advanced")
	}
	return topic, level, nil
}

// Generate 生成 durationDays 天的学习计划
// 不做自动重试；外部调用失败、超时或无可用并发槽位都返回 GENERATION_UNAVAILABLE
func (g *Generator) Generate(ctx context.Context, topic string, durationDays int, level models.Level) ([]models.DayPlan, error) {
	start := time.Now()
	plans, err := g.generate(ctx, topic, durationDays, level)

	outcome := outcomeOf(err)
	metrics.RecordGeneration(outcome, time.Since(start).Seconds())
	if err != nil {
		g.logger.Warn("roadmap generation failed",
			"topic", topic,
			"duration", durationDays,
			"outcome", outcome,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return nil, err
	}
	g.logger.Info("roadmap generated",
		"topic", topic,
		"duration", durationDays,
		"duration_ms", time.Since(start).Milliseconds())
	g.reportSimilarTasks(topic, plans)
	return plans, nil
}

// reportSimilarTasks 记录同一天内近似重复的任务，计划本身保持不变
func (g *Generator) reportSimilarTasks(topic string, plans []models.DayPlan) int {
	total := 0
	for _, p := range plans {
		for _, pair := range simhash.NearDuplicates(p.Tasks) {
			total++
			g.logger.Debug("generated day has similar tasks",
				"topic", topic,
				"day", p.Day,
				"first", p.Tasks[pair.First],
				"second", p.Tasks[pair.Second])
		}
	}
	if total > 0 {
		g.logger.Info("generated plan contains similar tasks", "topic", topic, "pairs", total)
	}
	return total
}

func (g *Generator) generate(ctx context.Context, topic string, durationDays int, level models.Level) ([]models.DayPlan, error) {
	topic, level, err := ValidateRequest(topic, durationDays, level)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(callCtx, 1); err != nil {
		return nil, apperr.NewUnavailableError("no generation capacity available", err)
	}
	defer g.sem.Release(1)

	text, err := g.client.Complete(callCtx, systemPrompt, BuildPrompt(topic, durationDays, level))
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, apperr.NewUnavailableError("text generation timed out", err)
		}
		return nil, apperr.NewUnavailableError("text generation failed", err)
	}

	return ParsePlan(text, durationDays)
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	switch apperr.CodeOf(err) {
	case apperr.VALIDATION_ERROR:
		return "validation_error"
	case apperr.GENERATION_FORMAT_ERROR:
		return "format_error"
	case apperr.GENERATION_PARSE_ERROR:
		return "parse_error"
	case apperr.GENERATION_UNAVAILABLE:
		return "unavailable"
	default:
		return "error"
	}
}
