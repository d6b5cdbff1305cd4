// Package scheduler 定时触发积压巡检
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/studysphere/studysphere/cmd/server/internal/services"
	"github.com/studysphere/studysphere/pkg/logger"
	"github.com/studysphere/studysphere/pkg/metrics"
)

const (
	// LeaseKey 巡检租约键
	LeaseKey = "studysphere:backlog-sweep"
	// DefaultLeaseTTL 租约过期时间，超过单次巡检的正常耗时
	DefaultLeaseTTL = 30 * time.Minute
)

// Sweeper 执行一次批量巡检
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepReport, error)
}

// RunResult 一次触发的结果
type RunResult struct {
	Report  services.SweepReport
	Skipped bool
}

// Scheduler cron 触发的积压巡检
type Scheduler struct {
	sweeper  Sweeper
	lease    Lease
	spec     string
	leaseTTL time.Duration
	logger   *slog.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New 创建调度器，loc 为 cron 表达式的时区
func New(sweeper Sweeper, lease Lease, spec string, loc *time.Location, log *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if lease == nil {
		lease = NewLocalLease()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sweeper:  sweeper,
		lease:    lease,
		spec:     spec,
		leaseTTL: DefaultLeaseTTL,
		logger:   logger.Or(log).With("component", "scheduler"),
		cron:     cron.NewWithLocation(loc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 注册 cron 任务并启动
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	err := s.cron.AddFunc(s.spec, func() {
		_, _ = s.RunOnce(s.ctx, "cron")
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("backlog sweep scheduled", "schedule", s.spec)
	return nil
}

// Stop 停止触发新任务并取消进行中的巡检
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.cron.Stop()
		s.started = false
	}
	s.cancel()
}

// RunOnce 获取租约后执行一次巡检，未获取到租约时跳过
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (RunResult, error) {
	start := time.Now()

	release, ok, err := s.lease.TryAcquire(ctx, LeaseKey, s.leaseTTL)
	if err != nil {
		metrics.RecordSweepRun(trigger, "failed", time.Since(start).Seconds())
		logger.LogSweep(s.logger, logger.SweepSummary{Trigger: trigger}, err)
		return RunResult{}, err
	}
	if !ok {
		metrics.RecordSweepRun(trigger, "skipped", 0)
		s.logger.Info("backlog sweep skipped, lease held elsewhere", "trigger", trigger)
		return RunResult{Skipped: true}, nil
	}
	defer release()

	report, err := s.sweeper.Sweep(ctx)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.RecordSweepRun(trigger, status, elapsed.Seconds())
	logger.LogSweep(s.logger, logger.SweepSummary{
		Trigger:    trigger,
		Total:      report.Total,
		Updated:    report.Updated,
		Unchanged:  report.Unchanged,
		Failed:     report.Failed,
		Injected:   report.Injected,
		DurationMs: elapsed.Milliseconds(),
	}, err)

	return RunResult{Report: report}, err
}
