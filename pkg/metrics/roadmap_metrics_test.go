package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestRecordGeneration(t *testing.T) {
	// Reset metrics before test
	generationTotal.Reset()
	generationDuration.Reset()

	RecordGeneration("success", 1.2)
	RecordGeneration("success", 0.8)
	RecordGeneration("parse_error", 2.0)

	if v := counterValue(t, generationTotal.WithLabelValues("success")); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}
	if v := counterValue(t, generationTotal.WithLabelValues("parse_error")); v != 1 {
		t.Errorf("Expected counter value 1, got %f", v)
	}

	metric := &dto.Metric{}
	if err := generationDuration.WithLabelValues("success").(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("Expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestRecordSweep(t *testing.T) {
	sweepRunsTotal.Reset()
	sweepRoadmapsTotal.Reset()

	RecordSweepRun("cron", "success", 0.4)
	RecordSweepRun("cron", "skipped", 0)
	RecordSweepRoadmap("updated")
	RecordSweepRoadmap("failed")
	RecordSweepRoadmap("failed")

	if v := counterValue(t, sweepRunsTotal.WithLabelValues("cron", "success")); v != 1 {
		t.Errorf("Expected counter value 1, got %f", v)
	}
	if v := counterValue(t, sweepRunsTotal.WithLabelValues("cron", "skipped")); v != 1 {
		t.Errorf("Expected counter value 1, got %f", v)
	}
	if v := counterValue(t, sweepRoadmapsTotal.WithLabelValues("failed")); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}
}

func TestRecordBacklogInjected(t *testing.T) {
	backlogInjectedTotal.Reset()

	RecordBacklogInjected("sweep", 2)
	RecordBacklogInjected("sweep", 0)
	RecordBacklogInjected("read", 1)

	if v := counterValue(t, backlogInjectedTotal.WithLabelValues("sweep")); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}
	if v := counterValue(t, backlogInjectedTotal.WithLabelValues("read")); v != 1 {
		t.Errorf("Expected counter value 1, got %f", v)
	}
}

func TestRecordTaskCompleted(t *testing.T) {
	before := counterValue(t, tasksCompletedTotal)
	RecordTaskCompleted()
	if v := counterValue(t, tasksCompletedTotal); v != before+1 {
		t.Errorf("Expected counter value %f, got %f", before+1, v)
	}

	roadmapsCreatedTotal.Reset()
	RecordRoadmapCreated("beginner")
	if v := counterValue(t, roadmapsCreatedTotal.WithLabelValues("beginner")); v != 1 {
		t.Errorf("Expected counter value 1, got %f", v)
	}
}
