package optimizer

import (
	"context"
	"testing"
	"time"
)

type fakeStats struct {
	agentStats    []AgentStat
	templateStats map[string][]TemplateStat
}

func (f *fakeStats) EvaluationStatsByAgent(ctx context.Context, since time.Time) ([]AgentStat, error) {
	return f.agentStats, nil
}

func (f *fakeStats) EvaluationStatsByTemplate(ctx context.Context, agent string, since time.Time) ([]TemplateStat, error) {
	return f.templateStats[agent], nil
}

func TestQueueOptimizationDedupesAndBumpsPriority(t *testing.T) {
	s := NewScheduler(&fakeStats{}, nil, DefaultSchedulerConfig, nil)

	ok := s.QueueOptimization("writer", "tmpl", "low score", 3)
	if !ok {
		t.Fatal("expected first queue to succeed")
	}
	ok = s.QueueOptimization("writer", "tmpl", "even lower score", 8)
	if !ok {
		t.Fatal("expected re-queue of the same key to succeed")
	}

	status := s.QueueStatus()
	if len(status) != 1 {
		t.Fatalf("expected the duplicate key to be deduped into one entry, got %d", len(status))
	}
	if status[0].Priority != 8 {
		t.Fatalf("expected priority bumped to 8, got %d", status[0].Priority)
	}
}

func TestQueueOptimizationRespectsCooldown(t *testing.T) {
	s := NewScheduler(&fakeStats{}, nil, DefaultSchedulerConfig, nil)
	s.lastOptimization["writer:tmpl"] = time.Now()

	if s.QueueOptimization("writer", "tmpl", "reason", 5) {
		t.Fatal("expected cooldown to reject the queue attempt")
	}
}

func TestQueueSortsHighestPriorityFirst(t *testing.T) {
	s := NewScheduler(&fakeStats{}, nil, DefaultSchedulerConfig, nil)
	s.QueueOptimization("writer", "a", "r", 1)
	s.QueueOptimization("writer", "b", "r", 9)
	s.QueueOptimization("writer", "c", "r", 5)

	status := s.QueueStatus()
	if status[0].TemplateName != "b" {
		t.Fatalf("expected highest-priority trigger first, got %v", status)
	}
}

func TestCheckAndQueueSkipsAgentsAboveThreshold(t *testing.T) {
	stats := &fakeStats{agentStats: []AgentStat{{Agent: "writer", Total: 20, AvgScore: 9.0}}}
	cfg := DefaultSchedulerConfig
	cfg.MinSamples = 10
	s := NewScheduler(stats, nil, cfg, nil)

	triggers, err := s.CheckAndQueue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triggers) != 0 {
		t.Fatalf("expected no triggers for an agent above threshold, got %d", len(triggers))
	}
}

func TestCheckAndQueueSkipsInsufficientSamples(t *testing.T) {
	stats := &fakeStats{agentStats: []AgentStat{{Agent: "writer", Total: 2, AvgScore: 3.0}}}
	cfg := DefaultSchedulerConfig
	cfg.MinSamples = 10
	s := NewScheduler(stats, nil, cfg, nil)

	triggers, err := s.CheckAndQueue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triggers) != 0 {
		t.Fatalf("expected agents under min_samples to be skipped, got %d", len(triggers))
	}
}
