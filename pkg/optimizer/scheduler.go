package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// OptimizationTrigger records why and how urgently (agent, templateName)
// was queued for optimization.
type OptimizationTrigger struct {
	Agent        string
	TemplateName string
	Reason       string
	Priority     int
	TriggeredAt  time.Time
}

// SchedulerConfig configures the background optimization scheduler.
type SchedulerConfig struct {
	ScoreThreshold            float64
	MinSamples                int
	MinSamplesPerTemplate     int
	OptimizationCooldownHours int
	MaxConcurrent             int
	CheckIntervalSeconds      int
	AutoOptimize              bool
}

// DefaultSchedulerConfig mirrors the original's SchedulerConfig defaults.
var DefaultSchedulerConfig = SchedulerConfig{
	ScoreThreshold:            7.0,
	MinSamples:                10,
	MinSamplesPerTemplate:     3,
	OptimizationCooldownHours: 24,
	MaxConcurrent:             2,
	CheckIntervalSeconds:      300,
	AutoOptimize:              true,
}

// statsSource abstracts the store aggregate queries CheckAndQueue needs,
// so tests can substitute canned statistics instead of standing up a
// Postgres container.
type statsSource interface {
	EvaluationStatsByAgent(ctx context.Context, since time.Time) ([]AgentStat, error)
	EvaluationStatsByTemplate(ctx context.Context, agent string, since time.Time) ([]TemplateStat, error)
}

// AgentStat is one agent's aggregate evaluation statistics over the
// scheduler's lookback window.
type AgentStat struct {
	Agent    string
	Total    int
	AvgScore float64
}

// TemplateStat is one (agent, template) pair's aggregate statistics.
type TemplateStat struct {
	TemplateName string
	Total        int
	AvgScore     float64
}

// Scheduler monitors evaluation statistics and triggers optimization runs,
// bounded by a priority queue, a per-(agent,template) cooldown, and a
// maximum-concurrency gate.
type Scheduler struct {
	stats     statsSource
	optimizer *Optimizer
	cfg       SchedulerConfig
	logger    *slog.Logger

	mu               sync.Mutex
	queue            []OptimizationTrigger
	running          map[string]struct{}
	lastOptimization map[string]time.Time

	lookbackDays int
}

// NewScheduler constructs a Scheduler. lookbackDays mirrors the original's
// fixed 7-day statistics window.
func NewScheduler(stats statsSource, optimizer *Optimizer, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg == (SchedulerConfig{}) {
		cfg = DefaultSchedulerConfig
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultSchedulerConfig.MaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		stats:            stats,
		optimizer:        optimizer,
		cfg:              cfg,
		logger:           logger,
		running:          map[string]struct{}{},
		lastOptimization: map[string]time.Time{},
		lookbackDays:     7,
	}
}

// QueueOptimization adds or bumps a trigger in the priority queue, subject
// to the per-key cooldown. Returns false if the cooldown rejected it.
func (s *Scheduler) QueueOptimization(agent, templateName, reason string, priority int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueLocked(agent, templateName, reason, priority)
}

func (s *Scheduler) queueLocked(agent, templateName, reason string, priority int) bool {
	key := schedulerKey(agent, templateName)

	if last, ok := s.lastOptimization[key]; ok {
		cooldown := time.Duration(s.cfg.OptimizationCooldownHours) * time.Hour
		if time.Since(last) < cooldown {
			s.logger.Info("optimization in cooldown", "key", key)
			return false
		}
	}

	for i := range s.queue {
		t := &s.queue[i]
		if t.Agent == agent && t.TemplateName == templateName {
			if priority > t.Priority {
				t.Priority = priority
				t.Reason = reason
			}
			return true
		}
	}

	s.queue = append(s.queue, OptimizationTrigger{
		Agent:        agent,
		TemplateName: templateName,
		Reason:       reason,
		Priority:     priority,
		TriggeredAt:  time.Now(),
	})
	sort.SliceStable(s.queue, func(i, j int) bool { return s.queue[i].Priority > s.queue[j].Priority })

	s.logger.Info("queued optimization", "key", key, "reason", reason)
	return true
}

func schedulerKey(agent, templateName string) string {
	return fmt.Sprintf("%s:%s", agent, templateName)
}

// CheckAndQueue inspects trailing-window evaluation statistics and queues
// optimization triggers for agents/templates below threshold, returning
// the newly queued triggers.
func (s *Scheduler) CheckAndQueue(ctx context.Context) ([]OptimizationTrigger, error) {
	var newTriggers []OptimizationTrigger

	since := time.Now().AddDate(0, 0, -s.lookbackDays)
	agentStats, err := s.stats.EvaluationStatsByAgent(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("check and queue: agent stats: %w", err)
	}

	for _, as := range agentStats {
		if as.Agent == "" || as.Total < s.cfg.MinSamples {
			continue
		}
		if as.AvgScore >= s.cfg.ScoreThreshold {
			continue
		}

		templateStats, err := s.stats.EvaluationStatsByTemplate(ctx, as.Agent, since)
		if err != nil {
			return nil, fmt.Errorf("check and queue: template stats: %w", err)
		}
		if len(templateStats) == 0 {
			templateStats = []TemplateStat{{TemplateName: "default", Total: as.Total, AvgScore: as.AvgScore}}
		}

		for _, ts := range templateStats {
			templateName := ts.TemplateName
			if templateName == "" {
				templateName = "default"
			}
			if ts.Total < s.cfg.MinSamplesPerTemplate {
				s.logger.Debug("skipping template, insufficient samples", "agent", as.Agent, "template", templateName, "total", ts.Total)
				continue
			}
			if ts.AvgScore >= s.cfg.ScoreThreshold {
				continue
			}

			should, reason, err := s.optimizer.ShouldOptimize(ctx, as.Agent, templateName, s.cfg.ScoreThreshold)
			if err != nil {
				return nil, fmt.Errorf("check and queue: should optimize: %w", err)
			}
			if !should {
				continue
			}

			priority := int((s.cfg.ScoreThreshold - ts.AvgScore) * 10)
			s.mu.Lock()
			queued := s.queueLocked(as.Agent, templateName, reason, priority)
			s.mu.Unlock()
			if queued {
				newTriggers = append(newTriggers, OptimizationTrigger{
					Agent: as.Agent, TemplateName: templateName, Reason: reason, Priority: priority, TriggeredAt: time.Now(),
				})
			}
		}
	}

	return newTriggers, nil
}

// ProcessQueue drains the queue, running up to MaxConcurrent optimizations
// at once via an errgroup bounded by SetLimit, mirroring the original's
// max_concurrent gate but actually overlapping the LLM-bound rewrite calls
// instead of serializing them.
func (s *Scheduler) ProcessQueue(ctx context.Context) []OptimizationResult {
	var (
		mu      sync.Mutex
		results []OptimizationResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	for {
		trigger, ok := s.popNext()
		if !ok {
			break
		}

		g.Go(func() error {
			key := schedulerKey(trigger.Agent, trigger.TemplateName)

			s.logger.Info("starting optimization", "key", key, "reason", trigger.Reason)
			result, err := s.optimizer.Optimize(gctx, trigger.Agent, trigger.TemplateName, "", false)
			if err != nil {
				errMsg := err.Error()
				result = OptimizationResult{Success: false, Method: "unknown", Error: &errMsg}
			}

			if result.Success {
				s.logger.Info("optimization succeeded", "key", key)
			} else {
				s.logger.Warn("optimization failed", "key", key, "error", derefStr(result.Error))
			}

			s.mu.Lock()
			s.lastOptimization[key] = time.Now()
			delete(s.running, key)
			s.mu.Unlock()

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return results
}

// popNext pops the highest-priority trigger not already running, marking
// it running. The concurrency bound itself lives in ProcessQueue's
// errgroup.SetLimit, not here — this only dedupes against triggers
// already in flight; returns ok=false once the queue is empty.
func (s *Scheduler) popNext() (OptimizationTrigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) > 0 {
		trigger := s.queue[0]
		s.queue = s.queue[1:]
		key := schedulerKey(trigger.Agent, trigger.TemplateName)
		if _, ok := s.running[key]; ok {
			continue
		}
		s.running[key] = struct{}{}
		return trigger, true
	}
	return OptimizationTrigger{}, false
}

// RunBackground periodically checks for and processes optimization
// triggers until ctx is cancelled, backing off on error.
func (s *Scheduler) RunBackground(ctx context.Context) {
	if !s.cfg.AutoOptimize {
		s.logger.Info("auto-optimization disabled")
		return
	}

	s.logger.Info("starting optimization scheduler")
	interval := time.Duration(s.cfg.CheckIntervalSeconds) * time.Second

	for {
		if err := s.tick(ctx); err != nil {
			s.logger.Error("scheduler error", "error", err)
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler cancelled")
				return
			case <-time.After(60 * time.Second):
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler cancelled")
			return
		case <-time.After(interval):
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	if _, err := s.CheckAndQueue(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	hasWork := len(s.queue) > 0
	s.mu.Unlock()
	if hasWork {
		s.ProcessQueue(ctx)
	}
	return nil
}

// QueueSize reports the number of pending triggers.
func (s *Scheduler) QueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunningCount reports the number of optimizations currently executing.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// QueueStatus returns a snapshot of the pending queue.
func (s *Scheduler) QueueStatus() []OptimizationTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OptimizationTrigger, len(s.queue))
	copy(out, s.queue)
	return out
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
