package optimizer

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/pkg/store"
)

// StoreStats adapts pkg/store's evaluation-statistics queries to the
// Scheduler's statsSource contract.
type StoreStats struct {
	store *store.Store
}

// NewStoreStats wraps a Store for scheduler statistics lookups.
func NewStoreStats(s *store.Store) *StoreStats {
	return &StoreStats{store: s}
}

// EvaluationStatsByAgent implements statsSource.
func (s *StoreStats) EvaluationStatsByAgent(ctx context.Context, since time.Time) ([]AgentStat, error) {
	rows, err := s.store.EvaluationStatsByAgent(ctx, since)
	if err != nil {
		return nil, err
	}
	out := make([]AgentStat, len(rows))
	for i, r := range rows {
		out[i] = AgentStat{Agent: r.Agent, Total: r.Total, AvgScore: r.AvgScore}
	}
	return out, nil
}

// EvaluationStatsByTemplate implements statsSource. "Template" here maps
// onto the evaluation Node field — see store.NodeEvalStats.
func (s *StoreStats) EvaluationStatsByTemplate(ctx context.Context, agent string, since time.Time) ([]TemplateStat, error) {
	rows, err := s.store.EvaluationStatsByNode(ctx, agent, since)
	if err != nil {
		return nil, err
	}
	out := make([]TemplateStat, len(rows))
	for i, r := range rows {
		out[i] = TemplateStat{TemplateName: r.Node, Total: r.Total, AvgScore: r.AvgScore}
	}
	return out, nil
}
