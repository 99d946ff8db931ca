package store

import (
	"context"
	"time"

	"github.com/devctrl/orchestrator/ent"
	"github.com/devctrl/orchestrator/ent/evaluation"
	"github.com/devctrl/orchestrator/ent/predicate"
)

// Evaluation is the store-layer view of an Evaluation row.
type Evaluation struct {
	ID             string
	Project        string
	Agent          string
	Node           string
	TaskID         *string
	SessionID      *string
	Scores         map[string]float64
	OverallScore   float64
	Feedback       string
	Suggestions    []string
	PromptHash     string
	PromptVersion  *string
	EvaluatorModel string
	Timestamp      time.Time
	Metadata       map[string]interface{}
}

func fromEntEvaluation(e *ent.Evaluation) *Evaluation {
	return &Evaluation{
		ID:             e.ID,
		Project:        e.Project,
		Agent:          string(e.Agent),
		Node:           e.Node,
		TaskID:         e.TaskID,
		SessionID:      e.SessionID,
		Scores:         e.Scores,
		OverallScore:   e.OverallScore,
		Feedback:       e.Feedback,
		Suggestions:    e.Suggestions,
		PromptHash:     e.PromptHash,
		PromptVersion:  e.PromptVersion,
		EvaluatorModel: e.EvaluatorModel,
		Timestamp:      e.Timestamp,
		Metadata:       e.Metadata,
	}
}

// CreateEvaluation persists a completed G-Eval scoring result.
func (s *Store) CreateEvaluation(ctx context.Context, e *Evaluation) (*Evaluation, error) {
	q := s.client.Evaluation.Create().
		SetID(e.ID).
		SetProject(s.project).
		SetAgent(evaluation.Agent(e.Agent)).
		SetNode(e.Node).
		SetNillableTaskID(e.TaskID).
		SetNillableSessionID(e.SessionID).
		SetScores(e.Scores).
		SetOverallScore(e.OverallScore).
		SetFeedback(e.Feedback).
		SetSuggestions(e.Suggestions).
		SetPromptHash(e.PromptHash).
		SetNillablePromptVersion(e.PromptVersion).
		SetEvaluatorModel(e.EvaluatorModel)
	if e.Metadata != nil {
		q = q.SetMetadata(e.Metadata)
	}
	created, err := q.Save(ctx)
	if err != nil {
		return nil, wrapErr("create evaluation", err)
	}
	return fromEntEvaluation(created), nil
}

// FindEvaluations returns evaluations for (agent, node) ordered oldest
// first, used by the Optimizer's sample-count gate and the Evaluator's
// get_evaluation_history/get_prompt_performance.
func (s *Store) FindEvaluations(ctx context.Context, agent, node string, limit int) ([]*Evaluation, error) {
	q := s.client.Evaluation.Query().
		Where(evaluation.Project(s.project), evaluation.Agent(evaluation.Agent(agent)), evaluation.Node(node)).
		Order(ent.Asc(evaluation.FieldTimestamp))
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, wrapErr("find evaluations", err)
	}
	out := make([]*Evaluation, len(rows))
	for i, r := range rows {
		out[i] = fromEntEvaluation(r)
	}
	return out, nil
}

// FindEvaluationsByPromptVersion returns every evaluation recorded
// against a given prompt version, used by the Deployer's shadow/canary
// sample counting.
func (s *Store) FindEvaluationsByPromptVersion(ctx context.Context, versionID string) ([]*Evaluation, error) {
	rows, err := s.client.Evaluation.Query().
		Where(evaluation.Project(s.project), evaluation.PromptVersion(versionID)).
		Order(ent.Asc(evaluation.FieldTimestamp)).
		All(ctx)
	if err != nil {
		return nil, wrapErr("find evaluations by prompt version", err)
	}
	out := make([]*Evaluation, len(rows))
	for i, r := range rows {
		out[i] = fromEntEvaluation(r)
	}
	return out, nil
}

// FindEvaluationsByPromptHash returns every evaluation recorded against a
// given prompt content hash, used by get_prompt_performance to compute
// mean/stddev once enough samples accumulate.
func (s *Store) FindEvaluationsByPromptHash(ctx context.Context, promptHash string) ([]*Evaluation, error) {
	rows, err := s.client.Evaluation.Query().
		Where(evaluation.Project(s.project), evaluation.PromptHash(promptHash)).
		Order(ent.Asc(evaluation.FieldTimestamp)).
		All(ctx)
	if err != nil {
		return nil, wrapErr("find evaluations by prompt hash", err)
	}
	out := make([]*Evaluation, len(rows))
	for i, r := range rows {
		out[i] = fromEntEvaluation(r)
	}
	return out, nil
}

// AgentEvalStats summarizes evaluation scores for one agent over a window.
type AgentEvalStats struct {
	Agent    string
	Total    int
	AvgScore float64
}

// NodeEvalStats summarizes evaluation scores for one (agent, node) pair,
// where node stands in for the Python original's template_name — this
// schema has no separate template_name column on Evaluation, so node (the
// same field EvaluateParams/EvaluateImplementation/EvaluateValidation
// already set to a template-identifying string) carries that grouping.
type NodeEvalStats struct {
	Node     string
	Total    int
	AvgScore float64
}

// EvaluationStatsByAgent aggregates evaluation counts/averages per agent
// since a cutoff time, used by the Scheduler's check_and_queue to find
// agents worth inspecting for per-template optimization triggers. Computed
// in Go rather than a SQL GROUP BY since the store has no existing
// aggregate-query convention to follow and the row volume this scans
// (evaluations in the trailing window) is small.
func (s *Store) EvaluationStatsByAgent(ctx context.Context, since time.Time) ([]AgentEvalStats, error) {
	rows, err := s.client.Evaluation.Query().
		Where(evaluation.Project(s.project), evaluation.TimestampGTE(since)).
		All(ctx)
	if err != nil {
		return nil, wrapErr("evaluation stats by agent", err)
	}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, r := range rows {
		a := string(r.Agent)
		sums[a] += r.OverallScore
		counts[a]++
	}
	out := make([]AgentEvalStats, 0, len(counts))
	for a, n := range counts {
		out = append(out, AgentEvalStats{Agent: a, Total: n, AvgScore: sums[a] / float64(n)})
	}
	return out, nil
}

// EvaluationStatsByNode aggregates evaluation counts/averages per node for
// one agent since a cutoff time.
func (s *Store) EvaluationStatsByNode(ctx context.Context, agent string, since time.Time) ([]NodeEvalStats, error) {
	rows, err := s.client.Evaluation.Query().
		Where(evaluation.Project(s.project), evaluation.Agent(evaluation.Agent(agent)), evaluation.TimestampGTE(since)).
		All(ctx)
	if err != nil {
		return nil, wrapErr("evaluation stats by node", err)
	}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, r := range rows {
		sums[r.Node] += r.OverallScore
		counts[r.Node]++
	}
	out := make([]NodeEvalStats, 0, len(counts))
	for n, c := range counts {
		out = append(out, NodeEvalStats{Node: n, Total: c, AvgScore: sums[n] / float64(c)})
	}
	return out, nil
}

// FindEvaluationsByTask returns evaluations recorded for a specific task,
// optionally narrowed to one agent, used by get_evaluation_history.
func (s *Store) FindEvaluationsByTask(ctx context.Context, taskID string, agent string, limit int) ([]*Evaluation, error) {
	predicates := []predicate.Evaluation{evaluation.Project(s.project), evaluation.TaskID(taskID)}
	if agent != "" {
		predicates = append(predicates, evaluation.Agent(evaluation.Agent(agent)))
	}
	q := s.client.Evaluation.Query().Where(predicates...).Order(ent.Desc(evaluation.FieldTimestamp))
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, wrapErr("find evaluations by task", err)
	}
	out := make([]*Evaluation, len(rows))
	for i, r := range rows {
		out[i] = fromEntEvaluation(r)
	}
	return out, nil
}
