package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devctrl/orchestrator/pkg/store"
)

// DeploymentResult is the outcome of one deployment-lifecycle transition.
type DeploymentResult struct {
	Success           bool
	VersionID         string
	FromStatus        string
	ToStatus          string
	Metrics           map[string]interface{}
	Error             string
	RollbackPerformed bool
}

// DeploymentConfig configures the safe-rollout thresholds.
type DeploymentConfig struct {
	ShadowTestCount    int
	CanaryPercentage   float64
	CanaryTestCount    int
	RollbackThreshold  float64
	MinimumScore       float64
	AutoPromote        bool
}

// DefaultDeploymentConfig mirrors the original DeploymentConfig defaults.
var DefaultDeploymentConfig = DeploymentConfig{
	ShadowTestCount:   10,
	CanaryPercentage:  0.1,
	CanaryTestCount:   10,
	RollbackThreshold: -0.5,
	MinimumScore:      5.0,
	AutoPromote:       true,
}

// Deployer controls the draft -> shadow -> canary -> production -> retired
// lifecycle of a PromptVersion, with automatic rollback on regression.
type Deployer struct {
	store  *store.Store
	cfg    DeploymentConfig
	logger *slog.Logger
}

// NewDeployer constructs a Deployer.
func NewDeployer(s *store.Store, cfg DeploymentConfig, logger *slog.Logger) *Deployer {
	if cfg == (DeploymentConfig{}) {
		cfg = DefaultDeploymentConfig
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{store: s, cfg: cfg, logger: logger}
}

// StartShadowTesting transitions a draft version into shadow testing.
func (d *Deployer) StartShadowTesting(ctx context.Context, versionID string) DeploymentResult {
	version, err := d.store.FindPromptVersion(ctx, versionID)
	if err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: "unknown", ToStatus: "shadow", Error: fmt.Sprintf("Version %s not found", versionID)}
	}
	if version.Status != "draft" {
		return DeploymentResult{VersionID: versionID, FromStatus: version.Status, ToStatus: "shadow", Error: fmt.Sprintf("Can only shadow test draft versions, got %s", version.Status)}
	}

	if _, err := d.store.SetPromptVersionStatus(ctx, versionID, "shadow", nil); err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: "draft", ToStatus: "shadow", Error: err.Error()}
	}

	d.logger.Info("started shadow testing", "version", versionID)
	return DeploymentResult{Success: true, VersionID: versionID, FromStatus: "draft", ToStatus: "shadow"}
}

// EvaluateShadowTest checks accumulated shadow-test evaluations and
// promotes to canary, rejects back to draft, or waits for more samples.
func (d *Deployer) EvaluateShadowTest(ctx context.Context, versionID string) DeploymentResult {
	version, err := d.store.FindPromptVersion(ctx, versionID)
	if err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: "unknown", ToStatus: "unknown", Error: fmt.Sprintf("Version %s not found", versionID)}
	}
	if version.Status != "shadow" {
		return DeploymentResult{VersionID: versionID, FromStatus: version.Status, ToStatus: "canary", Error: "Version not in shadow status"}
	}

	evaluations, err := d.store.FindEvaluationsByPromptVersion(ctx, versionID)
	if err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: "shadow", ToStatus: "shadow", Error: err.Error()}
	}

	if len(evaluations) < d.cfg.ShadowTestCount {
		return DeploymentResult{
			VersionID: versionID, FromStatus: "shadow", ToStatus: "shadow",
			Error:   fmt.Sprintf("Insufficient shadow tests: %d/%d", len(evaluations), d.cfg.ShadowTestCount),
			Metrics: map[string]interface{}{"evaluations": len(evaluations)},
		}
	}

	avg := avgEvalScore(evaluations)

	baselineScore := 7.0
	if prod, err := d.store.FindProductionVersion(ctx, version.Agent, version.TemplateName); err == nil {
		if v, ok := prod.Metrics["avg_score"].(float64); ok {
			baselineScore = v
		}
	}

	improvement := avg - baselineScore
	metrics := map[string]interface{}{
		"shadow_avg_score": avg,
		"baseline_score":   baselineScore,
		"improvement":      improvement,
		"shadow_count":     len(evaluations),
	}

	if avg < d.cfg.MinimumScore {
		d.store.SetPromptVersionStatus(ctx, versionID, "draft", nil)
		return DeploymentResult{VersionID: versionID, FromStatus: "shadow", ToStatus: "draft", Error: fmt.Sprintf("Shadow score %.2f below minimum %.2f", avg, d.cfg.MinimumScore), Metrics: metrics}
	}
	if improvement < d.cfg.RollbackThreshold {
		d.store.SetPromptVersionStatus(ctx, versionID, "draft", nil)
		return DeploymentResult{VersionID: versionID, FromStatus: "shadow", ToStatus: "draft", Error: fmt.Sprintf("Shadow regression: %.2f", improvement), Metrics: metrics}
	}

	if d.cfg.AutoPromote {
		if _, err := d.store.SetPromptVersionStatus(ctx, versionID, "canary", map[string]interface{}{
			"shadow_score": avg,
			"shadow_count": len(evaluations),
		}); err != nil {
			return DeploymentResult{VersionID: versionID, FromStatus: "shadow", ToStatus: "canary", Error: err.Error(), Metrics: metrics}
		}
		d.logger.Info("promoted to canary", "version", versionID, "shadow_score", avg)
		return DeploymentResult{Success: true, VersionID: versionID, FromStatus: "shadow", ToStatus: "canary", Metrics: metrics}
	}

	return DeploymentResult{Success: true, VersionID: versionID, FromStatus: "shadow", ToStatus: "shadow", Metrics: metrics}
}

// EvaluateCanary checks accumulated canary evaluations and promotes to
// production, rolls back, or waits for more samples.
func (d *Deployer) EvaluateCanary(ctx context.Context, versionID string) DeploymentResult {
	version, err := d.store.FindPromptVersion(ctx, versionID)
	if err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: "unknown", ToStatus: "unknown", Error: fmt.Sprintf("Version %s not found", versionID)}
	}
	if version.Status != "canary" {
		return DeploymentResult{VersionID: versionID, FromStatus: version.Status, ToStatus: "production", Error: "Version not in canary status"}
	}

	evaluations, err := d.store.FindEvaluationsByPromptVersion(ctx, versionID)
	if err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: "canary", ToStatus: "canary", Error: err.Error()}
	}
	canaryEvals := evaluations
	if len(canaryEvals) > d.cfg.CanaryTestCount {
		canaryEvals = canaryEvals[:d.cfg.CanaryTestCount]
	}

	if len(canaryEvals) < d.cfg.CanaryTestCount {
		return DeploymentResult{
			VersionID: versionID, FromStatus: "canary", ToStatus: "canary",
			Error:   fmt.Sprintf("Insufficient canary tests: %d/%d", len(canaryEvals), d.cfg.CanaryTestCount),
			Metrics: map[string]interface{}{"evaluations": len(canaryEvals)},
		}
	}

	avg := avgEvalScore(canaryEvals)

	shadowScore := 7.0
	if v, ok := version.Metrics["shadow_score"].(float64); ok {
		shadowScore = v
	}
	canaryChange := avg - shadowScore

	metrics := map[string]interface{}{
		"canary_avg_score": avg,
		"shadow_score":     shadowScore,
		"canary_change":    canaryChange,
		"canary_count":     len(canaryEvals),
	}

	if avg < d.cfg.MinimumScore {
		d.store.SetPromptVersionStatus(ctx, versionID, "draft", nil)
		return DeploymentResult{VersionID: versionID, FromStatus: "canary", ToStatus: "draft", Error: fmt.Sprintf("Canary score %.2f below minimum", avg), Metrics: metrics, RollbackPerformed: true}
	}
	if canaryChange < d.cfg.RollbackThreshold {
		d.store.SetPromptVersionStatus(ctx, versionID, "draft", nil)
		return DeploymentResult{VersionID: versionID, FromStatus: "canary", ToStatus: "draft", Error: fmt.Sprintf("Canary regression: %.2f", canaryChange), Metrics: metrics, RollbackPerformed: true}
	}

	if d.cfg.AutoPromote {
		if _, err := d.store.PromoteToProduction(ctx, version.Agent, version.TemplateName, versionID, map[string]interface{}{
			"canary_score": avg,
			"canary_count": len(canaryEvals),
			"promoted_at":  time.Now().Format(time.RFC3339),
		}); err != nil {
			return DeploymentResult{VersionID: versionID, FromStatus: "canary", ToStatus: "production", Error: err.Error(), Metrics: metrics}
		}
		d.logger.Info("promoted to production", "version", versionID, "canary_score", avg)
		return DeploymentResult{Success: true, VersionID: versionID, FromStatus: "canary", ToStatus: "production", Metrics: metrics}
	}

	return DeploymentResult{Success: true, VersionID: versionID, FromStatus: "canary", ToStatus: "canary", Metrics: metrics}
}

// Rollback forces a non-production version back to draft.
func (d *Deployer) Rollback(ctx context.Context, versionID, reason string) DeploymentResult {
	version, err := d.store.FindPromptVersion(ctx, versionID)
	if err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: "unknown", ToStatus: "draft", Error: fmt.Sprintf("Version %s not found", versionID)}
	}

	if version.Status == "production" {
		return DeploymentResult{VersionID: versionID, FromStatus: version.Status, ToStatus: version.Status, Error: "Cannot rollback production version - promote another version instead"}
	}

	if _, err := d.store.SetPromptVersionStatus(ctx, versionID, "draft", map[string]interface{}{
		"rollback_reason": reason,
		"rollback_at":     time.Now().Format(time.RFC3339),
	}); err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: version.Status, ToStatus: "draft", Error: err.Error()}
	}

	d.logger.Warn("rolled back to draft", "version", versionID, "reason", reason)
	return DeploymentResult{Success: true, VersionID: versionID, FromStatus: version.Status, ToStatus: "draft", RollbackPerformed: true}
}

// ForcePromote promotes a version to production bypassing all tests.
func (d *Deployer) ForcePromote(ctx context.Context, versionID string) DeploymentResult {
	version, err := d.store.FindPromptVersion(ctx, versionID)
	if err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: "unknown", ToStatus: "production", Error: fmt.Sprintf("Version %s not found", versionID)}
	}

	if _, err := d.store.PromoteToProduction(ctx, version.Agent, version.TemplateName, versionID, map[string]interface{}{
		"force_promoted":    true,
		"force_promoted_at": time.Now().Format(time.RFC3339),
	}); err != nil {
		return DeploymentResult{VersionID: versionID, FromStatus: version.Status, ToStatus: "production", Error: err.Error()}
	}

	d.logger.Warn("force promoted to production", "version", versionID, "was", version.Status)
	return DeploymentResult{Success: true, VersionID: versionID, FromStatus: version.Status, ToStatus: "production", Metrics: map[string]interface{}{"force_promoted": true}}
}

// DeploymentStatus summarizes every version's lifecycle state for a
// template.
type DeploymentStatus struct {
	Agent            string
	Template         string
	TotalVersions    int
	StatusCounts     map[string]int
	Production       *string
	Canary           *string
	Shadow           *string
	ProductionMetrics map[string]interface{}
}

// GetDeploymentStatus reports the current deployment status across every
// version of (agent, templateName).
func (d *Deployer) GetDeploymentStatus(ctx context.Context, agent, templateName string) (DeploymentStatus, error) {
	statuses := []string{"draft", "shadow", "canary", "production", "retired"}
	counts := map[string]int{}
	status := DeploymentStatus{Agent: agent, Template: templateName, StatusCounts: counts}

	for _, s := range statuses {
		versions, err := d.store.ListVersionsByStatus(ctx, agent, templateName, s)
		if err != nil {
			return DeploymentStatus{}, err
		}
		counts[s] = len(versions)
		status.TotalVersions += len(versions)

		for _, v := range versions {
			id := v.ID
			switch s {
			case "production":
				status.Production = &id
				status.ProductionMetrics = v.Metrics
			case "canary":
				status.Canary = &id
			case "shadow":
				status.Shadow = &id
			}
		}
	}

	return status, nil
}

func avgEvalScore(evaluations []*store.Evaluation) float64 {
	if len(evaluations) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range evaluations {
		sum += e.OverallScore
	}
	return sum / float64(len(evaluations))
}
