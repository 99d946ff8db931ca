package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, merges, and returns ready-to-use system configuration.
// This is the primary entry point for configuration loading, mirroring the
// teacher's pkg/config.Initialize: read orchestrator.yaml from configDir,
// expand environment variables, merge it onto the built-in defaults (user
// values override, unset fields keep the default), and return a Config.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log.InfoContext(ctx, "configuration initialized",
		"project_budget_usd", cfg.Budget.ProjectBudgetUSD,
		"evaluator_model", cfg.Evaluator.EvaluatorModel,
		"scheduler_auto_optimize", cfg.Scheduler.AutoOptimize)

	return cfg, nil
}

// orchestratorYAMLFilename is the system-level YAML config file, the
// orchestrator's equivalent of the teacher's tarsy.yaml.
const orchestratorYAMLFilename = "orchestrator.yaml"

func load(configDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configDir = configDir

	path := filepath.Join(configDir, orchestratorYAMLFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No system config file is not an error: every field has a
			// built-in default.
			return cfg, nil
		}
		return nil, NewLoadError(orchestratorYAMLFilename, err)
	}

	data = ExpandEnv(data)

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, NewLoadError(orchestratorYAMLFilename, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := mergo.Merge(cfg, &override, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge system configuration: %w", err)
	}

	return cfg, nil
}
