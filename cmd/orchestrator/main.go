// Package main is the orchestrator control-surface CLI (spec §6): a
// single binary that bootstraps the Store, Budget Engine, Evaluator,
// Optimizer/Scheduler/Deployer, and Workflow Engine for one project and
// dispatches to the requested control operation. Unlike the teacher's
// cmd/tarsy, which serves a long-lived gin HTTP/WebSocket API over a
// shared multi-project process, there is no REST/WebSocket surface in
// this spec's scope (SPEC_FULL.md §1) — every invocation is a single
// command against a single project, matching spec §5's "cooperative
// single-event-loop-per-project" model one process at a time.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/devctrl/orchestrator/pkg/agentproc"
	"github.com/devctrl/orchestrator/pkg/budget"
	"github.com/devctrl/orchestrator/pkg/config"
	"github.com/devctrl/orchestrator/pkg/database"
	"github.com/devctrl/orchestrator/pkg/evaluator"
	"github.com/devctrl/orchestrator/pkg/llm"
	"github.com/devctrl/orchestrator/pkg/optimizer"
	"github.com/devctrl/orchestrator/pkg/progress"
	"github.com/devctrl/orchestrator/pkg/store"
	"github.com/devctrl/orchestrator/pkg/version"
	"github.com/devctrl/orchestrator/pkg/workflow"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fail(format string, args ...interface{}) {
	log.Printf(format, args...)
	os.Exit(1)
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to the system configuration directory")
	projectsDir := flag.String("projects-dir", getEnv("PROJECTS_DIR", "./projects"), "root directory holding one subdirectory per project")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fail("usage: orchestrator [-config-dir DIR] [-projects-dir DIR] <command> [args...]")
	}
	cmd, rest := args[0], args[1:]

	if cmd == "version" {
		fmt.Println(version.Full())
		return
	}

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
	}

	ctx := context.Background()
	logger := slog.Default()

	sysCfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		fail("failed to initialize configuration: %v", err)
	}

	// list-projects/init-project only touch the filesystem under
	// projectsDir, mirroring ProjectManager.list_projects/create_project
	// operating without a database connection in the original system.
	switch cmd {
	case "list-projects":
		runListProjects(*projectsDir)
		return
	case "init-project":
		if len(rest) != 1 {
			fail("usage: orchestrator init-project NAME")
		}
		runInitProject(*projectsDir, rest[0], sysCfg)
		return
	}

	if len(rest) < 1 {
		fail("usage: orchestrator %s PROJECT [args...]", cmd)
	}
	project := rest[0]
	rest = rest[1:]
	projectDir := filepath.Join(*projectsDir, project)

	projCfg, err := config.LoadProjectConfig(projectDir)
	if err != nil {
		fail("failed to load project config for %q: %v", project, err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		fail("failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		fail("failed to connect to database: %v", err)
	}
	defer dbClient.Close()

	engine, budgetEngine, err := wireEngine(ctx, sysCfg, projCfg, dbClient, *projectsDir, logger)
	if err != nil {
		fail("failed to initialize orchestrator for %q: %v", project, err)
	}

	switch cmd {
	case "status":
		runStatus(ctx, dbClient, project)
	case "start":
		runStart(ctx, engine, project, rest)
	case "resume":
		runResume(ctx, engine, project, rest)
	case "pause":
		runPause(ctx, dbClient, project)
	case "rollback-to-phase":
		runRollbackToPhase(ctx, dbClient, project, rest)
	case "reset":
		runReset(ctx, dbClient, project)
	case "create-checkpoint":
		runCreateCheckpoint(ctx, engine, project, rest)
	case "list-checkpoints":
		runListCheckpoints(ctx, engine, project)
	case "rollback-to-checkpoint":
		runRollbackToCheckpoint(ctx, engine, project, rest)
	case "set-project-budget":
		runSetProjectBudget(budgetEngine, rest)
	case "set-task-budget":
		runSetTaskBudget(budgetEngine, rest)
	case "budget-status":
		runBudgetStatus(ctx, budgetEngine)
	case "respond-to-escalation":
		runRespondToEscalation(ctx, engine, project, rest)
	default:
		fail("unknown command %q", cmd)
	}
}

// wireEngine constructs the full per-project dependency graph: one Store
// (via the shared Registry, so ent's connection pool is reused across
// commands the way spec §5's "shared-resource policy" requires), one
// dialed LLM client shared by the evaluator's judge and the optimizer's
// rewriter, a second storage-disabled Evaluator feeding the optimizer's
// quality judge (see optimizer.NewEvaluatorQualityJudge's doc comment),
// the OPRO/Bootstrap prompt rewriters, the Scheduler and Deployer, the
// agentproc CLI invoker, and finally the Workflow Engine itself.
func wireEngine(ctx context.Context, sysCfg *config.Config, projCfg *config.ProjectConfig, dbClient *database.Client, projectsDir string, logger *slog.Logger) (*workflow.Engine, *budget.Engine, error) {
	registry := store.NewRegistry(dbClient.Client)
	projectStore := registry.Get(projCfg.ProjectName)

	budgetEngine := budget.New(projectStore, sysCfg.BudgetConfig(), logger)

	llmClient, err := llm.Dial(llm.ConfigFromEnv())
	if err != nil {
		return nil, nil, fmt.Errorf("dial llm service: %w", err)
	}

	evalCfg, err := projCfg.EvaluatorConfig(sysCfg)
	if err != nil {
		return nil, nil, err
	}
	geval := evaluator.NewGEval(llmClient, evalCfg.EvaluatorModel, sysCfg.WorkflowConfig().EvaluatorTimeout, logger)
	mainEvaluator := evaluator.New(geval, projectStore, evalCfg, logger)

	// A second Evaluator with storage disabled, dedicated to the
	// optimizer's prompt-quality judging so validation probes during
	// optimization never pollute production evaluation history.
	judgeEvalCfg := evalCfg
	judgeEvalCfg.EnableStorage = false
	judgeEvaluator := evaluator.New(geval, projectStore, judgeEvalCfg, logger)
	qualityJudge := optimizer.NewEvaluatorQualityJudge(judgeEvaluator)

	rewriter := optimizer.NewLLMRewriter(llmClient)
	wfCfg := sysCfg.WorkflowConfig()
	opro := optimizer.NewOPRO(rewriter, evalCfg.EvaluatorModel, wfCfg.OptimizerTimeout, 0, 0)
	bootstrap := optimizer.NewBootstrap(rewriter, evalCfg.EvaluatorModel, wfCfg.OptimizerTimeout, 0)

	schedCfg, err := projCfg.SchedulerConfig(sysCfg)
	if err != nil {
		return nil, nil, err
	}
	opt := optimizer.New(projectStore, opro, bootstrap, qualityJudge, schedCfg.MinSamples, evalCfg.Thresholds.ImprovementThreshold, logger)
	stats := optimizer.NewStoreStats(projectStore)
	scheduler := optimizer.NewScheduler(stats, opt, schedCfg, logger)

	deployCfg, err := projCfg.DeploymentConfig(sysCfg)
	if err != nil {
		return nil, nil, err
	}
	deployer := optimizer.NewDeployer(projectStore, deployCfg, logger)

	invoker := agentproc.New(func(p string) string { return filepath.Join(projectsDir, p) }, logger)

	publisher := progress.NewPublisher(dbClient.DB(), projCfg.ProjectName, logger)

	deps := workflow.Deps{
		Stores:    registry,
		Invoker:   invoker,
		Budgets:   func(string) *budget.Engine { return budgetEngine },
		Evaluator: mainEvaluator,
		Optimizer: opt,
		Scheduler: scheduler,
		Deployer:  deployer,
		Scanners:  workflow.DefaultScannerSet(),
		Progress:  publisher.AsCallback(),
		Logger:    logger,
	}
	wfCfg.AutoImprovement = projCfg.WorkflowAutoImprovement()

	return workflow.New(deps, wfCfg), budgetEngine, nil
}

func runListProjects(projectsDir string) {
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("[]")
			return
		}
		fail("failed to list %s: %v", projectsDir, err)
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(projectsDir, e.Name(), config.ProjectConfigFilename)); err == nil {
			names = append(names, e.Name())
		}
	}
	printJSON(names)
}

func runInitProject(projectsDir, name string, sysCfg *config.Config) {
	dir := filepath.Join(projectsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fail("failed to create project directory %s: %v", dir, err)
	}
	pc := config.NewProjectConfig(name, sysCfg)
	if err := pc.Save(dir); err != nil {
		fail("failed to write %s: %v", config.ProjectConfigFilename, err)
	}
	printJSON(pc)
}

func runStatus(ctx context.Context, dbClient *database.Client, project string) {
	s := store.NewRegistry(dbClient.Client).Get(project)
	state, err := s.GetOrCreateWorkflowState(ctx)
	if err != nil {
		fail("failed to load workflow state for %q: %v", project, err)
	}
	printJSON(state)
}

func runStart(ctx context.Context, engine *workflow.Engine, project string, rest []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	// start_phase/end_phase/skip_validation/autonomous are accepted for
	// contract compatibility with spec §6's start() signature; the current
	// Engine always runs from WorkflowState.CurrentPhase through completion
	// or the next interrupt, and Run reads none of these flags.
	fs.Int("start-phase", 1, "first phase to run (1..5)")
	fs.Int("end-phase", 5, "last phase to run (1..5)")
	fs.Bool("skip-validation", false, "skip the validation phase")
	fs.Bool("autonomous", false, "auto-resolve escalations instead of suspending")
	_ = fs.Parse(rest)

	outcome, err := engine.Run(ctx, project)
	reportOutcome(outcome, err)
}

func runResume(ctx context.Context, engine *workflow.Engine, project string, rest []string) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	autonomous := fs.Bool("autonomous", false, "auto-resolve the pending interrupt with the default action")
	humanResponse := fs.String("human-response", "", "the human's answer to the pending interrupt")
	_ = fs.Parse(rest)

	input := workflow.ResumeInput{Autonomous: *autonomous}
	if *humanResponse != "" {
		input.HumanResponse = humanResponse
	}
	outcome, err := engine.Resume(ctx, project, input)
	reportOutcome(outcome, err)
}

// runPause reports the project's current phase/status without advancing
// it. Because every CLI invocation is a single synchronous process (spec
// §5's single-event-loop-per-project applies within one invocation, not
// across a long-lived server), there is no separately running Engine
// instance elsewhere to interrupt; "pausing" only has meaning between
// invocations, which is exactly what not calling start/resume again does.
func runPause(ctx context.Context, dbClient *database.Client, project string) {
	runStatus(ctx, dbClient, project)
}

func runRollbackToPhase(ctx context.Context, dbClient *database.Client, project string, rest []string) {
	if len(rest) != 1 {
		fail("usage: orchestrator rollback-to-phase PROJECT PHASE")
	}
	phase, err := parsePhase(rest[0])
	if err != nil {
		fail("%v", err)
	}
	s := store.NewRegistry(dbClient.Client).Get(project)
	state, err := s.GetOrCreateWorkflowState(ctx)
	if err != nil {
		fail("failed to load workflow state for %q: %v", project, err)
	}
	updated, err := s.UpdateWorkflowState(ctx, state.ID, store.WorkflowStateUpdate{CurrentPhase: &phase})
	if err != nil {
		fail("failed to roll back %q to phase %d: %v", project, phase, err)
	}
	printJSON(updated)
}

func runReset(ctx context.Context, dbClient *database.Client, project string) {
	s := store.NewRegistry(dbClient.Client).Get(project)
	state, err := s.GetOrCreateWorkflowState(ctx)
	if err != nil {
		fail("failed to load workflow state for %q: %v", project, err)
	}
	phaseOne := 1
	iterZero := 0
	updated, err := s.UpdateWorkflowState(ctx, state.ID, store.WorkflowStateUpdate{
		CurrentPhase:   &phaseOne,
		PhaseStatus:    map[string]string{},
		IterationCount: &iterZero,
	})
	if err != nil {
		fail("failed to reset %q: %v", project, err)
	}
	printJSON(updated)
}

func runCreateCheckpoint(ctx context.Context, engine *workflow.Engine, project string, rest []string) {
	fs := flag.NewFlagSet("create-checkpoint", flag.ExitOnError)
	notes := fs.String("notes", "", "optional checkpoint notes")
	if len(rest) < 1 {
		fail("usage: orchestrator create-checkpoint PROJECT NAME [-notes TEXT]")
	}
	name := rest[0]
	_ = fs.Parse(rest[1:])

	cp, err := engine.CreateCheckpoint(ctx, project, name, *notes, nil)
	if err != nil {
		fail("failed to create checkpoint: %v", err)
	}
	printJSON(cp)
}

func runListCheckpoints(ctx context.Context, engine *workflow.Engine, project string) {
	cps, err := engine.ListCheckpoints(ctx, project)
	if err != nil {
		fail("failed to list checkpoints for %q: %v", project, err)
	}
	printJSON(cps)
}

func runRollbackToCheckpoint(ctx context.Context, engine *workflow.Engine, project string, rest []string) {
	if len(rest) != 1 {
		fail("usage: orchestrator rollback-to-checkpoint PROJECT CHECKPOINT_ID")
	}
	state, err := engine.RollbackToCheckpoint(ctx, project, rest[0], true)
	if err != nil {
		fail("failed to roll back %q to checkpoint %s: %v", project, rest[0], err)
	}
	printJSON(state)
}

func runSetProjectBudget(b *budget.Engine, rest []string) {
	if len(rest) != 1 {
		fail("usage: orchestrator set-project-budget PROJECT AMOUNT_USD")
	}
	amount, err := parseFloat(rest[0])
	if err != nil {
		fail("%v", err)
	}
	b.SetProjectBudget(&amount)
	printJSON(b.Config())
}

func runSetTaskBudget(b *budget.Engine, rest []string) {
	if len(rest) != 2 {
		fail("usage: orchestrator set-task-budget PROJECT TASK_ID AMOUNT_USD")
	}
	amount, err := parseFloat(rest[1])
	if err != nil {
		fail("%v", err)
	}
	b.SetTaskBudget(rest[0], &amount)
	printJSON(map[string]interface{}{"task_id": rest[0], "max_usd": amount})
}

func runBudgetStatus(ctx context.Context, b *budget.Engine) {
	status, err := b.GetBudgetStatus(ctx)
	if err != nil {
		fail("failed to read budget status: %v", err)
	}
	printJSON(status)
}

// escalationResponse is spec §6's respond_to_escalation payload. The
// Engine's Resume only accepts a single opaque HumanResponse string, so
// this is marshaled into that field rather than widening ResumeInput;
// the node that raised the interrupt is responsible for interpreting it.
type escalationResponse struct {
	QuestionID        string `json:"question_id"`
	Answer            string `json:"answer"`
	AdditionalContext string `json:"additional_context,omitempty"`
}

func runRespondToEscalation(ctx context.Context, engine *workflow.Engine, project string, rest []string) {
	fs := flag.NewFlagSet("respond-to-escalation", flag.ExitOnError)
	questionID := fs.String("question-id", "", "the pending interrupt's identifier")
	answer := fs.String("answer", "", "the human's answer")
	additionalContext := fs.String("additional-context", "", "optional extra context")
	_ = fs.Parse(rest)

	body, err := json.Marshal(escalationResponse{QuestionID: *questionID, Answer: *answer, AdditionalContext: *additionalContext})
	if err != nil {
		fail("failed to encode escalation response: %v", err)
	}
	response := string(body)
	outcome, err := engine.Resume(ctx, project, workflow.ResumeInput{HumanResponse: &response})
	reportOutcome(outcome, err)
}

func reportOutcome(outcome *workflow.RunOutcome, err error) {
	if outcome != nil {
		printJSON(outcome)
	}
	if err != nil {
		fail("run failed: %v", err)
	}
	if outcome != nil && outcome.Status == "failed" {
		os.Exit(1)
	}
}

func parsePhase(s string) (int, error) {
	phase, err := parseInt(s)
	if err != nil {
		return 0, err
	}
	if phase < 1 || phase > 5 {
		return 0, fmt.Errorf("phase must be between 1 and 5, got %d", phase)
	}
	return phase, nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", s, err)
	}
	return n, nil
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return f, nil
}

func printJSON(v interface{}) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("failed to encode output: %v", err)
	}
	fmt.Println(string(body))
}
