package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ofujimoto/foreman/internal/coordinator"
	"github.com/ofujimoto/foreman/internal/env"
	"github.com/ofujimoto/foreman/internal/events"
	"github.com/ofujimoto/foreman/internal/journal"
	"github.com/ofujimoto/foreman/internal/jsonfile"
	"github.com/ofujimoto/foreman/internal/lock"
	"github.com/ofujimoto/foreman/internal/model"
	"github.com/ofujimoto/foreman/internal/setup"
	"github.com/ofujimoto/foreman/internal/store"
	"github.com/ofujimoto/foreman/internal/verify"
	"github.com/ofujimoto/foreman/internal/workflow"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "run":
		runRun(os.Args[2:])
	case "features":
		runFeatures(os.Args[2:])
	case "feature":
		runFeature(os.Args[2:])
	case "backlog":
		runBacklog(os.Args[2:])
	case "tests":
		runTests(os.Args[2:])
	case "state":
		runState(os.Args[2:])
	case "sessions":
		runSessions(os.Args[2:])
	case "prompt":
		runPrompt(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "version":
		fmt.Printf("foreman %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// app bundles the stores for one invocation against a project directory.
type app struct {
	dir      string // the .foreman directory
	cfg      model.Config
	logger   *log.Logger
	lockMap  *lock.MutexMap
	features *store.FeatureStore
	backlog  *store.BacklogStore
	ledger   *store.TestLedger
	sessions *store.SessionStore
	state    *store.StateStore
	journal  *journal.Store
	coord    *coordinator.Coordinator
}

func mustApp() *app {
	dir := findForemanDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "error: .foreman/ directory not found. Run 'foreman init <dir>' first.")
		os.Exit(1)
	}

	cfg, err := loadConfig(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyDefaults()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	lockMap := lock.NewMutexMap()
	a := &app{
		dir:      dir,
		cfg:      cfg,
		logger:   logger,
		lockMap:  lockMap,
		features: store.NewFeatureStore(filepath.Join(dir, "features.json"), lockMap),
		backlog:  store.NewBacklogStore(filepath.Join(dir, "backlog.json"), lockMap),
		ledger:   store.NewTestLedger(filepath.Join(dir, "tests.json"), lockMap, cfg.Evidence.FailureMarkers),
		sessions: store.NewSessionStore(filepath.Join(dir, "sessions")),
		state:    store.NewStateStore(filepath.Join(dir, "state.json"), lockMap, logger),
		journal: journal.NewStore(
			filepath.Join(dir, "journal", "entries.json"),
			filepath.Join(dir, "journal", "progress.md"),
			lockMap),
	}
	a.coord = coordinator.New(cfg.Project.Name, a.features, a.backlog, a.ledger, a.sessions, logger)
	return a
}

func findForemanDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, setup.Dir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadConfig(foremanDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(foremanDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	return cfg, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("marshal json: %v", err)
	}
	fmt.Println(string(data))
}

func runInit(args []string) {
	fs := pflag.NewFlagSet("init", pflag.ExitOnError)
	name := fs.String("name", "", "project name (default: directory basename)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	if err := setup.Run(dir, *name); err != nil {
		fatal("init: %v", err)
	}
	absDir, _ := filepath.Abs(dir)
	fmt.Printf("Initialized %s/ in %s\n", setup.Dir, absDir)
}

func runStatus(args []string) {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	jsonOut := fs.Bool("json", false, "machine-readable output")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	a := mustApp()

	completed, total, err := a.features.Counts()
	if err != nil {
		fatal("features: %v", err)
	}
	backlogItems, err := a.backlog.Load()
	if err != nil {
		fatal("backlog: %v", err)
	}
	openBacklog := 0
	for i := range backlogItems {
		if !backlogItems[i].Completed {
			openBacklog++
		}
	}
	ledger, err := a.ledger.Load()
	if err != nil {
		fatal("tests: %v", err)
	}
	stats, err := a.sessions.Statistics()
	if err != nil {
		fatal("sessions: %v", err)
	}
	phase, err := a.coord.Phase()
	if err != nil {
		fatal("derive phase: %v", err)
	}
	st := a.state.Read()

	if *jsonOut {
		printJSON(map[string]any{
			"project":            a.cfg.Project.Name,
			"phase":              phase,
			"desired_state":      st.DesiredState,
			"current_state":      st.CurrentState,
			"features_total":     total,
			"features_completed": completed,
			"backlog_open":       openBacklog,
			"tests_total":        len(ledger.Cases),
			"tests_passed":       ledger.Recount(),
			"sessions":           stats,
		})
		return
	}

	fmt.Printf("Project:  %s\n", a.cfg.Project.Name)
	fmt.Printf("Phase:    %s\n", phase)
	fmt.Printf("State:    desired=%s current=%s (set by %s)\n", st.DesiredState, st.CurrentState, st.SetBy)
	fmt.Printf("Features: %d/%d complete\n", completed, total)
	fmt.Printf("Backlog:  %d open\n", openBacklog)
	fmt.Printf("Tests:    %d/%d verified\n", ledger.Recount(), len(ledger.Cases))
	fmt.Printf("Sessions: %d total, pass rate %.0f%%\n", stats.Total, stats.PassRate*100)
}

func runRun(args []string) {
	fs := pflag.NewFlagSet("run", pflag.ExitOnError)
	once := fs.Bool("once", false, "run a single workflow cycle then pause")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	a := mustApp()

	sessionLock := lock.NewSessionLock(filepath.Join(a.dir, "locks", "session.lock"))
	if err := sessionLock.TryLock(); err != nil {
		fatal("another foreman run holds the session lock: %v", err)
	}
	defer sessionLock.Unlock()

	audit, err := events.NewAuditLogger(filepath.Join(a.dir, "logs", "audit.jsonl"), events.DefaultMaxLogSize)
	if err != nil {
		fatal("open audit log: %v", err)
	}
	defer audit.Close()

	bus := events.NewBus(100)
	defer bus.Close()
	for _, et := range []events.EventType{
		events.EventSessionStarted,
		events.EventStepCompleted,
		events.EventVerificationFailed,
		events.EventFeatureCompleted,
		events.EventSessionEnded,
	} {
		bus.Subscribe(et, func(e events.Event) {
			if err := audit.Log(string(e.Type), e.Data); err != nil {
				a.logger.Printf("audit_write_failed err=%v", err)
			}
		})
	}

	// Corrupt stores are quarantined and recovered from backup before any
	// cycle runs; a store that cannot be recovered stops the invocation.
	recoverStore(a, "features.json", func() error { _, err := a.features.Load(); return err })
	recoverStore(a, "backlog.json", func() error { _, err := a.backlog.Load(); return err })
	recoverStore(a, "tests.json", func() error { _, err := a.ledger.Load(); return err })

	if *once {
		if err := a.state.RequestRunOnce(model.SetterHuman, "foreman run --once"); err != nil {
			fatal("request run_once: %v", err)
		}
	}

	projectRoot := filepath.Dir(a.dir)
	envMgr := env.NewManager(a.cfg.Environment, projectRoot, a.logger)
	controller := workflow.NewController(workflow.Deps{
		Config:   a.cfg,
		Features: a.features,
		Backlog:  a.backlog,
		Sessions: a.sessions,
		State:    a.state,
		Journal:  a.journal,
		Coord:    a.coord,
		Env:      envMgr,
		Verifier: verify.NewRunner(a.cfg.Checks, projectRoot, envMgr, a.logger),
		Bus:      bus,
		Logger:   a.logger,
	})

	ctx := context.Background()
	for {
		st := a.state.Read()
		switch st.DesiredState {
		case model.RunPause:
			fmt.Println("desired_state is pause; nothing to run")
			return
		case model.RunTerminated:
			fmt.Println("desired_state is terminated; refusing to run")
			return
		case model.RunOnce, model.RunCleanup:
			res := runCycle(ctx, a, controller)
			if err := a.state.Pause(model.SetterSystem, "single cycle finished"); err != nil {
				fatal("pause after cycle: %v", err)
			}
			printJSON(res)
			return
		case model.RunContinuous:
			res := runCycle(ctx, a, controller)
			printJSON(res)
			if res.SessionID == "" && res.Success {
				if err := a.state.Pause(model.SetterSystem, "no incomplete work"); err != nil {
					fatal("pause: %v", err)
				}
				return
			}
			if !res.Success {
				if err := a.state.Pause(model.SetterSystem, "cycle failed: "+res.Detail); err != nil {
					fatal("pause: %v", err)
				}
				return
			}
		}
	}
}

// recoverStore quarantines a corrupt store file and restores the last
// known-good backup. Anything other than corruption, or a failed
// recovery, is fatal; stores are never silently reinitialized.
func recoverStore(a *app, name string, load func() error) {
	err := load()
	if err == nil {
		return
	}
	if !errors.Is(err, store.ErrCorruptData) {
		fatal("%s: %v", name, err)
	}
	path := filepath.Join(a.dir, name)
	a.logger.Printf("store_corrupt file=%s", name)
	if qerr := jsonfile.Quarantine(a.dir, path); qerr != nil {
		fatal("quarantine %s: %v", name, qerr)
	}
	if rerr := jsonfile.RestoreFromBackup(path); rerr != nil {
		fatal("%s is corrupt and has no usable backup: %v", name, rerr)
	}
	if err := load(); err != nil {
		fatal("%s still unreadable after backup restore: %v", name, err)
	}
	a.logger.Printf("store_restored file=%s source=backup", name)
}

func runCycle(ctx context.Context, a *app, controller *workflow.Controller) workflow.Result {
	res, err := controller.Run(ctx)
	if err != nil {
		fatal("workflow: %v", err)
	}
	return res
}

func runFeatures(args []string) {
	if len(args) < 1 {
		fatal("usage: foreman features <list|next>")
	}
	a := mustApp()
	switch args[0] {
	case "list":
		fl, err := a.features.Load()
		if err != nil {
			fatal("load features: %v", err)
		}
		printJSON(fl)
	case "next":
		feat, err := a.features.NextIncomplete()
		if err != nil {
			fatal("next feature: %v", err)
		}
		if feat == nil {
			fmt.Println("all features complete")
			return
		}
		printJSON(feat)
	default:
		fatal("unknown features subcommand: %s\nusage: foreman features <list|next>", args[0])
	}
}

func runFeature(args []string) {
	if len(args) < 1 {
		fatal("usage: foreman feature <complete|fail> <id> [options]")
	}
	switch args[0] {
	case "complete":
		runFeatureComplete(args[1:])
	case "fail":
		runFeatureFail(args[1:])
	default:
		fatal("unknown feature subcommand: %s\nusage: foreman feature <complete|fail> <id> [options]", args[0])
	}
}

func runFeatureComplete(args []string) {
	fs := pflag.NewFlagSet("feature complete", pflag.ExitOnError)
	evidencePath := fs.String("evidence", "", "path to a JSON file of per-step evidence")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fatal("usage: foreman feature complete <id> --evidence <file>")
	}
	if *evidencePath == "" {
		fatal("feature complete requires --evidence; completion without evidence is rejected")
	}

	var evidence []model.StepEvidence
	if err := jsonfile.Read(*evidencePath, &evidence); err != nil {
		fatal("read evidence: %v", err)
	}

	a := mustApp()
	if err := a.features.MarkComplete(fs.Arg(0), evidence); err != nil {
		fatal("complete feature: %v", err)
	}
	fmt.Printf("feature %s marked complete\n", fs.Arg(0))
}

func runFeatureFail(args []string) {
	if len(args) < 1 {
		fatal("usage: foreman feature fail <id>")
	}
	a := mustApp()
	if err := a.features.MarkFailing(args[0]); err != nil {
		fatal("fail feature: %v", err)
	}
	fmt.Printf("feature %s marked failing\n", args[0])
}

func runBacklog(args []string) {
	if len(args) < 1 {
		fatal("usage: foreman backlog <add|list|comment|start|block|done> [options]")
	}
	switch args[0] {
	case "add":
		runBacklogAdd(args[1:])
	case "list":
		a := mustApp()
		items, err := a.backlog.Load()
		if err != nil {
			fatal("load backlog: %v", err)
		}
		printJSON(items)
	case "comment":
		runBacklogComment(args[1:])
	case "start":
		requireArg(args[1:], "foreman backlog start <id>")
		a := mustApp()
		if err := a.backlog.MarkInProgress(args[1]); err != nil {
			fatal("start item: %v", err)
		}
		fmt.Printf("backlog item %s in progress\n", args[1])
	case "block":
		if len(args) < 3 {
			fatal("usage: foreman backlog block <id> <reason>")
		}
		a := mustApp()
		if err := a.backlog.MarkBlocked(args[1], strings.Join(args[2:], " ")); err != nil {
			fatal("block item: %v", err)
		}
		fmt.Printf("backlog item %s blocked\n", args[1])
	case "done":
		requireArg(args[1:], "foreman backlog done <id>")
		a := mustApp()
		if err := a.backlog.MarkComplete(args[1]); err != nil {
			fatal("complete item: %v", err)
		}
		fmt.Printf("backlog item %s done\n", args[1])
	default:
		fatal("unknown backlog subcommand: %s\nusage: foreman backlog <add|list|comment|start|block|done>", args[0])
	}
}

func requireArg(args []string, usage string) {
	if len(args) < 1 {
		fatal("usage: %s", usage)
	}
}

func runBacklogAdd(args []string) {
	fs := pflag.NewFlagSet("backlog add", pflag.ExitOnError)
	typeFlag := fs.String("type", "feature", "item type: bug, feature, or idea")
	priorityFlag := fs.String("priority", "medium", "priority: critical, high, medium, or low")
	details := fs.String("details", "", "longer free-text details")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fatal("usage: foreman backlog add [--type t] [--priority p] [--details d] <description>")
	}

	itemType, ok := model.ParseBacklogType(*typeFlag)
	if !ok {
		fatal("invalid type %q (bug, feature, idea)", *typeFlag)
	}
	priority, ok := model.ParseBacklogPriority(*priorityFlag)
	if !ok {
		fatal("invalid priority %q (critical, high, medium, low)", *priorityFlag)
	}

	a := mustApp()
	item, err := a.backlog.Add(itemType, priority, strings.Join(fs.Args(), " "), *details)
	if err != nil {
		fatal("add item: %v", err)
	}
	printJSON(item)
}

func runBacklogComment(args []string) {
	fs := pflag.NewFlagSet("backlog comment", pflag.ExitOnError)
	author := fs.String("author", "human", "comment author: agent, human, or system")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fatal("usage: foreman backlog comment <id> <text> [--author a]")
	}
	setter, ok := model.ParseSetter(*author)
	if !ok {
		fatal("invalid author %q (agent, human, system)", *author)
	}

	a := mustApp()
	if err := a.backlog.AddComment(fs.Arg(0), setter, strings.Join(fs.Args()[1:], " ")); err != nil {
		fatal("add comment: %v", err)
	}
	fmt.Printf("comment added to %s\n", fs.Arg(0))
}

func runTests(args []string) {
	if len(args) < 1 {
		fatal("usage: foreman tests <list|pass|fail> [options]")
	}
	switch args[0] {
	case "list":
		a := mustApp()
		ledger, err := a.ledger.Load()
		if err != nil {
			fatal("load tests: %v", err)
		}
		printJSON(ledger)
	case "pass":
		runTestsPass(args[1:])
	case "fail":
		requireArg(args[1:], "foreman tests fail <id>")
		a := mustApp()
		if err := a.ledger.MarkFailing(args[1]); err != nil {
			fatal("fail test case: %v", err)
		}
		fmt.Printf("test case %s marked failing\n", args[1])
	default:
		fatal("unknown tests subcommand: %s\nusage: foreman tests <list|pass|fail>", args[0])
	}
}

func runTestsPass(args []string) {
	fs := pflag.NewFlagSet("tests pass", pflag.ExitOnError)
	screenshot := fs.String("screenshot", "", "path to the screenshot artifact")
	consoleLog := fs.String("console-log", "", "path to the captured console log")
	notes := fs.String("notes", "", "verification notes")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fatal("usage: foreman tests pass <id> --screenshot <png> --console-log <log>")
	}

	a := mustApp()
	err := a.ledger.MarkPassing(fs.Arg(0), model.TestEvidence{
		ScreenshotPath: *screenshot,
		ConsoleLogPath: *consoleLog,
		Notes:          *notes,
	})
	if err != nil {
		fatal("pass test case: %v", err)
	}
	fmt.Printf("test case %s verified\n", fs.Arg(0))
}

func runState(args []string) {
	if len(args) < 1 {
		fatal("usage: foreman state <show|pause|continuous|run-once|cleanup|terminate> [--note n]")
	}

	if args[0] == "show" {
		a := mustApp()
		printJSON(a.state.Read())
		return
	}

	fs := pflag.NewFlagSet("state", pflag.ExitOnError)
	note := fs.String("note", "", "free-text note recorded with the transition")
	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(1)
	}

	a := mustApp()
	var err error
	switch args[0] {
	case "pause":
		err = a.state.Pause(model.SetterHuman, *note)
	case "continuous":
		err = a.state.StartContinuous(model.SetterHuman, *note)
	case "run-once":
		err = a.state.RequestRunOnce(model.SetterHuman, *note)
	case "cleanup":
		err = a.state.RequestCleanup(model.SetterHuman, *note)
	case "terminate":
		err = a.state.Terminate(model.SetterHuman, *note)
	default:
		fatal("unknown state subcommand: %s\nusage: foreman state <show|pause|continuous|run-once|cleanup|terminate>", args[0])
	}
	if err != nil {
		fatal("state %s: %v", args[0], err)
	}
	printJSON(a.state.Read())
}

func runSessions(args []string) {
	fs := pflag.NewFlagSet("sessions", pflag.ExitOnError)
	limit := fs.Int("limit", 10, "show at most this many recent sessions")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	a := mustApp()
	sessions, err := a.sessions.List()
	if err != nil {
		fatal("list sessions: %v", err)
	}
	if *limit > 0 && len(sessions) > *limit {
		sessions = sessions[len(sessions)-*limit:]
	}
	stats, err := a.sessions.Statistics()
	if err != nil {
		fatal("session statistics: %v", err)
	}
	printJSON(map[string]any{
		"sessions":   sessions,
		"statistics": stats,
	})
}

func runPrompt(args []string) {
	if len(args) < 1 {
		fatal("usage: foreman prompt <initializer|coding|testing|cleanup>")
	}
	role, ok := model.ParseAgentType(args[0])
	if !ok {
		fatal("invalid role %q (initializer, coding, testing, cleanup)", args[0])
	}

	a := mustApp()
	directive, err := a.coord.NextDirective()
	if err != nil {
		fatal("derive directive: %v", err)
	}
	if directive != nil && directive.Role == role {
		fmt.Print(directive.Prompt)
		return
	}

	// The requested role is not the one the coordinator would pick next;
	// render its prompt without a pre-selected work item.
	phase, err := a.coord.Phase()
	if err != nil {
		fatal("derive phase: %v", err)
	}
	prompt, err := coordinator.RenderPrompt(role, coordinator.PromptContext{
		ProjectName: a.cfg.Project.Name,
		Phase:       string(phase),
	})
	if err != nil {
		fatal("render prompt: %v", err)
	}
	fmt.Print(prompt)
}

func runReport(args []string) {
	fs := pflag.NewFlagSet("report", pflag.ExitOnError)
	out := fs.String("out", "", "write the HTML report to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	a := mustApp()
	html, err := a.journal.ExportHTML(a.cfg.Project.Name + " — progress report")
	if err != nil {
		fatal("export report: %v", err)
	}
	if *out == "" {
		os.Stdout.Write(html)
		return
	}
	if err := os.WriteFile(*out, html, 0644); err != nil {
		fatal("write report: %v", err)
	}
	fmt.Printf("report written to %s\n", *out)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `foreman %s — coding-session bookkeeping harness

Usage: foreman <command> [options]

Project:
  init [dir] [--name n]      Initialize .foreman/ directory
  status [--json]            Show project status
  run [--once]               Run workflow cycles per desired state

Work queues:
  features list              Dump the feature list
  features next              Show the next incomplete feature
  feature complete <id> --evidence <file>
  feature fail <id>          Reverse a feature's completion
  backlog add [flags] <description>
  backlog list|comment|start|block|done
  tests list                 Dump the test ledger
  tests pass <id> --screenshot <png> --console-log <log>
  tests fail <id>            Clear a case's verification

Control:
  state show                 Print the agent state file
  state pause|continuous|run-once|cleanup|terminate [--note n]
  sessions [--limit n]       List recent sessions and statistics
  prompt <role>              Print the directive prompt for a role
  report [--out file]        Export the progress journal as HTML

  version                    Show version
  help                       Show this help

`, version)
}
