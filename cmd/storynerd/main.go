// Package main provides the storyNERD CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storynerd/internal/agent"
	"storynerd/internal/config"
	storyctx "storynerd/internal/context"
	"storynerd/internal/llm"
	"storynerd/internal/logging"
	"storynerd/internal/memory"
	"storynerd/internal/skills"
	"storynerd/internal/tools"
	"storynerd/internal/workspace"
)

var (
	// Global flags
	verbose      bool
	workspaceDir string

	// Logger for non-interactive commands
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "storynerd",
	Short: "storyNERD - a chapter-by-chapter novel writing agent",
	Long: `storyNERD is a CLI agent for writing long-form fiction.

It keeps the whole story state as plain text documents in your
workspace: canonical documents (persona, world, characters, outline),
chapter drafts, and a two-layer memory (a global event log plus one
summary record per finalized chapter). Every turn assembles a bounded
context from those documents, so the agent stays consistent no matter
how long the novel grows.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspaceDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("cannot resolve working directory: %w", err)
			}
			workspaceDir = wd
		}
		abs, err := filepath.Abs(workspaceDir)
		if err != nil {
			return fmt.Errorf("cannot resolve workspace path: %w", err)
		}
		workspaceDir = abs

		// The chat UI has its own status surface.
		if cmd.CalledAs() == "storynerd" {
			return nil
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a story workspace in the current directory",
	Long: `Creates the canonical document set (SOUL.md, TONE.md, SETTINGS.md,
CHARACTERS.md, WORLD.md, OUTLINE.md, STORY_SUMMARY.md) with default
content, the drafts/, memory/ and skills/ directories, and a default
storynerd.yaml. Existing files are never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspace.New(workspaceDir)
		if err != nil {
			return err
		}
		if err := ws.Scaffold(); err != nil {
			return fmt.Errorf("scaffold failed: %w", err)
		}

		cfgPath := filepath.Join(workspaceDir, config.ConfigFileName)
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			if err := config.DefaultConfig().Save(cfgPath); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			logger.Info("wrote default config", zap.String("path", cfgPath))
		}

		logger.Info("workspace initialized", zap.String("root", workspaceDir))
		fmt.Printf("Initialized story workspace in %s\n", workspaceDir)
		fmt.Println("Edit SOUL.md and OUTLINE.md, set an API key, then run `storynerd` to start writing.")
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Check workspace consistency and run a repair turn if needed",
	Long: `Scans the workspace for gaps: drafts without chapter memory records,
memory events pointing at chapters that have no draft, and a stale
story summary. If anything is found, runs one bounded agent turn
instructing the model to repair it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx)
		if err != nil {
			return err
		}

		runner := agent.NewSyncRunner(app.ws, app.mem, app.loop)
		report, result, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Println("Workspace is consistent; nothing to repair.")
			return nil
		}

		logger.Info("sync turn finished",
			zap.String("state", string(result.State)),
			zap.Int("rounds", result.Rounds),
			zap.Int("tool_calls", result.ToolCalls),
			zap.Ints("unfinalized_drafts", report.UnfinalizedDrafts))
		fmt.Printf("Repair turn finished (%s, %d tool calls).\n", result.State, result.ToolCalls)
		if result.Text != "" {
			fmt.Println(result.Text)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.DefaultConfig()
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
	},
}

// app bundles the per-session wiring shared by chat and sync.
type app struct {
	cfg    *config.Config
	ws     *workspace.Workspace
	mem    *memory.Manager
	client llm.Client
	loop   *agent.Loop
}

// buildApp loads config and wires a full agent session over the
// workspace. The workspace must already be initialized.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ws, err := workspace.New(workspaceDir)
	if err != nil {
		return nil, err
	}
	if !ws.Exists(workspace.DocSoul) {
		return nil, fmt.Errorf("workspace %s is not initialized; run `storynerd init` first", workspaceDir)
	}

	if err := logging.Initialize(workspaceDir, logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return nil, fmt.Errorf("no API key configured: set OPENAI_API_KEY, GEMINI_API_KEY or NVIDIA_API_KEY, or api_key in %s", config.ConfigFileName)
	}

	client, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mem := memory.NewManager(ws, cfg.Memory, llm.NewChapterSummarizer(client))
	registry := tools.NewNovelRegistry(ws, mem)
	assembler := storyctx.NewAssembler(ws, mem, cfg.Context, storyctx.RuneEstimator{})
	selector := skills.NewSelector(skills.NewLoader(ws))
	loop := agent.NewLoop(ws, mem, registry, client, assembler, selector, cfg)

	return &app{cfg: cfg, ws: ws, mem: mem, client: client, loop: loop}, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "workspace directory (default: current directory)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
