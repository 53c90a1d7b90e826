// Package main provides the llmexp CLI, which runs scripted behavioral
// experiments against language models and records the measured answers.
//
// # Basic Usage
//
// Run every run defined in configs/runs.yaml:
//
//	llmexp run
//
// Run selected runs with a custom configs directory:
//
//	llmexp run pilot --configs-dir ./study
//
// Check definitions without calling any model:
//
//	llmexp validate
//
// # Environment Variables
//
//   - LLMEXP_CONFIG: Path to the application config file (llmexp.yaml)
//   - LLMEXP_CONFIGS_DIR: Directory holding experiments/models/participants/runs
//   - LLMEXP_RESULTS_DIR: Directory CSV results are written under
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY: provider credentials
//   - AWS_REGION and the AWS credential chain: Bedrock and S3
//   - OLLAMA_HOST: Ollama server address
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// envConfigPath names the application config file when --config is unset.
const envConfigPath = "LLMEXP_CONFIG"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	configsDir string
	resultsDir string
	debug      bool
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "llmexp",
		Short: "Run scripted behavioral experiments against language models",
		Long: `llmexp plays scripted scenarios to language models as if they were study
participants, parses each measured answer, and writes one results table per
experiment, model and iteration.

Definitions live in a configs directory: experiments.yaml, models.yaml,
participants.yaml and runs.yaml.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", os.Getenv(envConfigPath), "Path to llmexp.yaml (optional)")
	pf.StringVar(&flags.configsDir, "configs-dir", "", "Directory holding the definition files (overrides config)")
	pf.StringVar(&flags.resultsDir, "results-dir", "", "Directory results are written under (overrides config)")
	pf.BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")

	rootCmd.AddCommand(
		buildRunCmd(flags),
		buildListCmd(flags),
		buildValidateCmd(flags),
		buildParseCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}
