package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Run Command
// =============================================================================

func buildRunCmd(flags *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run [run-id...]",
		Short: "Execute run definitions",
		Long: `Execute the run definitions from runs.yaml, or only the named ones.

For each experiment of a run and each listed model, the experiment is run
n_iterations times (default 1). Every iteration writes one CSV under
<results-dir>/<run>/<experiment>/<model>/, plus SQL rows and an S3 object
when those sinks are configured.

SIGINT/SIGTERM stops the run between model calls.`,
		Example: `  # Run everything
  llmexp run

  # Run one run against a different definitions directory
  llmexp run pilot --configs-dir ./study`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), cmd.OutOrStdout(), flags, args, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve runs and print the plan without calling models")
	return cmd
}

// =============================================================================
// Inspection Commands
// =============================================================================

func buildListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List experiments, models, participants and runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.OutOrStdout(), flags)
		},
	}
}

func buildValidateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check definitions for problems without calling any model",
		Long: `Load every definition file and report skipped entries, unknown parsers,
duplicate measures, undeclared conditions and dangling ids in runs.

Exits non-zero when any problem is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), flags)
		},
	}
}

func buildParseCmd() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "parse <parser> <text>",
		Short: "Apply a parser to a piece of text",
		Example: `  llmexp parse parse_int_in_scale "I'd say 4" --param scale_min=1 --param scale_max=7
  llmexp parse parse_yes_or_no "Yes, definitely"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd.OutOrStdout(), args[0], args[1], params)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Parser parameter as key=value (repeatable)")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.OutOrStdout())
		},
	}
}
