package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tagnest/internal/report"
	"github.com/conneroisu/tagnest/internal/scanner"
)

func newCheckCmd() *cobra.Command {
	var flags *StandardFlags

	checkCmd := &cobra.Command{
		Use:     "check [path...]",
		Aliases: []string{"c"},
		Short:   "Check tag nesting in HTML documents",
		Long: `Check every document named on the command line. Directories are walked
recursively for files with a document extension; "-" reads standard input.
With no arguments the configured check.paths are used.

Examples:
  tagnest check                       # Check the current directory
  tagnest check site/ index.html      # Check a directory and a file
  tagnest check --format json site/   # Machine-readable report
  tagnest check -q --exclude 'dist'   # Verdicts only, skipping dist/
  curl -s example.com | tagnest check -`,
		Args: pathArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := SetViperBindings(cmd, checkBindings); err != nil {
				return fatal(err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, flags)
		},
	}

	flags = AddStandardFlags(checkCmd, "check", "output")

	return checkCmd
}

func runCheck(cmd *cobra.Command, args []string, flags *StandardFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	flags.ApplyOverrides(cmd, cfg)

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	opts := scanner.OptionsFromConfig(&cfg.Check)
	opts.Stdin = cmd.InOrStdin()
	documentScanner := scanner.New(opts, logger)

	perf := logger.StartOperation("check")
	summary, err := documentScanner.Check(ctx, cfg.Check.Paths)
	if err != nil {
		perf.EndWithError(ctx, err)
		return fatal(err)
	}
	perf.End(ctx, "documents", summary.Total)

	if err := report.Write(cmd.OutOrStdout(), cfg.Output.Format, summary, flags.ReportOptions()); err != nil {
		return fatal(err)
	}

	if code := summary.ExitCode(); code != report.ExitValid {
		return &ExitError{Code: code}
	}
	return nil
}
