// Package cmd provides the tagnest command-line interface.
//
// Configuration System:
//
//	Settings are resolved from several sources, highest priority first:
//	1. Command-line flags (--config, --format, --workers, ...)
//	2. TAGNEST_CONFIG_FILE environment variable: custom config file path
//	3. Individual environment variables (TAGNEST_CHECK_WORKERS, ...)
//	4. Configuration file (.tagnest.yml in the working directory)
//
// Environment Variables:
//
//	TAGNEST_CONFIG_FILE: Path to custom configuration file
//	TAGNEST_CHECK_WORKERS: Override the worker count
//	TAGNEST_OUTPUT_FORMAT: Override the report format
//	And every other key following the TAGNEST_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tagnest/internal/config"
	tagerrors "github.com/conneroisu/tagnest/internal/errors"
	"github.com/conneroisu/tagnest/internal/logging"
	"github.com/conneroisu/tagnest/internal/report"
)

// ExitError carries a process exit status out of a command. A nil Err means
// the status was already reported on stdout.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// fatal marks err as a run that could not complete.
func fatal(err error) error {
	return &ExitError{Code: report.ExitFatal, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return report.ExitValid
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return report.ExitFatal
}

type rootOptions struct {
	configFile string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tagnest",
		Short: "Check that the tags in HTML documents are properly nested",
		Long: `tagnest reads HTML documents and reports closing tags that do not match the
innermost open tag, closing tags with nothing open, and tags left open at
the end of the document.

Quick Start:
  tagnest check                   Check every document under the current directory
  tagnest check index.html        Check a single document
  cat page.html | tagnest check - Check standard input
  tagnest watch --serve :7070     Re-check on change and stream results

Exit status is 0 when every document is valid, 1 when any document is
invalid and 2 when a document could not be read or the run failed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := SetViperBindings(cmd.Root(), map[string]string{
				"log-level":  "log.level",
				"log-format": "log.format",
			}); err != nil {
				return fatal(err)
			}
			return initConfig(opts.configFile)
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is .tagnest.yml, can also use TAGNEST_CONFIG_FILE env var)")
	root.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")

	root.AddCommand(newCheckCmd(), newWatchCmd(), newVersionCmd())

	return root
}

// Execute runs the CLI and returns an error carrying the exit status.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	reportError(root.ErrOrStderr(), err)
	return err
}

// reportError prints errors that were not already reported on stdout.
func reportError(w io.Writer, err error) {
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fmt.Fprintln(w, "Error:", tagerrors.FormatError(err))
}

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. TAGNEST_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .tagnest.yml in current directory
//
// A missing default file is not an error; an explicitly named one is.
func initConfig(cfgFile string) error {
	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TAGNEST_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tagnest")
	}

	viper.SetEnvPrefix("TAGNEST")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return nil
		}
		return fatal(tagerrors.WrapConfig(err, tagerrors.ErrCodeConfigInvalid, "failed to read config file"))
	}

	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	return nil
}

// loadConfig resolves the configuration for a command. Positional arguments
// replace check.paths.
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fatal(tagerrors.WrapConfig(err, tagerrors.ErrCodeConfigInvalid, "invalid configuration"))
	}
	if len(args) > 0 {
		cfg.Check.Paths = args
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section. Logs go to w,
// reports go to stdout.
func newLogger(cfg *config.Config, w io.Writer) (*logging.TagnestLogger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fatal(tagerrors.NewConfigError(tagerrors.ErrCodeConfigInvalid, err.Error()))
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = w
	logCfg.Component = "tagnest"

	return logging.NewLogger(logCfg), nil
}
