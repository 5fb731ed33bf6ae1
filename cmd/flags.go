package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/tagnest/internal/config"
	"github.com/conneroisu/tagnest/internal/report"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Check flags
	Workers    int      `flag:"workers" desc:"Number of documents checked in parallel"`
	Extensions []string `flag:"ext" desc:"Document extensions to check when walking directories"`
	Exclude    []string `flag:"exclude" desc:"Glob patterns to skip"`
	NoCharset  bool     `flag:"no-charset" desc:"Read input as UTF-8 without charset detection"`

	// Output flags
	OutputFormat string `flag:"format,f" desc:"Report format (text|json|yaml|table)" default:"text"`
	Quiet        bool   `flag:"quiet,q" desc:"Only report the verdict of each document" default:"false"`

	// Watch flags
	Serve    string `flag:"serve" desc:"Address for the live report feed"`
	Debounce string `flag:"debounce" desc:"Delay before re-checking changed documents"`
}

// AddStandardFlags adds standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "check":
			addCheckFlags(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags)
		case "watch":
			addWatchFlags(cmd, flags)
		}
	}

	return flags
}

func addCheckFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().IntVar(&flags.Workers, "workers", 0, "Number of documents checked in parallel (default NumCPU, at most 8)")
	cmd.Flags().StringSliceVar(&flags.Extensions, "ext", nil, "Document extensions to check when walking directories (default .html,.htm,.xhtml)")
	cmd.Flags().StringSliceVar(&flags.Exclude, "exclude", nil, "Glob patterns to skip (default node_modules,.git)")
	cmd.Flags().BoolVar(&flags.NoCharset, "no-charset", false, "Read input as UTF-8 without charset detection")
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "format", "f", "text", "Report format ("+strings.Join(report.Formats, "|")+")")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Only report the verdict of each document")

	AddFlagValidation(cmd, "format", config.ValidateFormat)
}

func addWatchFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVar(&flags.Serve, "serve", "", "Address for the live report feed, e.g. localhost:7070")
	cmd.Flags().StringVar(&flags.Debounce, "debounce", "300ms", "Delay before re-checking changed documents")
}

// checkBindings maps check and output flags to configuration keys.
var checkBindings = map[string]string{
	"workers": "check.workers",
	"ext":     "check.extensions",
	"exclude": "check.exclude",
	"format":  "output.format",
}

// watchBindings maps watch flags to configuration keys.
var watchBindings = map[string]string{
	"serve":    "watch.serve",
	"debounce": "watch.debounce",
}

// ApplyOverrides copies flags that have no configuration key of their own
// onto cfg.
func (f *StandardFlags) ApplyOverrides(cmd *cobra.Command, cfg *config.Config) {
	if flag := cmd.Flags().Lookup("no-charset"); flag != nil && flag.Changed && f.NoCharset {
		cfg.Check.DetectCharset = false
	}
}

// ReportOptions returns the writer options selected by the output flags.
func (f *StandardFlags) ReportOptions() report.Options {
	return report.Options{Quiet: f.Quiet}
}

// SetViperBindings binds flags to viper configuration keys. A flag only
// overrides the key when it was set on the command line.
func SetViperBindings(cmd *cobra.Command, bindings map[string]string) error {
	for flagName, configKey := range bindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(flagName)
		}
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(configKey, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flagName, err)
		}
	}
	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}
