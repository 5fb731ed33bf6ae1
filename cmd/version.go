package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tagnest/internal/version"
)

func newVersionCmd() *cobra.Command {
	var (
		versionFormat string
		versionShort  bool
	)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for tagnest including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version used for compilation
- Target platform (OS/architecture)

Examples:
  tagnest version                # Show version
  tagnest version --short        # Show short version only
  tagnest version --format json  # Output as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersionCommand(cmd.OutOrStdout(), versionFormat, versionShort)
		},
	}

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")

	return versionCmd
}

func runVersionCommand(w io.Writer, format string, short bool) error {
	switch format {
	case "json":
		return outputVersionJSON(w)
	case "text":
		if short {
			_, err := fmt.Fprintln(w, version.GetShortVersion())
			return err
		}
		_, err := io.WriteString(w, version.GetBuildInfo().String())
		return err
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
	}
}

func outputVersionJSON(w io.Writer) error {
	info := version.GetBuildInfo()

	jsonInfo := map[string]interface{}{
		"version":    info.Version,
		"git_commit": info.GitCommit,
		"build_time": info.BuildTime,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
		"is_release": version.IsRelease(),
		"is_dirty":   info.Dirty,
	}
	if info.BuildUser != "" {
		jsonInfo["build_user"] = info.BuildUser
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonInfo)
}
