package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tagnest/internal/config"
)

// validateArguments rejects path arguments containing shell metacharacters.
// "-" is accepted and means standard input.
func validateArguments(args []string) error {
	for _, arg := range args {
		if err := config.ValidatePath(arg); err != nil {
			return fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}
	return nil
}

// pathArgs is a cobra.PositionalArgs that validates document paths.
func pathArgs(_ *cobra.Command, args []string) error {
	if err := validateArguments(args); err != nil {
		return fatal(err)
	}
	return nil
}

// watchArgs is pathArgs without standard input, which cannot be watched.
func watchArgs(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		if arg == "-" {
			return fatal(fmt.Errorf("cannot watch standard input"))
		}
	}
	return pathArgs(cmd, args)
}
