package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nkit/n8nkit/cli/helpers"
)

// RegisterApplyFlags adds the affirmative pair every mutating command
// carries. Preview stays the default; --apply or --yes commits the change.
func RegisterApplyFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("apply", false, "apply the change instead of previewing it")
	cmd.Flags().BoolP("yes", "y", false, "assume yes to the apply prompt (same as --apply)")
}

// ShouldApply decides whether a mutating command commits. An affirmative
// flag wins; at an interactive terminal the user is asked once; anything
// else stays a preview.
func ShouldApply(cmd *cobra.Command, action string) bool {
	if apply, _ := cmd.Flags().GetBool("apply"); apply {
		return true
	}
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true
	}
	if force, _ := cmd.Flags().GetBool("force"); force {
		return true
	}
	if !helpers.StdinIsInteractive() {
		return false
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "About to %s. Continue? [y/N]: ", action)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
