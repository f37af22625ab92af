package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the compose file against the compose schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadManifest(cmd.Context(), composeSource(), true); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "manifest OK")
			return nil
		},
	}
	return cmd
}
