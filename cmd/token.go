package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var flags tokenFlags
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a token as rewrite would generate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := flags.spec(cmd.Flags(), cfg.Spec.Token).TokenGenerator().Generate()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
