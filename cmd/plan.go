package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cmmoran/composeiso/internal/diff"
	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/rewrite"
)

func newPlanCmd() *cobra.Command {
	var (
		flags    rewriteFlags
		planJSON bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the renames a rewrite would make without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPipeline(cmd, &flags)
			if err != nil {
				return err
			}
			defer p.Close()

			in, err := p.load(ctx)
			if err != nil {
				return err
			}
			var (
				out manifest.Manifest
				res *rewrite.Result
			)
			if p.isolated {
				out, res, err = p.isolate(in)
			} else {
				var tok string
				if tok, err = p.gen.Generate(); err != nil {
					return err
				}
				out, res, err = p.rw.Rewrite(in, tok)
			}
			if err != nil {
				return err
			}
			conflicts, err := p.rec.Preflight(ctx, out, res)
			if err != nil {
				return err
			}

			pl := diff.FromResult(res)
			if err = pl.Fingerprints(in, out); err != nil {
				return err
			}
			for _, c := range conflicts {
				pl.AddConflict(c.Kind, c.Name)
			}
			if planJSON {
				return pl.WriteJSON(cmd.OutOrStdout())
			}
			return pl.WriteText(cmd.OutOrStdout())
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&planJSON, "json", false, "Output plan as JSON")
	return cmd
}
