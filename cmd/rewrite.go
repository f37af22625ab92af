package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/rewrite"
)

func newRewriteCmd() *cobra.Command {
	var (
		flags  rewriteFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Suffix every service, volume, network, config and secret with a unique token",
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
				out, res, err = p.rec.RewriteUnique(ctx, in, p.gen, p.attempts)
			}
			if err != nil {
				return err
			}
			p.log.WithFields(logrus.Fields{
				"token":    res.Token,
				"isolated": p.isolated,
				"services": len(res.Tables[manifest.KindService]),
				"volumes":  len(res.Tables[manifest.KindVolume]),
				"networks": len(res.Tables[manifest.KindNetwork]),
			}).Info("manifest rewritten")

			if output != "" && output != "-" {
				return manifest.Write(output, out)
			}
			b, err := manifest.Marshal(out)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the rewritten manifest here instead of stdout")
	return cmd
}
