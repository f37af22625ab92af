package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cmmoran/composeiso/internal/config"
)

var (
	cfgPath     string
	logLevel    string
	composeFile string
	gitURL      string
	gitRef      string
	gitPath     string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

// newRootCmd builds the full command tree. Registering the persistent flags
// resets the package-level flag variables to their defaults.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "composeiso",
		Short:         "make every identifier of a compose file unique per deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(cfgPath); err != nil {
				return err
			}
			return setupLogging(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default $"+config.EnvFile+")")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace|debug|info|warn|error (default from config, else info)")
	cmd.PersistentFlags().StringVarP(&composeFile, "file", "f", "docker-compose.yml", "Compose file, or - for stdin")
	cmd.PersistentFlags().StringVar(&gitURL, "git-url", "", "Read the compose file from this git repository")
	cmd.PersistentFlags().StringVar(&gitRef, "git-ref", "", "Branch, tag or commit to read")
	cmd.PersistentFlags().StringVar(&gitPath, "git-path", "", "Compose file path inside the repository")

	cmd.AddCommand(newRewriteCmd(), newPlanCmd(), newValidateCmd(), newTokenCmd())
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logrus.WithError(err).Error("composeiso failed")
		stop()
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command) error {
	level := cfg.Spec.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return nil
}
