// Package main is the entry point for the mailing CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newspaper/mailing/internal/config"
	"github.com/newspaper/mailing/internal/cron"
	"github.com/newspaper/mailing/internal/digest"
	"github.com/newspaper/mailing/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

func (f *globalFlags) runParams() app.RunParams {
	return app.RunParams{
		ConfigPath: f.configPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    f.dataDir,
		LogLevel:   f.logLevel,
	}
}

func (f *globalFlags) load() (*config.Config, string, error) {
	return app.LoadConfig(f.configPath, f.dataDir)
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "mailing",
		Short:         "Persistent job scheduler for the weekly newsletter digest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Data directory (default $XDG_DATA_HOME/mailing)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	root.AddCommand(
		versionCmd(),
		startCmd(flags),
		configCmd(flags),
		jobsCmd(flags),
		serviceCmd(flags),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mailing %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler in the foreground until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run(flags.runParams())
		},
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(flags), configInitCmd(), configShowCmd(flags))
	return cmd
}

func configCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and show upcoming fire times",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.configPath = args[0]
			}
			cfg, path, err := flags.load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%s)\n", path)
			fmt.Fprintf(out, "  timezone: %s\n", cfg.Location())
			fmt.Fprintf(out, "  store:    %s\n", storeSummary(cfg))

			now := time.Now()
			printJob(out, digest.JobName, cfg.Jobs.Digest.IsEnabled(), cfg.Jobs.Digest.Schedule, cfg, now)
			printJob(out, (&cron.RetentionJob{}).Name(), cfg.Jobs.Retention.IsEnabled(), cfg.Jobs.Retention.Schedule, cfg, now)
			return nil
		},
	}
}

func configShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			cfg.Mail.Password = redacted(cfg.Mail.Password)
			cfg.Gateway.Auth.BearerToken = redacted(cfg.Gateway.Auth.BearerToken)
			cfg.Gateway.Auth.BasicPass = redacted(cfg.Gateway.Auth.BasicPass)

			out, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func storeSummary(cfg *config.Config) string {
	if cfg.Store.Driver == config.StoreMemory {
		return "memory (not persisted)"
	}
	return "sqlite " + cfg.Store.Path
}
