package main

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/newspaper/mailing/internal/config"
	"github.com/newspaper/mailing/internal/cron"
	"github.com/newspaper/mailing/pkg/app"
)

func configInitCmd() *cobra.Command {
	var (
		force       bool
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a new configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.DefaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}

			cfg := config.Default()
			if interactive {
				if err := runWizard(cfg); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return errors.New("aborted")
					}
					return err
				}
			}

			if err := config.Write(path, cfg, force); err != nil {
				if errors.Is(err, config.ErrExists) {
					return fmt.Errorf("%w (use --force to overwrite)", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", true, "Ask for settings instead of writing defaults")
	return cmd
}

// wizardAnswers holds the form fields that are not plain strings in Config.
type wizardAnswers struct {
	port           string
	enableGateway  bool
	gatewayToken   string
	digestSchedule string
}

// runWizard asks for the settings that have no sensible default and stores
// them in cfg.
func runWizard(cfg *config.Config) error {
	ans := wizardAnswers{
		port:           strconv.Itoa(cfg.Mail.Port),
		digestSchedule: cfg.Jobs.Digest.Schedule,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Timezone").
				Description("IANA zone the schedules are evaluated in").
				Value(&cfg.Timezone).
				Validate(func(s string) error {
					_, err := time.LoadLocation(s)
					return err
				}),
			huh.NewInput().
				Title("Digest schedule").
				Description("cron expression with seconds, e.g. 0 0 0 * * mon").
				Value(&ans.digestSchedule).
				Validate(func(s string) error {
					_, err := cron.ParseTrigger(s, time.UTC)
					return err
				}),
			huh.NewInput().
				Title("Site URL").
				Description("Base URL of post links in the digest").
				Value(&cfg.Jobs.Digest.SiteURL),
			huh.NewInput().
				Title("Site database").
				Description("Path of the SQLite database with posts and subscriptions").
				Value(&cfg.Content.Path),
		).Title("Digest"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Mail transport").
				Options(
					huh.NewOption("SMTP server", "smtp"),
					huh.NewOption("Log only (no delivery)", "log"),
				).
				Value(&cfg.Mail.Driver),
			huh.NewInput().
				Title("SMTP host").
				Value(&cfg.Mail.Host),
			huh.NewInput().
				Title("SMTP port").
				Value(&ans.port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n <= 0 || n > 65535 {
						return errors.New("port must be between 1 and 65535")
					}
					return nil
				}),
			huh.NewInput().
				Title("SMTP username").
				Value(&cfg.Mail.Username),
			huh.NewInput().
				Title("SMTP password").
				Description("Leave empty and use ${VAR} in the file to read it from the environment").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Mail.Password),
			huh.NewInput().
				Title("Sender address").
				Value(&cfg.Mail.From).
				Validate(func(s string) error {
					_, err := mail.ParseAddress(s)
					return err
				}),
		).Title("Mail"),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the HTTP gateway?").
				Description("Health, metrics, job API and the execution stream").
				Value(&ans.enableGateway),
			huh.NewInput().
				Title("Gateway bearer token").
				Description("Required for the job API").
				EchoMode(huh.EchoModePassword).
				Value(&ans.gatewayToken),
		).Title("Gateway"),
	)

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Content.Timezone = cfg.Timezone
	cfg.Jobs.Digest.Schedule = ans.digestSchedule
	cfg.Mail.Port, _ = strconv.Atoi(ans.port)
	cfg.Gateway.Enabled = ans.enableGateway
	cfg.Gateway.Auth.BearerToken = ans.gatewayToken
	return nil
}
