package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/newspaper/mailing/internal/config"
	"github.com/newspaper/mailing/internal/cron"
	"github.com/newspaper/mailing/pkg/app"
)

const timeLayout = "2006-01-02 15:04:05 MST"

func jobsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect persisted jobs and their executions",
	}
	cmd.AddCommand(jobsListCmd(flags), jobsHistoryCmd(flags))
	return cmd
}

func jobsListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered jobs and their next fire time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			states, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return writeStates(cmd.OutOrStdout(), states, cfg.Location())
		},
	}
}

func jobsHistoryCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <job-id>",
		Short: "Show the most recent executions of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if _, err := store.Get(cmd.Context(), args[0]); err != nil {
				return err
			}
			records, err := store.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), records, cfg.Location())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of executions (0 for all)")
	return cmd
}

func writeStates(w io.Writer, states []cron.State, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRIGGER\tNEXT FIRE\tUPDATED")
	for _, st := range states {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.JobID, st.Trigger, formatTime(st.NextFire, loc), formatTime(st.UpdatedAt, loc))
	}
	return tw.Flush()
}

func writeRecords(w io.Writer, records []cron.Record, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tOUTCOME\tERROR\tID")
	for _, rec := range records {
		duration, outcome := "-", string(rec.Outcome)
		if rec.FinishedAt != nil {
			duration = rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond).String()
		} else {
			outcome = "running"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", formatTime(rec.StartedAt, loc), duration, outcome, rec.Error, rec.ID)
	}
	return tw.Flush()
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format(timeLayout)
}

// printJob writes one line of `config check` output: whether the job is
// enabled and, if so, its next fire times.
func printJob(w io.Writer, name string, enabled bool, schedule string, cfg *config.Config, now time.Time) {
	if !enabled {
		fmt.Fprintf(w, "  %s: disabled\n", name)
		return
	}
	trig, err := cron.ParseTrigger(schedule, cfg.Location())
	if err != nil {
		fmt.Fprintf(w, "  %s: %v\n", name, err)
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", name, schedule)
	at := now
	for i := range 3 {
		next, err := trig.Next(at)
		if err != nil {
			fmt.Fprintf(w, "    %v\n", err)
			return
		}
		fmt.Fprintf(w, "    %d. %s\n", i+1, formatTime(next, cfg.Location()))
		at = next
	}
}
