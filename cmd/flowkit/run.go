package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/flowkit/bootstrap"
	"github.com/kbukum/flowkit/run"
	"github.com/kbukum/flowkit/stream"
)

type runFlags struct {
	resumeFrom  string
	checkpoints map[string]string
	timeout     time.Duration
	trigger     string
	cron        string
	timezone    string
	summary     bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Execute a workflow and print the finished run record",
		Long: `Execute a workflow to completion and print its run record as JSON.

The command exits non-zero when the run fails or is cancelled. Interrupting
it cancels the run; the checkpoints reached so far are recorded and a later
run can continue from them with --resume-from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflow(args[0])
			if err != nil {
				return err
			}
			opts := []bootstrap.Option{}
			if !f.summary {
				opts = append(opts, bootstrap.WithSummaryOutput(nil))
			}
			app, err := g.app(opts...)
			if err != nil {
				return err
			}

			start := run.StartOptions{
				Trigger:       run.Trigger{Type: run.TriggerType(f.trigger), Cron: f.cron, Timezone: f.timezone},
				ResumeFromRun: f.resumeFrom,
				Timeout:       f.timeout,
			}
			if len(f.checkpoints) > 0 {
				start.Checkpoints = make(map[string]stream.Cursor, len(f.checkpoints))
				for node, cursor := range f.checkpoints {
					start.Checkpoints[node] = stream.Cursor(cursor)
				}
			}

			var rec *run.Run
			err = app.RunTask(cmd.Context(), func(ctx context.Context) error {
				h, err := app.Controller.Start(ctx, wf, app.Registries(), start)
				if err != nil {
					return err
				}
				// Cancellation reaches the run through ctx; Wait must outlive
				// it to observe the terminal record.
				rec, err = h.Wait(context.WithoutCancel(ctx))
				return err
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rec); err != nil {
				return err
			}
			if rec.Status != run.StatusCompleted {
				return fmt.Errorf("run %s %s", rec.ID, rec.Status)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.resumeFrom, "resume-from", "", "continue from the checkpoints of a previous run of this workflow")
	fl.StringToStringVar(&f.checkpoints, "checkpoint", nil, "explicit source cursor, node=cursor (repeatable)")
	fl.DurationVar(&f.timeout, "timeout", 0, "cancel the run after this long (default: engine.run_timeout)")
	fl.StringVar(&f.trigger, "trigger", string(run.TriggerManual), "trigger recorded on the run: manual, source or scheduled")
	fl.StringVar(&f.cron, "cron", "", "cron expression for a scheduled trigger")
	fl.StringVar(&f.timezone, "timezone", "", "IANA timezone for a scheduled trigger")
	fl.BoolVar(&f.summary, "summary", false, "print the startup summary to stderr")
	return cmd
}
