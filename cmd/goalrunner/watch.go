package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/logging"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var goal, schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run a goal on a cron schedule",
		Long: `Runs the goal each time the schedule fires and prints every final block.
The schedule takes standard five-field cron syntax or descriptors such as
"@hourly" and "@every 30m". A tick that fires while the previous run is
still going is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			c, sched, err := newScheduler(schedule, a.logger, func() {
				if err := runGoal(ctx, w, a.newPipeline(&progressPrinter{w: w}), goal); err != nil {
					a.logger.Warn("watch_run_failed", "error", err.Error())
				}
			})
			if err != nil {
				return err
			}

			a.logger.Info("watch_started", "schedule", schedule, "next_run", sched.Next(time.Now()))
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			a.logger.Info("watch_stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&goal, "goal", "", "the goal to achieve")
	cmd.Flags().StringVar(&schedule, "schedule", "@hourly", "cron expression")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

// newScheduler registers job on schedule. Overlapping ticks are skipped.
func newScheduler(schedule string, logger *logging.Logger, job func()) (*cron.Cron, cron.Schedule, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(sched, cron.FuncJob(job))
	return c, sched, nil
}

// cronLogger adapts the logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron_"+msg, append(keysAndValues, "error", err.Error())...)
}
