package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/runtime"
)

func runRoot(cmd *cobra.Command, opts *rootOptions) error {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := cmd.OutOrStdout()
	return runGoal(ctx, w, a.newPipeline(&progressPrinter{w: w}), opts.goal)
}

// runGoal executes one run and prints its final block. A partial result
// left by cancellation is still printed before the error is returned.
func runGoal(ctx context.Context, w io.Writer, p *runtime.Pipeline, goal string) error {
	result, err := p.Run(ctx, goal)
	if result != nil {
		printResult(w, result)
	}
	return err
}
