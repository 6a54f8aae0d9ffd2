// Command goalrunner drives a goal through the planner, research, analysis
// and synthesis agents and prints the evaluated result.
//
// Usage:
//
//	goalrunner --goal "Analyze the potential impact of AI on healthcare"
//	goalrunner serve --addr :50051 --metrics-addr :9090
//	goalrunner watch --goal "Next SpaceX launch weather" --schedule "@every 1h"
//	echo '{"context":{"goal":"..."}}' | goalrunner stage planner
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string

	goal string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "goalrunner",
		Short: "Plan, research, analyze and report on a goal with LLM agents",
		Long: `goalrunner asks a planner agent to pick an agent order for the goal, runs
research, analysis and synthesis in that order, re-running any agent whose
confidence falls below the threshold, and finally scores the report.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoot(cmd, opts)
		},
	}
	root.Version = version

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file read when present")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	root.Flags().StringVar(&opts.goal, "goal", "", "the goal to achieve")
	_ = root.MarkFlagRequired("goal")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newStageCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
