package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/runtime"
)

func newStageCmd(root *rootOptions) *cobra.Command {
	var input, goal string

	cmd := &cobra.Command{
		Use:   "stage <agent>",
		Short: "Run a single agent on an envelope",
		Long: `Reads envelope JSON from --input (or stdin, or a new envelope when --goal
is given), runs one agent on it and writes the resulting envelope as JSON.
Agents: planner, research, analysis, synthesis.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			in := cmd.InOrStdin()
			if input != "" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			env, err := readEnvelope(in, goal)
			if err != nil {
				return err
			}
			return runStage(cmd.Context(), cmd.OutOrStdout(), a.newPipeline(nil), args[0], env)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "envelope JSON file (default stdin)")
	cmd.Flags().StringVar(&goal, "goal", "", "start from a new envelope for this goal")
	return cmd
}

// readEnvelope returns a fresh envelope for goal, or decodes one from in.
func readEnvelope(in io.Reader, goal string) (*envelope.Envelope, error) {
	if strings.TrimSpace(goal) != "" {
		return envelope.New(goal), nil
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errors.New("no envelope on input; pass --goal or pipe envelope JSON")
	}
	return envelope.Parse(raw)
}

func runStage(ctx context.Context, w io.Writer, p *runtime.Pipeline, name string, env *envelope.Envelope) error {
	agent, ok := p.Stage(name)
	if !ok {
		return fmt.Errorf("unknown agent %q: must be one of planner, research, analysis, synthesis", name)
	}

	out, err := agent.Process(ctx, env)
	if err != nil {
		return fmt.Errorf("%s: %w", agent.Name(), err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
