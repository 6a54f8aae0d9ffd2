package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/runtime"
)

// progressPrinter writes run progress lines. It implements runtime.Observer.
type progressPrinter struct {
	w io.Writer
}

func (p *progressPrinter) RunStarted(goal string) {
	fmt.Fprintf(p.w, "\nProcessing goal: %s\n", goal)
}

func (p *progressPrinter) PlanningCompleted(plan string, agentOrder []string) {
	fmt.Fprintln(p.w, "\nPlanning phase completed")
}

func (p *progressPrinter) AgentStarted(name string) {
	fmt.Fprintf(p.w, "\nExecuting %s agent...\n", name)
}

func (p *progressPrinter) IterationStarted(iteration int, name string) {
	fmt.Fprintf(p.w, "\nIteration %d for %s agent...\n", iteration, name)
}

// AgentCompleted is a no-op; confidences are shown in the run table.
func (p *progressPrinter) AgentCompleted(name string, confidence float64) {}

func (p *progressPrinter) UnknownAgent(name string) {
	fmt.Fprintf(p.w, "Warning: Unknown agent %s\n", name)
}

// printResult writes the final results block followed by the agent-run table.
func printResult(w io.Writer, result *runtime.Result) {
	fmt.Fprintln(w, "\n=== Final Results ===")
	fmt.Fprintf(w, "Goal Satisfaction: %.2f\n", result.Evaluation.GoalSatisfaction)
	fmt.Fprintf(w, "Iterations Required: %d\n", result.Iterations)
	fmt.Fprintf(w, "Success: %t\n", result.Evaluation.Success)
	fmt.Fprintln(w, "\nFinal Output:")
	fmt.Fprintln(w, result.FinalOutput.FinalText())

	if len(result.AgentRuns) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderRuns(result.AgentRuns))
	}
}

func renderRuns(runs []runtime.AgentRun) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Agent", "Runs", "Confidence", "Status"})
	for _, r := range runs {
		tw.AppendRow(table.Row{r.Name, r.Runs, fmt.Sprintf("%.2f", r.Confidence), string(r.Status)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return tw.Render()
}
