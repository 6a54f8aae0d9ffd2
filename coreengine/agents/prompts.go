package agents

import "fmt"

func planPrompt(goal string) string {
	return fmt.Sprintf(`Given the goal: "%s"

1. Create a step-by-step plan to achieve this goal.
2. Based on your plan, determine the necessary sequence of agents to execute. The available agents are [research, analysis, synthesis].

Respond with a JSON object with two keys: "plan" (a string containing the detailed plan) and "agent_order" (a list of strings with the agent names in order).
Example:
{
    "plan": "First, research the topic to gather data. Second, analyze the collected data for key insights. Third, synthesize the findings into a final report.",
    "agent_order": ["research", "analysis", "synthesis"]
}`, goal)
}

func evaluationPrompt(goal, outputJSON string) string {
	return fmt.Sprintf(`Original Goal: %s

Final Output:
%s

Evaluate how well the output satisfies the goal. Consider completeness, relevance, and clarity.
Respond with a single floating-point number between 0.0 (not satisfied at all) and 1.0 (perfectly satisfied).
ONLY return the number.`, goal, outputJSON)
}

func researchPrompt(goal, plan string) string {
	return fmt.Sprintf(`Based on the following goal and plan, conduct thorough research and provide a detailed summary.

Goal: %s
Execution Plan: %s

Provide a comprehensive summary of your findings.`, goal, plan)
}

func analysisPrompt(goal, summary string) string {
	return fmt.Sprintf(`Analyze the following research summary in the context of the user's goal.

Goal: %s

Research Summary:
%s

Provide a detailed analysis. Extract key insights and list actionable recommendations.
Structure your response as a JSON object with three keys: "analysis_text", "insights", and "recommendations".
"insights" and "recommendations" should be lists of strings.
ONLY return the raw JSON object.`, goal, summary)
}

func synthesisPrompt(goal, dataJSON string) string {
	return fmt.Sprintf(`Your task is to create a final, comprehensive report based on the provided data and analysis to meet the user's goal.

User Goal: %s

Available Data & Analysis:
%s

Synthesize all this information into a coherent, well-structured report. The report should include:
1. An Executive Summary.
2. Key Findings (based on insights).
3. A Detailed Analysis section.
4. Actionable Recommendations.

Present this as a single, formatted text output.`, goal, dataJSON)
}
