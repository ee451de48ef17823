package agentq

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/webagents/internal/llmutil"
)

const planSystemPrompt = `You are AgentQ, an agent that completes tasks by operating a web browser.

Create a short step-by-step plan for the user's objective.
- Break the objective into concrete web interactions.
- Number each step.
- Keep it brief.

Example:
Objective: What is the capital of France?
Plan:
1. Search the web for "capital of France"
2. Read the answer from the results
3. Report the answer`

const thoughtSystemPrompt = `You are AgentQ, an agent that completes tasks by operating a web browser.

Decide what to do next. Reply in exactly this format:

THOUGHT:
<your reasoning in 1-3 sentences>

COMMANDS:
<one to three alternative next commands, one per line, best first>

STATUS:
CONTINUE or COMPLETE

Available commands:
- NAVIGATE [URL=<https://...>]
- SEARCH [TEXT=query]
- CLICK [ID=el_N]  or  CLICK [SELECTOR=css]
- TYPE [ID=el_N] [TEXT=text]
- SUBMIT [ID=el_N]
- CLEAR [ID=el_N]
- SCROLL [UP] or SCROLL [DOWN]
- GET_DOM
- SCREENSHOT [PATH=file.png]
- WAIT [SECONDS=n]
- ASK USER HELP [TEXT=question]

Refer to page elements by their [el_N] labels from the element list.
Use STATUS COMPLETE only when the objective is already achieved.`

const explanationSystemPrompt = `You are AgentQ, an agent that interprets the result of a browser action.

Explain in 1-3 sentences what happened, whether it worked and whether it moves the task closer to the objective.`

const critiqueSystemPrompt = `You are AgentQ, an agent that judges whether a browser task is finished.

Consider whether the objective has been achieved, whether enough information has been gathered and whether the agent is stuck.
Answer with COMPLETE if the objective has been accomplished or CONTINUE if more actions are needed, then give your reasoning in one or two sentences.`

const criticSystemPrompt = `You rate candidate browser commands for an agent working toward an objective.

Give every candidate a score between 0 and 1 for how likely it is to make progress.
Reply with JSON only, in this form:
[{"command": "<candidate text>", "score": 0.8}]`

const strategyWarning = "WARNING: the last %d actions made no progress (same page, same result). Change strategy: try a different command, element or site."

func planPrompt(st *State) string {
	return fmt.Sprintf("Objective: %s\n\nPlan:", st.Objective)
}

func (a *Agent) thoughtPrompt(st *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n\nPlan:\n%s\n\n", st.Objective, orDefault(st.Plan, "No plan yet"))
	fmt.Fprintf(&b, "Loop: %d/%d\nCurrent URL: %s\nPage title: %s\n\n", st.LoopCount, st.MaxLoops,
		orDefault(st.CurrentURL, "No current URL"), orDefault(st.PageTitle, "No page title"))
	fmt.Fprintf(&b, "Page content:\n%s\n\n", llmutil.TruncateChars(orDefault(st.PageContent, "No page content"), 1500))
	fmt.Fprintf(&b, "Interactive elements:\n%s\n\n", orDefault(st.Elements, "No interactive elements."))
	fmt.Fprintf(&b, "History:\n%s\n", orDefault(st.FormattedScratchpad(a.cfg.ScratchpadEntries), "None"))
	if st.LastError != "" {
		fmt.Fprintf(&b, "\nLast error: %s\n", st.LastError)
	}
	if st.NoProgressStreak >= a.cfg.NoProgressLimit {
		fmt.Fprintf(&b, "\n"+strategyWarning+"\n", st.NoProgressStreak)
	}
	b.WriteString("\nWhat should be the next action?")
	return b.String()
}

func explanationPrompt(st *State) string {
	return fmt.Sprintf("Objective: %s\nAction taken: %s\nObservation: %s\n\nExplain what happened.",
		st.Objective, actionString(st.Action), orDefault(st.Observation, "No observation"))
}

func (a *Agent) critiquePrompt(st *State) string {
	return fmt.Sprintf("Objective: %s\nPlan:\n%s\n\nLoop: %d/%d\nCurrent URL: %s\nLatest explanation: %s\n\nHistory:\n%s\n\nShould the agent continue or is the task complete?",
		st.Objective, orDefault(st.Plan, "No plan yet"), st.LoopCount, st.MaxLoops,
		orDefault(st.CurrentURL, "No current URL"), orDefault(st.Explanation, "None"),
		orDefault(st.FormattedScratchpad(a.cfg.ScratchpadEntries), "None"))
}

func actionString(c *Command) string {
	if c == nil {
		return "No action"
	}
	return c.String()
}
