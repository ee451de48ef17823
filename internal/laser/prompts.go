package laser

import (
	"fmt"
	"sort"
	"strings"
)

const baseSystemPrompt = `You are a shopping assistant working in an online store on behalf of a customer.
You see the current page as text. Buttons look like "[button] Label [button_]".
Pick exactly one tool per turn from the tools listed below and never invent item ids.
Answer with a single JSON object and nothing else:
{"thought": "<why this tool>", "name": "<tool name>", "arguments": {<tool arguments>}}`

var stateGuides = map[NodeState]string{
	StateSearch: `You are on the search page. Write a short query with the product type and the
most distinctive attributes from the instruction. Leave out the price limit.`,
	StateResult: `You are on a result page. Each listed product appears as
"[button] ID [button_]" followed by its name and price. Select the product that matches
the instruction best and is within the price limit. Use next_page when nothing fits,
and back_to_search only when the whole result list is off target.`,
	StateItem: `You are on an item page. Check the description, features and reviews
against the instruction before buying. Buy only if the item matches; otherwise go back
to the result list.`,
}

func systemPrompt(state NodeState, allowed []ToolSpec) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(stateGuides[state])
	b.WriteString("\n\nTools:\n")
	b.WriteString(describeTools(allowed))
	return b.String()
}

func describeTools(tools []ToolSpec) string {
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s", t.Name, t.Description)
		if len(t.Args) > 0 {
			keys := make([]string, 0, len(t.Args))
			for k := range t.Args {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			args := make([]string, len(keys))
			for i, k := range keys {
				args[i] = fmt.Sprintf("%s (%s)", k, t.Args[k])
			}
			fmt.Fprintf(&b, " Arguments: %s.", strings.Join(args, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func userPrompt(st *State, history string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\n", st.Instruction)
	if st.Current == StateItem {
		in := ParseInstruction(st.Instruction)
		fmt.Fprintf(&b, "Target keywords: %s\n", strings.Join(in.Keywords, ", "))
		if in.MaxPrice > 0 {
			fmt.Fprintf(&b, "Max price: $%.2f\n", in.MaxPrice)
		}
	}
	if history != "" {
		fmt.Fprintf(&b, "\nHistory:\n%s", history)
	}
	fmt.Fprintf(&b, "\nCurrent observation (%s page):\n%s\n", st.Current, st.Obs)
	return b.String()
}

const mappingSystemPrompt = `Your previous answer did not name a usable tool. Map the reasoning below onto
exactly one of the listed tools and answer with a single JSON object:
{"thought": "<short reason>", "name": "<tool name>", "arguments": {<tool arguments>}}`

func mappingUserPrompt(st *State, rationale string, allowed []ToolSpec) string {
	return fmt.Sprintf("Tools:\n%s\nCurrent observation:\n%s\n\nReasoning to map:\n%s\n",
		describeTools(allowed), st.Obs, rationale)
}

const managerSystemPrompt = `You supervise a shopping assistant. Judge whether the proposed action is a
sensible next step toward the customer's instruction. Reply in two or three sentences.
Say plainly when the action is wrong.`

func managerUserPrompt(st *State, history, thought string, call ToolCall) string {
	return fmt.Sprintf("Instruction: %s\n\nHistory:\n%s\nCurrent observation:\n%s\n\nRationale: %s\nProposed action: %s\n",
		st.Instruction, history, st.Obs, thought, call)
}

const rethinkSystemPrompt = baseSystemPrompt + `

A supervisor criticised your previous choice. Take the feedback into account and choose again.`

func rethinkUserPrompt(st *State, history string, call ToolCall, feedback string, allowed []ToolSpec) string {
	return fmt.Sprintf("%s\nTools:\n%s\nPrevious action: %s\nSupervisor feedback: %s\n",
		userPrompt(st, history), describeTools(allowed), call, feedback)
}

const scoringSystemPrompt = `Rate how well the item fits the customer's instruction, considering product type,
attributes and price limit. Answer only with {"score": x} where x is between 0 and 1.`
