package knowagent

import "fmt"

const instructionPrompt = `Answer the question by walking a decision graph from the "Start" node to the
"Finish" node. The allowed transitions (the action knowledge) are:
   Start:(Search, Retrieve)
   Retrieve:(Retrieve, Search, Lookup, Finish)
   Search:(Search, Retrieve, Lookup, Finish)
   Lookup:(Lookup, Search, Retrieve, Finish)
   Finish:()
Actions:
(1) Retrieve[entity]: fetch the Wikipedia summary of the exact entity, or similar entity names if there is no such page.
(2) Search[topic]: run a web search for the topic, question or term.
(3) Lookup[keyword]: return the sentence of the last retrieved passage that contains the keyword.
(4) Finish[answer]: give the answer and stop.
Interleave ActionPath, Thought, Action and Observation lines. ActionPath lists the nodes visited so
far, Thought reasons about which transition to take next, and Action is one of the four actions.

Here are some examples:
%s
(END OF EXAMPLES)`

const examples = `Question: Musician and satirist Allie Goertz wrote a song about the "The Simpsons" character Milhouse, who Matt Groening named after who?
ActionPath 1: Start
Thought 1: From "Start" I can Search or Retrieve. I only need the page on Milhouse to see who he is named after.
Action 1: Retrieve[Milhouse]
Observation 1: Milhouse Mussolini Van Houten is a recurring character in the Fox animated television series The Simpsons voiced by Pamela Hayden and created by Matt Groening.
ActionPath 2: Start->Retrieve[Milhouse]
Thought 2: The paragraph does not say who Milhouse is named after. I can look up "named after".
Action 2: Lookup[named after]
Observation 2: Milhouse was named after U.S. president Richard Nixon, whose middle name was Milhous.
ActionPath 3: Start->Retrieve[Milhouse]->Lookup[named after]
Thought 3: Milhouse was named after Richard Nixon, so I can finish.
Action 3: Finish[Richard Nixon]

Question: Were Pavel Urysohn and Leonid Levin known for the same type of work?
ActionPath 1: Start
Thought 1: I need the field of each person. I will search for Pavel Urysohn first.
Action 1: Search[Pavel Urysohn]
Observation 1: Pavel Samuilovich Urysohn (February 3, 1898 - August 17, 1924) was a Soviet mathematician who is best known for his contributions in dimension theory.
ActionPath 2: Start->Search[Pavel Urysohn]
Thought 2: Urysohn was a mathematician. Next I search for Leonid Levin.
Action 2: Search[Leonid Levin]
Observation 2: Leonid Anatolievich Levin is a Soviet-American mathematician and computer scientist.
ActionPath 3: Start->Search[Pavel Urysohn]->Search[Leonid Levin]
Thought 3: Both are mathematicians, so they were known for the same type of work.
Action 3: Finish[yes]`

type stage string

const (
	stageActionPath stage = "ActionPath"
	stageThought    stage = "Thought"
	stageAction     stage = "Action"
)

var systemPrompt = fmt.Sprintf(instructionPrompt, examples)

func stagePrompt(question, scratchpad string, s stage, step int) string {
	return fmt.Sprintf("Question: %s%s\n\nGenerate only the %s for step %d and nothing else.\n%s %d:",
		question, scratchpad, s, step, s, step)
}
