package agentq

import (
	"regexp"
	"strings"
)

var (
	blockHeaderRe = regexp.MustCompile(`(?mi)^(PLAN|THOUGHT|COMMANDS|STATUS)\s*:\s*`)
	bulletRe      = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)
	completeRe    = regexp.MustCompile(`\bCOMPLETE\b`)
	continueRe    = regexp.MustCompile(`\bCONTINUE\b`)
)

// OutputBlocks are the labelled sections of a model response.
type OutputBlocks struct {
	Plan     string
	Thought  string
	Commands string
	Status   string
}

// SplitOutputBlocks cuts a response at PLAN:, THOUGHT:, COMMANDS: and STATUS:
// headers at the start of a line. Text before the first header is dropped, and
// a repeated header replaces the earlier block.
func SplitOutputBlocks(response string) OutputBlocks {
	var b OutputBlocks
	locs := blockHeaderRe.FindAllStringSubmatchIndex(response, -1)
	for i, loc := range locs {
		end := len(response)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(response[loc[1]:end])
		switch strings.ToUpper(response[loc[2]:loc[3]]) {
		case "PLAN":
			b.Plan = body
		case "THOUGHT":
			b.Thought = body
		case "COMMANDS":
			b.Commands = body
		case "STATUS":
			b.Status = body
		}
	}
	return b
}

// ExtractCommands returns the COMMANDS lines, bullets stripped and duplicates
// removed in order, and the first STATUS line upper-cased.
func ExtractCommands(response string) ([]string, string) {
	blocks := SplitOutputBlocks(response)

	var cmds []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(blocks.Commands, "\n") {
		line = strings.TrimSpace(bulletRe.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		cmds = append(cmds, line)
	}

	status, _, _ := strings.Cut(strings.TrimSpace(blocks.Status), "\n")
	return cmds, strings.ToUpper(strings.TrimSpace(status))
}

// ExtractAction parses the first COMMANDS entry, or the whole response as a
// single command line when there is no COMMANDS block.
func ExtractAction(response string) (*Command, bool) {
	if cmds, _ := ExtractCommands(response); len(cmds) > 0 {
		return ParseCommand(cmds[0])
	}
	return ParseCommand(response)
}

var (
	completeKeywords = []string{"완료", "끝", "성공", "달성", "충분", "done", "achieved", "accomplished", "succeeded", "sufficient"}
	continueKeywords = []string{"계속", "더", "추가", "필요", "부족", "more", "additional", "needed", "missing", "not yet"}
)

// CritiqueDecision reports whether a critique declares the objective done.
// An explicit COMPLETE or CONTINUE wins; otherwise completion and continuation
// keywords are counted and completion needs the strict majority.
func CritiqueDecision(text string) bool {
	upper := strings.ToUpper(text)
	if completeRe.MatchString(upper) {
		return true
	}
	if continueRe.MatchString(upper) {
		return false
	}

	lower := strings.ToLower(text)
	var complete, cont int
	for _, k := range completeKeywords {
		if strings.Contains(lower, k) {
			complete++
		}
	}
	for _, k := range continueKeywords {
		if strings.Contains(lower, k) {
			cont++
		}
	}
	return complete > cont
}
