// Package agentq drives a browser toward an objective with a plan, thought, action,
// explanation and critique loop. Candidate commands proposed by the model are
// ranked by an LLM critic blended with per-command reward statistics.
package agentq

import (
	"regexp"
	"strings"
)

// CommandType names a browser command.
type CommandType string

const (
	CmdNavigate   CommandType = "NAVIGATE"
	CmdSearch     CommandType = "SEARCH"
	CmdClick      CommandType = "CLICK"
	CmdType       CommandType = "TYPE"
	CmdSubmit     CommandType = "SUBMIT"
	CmdClear      CommandType = "CLEAR"
	CmdScroll     CommandType = "SCROLL"
	CmdGetDOM     CommandType = "GET_DOM"
	CmdScreenshot CommandType = "SCREENSHOT"
	CmdWait       CommandType = "WAIT"
	CmdAskUser    CommandType = "ASK_USER_HELP"
)

const defaultScreenshotPath = "screenshot.png"

// Command is a parsed command line.
type Command struct {
	Type    CommandType `json:"type"`
	Target  string      `json:"target,omitempty"`
	Content string      `json:"content,omitempty"`
	// ByID is set when Target names an element label or DOM id rather than a CSS selector.
	ByID bool `json:"by_id,omitempty"`
}

// String renders the command as "TYPE -> target (content)".
func (c Command) String() string {
	s := string(c.Type)
	if c.Target != "" {
		s += " -> " + c.Target
	}
	if c.Content != "" {
		s += " (" + c.Content + ")"
	}
	return s
}

var (
	navAngleRe   = regexp.MustCompile(`(?i)^(?:GOTO|GO TO|NAVIGATE)\s*\[\s*URL\s*=\s*<([^>\]]+)>\s*\]\s*$`)
	navBracketRe = regexp.MustCompile(`(?i)^(?:GOTO|GO TO|NAVIGATE)\s*\[\s*URL\s*=\s*([^\]\s]+)\s*\]\s*$`)
	navBareRe    = regexp.MustCompile(`(?i)^(?:GOTO|GO TO|NAVIGATE)\s+(https?://\S+)\s*$`)
	navColonRe   = regexp.MustCompile(`(?i)^(?:NAVIGATE|GOTO|GO TO)\s*:\s*(.+)$`)

	searchRe      = regexp.MustCompile(`(?i)^SEARCH\s*(?:\[\s*(?:TEXT\s*=\s*)?([^\]]+?)\s*\]|:\s*([^\n\r#]+?)\s*$)`)
	parenTailRe   = regexp.MustCompile(`\s*\(.*?\)\s*$`)
	punctTailRe   = regexp.MustCompile(`\s*[.)]\s*$`)
	commentTailRe = regexp.MustCompile(`\s+#.*$`)
	multiSpaceRe  = regexp.MustCompile(`\s{2,}`)

	clickBracketRe = regexp.MustCompile(`(?i)^CLICK\s*\[\s*(?:(ID|SELECTOR)\s*=\s*)?([^\]]+?)\s*\]\s*$`)
	clickColonRe   = regexp.MustCompile(`(?i)^CLICK\s*:\s*(.+)$`)
	idPrefixRe     = regexp.MustCompile(`(?i)^ID\s*=\s*(.+)$`)
	labelRe        = regexp.MustCompile(`^el_\d+$`)

	typeBracketRe = regexp.MustCompile(`(?i)^TYPE\s*\[\s*([^\]]+?)\s*\]\s*\[\s*(?:TEXT\s*=\s*)?([^\]]+?)\s*\]\s*$`)
	typeColonRe   = regexp.MustCompile(`(?i)^TYPE\s*:\s*(.+?)\s*\|\|\s*(.+)$`)

	submitRe = regexp.MustCompile(`(?i)^SUBMIT\s*\[\s*ID\s*=\s*([^\]]+?)\s*\]\s*$`)
	clearRe  = regexp.MustCompile(`(?i)^CLEAR\s*\[\s*ID\s*=\s*([^\]]+?)\s*\]\s*$`)

	scrollBracketRe = regexp.MustCompile(`(?i)^SCROLL\s*\[\s*(UP|DOWN)\s*\]\s*$`)
	scrollColonRe   = regexp.MustCompile(`(?i)^SCROLL\s*:\s*(UP|DOWN)\s*$`)

	getDOMRe     = regexp.MustCompile(`(?i)^GET[_\s-]?DOM\s*$`)
	screenshotRe = regexp.MustCompile(`(?i)^SCREENSHOT(?:\s*\[\s*PATH\s*=\s*([^\]]+?)\s*\])?\s*$`)
	waitColonRe  = regexp.MustCompile(`(?i)^WAIT\s*:\s*(\d+)\s*$`)
	waitSecRe    = regexp.MustCompile(`(?i)^WAIT\s*\[\s*SECONDS\s*=\s*(\d+)\s*\]\s*$`)
	askUserRe    = regexp.MustCompile(`(?i)^ASK[\s_]*USER[\s_]*HELP\s*\[\s*TEXT\s*=\s*(.+?)\s*\]\s*$`)
)

// ParseCommand parses one command line. ok is false when the line matches no form.
func ParseCommand(line string) (*Command, bool) {
	c := strings.TrimSpace(line)
	if c == "" {
		return nil, false
	}

	for _, re := range []*regexp.Regexp{navAngleRe, navBracketRe, navBareRe, navColonRe} {
		if m := re.FindStringSubmatch(c); m != nil {
			return &Command{Type: CmdNavigate, Target: strings.TrimSpace(m[1])}, true
		}
	}

	if m := searchRe.FindStringSubmatch(c); m != nil {
		q := m[1]
		if q == "" {
			q = m[2]
		}
		return &Command{Type: CmdSearch, Content: cleanQuery(q)}, true
	}

	if m := clickBracketRe.FindStringSubmatch(c); m != nil {
		target := strings.TrimSpace(m[2])
		if strings.EqualFold(m[1], "SELECTOR") {
			return &Command{Type: CmdClick, Target: target}, true
		}
		return elementCommand(CmdClick, target, "", strings.EqualFold(m[1], "ID")), true
	}
	if m := clickColonRe.FindStringSubmatch(c); m != nil {
		return elementCommand(CmdClick, strings.TrimSpace(m[1]), "", false), true
	}

	if m := typeBracketRe.FindStringSubmatch(c); m != nil {
		return elementCommand(CmdType, strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), false), true
	}
	if m := typeColonRe.FindStringSubmatch(c); m != nil {
		return elementCommand(CmdType, strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), false), true
	}

	if m := submitRe.FindStringSubmatch(c); m != nil {
		return &Command{Type: CmdSubmit, Target: strings.TrimSpace(m[1]), ByID: true}, true
	}
	if m := clearRe.FindStringSubmatch(c); m != nil {
		return &Command{Type: CmdClear, Target: strings.TrimSpace(m[1]), ByID: true}, true
	}

	for _, re := range []*regexp.Regexp{scrollBracketRe, scrollColonRe} {
		if m := re.FindStringSubmatch(c); m != nil {
			return &Command{Type: CmdScroll, Target: strings.ToLower(m[1])}, true
		}
	}

	if getDOMRe.MatchString(c) {
		return &Command{Type: CmdGetDOM}, true
	}
	if m := screenshotRe.FindStringSubmatch(c); m != nil {
		path := strings.TrimSpace(m[1])
		if path == "" {
			path = defaultScreenshotPath
		}
		return &Command{Type: CmdScreenshot, Target: path}, true
	}
	for _, re := range []*regexp.Regexp{waitColonRe, waitSecRe} {
		if m := re.FindStringSubmatch(c); m != nil {
			return &Command{Type: CmdWait, Content: m[1]}, true
		}
	}
	if m := askUserRe.FindStringSubmatch(c); m != nil {
		return &Command{Type: CmdAskUser, Content: strings.TrimSpace(m[1])}, true
	}
	return nil, false
}

// elementCommand builds a command on an element target. An "ID=" prefix or an
// el_N label marks the target as an element id.
func elementCommand(t CommandType, target, content string, byID bool) *Command {
	if m := idPrefixRe.FindStringSubmatch(target); m != nil {
		target, byID = strings.TrimSpace(m[1]), true
	}
	if labelRe.MatchString(target) {
		byID = true
	}
	return &Command{Type: t, Target: target, Content: content, ByID: byID}
}

// cleanQuery trims the parenthetical, punctuation and comment tails models append.
func cleanQuery(q string) string {
	q = strings.TrimSpace(q)
	q = parenTailRe.ReplaceAllString(q, "")
	q = punctTailRe.ReplaceAllString(q, "")
	q = commentTailRe.ReplaceAllString(q, "")
	q = multiSpaceRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}
