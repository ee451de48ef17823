package laser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	buttonPattern     = regexp.MustCompile(`\[(clicked )?button\]\s*(.*?)\s*\[(?:clicked )?button_\]`)
	itemButtonPattern = regexp.MustCompile(`\[button\]\s*(B\w+)\s*\[button_\]`)
	itemIDPattern     = regexp.MustCompile(`^B\w+$`)
	pagePattern       = regexp.MustCompile(`Page (\d+)(?: \(Total results: (\d+)\))?`)
	pricePattern      = regexp.MustCompile(`\$([\d\.,]+(?:\s*to\s*\$[\d\.,]+)?)`)
	maxPricePattern   = regexp.MustCompile(`(?i)price (?:lower than|under) ([\d\.]+)(?: dollars)?`)
)

// Button is a "[button] X [button_]" control.
type Button struct {
	Text    string `json:"text"`
	Clicked bool   `json:"clicked"`
}

// ObsItem is a product parsed from observation text. ItemID is empty for the
// product shown on an item page.
type ObsItem struct {
	ItemID string `json:"item_id,omitempty"`
	Name   string `json:"name"`
	Price  string `json:"price"`
}

// PageInfo is the "Page N (Total results: M)" header. Zero means absent.
type PageInfo struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ParsedObservation is the structured view of a WebShop text observation.
type ParsedObservation struct {
	Buttons           []Button  `json:"buttons"`
	Items             []ObsItem `json:"items"`
	Page              PageInfo  `json:"page"`
	DescriptionViewed bool      `json:"description_viewed"`
	FeaturesViewed    bool      `json:"features_viewed"`
	ReviewsViewed     bool      `json:"reviews_viewed"`
	ItemDetails       string    `json:"item_details,omitempty"`
}

// ParseObservation extracts buttons, listed items, paging and the item detail
// sections from text.
func ParseObservation(text string) ParsedObservation {
	var p ParsedObservation
	for _, m := range buttonPattern.FindAllStringSubmatch(text, -1) {
		p.Buttons = append(p.Buttons, Button{Text: m[2], Clicked: m[1] != ""})
	}
	if m := pagePattern.FindStringSubmatch(text); m != nil {
		p.Page.Current, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			p.Page.Total, _ = strconv.Atoi(m[2])
		}
	}
	p.Items = parseItems(strings.Split(text, "\n"))

	var details []string
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(strings.TrimSpace(line))
		if lower == "" || strings.Contains(lower, "(if this is shown") {
			continue
		}
		hit := false
		if strings.Contains(lower, "description:") {
			p.DescriptionViewed, hit = true, true
		}
		if strings.Contains(lower, "features:") {
			p.FeaturesViewed, hit = true, true
		}
		if strings.Contains(lower, "reviews:") {
			p.ReviewsViewed, hit = true, true
		}
		if hit {
			details = append(details, strings.TrimSpace(line))
		}
	}
	p.ItemDetails = strings.Join(details, "\n")
	return p
}

// parseItems reads "[button] ID [button_]" entries with the product name on the
// same or next line and the price on a later line before the next button. A
// "Price:" line outside any entry is the item page's own product, named by
// the line above it.
func parseItems(lines []string) []ObsItem {
	var items []ObsItem
	consumed := make(map[int]bool)
	for i := 0; i < len(lines); i++ {
		m := itemButtonPattern.FindStringSubmatchIndex(lines[i])
		if m == nil {
			continue
		}
		it := ObsItem{ItemID: lines[i][m[2]:m[3]]}
		nameFrom := i + 1
		if rest := strings.TrimSpace(lines[i][m[1]:]); rest != "" {
			it.Name = rest
		} else if i+1 < len(lines) {
			it.Name = strings.TrimSpace(lines[i+1])
			nameFrom = i + 2
		}
		for j := nameFrom; j < len(lines) && j <= i+4; j++ {
			line := strings.TrimSpace(lines[j])
			if strings.HasPrefix(line, "[button]") {
				break
			}
			if strings.HasPrefix(line, "$") || strings.HasPrefix(line, "Price:") {
				if pm := pricePattern.FindStringSubmatch(line); pm != nil {
					it.Price = pm[1]
					consumed[j] = true
					break
				}
			}
		}
		items = append(items, it)
	}

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if consumed[i] || !strings.HasPrefix(line, "Price:") || i == 0 {
			continue
		}
		pm := pricePattern.FindStringSubmatch(line)
		if pm == nil {
			continue
		}
		name := strings.TrimSpace(lines[i-1])
		if strings.HasPrefix(name, "[") {
			continue
		}
		items = append(items, ObsItem{Name: name, Price: pm[1]})
	}
	return items
}

// Instruction is the parsed shopping goal.
type Instruction struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
	MaxPrice float64  `json:"max_price"` // 0 when the instruction sets no limit
}

// ParseInstruction extracts the price limit and the keywords of the rest of
// the instruction.
func ParseInstruction(text string) Instruction {
	in := Instruction{Text: text}
	rest := text
	if m := maxPricePattern.FindStringSubmatchIndex(text); m != nil {
		in.MaxPrice, _ = strconv.ParseFloat(strings.TrimRight(text[m[2]:m[3]], "."), 64)
		rest = text[:m[0]] + text[m[1]:]
	}
	in.Keywords = strings.FieldsFunc(rest, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '.', ',', ';', '!', '?':
			return true
		}
		return false
	})
	return in
}
