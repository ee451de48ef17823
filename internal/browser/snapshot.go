// internal/browser/snapshot.go
package browser

import (
	"fmt"
	"strings"
)

// IDAttribute is the attribute the snapshot script stamps on interactive elements.
const IDAttribute = "data-agentq-id"

const (
	maxIndexedElements = 200
	maxContentChars    = 3000
)

// Element is an interactive element found by the snapshot script.
type Element struct {
	ID          string `json:"id"`
	DomID       string `json:"dom_id"`
	Tag         string `json:"tag"`
	Role        string `json:"role"`
	Text        string `json:"text"`
	Placeholder string `json:"placeholder"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Href        string `json:"href"`
}

// PageSnapshot is the condensed view of the current page.
type PageSnapshot struct {
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Content  string    `json:"content"`
	Elements []Element `json:"elements"`
}

// indexScript labels visible interactive elements with data-agentq-id and returns them.
// Existing labels are kept so ids stay stable across snapshots of the same document.
var indexScript = fmt.Sprintf(`(() => {
	function visible(el) {
		const r = el.getBoundingClientRect();
		const cs = getComputedStyle(el);
		return r.width > 0 && r.height > 0 && cs.visibility !== 'hidden' && cs.display !== 'none';
	}
	const nodes = Array.from(document.querySelectorAll(
		'button, a[href], input, select, textarea, [role="button"]'
	)).filter(visible);
	let next = document.querySelectorAll('[data-agentq-id]').length;
	nodes.forEach(el => { if (!el.dataset.agentqId) { el.dataset.agentqId = 'el_' + (++next); } });
	return nodes.slice(0, %d).map(el => {
		const tag = el.tagName.toLowerCase();
		let role = el.getAttribute('role') || '';
		if (!role) {
			if (tag === 'a') role = 'link';
			else if (tag === 'button') role = 'button';
			else if (['input', 'select', 'textarea'].includes(tag)) role = 'input';
		}
		return {
			id: el.dataset.agentqId,
			dom_id: el.id || '',
			tag: tag,
			role: role,
			text: (el.innerText || '').trim().slice(0, 80),
			placeholder: el.getAttribute('placeholder') || '',
			type: el.getAttribute('type') || '',
			name: el.getAttribute('name') || '',
			href: el.getAttribute('href') || ''
		};
	});
})()`, maxIndexedElements)

var bodyTextScript = fmt.Sprintf(`(document.body ? document.body.innerText : '').slice(0, %d)`, maxContentChars)

var searchInputNames = map[string]bool{"q": true, "s": true, "query": true, "search": true}

// FindSearchInput picks the element most likely to be a site search box.
func FindSearchInput(elements []Element) (Element, bool) {
	for _, el := range elements {
		role := strings.ToLower(el.Role)
		placeholder := strings.ToLower(el.Placeholder)
		switch {
		case strings.Contains(role, "search"):
			return el, true
		case strings.EqualFold(el.Type, "search"):
			return el, true
		case strings.Contains(placeholder, "search"), strings.Contains(placeholder, "검색"):
			return el, true
		case searchInputNames[strings.ToLower(el.Name)]:
			return el, true
		}
	}
	return Element{}, false
}

// FindSearchButton picks a submit control or a button labelled search.
func FindSearchButton(elements []Element) (Element, bool) {
	for _, el := range elements {
		if strings.EqualFold(el.Type, "submit") {
			return el, true
		}
		text := strings.ToLower(el.Text)
		if strings.Contains(text, "search") || strings.Contains(text, "검색") {
			if el.Tag == "button" || strings.Contains(el.Role, "button") {
				return el, true
			}
		}
	}
	return Element{}, false
}

// Describe renders one element for a prompt, e.g. `[el_3] input "Search" (name=q)`.
func (e Element) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.ID, e.Tag)
	if e.Text != "" {
		fmt.Fprintf(&b, " %q", e.Text)
	}
	var attrs []string
	for _, kv := range [][2]string{
		{"id", e.DomID}, {"type", e.Type}, {"name", e.Name}, {"placeholder", e.Placeholder}, {"href", e.Href},
	} {
		if kv[1] != "" {
			attrs = append(attrs, kv[0]+"="+kv[1])
		}
	}
	if len(attrs) > 0 {
		b.WriteString(" (" + strings.Join(attrs, ", ") + ")")
	}
	return b.String()
}

// DescribeElements renders up to limit elements, one per line.
func (s *PageSnapshot) DescribeElements(limit int) string {
	if s == nil || len(s.Elements) == 0 {
		return "No interactive elements."
	}
	var lines []string
	for i, el := range s.Elements {
		if limit > 0 && i >= limit {
			lines = append(lines, fmt.Sprintf("... %d more", len(s.Elements)-limit))
			break
		}
		lines = append(lines, el.Describe())
	}
	return strings.Join(lines, "\n")
}
