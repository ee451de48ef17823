// Package webshop drives a WebShop-style shopping site over HTTP and parses its
// pages into structured observations.
package webshop

import (
	"context"
	"fmt"
	"strings"
)

// ButtonClick marks a clickable that has no href of its own.
const ButtonClick = "BUTTON_CLICK"

type Product struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

// Clickable is a button or link label and where following it leads.
type Clickable struct {
	Text   string `json:"text"`
	Target string `json:"target"`
}

// Observation is the parsed state of one page.
type Observation struct {
	URL          string      `json:"url"`
	Query        string      `json:"query"`
	Products     []Product   `json:"products"`
	Clickables   []Clickable `json:"clickables"` // page order, unique by Text
	CartItems    []Product   `json:"cart_items"`
	HasSearchBar bool        `json:"has_search_bar"`
	Section      string      `json:"section,omitempty"` // expanded item section, e.g. "description: ..."
	Raw          string      `json:"-"`
}

// Target returns the destination registered for a clickable label. An exact
// match wins over a case-insensitive one.
func (o Observation) Target(text string) (string, bool) {
	for _, c := range o.Clickables {
		if c.Text == text {
			return c.Target, true
		}
	}
	for _, c := range o.Clickables {
		if strings.EqualFold(c.Text, text) {
			return c.Target, true
		}
	}
	return "", false
}

// ClickableTexts returns up to limit labels in page order; limit <= 0 means all.
func (o Observation) ClickableTexts(limit int) []string {
	n := len(o.Clickables)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = o.Clickables[i].Text
	}
	return out
}

// HasClickable reports whether any label equals one of names, ignoring case.
func (o Observation) HasClickable(names ...string) bool {
	for _, c := range o.Clickables {
		for _, n := range names {
			if strings.EqualFold(c.Text, n) {
				return true
			}
		}
	}
	return false
}

type ActionKind string

const (
	ActionSearch ActionKind = "search"
	ActionChoose ActionKind = "choose"
)

// Action is one high-level step: a search query or a click on a labelled element.
type Action struct {
	Kind ActionKind `json:"kind"`
	Arg  string     `json:"arg"`
}

func (a Action) String() string {
	return fmt.Sprintf("%s('%s')", a.Kind, a.Arg)
}

// Env is a shopping environment. Step resolves choose actions against from,
// the observation the action was proposed for.
type Env interface {
	Reset(ctx context.Context) (Observation, error)
	Step(ctx context.Context, from Observation, a Action) (Observation, error)
}
