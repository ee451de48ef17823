package webshop

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxProducts = 10

var priceRegex = regexp.MustCompile(`\$(\d+\.?\d*)`)

// ParsePrice returns the first dollar amount in s, so "$6.63 to $8.37" is 6.63.
func ParsePrice(s string) float64 {
	m := priceRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseHTML builds an Observation from a WebShop page.
func ParseHTML(r io.Reader) (Observation, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Observation{}, fmt.Errorf("parse webshop html: %w", err)
	}

	var obs Observation
	doc.Find("div.col-lg-12.mx-auto.list-group-item").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxProducts {
			return false
		}
		p := Product{
			ID:    strings.TrimSpace(s.Find("h4.product-asin a.product-link").First().Text()),
			Title: strings.TrimSpace(s.Find("h4.product-title").First().Text()),
			Price: ParsePrice(s.Find("h5.product-price").First().Text()),
		}
		if p.ID == "" {
			p.ID = fmt.Sprintf("item_%d", i)
		}
		if p.Title == "" {
			p.Title = fmt.Sprintf("Product %d", i+1)
		}
		obs.Products = append(obs.Products, p)
		return true
	})

	seen := make(map[string]int)
	add := func(text, target string) {
		if idx, ok := seen[text]; ok {
			obs.Clickables[idx].Target = target
			return
		}
		seen[text] = len(obs.Clickables)
		obs.Clickables = append(obs.Clickables, Clickable{Text: text, Target: target})
	}

	for _, p := range obs.Products {
		add(p.ID, "/item/"+p.ID)
	}
	doc.Find("button.btn, button.product-link, a.btn, a.product-link").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "a" {
			if href, ok := s.Attr("href"); ok && href != "" {
				add(text, href)
			}
			return
		}
		add(text, ButtonClick)
	})

	doc.Find("div.cart-item").Each(func(_ int, s *goquery.Selection) {
		obs.CartItems = append(obs.CartItems, Product{
			ID:    s.AttrOr("data-id", ""),
			Title: strings.TrimSpace(s.Find(".cart-item-title").First().Text()),
			Price: ParsePrice(s.Find(".cart-item-price").First().Text()),
		})
	})

	obs.Section = strings.TrimSpace(doc.Find("div.item-section").First().Text())

	input := doc.Find("input[name=search_query]").First()
	obs.HasSearchBar = input.Length() > 0
	obs.Query = strings.TrimSpace(input.AttrOr("value", ""))

	return obs, nil
}
