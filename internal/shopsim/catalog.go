// Package shopsim serves a small WebShop-compatible store for local runs and tests.
package shopsim

import (
	"fmt"
	"os"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Item is one catalog entry.
type Item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Price       float64  `json:"price"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
}

// Catalog is an ordered, searchable product list.
type Catalog struct {
	items []Item
	byID  map[string]Item
}

func NewCatalog(items []Item) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Item, len(items))}
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("catalog item %q has no id", it.Title)
		}
		if _, dup := c.byID[it.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog id %s", it.ID)
		}
		c.byID[it.ID] = it
		c.items = append(c.items, it)
	}
	return c, nil
}

// LoadCatalog reads a JSON array of items.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var items []Item
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return NewCatalog(items)
}

func (c *Catalog) Get(id string) (Item, bool) {
	it, ok := c.byID[id]
	return it, ok
}

// Search ranks items by how many query terms appear in the title. Items
// matching no term are dropped; ties keep catalog order.
func (c *Catalog) Search(query string) []Item {
	terms := strings.Fields(strings.ToLower(query))
	type hit struct {
		item  Item
		score int
	}
	var hits []hit
	for _, it := range c.items {
		title := strings.ToLower(it.Title)
		score := 0
		for _, t := range terms {
			if strings.Contains(title, strings.Trim(t, "'\",.$")) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{it, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]Item, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}

// DefaultCatalog covers the demo goals of the tree search command.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog([]Item{
		{ID: "B0CAM001", Title: "ProView Durable Camera 4K Waterproof", Price: 129.99, Description: "Rugged action camera.", Features: []string{"4K", "Waterproof to 30m"}},
		{ID: "B0CAM002", Title: "SnapShot Durable Camera Compact", Price: 95.00, Description: "Shock resistant compact camera.", Features: []string{"20MP", "Drop tested"}},
		{ID: "B0CAM003", Title: "KidCam Digital Camera", Price: 39.99, Description: "Toy camera for children."},
		{ID: "B0SHO001", Title: "Nike Men's Walking Shoes Size 10", Price: 89.50, Description: "Breathable mesh walking shoes.", Features: []string{"Size 10", "Men's"}},
		{ID: "B0SHO002", Title: "Adidas Men's Running Shoes Size 10", Price: 79.00},
		{ID: "B0SHO003", Title: "Nike Women's Walking Shoes Size 8", Price: 85.00},
		{ID: "B0LAP001", Title: "UltraBook 14 Laptop 16GB RAM 512GB SSD", Price: 749.00, Features: []string{"16GB RAM"}},
		{ID: "B0LAP002", Title: "BudgetBook Laptop 8GB RAM", Price: 399.00},
		{ID: "B0LAP003", Title: "WorkStation Laptop 32GB RAM", Price: 1299.00},
		{ID: "B0LAP004", Title: "StudentPro Laptop 16GB RAM 256GB SSD", Price: 619.00, Features: []string{"16GB RAM"}},
		{ID: "B0HEA001", Title: "Noise Cancelling Headphones Wireless", Price: 59.99},
		{ID: "B0MUG001", Title: "Ceramic Coffee Mug Set of 4", Price: 24.95},
	})
	return c
}
