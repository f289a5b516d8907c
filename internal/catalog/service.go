package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/salon-pos/internal/common"
)

var (
	// ErrServiceNotFound is returned for unknown or inactive service ids.
	ErrServiceNotFound = fmt.Errorf("service not found: %w", common.ErrNotFound)
	// ErrCategoryNotFound is returned for unknown category ids.
	ErrCategoryNotFound = fmt.Errorf("category not found: %w", common.ErrNotFound)
)

// Category groups services on the till.
type Category struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// Service is a bookable treatment with its list price.
type Service struct {
	ID              string          `yaml:"id" json:"id"`
	Name            string          `yaml:"name" json:"name"`
	Category        string          `yaml:"category" json:"category"`
	Price           decimal.Decimal `yaml:"-" json:"price"`
	DurationMinutes int             `yaml:"durationMinutes" json:"durationMinutes,omitempty"`
	Active          bool            `yaml:"-" json:"-"`
}

type seedService struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Category        string `yaml:"category"`
	Price           string `yaml:"price"`
	DurationMinutes int    `yaml:"durationMinutes"`
	Active          *bool  `yaml:"active"`
}

type seed struct {
	Categories []Category    `yaml:"categories"`
	Services   []seedService `yaml:"services"`
}

// Catalog is an immutable service list. Inactive services are kept for
// lookups by id but hidden from listings.
type Catalog struct {
	categories []Category
	labels     map[string]string
	services   []Service
	byID       map[string]int
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML. Prices are decimal strings.
func Parse(data []byte) (*Catalog, error) {
	var s seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	services := make([]Service, 0, len(s.Services))
	for _, raw := range s.Services {
		price, err := decimal.NewFromString(strings.TrimSpace(raw.Price))
		if err != nil {
			return nil, fmt.Errorf("service %q: price %q: %w", raw.ID, raw.Price, err)
		}
		active := raw.Active == nil || *raw.Active
		services = append(services, Service{
			ID:              raw.ID,
			Name:            raw.Name,
			Category:        raw.Category,
			Price:           price,
			DurationMinutes: raw.DurationMinutes,
			Active:          active,
		})
	}
	return New(s.Categories, services)
}

// New validates and indexes categories and services.
func New(categories []Category, services []Service) (*Catalog, error) {
	c := &Catalog{
		categories: make([]Category, 0, len(categories)),
		labels:     make(map[string]string, len(categories)),
		services:   make([]Service, 0, len(services)),
		byID:       make(map[string]int, len(services)),
	}
	for _, cat := range categories {
		if cat.ID == "" {
			return nil, fmt.Errorf("category id required")
		}
		if _, dup := c.labels[cat.ID]; dup {
			return nil, fmt.Errorf("category %q: duplicate id", cat.ID)
		}
		if cat.Label == "" {
			cat.Label = cat.ID
		}
		c.labels[cat.ID] = cat.Label
		c.categories = append(c.categories, cat)
	}
	for _, svc := range services {
		switch {
		case strings.TrimSpace(svc.ID) == "" || strings.TrimSpace(svc.Name) == "":
			return nil, fmt.Errorf("service %q: id and name required", svc.ID)
		case svc.Price.IsNegative():
			return nil, fmt.Errorf("service %q: price must not be negative", svc.ID)
		}
		if _, dup := c.byID[svc.ID]; dup {
			return nil, fmt.Errorf("service %q: duplicate id", svc.ID)
		}
		if svc.Category != "" {
			if _, ok := c.labels[svc.Category]; !ok {
				return nil, fmt.Errorf("service %q: unknown category %q", svc.ID, svc.Category)
			}
		}
		c.byID[svc.ID] = len(c.services)
		c.services = append(c.services, svc)
	}
	return c, nil
}

// Categories returns categories in seed order.
func (c *Catalog) Categories() []Category {
	return append([]Category(nil), c.categories...)
}

// Label returns the display label of a category.
func (c *Catalog) Label(category string) string {
	if l, ok := c.labels[category]; ok {
		return l
	}
	return category
}

// ServicesByCategory lists the active services of one category.
func (c *Catalog) ServicesByCategory(category string) ([]Service, error) {
	if _, ok := c.labels[category]; !ok {
		return nil, fmt.Errorf("%s: %w", category, ErrCategoryNotFound)
	}
	out := []Service{}
	for _, svc := range c.services {
		if svc.Active && svc.Category == category {
			out = append(out, svc)
		}
	}
	return out, nil
}

// Service looks up an active service by id.
func (c *Catalog) Service(_ context.Context, id string) (Service, error) {
	i, ok := c.byID[id]
	if !ok || !c.services[i].Active {
		return Service{}, fmt.Errorf("%s: %w", id, ErrServiceNotFound)
	}
	return c.services[i], nil
}

// Search returns active services across every category whose name contains
// query, ignoring case. Results are ordered by name.
func (c *Catalog) Search(query string) []Service {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []Service{}
	for _, svc := range c.services {
		if !svc.Active {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(svc.Name), q) {
			out = append(out, svc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
