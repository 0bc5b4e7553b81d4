package memory

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule categories. Item categories are matched against responses by
// ExtractItems; the others drive DetectTour and Summarize.
const (
	CategoryTourKeywords = "tour_keywords"
	CategoryTourMarkers  = "tour_markers"
	CategorySummary      = "summary_markers"
	CategoryCables       = "cables"
	CategoryDevices      = "devices"
	CategoryBrands       = "brands"
	CategoryModels       = "models"
)

// Limits used when a Rules table leaves them unset.
const (
	DefaultTourLength      = 1000
	DefaultMaxSummaryLines = 8
)

// itemCategories is the order item vocabularies are scanned in.
var itemCategories = []string{CategoryCables, CategoryDevices, CategoryBrands, CategoryModels}

// Rules maps a category to its phrase set. Phrases are matched
// case-insensitively; item phrases must match on word boundaries.
type Rules struct {
	Categories map[string][]string `yaml:"categories"`

	// TourLength is the response length, in characters, above which a reply
	// counts as a tour.
	TourLength int `yaml:"tour_length"`
	// MaxSummaryLines caps the lines Summarize keeps.
	MaxSummaryLines int `yaml:"max_summary_lines"`

	items []*regexp.Regexp
	names []string
}

// DefaultRules returns the built-in heuristic tables.
func DefaultRules() *Rules {
	r := &Rules{
		Categories: map[string][]string{
			CategoryTourKeywords: {
				"tour", "show you", "inventory", "walk through", "walkthrough",
				"look around", "everything", "all my", "entire", "whole room", "scan",
			},
			CategoryTourMarkers: {
				"comprehensive inventory", "room tour", "complete inventory",
				"full inventory", "detailed inventory", "here's everything",
			},
			CategorySummary: {
				"inventory", "assessment", "observation", "i can see", "i notice",
				"items:", "condition",
			},
			CategoryCables: {
				"usb-c cable", "hdmi cable", "charging cable", "cable", "charger", "adapter",
			},
			CategoryDevices: {
				"laptop", "phone", "smartphone", "tablet", "monitor", "keyboard", "mouse",
				"headphones", "earbuds", "speaker", "router", "tv", "camera", "printer", "console",
			},
			CategoryBrands: {
				"apple", "samsung", "sony", "dell", "hp", "lenovo", "logitech", "microsoft",
				"google", "asus", "acer", "bose", "nintendo", "lg",
			},
			CategoryModels: {
				"iphone", "ipad", "macbook", "airpods", "galaxy", "pixel", "thinkpad",
				"surface", "playstation", "xbox", "switch",
			},
		},
		TourLength:      DefaultTourLength,
		MaxSummaryLines: DefaultMaxSummaryLines,
	}
	r.compile()
	return r
}

// LoadRules reads a YAML rules file and merges it over DefaultRules. A
// category present in the file replaces the built-in set for that category;
// absent categories keep their defaults.
//
//	categories:
//	  brands: [fairphone, framework]
//	tour_length: 1500
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var override Rules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}

	r := DefaultRules()
	for cat, phrases := range override.Categories {
		cleaned := make([]string, 0, len(phrases))
		for _, p := range phrases {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		r.Categories[cat] = cleaned
	}
	if override.TourLength > 0 {
		r.TourLength = override.TourLength
	}
	if override.MaxSummaryLines > 0 {
		r.MaxSummaryLines = override.MaxSummaryLines
	}
	r.compile()
	return r, nil
}

// compile builds one word-boundary pattern per item phrase, in category order.
func (r *Rules) compile() {
	r.items = nil
	r.names = nil
	seen := make(map[string]bool)
	for _, cat := range itemCategories {
		for _, phrase := range r.Categories[cat] {
			phrase = strings.ToLower(phrase)
			if seen[phrase] {
				continue
			}
			seen[phrase] = true
			r.items = append(r.items, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(phrase)+`\b`))
			r.names = append(r.names, phrase)
		}
	}
}

func (r *Rules) containsAny(category, text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range r.Categories[category] {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
