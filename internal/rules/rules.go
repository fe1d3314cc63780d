// Package rules assigns a document category from extracted text. The
// classifier is a pure function over a closed category set: the same text
// always yields the same category, and text matching no rule falls back to
// the configured default instead of failing.
package rules

import (
	"strings"

	"golang.org/x/text/cases"
)

// Categories in the closed set.
const (
	CategoryInvoice      = "INVOICE"
	CategoryReceipt      = "RECEIPT"
	CategoryContract     = "CONTRACT"
	CategoryUnclassified = "UNCLASSIFIED"
)

type rule struct {
	category string
	keywords []string
}

// Rules are evaluated in order; the first keyword hit wins.
var orderedRules = []rule{
	{category: CategoryInvoice, keywords: []string{"invoice"}},
	{category: CategoryReceipt, keywords: []string{"receipt"}},
	{category: CategoryContract, keywords: []string{"agreement", "contract"}},
}

// Classifier matches folded keywords against document text.
type Classifier struct {
	defaultCategory string
	folder          cases.Caser
}

// New builds a classifier. An empty default falls back to UNCLASSIFIED.
func New(defaultCategory string) *Classifier {
	if strings.TrimSpace(defaultCategory) == "" {
		defaultCategory = CategoryUnclassified
	}
	return &Classifier{
		defaultCategory: strings.ToUpper(strings.TrimSpace(defaultCategory)),
		folder:          cases.Fold(),
	}
}

// Classify returns the category for the given text. It never errors;
// unmatched or empty text gets the default category.
func (c *Classifier) Classify(text string) string {
	folded := c.folder.String(text)
	for _, r := range orderedRules {
		for _, keyword := range r.keywords {
			if strings.Contains(folded, keyword) {
				return r.category
			}
		}
	}
	return c.defaultCategory
}

// Categories returns every category the classifier can produce, default
// included.
func (c *Classifier) Categories() []string {
	out := make([]string, 0, len(orderedRules)+1)
	for _, r := range orderedRules {
		out = append(out, r.category)
	}
	for _, existing := range out {
		if existing == c.defaultCategory {
			return out
		}
	}
	return append(out, c.defaultCategory)
}
