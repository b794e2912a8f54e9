package models

// Taxonomy is one labeled value inside a runtime-configurable controlled
// list. Categories are open: admins add values without a deploy, so nothing
// here is a compile-time enum.
type Taxonomy struct {
	ID        int64  `json:"id"`
	Category  string `json:"category"`
	Value     string `json:"value"`
	Label     string `json:"label"`
	SortOrder int    `json:"sortOrder"`
	IsActive  bool   `json:"-"`
}

// TaxonomyOption is the public projection used for UI labels and
// suggestions.
type TaxonomyOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// GroupTaxonomies buckets active taxonomy rows by category, preserving the
// store's sort order.
func GroupTaxonomies(items []Taxonomy) map[string][]TaxonomyOption {
	grouped := make(map[string][]TaxonomyOption)
	for _, t := range items {
		label := t.Label
		if label == "" {
			label = t.Value
		}
		grouped[t.Category] = append(grouped[t.Category], TaxonomyOption{Value: t.Value, Label: label})
	}
	return grouped
}
