package ingest

import "strings"

// CategoryRule pairs a keyword set with the category label it assigns.
type CategoryRule struct {
	Label    string
	Keywords []string
}

// categoryRules is scanned in order; the first rule with any matching keyword
// wins. Rule order is deliberate (e.g. "screen protector" must hit
// Accessories before a looser rule could claim it) and is covered by tests.
var categoryRules = []CategoryRule{
	{
		Label: "Electronics",
		Keywords: []string{
			"phone", "laptop", "computer", "tablet", "tv",
			"electronics", "camera", "iphone", "samsung", "speaker", "radio",
		},
	},
	{
		Label: "Accessories",
		Keywords: []string{
			"case", "charger", "cable", "headphone", "earphone",
			"adapter", "cover", "screen protector",
		},
	},
	{
		Label: "Food & Beverage",
		Keywords: []string{
			"food", "meal", "lunch", "dinner", "breakfast",
			"restaurant", "cafe", "snack", "drink",
		},
	},
	{
		Label: "Services",
		Keywords: []string{
			"service", "repair", "maintenance", "consultation",
			"delivery", "shipping", "airtime",
		},
	},
}

// CategoryOther is the fallback label when no rule matches.
const CategoryOther = "Other"

// CategoryLabels returns every label the rule table can assign, in table
// order, with the fallback label last.
func CategoryLabels() []string {
	labels := make([]string, 0, len(categoryRules)+1)
	for _, rule := range categoryRules {
		labels = append(labels, rule.Label)
	}
	return append(labels, CategoryOther)
}

// Categorize assigns a category label from item/description text. It is pure
// and deterministic: a fixed rule table scanned in order, case-insensitive
// substring matching, "Other" when nothing matches. It never fails.
func Categorize(itemText, extraText string) string {
	text := strings.ToLower(itemText + " " + extraText)
	for _, rule := range categoryRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Label
			}
		}
	}
	return CategoryOther
}
