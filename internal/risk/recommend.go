package risk

import "strings"

type recommendationRule struct {
	keyword string
	text    string
}

// Rules are evaluated in order and the first keyword found in the label
// wins, so "Corn_Blight_Spot" resolves to the blight treatment.
var recommendationRules = []recommendationRule{
	{keyword: "rust", text: "Spray Mancozeb 75% WP @ 2g/L. Avoid overhead irrigation."},
	{keyword: "blight", text: "Apply Copper Oxychloride 50% WP @ 3g/L."},
	{keyword: "blast", text: "Use Tricyclazole 75% WP @ 0.6g/L."},
	{keyword: "spot", text: "Apply Chlorothalonil 75% WP @ 2g/L."},
	{keyword: "mildew", text: "Spray Sulfur 80% WP @ 2.5g/L."},
	{keyword: "healthy", text: "No action needed. Continue regular monitoring."},
}

// FallbackRecommendation is returned when no keyword matches the label.
const FallbackRecommendation = "Consult your local KVK (Krishi Vigyan Kendra)."

// Recommend returns the treatment advice for a disease label. Matching is a
// case-insensitive substring test. The rule table is keyed on label only;
// the tier is part of the signature so forecast callers can pass it through.
func Recommend(label string, _ Level) string {
	lower := strings.ToLower(label)
	for _, rule := range recommendationRules {
		if strings.Contains(lower, rule.keyword) {
			return rule.text
		}
	}
	return FallbackRecommendation
}
