package experiment

import "sort"

// TestTemplate is a predefined experiment shape for the optimizations
// teams run over and over. Creating from a template copies variations,
// metrics and duration into a fresh draft.
type TestTemplate struct {
	Name          string
	Type          string
	Variations    []Variation
	Metrics       []string
	PrimaryMetric string
	DurationDays  int
}

var testTemplates = map[string]TestTemplate{
	"landing_page": {
		Name: "Landing Page Optimization",
		Type: "conversion",
		Variations: []Variation{
			{ID: "control", Name: "Original Landing Page", Description: "Current landing page design"},
			{ID: "variant_a", Name: "Simplified Hero Section", Description: "Cleaner hero with focused CTA",
				Changes: []string{"hero_simplification", "prominent_cta", "reduced_text"}},
			{ID: "variant_b", Name: "Video Background", Description: "Hero with background video",
				Changes: []string{"video_background", "overlay_text", "animated_cta"}},
		},
		Metrics:       []string{"conversion_rate", "bounce_rate", "time_on_page"},
		PrimaryMetric: "conversion_rate",
		DurationDays:  14,
	},
	"signup_flow": {
		Name: "Signup Flow Optimization",
		Type: "conversion",
		Variations: []Variation{
			{ID: "control", Name: "Multi-Step Signup", Description: "Current 3-step signup process"},
			{ID: "variant_a", Name: "Single-Step Signup", Description: "All fields on one page",
				Changes: []string{"single_step", "progress_removed", "compact_form"}},
			{ID: "variant_b", Name: "Social Signup First", Description: "Social login options prominent",
				Changes: []string{"social_first", "email_secondary", "oauth_prominent"}},
		},
		Metrics:       []string{"signup_completion_rate", "form_abandonment", "time_to_complete"},
		PrimaryMetric: "signup_completion_rate",
		DurationDays:  10,
	},
	"pricing_page": {
		Name: "Pricing Strategy",
		Type: "conversion",
		Variations: []Variation{
			{ID: "control", Name: "Three-Tier Pricing", Description: "Basic, Pro, Premium tiers"},
			{ID: "variant_a", Name: "Freemium Model", Description: "Free tier with premium upgrades",
				Changes: []string{"free_tier_added", "feature_limitations", "upgrade_prompts"}},
			{ID: "variant_b", Name: "Single Premium Tier", Description: "One comprehensive paid plan",
				Changes: []string{"simplified_pricing", "all_features_included", "clear_value_prop"}},
		},
		Metrics:       []string{"conversion_rate", "plan_selection", "revenue_per_visitor"},
		PrimaryMetric: "conversion_rate",
		DurationDays:  28,
	},
}

// Template looks up a predefined experiment template by key.
func Template(key string) (TestTemplate, bool) {
	t, ok := testTemplates[key]
	return t, ok
}

// TemplateKeys lists the available template keys, sorted.
func TemplateKeys() []string {
	keys := make([]string, 0, len(testTemplates))
	for k := range testTemplates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
