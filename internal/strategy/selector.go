// Package strategy derives conversational strategy from a client profile.
// Select is pure: no I/O, no randomness, so identical inputs always yield
// structurally identical strategies.
package strategy

import (
	"github.com/lumenworks/saleschat/internal/domain"
)

// Role guidance, first match on the normalized role label governs.
var roleGuidance = map[string]string{
	"facilities":      "Lead with reliability and rated lifetime. Emphasize reduced re-lamping labor, warranty terms, and fixtures rated for the environment (dust, moisture, vibration).",
	"procurement":     "Lead with unit pricing, volume tiers, and delivery. Be precise about lead times, stock levels, and payment terms.",
	"engineering":     "Lead with specifications: lumen output, efficacy, CRI, CCT options, mounting, and photometric data. Offer spec sheets and IES files.",
	"finance":         "Frame everything as return on investment: energy savings, payback period, maintenance cost avoidance, and available utility rebates.",
	"general_manager": "Frame in business impact: lower operating costs, better-lit workspaces, safety, and minimal disruption during installation.",
}

const defaultGuidance = "Balance product quality, energy savings, and value. Ask clarifying questions to uncover the visitor's role and application."

// Select computes the strategy for a profile and optional company intel.
// The axes (role, price sensitivity, company size) are independent; each
// contributes its own part of the result.
func Select(profile domain.ClientProfile, intel *domain.CompanyIntel) domain.Strategy {
	s := domain.Strategy{
		Tone:         domain.ToneBalanced,
		RoleGuidance: defaultGuidance,
	}

	// Role axis
	if g, ok := roleGuidance[profile.Role]; ok {
		s.RoleGuidance = g
	}

	// Price-sensitivity axis
	if profile.PriceSensitive {
		s.Priorities = append(s.Priorities,
			"demonstrate ROI and payback period",
			"surface volume discounts early",
		)
		s.Tactics = append(s.Tactics,
			"quantify energy savings in dollars per year",
			"offer tiered pricing for larger quantities",
		)
	} else {
		s.Priorities = append(s.Priorities,
			"emphasize build quality and certifications",
			"emphasize warranty and longevity",
		)
		s.Tactics = append(s.Tactics,
			"compare rated lifetime against legacy fixtures",
			"reference relevant case studies",
		)
	}

	// Company-size axis (intel is best-effort; absence changes nothing)
	sizeClass := profile.CompanySizeClass
	if intel != nil && intel.SizeClass != "" {
		sizeClass = intel.SizeClass
	}
	switch sizeClass {
	case "large":
		s.Tone = domain.ToneConsultative
		s.Tactics = append(s.Tactics, "propose a site assessment and phased rollout")
	case "small":
		s.Tone = domain.ToneDirect
		s.Tactics = append(s.Tactics, "recommend a specific fixture and close on a quote")
	}

	// High interest sharpens the close regardless of other axes.
	if profile.Interest == domain.InterestHigh {
		s.Priorities = append(s.Priorities, "move toward collecting contact details and quantities")
	}

	return s
}
