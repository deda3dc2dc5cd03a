package domain

// Tone labels the register the assistant should take.
type Tone string

const (
	ToneBalanced     Tone = "balanced"
	ToneConsultative Tone = "consultative"
	ToneDirect       Tone = "direct"
)

// Strategy is the derived set of conversational parameters computed from a
// client profile. It is a value object: recomputed on every turn, never
// stored and never mutated in place.
type Strategy struct {
	Tone         Tone
	Priorities   []string
	Tactics      []string
	RoleGuidance string
}

// CompanyIntel is the best-effort result of a company intelligence lookup.
type CompanyIntel struct {
	Industry   string   `json:"industry,omitempty"`
	SizeClass  string   `json:"size_class,omitempty"` // "small", "mid", "large"
	PainPoints []string `json:"pain_points,omitempty"`
}
