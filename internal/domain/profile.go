package domain

import (
	"strings"
	"time"
)

// InterestLevel is the inferred purchase interest of a visitor.
type InterestLevel string

const (
	InterestLow    InterestLevel = "low"
	InterestMedium InterestLevel = "medium"
	InterestHigh   InterestLevel = "high"
)

// ClientProfile is the evolving per-session record of inferred facts about
// the visitor. All fields are optional; absent is the zero value. Profiles
// are only ever merged, never overwritten wholesale.
type ClientProfile struct {
	SessionID string `json:"session_id"`

	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Role    string `json:"role,omitempty"`

	Industry         string        `json:"industry,omitempty"`
	CompanySizeClass string        `json:"company_size_class,omitempty"` // "small", "mid", "large"
	BudgetBand       string        `json:"budget_band,omitempty"`
	PriceSensitive   bool          `json:"price_sensitive,omitempty"`
	CommStyle        string        `json:"comm_style,omitempty"` // "analytical", "direct", "relationship"
	Interest         InterestLevel `json:"interest,omitempty"`

	// PainPoints is a growing set, deduplicated case-insensitively.
	PainPoints []string `json:"pain_points,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileSignals is a sparse partial profile inferred from a single turn.
// Zero-valued fields mean "no signal", not "clear the field".
type ProfileSignals struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Role    string

	Industry         string
	CompanySizeClass string
	BudgetBand       string
	PriceSensitive   bool
	CommStyle        string
	Interest         InterestLevel

	PainPoints []string

	// CorrectedContact marks Email/Phone as user-confirmed corrections,
	// allowing them to replace an existing non-empty value.
	CorrectedContact bool
}

// Merge folds signals into the profile. Scalar fields are filled only when
// currently empty, except email and phone which a confirmed correction may
// replace. Pain points are unioned with case-insensitive dedup. Merge is
// idempotent: applying the same signals twice equals applying them once.
func (p *ClientProfile) Merge(s ProfileSignals) {
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}

	fill(&p.Name, s.Name)
	fill(&p.Company, s.Company)
	fill(&p.Role, s.Role)
	fill(&p.Industry, s.Industry)
	fill(&p.CompanySizeClass, s.CompanySizeClass)
	fill(&p.BudgetBand, s.BudgetBand)
	fill(&p.CommStyle, s.CommStyle)

	if s.CorrectedContact {
		if s.Email != "" {
			p.Email = s.Email
		}
		if s.Phone != "" {
			p.Phone = s.Phone
		}
	} else {
		fill(&p.Email, s.Email)
		fill(&p.Phone, s.Phone)
	}

	if s.PriceSensitive {
		p.PriceSensitive = true
	}
	if interestRank(s.Interest) > interestRank(p.Interest) {
		p.Interest = s.Interest
	}

	for _, pp := range s.PainPoints {
		pp = strings.TrimSpace(pp)
		if pp == "" {
			continue
		}
		if !containsFold(p.PainPoints, pp) {
			p.PainPoints = append(p.PainPoints, pp)
		}
	}
}

// Empty reports whether no fact has been learned about the visitor yet.
func (p *ClientProfile) Empty() bool {
	return p.Name == "" && p.Email == "" && p.Phone == "" && p.Company == "" &&
		p.Role == "" && p.Industry == "" && p.CompanySizeClass == "" &&
		p.BudgetBand == "" && p.CommStyle == "" && p.Interest == "" &&
		len(p.PainPoints) == 0
}

func interestRank(l InterestLevel) int {
	switch l {
	case InterestLow:
		return 1
	case InterestMedium:
		return 2
	case InterestHigh:
		return 3
	default:
		return 0
	}
}

func containsFold(set []string, s string) bool {
	for _, v := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
