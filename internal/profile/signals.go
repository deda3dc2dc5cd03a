package profile

import (
	"regexp"
	"strings"

	"github.com/lumenworks/saleschat/internal/domain"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\-\s().]{7,}\d`)
)

// roleKeywords maps declared-position keywords to a normalized role label.
// Evaluated in order; first match wins.
var roleKeywords = []struct {
	keywords []string
	role     string
}{
	{[]string{"maintenance", "facilities", "facility"}, "facilities"},
	{[]string{"procurement", "purchasing", "buyer"}, "procurement"},
	{[]string{"engineer", "engineering", "technical", "electrician"}, "engineering"},
	{[]string{"cfo", "finance", "controller", "accounting"}, "finance"},
	{[]string{"general manager", "owner", "ceo", "president", "director"}, "general_manager"},
}

var priceKeywords = []string{"cheap", "cheapest", "budget", "discount", "price", "cost", "expensive", "afford"}

var painPointKeywords = []struct {
	keyword string
	pain    string
}{
	{"energy bill", "high energy costs"},
	{"electric bill", "high energy costs"},
	{"energy cost", "high energy costs"},
	{"keep burning out", "frequent fixture failures"},
	{"keeps burning out", "frequent fixture failures"},
	{"burnt out", "frequent fixture failures"},
	{"too dark", "insufficient light levels"},
	{"dim", "insufficient light levels"},
	{"flicker", "flickering fixtures"},
	{"maintenance cost", "high maintenance burden"},
	{"hard to reach", "difficult fixture access"},
}

var interestKeywords = []string{"quote", "pricing", "how much", "lead time", "in stock", "purchase", "order", "buy"}

// ScanText derives sparse profile signals from a visitor message. This is
// heuristic supplement to whatever the model infers; it never clears a
// field, only proposes values.
func ScanText(text string) domain.ProfileSignals {
	var sig domain.ProfileSignals
	lower := strings.ToLower(text)

	if m := emailPattern.FindString(text); m != "" {
		sig.Email = m
	}
	if m := phonePattern.FindString(text); m != "" {
		sig.Phone = strings.TrimSpace(m)
	}

	for _, rk := range roleKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(lower, kw) {
				sig.Role = rk.role
				break
			}
		}
		if sig.Role != "" {
			break
		}
	}

	for _, kw := range priceKeywords {
		if strings.Contains(lower, kw) {
			sig.PriceSensitive = true
			break
		}
	}

	for _, pk := range painPointKeywords {
		if strings.Contains(lower, pk.keyword) {
			sig.PainPoints = append(sig.PainPoints, pk.pain)
		}
	}

	for _, kw := range interestKeywords {
		if strings.Contains(lower, kw) {
			sig.Interest = domain.InterestHigh
			break
		}
	}

	return sig
}

// SignalsFromContact converts explicitly supplied contact fields into
// profile signals. Explicit fields are treated as confirmed corrections.
func SignalsFromContact(c *domain.ContactFields) domain.ProfileSignals {
	if c == nil {
		return domain.ProfileSignals{}
	}
	return domain.ProfileSignals{
		Name:             c.Name,
		Email:            c.Email,
		Phone:            c.Phone,
		Company:          c.Company,
		CorrectedContact: true,
	}
}

// SignalsFromIntel converts a company intelligence result into profile
// signals.
func SignalsFromIntel(intel *domain.CompanyIntel) domain.ProfileSignals {
	if intel == nil {
		return domain.ProfileSignals{}
	}
	return domain.ProfileSignals{
		Industry:         intel.Industry,
		CompanySizeClass: intel.SizeClass,
		PainPoints:       intel.PainPoints,
	}
}
