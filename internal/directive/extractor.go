// Package directive parses control directives the model embeds in reply
// text and strips them from the user-visible output.
//
// Grammar: a directive is a single-line bracketed tag anywhere in the
// reply body. Two kinds are recognized, case-sensitive:
//
//	[LEAD: name, email, phone, company, products, quantity, notes]
//	[ESCALATE: reason]
//
// The LEAD payload is a comma-separated field list in fixed order; empty
// fields are preserved as empty, not dropped. The ESCALATE payload is a
// free-text reason. Commas inside the reason are part of the reason.
//
// Malformed or unrecognized bracketed text is left untouched in the
// visible reply (fail-open). At most one directive per kind is honored
// per reply; later duplicates are stripped but ignored.
package directive

import (
	"regexp"
	"strings"

	"github.com/lumenworks/saleschat/internal/domain"
)

// Tags must stay on one line; [^\]\n] keeps a stray open bracket from
// swallowing the rest of the reply.
var tagPattern = regexp.MustCompile(`\[(LEAD|ESCALATE):([^\]\n]*)\]`)

// leadFieldCount is the fixed arity of the LEAD payload.
const leadFieldCount = 7

// Extract parses directives out of raw model output. It returns the reply
// with every well-formed tag removed (including surrounding stray
// whitespace) and the honored directives in order of appearance.
func Extract(raw string) (string, []domain.Directive) {
	matches := tagPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return raw, nil
	}

	var (
		directives []domain.Directive
		seen       = map[domain.DirectiveKind]bool{}
		cleaned    strings.Builder
		last       int
		stripped   bool
	)

	for _, m := range matches {
		start, end := m[0], m[1]
		kind := domain.DirectiveKind(raw[m[2]:m[3]])
		payload := raw[m[4]:m[5]]

		d, ok := parse(kind, payload)
		if !ok {
			// Fail-open: leave malformed tags visible.
			cleaned.WriteString(raw[last:end])
			last = end
			continue
		}

		cleaned.WriteString(raw[last:start])
		last = end
		stripped = true

		if seen[kind] {
			// Duplicate of an already-honored kind: strip but ignore.
			continue
		}
		seen[kind] = true
		directives = append(directives, d)
	}
	cleaned.WriteString(raw[last:])

	// Nothing removed (every tag was malformed): the reply goes out
	// byte-for-byte as the model wrote it.
	if !stripped {
		return raw, nil
	}

	return tidy(cleaned.String()), directives
}

func parse(kind domain.DirectiveKind, payload string) (domain.Directive, bool) {
	switch kind {
	case domain.DirectiveLead:
		fields := strings.Split(payload, ",")
		if len(fields) != leadFieldCount {
			return domain.Directive{}, false
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		return domain.Directive{
			Kind: domain.DirectiveLead,
			Lead: &domain.LeadPayload{
				Name:     fields[0],
				Email:    fields[1],
				Phone:    fields[2],
				Company:  fields[3],
				Products: fields[4],
				Quantity: fields[5],
				Notes:    fields[6],
			},
		}, true
	case domain.DirectiveEscalate:
		reason := strings.TrimSpace(payload)
		if reason == "" {
			return domain.Directive{}, false
		}
		return domain.Directive{
			Kind:   domain.DirectiveEscalate,
			Reason: reason,
		}, true
	default:
		return domain.Directive{}, false
	}
}

var multiSpace = regexp.MustCompile(`[ \t]{2,}`)

// tidy collapses the whitespace holes left by stripped tags.
func tidy(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
