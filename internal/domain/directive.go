package domain

// DirectiveKind discriminates the control directives the model may embed
// in a reply.
type DirectiveKind string

const (
	DirectiveLead     DirectiveKind = "LEAD"
	DirectiveEscalate DirectiveKind = "ESCALATE"
)

// Directive is a structured side-effect command extracted from model
// output. Exactly one of Lead or Reason is populated depending on Kind.
type Directive struct {
	Kind   DirectiveKind
	Lead   *LeadPayload // set when Kind == DirectiveLead
	Reason string       // set when Kind == DirectiveEscalate
}
