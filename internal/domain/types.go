package domain

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleVisitor   Role = "visitor"
	RoleAssistant Role = "assistant"
)

// Turn is one message exchange unit within a session. Turns are immutable
// once appended; history is append-only.
type Turn struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`

	// Signals are derived post-hoc from the model response and are only
	// ever set on assistant turns.
	Signals *TurnSignals `json:"signals,omitempty"`
}

// TurnSignals carries display-only scores derived from a turn.
type TurnSignals struct {
	Sentiment  string  `json:"sentiment,omitempty"` // "positive", "neutral", "negative"
	Engagement float64 `json:"engagement,omitempty"`
}

// SessionState tracks the lifecycle of a chat session.
type SessionState string

const (
	StateNew          SessionState = "new"
	StateActive       SessionState = "active"
	StateLeadCaptured SessionState = "lead_captured"
	StateEscalated    SessionState = "escalated"
	StateClosed       SessionState = "closed"
)

// VisitorContext is optional page/browser context supplied with a turn.
type VisitorContext struct {
	Page      string `json:"page,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ContactFields are explicitly supplied visitor contact details. They are
// merged into the client profile ahead of any inferred signals.
type ContactFields struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// ChatRequest is the inbound per-turn payload.
type ChatRequest struct {
	SessionID string          `json:"session_id,omitempty"`
	Message   string          `json:"message"`
	History   []Turn          `json:"history,omitempty"`
	Context   *VisitorContext `json:"context,omitempty"`
	Contact   *ContactFields  `json:"contact,omitempty"`
	Inputs    []RawInput      `json:"inputs,omitempty"`
}

// ChatResponse is the outbound per-turn payload. Reply is the model text
// with all directive tags stripped.
type ChatResponse struct {
	SessionID      string       `json:"session_id"`
	Reply          string       `json:"reply"`
	State          SessionState `json:"state"`
	LeadCollected  bool         `json:"lead_collected,omitempty"`
	Lead           *LeadPayload `json:"lead,omitempty"`
	Escalate       bool         `json:"escalate,omitempty"`
	EscalateReason string       `json:"escalate_reason,omitempty"`
	Signals        *TurnSignals `json:"signals,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
}

// LeadPayload is the structured lead record handed to the lead sink.
type LeadPayload struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Company  string `json:"company,omitempty"`
	Products string `json:"products,omitempty"`
	Quantity string `json:"quantity,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// HasContactChannel reports whether the lead carries at least one way to
// reach the visitor. Leads without one are never dispatched.
func (l *LeadPayload) HasContactChannel() bool {
	return l.Email != "" || l.Phone != ""
}
