package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/lumenworks/saleschat/internal/domain"
)

const (
	testPersona = "You are a test persona."
	testKB      = "- Test Fixture 100W: bright."
)

func TestAssemble_SectionOrder(t *testing.T) {
	a := New(testPersona, testKB, "gpt-4o", 10, 0)

	profile := domain.ClientProfile{Email: "ops@acme.com", Role: "facilities"}
	strat := domain.Strategy{Tone: domain.ToneBalanced, RoleGuidance: "Lead with reliability."}

	payload := a.Assemble(strat, profile, []domain.Turn{
		{Role: domain.RoleVisitor, Content: "hello"},
	})

	sys := payload.System
	idx := func(sub string) int {
		i := strings.Index(sys, sub)
		if i < 0 {
			t.Fatalf("system prompt missing section %q", sub)
		}
		return i
	}

	persona := idx(testPersona)
	intel := idx("WHAT WE KNOW ABOUT THIS VISITOR:")
	strategy := idx("CONVERSATION STRATEGY:")
	kb := idx("PRODUCT KNOWLEDGE:")
	rules := idx("OPERATIONAL RULES:")

	if !(persona < intel && intel < strategy && strategy < kb && kb < rules) {
		t.Errorf("sections out of order: persona=%d intel=%d strategy=%d kb=%d rules=%d",
			persona, intel, strategy, kb, rules)
	}

	if !strings.Contains(sys, "ops@acme.com") {
		t.Error("profile summary missing known email")
	}
	if !strings.Contains(sys, "[LEAD: name, email, phone, company, products, quantity, notes]") {
		t.Error("operational rules missing lead tag grammar")
	}
}

func TestAssemble_EmptyProfileOmitsSection(t *testing.T) {
	a := New(testPersona, testKB, "gpt-4o", 10, 0)

	payload := a.Assemble(domain.Strategy{Tone: domain.ToneBalanced}, domain.ClientProfile{}, nil)

	if strings.Contains(payload.System, "WHAT WE KNOW ABOUT THIS VISITOR:") {
		t.Error("empty profile should omit the client intelligence section")
	}
}

func TestAssemble_TurnWindowBound(t *testing.T) {
	a := New(testPersona, testKB, "gpt-4o", 3, 0)

	turns := make([]domain.Turn, 8)
	for i := range turns {
		turns[i] = domain.Turn{Role: domain.RoleVisitor, Content: fmt.Sprintf("message %d", i)}
	}

	payload := a.Assemble(domain.Strategy{}, domain.ClientProfile{}, turns)

	if len(payload.Turns) != 3 {
		t.Fatalf("window size = %d, want 3", len(payload.Turns))
	}
	if payload.Turns[2].Content != "message 7" {
		t.Errorf("last turn = %q, want most recent kept", payload.Turns[2].Content)
	}
}

func TestAssemble_TokenBudgetTrimsOldest(t *testing.T) {
	// A tiny budget forces trimming down to the current turn.
	a := New(testPersona, testKB, "gpt-4o", 10, 50)

	long := strings.Repeat("commercial LED lighting retrofit ", 40)
	turns := []domain.Turn{
		{Role: domain.RoleVisitor, Content: long},
		{Role: domain.RoleAssistant, Content: long},
		{Role: domain.RoleVisitor, Content: "current question"},
	}

	payload := a.Assemble(domain.Strategy{}, domain.ClientProfile{}, turns)

	if len(payload.Turns) != 1 {
		t.Fatalf("window size = %d, want 1 (budget trim)", len(payload.Turns))
	}
	if payload.Turns[0].Content != "current question" {
		t.Errorf("kept turn = %q, want the current visitor turn", payload.Turns[0].Content)
	}
}
