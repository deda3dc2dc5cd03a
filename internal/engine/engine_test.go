package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lumenworks/saleschat/internal/attachment"
	"github.com/lumenworks/saleschat/internal/dispatch"
	"github.com/lumenworks/saleschat/internal/domain"
	"github.com/lumenworks/saleschat/internal/model"
	"github.com/lumenworks/saleschat/internal/profile"
	"github.com/lumenworks/saleschat/internal/prompt"
	"github.com/lumenworks/saleschat/internal/storage"
	"github.com/lumenworks/saleschat/internal/storage/memory"
)

type fakeModel struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []*model.Request
}

func (f *fakeModel) Complete(_ context.Context, req *model.Request) (*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	reply := "Happy to help with your lighting project."
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	return fakeResponse(reply), nil
}

func fakeResponse(text string) *model.Response {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": text}},
		},
	})
	var r model.Response
	_ = json.Unmarshal(raw, &r)
	return &r
}

type captureSink struct {
	name string

	mu       sync.Mutex
	payloads []any
}

func (c *captureSink) Name() string { return c.name }

func (c *captureSink) Notify(_ context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

type fixture struct {
	engine      *Engine
	model       *fakeModel
	store       *memory.Store
	profiles    *profile.Store
	leads       *captureSink
	escalations *captureSink
	dispatcher  *dispatch.Dispatcher
}

func newFixture(t *testing.T, mdl *fakeModel) *fixture {
	t.Helper()

	store := memory.New()
	profiles := profile.NewStore()
	leads := &captureSink{name: "leads"}
	escalations := &captureSink{name: "escalations"}
	d := dispatch.New(leads, escalations, store, nil)

	var n atomic.Int64
	eng := New(Options{
		Attachments: attachment.New(4, 1<<20, nil),
		Profiles:    profiles,
		Assembler:   prompt.New(prompt.DefaultPersona, prompt.DefaultKnowledgeBase, "gpt-4o", 20, 8000),
		Model:       mdl,
		Dispatcher:  d,
		Store:       store,
		ModelName:   "gpt-4o",
		MaxTokens:   512,
		IdleTimeout: time.Hour,
		NewSessionID: func() string {
			return fmt.Sprintf("sess_test_%d", n.Add(1))
		},
	})

	return &fixture{engine: eng, model: mdl, store: store, profiles: profiles, leads: leads, escalations: escalations, dispatcher: d}
}

func TestHandleTurn_NewSession(t *testing.T) {
	fx := newFixture(t, &fakeModel{})

	resp, err := fx.engine.HandleTurn(context.Background(), &domain.ChatRequest{
		Message: "Do you carry high bay fixtures for a warehouse?",
	})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	if resp.SessionID == "" {
		t.Error("expected a generated session id")
	}
	if resp.State != domain.StateActive {
		t.Errorf("expected state active, got %s", resp.State)
	}
	if resp.Reply == "" {
		t.Error("expected a non-empty reply")
	}
	if resp.LeadCollected || resp.Escalate {
		t.Error("expected no directives on a plain reply")
	}

	rec, err := fx.store.GetSession(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(rec.Turns) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(rec.Turns))
	}
	if rec.Turns[0].Role != domain.RoleVisitor || rec.Turns[1].Role != domain.RoleAssistant {
		t.Errorf("unexpected turn roles: %s, %s", rec.Turns[0].Role, rec.Turns[1].Role)
	}
}

func TestHandleTurn_EmptyRequest(t *testing.T) {
	fx := newFixture(t, &fakeModel{})

	_, err := fx.engine.HandleTurn(context.Background(), &domain.ChatRequest{})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeInvalidRequest {
		t.Fatalf("expected invalid_request error, got %v", err)
	}
}

func TestHandleTurn_SessionContinuity(t *testing.T) {
	fx := newFixture(t, &fakeModel{})
	ctx := context.Background()

	first, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{Message: "Hi, I manage a warehouse."})
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	_, err = fx.engine.HandleTurn(ctx, &domain.ChatRequest{
		SessionID: first.SessionID,
		Message:   "What wattage would you suggest?",
	})
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}

	// The second model call must carry the first exchange.
	if len(fx.model.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(fx.model.requests))
	}
	second := fx.model.requests[1]
	var sawFirst bool
	for _, m := range second.Messages {
		if text, ok := m.Content.(string); ok && strings.Contains(text, "I manage a warehouse") {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Error("second model call is missing the first visitor turn")
	}
}

func TestHandleTurn_LeadCapture(t *testing.T) {
	fx := newFixture(t, &fakeModel{
		replies: []string{"I'll have our team send a quote right over. [LEAD: Dana Reyes, dana@acme.example, , Acme Logistics, UFO high bay 150W, 40, warehouse retrofit]"},
	})
	ctx := context.Background()

	resp, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{
		Message: "I'm Dana Reyes at Acme Logistics, dana@acme.example. We need 40 of the 150W high bays.",
	})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	if !resp.LeadCollected {
		t.Fatal("expected lead_collected")
	}
	if strings.Contains(resp.Reply, "[LEAD") {
		t.Errorf("lead tag leaked into reply: %q", resp.Reply)
	}
	if resp.State != domain.StateLeadCaptured {
		t.Errorf("expected state lead_captured, got %s", resp.State)
	}
	if resp.Lead == nil || resp.Lead.Email != "dana@acme.example" {
		t.Fatalf("unexpected lead payload: %+v", resp.Lead)
	}

	fx.dispatcher.Wait()
	if fx.leads.count() != 1 {
		t.Fatalf("expected 1 lead notification, got %d", fx.leads.count())
	}
	if len(fx.store.Leads()) != 1 {
		t.Fatalf("expected 1 persisted lead, got %d", len(fx.store.Leads()))
	}
}

func TestHandleTurn_LeadGuardDropsWithoutContact(t *testing.T) {
	fx := newFixture(t, &fakeModel{
		replies: []string{"A quote is on its way. [LEAD: , , , , panel lights, 10, ]"},
	})

	resp, err := fx.engine.HandleTurn(context.Background(), &domain.ChatRequest{
		Message: "I want 10 panel lights.",
	})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	if resp.LeadCollected {
		t.Error("lead without a contact channel must not be honored")
	}
	if strings.Contains(resp.Reply, "[LEAD") {
		t.Error("tag must still be stripped from the reply")
	}
	if resp.State != domain.StateActive {
		t.Errorf("expected state active, got %s", resp.State)
	}

	fx.dispatcher.Wait()
	if fx.leads.count() != 0 {
		t.Errorf("expected no lead notifications, got %d", fx.leads.count())
	}
}

func TestHandleTurn_LeadBackfillFromProfile(t *testing.T) {
	fx := newFixture(t, &fakeModel{
		replies: []string{
			"Noted, thanks Dana.",
			"I'll get that quote started. [LEAD: , , , , troffer retrofit kit, 200, ]",
		},
	})
	ctx := context.Background()

	first, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{
		Message: "Hi, I'm Dana.",
		Contact: &domain.ContactFields{Name: "Dana Reyes", Email: "dana@acme.example"},
	})
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	resp, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{
		SessionID: first.SessionID,
		Message:   "Go ahead with 200 retrofit kits.",
	})
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}

	if !resp.LeadCollected {
		t.Fatal("expected lead honored after profile backfill")
	}
	if resp.Lead.Email != "dana@acme.example" || resp.Lead.Name != "Dana Reyes" {
		t.Errorf("lead not backfilled from profile: %+v", resp.Lead)
	}
}

func TestHandleTurn_Escalation(t *testing.T) {
	fx := newFixture(t, &fakeModel{
		replies: []string{"Let me get a specialist for you. [ESCALATE: visitor asked for a human]"},
	})

	resp, err := fx.engine.HandleTurn(context.Background(), &domain.ChatRequest{
		Message: "Can I talk to a real person?",
	})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	if !resp.Escalate || resp.EscalateReason != "visitor asked for a human" {
		t.Fatalf("unexpected escalation fields: %+v", resp)
	}
	if resp.State != domain.StateEscalated {
		t.Errorf("expected state escalated, got %s", resp.State)
	}

	fx.dispatcher.Wait()
	if fx.escalations.count() != 1 {
		t.Fatalf("expected 1 escalation notification, got %d", fx.escalations.count())
	}
}

func TestHandleTurn_ModelFailureFallsBack(t *testing.T) {
	fx := newFixture(t, &fakeModel{err: domain.ErrModel("upstream timeout")})

	resp, err := fx.engine.HandleTurn(context.Background(), &domain.ChatRequest{
		Message: "Hello?",
	})
	if err != nil {
		t.Fatalf("model failure must not surface as a turn error: %v", err)
	}

	if resp.Reply != defaultFallbackReply {
		t.Errorf("expected fallback reply, got %q", resp.Reply)
	}
	if resp.LeadCollected || resp.Escalate {
		t.Error("no directives may fire on a failed model call")
	}
	if resp.State != domain.StateNew {
		t.Errorf("failed first round-trip must not activate the session, got %s", resp.State)
	}
}

func TestHandleTurn_ClosedSessionRejected(t *testing.T) {
	fx := newFixture(t, &fakeModel{})
	ctx := context.Background()

	resp, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if err := fx.engine.Close(ctx, resp.SessionID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err = fx.engine.HandleTurn(ctx, &domain.ChatRequest{
		SessionID: resp.SessionID,
		Message:   "still there?",
	})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeInvalidRequest {
		t.Fatalf("expected invalid_request for a closed session, got %v", err)
	}
}

func TestHandleTurn_AtMostOncePerTurn(t *testing.T) {
	fx := newFixture(t, &fakeModel{
		replies: []string{
			"Quote incoming. [LEAD: Dana, dana@acme.example, , , high bays, 40, ]",
			"Anything else? [LEAD: Dana, dana@acme.example, , , high bays, 40, ]",
		},
	})
	ctx := context.Background()

	first, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{Message: "40 high bays, dana@acme.example"})
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	if _, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{
		SessionID: first.SessionID,
		Message:   "Thanks!",
	}); err != nil {
		t.Fatalf("second turn failed: %v", err)
	}

	// Distinct turns dispatch independently even with identical payloads.
	fx.dispatcher.Wait()
	if fx.leads.count() != 2 {
		t.Fatalf("expected 2 lead notifications across 2 turns, got %d", fx.leads.count())
	}
}

func TestSweepIdle(t *testing.T) {
	fx := newFixture(t, &fakeModel{})
	ctx := context.Background()

	resp, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	// Fresh activity: nothing to sweep.
	if n, err := fx.engine.SweepIdle(ctx); err != nil || n != 0 {
		t.Fatalf("expected no sweeps, got n=%d err=%v", n, err)
	}

	fx.store.SetLastActivity(resp.SessionID, time.Now().Add(-2*time.Hour))

	n, err := fx.engine.SweepIdle(ctx)
	if err != nil {
		t.Fatalf("SweepIdle failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}

	rec, err := fx.store.GetSession(ctx, resp.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec.State != domain.StateClosed {
		t.Errorf("expected swept session to be closed, got %s", rec.State)
	}
}

func TestClose_ReleasesSessionLock(t *testing.T) {
	fx := newFixture(t, &fakeModel{})
	ctx := context.Background()

	resp, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	fx.engine.mu.Lock()
	_, held := fx.engine.locks[resp.SessionID]
	fx.engine.mu.Unlock()
	if !held {
		t.Fatal("expected a lock entry for the active session")
	}

	if err := fx.engine.Close(ctx, resp.SessionID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	fx.engine.mu.Lock()
	_, held = fx.engine.locks[resp.SessionID]
	fx.engine.mu.Unlock()
	if held {
		t.Error("lock entry must be pruned when the session closes")
	}
}

func TestClose_UnknownSession(t *testing.T) {
	fx := newFixture(t, &fakeModel{})

	err := fx.engine.Close(context.Background(), "sess_missing")
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestHandleTurn_AttachmentWarnings(t *testing.T) {
	fx := newFixture(t, &fakeModel{})

	resp, err := fx.engine.HandleTurn(context.Background(), &domain.ChatRequest{
		Message: "Here's our floor plan.",
		Inputs: []domain.RawInput{
			{MIMEType: "application/zip", Filename: "plans.zip", Data: "UEsDBA=="},
		},
	})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if len(resp.Warnings) != 1 {
		t.Fatalf("expected 1 warning for the dropped attachment, got %v", resp.Warnings)
	}
}

func TestHandleTurn_ConcurrentSameSession(t *testing.T) {
	fx := newFixture(t, &fakeModel{
		replies: []string{
			"Quote coming. [LEAD: Dana, dana@acme.example, , , high bays, 40, ]",
			"Second quote coming. [LEAD: Dana, dana@acme.example, , , wall packs, 12, ]",
		},
	})
	ctx := context.Background()

	msgs := []string{
		"You can reach me at 555-123-4567, I need 40 high bays.",
		"Email dana@acme.example about 12 wall packs too.",
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(msgs))
	for _, msg := range msgs {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			_, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{
				SessionID: "sess_shared",
				Message:   m,
			})
			errs <- err
		}(msg)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent same-session turn failed: %v", err)
		}
	}

	rec, err := fx.store.GetSession(ctx, "sess_shared")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(rec.Turns) != 4 {
		t.Fatalf("expected 4 persisted turns, got %d", len(rec.Turns))
	}
	for i, turn := range rec.Turns {
		want := domain.RoleVisitor
		if i%2 == 1 {
			want = domain.RoleAssistant
		}
		if turn.Role != want {
			t.Errorf("turn %d role = %s, want %s", i, turn.Role, want)
		}
	}

	// Both turns' scanned signals must land in the one profile.
	prof := fx.profiles.Get("sess_shared")
	if prof.Phone == "" || prof.Email == "" {
		t.Errorf("profile missing merged signals: phone=%q email=%q", prof.Phone, prof.Email)
	}

	// Each turn's lead lands on a distinct turn index, so both dispatch.
	fx.dispatcher.Wait()
	if fx.leads.count() != 2 {
		t.Fatalf("expected 2 lead notifications, got %d", fx.leads.count())
	}
}

func TestHandleTurn_ConcurrentSessions(t *testing.T) {
	fx := newFixture(t, &fakeModel{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.engine.HandleTurn(ctx, &domain.ChatRequest{Message: "need office troffers"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent turn failed: %v", err)
		}
	}
}

var _ storage.SessionStore = (*memory.Store)(nil)
