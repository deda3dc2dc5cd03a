// Package engine owns the conversation session state machine and runs the
// per-turn pipeline: attachment processing, profile merge, strategy
// selection, prompt assembly, the model call, directive extraction, and
// side-effect dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenworks/saleschat/internal/attachment"
	"github.com/lumenworks/saleschat/internal/directive"
	"github.com/lumenworks/saleschat/internal/dispatch"
	"github.com/lumenworks/saleschat/internal/domain"
	"github.com/lumenworks/saleschat/internal/intel"
	"github.com/lumenworks/saleschat/internal/model"
	"github.com/lumenworks/saleschat/internal/profile"
	"github.com/lumenworks/saleschat/internal/prompt"
	"github.com/lumenworks/saleschat/internal/storage"
	"github.com/lumenworks/saleschat/internal/strategy"
)

const defaultFallbackReply = "I'm having trouble connecting right now. You can reach our lighting team directly at sales@lumenworks.com or (800) 555-0140 and they'll take care of you."

// Options configures an Engine.
type Options struct {
	Attachments *attachment.Processor
	Profiles    *profile.Store
	Assembler   *prompt.Assembler
	Model       model.Completer
	Dispatcher  *dispatch.Dispatcher
	Store       storage.SessionStore
	Intel       intel.Looker // optional
	Logger      *slog.Logger

	ModelName     string
	MaxTokens     int
	FallbackReply string
	IdleTimeout   time.Duration

	// NewSessionID generates session ids; tests inject deterministic ids.
	NewSessionID func() string
}

// Engine processes chat turns. Turns for the same session are serialized
// through a per-session lock; distinct sessions proceed in parallel.
type Engine struct {
	opts Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FallbackReply == "" {
		opts.FallbackReply = defaultFallbackReply
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = func() string { return "sess_" + uuid.New().String() }
	}
	return &Engine{
		opts:  opts,
		locks: make(map[string]*sync.Mutex),
	}
}

// HandleTurn runs one visitor turn through the pipeline and returns the
// cleaned reply. Only input validation surfaces as an error; model and
// dispatch failures degrade to the fallback reply.
func (e *Engine) HandleTurn(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	if req == nil || (req.Message == "" && len(req.Inputs) == 0) {
		return nil, domain.ErrInvalidRequest("message or attachments required")
	}

	atts, warnings, err := e.opts.Attachments.Process(req.Inputs)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = e.opts.NewSessionID()
	}

	// The lock must cover the record read: a turn that loads the session
	// before a concurrent turn commits would reuse its turn index and
	// collide in the dispatcher's dedup.
	unlock := e.lockSession(sessionID)
	defer unlock()

	rec, err := e.openSession(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}

	// Profile merge: explicit contact fields first, then text heuristics.
	e.opts.Profiles.Merge(sessionID, profile.SignalsFromContact(req.Contact))
	prof := e.opts.Profiles.Merge(sessionID, profile.ScanText(req.Message))

	// Best-effort company intelligence; absence never blocks the turn.
	companyIntel := e.lookupIntel(ctx, prof.Company)
	if companyIntel != nil {
		prof = e.opts.Profiles.Merge(sessionID, profile.SignalsFromIntel(companyIntel))
	}

	strat := strategy.Select(prof, companyIntel)

	visitorTurn := domain.Turn{
		Role:        domain.RoleVisitor,
		Content:     req.Message,
		Attachments: atts,
		CreatedAt:   time.Now(),
	}
	if err := e.opts.Store.AppendTurn(ctx, sessionID, visitorTurn); err != nil {
		return nil, fmt.Errorf("failed to append visitor turn: %w", err)
	}
	turns := append(rec.Turns, visitorTurn)

	payload := e.opts.Assembler.Assemble(strat, prof, turns)

	reply, modelErr := e.callModel(ctx, payload)

	var (
		directives []domain.Directive
		clean      string
	)
	if modelErr != nil {
		e.opts.Logger.Warn("model call failed, using fallback reply",
			slog.String("session_id", sessionID),
			slog.String("error", modelErr.Error()),
		)
		clean = e.opts.FallbackReply
	} else {
		clean, directives = directive.Extract(reply)
		if clean == "" {
			clean = e.opts.FallbackReply
		}
	}

	directives = e.filterDirectives(sessionID, prof, directives)

	signals := deriveSignals(req.Message)
	assistantTurn := domain.Turn{
		Role:      domain.RoleAssistant,
		Content:   clean,
		CreatedAt: time.Now(),
		Signals:   signals,
	}
	if err := e.opts.Store.AppendTurn(ctx, sessionID, assistantTurn); err != nil {
		e.opts.Logger.Error("failed to append assistant turn",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	turns = append(turns, assistantTurn)
	turnIndex := len(turns) - 1

	state := e.advanceState(ctx, sessionID, rec.State, modelErr == nil, directives)

	if err := e.opts.Store.UpdateProfile(ctx, sessionID, prof); err != nil {
		e.opts.Logger.Error("failed to persist profile",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	resp := &domain.ChatResponse{
		SessionID: sessionID,
		Reply:     clean,
		State:     state,
		Signals:   signals,
		Warnings:  warnings,
	}

	// Fire-and-forget: the reply must not wait on sink delivery.
	for _, dir := range directives {
		e.opts.Dispatcher.Dispatch(sessionID, turnIndex, dir, prof, turns)

		switch dir.Kind {
		case domain.DirectiveLead:
			resp.LeadCollected = true
			resp.Lead = dir.Lead
		case domain.DirectiveEscalate:
			resp.Escalate = true
			resp.EscalateReason = dir.Reason
		}
	}

	return resp, nil
}

// openSession loads the session or creates one, seeding a fresh session
// with any widget-supplied history. Callers hold the session lock.
func (e *Engine) openSession(ctx context.Context, id string, req *domain.ChatRequest) (*storage.SessionRecord, error) {
	rec, err := e.opts.Store.GetSession(ctx, id)
	if err == nil {
		if rec.State == domain.StateClosed {
			return nil, domain.ErrInvalidRequest("session is closed").WithParam("session_id")
		}
		return rec, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rec = &storage.SessionRecord{ID: id, State: domain.StateNew}
	if err := e.opts.Store.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// The widget may hand us recent history it accumulated before the
	// first server round-trip.
	for _, t := range req.History {
		t.CreatedAt = time.Now()
		if err := e.opts.Store.AppendTurn(ctx, id, t); err != nil {
			return nil, fmt.Errorf("failed to seed history: %w", err)
		}
		rec.Turns = append(rec.Turns, t)
	}

	return rec, nil
}

func (e *Engine) callModel(ctx context.Context, payload prompt.Payload) (string, error) {
	req := &model.Request{
		Model:     e.opts.ModelName,
		Messages:  model.BuildMessages(payload.System, payload.Turns),
		MaxTokens: e.opts.MaxTokens,
	}

	resp, err := e.opts.Model.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.Text() == "" {
		return "", domain.ErrModel("empty model reply")
	}
	return resp.Text(), nil
}

func (e *Engine) lookupIntel(ctx context.Context, company string) *domain.CompanyIntel {
	if e.opts.Intel == nil || company == "" {
		return nil
	}
	ci, err := e.opts.Intel.Lookup(ctx, company)
	if err != nil {
		e.opts.Logger.Warn("company intel lookup failed",
			slog.String("company", company),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return ci
}

// filterDirectives applies the deterministic lead guard: a LeadCapture is
// honored only when it carries a contact channel, backfilling missing
// fields from the profile first. The model's prose-level trigger rule is
// not trusted on its own.
func (e *Engine) filterDirectives(sessionID string, prof domain.ClientProfile, dirs []domain.Directive) []domain.Directive {
	out := dirs[:0]
	for _, d := range dirs {
		if d.Kind == domain.DirectiveLead {
			backfillLead(d.Lead, prof)
			if !d.Lead.HasContactChannel() {
				e.opts.Logger.Warn("dropping lead directive without contact channel",
					slog.String("session_id", sessionID),
				)
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func backfillLead(lead *domain.LeadPayload, prof domain.ClientProfile) {
	if lead.Name == "" {
		lead.Name = prof.Name
	}
	if lead.Email == "" {
		lead.Email = prof.Email
	}
	if lead.Phone == "" {
		lead.Phone = prof.Phone
	}
	if lead.Company == "" {
		lead.Company = prof.Company
	}
}

// advanceState applies the session state machine for one turn.
func (e *Engine) advanceState(ctx context.Context, sessionID string, current domain.SessionState, roundTripOK bool, dirs []domain.Directive) domain.SessionState {
	next := current
	if current == domain.StateNew && roundTripOK {
		next = domain.StateActive
	}

	for _, d := range dirs {
		switch d.Kind {
		case domain.DirectiveLead:
			if next != domain.StateEscalated {
				next = domain.StateLeadCaptured
			}
		case domain.DirectiveEscalate:
			// Escalation wins over capture within the same turn; a
			// human is taking over either way.
			next = domain.StateEscalated
		}
	}

	if next != current {
		if err := e.opts.Store.UpdateState(ctx, sessionID, next); err != nil {
			e.opts.Logger.Error("failed to update session state",
				slog.String("session_id", sessionID),
				slog.String("state", string(next)),
				slog.String("error", err.Error()),
			)
		}
	}
	return next
}

// Close marks a session closed. Closing an already-closed session is a
// no-op.
func (e *Engine) Close(ctx context.Context, sessionID string) error {
	unlock := e.lockSession(sessionID)
	defer unlock()

	if _, err := e.opts.Store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrNotFound("session " + sessionID + " not found")
		}
		return err
	}
	if err := e.opts.Store.UpdateState(ctx, sessionID, domain.StateClosed); err != nil {
		return err
	}

	// Closed sessions reject further turns, so the lock entry is dead
	// weight. Waiters still hold the mutex pointer and drain safely.
	e.mu.Lock()
	delete(e.locks, sessionID)
	e.mu.Unlock()
	return nil
}

// Session returns the stored record for a session.
func (e *Engine) Session(ctx context.Context, sessionID string) (*storage.SessionRecord, error) {
	rec, err := e.opts.Store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrNotFound("session " + sessionID + " not found")
	}
	return rec, err
}

// SweepIdle closes sessions whose last activity predates the idle
// timeout. Returns the number of sessions closed.
func (e *Engine) SweepIdle(ctx context.Context) (int, error) {
	if e.opts.IdleTimeout <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-e.opts.IdleTimeout)
	ids, err := e.opts.Store.ListIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	closed := 0
	for _, id := range ids {
		if err := e.Close(ctx, id); err != nil {
			e.opts.Logger.Error("failed to close idle session",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		e.opts.Profiles.Delete(id)
		closed++
	}

	if closed > 0 {
		e.opts.Logger.Info("closed idle sessions", slog.Int("count", closed))
	}
	return closed, nil
}

// StartSweeper runs SweepIdle on the given interval until ctx is done.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.SweepIdle(ctx); err != nil {
					e.opts.Logger.Error("idle sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// lockSession serializes turns for a session. Profile merge is not safe
// under true parallelism for the same session; concurrent turns take the
// lock in arrival order.
func (e *Engine) lockSession(sessionID string) func() {
	e.mu.Lock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}
