// Package dispatch executes the typed side-effect commands extracted from
// model output against external collaborators. Delivery is asynchronous:
// the conversational reply has already been returned by the time a sink is
// called, so a sink failure is logged and retried, never surfaced.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenworks/saleschat/internal/domain"
	"github.com/lumenworks/saleschat/internal/storage"
)

// LeadNotification is the payload delivered to the lead sink.
type LeadNotification struct {
	SessionID  string               `json:"session_id"`
	Lead       domain.LeadPayload   `json:"lead"`
	Profile    domain.ClientProfile `json:"profile"`
	Transcript []domain.Turn        `json:"transcript"`
}

// EscalationNotification is the payload delivered to the escalation sink.
type EscalationNotification struct {
	SessionID  string        `json:"session_id"`
	Reason     string        `json:"reason"`
	Transcript []domain.Turn `json:"transcript"`
}

// Dispatcher routes directives to sinks with at-most-once semantics per
// directive instance, keyed by session id + turn index + directive kind.
type Dispatcher struct {
	leadSink       Sink
	escalationSink Sink
	store          storage.SessionStore
	logger         *slog.Logger
	timeout        time.Duration

	mu        sync.Mutex
	delivered map[string]struct{}
	inflight  sync.WaitGroup
}

// New creates a dispatcher. store may be nil when lead persistence is
// disabled.
func New(leadSink, escalationSink Sink, store storage.SessionStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		leadSink:       leadSink,
		escalationSink: escalationSink,
		store:          store,
		logger:         logger,
		timeout:        30 * time.Second,
		delivered:      make(map[string]struct{}),
	}
}

// Dispatch schedules delivery of a directive. It returns immediately; the
// sink call runs on its own goroutine with a context detached from the
// request, so a caller disconnect cannot lose an already-extracted lead.
// Duplicate dispatches for the same (session, turn, kind) are dropped.
func (d *Dispatcher) Dispatch(sessionID string, turnIndex int, dir domain.Directive, profile domain.ClientProfile, transcript []domain.Turn) {
	key := dispatchKey(sessionID, turnIndex, dir.Kind)

	d.mu.Lock()
	if _, done := d.delivered[key]; done {
		d.mu.Unlock()
		d.logger.Debug("skipping duplicate dispatch", slog.String("key", key))
		return
	}
	d.delivered[key] = struct{}{}
	d.mu.Unlock()

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		// Detached from the request lifecycle, still bounded.
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		d.deliver(ctx, sessionID, dir, profile, transcript)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, sessionID string, dir domain.Directive, profile domain.ClientProfile, transcript []domain.Turn) {
	switch dir.Kind {
	case domain.DirectiveLead:
		if d.store != nil {
			rec := &storage.LeadRecord{
				ID:        "lead_" + uuid.New().String(),
				SessionID: sessionID,
				Payload:   *dir.Lead,
			}
			if err := d.store.SaveLead(ctx, rec); err != nil {
				d.logger.Error("failed to persist lead",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		}
		err := d.leadSink.Notify(ctx, &LeadNotification{
			SessionID:  sessionID,
			Lead:       *dir.Lead,
			Profile:    profile,
			Transcript: transcript,
		})
		if err != nil {
			d.logger.Error("lead notification failed",
				slog.String("session_id", sessionID),
				slog.String("sink", d.leadSink.Name()),
				slog.String("error", err.Error()),
			)
			return
		}
		d.logger.Info("lead dispatched",
			slog.String("session_id", sessionID),
			slog.String("email", dir.Lead.Email),
		)

	case domain.DirectiveEscalate:
		err := d.escalationSink.Notify(ctx, &EscalationNotification{
			SessionID:  sessionID,
			Reason:     dir.Reason,
			Transcript: transcript,
		})
		if err != nil {
			d.logger.Error("escalation notification failed",
				slog.String("session_id", sessionID),
				slog.String("sink", d.escalationSink.Name()),
				slog.String("error", err.Error()),
			)
			return
		}
		d.logger.Info("escalation dispatched",
			slog.String("session_id", sessionID),
			slog.String("reason", dir.Reason),
		)
	}
}

// Wait blocks until all in-flight deliveries finish. Used during shutdown
// and in tests.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func dispatchKey(sessionID string, turnIndex int, kind domain.DirectiveKind) string {
	return fmt.Sprintf("%s/%d/%s", sessionID, turnIndex, kind)
}
