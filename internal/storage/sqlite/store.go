package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lumenworks/saleschat/internal/domain"
	"github.com/lumenworks/saleschat/internal/storage"
)

// Store is a SQLite implementation of SessionStore.
type Store struct {
	db *sql.DB
}

var _ storage.SessionStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			profile TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_activity TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			attachments TEXT,
			signals TEXT,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_session ON leads(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) CreateSession(ctx context.Context, rec *storage.SessionRecord) error {
	now := time.Now()
	state := rec.State
	if state == "" {
		state = domain.StateNew
	}

	profile, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	query := `INSERT INTO sessions (id, state, profile, created_at, last_activity)
	          VALUES (?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query, rec.ID, string(state), string(profile), now, now); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*storage.SessionRecord, error) {
	query := `SELECT id, state, profile, created_at, last_activity
	          FROM sessions WHERE id = ?`

	var (
		rec         storage.SessionRecord
		state       string
		profileJSON string
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &state, &profileJSON, &rec.CreatedAt, &rec.LastActivity)

	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rec.State = domain.SessionState(state)
	if err := json.Unmarshal([]byte(profileJSON), &rec.Profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	turns, err := s.getTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Turns = turns

	return &rec, nil
}

func (s *Store) getTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	query := `SELECT role, content, attachments, signals, created_at
	          FROM turns WHERE session_id = ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			turn        domain.Turn
			role        string
			attachments sql.NullString
			signals     sql.NullString
		)
		if err := rows.Scan(&role, &turn.Content, &attachments, &signals, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = domain.Role(role)
		if attachments.Valid && attachments.String != "" {
			if err := json.Unmarshal([]byte(attachments.String), &turn.Attachments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
			}
		}
		if signals.Valid && signals.String != "" {
			if err := json.Unmarshal([]byte(signals.String), &turn.Signals); err != nil {
				return nil, fmt.Errorf("failed to unmarshal signals: %w", err)
			}
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error {
	var attachments, signals []byte
	var err error

	if len(turn.Attachments) > 0 {
		if attachments, err = json.Marshal(turn.Attachments); err != nil {
			return fmt.Errorf("failed to marshal attachments: %w", err)
		}
	}
	if turn.Signals != nil {
		if signals, err = json.Marshal(turn.Signals); err != nil {
			return fmt.Errorf("failed to marshal signals: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}

	// seq is assigned inside the transaction to keep turn ordering
	// monotonic per session.
	query := `INSERT INTO turns (session_id, seq, role, content, attachments, signals, created_at)
	          VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?), ?, ?, ?, ?, ?)`

	if _, err := tx.ExecContext(ctx, query,
		sessionID, sessionID, string(turn.Role), turn.Content,
		nullable(attachments), nullable(signals), turn.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ? WHERE id = ?`, time.Now(), sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return tx.Commit()
}

func (s *Store) UpdateState(ctx context.Context, sessionID string, state domain.SessionState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ? WHERE id = ?`, string(state), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, sessionID string, profile domain.ClientProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET profile = ? WHERE id = ?`, string(data), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `SELECT id FROM sessions WHERE state != ? AND last_activity < ?`

	rows, err := s.db.QueryContext(ctx, query, string(domain.StateClosed), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *Store) SaveLead(ctx context.Context, lead *storage.LeadRecord) error {
	payload, err := json.Marshal(lead.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal lead payload: %w", err)
	}

	createdAt := lead.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `INSERT INTO leads (id, session_id, payload, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, lead.ID, lead.SessionID, string(payload), createdAt); err != nil {
		return fmt.Errorf("failed to save lead: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
