package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/governor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/ledger"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/logging"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id        TEXT PRIMARY KEY,
	state             TEXT NOT NULL,
	fin_reason        TEXT,
	constraint_text   TEXT,
	constraint_digest TEXT,
	t1                REAL,
	t2                REAL,
	liability_cap     REAL,
	spent             REAL,
	remaining         REAL,
	last_sequence     INTEGER,
	ledger_len        INTEGER,
	head              TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	closed_at         TEXT
);

CREATE TABLE IF NOT EXISTS ledger_records (
	session_id  TEXT NOT NULL,
	position    INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	body        BLOB NOT NULL,
	digest      TEXT NOT NULL,
	PRIMARY KEY (session_id, position),
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS decision_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	sequence    INTEGER NOT NULL,
	action      TEXT NOT NULL,
	zone        TEXT,
	deviation   REAL,
	reason      TEXT,
	charged     REAL NOT NULL,
	record_json TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_session ON decision_log(session_id, id);
`
// #endregion schema

// #region store-struct
// Store persists sessions, their ledgers and decision provenance in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region save-session
// SaveSession upserts the session row from a snapshot.
func (s *Store) SaveSession(snap governor.Snapshot) error {
	now := time.Now().UTC()
	var closedAt interface{}
	if !snap.ClosedAt.IsZero() {
		closedAt = snap.ClosedAt.UTC().Format(time.RFC3339Nano)
	}
	var finReason interface{}
	if snap.FinReason != "" {
		finReason = string(snap.FinReason)
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, state, fin_reason, constraint_text, constraint_digest,
			t1, t2, liability_cap, spent, remaining, last_sequence, ledger_len, head,
			created_at, updated_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			fin_reason = excluded.fin_reason,
			constraint_text = excluded.constraint_text,
			constraint_digest = excluded.constraint_digest,
			t1 = excluded.t1,
			t2 = excluded.t2,
			liability_cap = excluded.liability_cap,
			spent = excluded.spent,
			remaining = excluded.remaining,
			last_sequence = excluded.last_sequence,
			ledger_len = excluded.ledger_len,
			head = excluded.head,
			updated_at = excluded.updated_at,
			closed_at = excluded.closed_at`,
		snap.ID, string(snap.State), finReason, snap.Constraint, snap.ConstraintDigest,
		snap.T1, snap.T2, snap.LiabilityCap, snap.Spent, snap.Remaining,
		int64(snap.LastSequence), snap.LedgerLen, snap.Head,
		snap.CreatedAt.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), closedAt,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", snap.ID, err)
	}
	return nil
}

// Archive saves the final snapshot of s. It matches Registry.OnArchive.
func (s *Store) Archive(sess *governor.Session) error {
	return s.SaveSession(sess.Snapshot())
}
// #endregion save-session

// #region get-session
// GetSession reads a persisted snapshot.
func (s *Store) GetSession(id string) (governor.Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT session_id, state, fin_reason, constraint_text, constraint_digest,
			t1, t2, liability_cap, spent, remaining, last_sequence, ledger_len, head,
			created_at, closed_at
		 FROM sessions WHERE session_id = ?`, id,
	)
	snap, err := scanSnapshot(row)
	if err != nil {
		return governor.Snapshot{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (governor.Snapshot, error) {
	var snap governor.Snapshot
	var state, createdStr string
	var finReason, constraint, digest, head, closedStr sql.NullString
	var t1, t2, capacity, spent, remaining sql.NullFloat64
	var lastSeq, ledgerLen sql.NullInt64

	err := row.Scan(&snap.ID, &state, &finReason, &constraint, &digest,
		&t1, &t2, &capacity, &spent, &remaining, &lastSeq, &ledgerLen, &head,
		&createdStr, &closedStr)
	if err != nil {
		return governor.Snapshot{}, err
	}
	snap.State = governor.State(state)
	snap.FinReason = governor.FinReason(finReason.String)
	snap.Constraint = constraint.String
	snap.ConstraintDigest = digest.String
	snap.T1 = t1.Float64
	snap.T2 = t2.Float64
	snap.LiabilityCap = capacity.Float64
	snap.Spent = spent.Float64
	snap.Remaining = remaining.Float64
	snap.LastSequence = uint64(lastSeq.Int64)
	snap.LedgerLen = int(ledgerLen.Int64)
	snap.Head = head.String
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if closedStr.Valid {
		snap.ClosedAt, _ = time.Parse(time.RFC3339Nano, closedStr.String)
	}
	return snap, nil
}
// #endregion get-session

// #region list-sessions
// ListSessions returns the most recently updated sessions with their
// record and decision counts.
func (s *Store) ListSessions(limit int) ([]SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT s.session_id, s.state, s.fin_reason, s.spent, s.remaining, s.updated_at,
			(SELECT COUNT(*) FROM ledger_records r WHERE r.session_id = s.session_id),
			(SELECT COUNT(*) FROM decision_log d WHERE d.session_id = s.session_id)
		 FROM sessions s ORDER BY s.updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var finReason sql.NullString
		var spent, remaining sql.NullFloat64
		var updatedStr string
		if err := rows.Scan(&sum.SessionID, &sum.State, &finReason, &spent, &remaining,
			&updatedStr, &sum.Records, &sum.Decisions); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sum.FinReason = finReason.String
		sum.Spent = spent.Float64
		sum.Remaining = remaining.Float64
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		out = append(out, sum)
	}
	return out, rows.Err()
}
// #endregion list-sessions

// #region ledger-sink
// LedgerSink persists one session's ledger. It implements ledger.Sink and
// ledger.Source.
type LedgerSink struct {
	db        *sql.DB
	sessionID string
}

// Sink returns the ledger sink for sessionID.
func (s *Store) Sink(sessionID string) ledger.Sink {
	return &LedgerSink{db: s.db, sessionID: sessionID}
}

// Persist writes records in one transaction. A session row is created on
// first write so that records never reference a missing session.
func (ls *LedgerSink) Persist(ctx context.Context, records []ledger.Record) error {
	tx, err := ls.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		ls.sessionID, string(governor.StateSolvent), now, now,
	)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}

	for _, rec := range records {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_records (session_id, position, kind, body, digest)
			 VALUES (?, ?, ?, ?, ?)`,
			ls.sessionID, int64(rec.Position), string(rec.Kind), rec.Body, rec.Digest,
		)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", rec.Position, err)
		}
	}

	return tx.Commit()
}

// Load reads the persisted chain.
func (ls *LedgerSink) Load(ctx context.Context) ([]ledger.Record, error) {
	return loadRecords(ctx, ls.db, ls.sessionID)
}

// LoadRecords reads a session's ledger records in position order.
func (s *Store) LoadRecords(sessionID string) ([]ledger.Record, error) {
	return loadRecords(context.Background(), s.db, sessionID)
}

func loadRecords(ctx context.Context, db *sql.DB, sessionID string) ([]ledger.Record, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT position, kind, body, digest FROM ledger_records
		 WHERE session_id = ? ORDER BY position`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		var rec ledger.Record
		var pos int64
		var kind string
		if err := rows.Scan(&pos, &kind, &rec.Body, &rec.Digest); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Position = uint64(pos)
		rec.Kind = ledger.Kind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion ledger-sink

// #region decisions
// RecordDecision writes rec to decision_log. It implements governor.Recorder.
func (s *Store) RecordDecision(ctx context.Context, rec logging.DecisionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision record: %w", err)
	}
	entry := logging.DecisionEntry{
		SessionID:  rec.SessionID,
		Sequence:   rec.Sequence,
		Action:     rec.Action,
		Zone:       rec.Zone,
		Reason:     rec.Reason,
		Charged:    rec.Charged,
		RecordJSON: string(raw),
	}
	if rec.ScoreAvailable {
		d := rec.Deviation
		entry.Deviation = &d
	}
	if entry.Reason == "" {
		entry.Reason = rec.RejectReason
	}
	return logging.LogDecision(s.db, entry)
}

// LoadDecisions returns a session's decisions in insertion order.
func (s *Store) LoadDecisions(sessionID string) ([]DecisionRow, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, sequence, action, zone, deviation, reason, charged, record_json, created_at
		 FROM decision_log WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var row DecisionRow
		var seq int64
		var zone, reason, recordJSON sql.NullString
		var deviation sql.NullFloat64
		var createdStr string
		if err := rows.Scan(&row.ID, &row.SessionID, &seq, &row.Action, &zone, &deviation,
			&reason, &row.Charged, &recordJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		row.Sequence = uint64(seq)
		row.Zone = zone.String
		row.Reason = reason.String
		if deviation.Valid {
			d := deviation.Float64
			row.Deviation = &d
		}
		if recordJSON.Valid {
			if err := json.Unmarshal([]byte(recordJSON.String), &row.Record); err != nil {
				return nil, fmt.Errorf("unmarshal decision %d: %w", row.ID, err)
			}
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, row)
	}
	return out, rows.Err()
}
// #endregion decisions
