package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE decision_log (
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
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	d := 0.2
	entry := DecisionEntry{
		SessionID:  "s-1",
		Sequence:   3,
		Action:     "transmit",
		Zone:       "yellow",
		Deviation:  &d,
		Reason:     "bridge accepted",
		Charged:    3,
		RecordJSON: `{"sequence":3}`,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var (
		seq       int64
		action    string
		deviation sql.NullFloat64
		createdAt string
	)
	err := db.QueryRow("SELECT sequence, action, deviation, created_at FROM decision_log").Scan(&seq, &action, &deviation, &createdAt)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if seq != 3 || action != "transmit" {
		t.Errorf("unexpected row: seq=%d action=%s", seq, action)
	}
	if !deviation.Valid || deviation.Float64 != 0.2 {
		t.Errorf("expected deviation 0.2, got %+v", deviation)
	}
	if createdAt != "2026-01-01T00:00:00Z" {
		t.Errorf("unexpected created_at %s", createdAt)
	}
}

func TestLogDecision_NullsForEmptyFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogDecision(db, DecisionEntry{SessionID: "s-1", Sequence: 1, Action: "fin"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var zone, reason, record sql.NullString
	var deviation sql.NullFloat64
	db.QueryRow("SELECT zone, deviation, reason, record_json FROM decision_log").Scan(&zone, &deviation, &reason, &record)
	if zone.Valid || deviation.Valid || reason.Valid || record.Valid {
		t.Errorf("expected NULLs, got zone=%v deviation=%v reason=%v record=%v", zone, deviation, reason, record)
	}
}

func TestLogDecision_DefaultsCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC().Add(-time.Second)
	LogDecision(db, DecisionEntry{SessionID: "s-1", Sequence: 1, Action: "nack"})

	var createdAt string
	db.QueryRow("SELECT created_at FROM decision_log").Scan(&createdAt)
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if ts.Before(before) {
		t.Errorf("created_at %v not defaulted to now", ts)
	}
}

func TestLogDecision_MissingTable(t *testing.T) {
	db, _ := sql.Open("sqlite", ":memory:")
	defer db.Close()
	if err := LogDecision(db, DecisionEntry{SessionID: "s", Action: "fin"}); err == nil {
		t.Fatal("expected error without decision_log table")
	}
}

// #endregion log-decision-tests

// #region logger-tests
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		cfg     Config
		wantErr bool
	}{
		{DefaultConfig(), false},
		{Config{Level: "debug", Format: "console"}, false},
		{Config{Level: "loud", Format: "json"}, true},
		{Config{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) err=%v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
}

func TestNewObserved(t *testing.T) {
	logger, logs := NewObserved()
	logger.Named("governor").Warn("auditor timeout")
	if logs.FilterMessage("auditor timeout").Len() != 1 {
		t.Fatalf("expected one observed entry, got %d", logs.Len())
	}
}

// #endregion logger-tests
