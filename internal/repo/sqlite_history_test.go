package repo

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/miradorstack/cycle-engine/internal/models"
)

func seedSQLite(t *testing.T, statements ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	if err := CreateSQLiteSchema(ctx, path); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return path
}

func TestSQLiteHistoryLoads(t *testing.T) {
	path := seedSQLite(t,
		`INSERT INTO cycles (start_date, end_date) VALUES ('2026-01-01', '2026-01-05')`,
		`INSERT INTO cycles (start_date, end_date) VALUES ('2026-01-29', NULL)`,
		`INSERT INTO symptoms (logged_on, category, severity) VALUES ('2026-01-02', 'cramping', 3)`,
		`INSERT INTO symptoms (logged_on, category, severity) VALUES ('2026-01-20T08:30:00Z', 'acne', 2)`,
		`INSERT INTO profile (id, average_cycle_length, average_period_length, birth_year) VALUES (1, 29, 6, 1994)`,
	)

	source, err := NewSQLiteHistory(path, nil)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer source.Close()
	ctx := context.Background()

	history, err := source.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(history.Cycles) != 2 || !history.Cycles[1].Open() {
		t.Fatalf("unexpected cycles: %+v", history.Cycles)
	}
	if len(history.Symptoms) != 2 {
		t.Fatalf("expected 2 symptoms, got %d", len(history.Symptoms))
	}
	if got := history.Symptoms[1].Date.Day(); got != 20 || history.Symptoms[1].Date.Hour() != 0 {
		t.Fatalf("expected timestamp truncated to date, got %v", history.Symptoms[1].Date)
	}

	profile, err := source.LoadProfile(ctx)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile.AverageCycleLength != 29 || profile.BirthYear == nil || *profile.BirthYear != 1994 || profile.LutealPhaseLength != nil {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestSQLiteHistorySkipsBadDate(t *testing.T) {
	path := seedSQLite(t,
		`INSERT INTO cycles (start_date, end_date) VALUES ('2026-01-01', NULL)`,
		`INSERT INTO cycles (start_date, end_date) VALUES ('2026-01-29', NULL)`,
		`INSERT INTO cycles (start_date, end_date) VALUES ('2026-02-26', NULL)`,
		`INSERT INTO cycles (start_date, end_date) VALUES ('26/03/2026', NULL)`,
		`INSERT INTO symptoms (logged_on, category, severity) VALUES ('yesterday', 'acne', 2)`,
		`INSERT INTO symptoms (logged_on, category, severity) VALUES ('2026-01-02', 'cramping', 3)`,
	)

	source, err := NewSQLiteHistory(path, nil)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer source.Close()

	history, err := source.LoadHistory(context.Background())
	if err != nil {
		t.Fatalf("expected bad rows to be skipped, got %v", err)
	}
	if len(history.Cycles) != 3 {
		t.Fatalf("expected 3 cycles, got %+v", history.Cycles)
	}
	if len(history.Symptoms) != 1 || history.Symptoms[0].Category != models.SymptomCramping {
		t.Fatalf("unexpected symptoms: %+v", history.Symptoms)
	}
	if len(history.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %+v", history.Warnings)
	}
	if w := history.Warnings[0]; w.Kind != models.WarningCycleUnparseable || w.Index != 3 || !strings.Contains(w.Message, "26/03/2026") {
		t.Fatalf("unexpected cycle warning: %+v", w)
	}
	if w := history.Warnings[1]; w.Kind != models.WarningSymptomUnparseable || w.Index != 0 {
		t.Fatalf("unexpected symptom warning: %+v", w)
	}
}

func TestSQLiteHistoryDefaultsProfile(t *testing.T) {
	source, err := NewSQLiteHistory(seedSQLite(t), nil)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer source.Close()

	profile, err := source.LoadProfile(context.Background())
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile != models.DefaultProfile() {
		t.Fatalf("expected defaults, got %+v", profile)
	}
}

func TestSQLiteHistoryIsReadOnly(t *testing.T) {
	source, err := NewSQLiteHistory(seedSQLite(t), nil)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer source.Close()

	if _, err := source.db.ExecContext(context.Background(), `INSERT INTO cycles (start_date) VALUES ('2026-02-01')`); err == nil {
		t.Fatalf("expected write to fail on read-only handle")
	}
}

func TestNewSQLiteHistoryRequiresPath(t *testing.T) {
	if _, err := NewSQLiteHistory("", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
