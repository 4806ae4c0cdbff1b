package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// SQLiteSchema is the table layout the history store writes. The engine only reads it.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS cycles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	start_date TEXT NOT NULL,
	end_date TEXT
);
CREATE TABLE IF NOT EXISTS symptoms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	logged_on TEXT NOT NULL,
	category TEXT NOT NULL,
	severity INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS profile (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	average_cycle_length INTEGER NOT NULL,
	average_period_length INTEGER NOT NULL,
	birth_year INTEGER,
	luteal_phase_length INTEGER
);
`

// SQLiteHistory reads cycle history from the store's SQLite database without writing to it.
type SQLiteHistory struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteHistory opens path read-only.
func NewSQLiteHistory(path string, logger *slog.Logger) (*SQLiteHistory, error) {
	if path == "" {
		return nil, errors.New("sqlite history path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite history: %w", err)
	}
	db.SetMaxOpenConns(4)
	return &SQLiteHistory{db: db, logger: logger}, nil
}

// CreateSQLiteSchema initialises an empty history database at path.
func CreateSQLiteSchema(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite history: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// LoadHistory implements engine.HistorySource. Rows come back in insertion order; the
// engine validates ordering itself.
// Rows whose dates cannot be decoded are skipped and reported as warnings.
func (s *SQLiteHistory) LoadHistory(ctx context.Context) (models.History, error) {
	var history models.History
	var err error
	history.Cycles, err = s.loadCycles(ctx, &history.Warnings)
	if err != nil {
		return models.History{}, utils.NewAppError("repo.SQLiteHistory", "load cycles", err)
	}
	history.Symptoms, err = s.loadSymptoms(ctx, &history.Warnings)
	if err != nil {
		return models.History{}, utils.NewAppError("repo.SQLiteHistory", "load symptoms", err)
	}
	return history, nil
}

func (s *SQLiteHistory) loadCycles(ctx context.Context, warnings *[]models.ValidationWarning) ([]models.CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT start_date, end_date FROM cycles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []models.CycleRecord
	for row := 0; rows.Next(); row++ {
		var start string
		var end sql.NullString
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		record, err := parseCycle(start, end.String)
		if err != nil {
			*warnings = append(*warnings, skippedRow(s.logger, models.WarningCycleUnparseable, row, err))
			continue
		}
		cycles = append(cycles, record)
	}
	return cycles, rows.Err()
}

func (s *SQLiteHistory) loadSymptoms(ctx context.Context, warnings *[]models.ValidationWarning) ([]models.SymptomEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT logged_on, category, severity FROM symptoms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symptoms []models.SymptomEntry
	for row := 0; rows.Next(); row++ {
		var (
			loggedOn string
			category string
			severity int
		)
		if err := rows.Scan(&loggedOn, &category, &severity); err != nil {
			return nil, err
		}
		date, err := parseStoredDate(loggedOn)
		if err != nil {
			*warnings = append(*warnings, skippedRow(s.logger, models.WarningSymptomUnparseable, row, err))
			continue
		}
		symptoms = append(symptoms, models.SymptomEntry{
			Date:     date,
			Category: models.SymptomCategory(category),
			Severity: severity,
		})
	}
	return symptoms, rows.Err()
}

// LoadProfile implements engine.HistorySource. A missing row reads as the defaults.
func (s *SQLiteHistory) LoadProfile(ctx context.Context) (models.Profile, error) {
	var (
		profile   models.Profile
		birthYear sql.NullInt64
		luteal    sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT average_cycle_length, average_period_length, birth_year, luteal_phase_length FROM profile WHERE id = 1`,
	).Scan(&profile.AverageCycleLength, &profile.AveragePeriodLength, &birthYear, &luteal)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("no profile row; using defaults")
		return models.DefaultProfile(), nil
	}
	if err != nil {
		return models.Profile{}, utils.NewAppError("repo.SQLiteHistory", "load profile", err)
	}
	if birthYear.Valid {
		v := int(birthYear.Int64)
		profile.BirthYear = &v
	}
	if luteal.Valid {
		v := int(luteal.Int64)
		profile.LutealPhaseLength = &v
	}
	return profile, nil
}

// Close releases the database handle.
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}
