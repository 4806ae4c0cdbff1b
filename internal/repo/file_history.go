package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// HistoryFile is the YAML root structure for local-dev history fixtures.
type HistoryFile struct {
	Profile  *ProfileEntry  `yaml:"profile"`
	Cycles   []CycleEntry   `yaml:"cycles"`
	Symptoms []SymptomEntry `yaml:"symptoms"`
}

// ProfileEntry mirrors models.Profile with YAML-friendly keys.
type ProfileEntry struct {
	AverageCycleLength  int  `yaml:"averageCycleLength"`
	AveragePeriodLength int  `yaml:"averagePeriodLength"`
	BirthYear           *int `yaml:"birthYear"`
	LutealPhaseLength   *int `yaml:"lutealPhaseLength"`
}

// CycleEntry is one period in a fixture. Dates are YYYY-MM-DD.
type CycleEntry struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// SymptomEntry is one symptom log line in a fixture.
type SymptomEntry struct {
	Date     string `yaml:"date"`
	Category string `yaml:"category"`
	Severity int    `yaml:"severity"`
}

// FileHistory reads history from a YAML file on every load, so edits show up on the next pass.
type FileHistory struct {
	path   string
	logger *slog.Logger
}

// NewFileHistory constructs a FileHistory. A missing file reads as empty history.
func NewFileHistory(path string, logger *slog.Logger) *FileHistory {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHistory{path: path, logger: logger}
}

// LoadHistory implements engine.HistorySource.
func (f *FileHistory) LoadHistory(ctx context.Context) (models.History, error) {
	file, err := f.read(ctx)
	if err != nil {
		return models.History{}, err
	}

	history := models.History{
		Cycles:   make([]models.CycleRecord, 0, len(file.Cycles)),
		Symptoms: make([]models.SymptomEntry, 0, len(file.Symptoms)),
	}
	for i, c := range file.Cycles {
		record, err := parseCycle(c.Start, c.End)
		if err != nil {
			history.Warnings = append(history.Warnings, skippedRow(f.logger, models.WarningCycleUnparseable, i, err))
			continue
		}
		history.Cycles = append(history.Cycles, record)
	}
	for i, s := range file.Symptoms {
		date, err := parseStoredDate(s.Date)
		if err != nil {
			history.Warnings = append(history.Warnings, skippedRow(f.logger, models.WarningSymptomUnparseable, i, err))
			continue
		}
		history.Symptoms = append(history.Symptoms, models.SymptomEntry{
			Date:     date,
			Category: models.SymptomCategory(strings.ToLower(strings.TrimSpace(s.Category))),
			Severity: s.Severity,
		})
	}
	return history, nil
}

// LoadProfile implements engine.HistorySource. Absent profiles read as the defaults.
func (f *FileHistory) LoadProfile(ctx context.Context) (models.Profile, error) {
	file, err := f.read(ctx)
	if err != nil {
		return models.Profile{}, err
	}
	if file.Profile == nil {
		return models.DefaultProfile(), nil
	}
	return models.Profile{
		AverageCycleLength:  file.Profile.AverageCycleLength,
		AveragePeriodLength: file.Profile.AveragePeriodLength,
		BirthYear:           file.Profile.BirthYear,
		LutealPhaseLength:   file.Profile.LutealPhaseLength,
	}, nil
}

func (f *FileHistory) read(ctx context.Context) (HistoryFile, error) {
	if err := ctx.Err(); err != nil {
		return HistoryFile{}, err
	}
	var file HistoryFile
	if f.path == "" {
		return file, nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.logger.Debug("history file not found; using empty history", slog.String("path", f.path))
			return file, nil
		}
		return HistoryFile{}, utils.NewAppError("repo.FileHistory", "read history file", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return HistoryFile{}, utils.NewAppError("repo.FileHistory", "decode history file", err)
	}
	return file, nil
}

// parseCycle decodes a stored start/end pair. An empty end means the period is open.
func parseCycle(start, end string) (models.CycleRecord, error) {
	startDate, err := parseStoredDate(start)
	if err != nil {
		return models.CycleRecord{}, fmt.Errorf("start: %w", err)
	}
	record := models.CycleRecord{Start: startDate}
	if strings.TrimSpace(end) != "" {
		endDate, err := parseStoredDate(end)
		if err != nil {
			return models.CycleRecord{}, fmt.Errorf("end: %w", err)
		}
		record.End = &endDate
	}
	return record, nil
}

// skippedRow logs an undecodable row and returns the warning that reports it.
func skippedRow(logger *slog.Logger, kind models.WarningKind, row int, err error) models.ValidationWarning {
	logger.Warn("history row skipped",
		slog.String("kind", string(kind)),
		slog.Int("row", row),
		slog.Any("error", err),
	)
	return models.ValidationWarning{Kind: kind, Index: row, Message: err.Error()}
}

// parseStoredDate accepts civil dates and RFC3339 timestamps.
func parseStoredDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := utils.ParseDate(value); err == nil {
		return t, nil
	}
	t, err := utils.ParseRFC3339(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q", value)
	}
	return utils.DateOnly(t), nil
}
