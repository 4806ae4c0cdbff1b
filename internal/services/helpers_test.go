package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/cycle-engine/internal/engine"
	"github.com/miradorstack/cycle-engine/internal/flags"
	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/privacy"
	"github.com/miradorstack/cycle-engine/internal/snapshot"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// April 1st 2026, six days after the last of four 28-day cycles began.
var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	mu      sync.Mutex
	history models.History
	profile models.Profile
	err     error
	loads   int
}

func (s *stubSource) LoadHistory(context.Context) (models.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return models.History{}, s.err
	}
	return s.history, nil
}

func (s *stubSource) LoadProfile(context.Context) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Profile{}, s.err
	}
	return s.profile, nil
}

func (s *stubSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type stubMirror struct {
	mu       sync.Mutex
	mirrored []bool
	stored   privacy.Exposure
	loadErr  error
	writeErr error
}

func (m *stubMirror) Mirror(_ context.Context, _ models.Snapshot, privacyMode bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrored = append(m.mirrored, privacyMode)
	return m.writeErr
}

func (m *stubMirror) Load(context.Context) (privacy.Exposure, error) {
	return m.stored, m.loadErr
}

type staticOverrides map[string]bool

func (o staticOverrides) Resolve(_ context.Context, base flags.Resolver) flags.Resolver {
	return base.WithOverrides(o)
}

func regularHistory(t *testing.T) models.History {
	t.Helper()
	var cycles []models.CycleRecord
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		end := utils.AddDays(start, 4)
		cycles = append(cycles, models.CycleRecord{Start: start, End: &end})
		start = utils.AddDays(start, 28)
	}

	var symptoms []models.SymptomEntry
	for i := 0; i < 3; i++ {
		symptoms = append(symptoms, models.SymptomEntry{
			Date:     utils.AddDays(cycles[i].Start, 1),
			Category: models.SymptomCramping,
			Severity: 3,
		})
	}
	return models.History{Cycles: cycles, Symptoms: symptoms}
}

type fixture struct {
	source  *stubSource
	store   *snapshot.Store
	mirror  *stubMirror
	service *InsightsService
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	source := &stubSource{history: regularHistory(t), profile: models.DefaultProfile()}
	store := snapshot.NewStore()
	mirror := &stubMirror{}
	eng := engine.NewEngine(nil, engine.DefaultParams(), store, engine.WithClock(func() time.Time { return testNow }))

	opts := Options{
		Source: source,
		Engine: eng,
		Store:  store,
		Mirror: mirror,
		Flags:  flags.Defaults(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	service, err := NewInsightsService(opts)
	require.NoError(t, err)
	return &fixture{source: source, store: store, mirror: mirror, service: service}
}
