package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/cycle-engine/internal/cache"
	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/privacy"
)

// SnapshotMirror copies the privacy projection of each published snapshot into shared
// storage for app-extension readers.
type SnapshotMirror struct {
	cache  cache.Provider
	filter *privacy.Filter
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewSnapshotMirror constructs a mirror writing to key in provider.
func NewSnapshotMirror(logger *slog.Logger, provider cache.Provider, filter *privacy.Filter, key string, ttl time.Duration) *SnapshotMirror {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if filter == nil {
		filter = privacy.NewFilter(logger, privacy.DefaultBucket)
	}
	if ttl < 0 {
		ttl = 0
	}
	return &SnapshotMirror{cache: provider, filter: filter, key: key, ttl: ttl, logger: logger}
}

// Mirror projects snapshot and stores it. A failed projection removes any stale entry so
// readers never see data the current privacy mode forbids.
func (m *SnapshotMirror) Mirror(ctx context.Context, snapshot models.Snapshot, privacyMode bool) error {
	exposure, err := m.filter.Project(snapshot, privacyMode)
	if err != nil {
		if delErr := m.cache.Del(ctx, m.key); delErr != nil {
			m.logger.Warn("widget mirror purge failed", slog.Any("error", delErr))
		}
		return err
	}
	payload, err := privacy.Encode(exposure)
	if err != nil {
		return fmt.Errorf("encode widget exposure: %w", err)
	}
	if err := m.cache.Set(ctx, m.key, payload, m.ttl); err != nil {
		return fmt.Errorf("store widget exposure: %w", err)
	}
	m.logger.Debug("widget mirror updated",
		slog.String("pass_id", snapshot.PassID),
		slog.Bool("privacy_mode", privacyMode),
	)
	return nil
}

// Load reads the last mirrored exposure, returning cache.ErrCacheMiss when none exists.
func (m *SnapshotMirror) Load(ctx context.Context) (privacy.Exposure, error) {
	raw, err := m.cache.Get(ctx, m.key)
	if err != nil {
		return privacy.Exposure{}, err
	}
	var exposure privacy.Exposure
	if err := json.Unmarshal(raw, &exposure); err != nil {
		return privacy.Exposure{}, fmt.Errorf("decode widget exposure: %w", err)
	}
	exposure.Reduced = exposure.CycleDay == nil && exposure.NextPeriodStart == nil
	return exposure, nil
}
