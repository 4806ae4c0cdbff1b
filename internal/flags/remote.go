package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/miradorstack/cycle-engine/internal/cache"
)

// RemoteOverrides reads the override layer pushed by the remote-config transport into a
// shared cache key as a JSON object of name → bool or string.
type RemoteOverrides struct {
	provider cache.Provider
	key      string
	logger   *slog.Logger
}

// NewRemoteOverrides constructs a loader. A nil provider yields no overrides.
func NewRemoteOverrides(logger *slog.Logger, provider cache.Provider, key string) *RemoteOverrides {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &RemoteOverrides{provider: provider, key: key, logger: logger}
}

// Load returns the current remote overrides. A missing key is not an error.
func (r *RemoteOverrides) Load(ctx context.Context) (map[string]bool, error) {
	raw, err := r.provider.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("read remote flags: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode remote flags: %w", err)
	}

	out := make(map[string]bool, len(payload))
	for name, value := range payload {
		if !Known(name) {
			r.logger.Debug("ignoring unrecognised remote flag", slog.String("flag", name))
			continue
		}
		switch v := value.(type) {
		case bool:
			out[normalise(name)] = v
		case string:
			if b, ok := ParseBool(v); ok {
				out[normalise(name)] = b
			}
		}
	}
	return out, nil
}

// Resolve layers the remote overrides on top of base. Remote read failures keep base.
func (r *RemoteOverrides) Resolve(ctx context.Context, base Resolver) Resolver {
	overrides, err := r.Load(ctx)
	if err != nil {
		r.logger.Warn("remote flag overrides unavailable", slog.Any("error", err))
		return base
	}
	if len(overrides) == 0 {
		return base
	}
	return base.WithOverrides(overrides)
}
