package flags

import (
	"sort"
	"strconv"
	"strings"
)

// Recognised option names.
const (
	MLPredictions    = "ml_predictions"
	PairCorrelations = "pair_correlations"
	PrivacyMode      = "privacy_mode"
)

// Option documents a recognised flag and its hard-coded fallback.
type Option struct {
	Name        string
	Default     bool
	Description string
}

var registry = []Option{
	{Name: MLPredictions, Default: false, Description: "Route predictions through the adaptive scorer."},
	{Name: PairCorrelations, Default: true, Description: "Report symptom-to-symptom correlations alongside phase correlations."},
	{Name: PrivacyMode, Default: false, Description: "Reduce widget and extension exposure to phase and a bucketed countdown."},
}

// Options returns the recognised options sorted by name.
func Options() []Option {
	out := append([]Option(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Known reports whether name is a recognised option.
func Known(name string) bool {
	_, ok := lookupOption(name)
	return ok
}

func lookupOption(name string) (Option, bool) {
	name = normalise(name)
	for _, opt := range registry {
		if opt.Name == name {
			return opt, true
		}
	}
	return Option{}, false
}

// View is the read-only flag surface the engine consults.
type View interface {
	IsEnabled(name string) bool
}

// Resolver is an immutable layered lookup: overrides, then defaults, then the registry.
type Resolver struct {
	overrides map[string]bool
	defaults  map[string]bool
}

// NewResolver copies both layers; later mutation of the inputs has no effect.
func NewResolver(defaults, overrides map[string]bool) Resolver {
	return Resolver{overrides: copyLayer(overrides), defaults: copyLayer(defaults)}
}

// Defaults returns a resolver answering only from the registry.
func Defaults() Resolver {
	return Resolver{}
}

// IsEnabled implements View. Unrecognised names are always disabled.
func (r Resolver) IsEnabled(name string) bool {
	opt, ok := lookupOption(name)
	if !ok {
		return false
	}
	if v, ok := r.overrides[opt.Name]; ok {
		return v
	}
	if v, ok := r.defaults[opt.Name]; ok {
		return v
	}
	return opt.Default
}

// WithOverrides returns a new resolver whose override layer is merged with extra.
// Entries in extra win.
func (r Resolver) WithOverrides(extra map[string]bool) Resolver {
	merged := copyLayer(r.overrides)
	for k, v := range copyLayer(extra) {
		merged[k] = v
	}
	return Resolver{overrides: merged, defaults: r.defaults}
}

// Snapshot returns the effective value of every recognised option.
func (r Resolver) Snapshot() map[string]bool {
	out := make(map[string]bool, len(registry))
	for _, opt := range registry {
		out[opt.Name] = r.IsEnabled(opt.Name)
	}
	return out
}

// Enabled returns view.IsEnabled(name), treating a nil view as registry defaults.
func Enabled(view View, name string) bool {
	if view == nil {
		return Defaults().IsEnabled(name)
	}
	return view.IsEnabled(name)
}

// ParseBool accepts the spellings remote config and env vars use.
func ParseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes", "enabled":
		return true, true
	case "0", "false", "off", "no", "disabled":
		return false, true
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b, true
	}
	return false, false
}

func copyLayer(layer map[string]bool) map[string]bool {
	out := make(map[string]bool, len(layer))
	for k, v := range layer {
		if name := normalise(k); Known(name) {
			out[name] = v
		}
	}
	return out
}

func normalise(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
