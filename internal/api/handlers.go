package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/privacy"
)

// FromStructInsightsRequest reads {"filter": "ALL|PREDICTIONS|CORRELATIONS"}. A missing filter means ALL.
func FromStructInsightsRequest(req *structpb.Struct) (models.InsightsFilter, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	raw, err := optionalString(req, "filter")
	if err != nil {
		return "", err
	}
	filter, ok := models.ParseInsightsFilter(raw)
	if !ok {
		return "", fmt.Errorf("unknown filter %q", raw)
	}
	return filter, nil
}

// FromStructRecomputeRequest reads {"trigger": "..."}. A missing trigger means manual.
func FromStructRecomputeRequest(req *structpb.Struct) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	trigger, err := optionalString(req, "trigger")
	if err != nil {
		return "", err
	}
	if trigger == "" {
		trigger = "manual"
	}
	return trigger, nil
}

// ToStructInsightsView converts the full-trust insights view.
func ToStructInsightsView(view models.InsightsView) (*structpb.Struct, error) {
	return toStruct(view)
}

// ToStructExposure converts a widget exposure. Reduced exposures carry exactly two fields.
func ToStructExposure(exposure privacy.Exposure) (*structpb.Struct, error) {
	return toStruct(exposure)
}

// RecomputeResponse is the body returned by the Recompute RPC.
type RecomputeResponse struct {
	Result     string                   `json:"result"`
	PassID     string                   `json:"pass_id,omitempty"`
	Prediction *models.PredictionResult `json:"prediction,omitempty"`
	Warnings   int                      `json:"warnings"`
}

// ToStructRecomputeResponse converts the outcome of a trigger.
func ToStructRecomputeResponse(resp RecomputeResponse) (*structpb.Struct, error) {
	return toStruct(resp)
}

// toStruct round-trips v through JSON so nested slices become []interface{} as structpb requires.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return out, nil
}

func optionalString(req *structpb.Struct, key string) (string, error) {
	value, ok := req.GetFields()[key]
	if !ok {
		return "", nil
	}
	switch kind := value.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	case *structpb.Value_NullValue:
		return "", nil
	default:
		return "", fmt.Errorf("%s must be a string", key)
	}
}
