package services

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/cycle-engine/internal/api"
	"github.com/miradorstack/cycle-engine/internal/privacy"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// InsightsGRPC implements the cycle.v1.Insights gRPC service over an InsightsService.
type InsightsGRPC struct {
	logger  *slog.Logger
	service *InsightsService
}

var _ api.InsightsServer = (*InsightsGRPC)(nil)

// NewInsightsGRPC constructs the gRPC facade.
func NewInsightsGRPC(logger *slog.Logger, service *InsightsService) *InsightsGRPC {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightsGRPC{logger: logger, service: service}
}

// GetInsights returns the full-trust insights view.
func (g *InsightsGRPC) GetInsights(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if g.service == nil {
		return nil, status.Error(codes.FailedPrecondition, "insights service not configured")
	}

	filter, err := api.FromStructInsightsRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	view, err := g.service.GetInsights(ctx, filter)
	if err != nil {
		return nil, g.statusFor("get insights", err)
	}

	out, err := api.ToStructInsightsView(view)
	if err != nil {
		g.logger.Error("encode insights failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode insights")
	}
	return out, nil
}

// GetWidgetSnapshot returns the privacy-filtered widget exposure.
func (g *InsightsGRPC) GetWidgetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if g.service == nil {
		return nil, status.Error(codes.FailedPrecondition, "insights service not configured")
	}

	exposure, err := g.service.GetWidgetSnapshot(ctx)
	if err != nil {
		return nil, g.statusFor("get widget snapshot", err)
	}

	out, err := api.ToStructExposure(exposure)
	if err != nil {
		g.logger.Error("encode widget exposure failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode widget exposure")
	}
	return out, nil
}

// Recompute runs (or throttles) one trigger.
func (g *InsightsGRPC) Recompute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if g.service == nil {
		return nil, status.Error(codes.FailedPrecondition, "insights service not configured")
	}

	name, err := api.FromStructRecomputeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	trigger, ok := ParseTrigger(name)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown trigger %q", name)
	}

	outcome, err := g.service.Recompute(ctx, trigger)
	if err != nil {
		return nil, g.statusFor("recompute", err)
	}

	resp := api.RecomputeResponse{Result: string(outcome.Result)}
	if outcome.Snapshot.PassID != "" {
		prediction := outcome.Snapshot.Prediction
		resp.PassID = outcome.Snapshot.PassID
		resp.Prediction = &prediction
		resp.Warnings = len(outcome.Snapshot.Warnings)
	}
	out, err := api.ToStructRecomputeResponse(resp)
	if err != nil {
		g.logger.Error("encode recompute response failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode recompute response")
	}
	return out, nil
}

func (g *InsightsGRPC) statusFor(op string, err error) error {
	var appErr *utils.AppError
	switch {
	case errors.Is(err, ErrNotReady):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, privacy.ErrRedactionFailed):
		return status.Error(codes.Internal, "widget exposure unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.As(err, &appErr):
		g.logger.Warn(op+" failed", slog.String("op", appErr.Op), slog.Any("error", err))
		return status.Error(codes.Unavailable, appErr.Msg)
	default:
		g.logger.Error(op+" failed", slog.Any("error", err))
		return status.Errorf(codes.Internal, "%s failed", op)
	}
}
