// Package main is the entrypoint for the deadline-check Lambda function.
//
// An EventBridge schedule invokes it once per tick with an empty payload. The
// handler runs one scheduler pass against the current time, or against
// reference_time when the payload carries one. A payload naming a
// report_request_id performs an operator re-send of that request instead.
//
// Overlapping invocations are safe: the scheduler takes a job lock per tick
// window and per request before sending.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/lambda"

	"reportnotify/internal/app"
	"reportnotify/internal/config"
	"reportnotify/internal/scheduler"
	"reportnotify/internal/types"
)

// Invocation modes reported in Response.Mode.
const (
	modeTick   = "tick"
	modeManual = "manual"
)

// DeadlineService is the slice of the scheduler the handler drives.
type DeadlineService interface {
	CheckAndNotify(ctx context.Context, now time.Time) (*scheduler.TickResult, error)
	SendNotificationManually(ctx context.Context, id int64) (int, error)
}

// Response is returned to the invoker and recorded by Lambda.
type Response struct {
	Mode            string                `json:"mode"`
	ReferenceTime   time.Time             `json:"reference_time"`
	Tick            *scheduler.TickResult `json:"tick,omitempty"`
	ReportRequestID int64                 `json:"report_request_id,omitempty"`
	SentCount       int                   `json:"sent_count,omitempty"`
}

// Handler holds the dependencies for the Lambda handler function.
type Handler struct {
	Service DeadlineService
	Clock   types.Clock
	Logger  *slog.Logger
}

// Handle processes one TickPayload.
func (h *Handler) Handle(ctx context.Context, payload scheduler.TickPayload) (*Response, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := h.Clock
	if clock == nil {
		clock = types.RealClock{}
	}

	now := clock.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	if payload.ReportRequestID != nil {
		id := *payload.ReportRequestID
		logger.InfoContext(ctx, "deadline-check manual send invoked", "report_request_id", id)

		sent, err := h.Service.SendNotificationManually(ctx, id)
		if err != nil {
			logger.ErrorContext(ctx, "manual send failed", "report_request_id", id, "error", err)
			return nil, fmt.Errorf("manual send for report request %d: %w", id, err)
		}
		return &Response{Mode: modeManual, ReferenceTime: now, ReportRequestID: id, SentCount: sent}, nil
	}

	logger.InfoContext(ctx, "deadline-check tick invoked", "reference_time", now.Format(time.RFC3339))

	result, err := h.Service.CheckAndNotify(ctx, now)
	if err != nil {
		logger.ErrorContext(ctx, "deadline check failed", "error", err)
		return nil, fmt.Errorf("deadline check at %s: %w", now.Format(time.RFC3339), err)
	}
	return &Response{Mode: modeTick, ReferenceTime: now, Tick: result}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("deadline-check Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// The pool and broker connection live for the lifetime of the execution
	// environment; Lambda gives no shutdown hook to close them.
	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		Service: application.Scheduler,
		Clock:   types.RealClock{},
		Logger:  logger,
	}

	logger.Info("deadline-check Lambda initialized",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	lambda.Start(handler.Handle)
}
