package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reportnotify/internal/external"
	"reportnotify/internal/types"
)

// MarkPolicy selects how a successful dispatch stamps the notification marker.
type MarkPolicy int

const (
	// MarkIfUnset stamps only when no other writer has; used by the scheduler.
	MarkIfUnset MarkPolicy = iota
	// MarkAlways overwrites the marker; used by operator-triggered sends.
	MarkAlways
)

// MessageSender posts a text message to one platform user.
type MessageSender interface {
	SendTextMessage(ctx context.Context, accessToken, proof, userID, text string) (*external.SendResult, error)
}

// IdentifierResolver maps a user to a platform identifier.
type IdentifierResolver interface {
	ResolveIdentifier(ctx context.Context, user *types.User) (string, bool)
}

// ReportStore is the report-request persistence the dispatcher needs.
type ReportStore interface {
	ListTargetUsers(ctx context.Context, requestID int64) ([]*types.User, error)
	MarkNotifiedIfUnset(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) error
}

// EventPublisher announces completed dispatches to downstream consumers.
type EventPublisher interface {
	PublishDeadlineNotification(ctx context.Context, evt types.DeadlineNotificationEvent) error
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Tokens   TokenProvider
	Sender   MessageSender
	Resolver IdentifierResolver
	Reports  ReportStore
	Events   EventPublisher // optional
	Metrics  Metrics        // optional
	Clock    types.Clock    // optional, defaults to RealClock
	Location *time.Location // zone used to display deadlines
	Logger   *slog.Logger
}

// Dispatcher sends deadline reminders for one report request at a time.
type Dispatcher struct {
	tokens   TokenProvider
	sender   MessageSender
	resolver IdentifierResolver
	reports  ReportStore
	events   EventPublisher
	metrics  Metrics
	clock    types.Clock
	loc      *time.Location
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		tokens:   cfg.Tokens,
		sender:   cfg.Sender,
		resolver: cfg.Resolver,
		reports:  cfg.Reports,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
		loc:      cfg.Location,
		logger:   cfg.Logger,
	}
	if d.metrics == nil {
		d.metrics = NoopMetrics{}
	}
	if d.clock == nil {
		d.clock = types.RealClock{}
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Send delivers text to identifier. It returns false with a nil error when
// the platform rejected the message, and an error only when the request
// could not be made (configuration, token, transport).
func (d *Dispatcher) Send(ctx context.Context, identifier, text string) (bool, error) {
	accessToken, err := d.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return false, err
	}
	res, err := d.sender.SendTextMessage(ctx, accessToken, d.tokens.ComputeSigningProof(accessToken), identifier, text)
	if err != nil {
		return false, err
	}
	if !res.Delivered {
		d.logger.WarnContext(ctx, "message rejected by platform",
			"zalo_error", res.ErrorCode,
			"zalo_message", res.Message,
		)
	}
	return res.Delivered, nil
}

// RenderDeadlineMessage renders the reminder for req using the dispatcher's
// clock and display zone.
func (d *Dispatcher) RenderDeadlineMessage(req *types.ReportRequest) string {
	return RenderDeadlineMessage(req, d.clock.Now(), d.loc)
}

// DispatchToRequest sends the reminder to every active target user of req
// and stamps the marker per policy when at least one message was delivered.
//
// The error is non-nil only for failures that affect the whole request: no
// usable token, the recipient query failing, or the marker write failing.
// Per-recipient problems are recorded in the summary.
func (d *Dispatcher) DispatchToRequest(ctx context.Context, req *types.ReportRequest, policy MarkPolicy, trigger string) (*types.DispatchSummary, error) {
	summary := &types.DispatchSummary{ReportRequestID: req.ID}
	logger := d.logger.With("report_request_id", req.ID, "trigger", trigger)

	// Credential problems abort the whole request.
	if _, err := d.tokens.GetValidAccessToken(ctx); err != nil {
		return summary, err
	}

	targets, err := d.reports.ListTargetUsers(ctx, req.ID)
	if err != nil {
		return summary, err
	}
	recipients := make([]*types.User, 0, len(targets))
	for _, u := range targets {
		if u.IsActive {
			recipients = append(recipients, u)
		}
	}
	if len(recipients) == 0 {
		logger.WarnContext(ctx, "report request has no active recipients")
		return summary, nil
	}

	text := d.RenderDeadlineMessage(req)

	for i, user := range recipients {
		if ctx.Err() != nil {
			logger.WarnContext(ctx, "dispatch interrupted", "error", ctx.Err())
			break
		}
		outcome, err := d.deliver(ctx, logger, user, text)
		summary.Add(outcome)
		d.metrics.RecordDelivery(ctx, trigger, outcome.Result)

		// The remaining recipients would fail the same way; do not hit the
		// token endpoint once per recipient.
		if types.IsSystemic(err) {
			for _, rest := range recipients[i+1:] {
				summary.Add(types.RecipientOutcome{UserID: rest.ID, Result: types.DispatchFailed, Reason: outcome.Reason})
				d.metrics.RecordDelivery(ctx, trigger, types.DispatchFailed)
			}
			logger.ErrorContext(ctx, "credential failure, remaining recipients not attempted",
				"not_attempted", len(recipients)-i-1,
				"error", err,
			)
			break
		}
	}

	if summary.Sent == 0 {
		logger.WarnContext(ctx, "no recipient received the deadline notification",
			"skipped", summary.Skipped,
			"failed", summary.Failed,
		)
		return summary, nil
	}

	// Stamp even when ctx was cancelled after a delivery.
	markCtx := context.WithoutCancel(ctx)
	now := d.clock.Now()
	switch policy {
	case MarkAlways:
		if err := d.reports.MarkNotified(markCtx, req.ID, now); err != nil {
			return summary, err
		}
		summary.Marked = true
	default:
		marked, err := d.reports.MarkNotifiedIfUnset(markCtx, req.ID, now)
		if err != nil {
			return summary, err
		}
		summary.Marked = marked
		if !marked {
			logger.WarnContext(ctx, "notification marker was already set by another writer")
		}
	}

	logger.InfoContext(ctx, "deadline notification dispatched",
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"recipients", len(recipients),
	)

	d.publish(markCtx, req, summary, trigger)
	return summary, nil
}

// deliver sends text to one user. The returned error is the send failure, if
// any; it is already reflected in the outcome.
func (d *Dispatcher) deliver(ctx context.Context, logger *slog.Logger, user *types.User, text string) (types.RecipientOutcome, error) {
	outcome := types.RecipientOutcome{UserID: user.ID}

	identifier, ok := d.resolver.ResolveIdentifier(ctx, user)
	if !ok {
		outcome.Result = types.DispatchSkippedNoIdentifier
		logger.DebugContext(ctx, "recipient skipped, no platform identifier", "user_id", user.ID)
		return outcome, nil
	}
	outcome.Identifier = identifier

	sent, err := d.Send(ctx, identifier, text)
	switch {
	case err != nil:
		outcome.Result = types.DispatchFailed
		outcome.Reason = err.Error()
		attrs := []any{"user_id", user.ID, "error", err}
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			if status, found := appErr.Details["upstream_status"]; found {
				attrs = append(attrs, "upstream_status", status)
			}
		}
		logger.ErrorContext(ctx, "failed to send deadline notification", attrs...)
	case !sent:
		outcome.Result = types.DispatchFailed
		outcome.Reason = "rejected by platform"
	default:
		outcome.Result = types.DispatchSent
	}
	return outcome, err
}

func (d *Dispatcher) publish(ctx context.Context, req *types.ReportRequest, summary *types.DispatchSummary, trigger string) {
	if d.events == nil {
		return
	}
	evt := types.DeadlineNotificationEvent{
		EventID:         uuid.NewString(),
		ReportRequestID: req.ID,
		Title:           req.Title,
		Deadline:        req.Deadline,
		Trigger:         trigger,
		Sent:            summary.Sent,
		Skipped:         summary.Skipped,
		Failed:          summary.Failed,
		OccurredAt:      d.clock.Now(),
		TraceID:         types.GetRequestID(ctx),
	}
	if err := d.events.PublishDeadlineNotification(ctx, evt); err != nil {
		d.logger.WarnContext(ctx, "failed to publish deadline notification event",
			"report_request_id", req.ID,
			"error", err,
		)
	}
}
