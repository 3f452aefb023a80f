// Package scheduler runs the periodic deadline check that sends automatic
// reminders, and the operator-triggered manual send.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reportnotify/internal/notifications"
	"reportnotify/internal/types"
)

// ReportReader lists and re-reads report requests.
type ReportReader interface {
	ListActiveBeforeDeadline(ctx context.Context, statuses []types.ReportRequestStatus, now time.Time) ([]*types.ReportRequest, error)
	GetByID(ctx context.Context, id int64) (*types.ReportRequest, error)
}

// RequestDispatcher sends the reminder for one request.
type RequestDispatcher interface {
	DispatchToRequest(ctx context.Context, req *types.ReportRequest, policy notifications.MarkPolicy, trigger string) (*types.DispatchSummary, error)
}

// TokenChecker verifies a usable access token exists before a scan.
type TokenChecker interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// JobLocker is the job_locks table.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobRecorder is the job_history table.
type JobRecorder interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status types.JobStatus, items int, jobErr error) error
}

// Config wires a DeadlineScheduler. Locks, History, Metrics, Clock and Logger
// are optional.
type Config struct {
	Reports    ReportReader
	Dispatcher RequestDispatcher
	Tokens     TokenChecker
	Locks      JobLocker
	History    JobRecorder
	Metrics    notifications.Metrics

	Policy   Policy
	Interval time.Duration
	LockTTL  time.Duration

	Clock  types.Clock
	Logger *slog.Logger
}

// DeadlineScheduler finds active report requests whose reminder is due and
// dispatches them, at most once per request on the automatic path.
type DeadlineScheduler struct {
	reports    ReportReader
	dispatcher RequestDispatcher
	tokens     TokenChecker
	locks      JobLocker
	history    JobRecorder
	metrics    notifications.Metrics
	policy     Policy
	interval   time.Duration
	lockTTL    time.Duration
	workerID   string
	clock      types.Clock
	logger     *slog.Logger
}

const (
	defaultInterval = 15 * time.Minute
	defaultLockTTL  = 10 * time.Minute
)

// NewDeadlineScheduler creates a DeadlineScheduler. A zero Policy means
// DefaultPolicy.
func NewDeadlineScheduler(cfg Config) *DeadlineScheduler {
	s := &DeadlineScheduler{
		reports:    cfg.Reports,
		dispatcher: cfg.Dispatcher,
		tokens:     cfg.Tokens,
		locks:      cfg.Locks,
		history:    cfg.History,
		metrics:    cfg.Metrics,
		policy:     cfg.Policy,
		interval:   cfg.Interval,
		lockTTL:    cfg.LockTTL,
		workerID:   uuid.NewString(),
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if s.policy == (Policy{}) {
		s.policy = DefaultPolicy()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.metrics == nil {
		s.metrics = notifications.NoopMetrics{}
	}
	if s.clock == nil {
		s.clock = types.RealClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run ticks immediately and then every interval until ctx is cancelled.
// Tick errors are logged and do not stop the loop.
func (s *DeadlineScheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "deadline scheduler started", "interval", s.interval, "worker_id", s.workerID)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.CheckAndNotify(ctx, s.clock.Now()); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "deadline check failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "deadline scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// CheckAndNotify runs one scan at now. Failures before the scan (lock store,
// token) abort the tick; failures for one request are logged and the scan
// moves on.
func (s *DeadlineScheduler) CheckAndNotify(ctx context.Context, now time.Time) (*TickResult, error) {
	start := time.Now()
	result := &TickResult{}

	if s.locks != nil {
		lockID := fmt.Sprintf("%s:%s", JobTypeDeadlineCheck, now.Truncate(s.interval).UTC().Format(time.RFC3339))
		ok, err := s.locks.Acquire(ctx, lockID, s.workerID, s.lockTTL)
		if err != nil {
			return result, err
		}
		if !ok {
			s.logger.InfoContext(ctx, "deadline check already running elsewhere", "lock_id", lockID)
			result.LockHeld = true
			return result, nil
		}
		defer s.release(ctx, lockID)
	}

	histID := s.startHistory(ctx)
	err := s.scan(ctx, now, result)
	s.finishHistory(ctx, histID, result, err)

	s.metrics.RecordTick(ctx, time.Since(start), result.Notified)
	s.logger.InfoContext(ctx, "deadline check complete",
		"candidates", result.Candidates,
		"eligible", result.Eligible,
		"notified", result.Notified,
		"failed", result.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, err
}

func (s *DeadlineScheduler) scan(ctx context.Context, now time.Time, result *TickResult) error {
	if _, err := s.tokens.GetValidAccessToken(ctx); err != nil {
		return fmt.Errorf("token preflight: %w", err)
	}

	requests, err := s.reports.ListActiveBeforeDeadline(ctx, types.ActiveReportStatuses, now)
	if err != nil {
		return err
	}
	result.Candidates = len(requests)

	for _, req := range requests {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		decision := s.policy.Evaluate(req, now)
		if !decision.Eligible {
			continue
		}
		result.Eligible++

		notified, err := s.notifyRequest(ctx, req.ID, now)
		if err != nil {
			result.Failed++
			s.logger.ErrorContext(ctx, "deadline notification failed",
				"report_request_id", req.ID,
				"elapsed_fraction", decision.ElapsedFraction,
				"minutes_remaining", decision.MinutesRemaining,
				"error", err,
			)
			continue
		}
		if notified {
			result.Notified++
		}
	}
	return nil
}

// notifyRequest dispatches one request under its job lock. The request is
// re-read under the lock so a marker stamped by another worker since the
// scan is honoured. Requests whose deadline has passed on the scheduler's
// clock are never dispatched, whatever now says.
func (s *DeadlineScheduler) notifyRequest(ctx context.Context, id int64, now time.Time) (bool, error) {
	if s.locks != nil {
		lockID := fmt.Sprintf("%s:%d", lockPrefixRequest, id)
		ok, err := s.locks.Acquire(ctx, lockID, s.workerID, s.lockTTL)
		if err != nil {
			return false, err
		}
		if !ok {
			s.logger.DebugContext(ctx, "report request locked by another worker", "report_request_id", id)
			return false, nil
		}
		defer s.release(ctx, lockID)
	}

	req, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !req.Status.IsActive() || !req.Deadline.After(now) || !s.policy.Evaluate(req, now).Eligible {
		return false, nil
	}
	if !req.Deadline.After(s.clock.Now()) {
		s.logger.DebugContext(ctx, "report request deadline already passed",
			"report_request_id", id, "reference_time", now, "deadline", req.Deadline)
		return false, nil
	}

	summary, err := s.dispatcher.DispatchToRequest(ctx, req, notifications.MarkIfUnset, types.TriggerAuto)
	if err != nil {
		return false, err
	}
	return summary.Sent > 0, nil
}

// SendNotificationManually sends the reminder for id now, ignoring the marker
// gate, and returns how many recipients received it. The request must be
// active with its deadline still ahead.
func (s *DeadlineScheduler) SendNotificationManually(ctx context.Context, id int64) (int, error) {
	req, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	if !req.Status.IsActive() {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeConflictRequestInactive,
			fmt.Sprintf("report request %d is %s", id, req.Status), nil,
			map[string]any{"status": string(req.Status)})
	}
	if !req.Deadline.After(now) {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeConflictRequestOverdue,
			fmt.Sprintf("report request %d deadline has passed", id), nil,
			map[string]any{"deadline": req.Deadline})
	}

	summary, err := s.dispatcher.DispatchToRequest(ctx, req, notifications.MarkAlways, types.TriggerManual)
	if summary == nil {
		return 0, err
	}
	return summary.Sent, err
}

func (s *DeadlineScheduler) release(ctx context.Context, lockID string) {
	if err := s.locks.Release(context.WithoutCancel(ctx), lockID, s.workerID); err != nil {
		s.logger.WarnContext(ctx, "failed to release job lock", "lock_id", lockID, "error", err)
	}
}

func (s *DeadlineScheduler) startHistory(ctx context.Context) int64 {
	if s.history == nil {
		return 0
	}
	id, err := s.history.Start(ctx, JobTypeDeadlineCheck)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record job start", "error", err)
		return 0
	}
	return id
}

func (s *DeadlineScheduler) finishHistory(ctx context.Context, id int64, result *TickResult, runErr error) {
	if s.history == nil || id == 0 {
		return
	}
	status := types.JobStatusSuccess
	if runErr != nil {
		status = types.JobStatusFailed
	}
	if err := s.history.Finish(context.WithoutCancel(ctx), id, status, result.Notified, runErr); err != nil {
		s.logger.WarnContext(ctx, "failed to record job finish", "job_history_id", id, "error", err)
	}
}
