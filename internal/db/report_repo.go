package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reportnotify/internal/types"
)

// ReportRequestRepository reads report requests and records the deadline
// notification marker.
type ReportRequestRepository struct {
	db DBTX
}

// NewReportRequestRepository creates a ReportRequestRepository backed by db.
func NewReportRequestRepository(db DBTX) *ReportRequestRepository {
	return &ReportRequestRepository{db: db}
}

const reportRequestColumns = `id, title, deadline, created_at, status, last_deadline_notification_sent_at`

func scanReportRequest(row pgx.Row) (*types.ReportRequest, error) {
	var (
		r      types.ReportRequest
		status string
	)
	if err := row.Scan(
		&r.ID,
		&r.Title,
		&r.Deadline,
		&r.CreatedAt,
		&status,
		&r.LastDeadlineNotificationSentAt,
	); err != nil {
		return nil, err
	}
	r.Status = types.ReportRequestStatus(status)
	return &r, nil
}

// ListActiveBeforeDeadline returns requests whose status is in statuses and
// whose deadline is still after now, soonest deadline first.
func (r *ReportRequestRepository) ListActiveBeforeDeadline(ctx context.Context, statuses []types.ReportRequestStatus, now time.Time) ([]*types.ReportRequest, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+reportRequestColumns+`
		 FROM report_requests
		 WHERE status = ANY($1) AND deadline > $2
		 ORDER BY deadline ASC`,
		names,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active report requests", err)
	}
	defer rows.Close()

	var result []*types.ReportRequest
	for rows.Next() {
		req, err := scanReportRequest(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan report request", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating report requests", err)
	}
	return result, nil
}

// GetByID returns one report request or a not_found_report_request error.
func (r *ReportRequestRepository) GetByID(ctx context.Context, id int64) (*types.ReportRequest, error) {
	req, err := scanReportRequest(r.db.QueryRow(ctx,
		`SELECT `+reportRequestColumns+` FROM report_requests WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundReportRequest, fmt.Sprintf("report request %d not found", id), nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get report request", err)
	}
	return req, nil
}

// ListTargetUsers returns the users directly assigned to the request.
func (r *ReportRequestRepository) ListTargetUsers(ctx context.Context, requestID int64) ([]*types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+`
		 FROM report_request_targets t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.report_request_id = $1
		 ORDER BY u.id ASC`,
		requestID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list target users", err)
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan target user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating target users", err)
	}
	return users, nil
}

// MarkNotifiedIfUnset stamps the marker only when it is still NULL. It returns
// false when another writer stamped it first.
func (r *ReportRequestRepository) MarkNotifiedIfUnset(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE report_requests
		 SET last_deadline_notification_sent_at = $2
		 WHERE id = $1 AND last_deadline_notification_sent_at IS NULL`,
		id,
		at,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark report request notified", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkNotified stamps the marker unconditionally (manual re-sends).
func (r *ReportRequestRepository) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE report_requests SET last_deadline_notification_sent_at = $2 WHERE id = $1`,
		id,
		at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark report request notified", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReportRequest, fmt.Sprintf("report request %d not found", id), nil)
	}
	return nil
}
