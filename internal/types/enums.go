package types

// ReportRequestStatus represents the lifecycle state of a report request.
type ReportRequestStatus string

const (
	ReportStatusPending    ReportRequestStatus = "PENDING"
	ReportStatusInProgress ReportRequestStatus = "IN_PROGRESS"
	ReportStatusSubmitted  ReportRequestStatus = "SUBMITTED"
	ReportStatusCompleted  ReportRequestStatus = "COMPLETED"
	ReportStatusCancelled  ReportRequestStatus = "CANCELLED"
)

// ActiveReportStatuses are the statuses that still expect a submission.
var ActiveReportStatuses = []ReportRequestStatus{ReportStatusPending, ReportStatusInProgress}

// IsActive reports whether the status still expects a submission.
func (s ReportRequestStatus) IsActive() bool {
	for _, a := range ActiveReportStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// DispatchResult is the per-recipient outcome of a dispatch attempt.
type DispatchResult string

const (
	DispatchSent                DispatchResult = "sent"
	DispatchSkippedNoIdentifier DispatchResult = "skipped_no_identifier"
	DispatchFailed              DispatchResult = "failed"
)

// JobStatus tracks a scheduled job run in job_history.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)
