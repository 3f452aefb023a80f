package scheduler

import "time"

// Job identifiers used for job_locks rows and job_history entries.
const (
	JobTypeDeadlineCheck = "deadline_check"
	lockPrefixRequest    = "deadline_notify"
)

// TickPayload is the JSON event accepted by the deadline-check Lambda.
//
//	{
//	  "reference_time": "2026-03-01T10:00:00Z",  // optional
//	  "report_request_id": 42                     // optional, manual re-send
//	}
type TickPayload struct {
	// ReferenceTime replaces "now" for replays and backfills.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
	// ReportRequestID, when set, runs SendNotificationManually for that
	// request instead of a scan.
	ReportRequestID *int64 `json:"report_request_id,omitempty"`
}

// TickResult summarizes one CheckAndNotify run.
type TickResult struct {
	// LockHeld is true when another worker owns this tick window.
	LockHeld   bool `json:"lock_held"`
	Candidates int  `json:"candidates"`
	Eligible   int  `json:"eligible"`
	Notified   int  `json:"notified"`
	Failed     int  `json:"failed"`
}
