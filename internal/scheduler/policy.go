package scheduler

import (
	"math"
	"time"

	"reportnotify/internal/types"
)

// Policy decides whether an active report request is due for its automatic
// deadline reminder.
type Policy struct {
	// ElapsedThreshold is the fraction of the request window that must have
	// passed before a reminder is due.
	ElapsedThreshold float64
	// MinRemaining makes a reminder due regardless of the elapsed fraction once
	// fewer whole minutes than this remain.
	MinRemaining time.Duration
}

// DefaultPolicy reminds at 80% of the window or with under 30 minutes left.
func DefaultPolicy() Policy {
	return Policy{ElapsedThreshold: 0.8, MinRemaining: 30 * time.Minute}
}

// Decision is the outcome of Policy.Evaluate, kept for logging.
type Decision struct {
	Eligible         bool
	AlreadyNotified  bool
	ElapsedFraction  float64
	MinutesRemaining int64
}

// Evaluate applies the policy to req at now. A request whose marker is set is
// never eligible.
func (p Policy) Evaluate(req *types.ReportRequest, now time.Time) Decision {
	if req.IsNotified() {
		return Decision{AlreadyNotified: true}
	}

	d := Decision{
		ElapsedFraction:  ElapsedFraction(req.CreatedAt, req.Deadline, now),
		MinutesRemaining: int64(math.Floor(req.Deadline.Sub(now).Minutes())),
	}
	d.Eligible = d.ElapsedFraction >= p.ElapsedThreshold ||
		d.MinutesRemaining < int64(p.MinRemaining/time.Minute)
	return d
}

// ElapsedFraction returns how much of [createdAt, deadline] has passed at now,
// clamped below at zero. A window with no positive length counts as fully
// elapsed.
func ElapsedFraction(createdAt, deadline, now time.Time) float64 {
	total := deadline.Sub(createdAt).Seconds()
	if total <= 0 {
		return 1.0
	}
	f := now.Sub(createdAt).Seconds() / total
	if f < 0 {
		return 0
	}
	return f
}
