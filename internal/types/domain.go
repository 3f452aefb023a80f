package types

import (
	"fmt"
	"time"
)

// ReportRequest is an assignment asking a set of users to submit a report
// before Deadline. LastDeadlineNotificationSentAt is set at most once by the
// automatic path and is never cleared by this service.
type ReportRequest struct {
	ID                             int64               `json:"id"`
	Title                          string              `json:"title"`
	Deadline                       time.Time           `json:"deadline"`
	CreatedAt                      time.Time           `json:"created_at"`
	Status                         ReportRequestStatus `json:"status"`
	LastDeadlineNotificationSentAt *time.Time          `json:"last_deadline_notification_sent_at,omitempty"`
}

// IsNotified reports whether a deadline notification has been recorded.
func (r *ReportRequest) IsNotified() bool {
	return r.LastDeadlineNotificationSentAt != nil
}

// User is a potential recipient. Empty Phone or ExternalMessagingID means absent.
type User struct {
	ID                  int64  `json:"id"`
	Email               string `json:"email"`
	FullName            string `json:"full_name"`
	Phone               string `json:"phone,omitempty"`
	ExternalMessagingID string `json:"external_messaging_id,omitempty"`
	IsActive            bool   `json:"is_active"`
}

// OAuthToken is the single credential row used for all chat-platform calls.
type OAuthToken struct {
	ID           int64        `json:"id"`
	AccessToken  SecretString `json:"access_token"`
	RefreshToken SecretString `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	Scope        string       `json:"scope,omitempty"`
	ExpiresAt    time.Time    `json:"expires_at"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ExpiresWithin reports whether the token expires before now+d.
func (t *OAuthToken) ExpiresWithin(now time.Time, d time.Duration) bool {
	return t.ExpiresAt.Before(now.Add(d))
}

// TokenGrant is the parsed result of a successful refresh-token exchange.
// RefreshToken is empty when the platform did not rotate it.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    time.Duration
}

// TokenInfo is the operator-facing view of the stored token. It never carries
// the raw access or refresh token.
type TokenInfo struct {
	ID             int64     `json:"id"`
	TokenType      string    `json:"token_type"`
	Scope          string    `json:"scope,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	IsExpired      bool      `json:"is_expired"`
	IsExpiringSoon bool      `json:"is_expiring_soon"`
	ExpiresIn      string    `json:"expires_in"`
}

// expiringSoonWindow marks a token as "expiring soon" for operators.
const expiringSoonWindow = time.Hour

// NewTokenInfo derives the operator view of t as of now.
func NewTokenInfo(t *OAuthToken, now time.Time) *TokenInfo {
	return &TokenInfo{
		ID:             t.ID,
		TokenType:      t.TokenType,
		Scope:          t.Scope,
		ExpiresAt:      t.ExpiresAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		IsExpired:      t.ExpiresAt.Before(now),
		IsExpiringSoon: t.ExpiresAt.Before(now.Add(expiringSoonWindow)),
		ExpiresIn:      humanizeRemaining(t.ExpiresAt.Sub(now)),
	}
}

func humanizeRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	hours := int64(d / time.Hour)
	minutes := int64((d % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// RecipientOutcome records what happened for one recipient of a dispatch.
type RecipientOutcome struct {
	UserID     int64          `json:"user_id"`
	Identifier string         `json:"identifier,omitempty"`
	Result     DispatchResult `json:"result"`
	Reason     string         `json:"reason,omitempty"`
}

// DispatchSummary reduces the per-recipient outcomes of one dispatch.
type DispatchSummary struct {
	ReportRequestID int64              `json:"report_request_id"`
	Outcomes        []RecipientOutcome `json:"outcomes"`
	Sent            int                `json:"sent"`
	Skipped         int                `json:"skipped"`
	Failed          int                `json:"failed"`
	// Marked is true when this dispatch stamped the notification marker.
	Marked bool `json:"marked"`
}

// Add appends an outcome and updates the counters.
func (s *DispatchSummary) Add(o RecipientOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Result {
	case DispatchSent:
		s.Sent++
	case DispatchSkippedNoIdentifier:
		s.Skipped++
	case DispatchFailed:
		s.Failed++
	}
}
