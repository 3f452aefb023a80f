package external

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reportnotify/internal/types"
)

// ---------------------------------------------------------------------------
// Helper: ZaloClient pointed at an httptest server
// ---------------------------------------------------------------------------

func newTestZaloClient(t *testing.T, serverURL string) *ZaloClient {
	t.Helper()
	return NewZaloClient(
		&http.Client{Timeout: 5 * time.Second},
		ZaloClientConfig{
			AppID:        "app-123",
			AppSecret:    "secret-xyz",
			OAuthBaseURL: serverURL + "/v4/oa",
			APIBaseURL:   serverURL + "/v2.0/oa",
			UserAgent:    "ReportNotify-Test/1.0",
		},
		WithSleepFunc(noopSleep),
	)
}

// ---------------------------------------------------------------------------
// RefreshAccessToken
// ---------------------------------------------------------------------------

func TestZaloClient_RefreshAccessToken_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v4/oa/access_token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("secret_key"); got != "secret-xyz" {
			t.Errorf("expected secret_key header 'secret-xyz', got %q", got)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("expected form content type, got %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("refresh_token") != "old-refresh" ||
			r.PostForm.Get("app_id") != "app-123" ||
			r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":"90000"}`))
	}))
	defer server.Close()

	grant, err := newTestZaloClient(t, server.URL).RefreshAccessToken(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.AccessToken != "new-access" || grant.RefreshToken != "new-refresh" {
		t.Errorf("unexpected grant: %+v", grant)
	}
	if grant.ExpiresIn != 90000*time.Second {
		t.Errorf("expected 90000s lifetime, got %v", grant.ExpiresIn)
	}
}

func TestZaloClient_RefreshAccessToken_DefaultsExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"new-access"}`))
	}))
	defer server.Close()

	grant, err := newTestZaloClient(t, server.URL).RefreshAccessToken(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.ExpiresIn != time.Hour {
		t.Errorf("expected default 1h lifetime, got %v", grant.ExpiresIn)
	}
	if grant.RefreshToken != "" {
		t.Errorf("expected no rotated refresh token, got %q", grant.RefreshToken)
	}
}

func TestZaloClient_RefreshAccessToken_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus any
	}{
		{"http 400", http.StatusBadRequest, `{"error":-14014}`, http.StatusBadRequest},
		{"error payload", http.StatusOK, `{"error":-14014,"error_name":"Invalid refresh token"}`, http.StatusOK},
		{"unparseable body", http.StatusOK, `<html>`, http.StatusOK},
		{"bad gateway", http.StatusBadGateway, ``, http.StatusBadGateway},
		{"service unavailable", http.StatusServiceUnavailable, ``, http.StatusServiceUnavailable},
		{"rate limited", http.StatusTooManyRequests, ``, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestZaloClient(t, server.URL).RefreshAccessToken(context.Background(), "old-refresh")
			appErr := requireAppError(t, err, types.ErrCodeUpstreamTokenRefresh)
			if appErr.Details["upstream_status"] != tt.wantStatus {
				t.Errorf("expected upstream_status %v, got %v", tt.wantStatus, appErr.Details["upstream_status"])
			}
			if strings.Contains(appErr.Message, "unreachable") {
				t.Errorf("endpoint answered, message should not claim it was unreachable: %q", appErr.Message)
			}
		})
	}
}

func TestZaloClient_RefreshAccessToken_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestZaloClient(t, url).RefreshAccessToken(context.Background(), "old-refresh")
	appErr := requireAppError(t, err, types.ErrCodeUpstreamTokenRefresh)
	if _, ok := appErr.Details["upstream_status"]; ok {
		t.Errorf("no status was received, got upstream_status %v", appErr.Details["upstream_status"])
	}
	if !strings.Contains(appErr.Message, "unreachable") {
		t.Errorf("expected unreachable message, got %q", appErr.Message)
	}
}

func TestZaloClient_RefreshAccessToken_MissingCredentials(t *testing.T) {
	client := NewZaloClient(&http.Client{}, ZaloClientConfig{AppID: "app-123"})

	_, err := client.RefreshAccessToken(context.Background(), "old-refresh")
	requireAppError(t, err, types.ErrCodeUnavailableConfig)
}

// ---------------------------------------------------------------------------
// GetProfile
// ---------------------------------------------------------------------------

func TestZaloClient_GetProfile(t *testing.T) {
	var gotProof, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2.0/oa/getprofile" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var data map[string]string
		if err := json.Unmarshal([]byte(r.URL.Query().Get("data")), &data); err != nil {
			t.Fatalf("data param is not JSON: %v", err)
		}
		if data["user_id"] != "84901234567" {
			t.Errorf("expected phone in data.user_id, got %q", data["user_id"])
		}
		gotToken = r.Header.Get("access_token")
		gotProof = r.Header.Get("appsecret_proof")
		w.Write([]byte(`{"error":0,"message":"Success","data":{"user_id":"zuid-1","display_name":"An"}}`))
	}))
	defer server.Close()

	profile, err := newTestZaloClient(t, server.URL).GetProfile(context.Background(), "tok", "proof-hex", "84901234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.UserID != "zuid-1" {
		t.Errorf("expected user id zuid-1, got %q", profile.UserID)
	}
	if gotToken != "tok" || gotProof != "proof-hex" {
		t.Errorf("unexpected auth headers: access_token=%q appsecret_proof=%q", gotToken, gotProof)
	}
}

func TestZaloClient_GetProfile_OmitsEmptyProof(t *testing.T) {
	var hasProof bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasProof = len(r.Header.Values("appsecret_proof")) > 0
		w.Write([]byte(`{"error":0,"data":{"user_id":"zuid-1"}}`))
	}))
	defer server.Close()

	if _, err := newTestZaloClient(t, server.URL).GetProfile(context.Background(), "tok", "", "0901"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasProof {
		t.Error("expected appsecret_proof header to be omitted")
	}
}

func TestZaloClient_GetProfile_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":-213,"message":"User has not followed OA"}`))
	}))
	defer server.Close()

	_, err := newTestZaloClient(t, server.URL).GetProfile(context.Background(), "tok", "", "0901")
	appErr := requireAppError(t, err, types.ErrCodeUpstreamMessaging)
	if appErr.Details["zalo_error"] != -213 {
		t.Errorf("expected zalo_error -213, got %v", appErr.Details["zalo_error"])
	}
}

// ---------------------------------------------------------------------------
// SendTextMessage
// ---------------------------------------------------------------------------

func TestZaloClient_SendTextMessage_Body(t *testing.T) {
	var got map[string]map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2.0/oa/message" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		w.Write([]byte(`{"error":0,"message":"Success","data":{"message_id":"m1"}}`))
	}))
	defer server.Close()

	res, err := newTestZaloClient(t, server.URL).SendTextMessage(context.Background(), "tok", "p", "zuid-1", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Delivered {
		t.Errorf("expected delivered, got %+v", res)
	}
	if got["recipient"]["user_id"] != "zuid-1" || got["message"]["text"] != "hello" {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestZaloClient_SendTextMessage_Verdicts(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
	}{
		{"platform rejection", http.StatusOK, `{"error":-230,"message":"User not interacted in 7 days"}`, -230},
		{"missing error field", http.StatusOK, `{"message":"ok"}`, -1},
		{"unparseable body", http.StatusOK, `not json`, -1},
		{"client error status", http.StatusForbidden, `{}`, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			res, err := newTestZaloClient(t, server.URL).SendTextMessage(context.Background(), "tok", "", "zuid-1", "hi")
			if err != nil {
				t.Fatalf("expected verdict, got error: %v", err)
			}
			if res.Delivered {
				t.Error("expected not delivered")
			}
			if res.ErrorCode != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, res.ErrorCode)
			}
		})
	}
}

func TestZaloClient_SendTextMessage_NotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestZaloClient(t, server.URL).SendTextMessage(context.Background(), "tok", "", "zuid-1", "hi")
	requireAppError(t, err, types.ErrCodeUpstreamUnavailable)
	if calls != 1 {
		t.Errorf("expected a single send attempt, got %d", calls)
	}
}

func TestParseExpiresIn(t *testing.T) {
	tests := []struct {
		in   any
		want time.Duration
	}{
		{float64(7200), 2 * time.Hour},
		{"3600", time.Hour},
		{nil, time.Hour},
		{"abc", time.Hour},
		{float64(0), time.Hour},
	}
	for _, tt := range tests {
		if got := parseExpiresIn(tt.in); got != tt.want {
			t.Errorf("parseExpiresIn(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
