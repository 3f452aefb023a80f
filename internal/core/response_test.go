package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reportnotify/internal/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v (%s)", err, rec.Body.String())
	}
	return resp.Error
}

func TestJSON_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusCreated, APIResponse{Data: map[string]int{"sent_count": 3}})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":{"sent_count":3}}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"ch": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("unexpected code %q", e.Code)
	}
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrCodeValidationMissingField, http.StatusBadRequest},
		{types.ErrCodeAuthTokenInvalid, http.StatusUnauthorized},
		{types.ErrCodeNotFoundReportRequest, http.StatusNotFound},
		{types.ErrCodeConflictRequestInactive, http.StatusConflict},
		{types.ErrCodeConflictRequestOverdue, http.StatusConflict},
		{types.ErrCodeUpstreamTokenRefresh, http.StatusBadGateway},
		{types.ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{types.ErrCodeUnavailableTokenUninitialized, http.StatusServiceUnavailable},
		{types.ErrCodeUnavailableConfig, http.StatusServiceUnavailable},
		{types.ErrCodeInternalDB, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))
			rec := httptest.NewRecorder()
			Error(rec, req, fmt.Errorf("wrapped: %w", types.NewAppError(tt.code, "msg", nil)))

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			e := decodeError(t, rec)
			if e.Code != string(tt.code) || e.RequestID != "req-1" {
				t.Errorf("unexpected error body %+v", e)
			}
		})
	}
}

func TestError_DetailsExposedCauseHidden(t *testing.T) {
	rec := httptest.NewRecorder()
	cause := fmt.Errorf("dial tcp 10.0.0.1:443: i/o timeout")
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		types.NewAppErrorWithDetails(types.ErrCodeUpstreamTokenRefresh, "token refresh failed", cause, map[string]any{"upstream_status": 400}))

	if strings.Contains(rec.Body.String(), "10.0.0.1") {
		t.Errorf("wrapped cause leaked: %s", rec.Body.String())
	}
	e := decodeError(t, rec)
	if e.Details["upstream_status"] != float64(400) {
		t.Errorf("expected upstream_status detail, got %+v", e.Details)
	}
}

func TestError_GenericError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("secret internals"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret internals") {
		t.Error("generic error message leaked")
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		RefreshToken string `json:"refresh_token"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"refresh_token":"abc"}`, false},
		{"unknown field", `{"refresh_token":"abc","extra":1}`, true},
		{"syntax", `{"refresh_token":`, true},
		{"empty", ``, true},
		{"type mismatch", `{"refresh_token":5}`, true},
		{"two values", `{"refresh_token":"a"}{"refresh_token":"b"}`, true},
		{"too large", `{"refresh_token":"` + strings.Repeat("x", maxRequestBodySize) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !types.IsCode(err, errCodeValidationInvalidJSON) {
				t.Errorf("expected validation_invalid_json, got %v", err)
			}
			if !tt.wantErr && dst.RefreshToken != "abc" {
				t.Errorf("expected decoded token, got %q", dst.RefreshToken)
			}
		})
	}
}
