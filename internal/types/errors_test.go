package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorErrorFormat verifies the Error() method produces "code: message".
func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundReportRequest,
		Message: "report request 42 not found",
	}

	expected := "not_found_report_request: report request 42 not found"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

// TestAppErrorUnwrap verifies the error chain support via Unwrap.
func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeUpstreamTokenRefresh, "token refresh failed", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the underlying error through Unwrap")
	}

	wrapped := fmt.Errorf("tick aborted: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeUpstreamTokenRefresh {
		t.Errorf("extracted Code = %q, want %q", target.Code, ErrCodeUpstreamTokenRefresh)
	}
}

func TestAppErrorWithDetails(t *testing.T) {
	original := NewAppErrorWithDetails(
		ErrCodeUpstreamTokenRefresh,
		"token refresh failed",
		nil,
		map[string]any{"upstream_status": 400},
	)

	enhanced := original.WithDetails(map[string]any{"attempt": 1})

	if _, ok := original.Details["attempt"]; ok {
		t.Error("WithDetails should not mutate the original error")
	}
	if enhanced.Details["upstream_status"] != 400 {
		t.Errorf("enhanced should retain original detail: %v", enhanced.Details)
	}
	if enhanced.Details["attempt"] != 1 {
		t.Errorf("enhanced should have new detail: %v", enhanced.Details)
	}
	if enhanced.Code != original.Code || enhanced.Message != original.Message {
		t.Error("Code and Message should carry over")
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidID, http.StatusBadRequest},
		{ErrCodeAuthTokenMissing, http.StatusUnauthorized},
		{ErrCodeNotFoundReportRequest, http.StatusNotFound},
		{ErrCodeNotFoundUser, http.StatusNotFound},
		{ErrCodeConflictRequestInactive, http.StatusConflict},
		{ErrCodeConflictRequestOverdue, http.StatusConflict},
		{ErrCodeUnavailableConfig, http.StatusServiceUnavailable},
		{ErrCodeUnavailableTokenUninitialized, http.StatusServiceUnavailable},
		{ErrCodeUpstreamTokenRefresh, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	inner := NewAppError(ErrCodeUpstreamUnavailable, "connection reset", nil)
	outer := NewAppError(ErrCodeUpstreamTokenRefresh, "token refresh failed", inner)
	wrapped := fmt.Errorf("get token: %w", outer)

	if !IsCode(wrapped, ErrCodeUpstreamTokenRefresh) {
		t.Error("IsCode should match the outer code")
	}
	if !IsCode(wrapped, ErrCodeUpstreamUnavailable) {
		t.Error("IsCode should match a nested code")
	}
	if IsCode(wrapped, ErrCodeInternalDB) {
		t.Error("IsCode should not match an absent code")
	}
	if IsCode(errors.New("plain"), ErrCodeInternalDB) {
		t.Error("IsCode should be false for non-AppError chains")
	}
	if IsCode(nil, ErrCodeInternalDB) {
		t.Error("IsCode should be false for nil")
	}
}

func TestIsSystemic(t *testing.T) {
	systemic := []ErrorCode{
		ErrCodeUnavailableConfig,
		ErrCodeUnavailableTokenUninitialized,
		ErrCodeUpstreamTokenRefresh,
	}
	for _, code := range systemic {
		if !IsSystemic(NewAppError(code, "x", nil)) {
			t.Errorf("IsSystemic(%s) = false, want true", code)
		}
	}

	if IsSystemic(NewAppError(ErrCodeUpstreamMessaging, "send failed", nil)) {
		t.Error("a single send failure is not systemic")
	}
}
