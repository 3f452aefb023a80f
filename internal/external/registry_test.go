package external

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"reportnotify/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestNewClientRegistry_NilConfig(t *testing.T) {
	if _, err := NewClientRegistry(nil, testLogger()); err == nil {
		t.Fatal("expected error for nil config")
	}
}

// TestNewClientRegistry_UsesConfiguredEndpoints verifies the Zalo client is
// built from cfg.Zalo rather than the package defaults.
func TestNewClientRegistry_UsesConfiguredEndpoints(t *testing.T) {
	var gotPath, gotUA, gotSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		gotSecret = r.Header.Get("secret_key")
		w.Write([]byte(`{"access_token":"a","refresh_token":"r","expires_in":3600}`))
	}))
	defer server.Close()

	cfg := &config.Config{Environment: "local"}
	cfg.Zalo.AppID = "app-1"
	cfg.Zalo.AppSecret = "s3cret"
	cfg.Zalo.OAuthBaseURL = server.URL + "/custom/oauth/"
	cfg.Zalo.APIBaseURL = server.URL + "/custom/api"
	cfg.Zalo.UserAgent = "Registry-Test/1.0"

	reg, err := NewClientRegistry(cfg, testLogger(), WithSleepFunc(noopSleep))
	if err != nil {
		t.Fatalf("NewClientRegistry returned error: %v", err)
	}
	if reg.Zalo == nil {
		t.Fatal("Zalo is nil")
	}

	if _, err := reg.Zalo.RefreshAccessToken(context.Background(), "r0"); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if gotPath != "/custom/oauth/access_token" {
		t.Errorf("expected configured oauth base, got path %q", gotPath)
	}
	if gotUA != "Registry-Test/1.0" {
		t.Errorf("expected configured user agent, got %q", gotUA)
	}
	if gotSecret != "s3cret" {
		t.Errorf("expected app secret header, got %q", gotSecret)
	}
}
