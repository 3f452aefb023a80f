package external

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"reportnotify/internal/config"
)

// defaultZaloTimeout applies when ZALO_HTTP_TIMEOUT is unset or zero.
const defaultZaloTimeout = 10 * time.Second

// ClientRegistry holds the outbound platform clients built from configuration.
// It is the single place binaries construct third-party clients.
type ClientRegistry struct {
	Zalo *ZaloClient
}

// NewClientRegistry builds the platform clients with their timeouts and
// endpoints taken from cfg.Zalo. opts are passed to every BaseClient.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...BaseClientOption) (*ClientRegistry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Zalo.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultZaloTimeout
	}

	logger.Info("initializing external clients",
		"environment", cfg.Environment,
		"zalo_oauth_base", cfg.Zalo.OAuthBaseURL,
		"zalo_api_base", cfg.Zalo.APIBaseURL,
		"timeout", timeout.String(),
	)

	zalo := NewZaloClient(&http.Client{Timeout: timeout}, ZaloClientConfig{
		AppID:        cfg.Zalo.AppID,
		AppSecret:    cfg.Zalo.AppSecret,
		OAuthBaseURL: cfg.Zalo.OAuthBaseURL,
		APIBaseURL:   cfg.Zalo.APIBaseURL,
		UserAgent:    cfg.Zalo.UserAgent,
		Logger:       logger.With("client", "zalo"),
	}, opts...)

	return &ClientRegistry{Zalo: zalo}, nil
}
