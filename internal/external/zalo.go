package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reportnotify/internal/types"
)

// Default Zalo Official Account endpoints. Both are overridable via
// ZaloClientConfig so tests and staging can point elsewhere.
const (
	zaloOAuthBase = "https://oauth.zaloapp.com/v4/oa"
	zaloAPIBase   = "https://openapi.zalo.me/v2.0/oa"
)

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = 3600 * time.Second

// zaloErrorMissing marks a response body that carried no "error" field.
const zaloErrorMissing = -1

// ZaloClientConfig holds the configuration for creating a ZaloClient.
type ZaloClientConfig struct {
	AppID        string
	AppSecret    types.SecretString
	OAuthBaseURL string // defaults to zaloOAuthBase
	APIBaseURL   string // defaults to zaloAPIBase
	UserAgent    string
	Logger       *slog.Logger
}

// ZaloClient talks to the Zalo Official Account APIs through BaseClient.
//
// Token refresh and profile lookup are retried once on 429/5xx. Message sends
// never retry because a send that timed out may still have been delivered.
// All three share one breaker per host.
type ZaloClient struct {
	oauth     *BaseClient
	profile   *BaseClient
	send      *BaseClient
	appID     string
	appSecret types.SecretString
	oauthBase string
	apiBase   string
	logger    *slog.Logger
}

// NewZaloClient creates a ZaloClient. The httpClient timeout bounds every
// call, including reading the response body.
func NewZaloClient(httpClient *http.Client, cfg ZaloClientConfig, opts ...BaseClientOption) *ZaloClient {
	oauthBase := cfg.OAuthBaseURL
	if oauthBase == "" {
		oauthBase = zaloOAuthBase
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = zaloAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	apiBreaker := NewBreaker("zalo-openapi")
	return &ZaloClient{
		oauth:     NewBaseClient(httpClient, "zalo-oauth", DefaultRetryPolicy(), cfg.UserAgent, opts...),
		profile:   NewBaseClientWithBreaker(httpClient, apiBreaker, DefaultRetryPolicy(), cfg.UserAgent, opts...),
		send:      NewBaseClientWithBreaker(httpClient, apiBreaker, NoRetry(), cfg.UserAgent, opts...),
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		oauthBase: strings.TrimRight(oauthBase, "/"),
		apiBase:   strings.TrimRight(apiBase, "/"),
		logger:    logger,
	}
}

// zaloTokenResponse is the token endpoint payload. On failure the endpoint
// answers 200 with error/error_name/error_description and no access_token.
type zaloTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	ExpiresIn        any    `json:"expires_in"`
	Error            int    `json:"error"`
	ErrorName        string `json:"error_name"`
	ErrorDescription string `json:"error_description"`
}

// RefreshAccessToken exchanges refreshToken for a new access token.
// Every failure is reported as upstream_token_refresh_failed; the
// upstream_status detail carries the HTTP status when one was received.
func (c *ZaloClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*types.TokenGrant, error) {
	if c.appID == "" || c.appSecret.IsEmpty() {
		return nil, types.NewAppError(types.ErrCodeUnavailableConfig, "zalo app id and secret must be configured", nil)
	}

	form := url.Values{}
	form.Set("refresh_token", refreshToken)
	form.Set("app_id", c.appID)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthBase+"/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("secret_key", c.appSecret.Unmask())

	resp, err := c.oauth.Do(req)
	if err != nil {
		var upstream *types.AppError
		if errors.As(err, &upstream) {
			if status, ok := upstream.Details["upstream_status"].(int); ok {
				return nil, refreshError(fmt.Sprintf("token endpoint returned %d", status), err, status)
			}
		}
		return nil, refreshError("token endpoint unreachable", err, 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, refreshError("failed to read token response", err, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, refreshError(fmt.Sprintf("token endpoint returned %d", resp.StatusCode),
			fmt.Errorf("body: %s", truncate(body, 256)), resp.StatusCode)
	}

	var tr zaloTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, refreshError("failed to parse token response", err, resp.StatusCode)
	}
	if tr.AccessToken == "" {
		return nil, refreshError("token response carried no access_token",
			fmt.Errorf("zalo error %d %s: %s", tr.Error, tr.ErrorName, tr.ErrorDescription), resp.StatusCode)
	}

	c.logger.InfoContext(ctx, "zalo access token refreshed",
		"rotated_refresh_token", tr.RefreshToken != "",
	)

	return &types.TokenGrant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Scope:        tr.Scope,
		ExpiresIn:    parseExpiresIn(tr.ExpiresIn),
	}, nil
}

// parseExpiresIn accepts expires_in as either a JSON number or a numeric
// string; the endpoint has returned both.
func parseExpiresIn(v any) time.Duration {
	var seconds int64
	switch x := v.(type) {
	case float64:
		seconds = int64(x)
	case string:
		if _, err := fmt.Sscanf(x, "%d", &seconds); err != nil {
			seconds = 0
		}
	}
	if seconds <= 0 {
		return defaultTokenLifetime
	}
	return time.Duration(seconds) * time.Second
}

func refreshError(msg string, err error, status int) *types.AppError {
	details := map[string]any{}
	if status != 0 {
		details["upstream_status"] = status
	}
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamTokenRefresh, msg, err, details)
}

// zaloEnvelope is the common shape of OpenAPI responses. Error is a pointer so
// a missing field can be told apart from a zero (success) value.
type zaloEnvelope struct {
	Error   *int            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ZaloProfile is the subset of the getprofile payload the notifier uses.
type ZaloProfile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// GetProfile looks up the platform user registered under phone. A non-zero
// platform error code is returned as an upstream_messaging_unavailable error
// with the code in details.
func (c *ZaloClient) GetProfile(ctx context.Context, accessToken, proof, phone string) (*ZaloProfile, error) {
	data, err := json.Marshal(map[string]string{"user_id": phone})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode profile query", err)
	}
	endpoint := c.apiBase + "/getprofile?" + url.Values{"data": {string(data)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create profile request", err)
	}
	c.setAuthHeaders(req, accessToken, proof)

	resp, err := c.profile.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}
	if code := envelopeCode(env); code != 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamMessaging, "profile lookup rejected", nil,
			map[string]any{"zalo_error": code, "zalo_message": env.Message})
	}

	var profile ZaloProfile
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &profile); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamMessaging, "failed to parse profile data", err)
		}
	}
	return &profile, nil
}

// SendResult is the platform verdict for a single text message.
type SendResult struct {
	Delivered bool
	ErrorCode int
	Message   string
}

// SendTextMessage posts text to the platform user userID.
//
// A returned error means the request could not be completed (transport,
// breaker, 429/5xx). A completed request whose body reports a non-zero or
// missing error code yields Delivered=false with a nil error.
func (c *ZaloClient) SendTextMessage(ctx context.Context, accessToken, proof, userID, text string) (*SendResult, error) {
	payload := map[string]any{
		"recipient": map[string]string{"user_id": userID},
		"message":   map[string]string{"text": text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/message", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create message request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req, accessToken, proof)

	resp, err := c.send.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &SendResult{ErrorCode: zaloErrorMissing, Message: fmt.Sprintf("http %d", resp.StatusCode)}, nil
	}

	env, err := decodeEnvelope(resp)
	if err != nil {
		return &SendResult{ErrorCode: zaloErrorMissing, Message: "unparseable response"}, nil
	}
	code := envelopeCode(env)
	return &SendResult{Delivered: code == 0, ErrorCode: code, Message: env.Message}, nil
}

func (c *ZaloClient) setAuthHeaders(req *http.Request, accessToken, proof string) {
	req.Header.Set("access_token", accessToken)
	if proof != "" {
		req.Header.Set("appsecret_proof", proof)
	}
}

func decodeEnvelope(resp *http.Response) (*zaloEnvelope, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMessaging, "failed to read response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamMessaging,
			fmt.Sprintf("zalo returned %d", resp.StatusCode), nil,
			map[string]any{"upstream_status": resp.StatusCode})
	}
	var env zaloEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMessaging, "failed to parse response", err)
	}
	return &env, nil
}

func envelopeCode(env *zaloEnvelope) int {
	if env.Error == nil {
		return zaloErrorMissing
	}
	return *env.Error
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
