package conv

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/convkit/convkit/pkg/core"
)

// tokenPath is the platform's token-exchange endpoint, relative to the
// API origin.
const tokenPath = "/v1/convai/conversation/token"

// resolveToken implements the authentication resolution order: a direct
// token is used verbatim; otherwise an agent id is exchanged for one;
// otherwise creation fails.
func resolveToken(ctx context.Context, cfg SessionConfig) (string, error) {
	if cfg.Token != "" {
		return cfg.Token, nil
	}
	if cfg.AgentID == "" {
		return "", core.NewAuthenticationError("either a session token or an agent id is required")
	}
	return fetchConversationToken(ctx, cfg)
}

// fetchConversationToken performs the token-exchange call for an agent
// id, including client source/version metadata.
func fetchConversationToken(ctx context.Context, cfg SessionConfig) (string, error) {
	endpoint := apiOrigin(cfg.Origin) + tokenPath
	query := url.Values{}
	query.Set("agent_id", cfg.AgentID)
	query.Set("source", cfg.Source)
	query.Set("version", cfg.Version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", core.NewTokenExchangeError("build token request", err)
	}

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return "", core.NewTokenExchangeError("token exchange request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", core.NewTokenExchangeError(
			"authentication required: the agent is not public, provide a conversation token instead", nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", core.NewTokenExchangeError(
			fmt.Sprintf("token exchange returned status %d", resp.StatusCode), nil)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", core.NewTokenExchangeError("decode token response", err)
	}
	if body.Token == "" {
		return "", core.NewTokenExchangeError("token response is missing the token field", nil)
	}
	return body.Token, nil
}

// apiOrigin derives the HTTP origin for the token exchange. An explicit
// override is used as-is; otherwise the media-room default origin has
// its websocket scheme rewritten.
func apiOrigin(override string) string {
	origin := override
	if origin == "" {
		origin = DefaultOrigin
	}
	switch {
	case strings.HasPrefix(origin, "wss://"):
		return "https://" + strings.TrimPrefix(origin, "wss://")
	case strings.HasPrefix(origin, "ws://"):
		return "http://" + strings.TrimPrefix(origin, "ws://")
	default:
		return origin
	}
}

// newDefaultHTTPClient configures transport-level timeouts while
// leaving overall request lifetime to context deadlines.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: transport}
}
