// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/mtxchat/lib/ref"
	"github.com/bureau-foundation/mtxchat/lib/secret"
)

// maxResponseSize bounds every response body read. A /sync over one
// filtered room is far below this.
const maxResponseSize = 32 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver (e.g., "https://matrix.org").
	HomeserverURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// DeviceDisplayName is sent with password logins. Defaults to "mtxchat".
	DeviceDisplayName string
}

// Client is an unauthenticated Matrix client.
// It holds the homeserver URL and HTTP transport, shared across sessions.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	logger            *slog.Logger
	deviceDisplayName string
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	// The string form (trailing slash stripped) is kept and request URLs
	// are built by concatenation. url.URL.String() would re-encode Path
	// and mangle escaped aliases.
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must use http or https", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	displayName := config.DeviceDisplayName
	if displayName == "" {
		displayName = "mtxchat"
	}

	return &Client{
		baseURL:           strings.TrimRight(config.HomeserverURL, "/"),
		httpClient:        httpClient,
		logger:            logger,
		deviceDisplayName: displayName,
	}, nil
}

// BaseURL returns the homeserver URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a network disruption so
// the next request dials fresh instead of reusing a dead connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// LoginFlows returns the login types the homeserver accepts.
func (c *Client) LoginFlows(ctx context.Context) ([]LoginFlow, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/login", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: login flows failed: %w", err)
	}

	var response LoginFlowsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse login flows response: %w", err)
	}
	return response.Flows, nil
}

// SupportsPasswordLogin reports whether m.login.password is among the
// homeserver's login flows.
func (c *Client) SupportsPasswordLogin(ctx context.Context) (bool, error) {
	flows, err := c.LoginFlows(ctx)
	if err != nil {
		return false, err
	}
	for _, flow := range flows {
		if flow.Type == LoginTypePassword {
			return true, nil
		}
	}
	return false, nil
}

// Login authenticates with a user identifier (localpart or full user
// ID) and password, returning a DirectSession. The password Buffer is
// read but not closed; the caller retains ownership. A nil password is
// sent as an empty one and left to the homeserver to reject.
func (c *Client) Login(ctx context.Context, user string, password *secret.Buffer) (*DirectSession, error) {
	if user == "" {
		return nil, fmt.Errorf("messaging: user is required for login")
	}

	// Password is converted to string at the JSON serialization boundary.
	// The heap copy lives only for the duration of the request.
	loginRequest := LoginRequest{
		Type:                     LoginTypePassword,
		Identifier:               UserIdentifier{Type: "m.id.user", User: user},
		InitialDeviceDisplayName: c.deviceDisplayName,
	}
	if password != nil {
		loginRequest.Password = password.String()
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, loginRequest)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse login response: %w", err)
	}
	if authResponse.AccessToken == "" {
		return nil, fmt.Errorf("messaging: login response for %s carried no access token", user)
	}

	c.logger.Info("logged in to matrix",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	return c.sessionFromAuth(&authResponse)
}

// SessionFromToken creates a DirectSession from an existing access
// token string. The token is moved into mmap-backed memory. This does
// NOT validate the token; use WhoAmI for that. userID may be zero when
// it is not yet known (a WhoAmI call will tell).
//
// The caller must call Close on the returned DirectSession when done.
func (c *Client) SessionFromToken(userID ref.UserID, accessToken string) (*DirectSession, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("messaging: access token is empty")
	}
	tokenBuffer, err := secret.NewFromString(accessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      userID,
	}, nil
}

func (c *Client) sessionFromAuth(auth *AuthResponse) (*DirectSession, error) {
	tokenBuffer, err := secret.NewFromString(auth.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      auth.UserID,
		deviceID:    auth.DeviceID,
	}, nil
}

// doRequest performs an HTTP request to the homeserver and returns the response body.
// On 2xx, returns the body. On 4xx/5xx, returns a *MatrixError.
// accessToken may be nil for unauthenticated endpoints.
// query may be nil for endpoints without query parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All Matrix error responses use the same JSON shape.
	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil || matrixErr.Code == "" {
		return nil, fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode

	return nil, &matrixErr
}
