package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	graphScope = "https://graph.microsoft.com/.default"

	// maxExpiryMargin is how long before expiry a token stops being reused.
	// Tokens that live less than twice this long use half their lifetime.
	maxExpiryMargin = 5 * time.Minute
)

// tokenEndpoint returns the Microsoft identity platform v2 token URL for a
// tenant.
func tokenEndpoint(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(tenantID))
}

// tokenError is an error response from the token endpoint.
type tokenError struct {
	statusCode  int
	code        string
	description string
}

func (e *tokenError) Error() string {
	if e.code == "" {
		return fmt.Sprintf("token endpoint returned %d: %s", e.statusCode, e.description)
	}
	return fmt.Sprintf("token endpoint returned %d: %s: %s", e.statusCode, e.code, e.description)
}

// transient reports whether asking again later may succeed.
func (e *tokenError) transient() bool {
	return e.statusCode == http.StatusTooManyRequests || e.statusCode >= 500
}

// tokenSource hands out client-credentials access tokens, reusing one until
// it is close to expiry. It is safe for concurrent use.
type tokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	mu          sync.Mutex
	accessToken string
	validUntil  time.Time
}

func newTokenSource(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenSource {
	return &tokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Token returns the cached token, fetching a new one when there is none or
// it is about to expire.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.accessToken != "" && ts.now().Before(ts.validUntil) {
		return ts.accessToken, nil
	}
	return ts.fetch(ctx)
}

// ForceRefresh drops the cached token and fetches a new one. The Graph API
// answering 401 means the cached token was revoked early.
func (ts *tokenSource) ForceRefresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.accessToken = ""
	return ts.fetch(ctx)
}

// fetch requests a token. The caller must hold ts.mu.
func (ts *tokenSource) fetch(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
		"scope":         {graphScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	issued := ts.now()
	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", parseTokenError(resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	ts.accessToken = tr.AccessToken
	ts.validUntil = issued.Add(lifetime - expiryMargin(lifetime))

	return ts.accessToken, nil
}

func expiryMargin(lifetime time.Duration) time.Duration {
	return min(maxExpiryMargin, lifetime/2)
}

// parseTokenError decodes an OAuth2 error body, falling back to the raw text.
func parseTokenError(status int, body []byte) *tokenError {
	var oe struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oe); err == nil && oe.Error != "" {
		return &tokenError{statusCode: status, code: oe.Error, description: oe.Description}
	}
	return &tokenError{statusCode: status, description: strings.TrimSpace(string(body))}
}
