package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultUserAgent = "spread-radar/1.0"

// restClient holds the shared plumbing of the JSON REST venues.
type restClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func newRESTClient(baseURL, fallbackURL, userAgent string, timeout time.Duration) restClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = fallbackURL
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	return restClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// getJSON issues a GET against baseURL+path and decodes the body into out.
func (r restClient) getJSON(ctx context.Context, venue, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(venue, resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", venue, err)
	}
	return nil
}

type errorResponse struct {
	Code    json.RawMessage `json:"code"`
	RetMsg  string          `json:"retMsg"`
	Message string          `json:"msg"`
}

func parseHTTPError(venue string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.RetMsg != "" {
			return fmt.Errorf("%s api error (%d): %s", venue, status, apiErr.RetMsg)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s api error (%d): %s", venue, status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s api error (%d): %s", venue, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s api error (%d)", venue, status)
}

func clampLevels(levels int) int {
	if levels <= 0 {
		return DefaultLevels
	}
	return levels
}
