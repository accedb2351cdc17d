package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const httpTimeout = 10 * time.Second

// HTTPClient is a Client over the provider's REST API. Every call is
// timeboxed by the underlying http.Client, so a slow provider can delay a
// response field but never a challenge state transition.
type HTTPClient struct {
	base string
	hc   *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a provider client for the given base URL.
func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{
		base: base,
		hc:   &http.Client{Timeout: httpTimeout},
	}
}

func (c *HTTPClient) LookupUserByCard(ctx context.Context, cardNumber string) (string, error) {
	var out struct {
		UserID string `json:"user_id"`
	}
	status, err := c.getJSON(ctx, "/cards/"+url.PathEscape(cardNumber), &out)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound || out.UserID == "" {
		return "", ErrUnknownCard
	}
	return out.UserID, nil
}

func (c *HTTPClient) AvailableMethods(ctx context.Context, user string) ([]string, error) {
	var out struct {
		Methods []string `json:"methods"`
	}
	status, err := c.getJSON(ctx, "/users/"+url.PathEscape(user)+"/methods", &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", status)
	}
	return out.Methods, nil
}

func (c *HTTPClient) SendAuthRequest(ctx context.Context, user, factor string) (map[string]any, error) {
	payload, err := json.Marshal(map[string]string{"username": user, "factor": factor})
	if err != nil {
		return nil, fmt.Errorf("encode auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/auth", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send auth request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode provider response: %w", err)
	}
	return resp.StatusCode, nil
}
