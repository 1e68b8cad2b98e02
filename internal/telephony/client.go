package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lead-response/internal/calls"
)

const defaultClientTimeout = 15 * time.Second

// restClient is the JSON-over-HTTPS transport both providers share.
type restClient struct {
	provider calls.Provider
	baseURL  string
	apiKey   string
	http     *http.Client
}

func newRESTClient(provider calls.Provider, baseURL, apiKey string, hc *http.Client) restClient {
	if hc == nil {
		hc = &http.Client{Timeout: defaultClientTimeout}
	}
	return restClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     hc,
	}
}

func (c restClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.provider, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ProviderError{Provider: c.provider, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ProviderError{Provider: c.provider, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Provider: c.provider, StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Provider: c.provider, StatusCode: resp.StatusCode, Message: "invalid response body"}
	}
	return nil
}

// errorMessage pulls the human-readable message out of a provider error body.
func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Message any    `json:"message"`
		Error   any    `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, v := range []any{body.Message, body.Error} {
			switch m := v.(type) {
			case string:
				if m != "" {
					return m
				}
			case []any:
				parts := make([]string, 0, len(m))
				for _, p := range m {
					parts = append(parts, fmt.Sprint(p))
				}
				if len(parts) > 0 {
					return strings.Join(parts, "; ")
				}
			}
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		if len(s) > 300 {
			s = s[:300]
		}
		return s
	}
	return fallback
}
