package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// JSONClient issues GET requests against JSON APIs.
type JSONClient struct {
	client    *http.Client
	userAgent string
}

// NewJSONClient builds a JSONClient with the given identity and timeout.
func NewJSONClient(userAgent string, timeout time.Duration) *JSONClient {
	return &JSONClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: newHTTPTransport(),
		},
		userAgent: userAgent,
	}
}

// GetJSON fetches url and decodes the response body into out. Extra
// headers ride along verbatim, which NVD uses for its API key.
func (c *JSONClient) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
