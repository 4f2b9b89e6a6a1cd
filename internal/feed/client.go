package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/Cortex/internal/roster"
)

// Client pulls the day's roster from the scheduling system.
type Client interface {
	FetchRoster(ctx context.Context) (roster.Document, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) FetchRoster(ctx context.Context) (roster.Document, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/roster/today", nil)
	if err != nil {
		return roster.Document{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return roster.Document{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return roster.Document{}, err
	}
	if resp.StatusCode >= 400 {
		return roster.Document{}, fmt.Errorf("roster feed: %d %s", resp.StatusCode, string(body))
	}

	var doc roster.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return roster.Document{}, fmt.Errorf("roster feed: decode: %w", err)
	}
	return doc, nil
}
