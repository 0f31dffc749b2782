package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lensmirror/backend/internal/lens"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Client talks to the remote content platform over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientConfig describes the dependencies for the HTTP fetcher.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient constructs an HTTP-backed Fetcher.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// recordPayload is the combined lens+unlock document the platform serves
// for a hash lookup.
type recordPayload struct {
	lens.Lens
	LensURL           string       `json:"lens_url"`
	Signature         string       `json:"signature"`
	HintID            string       `json:"hint_id"`
	AdditionalHintIDs lens.JSONMap `json:"additional_hint_ids"`
}

// FetchByHash implements Fetcher.
func (c *Client) FetchByHash(ctx context.Context, hash string) (*Record, error) {
	var payload recordPayload
	found, err := c.getJSON(ctx, "/lenses/"+url.PathEscape(hash), nil, &payload)
	if err != nil || !found {
		return nil, err
	}

	record := &Record{Lens: payload.Lens}
	if payload.LensURL != "" {
		record.Unlock = &lens.Unlock{
			LensID:            payload.Lens.ID,
			LensURL:           payload.LensURL,
			Signature:         payload.Signature,
			HintID:            payload.HintID,
			AdditionalHintIDs: payload.AdditionalHintIDs,
		}
	}
	return record, nil
}

// SearchByKeyword implements Fetcher.
func (c *Client) SearchByKeyword(ctx context.Context, term string) ([]lens.Lens, error) {
	var payload struct {
		Lenses []lens.Lens `json:"lenses"`
	}
	query := url.Values{"query": {term}}
	if _, err := c.getJSON(ctx, "/search", query, &payload); err != nil {
		return nil, err
	}
	return payload.Lenses, nil
}

// ListByCreator implements Fetcher.
func (c *Client) ListByCreator(ctx context.Context, slug string, offset, limit int) ([]lens.Lens, error) {
	var payload struct {
		Lenses []lens.Lens `json:"lenses"`
	}
	query := url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}
	if _, err := c.getJSON(ctx, "/creator/"+url.PathEscape(slug), query, &payload); err != nil {
		return nil, err
	}
	return payload.Lenses, nil
}

// getJSON issues a GET and decodes a JSON body. It reports found=false on a
// 404 without error so callers can treat absence as an empty result.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) (bool, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return false, fmt.Errorf("remote: request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if response.StatusCode != http.StatusOK {
		c.logger.Warn("remote platform returned unexpected status",
			zap.String("path", path),
			zap.Int("status", response.StatusCode))
		return false, fmt.Errorf("remote: unexpected status %d", response.StatusCode)
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return false, fmt.Errorf("remote: decode failed: %w", err)
	}
	return true, nil
}
