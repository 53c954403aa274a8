// Package apisource lists document URLs published through a
// regulations.gov-style JSON:API endpoint.
package apisource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultEndpoint is the regulations.gov documents collection.
const DefaultEndpoint = "https://api.regulations.gov/v4/documents"

// ErrUnexpectedStatus is returned for non-200 API responses.
var ErrUnexpectedStatus = errors.New("unexpected api status")

// Config controls the API client.
type Config struct {
	Endpoint string
	APIKey   string
	Sort     string
	PageSize int
	MaxPages int
	Timeout  time.Duration
}

// Waiter throttles requests.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Client pages through the documents collection.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter Waiter
	logger  *zap.Logger
}

type documentsPage struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Attachments []struct {
				FileURL string `json:"fileUrl"`
			} `json:"attachments"`
		} `json:"attributes"`
	} `json:"data"`
	Meta struct {
		HasNextPage *bool `json:"hasNextPage"`
	} `json:"meta"`
}

// New validates cfg and returns a Client. httpClient and limiter may be nil.
func New(cfg Config, httpClient *http.Client, limiter Waiter, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, limiter: limiter, logger: logger.Named("apisource")}, nil
}

// Documents returns the first attachment URL of every listed document,
// newest first, deduplicated. URLs gathered before a failing page are
// returned alongside the error.
func (c *Client) Documents(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var urls []string
	for page := 1; page <= c.cfg.MaxPages; page++ {
		body, err := c.fetchPage(ctx, page)
		if err != nil {
			return urls, err
		}
		for _, item := range body.Data {
			if len(item.Attributes.Attachments) == 0 {
				continue
			}
			fileURL := strings.TrimSpace(item.Attributes.Attachments[0].FileURL)
			if fileURL == "" {
				continue
			}
			if _, dup := seen[fileURL]; dup {
				continue
			}
			seen[fileURL] = struct{}{}
			urls = append(urls, fileURL)
		}
		c.logger.Debug("api page read", zap.Int("page", page), zap.Int("items", len(body.Data)))
		if len(body.Data) == 0 || (body.Meta.HasNextPage != nil && !*body.Meta.HasNextPage) {
			break
		}
	}
	return urls, nil
}

func (c *Client) pageURL(page int) string {
	u, _ := url.Parse(c.cfg.Endpoint)
	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	if c.cfg.Sort != "" {
		q.Set("sort", c.cfg.Sort)
	}
	q.Set("page[size]", strconv.Itoa(c.cfg.PageSize))
	q.Set("page[number]", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) fetchPage(ctx context.Context, page int) (*documentsPage, error) {
	target := c.pageURL(page)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build api request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json, application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api page %d: %w", page, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close api response", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("api page %d: status %d: %w", page, resp.StatusCode, ErrUnexpectedStatus)
	}
	var body documentsPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode api page %d: %w", page, err)
	}
	return &body, nil
}
