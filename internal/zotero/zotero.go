// Package zotero resolves reference-manager item keys to CSL metadata
// through the Zotero Web API v3. Lookups go through a two-level cache:
// an in-memory LRU in front of an optional SQLite store on disk, so a
// manuscript with a hundred citations of the same few sources costs at
// most one request per distinct item.
package zotero

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/citekit/citelink/core/cache"
	"github.com/citekit/citelink/core/cite"
	cerrors "github.com/citekit/citelink/core/errors"
	"github.com/citekit/citelink/internal/logging"
)

// DefaultBaseURL is the Zotero Web API v3 endpoint.
const DefaultBaseURL = "https://api.zotero.org"

// Config configures a metadata client.
type Config struct {
	// UserID is the numeric Zotero user ID that owns the library.
	UserID string

	// APIKey authorizes access to non-public libraries. Optional for
	// public libraries.
	APIKey string

	// BaseURL overrides the API endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// CachePath is the SQLite store location. Empty disables the
	// on-disk level; the in-memory level is always active.
	CachePath string
}

// Client provides cached item lookups against the Zotero Web API.
type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	userID     string
	apiKey     string
	memory     *cache.ItemCache
	store      *Store
}

var _ cite.MetadataResolver = (*Client)(nil)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// IsNotFound returns true if this is a 404 error.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == 404
}

// NewClient creates a new metadata client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("zotero: user ID is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		userAgent: "citelink/1.0",
		baseURL:   strings.TrimRight(baseURL, "/"),
		userID:    cfg.UserID,
		apiKey:    cfg.APIKey,
		memory:    cache.NewDefaultItemCache(),
	}

	if cfg.CachePath != "" {
		store, err := OpenStore(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		c.store = store
	}
	return c, nil
}

// Close releases the on-disk store, if one is configured.
func (c *Client) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// MemoryStats returns statistics for the in-memory cache level.
func (c *Client) MemoryStats() cache.Stats {
	return c.memory.Stats()
}

// ResolveItem resolves an item key to its CSL metadata, consulting the
// memory cache, then the on-disk store, then the API.
func (c *Client) ResolveItem(ctx context.Context, key string) (*cite.Item, error) {
	if key == "" {
		return nil, fmt.Errorf("zotero: empty item key")
	}

	if item, ok := c.memory.Get(key); ok {
		logging.MetadataLookup(key, true, nil)
		return item, nil
	}

	if c.store != nil {
		item, err := c.store.Get(ctx, key)
		if err == nil {
			c.memory.Put(key, item)
			logging.MetadataLookup(key, true, nil)
			return item, nil
		}
		if !errors.Is(err, cerrors.ErrNotFound) {
			logging.Warn("item store read failed", "item_key", key, "error", err.Error())
		}
	}

	item, err := c.fetchItem(ctx, key)
	logging.MetadataLookup(key, false, err)
	if err != nil {
		return nil, err
	}

	c.memory.Put(key, item)
	if c.store != nil {
		if err := c.store.Put(ctx, key, item); err != nil {
			logging.Warn("item store write failed", "item_key", key, "error", err.Error())
		}
	}
	return item, nil
}

// fetchItem requests one item from the API in csljson format.
func (c *Client) fetchItem(ctx context.Context, key string) (*cite.Item, error) {
	itemURL := fmt.Sprintf("%s/users/%s/items/%s?format=csljson",
		c.baseURL, url.PathEscape(c.userID), url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, itemURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Zotero-API-Version", "3")
	if c.apiKey != "" {
		req.Header.Set("Zotero-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, cerrors.NewNotFound("item", key)
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return decodeItem(key, data)
}

// decodeItem unpacks a csljson response. Single-object requests still
// arrive wrapped in an items array; bare objects are accepted too.
func decodeItem(key string, data []byte) (*cite.Item, error) {
	var wrapper struct {
		Items []*cite.Item `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Items != nil {
		if len(wrapper.Items) == 0 {
			return nil, cerrors.NewNotFound("item", key)
		}
		return wrapper.Items[0], nil
	}

	var item cite.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decoding csljson for %s: %w", key, err)
	}
	return &item, nil
}
