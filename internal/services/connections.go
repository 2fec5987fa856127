// Package services holds the clients for the external collaborators a run
// reaches through its pieces: the connection service and the file service
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kode4food/argyll/worker/pkg/piece"
)

type (
	// HTTPConnections obtains connection values from the controller API and
	// caches them for a short TTL
	HTTPConnections struct {
		client  *http.Client
		baseURL string
		token   string
		cache   *cache.Cache
	}

	// StaticConnections serves a fixed set of connection values
	StaticConnections struct {
		values map[string]any
		mu     sync.RWMutex
	}
)

const connectionsPath = "/v1/worker/app-connections/"

var (
	ErrConnectionNotFound = piece.ErrConnectionNotFound
	ErrConnectionFetch    = errors.New("failed to fetch connection")
)

var (
	_ piece.Connections = (*HTTPConnections)(nil)
	_ piece.Connections = (*StaticConnections)(nil)
)

// NewHTTPConnections creates a connection client for the API at baseURL,
// authenticating with the engine token
func NewHTTPConnections(
	client *http.Client, baseURL, token string, ttl time.Duration,
) *HTTPConnections {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPConnections{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// Obtain returns the value of the named connection
func (c *HTTPConnections) Obtain(
	ctx context.Context, name string,
) (any, error) {
	if v, ok := c.cache.Get(name); ok {
		return v, nil
	}

	u := c.baseURL + connectionsPath + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFetch, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %s", ErrConnectionFetch, resp.Status)
	}

	var conn struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conn); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFetch, err)
	}
	c.cache.SetDefault(name, conn.Value)
	return conn.Value, nil
}

// NewStaticConnections serves the given values by name
func NewStaticConnections(values map[string]any) *StaticConnections {
	res := &StaticConnections{values: map[string]any{}}
	for k, v := range values {
		res.values[k] = v
	}
	return res
}

// Set adds or replaces a connection value
func (c *StaticConnections) Set(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
}

// Obtain returns the value of the named connection
func (c *StaticConnections) Obtain(_ context.Context, name string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
}
