package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	idxerrors "github.com/playbacklab/vidsearch/internal/errors"
	"github.com/playbacklab/vidsearch/internal/model"
)

// Defaults for the HTTP registry client.
const (
	DefaultTimeout           = 15 * time.Second
	DefaultCacheTTL          = 5 * time.Minute
	DefaultCacheSize         = 500
	DefaultRequestsPerSecond = 10
)

// HTTPConfig configures the HTTP registry client.
type HTTPConfig struct {
	Endpoint          string
	Timeout           time.Duration
	CacheTTL          time.Duration
	CacheSize         int
	RequestsPerSecond float64
	Retry             idxerrors.RetryConfig
}

// HTTPClient talks to the registry over HTTP. Manifest responses are cached
// with a TTL so re-index checks within the window do not refetch; listings
// are always fetched fresh because the sync gate already bounds their rate.
type HTTPClient struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig
	limiter   *rate.Limiter
	manifests *expirable.LRU[string, *model.Manifest]
	logger    *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

type listResponse struct {
	Videos []VideoMetadata `json:"videos"`
}

// NewHTTPClient creates a registry client for the given endpoint.
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("registry endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = idxerrors.DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}

	return &HTTPClient{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		manifests: expirable.NewLRU[string, *model.Manifest](cfg.CacheSize, nil, cfg.CacheTTL),
		logger:    logger,
	}, nil
}

// ListVideos fetches the full registry listing.
func (c *HTTPClient) ListVideos(ctx context.Context) ([]VideoMetadata, error) {
	return idxerrors.RetryWithResult(ctx, c.config.Retry, func() ([]VideoMetadata, error) {
		var out listResponse
		if err := c.getJSON(ctx, c.config.Endpoint+"/videos", &out); err != nil {
			return nil, err
		}
		return out.Videos, nil
	})
}

// GetManifest fetches the content manifest for a video, serving from the TTL
// cache when fresh.
func (c *HTTPClient) GetManifest(ctx context.Context, videoID string) (*model.Manifest, error) {
	if manifest, ok := c.manifests.Get(videoID); ok {
		return manifest, nil
	}

	manifest, err := idxerrors.RetryWithResult(ctx, c.config.Retry, func() (*model.Manifest, error) {
		var out model.Manifest
		if err := c.getJSON(ctx, c.config.Endpoint+"/videos/"+videoID+"/manifest", &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	c.manifests.Add(videoID, manifest)
	return manifest, nil
}

// InvalidateManifest drops a video's cached manifest so the next fetch hits
// the registry. Used by force reindex.
func (c *HTTPClient) InvalidateManifest(videoID string) {
	c.manifests.Remove(videoID)
}

// getJSON performs one rate-limited GET and decodes the JSON body into out.
func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return idxerrors.InternalError("failed to create registry request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return idxerrors.RegistryError("registry unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return idxerrors.New(idxerrors.ErrCodeRegistryMalformed, "failed to decode registry response", err)
	}
	return nil
}

// statusError maps non-2xx responses to the sentinel error taxonomy.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return idxerrors.New(idxerrors.ErrCodeVideoNotFound, "video not found in registry", nil).
			WithDetail("url", resp.Request.URL.String())
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return idxerrors.New(idxerrors.ErrCodeRegistryUnauthorized, "registry rejected credentials", nil).
			WithDetail("status", resp.Status)
	case resp.StatusCode >= 500:
		return idxerrors.RegistryError(fmt.Sprintf("registry returned %d: %s", resp.StatusCode, string(body)), nil)
	default:
		return idxerrors.New(idxerrors.ErrCodeRegistryMalformed,
			fmt.Sprintf("unexpected registry status %d: %s", resp.StatusCode, string(body)), nil)
	}
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
