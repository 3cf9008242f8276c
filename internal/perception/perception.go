// Package perception obtains ImageLayoutMaps from the external analysis
// service and caches them in the store.
package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// ErrNotConfigured is returned by Analyze when no service URL is set.
var ErrNotConfigured = errors.New("perception service not configured")

const maxResponseBytes = 1 << 20

// Cache stores analyses by image reference.
type Cache interface {
	GetImageLayout(ctx context.Context, imageRef string) (*creative.ImageLayoutMap, error)
	PutImageLayout(ctx context.Context, m creative.ImageLayoutMap) error
}

// Client calls the perception service.
type Client struct {
	url     string
	timeout time.Duration
	client  *http.Client
	cache   Cache
	logger  *zap.Logger
}

// NewClient creates a client for the service at url. cache may be nil.
func NewClient(url string, timeout time.Duration, cache Cache, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:     strings.TrimSpace(url),
		timeout: timeout,
		client:  &http.Client{},
		cache:   cache,
		logger:  logger,
	}
}

// IsConfigured reports whether a service URL is set.
func (c *Client) IsConfigured() bool {
	return c.url != ""
}

// Analyze returns the layout map for imageRef, from the cache when present.
func (c *Client) Analyze(ctx context.Context, imageRef string) (*creative.ImageLayoutMap, error) {
	imageRef = strings.TrimSpace(imageRef)
	if imageRef == "" {
		return nil, &creative.InvalidInputError{Field: "image_ref", Reason: "required"}
	}

	if c.cache != nil {
		m, err := c.cache.GetImageLayout(ctx, imageRef)
		if err == nil {
			c.logger.Debug("layout cache hit", zap.String("image", imageRef))
			return m, nil
		}
		if !errors.Is(err, creative.ErrNotFound) {
			return nil, fmt.Errorf("reading layout cache: %w", err)
		}
	}

	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	m, err := c.request(ctx, imageRef)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.PutImageLayout(ctx, *m); err != nil {
			c.logger.Warn("caching layout map failed", zap.String("image", imageRef), zap.Error(err))
		}
	}
	c.logger.Info("image analyzed",
		zap.String("image", imageRef),
		zap.String("contrast", string(m.ContrastLevel)),
		zap.String("noise", string(m.VisualNoise)),
		zap.Int("avoid_zones", len(m.AvoidZones)),
	)
	return m, nil
}

func (c *Client) request(ctx context.Context, imageRef string) (*creative.ImageLayoutMap, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"image_url": imageRef})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building perception request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perception request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading perception response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("perception service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return Parse(data, imageRef)
}

// Parse decodes and validates a layout map. imageRef fills an empty image_ref.
func Parse(data []byte, imageRef string) (*creative.ImageLayoutMap, error) {
	var m creative.ImageLayoutMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &creative.InvalidInputError{Field: "layout_map", Reason: err.Error()}
	}
	if m.ImageRef == "" {
		m.ImageRef = imageRef
	}
	m.Normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile reads a layout map from a JSON file. An empty imageRef keeps the
// file's image_ref.
func LoadFile(path, imageRef string) (*creative.ImageLayoutMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout file: %w", err)
	}
	m, err := Parse(data, "")
	if err != nil {
		return nil, err
	}
	if imageRef = strings.TrimSpace(imageRef); imageRef != "" {
		m.ImageRef = imageRef
	}
	if m.ImageRef == "" {
		return nil, &creative.InvalidInputError{Field: "image_ref", Reason: "required"}
	}
	return m, nil
}
