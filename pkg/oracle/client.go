// Package oracle asks the remote imagery-metadata service whether imagery
// exists around a location within a capture time range.
package oracle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/1F47E/imagery-dater/pkg/models"
)

const (
	// DefaultEndpoint is the single image search RPC of the maps JS API.
	DefaultEndpoint = "https://maps.googleapis.com/$rpc/google.internal.maps.mapsjs.v1.MapsJsInternalService/SingleImageSearch"

	contentType = "application/json+protobuf"

	// noImagesMarker is present in the body when nothing matched the query.
	noImagesMarker = "Search returned no images."

	maxBodySize = 1 << 20
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle returned status %d: %s", e.Code, e.Body)
}

// Client implements resolver.Prober over HTTP.
type Client struct {
	endpoint  string
	http      *http.Client
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the RPC URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// WithUserAgent sets the User-Agent header of every probe.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a Client. Without WithHTTPClient it uses the default transport config.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		hc, err := NewHTTPClient(DefaultTransportConfig())
		if err != nil {
			return nil, err
		}
		c.http = hc
	}

	return c, nil
}

// Probe reports whether imagery within radiusM meters of loc was captured in [start, end].
func (c *Client) Probe(ctx context.Context, loc models.Location, radiusM int, start, end time.Time) (bool, error) {
	body := searchPayload(loc, radiusM, start, end)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("image search request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return false, fmt.Errorf("failed to read image search response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	return !bytes.Contains(data, []byte(noImagesMarker)), nil
}

// searchPayload encodes a single image search request. The RPC takes a
// positional JSON array, where null marks unused fields.
func searchPayload(loc models.Location, radiusM int, start, end time.Time) string {
	lat := strconv.FormatFloat(loc.Lat, 'f', -1, 64)
	lng := strconv.FormatFloat(loc.Lng, 'f', -1, 64)

	var b strings.Builder
	b.WriteString(`[["apiv3"],[[null,null,`)
	b.WriteString(lat)
	b.WriteString(`,`)
	b.WriteString(lng)
	b.WriteString(`],`)
	b.WriteString(strconv.Itoa(radiusM))
	b.WriteString(`],[[null,null,null,null,null,null,null,null,null,null,[`)
	b.WriteString(strconv.FormatInt(start.Unix(), 10))
	b.WriteString(`,`)
	b.WriteString(strconv.FormatInt(end.Unix(), 10))
	b.WriteString(`]],null,null,null,null,null,null,null,[1],null,[[[2,true,2]]]],[[2,6]]]`)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
