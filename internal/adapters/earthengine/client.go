package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vegwatch/vegwatch/internal/core/domain"
	"github.com/vegwatch/vegwatch/internal/pkg/metrics"
)

// Collection is the Sentinel-2 surface reflectance collection the
// composites are built from.
const Collection = "COPERNICUS/S2_SR_HARMONIZED"

// Thumbnail rendering parameters for the true-color preview.
const (
	thumbMin   = 0
	thumbMax   = 3000
	thumbBands = "B4,B3,B2"
)

// Client implements ports.ImageryProvider against the Earth Engine REST
// proxy. Image handles returned by the proxy are opaque and only valid
// for the session that created them.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	// overridable in tests to avoid real backoff delays
	newBackOff func() backoff.BackOff
}

// New creates a provider client.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

type compositeRequest struct {
	Collection string    `json:"collection"`
	Region     []float64 `json:"region"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	OrderBy    string    `json:"order_by"`
}

type normalizedDifferenceRequest struct {
	ImageID string   `json:"image_id"`
	Bands   []string `json:"bands"`
}

type reduceRegionRequest struct {
	ImageID string    `json:"image_id"`
	Reducer string    `json:"reducer"`
	Region  []float64 `json:"region"`
	Scale   float64   `json:"scale"`
}

type imageResponse struct {
	ImageID string `json:"image_id"`
}

type reduceResponse struct {
	Value *float64 `json:"value"`
}

// FetchComposite asks the proxy for the least-cloudy scene in range,
// clipped to region. The proxy may hand back a handle to an empty image
// when no scene exists; reductions on it then yield no value, which the
// caller treats as absent data.
func (c *Client) FetchComposite(ctx context.Context, region domain.Region, start, end time.Time) (domain.ImageRef, error) {
	req := compositeRequest{
		Collection: Collection,
		Region:     region.Coords(),
		Start:      start.Format("2006-01-02"),
		End:        end.Format("2006-01-02"),
		OrderBy:    "CLOUDY_PIXEL_PERCENTAGE",
	}

	var resp imageResponse
	if err := c.postJSON(ctx, "fetch_composite", "/v1/composites", req, &resp); err != nil {
		return "", err
	}
	return domain.ImageRef(resp.ImageID), nil
}

// NormalizedDifference computes (bandA-bandB)/(bandA+bandB) per pixel.
func (c *Client) NormalizedDifference(ctx context.Context, img domain.ImageRef, bandA, bandB string) (domain.ImageRef, error) {
	req := normalizedDifferenceRequest{
		ImageID: string(img),
		Bands:   []string{bandA, bandB},
	}

	var resp imageResponse
	if err := c.postJSON(ctx, "normalized_difference", "/v1/images/normalized-difference", req, &resp); err != nil {
		return "", err
	}
	return domain.ImageRef(resp.ImageID), nil
}

// MeanOverRegion reduces the image to its spatial mean over region at
// scaleM meters per pixel. A JSON null value means the region produced
// no data (outside coverage or fully masked) and returns nil, nil.
func (c *Client) MeanOverRegion(ctx context.Context, img domain.ImageRef, region domain.Region, scaleM float64) (*float64, error) {
	req := reduceRegionRequest{
		ImageID: string(img),
		Reducer: "mean",
		Region:  region.Coords(),
		Scale:   scaleM,
	}

	var resp reduceResponse
	if err := c.postJSON(ctx, "reduce_region", "/v1/images/reduce-region", req, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// RenderThumbnail fetches a true-color PNG preview of the image.
func (c *Client) RenderThumbnail(ctx context.Context, img domain.ImageRef) ([]byte, error) {
	url := fmt.Sprintf("%s/v1/images/%s/thumbnail?min=%d&max=%d&bands=%s",
		c.baseURL, img, thumbMin, thumbMax, thumbBands)

	var body []byte
	err := c.do(ctx, "render_thumbnail", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, func(resp *http.Response) error {
		var err error
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	return c.do(ctx, op, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

// do issues the request with retries. Server-side and transport errors
// are retried with exponential backoff; authentication failures and
// other client errors are permanent.
func (c *Client) do(ctx context.Context, op string, build func() (*http.Request, error), handle func(*http.Response) error) error {
	start := time.Now()
	defer func() {
		metrics.ProviderRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: authentication rejected (%d)", domain.ErrProviderUnavailable, resp.StatusCode))
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: server error %d", domain.ErrProviderUnavailable, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, body))
		}

		if err := handle(resp); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: decode response: %w", op, err))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		metrics.ProviderErrors.WithLabelValues(op).Inc()
		return err
	}
	return nil
}
