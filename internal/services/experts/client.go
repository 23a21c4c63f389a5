package experts

import (
	"context"
	"fmt"
	"time"

	"ForecastMix/pkg/config"
	xhttp "ForecastMix/pkg/http"
)

// HTTPServiceBase centralizes client construction and JSON POST handling for
// the external forecaster service.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

// NewHTTPServiceBase builds an HTTP client with timeout and base URL from config.
func NewHTTPServiceBase(cfg *config.Config) *HTTPServiceBase {
	timeout := cfg.Experts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: cfg.Experts.ServiceURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// PostJSON posts the given payload to `path` under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("experts http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry posts JSON with up to `attempts` retries for transient errors.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}, attempts int) error {
	if attempts <= 1 {
		return b.PostJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * 200 * time.Millisecond):
		}
	}
	return err
}

// Client fetches historical expert forecast windows from the forecaster
// service, used to warm-start mixtures from recorded data.
type Client struct {
	base *HTTPServiceBase
}

func NewClient(cfg *config.Config) *Client {
	return &Client{base: NewHTTPServiceBase(cfg)}
}

type windowRequest struct {
	MixtureID string `json:"mixture_id"`
	From      int64  `json:"from"`
	To        int64  `json:"to"`
	Limit     int    `json:"limit"`
}

type windowResponse struct {
	Forecasts    [][]float64 `json:"forecasts"`
	Observations []float64   `json:"observations"`
}

// Window holds an aligned forecast history slice.
type Window struct {
	Forecasts    [][]float64
	Observations []float64
}

// FetchWindow retrieves the recorded forecast rows and observations for a
// mixture between from and to (unix seconds).
func (c *Client) FetchWindow(ctx context.Context, mixtureID string, from, to int64, limit int) (*Window, error) {
	var wr windowResponse
	err := c.base.PostJSONWithRetry(ctx, "/forecasts/window", windowRequest{
		MixtureID: mixtureID,
		From:      from,
		To:        to,
		Limit:     limit,
	}, &wr, 3)
	if err != nil {
		return nil, fmt.Errorf("fetch window: %w", err)
	}
	if len(wr.Forecasts) != len(wr.Observations) {
		return nil, fmt.Errorf("window misaligned: %d rows vs %d observations", len(wr.Forecasts), len(wr.Observations))
	}
	return &Window{Forecasts: wr.Forecasts, Observations: wr.Observations}, nil
}
