// Package bullions talks to the bullions.co.in rates API. The provider
// rejects requests without a browser-like user agent.
package bullions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/langowen/metalrates/deploy/config"
	"github.com/langowen/metalrates/internal/entities"
	"github.com/pkg/errors"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

type Client struct {
	client *http.Client
	cfg    *config.Upstream
	now    func() time.Time
}

func NewClient(cfg *config.Upstream) *Client {
	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		now:    time.Now,
	}
}

// apiNumber tolerates the provider quoting prices either as JSON numbers
// or as numeric strings.
type apiNumber float64

func (n *apiNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return errors.New("empty value")
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}

	*n = apiNumber(value)
	return nil
}

type ratesPayload struct {
	Gold   *apiNumber `json:"gold"`
	Silver *apiNumber `json:"silver"`
}

// FetchRates issues a single request to the provider and normalizes the
// payload into a RateSnapshot with the derived carat and per-unit fields.
// Retries and caching are the caller's concern.
func (c *Client) FetchRates(ctx context.Context, locality string) (*entities.RateSnapshot, error) {
	const op = "api_client.bullions.FetchRates"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(&entities.BadStatusError{Code: resp.StatusCode}, op)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	var payload ratesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrapf(entities.ErrMalformedPayload, "%s: %v", op, err)
	}

	if payload.Gold == nil || payload.Silver == nil {
		return nil, errors.Wrap(entities.ErrMalformedPayload, op)
	}

	snapshot, err := entities.NewRateSnapshot(
		locality,
		float64(*payload.Gold),
		float64(*payload.Silver),
		c.cfg.Source,
		c.now(),
	)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	return snapshot, nil
}
