// Package ratestore holds the consumer-side view of the live rates: the
// last fetched snapshot, a minimum inter-fetch interval and the
// loading/error/fallback flags a display layer needs.
package ratestore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/langowen/metalrates/internal/entities"
)

const (
	defaultThrottle        = 60 * time.Second
	defaultRefreshInterval = 5 * time.Minute
)

// demoSnapshot seeds the store so a consumer never renders an empty state
// before the first real fetch resolves.
func demoSnapshot(now time.Time) *entities.RateSnapshot {
	return &entities.RateSnapshot{
		Locality:      "India",
		Gold24K:       7450,
		Gold22K:       6830,
		Gold18K:       5730,
		SilverPerGram: 92.50,
		SilverPerKg:   92500,
		Gold10Gm:      74500,
		Silver10Gm:    925,
		Timestamp:     now,
		Source:        "Bullions.co.in",
	}
}

type envelope struct {
	Success  bool                   `json:"success"`
	Data     *entities.RateSnapshot `json:"data"`
	Cached   bool                   `json:"cached"`
	Fallback bool                   `json:"fallback"`
	Error    string                 `json:"error"`
}

// Store is an explicitly-scoped object rather than package state, so every
// consumer (and every test) gets an independent instance.
type Store struct {
	endpoint        string
	client          *http.Client
	throttle        time.Duration
	refreshInterval time.Duration
	now             func() time.Time

	mu         sync.Mutex
	rates      *entities.RateSnapshot
	loading    bool
	err        string
	lastFetch  time.Time
	isFallback bool
}

// View is a copy of the store's state safe to hand to a display layer.
type View struct {
	Rates      *entities.RateSnapshot
	Loading    bool
	Err        string
	IsFallback bool
	LastFetch  time.Time
}

type Option func(*Store)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) { s.client = client }
}

func WithThrottle(d time.Duration) Option {
	return func(s *Store) { s.throttle = d }
}

func WithRefreshInterval(d time.Duration) Option {
	return func(s *Store) { s.refreshInterval = d }
}

func NewStore(endpoint string, opts ...Option) *Store {
	s := &Store{
		endpoint:        endpoint,
		client:          &http.Client{Timeout: 30 * time.Second},
		throttle:        defaultThrottle,
		refreshInterval: defaultRefreshInterval,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.rates = demoSnapshot(s.now())

	return s
}

// Refresh fetches the endpoint unless a successful fetch happened inside
// the throttle window. A failed fetch records an error but keeps the
// previous rates: the consumer must never regress to an empty state once
// it has shown a price.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	now := s.now()
	if !s.lastFetch.IsZero() && now.Sub(s.lastFetch) < s.throttle {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	result, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false

	if err != nil {
		s.err = err.Error()
		// The previous rates stay on display, but they are no longer live.
		s.isFallback = true
		return err
	}

	s.rates = result.Data
	s.err = ""
	s.lastFetch = s.now()
	s.isFallback = result.Fallback

	return nil
}

func (s *Store) fetch(ctx context.Context) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("rates request failed: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates service responded with status %d", resp.StatusCode)
	}

	var result envelope
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("malformed rates response: %w", err)
	}

	if !result.Success || result.Data == nil {
		if result.Error != "" {
			return nil, fmt.Errorf("rates service error: %s", result.Error)
		}
		return nil, fmt.Errorf("rates service returned no data")
	}

	return &result, nil
}

// UpdateListener blocks until fresh rates are announced, the way the redis
// storage adapter does over its pub/sub channel.
type UpdateListener interface {
	ListenUpdates(ctx context.Context) (string, error)
}

// RunOnUpdates refreshes whenever the listener reports that fresh rates are
// available, until ctx is done. Listen failures back off for a second so a
// dead broker does not spin the loop.
func (s *Store) RunOnUpdates(ctx context.Context, listener UpdateListener) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := listener.ListenUpdates(ctx); err != nil {
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		_ = s.Refresh(ctx)
	}
}

// Run refreshes immediately and then on every tick until ctx is done. The
// ticker is released on teardown.
func (s *Store) Run(ctx context.Context) {
	_ = s.Refresh(ctx)

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) State() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return View{
		Rates:      s.rates,
		Loading:    s.loading,
		Err:        s.err,
		IsFallback: s.isFallback,
		LastFetch:  s.lastFetch,
	}
}
