package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/langowen/metalrates/deploy/config"
	"github.com/langowen/metalrates/internal/backoff"
	"github.com/langowen/metalrates/internal/entities"
	"github.com/langowen/metalrates/internal/market"
	"github.com/langowen/metalrates/internal/metrics"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Service serves the current precious-metal rates: in-memory cache first,
// then the upstream provider through bounded retries, then the last
// persisted snapshot as a fallback.
type Service struct {
	storage   Storage
	client    UpstreamClient
	publisher Publisher
	metrics   *metrics.RateMetrics
	cfg       *config.Config
	now       func() time.Time

	mu    sync.Mutex
	cache *cacheEntry
	group singleflight.Group
}

// cacheEntry is replaced wholesale on every successful fetch, never
// partially mutated.
type cacheEntry struct {
	snapshot  *entities.RateSnapshot
	fetchedAt time.Time
}

type Result struct {
	Snapshot *entities.RateSnapshot
	Cached   bool
	Fallback bool
}

// NewService wires the orchestrator. publisher and rateMetrics may be nil,
// which disables the update announcements and metric recording respectively.
func NewService(storage Storage, client UpstreamClient, publisher Publisher, rateMetrics *metrics.RateMetrics, cfg *config.Config) (*Service, error) {
	return &Service{
		storage:   storage,
		client:    client,
		publisher: publisher,
		metrics:   rateMetrics,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// GetRates returns the current snapshot. Concurrent misses collapse into a
// single upstream fetch: the second caller waits on the first's in-flight
// result instead of firing its own.
func (s *Service) GetRates(ctx context.Context) (*Result, error) {
	const op = "service.GetRates"

	locality := s.cfg.Cache.Locality

	if snapshot := s.cached(); snapshot != nil {
		s.metrics.CacheHit(locality)
		return &Result{Snapshot: snapshot, Cached: true}, nil
	}

	s.metrics.CacheMiss(locality)

	v, err, _ := s.group.Do(locality, func() (interface{}, error) {
		// A caller that lost the miss race may arrive after the winner
		// already refreshed the cache.
		if snapshot := s.cached(); snapshot != nil {
			return &Result{Snapshot: snapshot, Cached: true}, nil
		}

		return s.refresh(ctx, locality)
	})
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	return v.(*Result), nil
}

func (s *Service) refresh(ctx context.Context, locality string) (*Result, error) {
	start := time.Now()

	snapshot, err := backoff.Do(ctx, s.cfg.Retry.MaxRetries, s.cfg.Retry.InitialBackoff,
		func(ctx context.Context) (*entities.RateSnapshot, error) {
			return s.client.FetchRates(ctx, locality)
		})

	s.metrics.ObserveFetchDuration(locality, time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		s.metrics.UpstreamFailure(locality)
		slog.Error("Upstream fetch exhausted retries, trying persisted fallback", "locality", locality, "error", err)

		return s.fallback(ctx, locality)
	}

	s.mu.Lock()
	s.cache = &cacheEntry{snapshot: snapshot, fetchedAt: s.now()}
	s.mu.Unlock()

	// Persistence and the update announcement are best-effort and must not
	// delay the response.
	go s.persist(snapshot)
	go s.announce(locality)

	return &Result{Snapshot: snapshot}, nil
}

func (s *Service) fallback(ctx context.Context, locality string) (*Result, error) {
	snapshot, err := s.storage.GetLatest(ctx, locality)
	if err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			slog.Warn("No persisted rates to fall back to", "locality", locality)
		} else {
			// A storage outage degrades the same way as genuine absence,
			// but operators should be able to tell them apart.
			slog.Error("Fallback read failed", "locality", locality, "error", err)
		}
		return nil, entities.ErrNoData
	}

	s.metrics.FallbackServed(locality)

	return &Result{Snapshot: snapshot, Cached: true, Fallback: true}, nil
}

// cached returns the in-memory snapshot when it is still inside its
// schedule-aware TTL, nil otherwise.
func (s *Service) cached() *entities.RateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		return nil
	}

	now := s.now()

	ttl := s.cfg.Cache.OffHoursTTL
	if market.IsMarketHours(now) {
		ttl = s.cfg.Cache.MarketTTL
	}

	if now.Sub(s.cache.fetchedAt) < ttl {
		return s.cache.snapshot
	}

	return nil
}

func (s *Service) persist(snapshot *entities.RateSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Storage.Timeout)
	defer cancel()

	if err := s.storage.SaveLatest(ctx, snapshot); err != nil {
		slog.Error("Failed to persist rates snapshot", "locality", snapshot.Locality, "error", err)
	}
}

func (s *Service) announce(locality string) {
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.publisher.PublishUpdate(ctx, locality); err != nil {
		slog.Error("Failed to publish rates update", "locality", locality, "error", err)
	}
}
