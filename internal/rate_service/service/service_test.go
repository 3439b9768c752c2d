package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/langowen/metalrates/deploy/config"
	"github.com/langowen/metalrates/internal/entities"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var istZone = time.FixedZone("IST", 5*3600+30*60)

// 2025-03-10 is a Monday; 11:00 IST is inside market hours.
var marketOpen = time.Date(2025, 3, 10, 11, 0, 0, 0, istZone)

// 22:00 IST is well after close.
var afterClose = time.Date(2025, 3, 10, 22, 0, 0, 0, istZone)

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetLatest(ctx context.Context, locality string) (*entities.RateSnapshot, error) {
	args := m.Called(ctx, locality)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.RateSnapshot), args.Error(1)
}

func (m *mockStorage) SaveLatest(ctx context.Context, snapshot *entities.RateSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) FetchRates(ctx context.Context, locality string) (*entities.RateSnapshot, error) {
	args := m.Called(ctx, locality)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.RateSnapshot), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.Storage{Timeout: time.Second},
		Cache: config.Cache{
			Locality:    "India",
			MarketTTL:   5 * time.Minute,
			OffHoursTTL: 30 * time.Minute,
		},
		Retry: config.Retry{
			MaxRetries:     3,
			InitialBackoff: time.Millisecond,
		},
	}
}

func testSnapshot(gold float64) *entities.RateSnapshot {
	snapshot, err := entities.NewRateSnapshot("India", gold, 92.5, "Bullions.co.in", marketOpen)
	if err != nil {
		panic(err)
	}
	return snapshot
}

func newTestService(t *testing.T, storage Storage, client UpstreamClient) *Service {
	t.Helper()

	svc, err := NewService(storage, client, nil, nil, testConfig())
	require.NoError(t, err)
	svc.now = func() time.Time { return marketOpen }
	return svc
}

func TestGetRates_FetchSuccessPopulatesCacheAndPersists(t *testing.T) {
	storage := new(mockStorage)
	client := new(mockClient)
	snapshot := testSnapshot(7450)

	client.On("FetchRates", mock.Anything, "India").Return(snapshot, nil).Once()
	storage.On("SaveLatest", mock.Anything, snapshot).Return(nil).Once()

	svc := newTestService(t, storage, client)

	result, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.False(t, result.Fallback)
	assert.Equal(t, snapshot, result.Snapshot)

	// Persistence runs fire-and-forget relative to the response.
	require.Eventually(t, func() bool {
		return len(storage.Calls) == 1
	}, time.Second, 5*time.Millisecond)

	client.AssertExpectations(t)
	storage.AssertExpectations(t)
}

func TestGetRates_CacheHitWithinMarketTTL(t *testing.T) {
	storage := new(mockStorage)
	client := new(mockClient)
	snapshot := testSnapshot(7450)

	client.On("FetchRates", mock.Anything, "India").Return(snapshot, nil).Once()
	storage.On("SaveLatest", mock.Anything, snapshot).Return(nil).Once()

	svc := newTestService(t, storage, client)

	_, err := svc.GetRates(context.Background())
	require.NoError(t, err)

	// 4m59s later during market hours: still a hit, no second fetch.
	svc.now = func() time.Time { return marketOpen.Add(4*time.Minute + 59*time.Second) }

	result, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Equal(t, snapshot, result.Snapshot)

	client.AssertNumberOfCalls(t, "FetchRates", 1)
}

func TestGetRates_CacheExpiresAfterMarketTTL(t *testing.T) {
	storage := new(mockStorage)
	client := new(mockClient)

	first := testSnapshot(7450)
	second := testSnapshot(7500)

	client.On("FetchRates", mock.Anything, "India").Return(first, nil).Once()
	client.On("FetchRates", mock.Anything, "India").Return(second, nil).Once()
	storage.On("SaveLatest", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(t, storage, client)

	_, err := svc.GetRates(context.Background())
	require.NoError(t, err)

	// 5m01s later the market-hours TTL has lapsed.
	svc.now = func() time.Time { return marketOpen.Add(5*time.Minute + time.Second) }

	result, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, second, result.Snapshot)

	client.AssertNumberOfCalls(t, "FetchRates", 2)
}

func TestGetRates_OffHoursTTLKeepsStaleEntry(t *testing.T) {
	storage := new(mockStorage)
	client := new(mockClient)
	snapshot := testSnapshot(7450)

	client.On("FetchRates", mock.Anything, "India").Return(snapshot, nil).Once()
	storage.On("SaveLatest", mock.Anything, snapshot).Return(nil).Once()

	svc := newTestService(t, storage, client)
	svc.now = func() time.Time { return afterClose }

	_, err := svc.GetRates(context.Background())
	require.NoError(t, err)

	// 20 minutes is past the market TTL but inside the 30m off-hours TTL.
	svc.now = func() time.Time { return afterClose.Add(20 * time.Minute) }

	result, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Cached)

	client.AssertNumberOfCalls(t, "FetchRates", 1)
}

func TestGetRates_FallbackToPersistedSnapshot(t *testing.T) {
	storage := new(mockStorage)
	client := new(mockClient)
	persisted := testSnapshot(7000)

	client.On("FetchRates", mock.Anything, "India").
		Return(nil, errors.New("provider down"))
	storage.On("GetLatest", mock.Anything, "India").Return(persisted, nil).Once()

	svc := newTestService(t, storage, client)

	result, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.True(t, result.Fallback)
	assert.Equal(t, 7000.0, result.Snapshot.Gold24K)

	// Retries exhausted: maxRetries=3 means 4 attempts.
	client.AssertNumberOfCalls(t, "FetchRates", 4)
	storage.AssertExpectations(t)
}

func TestGetRates_NoDataWhenFetchAndFallbackFail(t *testing.T) {
	storage := new(mockStorage)
	client := new(mockClient)

	client.On("FetchRates", mock.Anything, "India").
		Return(nil, errors.New("provider down"))
	storage.On("GetLatest", mock.Anything, "India").
		Return(nil, entities.ErrNotFound).Once()

	svc := newTestService(t, storage, client)

	_, err := svc.GetRates(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrNoData)
}

func TestGetRates_StorageOutageDegradesLikeAbsence(t *testing.T) {
	storage := new(mockStorage)
	client := new(mockClient)

	client.On("FetchRates", mock.Anything, "India").
		Return(nil, errors.New("provider down"))
	storage.On("GetLatest", mock.Anything, "India").
		Return(nil, errors.New("connection refused")).Once()

	svc := newTestService(t, storage, client)

	_, err := svc.GetRates(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrNoData)
}

func TestGetRates_PersistFailureDoesNotAffectResponse(t *testing.T) {
	storage := new(mockStorage)
	client := new(mockClient)
	snapshot := testSnapshot(7450)

	client.On("FetchRates", mock.Anything, "India").Return(snapshot, nil).Once()
	storage.On("SaveLatest", mock.Anything, snapshot).
		Return(errors.New("disk full")).Once()

	svc := newTestService(t, storage, client)

	result, err := svc.GetRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot, result.Snapshot)
}

// slowClient serves the concurrency test: it counts calls and holds each
// one long enough for the second request to arrive.
type slowClient struct {
	calls    atomic.Int32
	snapshot *entities.RateSnapshot
}

func (c *slowClient) FetchRates(ctx context.Context, locality string) (*entities.RateSnapshot, error) {
	c.calls.Add(1)
	time.Sleep(50 * time.Millisecond)
	return c.snapshot, nil
}

func TestGetRates_ConcurrentMissesShareOneFetch(t *testing.T) {
	storage := new(mockStorage)
	storage.On("SaveLatest", mock.Anything, mock.Anything).Return(nil)

	client := &slowClient{snapshot: testSnapshot(7450)}

	svc := newTestService(t, storage, client)

	var wg sync.WaitGroup
	results := make([]*Result, 4)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.GetRates(context.Background())
			require.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), client.calls.Load(), "concurrent misses must collapse into one upstream call")
	for _, result := range results {
		assert.Equal(t, 7450.0, result.Snapshot.Gold24K)
	}
}

func TestGetRates_CancellationPropagates(t *testing.T) {
	storage := new(mockStorage)
	client := new(mockClient)

	client.On("FetchRates", mock.Anything, "India").
		Return(nil, errors.New("provider down"))

	cfg := testConfig()
	cfg.Retry.InitialBackoff = time.Hour

	svc, err := NewService(storage, client, nil, nil, cfg)
	require.NoError(t, err)
	svc.now = func() time.Time { return marketOpen }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = svc.GetRates(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	storage.AssertNotCalled(t, "GetLatest", mock.Anything, mock.Anything)
}
