package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fuel-price-tracker/internal/alerting"
	"fuel-price-tracker/internal/analytics"
	"fuel-price-tracker/internal/config"
	"fuel-price-tracker/internal/metrics"
	"fuel-price-tracker/internal/scraper"
	"fuel-price-tracker/internal/storage"
)

type stubScraper struct {
	prices []scraper.Price
	err    error
}

func (s *stubScraper) Scrape(context.Context) ([]scraper.Price, error) {
	return s.prices, s.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

type lockedStore struct {
	*storage.MemoryStore
}

func (lockedStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	return nil, false, nil
}

type unorderedStore struct {
	*storage.MemoryStore
}

func (s unorderedStore) ListObservations(ctx context.Context, f storage.Filter) ([]storage.Observation, error) {
	rows, err := s.MemoryStore.ListObservations(ctx, f)
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, err
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{AdvisoryLockKey: 42},
		Analytics: config.AnalyticsConfig{TZOffsetMinutes: 120},
		Alerting:  config.AlertingConfig{Enabled: true},
	}
}

func price(fuel, p string, stations ...string) scraper.Price {
	return scraper.Price{FuelType: fuel, Price: decimal.RequireFromString(p), Stations: stations}
}

func TestScrapeOnceStoresAndDiffs(t *testing.T) {
	store := storage.NewMemoryStore(0)
	scr := &stubScraper{prices: []scraper.Price{
		price("Neste Futura 95", "1.559", "Brīvības iela 253"),
		price("Neste Futura D", "1.499"),
	}}
	notifier := &recordingNotifier{}
	svc := New(testConfig(), nil, scr, store, notifier, metrics.New(), zerolog.Nop())
	ctx := context.Background()

	t0 := time.Date(2024, 6, 1, 10, 0, 0, 123456789, time.UTC)
	first, err := svc.ScrapeOnce(ctx, t0)
	require.NoError(t, err)
	require.True(t, first.At.Equal(t0.Truncate(time.Millisecond)))
	require.Len(t, first.Observations, 2)
	require.Empty(t, first.Changes, "首次采集没有可比较的快照")
	require.Empty(t, notifier.notes)

	scr.prices = []scraper.Price{
		price("Neste Futura 95", "1.579"),
		price("Neste Futura D", "1.49905"),
		price("Neste Pro Diesel", "1.529"),
	}
	second, err := svc.ScrapeOnce(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, second.Changes, 2)
	require.Equal(t, "Neste Futura 95", second.Changes[0].FuelType)
	require.True(t, second.Changes[1].Added)
	require.Len(t, notifier.notes, 1)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, count)

	snap, err := svc.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 3)
	for _, o := range snap {
		require.True(t, o.Timestamp.Equal(second.At))
	}
}

func TestScrapeOncePrimesFromStore(t *testing.T) {
	store := storage.NewMemoryStore(0)
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertObservations(context.Background(), []storage.Observation{
		{FuelType: "Neste Futura 95", Price: decimal.RequireFromString("1.500"), Timestamp: t0},
	}))

	notifier := &recordingNotifier{}
	scr := &stubScraper{prices: []scraper.Price{price("Neste Futura 95", "1.520")}}
	svc := New(testConfig(), nil, scr, store, notifier, nil, zerolog.Nop())

	res, err := svc.ScrapeOnce(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	require.Len(t, notifier.notes, 1, "重启后应以库中最新快照作为比较基准")
}

func TestScrapeOnceEdgeCases(t *testing.T) {
	ctx := context.Background()

	svc := New(testConfig(), nil, nil, storage.NewMemoryStore(0), nil, nil, zerolog.Nop())
	_, err := svc.ScrapeOnce(ctx, time.Time{})
	require.ErrorIs(t, err, ErrScraperDisabled)

	svc = New(testConfig(), nil, &stubScraper{err: errors.New("boom")}, storage.NewMemoryStore(0), nil, nil, zerolog.Nop())
	_, err = svc.ScrapeOnce(ctx, time.Time{})
	require.Error(t, err)

	empty := storage.NewMemoryStore(0)
	svc = New(testConfig(), nil, &stubScraper{}, empty, nil, nil, zerolog.Nop())
	res, err := svc.ScrapeOnce(ctx, time.Time{})
	require.NoError(t, err)
	require.Empty(t, res.Observations)
	count, _ := empty.CountObservations(ctx)
	require.Zero(t, count)

	locked := lockedStore{storage.NewMemoryStore(0)}
	svc = New(testConfig(), nil, &stubScraper{prices: []scraper.Price{price("Neste Futura 95", "1.5")}}, locked, nil, nil, zerolog.Nop())
	res, err = svc.ScrapeOnce(ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, res.Skipped)
	count, _ = locked.CountObservations(ctx)
	require.Zero(t, count, "未拿到锁时不应写入")
}

func seededService(t *testing.T) (*Service, time.Time) {
	t.Helper()
	store := storage.NewMemoryStore(0)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	var rows []storage.Observation
	for day := 9; day >= 0; day-- {
		ts := now.AddDate(0, 0, -day)
		p := decimal.RequireFromString("1.500").Add(decimal.New(int64(9-day), -2))
		rows = append(rows,
			storage.Observation{FuelType: "Neste Futura 95", Price: p, Timestamp: ts},
			storage.Observation{FuelType: "Neste Futura D", Price: p.Sub(decimal.New(1, -1)), Timestamp: ts},
		)
	}
	require.NoError(t, store.InsertObservations(context.Background(), rows))
	svc := New(testConfig(), nil, nil, store, nil, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc, now
}

func TestReadModels(t *testing.T) {
	svc, now := seededService(t)
	ctx := context.Background()

	history, err := svc.History(ctx, "Neste Futura D")
	require.NoError(t, err)
	require.Len(t, history, 10)

	buckets, opts, err := svc.RollingBuckets(ctx, analytics.IntervalDays, analytics.DeviceDesktop, now)
	require.NoError(t, err)
	require.Equal(t, analytics.ModeDay, opts.Mode)
	require.Len(t, buckets, 10)

	trends := svc.Trends(buckets, nil)
	require.Len(t, trends, 2)
	require.True(t, trends["Neste Futura 95"].Slope.Equal(decimal.RequireFromString("0.01")))

	require.Empty(t, svc.Trends(buckets[:1], nil), "单个 bucket 不应生成趋势")

	changes, ok, err := svc.Changes(ctx, []string{"Neste Futura 95"}, nil, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, changes, 4)
	require.True(t, changes[24*time.Hour].AbsoluteDelta.Equal(decimal.RequireFromString("0.01")))

	_, ok, err = svc.Changes(ctx, nil, nil, now)
	require.NoError(t, err)
	require.False(t, ok)

	types, err := svc.ResolveFuelTypes(ctx, []string{"all"})
	require.NoError(t, err)
	require.Equal(t, []string{"Neste Futura 95", "Neste Futura D"}, types)

	types, err = svc.ResolveFuelTypes(ctx, []string{"Neste Futura D", " Neste Futura D ", ""})
	require.NoError(t, err)
	require.Equal(t, []string{"Neste Futura D"}, types)

	require.NoError(t, svc.Reset(ctx))
	snap, err := svc.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, snap)
}

func TestUnorderedStoreIsHardError(t *testing.T) {
	mem := storage.NewMemoryStore(0)
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, mem.InsertObservations(context.Background(), []storage.Observation{
		{FuelType: "Neste Futura 95", Price: decimal.RequireFromString("1.5"), Timestamp: t0},
		{FuelType: "Neste Futura 95", Price: decimal.RequireFromString("1.6"), Timestamp: t0.Add(time.Hour)},
	}))
	svc := New(testConfig(), nil, nil, unorderedStore{mem}, nil, nil, zerolog.Nop())

	_, err := svc.History(context.Background(), "")
	require.ErrorIs(t, err, analytics.ErrUnordered)
}
