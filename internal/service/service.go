package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fuel-price-tracker/internal/alerting"
	"fuel-price-tracker/internal/analytics"
	"fuel-price-tracker/internal/config"
	"fuel-price-tracker/internal/metrics"
	"fuel-price-tracker/internal/scheduler"
	"fuel-price-tracker/internal/scraper"
	"fuel-price-tracker/internal/storage"
)

// ErrScraperDisabled is returned by ScrapeOnce when no scraper is wired.
var ErrScraperDisabled = errors.New("service: scraper not configured")

// AllFuelTypes selects every fuel type of the latest snapshot.
const AllFuelTypes = "all"

// ScrapeResult reports one ingestion cycle.
type ScrapeResult struct {
	At           time.Time
	Observations []storage.Observation
	Changes      []analytics.PriceDelta
	Skipped      bool
}

// Service orchestrates scraping, persistence, alerting and the read models.
type Service struct {
	scheduler *scheduler.Scheduler
	scraper   scraper.PriceScraper
	store     storage.ObservationStore
	notifier  alerting.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	locker   storage.AdvisoryLocker
	lockKey  int64
	alertsOn bool
	offset   int
	windows  []time.Duration
	now      func() time.Time

	mu       sync.Mutex
	previous []storage.Observation
	primed   bool
}

// New constructs the tracker service. sched, scr and notifier may be nil for
// read-only use.
func New(cfg *config.Config, sched *scheduler.Scheduler, scr scraper.PriceScraper, store storage.ObservationStore, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	windows := cfg.Analytics.ChangeWindows
	if len(windows) == 0 {
		windows = analytics.DefaultWindows
	}

	return &Service{
		scheduler: sched,
		scraper:   scr,
		store:     store,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With().Str("component", "service").Logger(),
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
		alertsOn:  cfg.Alerting.Enabled,
		offset:    cfg.Analytics.TZOffsetMinutes,
		windows:   windows,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OffsetMinutes is the reference timezone offset used for bucketing.
func (s *Service) OffsetMinutes() int { return s.offset }

// Windows are the configured change windows.
func (s *Service) Windows() []time.Duration { return s.windows }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Run begins the scheduled scraping loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, slot time.Time) error {
		_, err := s.ScrapeOnce(ctx, slot)
		return err
	})
}

// ScrapeOnce runs one ingestion cycle. Every row of the cycle is stamped with
// at, truncated to milliseconds; a zero at uses the current time.
func (s *Service) ScrapeOnce(ctx context.Context, at time.Time) (ScrapeResult, error) {
	if s.scraper == nil {
		return ScrapeResult{}, ErrScraperDisabled
	}
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC().Truncate(time.Millisecond)

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		s.metrics.ObserveScrape(metrics.OutcomeError, 0, at)
		return ScrapeResult{}, err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip scrape because advisory lock held elsewhere")
		s.metrics.ObserveScrape(metrics.OutcomeSkipped, 0, at)
		return ScrapeResult{At: at, Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	prices, err := s.scraper.Scrape(ctx)
	if err != nil {
		s.metrics.ObserveScrape(metrics.OutcomeError, 0, at)
		return ScrapeResult{}, fmt.Errorf("scrape prices: %w", err)
	}
	if len(prices) == 0 {
		s.metrics.ObserveScrape(metrics.OutcomeEmpty, 0, at)
		return ScrapeResult{At: at, Observations: []storage.Observation{}}, nil
	}

	obs := make([]storage.Observation, 0, len(prices))
	for _, p := range prices {
		obs = append(obs, storage.Observation{
			FuelType:  p.FuelType,
			Price:     p.Price,
			Stations:  p.Stations,
			Timestamp: at,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.previousSnapshotLocked(ctx)

	if err := s.store.InsertObservations(ctx, obs); err != nil {
		s.metrics.ObserveScrape(metrics.OutcomeError, 0, at)
		return ScrapeResult{}, fmt.Errorf("insert observations: %w", err)
	}
	s.metrics.ObserveScrape(metrics.OutcomeSuccess, len(obs), at)
	for _, o := range obs {
		s.metrics.SetLatestPrice(o.FuelType, o.Price)
	}

	current := analytics.SnapshotAt(obs, at)
	result := ScrapeResult{At: at, Observations: current, Changes: []analytics.PriceDelta{}}
	if len(previous) > 0 {
		result.Changes = analytics.DiffSnapshots(previous, current)
	}
	s.previous = current

	s.logger.Info().Time("at", at).
		Int("fuel_types", len(current)).
		Int("changes", len(result.Changes)).
		Msg("scrape recorded")

	if len(result.Changes) > 0 {
		s.dispatch(ctx, alerting.Notification{At: at, Changes: result.Changes})
	}
	return result, nil
}

// previousSnapshotLocked loads the stored snapshot on first use. s.mu must be held.
func (s *Service) previousSnapshotLocked(ctx context.Context) []storage.Observation {
	if s.primed {
		return s.previous
	}
	snap, err := s.LatestSnapshot(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load previous snapshot")
		return nil
	}
	s.previous = snap
	s.primed = true
	return snap
}

func (s *Service) dispatch(ctx context.Context, note alerting.Notification) {
	if !s.alertsOn || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("at", note.At).Msg("failed to dispatch alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// Reset truncates the observation log and forgets the cached snapshot.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.previous = nil
	s.primed = false
	return nil
}

// Count returns the number of stored observations.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.CountObservations(ctx)
}

// LatestSnapshot returns one observation per fuel type at the newest timestamp.
// An empty store yields an empty slice.
func (s *Service) LatestSnapshot(ctx context.Context) ([]storage.Observation, error) {
	latest, ok, err := s.store.LatestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest timestamp: %w", err)
	}
	if !ok {
		return []storage.Observation{}, nil
	}

	rows, err := s.fetch(ctx, storage.Filter{Since: latest})
	if err != nil {
		return nil, err
	}
	snap := analytics.SnapshotAt(rows, latest)
	if len(snap) > 0 {
		return snap, nil
	}

	// rows vanished between the two queries
	all, err := s.fetch(ctx, storage.Filter{})
	if err != nil {
		return nil, err
	}
	return analytics.SnapshotAt(all, latest), nil
}

// History lists every observation of fuelType, or of all types when empty.
func (s *Service) History(ctx context.Context, fuelType string) ([]storage.Observation, error) {
	return s.fetch(ctx, storage.Filter{FuelType: fuelType})
}

// Buckets aggregates stored observations into calendar buckets.
func (s *Service) Buckets(ctx context.Context, opts analytics.BucketOptions) ([]analytics.Bucket, error) {
	if _, err := analytics.ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	rows, err := s.fetch(ctx, storage.Filter{Since: opts.Cutoff})
	if err != nil {
		return nil, err
	}
	return analytics.BucketObservations(rows, opts)
}

// RollingBuckets buckets the lookback window of an interval and device class.
func (s *Service) RollingBuckets(ctx context.Context, interval analytics.Interval, device analytics.Device, now time.Time) ([]analytics.Bucket, analytics.BucketOptions, error) {
	opts := analytics.RollingOptions(interval, device, s.offset, now)
	buckets, err := s.Buckets(ctx, opts)
	return buckets, opts, err
}

// Trends fits a trend line per fuel type. Types with too little data are
// omitted from the result.
func (s *Service) Trends(buckets []analytics.Bucket, fuelTypes []string) map[string]analytics.TrendLine {
	if len(fuelTypes) == 0 {
		fuelTypes = analytics.FuelTypes(buckets)
	}
	out := make(map[string]analytics.TrendLine, len(fuelTypes))
	for _, fuel := range fuelTypes {
		line, ok := analytics.Trend(buckets, fuel)
		if !ok {
			s.logger.Debug().Str("fuel_type", fuel).Int("buckets", len(buckets)).Msg("trend omitted, insufficient data")
			continue
		}
		out[fuel] = line
	}
	return out
}

// Changes computes windowed price changes averaged over fuelTypes. The bool is
// false when there is nothing to report.
func (s *Service) Changes(ctx context.Context, fuelTypes []string, windows []time.Duration, now time.Time) (map[time.Duration]analytics.ChangeRecord, bool, error) {
	if len(windows) == 0 {
		windows = s.windows
	}
	rows, err := s.fetch(ctx, storage.Filter{})
	if err != nil {
		return nil, false, err
	}
	records, ok := analytics.Changes(rows, fuelTypes, windows, now)
	return records, ok, nil
}

// ResolveFuelTypes expands a user selection. Empty or "all" yields the fuel
// types of the latest snapshot.
func (s *Service) ResolveFuelTypes(ctx context.Context, selection []string) ([]string, error) {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(selection))
	all := len(selection) == 0
	for _, raw := range selection {
		fuel := strings.TrimSpace(raw)
		if strings.EqualFold(fuel, AllFuelTypes) {
			all = true
			break
		}
		if fuel == "" {
			continue
		}
		if _, dup := seen[fuel]; dup {
			continue
		}
		seen[fuel] = struct{}{}
		out = append(out, fuel)
	}
	if !all && len(out) > 0 {
		return out, nil
	}

	snap, err := s.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(snap))
	for _, o := range snap {
		types = append(types, o.FuelType)
	}
	sort.Strings(types)
	return types, nil
}

// fetch reads rows and rejects a store that breaks ascending order.
func (s *Service) fetch(ctx context.Context, filter storage.Filter) ([]storage.Observation, error) {
	rows, err := s.store.ListObservations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	if err := analytics.CheckOrdered(rows); err != nil {
		s.logger.Error().Err(err).Msg("store returned unordered rows")
		return nil, err
	}
	return rows, nil
}
