package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fuel-price-tracker/internal/config"
)

func storesUnderTest(t *testing.T) map[string]ObservationStore {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(sqlite.Close)

	return map[string]ObservationStore{
		"memory": NewMemoryStore(0),
		"sqlite": sqlite,
	}
}

func obs(fuel, price string, ts time.Time, stations ...string) Observation {
	return Observation{FuelType: fuel, Price: decimal.RequireFromString(price), Stations: stations, Timestamp: ts}
}

func TestStoreContract(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := store.LatestTimestamp(ctx); err != nil || ok {
				t.Fatalf("空库 LatestTimestamp 应为 (false, nil), 实际 ok=%v err=%v", ok, err)
			}

			// second cycle inserted first to check ordering
			if err := store.InsertObservations(ctx, []Observation{
				obs("Neste Futura 95", "1.559", t1, "Brīvības 1", "Maskavas 2"),
				obs("Neste Futura D", "1.499", t1),
			}); err != nil {
				t.Fatalf("insert t1: %v", err)
			}
			if err := store.InsertObservations(ctx, []Observation{
				obs("Neste Futura 95", "1.579", t0),
			}); err != nil {
				t.Fatalf("insert t0: %v", err)
			}

			latest, ok, err := store.LatestTimestamp(ctx)
			if err != nil || !ok || !latest.Equal(t1) {
				t.Fatalf("LatestTimestamp = %s ok=%v err=%v, want %s", latest, ok, err, t1)
			}

			all, err := store.ListObservations(ctx, Filter{})
			if err != nil {
				t.Fatalf("list all: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("len(all) = %d, want 3", len(all))
			}
			for i := 1; i < len(all); i++ {
				if all[i].Timestamp.Before(all[i-1].Timestamp) {
					t.Fatalf("结果应按时间升序: %v", all)
				}
			}
			if !all[0].Price.Equal(decimal.RequireFromString("1.579")) {
				t.Fatalf("最早一行价格不正确: %s", all[0].Price)
			}

			since, err := store.ListSince(ctx, t1)
			if err != nil || len(since) != 2 {
				t.Fatalf("ListSince(t1) len=%d err=%v, want 2", len(since), err)
			}

			petrol, err := store.ListObservations(ctx, Filter{FuelType: "Neste Futura 95"})
			if err != nil || len(petrol) != 2 {
				t.Fatalf("filter by fuel len=%d err=%v, want 2", len(petrol), err)
			}
			last := petrol[len(petrol)-1]
			if len(last.Stations) != 2 || last.Stations[0] != "Brīvības 1" || last.Stations[1] != "Maskavas 2" {
				t.Fatalf("stations 未正确往返: %#v", last.Stations)
			}
			diesel, _ := store.ListObservations(ctx, Filter{FuelType: "Neste Futura D"})
			if len(diesel) != 1 || diesel[0].Stations == nil || len(diesel[0].Stations) != 0 {
				t.Fatalf("空 stations 应返回空切片: %#v", diesel)
			}

			count, err := store.CountObservations(ctx)
			if err != nil || count != 3 {
				t.Fatalf("count = %d err=%v, want 3", count, err)
			}

			if err := store.Reset(ctx); err != nil {
				t.Fatalf("reset: %v", err)
			}
			if count, _ := store.CountObservations(ctx); count != 0 {
				t.Fatalf("reset 后应为空, 实际 %d", count)
			}
		})
	}
}

func TestInsertRejectsMalformed(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			cases := []Observation{
				obs("", "1.5", time.Now()),
				obs("Neste Futura 95", "-1", time.Now()),
				obs("Neste Futura 95", "1.5", time.Time{}),
			}
			for _, o := range cases {
				err := store.InsertObservations(context.Background(), []Observation{o})
				if !errors.Is(err, ErrMalformedObservation) {
					t.Fatalf("期望 ErrMalformedObservation, 实际 %v", err)
				}
			}
		})
	}
}

func TestMemoryStoreBound(t *testing.T) {
	store := NewMemoryStore(2)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if err := store.InsertObservations(context.Background(), []Observation{obs("Neste Futura 95", "1.5", base.Add(time.Duration(i)*time.Hour))}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	rows, _ := store.ListObservations(context.Background(), Filter{})
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	if !rows[0].Timestamp.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("应保留最新的两行, 实际首行 %s", rows[0].Timestamp)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("memory driver 应返回 *MemoryStore, 实际 %T", store)
	}

	store, err = Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("sqlite driver 应返回 *SQLiteStore, 实际 %T", store)
	}

	if _, err := Open(ctx, config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("未知 driver 应报错")
	}
	if _, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverPostgres}); err == nil {
		t.Fatal("postgres 缺少 dsn 应报错")
	}
}

func TestPostgresStoreNotConfigured(t *testing.T) {
	var store *PostgresStore
	if _, err := store.CountObservations(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("nil store 应返回 ErrNotConfigured, 实际 %v", err)
	}
	store.Close()
}
