package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fuel-price-tracker/internal/config"
	"fuel-price-tracker/internal/metrics"
	"fuel-price-tracker/internal/scraper"
	"fuel-price-tracker/internal/service"
	"fuel-price-tracker/internal/storage"
)

type stubScraper struct {
	prices []scraper.Price
}

func (s stubScraper) Scrape(context.Context) ([]scraper.Price, error) {
	return s.prices, nil
}

func newTestServer(t *testing.T, seed bool, scr scraper.PriceScraper) *Server {
	t.Helper()
	store := storage.NewMemoryStore(0)
	if seed {
		now := time.Now().UTC().Truncate(time.Millisecond)
		var rows []storage.Observation
		for day := 5; day >= 0; day-- {
			ts := now.AddDate(0, 0, -day)
			p := decimal.RequireFromString("1.500").Add(decimal.New(int64(5-day), -2))
			rows = append(rows,
				storage.Observation{FuelType: "Neste Futura 95", Price: p, Timestamp: ts, Stations: []string{"Brīvības iela 253"}},
				storage.Observation{FuelType: "Neste Futura D", Price: p.Sub(decimal.New(1, -1)), Timestamp: ts},
			)
		}
		require.NoError(t, store.InsertObservations(context.Background(), rows))
	}

	cfg := &config.Config{Analytics: config.AnalyticsConfig{TZOffsetMinutes: 120}}
	m := metrics.New()
	svc := service.New(cfg, nil, scr, store, nil, m, zerolog.Nop())
	return New(config.HTTPConfig{AllowedOrigins: []string{"https://fuel.example"}, PushInterval: time.Hour}, svc, m, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, target string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, true, nil)
	rec, body := do(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, 12, body["observations"])
	require.NotNil(t, body["latest"])
}

func TestLatestEmptyIsNotAnError(t *testing.T) {
	s := newTestServer(t, false, nil)
	rec, body := do(t, s, http.MethodGet, "/api/prices/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, body["available"])
	require.Empty(t, body["prices"])
	require.Nil(t, body["timestamp"])
}

func TestLatestSnapshot(t *testing.T) {
	s := newTestServer(t, true, nil)
	rec, _ := do(t, s, http.MethodGet, "/api/prices/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"price":1.550`)
	require.Contains(t, rec.Body.String(), `"price":1.450`)

	var resp latestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Available)
	require.Len(t, resp.Prices, 2)
	require.Equal(t, "Neste Futura 95", resp.Prices[0].FuelType)
	require.Equal(t, []string{"Brīvības iela 253"}, resp.Prices[0].Stations)
	require.Equal(t, []string{}, resp.Prices[1].Stations)
}

func TestHistory(t *testing.T) {
	s := newTestServer(t, true, nil)
	rec, body := do(t, s, http.MethodGet, "/api/prices/history?fuel=Neste+Futura+D", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["observations"], 6)

	_, body = do(t, s, http.MethodGet, "/api/prices/history?fuel=all", nil)
	require.Len(t, body["observations"], 12)
}

func TestBucketsRolling(t *testing.T) {
	s := newTestServer(t, true, nil)

	rec, body := do(t, s, http.MethodGet, "/api/prices/buckets?interval=days", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "day", body["mode"])
	require.Equal(t, "desktop", body["device"])
	require.EqualValues(t, 120, body["offset_minutes"])
	buckets := body["buckets"].([]any)
	require.GreaterOrEqual(t, len(buckets), 6)
	trends := body["trends"].(map[string]any)
	require.Contains(t, trends, "Neste Futura 95")

	_, body = do(t, s, http.MethodGet, "/api/prices/buckets?interval=weeks", map[string]string{
		"User-Agent": "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148",
	})
	require.Equal(t, "mobile", body["device"])
	require.Equal(t, "week", body["mode"])
}

func TestBucketsExplicitModeAndFilter(t *testing.T) {
	s := newTestServer(t, true, nil)

	rec, body := do(t, s, http.MethodGet, "/api/prices/buckets?mode=month&offset=0&fuel=Neste+Futura+D", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{"Neste Futura D"}, body["fuel_types"])
	for _, raw := range body["buckets"].([]any) {
		fuels := raw.(map[string]any)["fuels"].(map[string]any)
		require.NotContains(t, fuels, "Neste Futura 95")
		require.True(t, strings.HasSuffix(raw.(map[string]any)["label"].(string), "."))
	}

	rec, _ = do(t, s, http.MethodGet, "/api/prices/buckets?mode=hours", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/prices/buckets?mode=day&cutoff=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/prices/buckets?interval=years", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChanges(t *testing.T) {
	s := newTestServer(t, true, nil)

	rec, _ := do(t, s, http.MethodGet, "/api/prices/changes?fuel=Neste+Futura+95&windows=24h,7d", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp changesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Available)
	require.Len(t, resp.Windows, 2)
	require.Equal(t, "24h", resp.Windows[0].Window)
	require.Equal(t, json.Number("0.010"), resp.Windows[0].AbsoluteDelta)
	require.Equal(t, "7d", resp.Windows[1].Window)
	require.True(t, resp.Windows[1].FuelTypes[0].Fallback)

	rec, _ = do(t, s, http.MethodGet, "/api/prices/changes?windows=3x", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangesWithoutData(t *testing.T) {
	s := newTestServer(t, false, nil)
	rec, body := do(t, s, http.MethodGet, "/api/prices/changes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, body["available"])
	require.Empty(t, body["windows"])
}

func TestScrapeEndpoint(t *testing.T) {
	s := newTestServer(t, false, nil)
	rec, _ := do(t, s, http.MethodPost, "/api/scrape", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s = newTestServer(t, false, stubScraper{prices: []scraper.Price{
		{FuelType: "Neste Futura 98", Price: decimal.RequireFromString("1.639"), Stations: []string{"Krasta iela 101"}},
	}})
	rec, body := do(t, s, http.MethodPost, "/api/scrape", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["observations"], 1)

	_, body = do(t, s, http.MethodGet, "/api/prices/latest", nil)
	require.Equal(t, true, body["available"])
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, false, nil)

	rec, _ := do(t, s, http.MethodGet, "/api/health", map[string]string{"Origin": "https://fuel.example"})
	require.Equal(t, "https://fuel.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = do(t, s, http.MethodGet, "/api/health", map[string]string{"Origin": "https://evil.example"})
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = do(t, s, http.MethodOptions, "/api/prices/latest", map[string]string{"Origin": "https://fuel.example"})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, true, nil)
	do(t, s, http.MethodGet, "/api/prices/latest", nil)

	rec, _ := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `route="GET /api/prices/latest"`)
}

func TestWebSocketPush(t *testing.T) {
	s := newTestServer(t, true, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "snapshot", msg.Type)
	require.NotNil(t, msg.Latest)
	require.True(t, msg.Latest.Available)
	require.Len(t, msg.Latest.Prices, 2)
}

func TestWindowFormatting(t *testing.T) {
	cases := map[string]time.Duration{
		"24h": 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"90d": 90 * 24 * time.Hour,
		"6h":  6 * time.Hour,
	}
	for text, d := range cases {
		got, err := ParseWindow(text)
		require.NoError(t, err)
		require.Equal(t, d, got)
		require.Equal(t, text, FormatWindow(d))
	}
	_, err := ParseWindow("0d")
	require.Error(t, err)
	_, err = ParseWindow("-1h")
	require.Error(t, err)
}
