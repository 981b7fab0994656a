package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fuel-price-tracker/internal/analytics"
	"fuel-price-tracker/internal/service"
	"fuel-price-tracker/internal/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: version.Version}
	count, err := s.svc.Count(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("health check failed")
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Observations = count

	snap, err := s.svc.LatestSnapshot(r.Context())
	if err == nil && len(snap) > 0 {
		resp.Latest = optionalTime(snap[0].Timestamp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.LatestSnapshot(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLatestResponse(snap))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	fuel := strings.TrimSpace(r.URL.Query().Get("fuel"))
	if strings.EqualFold(fuel, service.AllFuelTypes) {
		fuel = ""
	}
	rows, err := s.svc.History(r.Context(), fuel)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{FuelType: fuel, Observations: toObservationDTOs(rows)})
}

func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := bucketsResponse{}

	var (
		buckets []analytics.Bucket
		opts    analytics.BucketOptions
		err     error
	)
	if rawMode := q.Get("mode"); rawMode != "" {
		opts.Mode, err = analytics.ParseMode(rawMode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.OffsetMinutes = s.svc.OffsetMinutes()
		if raw := q.Get("offset"); raw != "" {
			if opts.OffsetMinutes, err = strconv.Atoi(raw); err != nil {
				writeError(w, http.StatusBadRequest, "offset must be an integer number of minutes")
				return
			}
		}
		if raw := q.Get("cutoff"); raw != "" {
			if opts.Cutoff, err = time.Parse(time.RFC3339, raw); err != nil {
				writeError(w, http.StatusBadRequest, "cutoff must be an RFC3339 timestamp")
				return
			}
		}
		buckets, err = s.svc.Buckets(r.Context(), opts)
	} else {
		interval, perr := analytics.ParseInterval(q.Get("interval"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		device := detectDevice(r)
		resp.Interval, resp.Device = string(interval), string(device)
		buckets, opts, err = s.svc.RollingBuckets(r.Context(), interval, device, s.svc.Now())
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	fuelTypes := analytics.FuelTypes(buckets)
	var only map[string]bool
	if selection := fuelSelection(r); len(selection) > 0 && !isAll(selection) {
		only = make(map[string]bool, len(selection))
		for _, f := range selection {
			only[f] = true
		}
		fuelTypes = selection
	}

	resp.Mode = string(opts.Mode)
	resp.OffsetMinutes = opts.OffsetMinutes
	resp.Cutoff = optionalTime(opts.Cutoff)
	resp.FuelTypes = fuelTypes
	resp.Buckets = toBucketDTOs(opts.Mode, buckets, only)
	resp.Trends = toTrendDTOs(s.svc.Trends(buckets, fuelTypes))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	windows, err := parseWindows(r.URL.Query().Get("windows"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fuelTypes, err := s.svc.ResolveFuelTypes(r.Context(), fuelSelection(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	records, ok, err := s.svc.Changes(r.Context(), fuelTypes, windows, s.svc.Now())
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := changesResponse{Available: ok, FuelTypes: fuelTypes, Windows: []changeDTO{}}
	if ok {
		resp.Windows = toChangeDTOs(records)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ScrapeOnce(r.Context(), time.Time{})
	if err != nil {
		if errors.Is(err, service.ErrScraperDisabled) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("manual scrape failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scrapeResponse{
		At:           formatTime(res.At),
		Skipped:      res.Skipped,
		Observations: toObservationDTOs(res.Observations),
		Changes:      toDeltaDTOs(res.Changes),
	})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analytics.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// detectDevice honours an explicit device parameter, then the User-Agent.
func detectDevice(r *http.Request) analytics.Device {
	if v := r.URL.Query().Get("device"); v != "" {
		return analytics.ParseDevice(v)
	}
	if strings.Contains(r.UserAgent(), "Mobi") {
		return analytics.DeviceMobile
	}
	return analytics.DeviceDesktop
}

// fuelSelection reads repeated or comma-separated fuel parameters.
func fuelSelection(r *http.Request) []string {
	var out []string
	for _, raw := range r.URL.Query()["fuel"] {
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func isAll(selection []string) bool {
	for _, f := range selection {
		if strings.EqualFold(f, service.AllFuelTypes) {
			return true
		}
	}
	return false
}

func parseWindows(raw string) ([]time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, err := ParseWindow(part)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
