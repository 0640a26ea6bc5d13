package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/chyiyaqing/trendbot/internal/logger"
)

const reportErrorMessage = "Unable to generate trend report"

type apiError struct {
	Error string `json:"error"`
}

type apiSourceHealth struct {
	Source    string `json:"source"`
	Fetches   int    `json:"fetches"`
	Failures  int    `json:"failures"`
	LastFetch string `json:"last_fetch"`
	LastItems int    `json:"last_items"`
	LastError string `json:"last_error,omitempty"`
}

type apiSourcesResponse struct {
	Window  string            `json:"window"`
	Count   int               `json:"count"`
	Sources []apiSourceHealth `json:"sources"`
}

type apiBuild struct {
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
	Themes     int    `json:"themes"`
	Items      int    `json:"items"`
	Error      string `json:"error,omitempty"`
}

type apiBuildsResponse struct {
	Count  int        `json:"count"`
	Builds []apiBuild `json:"builds"`
}

// GET /api/trends
func (s *Server) handleAPITrends(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	rep, err := s.reports.BuildTrendReport(ctx)
	if err != nil {
		logger.Log.WithField("request_id", middleware.GetReqID(r.Context())).Errorf("Failed to generate trend report: %v", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: reportErrorMessage})
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d",
		int(s.opts.CacheMaxAge.Seconds()), int(s.opts.StaleWhileRevalidate.Seconds())))
	writeJSON(w, http.StatusOK, rep)
}

// GET /api/sources?window=24h|3days|7days
func (s *Server) handleAPISources(w http.ResponseWriter, r *http.Request) {
	if s.ops == nil {
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "fetch log disabled"})
		return
	}

	window := r.URL.Query().Get("window")
	switch window {
	case "24h", "3days", "7days":
	default:
		window = "24h"
	}

	health, err := s.ops.SourceHealthByWindow(r.Context(), window)
	if err != nil {
		logger.Log.Errorf("api source health: %v", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to load source health"})
		return
	}

	items := make([]apiSourceHealth, len(health))
	for i, h := range health {
		items[i] = apiSourceHealth{
			Source:    h.Source,
			Fetches:   h.Fetches,
			Failures:  h.Failures,
			LastFetch: fmtTimeRFC3339(h.LastFetch),
			LastItems: h.LastItems,
			LastError: h.LastError,
		}
	}
	writeJSON(w, http.StatusOK, apiSourcesResponse{Window: window, Count: len(items), Sources: items})
}

// GET /api/builds?limit=20
func (s *Server) handleAPIBuilds(w http.ResponseWriter, r *http.Request) {
	if s.ops == nil {
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "fetch log disabled"})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	builds, err := s.ops.RecentBuilds(r.Context(), limit)
	if err != nil {
		logger.Log.Errorf("api builds: %v", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to load builds"})
		return
	}

	items := make([]apiBuild, len(builds))
	for i, b := range builds {
		items[i] = apiBuild{
			StartedAt:  fmtTimeRFC3339(b.StartedAt),
			DurationMS: b.Duration.Milliseconds(),
			Themes:     b.Themes,
			Items:      b.Items,
			Error:      b.Error,
		}
	}
	writeJSON(w, http.StatusOK, apiBuildsResponse{Count: len(items), Builds: items})
}

func fmtTimeRFC3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
