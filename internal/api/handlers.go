package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"exec-feed-sync/internal/engine"
	"exec-feed-sync/internal/export"
	"exec-feed-sync/internal/query"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, snap.Records)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, snap.Alerts)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := s.engine.Acknowledge(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Errorf("unknown alert %q", id))
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"acknowledged": true})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.engine.Dismiss(id)
	if s.dismisser != nil {
		if err := s.dismisser.DismissAlert(r.Context(), id); err != nil {
			s.logger.Warn().Err(err).Str("alert", id).Msg("upstream dismiss failed")
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"dismissed": true})
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.LoadNext(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Refresh(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatCSV
	}

	sub, err := s.subscribe(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	defer sub.Close()

	data, name, err := sub.Export(format)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// snapshot evaluates one request-scoped view: filter and sort come from the
// query string, so concurrent requests never share mutable state.
func (s *Server) snapshot(r *http.Request) (engine.Snapshot, error) {
	sub, err := s.subscribe(r)
	if err != nil {
		return engine.Snapshot{}, err
	}
	defer sub.Close()
	return sub.Snapshot(), nil
}

func (s *Server) subscribe(r *http.Request) (*engine.Subscription, error) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		return nil, err
	}

	sub := s.engine.Subscribe(nil)
	if sub == nil {
		return nil, fmt.Errorf("engine is closed")
	}
	sub.UpdateFilter(filter)
	sub.UpdateSort(parseSort(r.URL.Query().Get("sort")))
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			sub.Close()
			return nil, fmt.Errorf("invalid limit %q", limit)
		}
		sub.UpdateFeedConfig(engine.FeedConfig{MaxItems: n})
	}
	return sub, nil
}

// parseFilter mirrors the parameter names of the upstream REST API so the
// same query string works against both.
func parseFilter(values url.Values) (query.Filter, error) {
	f := query.Filter{
		Accounts:    values["account"],
		Instruments: values["instrument"],
		Statuses:    values["status"],
		Brokers:     values["broker"],
		Directions:  values["direction"],
		Search:      values.Get("search"),
	}

	for name, dst := range map[string]**decimal.Decimal{
		"minSize":     &f.MinSize,
		"maxSize":     &f.MaxSize,
		"minSlippage": &f.MinSlippage,
		"maxSlippage": &f.MaxSlippage,
	} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return query.Filter{}, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		*dst = &d
	}

	for name, dst := range map[string]**time.Time{
		"from": &f.From,
		"to":   &f.To,
	} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query.Filter{}, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		*dst = &t
	}

	return f, nil
}

// parseSort reads "field:asc" / "field:desc", defaulting to newest-first.
func parseSort(raw string) query.Sort {
	if raw == "" {
		return query.DefaultSort()
	}

	field, dir := raw, ""
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			field, dir = raw[:i], raw[i+1:]
			break
		}
	}
	return query.Sort{Field: query.ParseField(field), Descending: dir != "asc"}
}

func contentType(format string) string {
	switch format {
	case export.FormatJSON:
		return "application/json"
	case export.FormatPNG:
		return "image/png"
	default:
		return "text/csv"
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
