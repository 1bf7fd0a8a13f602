package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-feed-sync/internal/query"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Options{BaseURL: baseURL, Timeout: time.Second, UserAgent: "tapewatch-test"}, zerolog.Nop())
}

func TestFetchExecutionsEncodesQuery(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/executions", r.URL.Path)
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "e1", "instrument": "ES", "status": "open", "size": "2", "price": "100"},
			},
			"pagination": map[string]bool{"hasNext": true},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.FetchExecutions(context.Background(), ExecutionQuery{
		Filter:   query.Filter{Statuses: []string{"open"}, Instruments: []string{"ES", "NQ"}},
		Sort:     query.Sort{Field: query.FieldLastUpdate, Descending: true},
		Page:     2,
		PageSize: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, gotQuery["page"])
	assert.Equal(t, []string{"50"}, gotQuery["pageSize"])
	assert.Equal(t, []string{"open"}, gotQuery["status"])
	assert.Equal(t, []string{"ES", "NQ"}, gotQuery["instrument"])
	assert.Equal(t, []string{"lastUpdate:desc"}, gotQuery["sort"])

	require.Len(t, res.Records, 1)
	assert.Equal(t, "e1", res.Records[0].ID)
	assert.True(t, res.HasNext)
}

func TestFetchExecutionsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "routing engine offline"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchExecutions(context.Background(), ExecutionQuery{Page: 1, PageSize: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routing engine offline")
}

func TestFetchAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/alerts", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "a1", "severity": "warning", "message": "slippage above band"},
		})
	}))
	defer srv.Close()

	alerts, err := newTestClient(srv.URL).FetchAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a1", alerts[0].ID)
}

func TestAcknowledgeAlertSuccessFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/alerts/a1/acknowledge", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": false})
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).AcknowledgeAlert(context.Background(), "a1")
	require.Error(t, err, "success=false is an error even on HTTP 200")
	assert.Contains(t, err.Error(), "success=false")
}

func TestDismissAlert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/alerts/a2/dismiss", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()

	assert.NoError(t, newTestClient(srv.URL).DismissAlert(context.Background(), "a2"))
}
