// Package upstream is the REST client for the order-routing engine's pull
// endpoints: paged execution history, the alert backlog, and alert actions.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"exec-feed-sync/internal/query"
	"exec-feed-sync/internal/record"
)

// Options parameterise the upstream client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the upstream REST surface.
type Client struct {
	opts    Options
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewClient constructs an upstream client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger.With().Str("component", "upstream_client").Logger(),
	}
}

// ExecutionQuery addresses one page of execution history.
type ExecutionQuery struct {
	Filter   query.Filter
	Sort     query.Sort
	Page     int
	PageSize int
}

// PageResult is one fetched page plus the continuation flag.
type PageResult struct {
	Records []record.Record
	HasNext bool
}

type executionsResponse struct {
	Data       []record.Record `json:"data"`
	Pagination struct {
		HasNext bool `json:"hasNext"`
	} `json:"pagination"`
}

type actionResponse struct {
	Success bool `json:"success"`
}

// FetchExecutions retrieves one page of executions.
func (c *Client) FetchExecutions(ctx context.Context, q ExecutionQuery) (PageResult, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	encodeFilter(params, q.Filter)
	if q.Sort.Field != "" {
		dir := "asc"
		if q.Sort.Descending {
			dir = "desc"
		}
		params.Set("sort", string(q.Sort.Field)+":"+dir)
	}

	var payload executionsResponse
	if err := c.getJSON(ctx, "/executions?"+params.Encode(), &payload); err != nil {
		return PageResult{}, fmt.Errorf("fetch executions: %w", err)
	}
	return PageResult{Records: payload.Data, HasNext: payload.Pagination.HasNext}, nil
}

// FetchAlerts retrieves the current alert backlog.
func (c *Client) FetchAlerts(ctx context.Context) ([]record.Alert, error) {
	var alerts []record.Alert
	if err := c.getJSON(ctx, "/alerts", &alerts); err != nil {
		return nil, fmt.Errorf("fetch alerts: %w", err)
	}
	return alerts, nil
}

// AcknowledgeAlert confirms an alert upstream. The caller mutates local state
// only after this returns nil.
func (c *Client) AcknowledgeAlert(ctx context.Context, id string) error {
	if err := c.postAction(ctx, "/alerts/"+url.PathEscape(id)+"/acknowledge"); err != nil {
		return fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	return nil
}

// DismissAlert reports a local dismissal upstream, best effort.
func (c *Client) DismissAlert(ctx context.Context, id string) error {
	if err := c.postAction(ctx, "/alerts/"+url.PathEscape(id)+"/dismiss"); err != nil {
		return fmt.Errorf("dismiss alert %s: %w", id, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return httpError(resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postAction(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return httpError(resp.StatusCode, body)
	}

	var action actionResponse
	if err := json.Unmarshal(body, &action); err != nil {
		return fmt.Errorf("decode action response: %w", err)
	}
	if !action.Success {
		return fmt.Errorf("upstream reported success=false")
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
}

func encodeFilter(params url.Values, f query.Filter) {
	for _, v := range f.Accounts {
		params.Add("account", v)
	}
	for _, v := range f.Instruments {
		params.Add("instrument", v)
	}
	for _, v := range f.Statuses {
		params.Add("status", v)
	}
	for _, v := range f.Brokers {
		params.Add("broker", v)
	}
	for _, v := range f.Directions {
		params.Add("direction", v)
	}
	if f.Search != "" {
		params.Set("search", f.Search)
	}
	if f.From != nil {
		params.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		params.Set("to", f.To.UTC().Format(time.RFC3339))
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func httpError(status int, body []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("upstream error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("upstream error (%d): %s", status, apiErr.Error)
		}
	}
	if len(body) > 0 {
		return fmt.Errorf("upstream error (%d): %s", status, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("upstream error (%d)", status)
}
