package archplansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal archplan HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Recommendation is one recommended template of an analysis.
type Recommendation struct {
	TemplateID   string         `json:"template_id"`
	Category     string         `json:"category"`
	Priority     int            `json:"priority"`
	Score        float64        `json:"score"`
	Reason       string         `json:"reason,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	ExtraConfig  map[string]any `json:"extra_config,omitempty"`
}

// Analysis represents the API needs analysis model.
type Analysis struct {
	Primary          []Recommendation `json:"primary"`
	Complementary    []Recommendation `json:"complementary"`
	Optional         []Recommendation `json:"optional"`
	OverallScore     float64          `json:"overall_score"`
	Complexity       string           `json:"complexity"`
	EstimatedMinutes int              `json:"estimated_minutes"`
	TotalTasks       int              `json:"total_tasks"`
	Summary          string           `json:"summary"`
}

// ComposeOptions mirrors the server's compose options.
type ComposeOptions struct {
	ForceRegenerate  bool           `json:"force_regenerate,omitempty"`
	IncludeOptional  *bool          `json:"include_optional,omitempty"`
	MinScore         float64        `json:"min_score,omitempty"`
	MinPriority      int            `json:"min_priority,omitempty"`
	CustomParameters map[string]any `json:"custom_parameters,omitempty"`
	StartDate        string         `json:"start_date,omitempty"`
	CompositionType  string         `json:"composition_type,omitempty"`
}

// ScheduleItem is one scheduled activity.
type ScheduleItem struct {
	ActivityID           string   `json:"activity_id"`
	Title                string   `json:"title"`
	Category             string   `json:"category"`
	StartDate            string   `json:"start_date"`
	EndDate              string   `json:"end_date"`
	DurationBusinessDays int      `json:"duration_business_days"`
	Dependencies         []string `json:"dependencies"`
	IsMilestone          bool     `json:"is_milestone"`
	IsCritical           bool     `json:"is_critical"`
}

// Budget represents the consolidated budget.
type Budget struct {
	Total      float64            `json:"total"`
	ByCategory map[string]float64 `json:"by_category"`
	ByTemplate map[string]float64 `json:"by_template"`
}

// Project represents the API composed project model (partial).
type Project struct {
	ID              string              `json:"id"`
	ProjectID       string              `json:"project_id"`
	TemplateIDs     []string            `json:"template_ids"`
	CompositionType string              `json:"composition_type"`
	DependencyGraph map[string][]string `json:"dependency_graph"`
	Schedule        []ScheduleItem      `json:"schedule"`
	Budget          Budget              `json:"budget"`
	Status          string              `json:"status"`
	CreatedAt       string              `json:"created_at"`
}

// Plan is the combined analyze and compose result.
type Plan struct {
	Analysis Analysis `json:"analysis"`
	Project  Project  `json:"project"`
}

// Template is a catalog listing entry.
type Template struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ActivityCount int    `json:"activity_count"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Analyze detects the templates a briefing needs.
func (c *Client) Analyze(ctx context.Context, briefing map[string]any) (Analysis, error) {
	var resp Analysis
	err := c.do(ctx, http.MethodPost, "v0/briefings/analyze", map[string]any{"briefing": briefing}, &resp)
	return resp, err
}

// Compose composes a project from a previous analysis.
func (c *Client) Compose(ctx context.Context, projectID string, analysis Analysis, opts ComposeOptions) (Project, error) {
	body := map[string]any{
		"analysis": analysis,
		"options":  opts,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "compose"), body, &resp)
	return resp, err
}

// Plan analyses a briefing and composes its project in one call.
func (c *Client) Plan(ctx context.Context, projectID string, briefing map[string]any, opts ComposeOptions) (Plan, error) {
	body := map[string]any{
		"briefing": briefing,
		"options":  opts,
	}
	var resp Plan
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "plan"), body, &resp)
	return resp, err
}

// Templates lists the catalog.
func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var resp []Template
	err := c.do(ctx, http.MethodGet, "v0/templates", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func projectPath(projectID, p string) string {
	return fmt.Sprintf("v0/projects/%s/%s", url.PathEscape(projectID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
