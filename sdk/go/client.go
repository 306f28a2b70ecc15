package nudgelinesdk

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

// Client is a minimal Nudgeline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Proposal represents the API proposal model (partial).
type Proposal struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	Generation       string  `json:"generation"`
	ProposalType     string  `json:"proposal_type"`
	TriggerType      string  `json:"trigger_type"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	AssistantMessage string  `json:"assistant_message,omitempty"`
	ActionType       string  `json:"action_type"`
	ActionRoute      string  `json:"action_route,omitempty"`
	Priority         int     `json:"priority"`
	Status           string  `json:"status"`
	VisibleToUser    bool    `json:"visible_to_user"`
	CreatedAt        string  `json:"created_at"`
	ExpiresAt        *string `json:"expires_at,omitempty"`
	SnoozedUntil     *string `json:"snoozed_until,omitempty"`
}

// Settings represents per-user engine preferences.
type Settings struct {
	UserID            string   `json:"user_id"`
	Enabled           bool     `json:"enabled"`
	CalendarTriggers  bool     `json:"calendar_triggers"`
	MeetingTriggers   bool     `json:"meeting_triggers"`
	SilenceTriggers   bool     `json:"silence_triggers"`
	FlowTriggers      bool     `json:"flow_triggers"`
	ReactivationDays  int      `json:"reactivation_days"`
	PrepLeadHours     int      `json:"prep_lead_hours"`
	NotificationStyle string   `json:"notification_style"`
	ExcludedKeywords  []string `json:"excluded_keywords,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// GenerationStats is one generation's slice of the comparison report.
type GenerationStats struct {
	Generation     string         `json:"generation"`
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	ByType         map[string]int `json:"by_type"`
	ActiveUsers    int            `json:"active_users"`
	Decided        int            `json:"decided"`
	AcceptanceRate float64        `json:"acceptance_rate"`
	Outcomes       map[string]int `json:"outcomes"`
}

// Report is the shadow-mode comparison readout.
type Report struct {
	Since       string            `json:"since,omitempty"`
	Generations []GenerationStats `json:"generations"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ProposalPage wraps list responses with cursors.
type ProposalPage struct {
	Items      []Proposal `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// IngestTrigger posts a raw trigger event; the response lists proposals it
// produced, one per admitted generation.
func (c *Client) IngestTrigger(ctx context.Context, source, eventType, userID, orgID string, payload map[string]any) ([]Proposal, error) {
	body := map[string]any{
		"source":  source,
		"type":    eventType,
		"user_id": userID,
		"org_id":  orgID,
		"payload": payload,
	}
	var resp struct {
		Items []Proposal `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, "v0/triggers", body, &resp)
	return resp.Items, err
}

// ListProposals returns one page of proposals for a user.
func (c *Client) ListProposals(ctx context.Context, userID, status string, limit int, cursor string) (ProposalPage, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/proposals"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp ProposalPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetProposal fetches a proposal by id.
func (c *Client) GetProposal(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodGet, c.proposalPath(id, ""), nil, &resp)
	return resp, err
}

// Accept moves a proposal to accepted, starting execution when applicable.
func (c *Client) Accept(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, c.proposalPath(id, "accept"), nil, &resp)
	return resp, err
}

// Decline rejects a proposal with an optional reason.
func (c *Client) Decline(ctx context.Context, id, reason string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, c.proposalPath(id, "decline"), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// Snooze parks a proposal until the given wake time.
func (c *Client) Snooze(ctx context.Context, id string, until time.Time) (Proposal, error) {
	var resp Proposal
	body := map[string]any{"until": until.UTC().Format(time.RFC3339)}
	err := c.do(ctx, http.MethodPost, c.proposalPath(id, "snooze"), body, &resp)
	return resp, err
}

// Wake returns a snoozed proposal to proposed early.
func (c *Client) Wake(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, c.proposalPath(id, "wake"), nil, &resp)
	return resp, err
}

// Retry re-queues a retryable failed proposal.
func (c *Client) Retry(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, c.proposalPath(id, "retry"), nil, &resp)
	return resp, err
}

// Complete closes an accepted navigate proposal.
func (c *Client) Complete(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, c.proposalPath(id, "complete"), nil, &resp)
	return resp, err
}

// MarkShown records first display on a surface.
func (c *Client) MarkShown(ctx context.Context, id, surface string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, c.proposalPath(id, "shown"), map[string]any{"surface": surface}, &resp)
	return resp, err
}

// RecordOutcome attaches an outcome rating to a finished proposal.
func (c *Client) RecordOutcome(ctx context.Context, id, rating, note string) error {
	body := map[string]any{"rating": rating, "note": note}
	return c.do(ctx, http.MethodPost, c.proposalPath(id, "outcome"), body, nil)
}

// Settings fetches per-user settings, seeding defaults server-side.
func (c *Client) Settings(ctx context.Context, userID string) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/users/%s/settings", url.PathEscape(userID)), nil, &resp)
	return resp, err
}

// UpdateSettings patches per-user settings with the provided fields.
func (c *Client) UpdateSettings(ctx context.Context, userID string, patch map[string]any) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("v0/users/%s/settings", url.PathEscape(userID)), patch, &resp)
	return resp, err
}

// ResetSettings restores per-user settings to defaults.
func (c *Client) ResetSettings(ctx context.Context, userID string) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("v0/users/%s/settings", url.PathEscape(userID)), nil, &resp)
	return resp, err
}

// UserStats summarizes a user's visible pipeline.
type UserStats struct {
	Pending        int       `json:"pending"`
	Urgent         int       `json:"urgent"`
	Snoozed        int       `json:"snoozed"`
	Executing      int       `json:"executing"`
	CompletedToday int       `json:"completed_today"`
	Next           *Proposal `json:"next,omitempty"`
}

// UserStats fetches a user's pipeline summary.
func (c *Client) UserStats(ctx context.Context, userID string) (UserStats, error) {
	var resp UserStats
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/users/%s/stats", url.PathEscape(userID)), nil, &resp)
	return resp, err
}

// ReportExecution posts an executor completion callback for a job.
func (c *Client) ReportExecution(ctx context.Context, jobID, state, resultJSON, errMsg string, retryable bool) (Proposal, error) {
	body := map[string]any{"state": state, "result_json": resultJSON, "error": errMsg, "retryable": retryable}
	var resp Proposal
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/executions/%s/callback", url.PathEscape(jobID)), body, &resp)
	return resp, err
}

// SetFlag writes one feature flag.
func (c *Client) SetFlag(ctx context.Context, key, value string) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("v0/flags/%s", url.PathEscape(key)), map[string]any{"value": value}, nil)
}

// Stats returns the per-generation comparison report.
func (c *Client) Stats(ctx context.Context, since string) (Report, error) {
	endpoint := "v0/stats/generations"
	if since != "" {
		endpoint += "?since=" + url.QueryEscape(since)
	}
	var resp Report
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, userID string, limit int) ([]Event, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) proposalPath(id, action string) string {
	p := fmt.Sprintf("v0/proposals/%s", url.PathEscape(id))
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
