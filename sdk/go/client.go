package fieldlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal fieldline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type Subtask struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Required    *bool  `json:"required,omitempty"`
}

// Template represents a task template.
type Template struct {
	ID                     string    `json:"id,omitempty"`
	Title                  string    `json:"title"`
	Description            string    `json:"description"`
	Category               string    `json:"category"`
	Priority               string    `json:"priority"`
	EstimatedDurationHours float64   `json:"estimated_duration_hours"`
	Subtasks               []Subtask `json:"subtasks,omitempty"`
	AssignedWorkers        []string  `json:"assigned_workers,omitempty"`
	CreatedAt              string    `json:"created_at,omitempty"`
	UpdatedAt              string    `json:"updated_at,omitempty"`
}

// Assignment is a template assigned to a worker. Dates are YYYY-MM-DD.
type Assignment struct {
	ID                   string   `json:"id"`
	TemplateID           string   `json:"template_id"`
	TemplateTitle        string   `json:"template_title"`
	TemplateCategory     string   `json:"template_category"`
	WorkerID             string   `json:"worker_id"`
	WorkerName           string   `json:"worker_name"`
	AssignedDate         string   `json:"assigned_date"`
	DueDate              string   `json:"due_date"`
	StartedDate          string   `json:"started_date,omitempty"`
	CompletedDate        string   `json:"completed_date,omitempty"`
	CompletedSubtaskIDs  []string `json:"completed_subtask_ids"`
	CompletionPercentage int      `json:"completion_percentage"`
	Status               string   `json:"status"`
	Notes                string   `json:"notes,omitempty"`
	VerifiedBy           string   `json:"verified_by,omitempty"`
	VerifiedAt           string   `json:"verified_at,omitempty"`
}

// NewAssignment holds the fields accepted by CreateAssignment.
type NewAssignment struct {
	TemplateID   string `json:"template_id"`
	WorkerID     string `json:"worker_id"`
	AssignedDate string `json:"assigned_date,omitempty"`
	DueDate      string `json:"due_date,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// AssignmentFilters narrows ListAssignments; empty fields are ignored.
type AssignmentFilters struct {
	WorkerID string
	Date     string
	Status   string
}

type Stats struct {
	WorkerID              string  `json:"worker_id,omitempty"`
	WorkerName            string  `json:"worker_name,omitempty"`
	Total                 int     `json:"total"`
	Completed             int     `json:"completed"`
	InProgress            int     `json:"in_progress"`
	Pending               int     `json:"pending"`
	Overdue               int     `json:"overdue"`
	CompletionRatePercent float64 `json:"completion_rate_percent"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
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

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// CreateTemplate creates a template.
func (c *Client) CreateTemplate(ctx context.Context, t Template) (Template, error) {
	var resp Template
	err := c.do(ctx, http.MethodPost, "templates", t, &resp)
	return resp, err
}

// GetTemplate fetches a template by id.
func (c *Client) GetTemplate(ctx context.Context, id string) (Template, error) {
	var resp Template
	err := c.do(ctx, http.MethodGet, "templates/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTemplates lists templates, optionally by category.
func (c *Client) ListTemplates(ctx context.Context, category string) ([]Template, error) {
	var resp struct {
		Items []Template `json:"items"`
	}
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	err := c.do(ctx, http.MethodGet, withQuery("templates", q), nil, &resp)
	return resp.Items, err
}

// DeleteTemplate deletes an unreferenced template.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "templates/"+url.PathEscape(id), nil, nil)
}

// CreateAssignment assigns a template to a worker.
func (c *Client) CreateAssignment(ctx context.Context, in NewAssignment) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments", in, &resp)
	return resp, err
}

// GetAssignment fetches an assignment with its current status.
func (c *Client) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodGet, "assignments/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListAssignments lists assignments matching f.
func (c *Client) ListAssignments(ctx context.Context, f AssignmentFilters) ([]Assignment, error) {
	var resp struct {
		Items []Assignment `json:"items"`
	}
	q := url.Values{}
	if f.WorkerID != "" {
		q.Set("worker", f.WorkerID)
	}
	if f.Date != "" {
		q.Set("date", f.Date)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	err := c.do(ctx, http.MethodGet, withQuery("assignments", q), nil, &resp)
	return resp.Items, err
}

// ToggleSubtask flips one subtask of an assignment.
func (c *Client) ToggleSubtask(ctx context.Context, assignmentID, subtaskID string) (Assignment, error) {
	var resp Assignment
	endpoint := fmt.Sprintf("assignments/%s/subtasks/%s/toggle", url.PathEscape(assignmentID), url.PathEscape(subtaskID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Verify marks a completed assignment as verified. An empty verifierID
// verifies as the authenticated caller.
func (c *Client) Verify(ctx context.Context, assignmentID, verifierID string) (Assignment, error) {
	var body any
	if verifierID != "" {
		body = map[string]string{"verifier_id": verifierID}
	}
	var resp Assignment
	err := c.do(ctx, http.MethodPost, "assignments/"+url.PathEscape(assignmentID)+"/verify", body, &resp)
	return resp, err
}

// WorkerStats returns counts for one worker.
func (c *Client) WorkerStats(ctx context.Context, workerID string) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "workers/"+url.PathEscape(workerID)+"/stats", nil, &resp)
	return resp, err
}

// GlobalStats returns counts across all workers.
func (c *Client) GlobalStats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

// ListEvents lists events newest first; pass NextCursor back to page.
func (c *Client) ListEvents(ctx context.Context, eventType, cursor string, limit int) (PaginatedEvents, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("type", eventType)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
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
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
