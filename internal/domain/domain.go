package domain

import (
	"fmt"

	"fieldline/internal/date"
)

type Category string

const (
	CategoryDaily    Category = "daily"
	CategoryWeekly   Category = "weekly"
	CategoryMonthly  Category = "monthly"
	CategorySeasonal Category = "seasonal"
	CategoryOneTime  Category = "one-time"
)

var Categories = []Category{CategoryDaily, CategoryWeekly, CategoryMonthly, CategorySeasonal, CategoryOneTime}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusOverdue    Status = "overdue"
)

var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusOverdue}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

type Subtask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

type TaskTemplate struct {
	ID                     string    `json:"id"`
	Title                  string    `json:"title"`
	Description            string    `json:"description"`
	Category               Category  `json:"category"`
	Priority               Priority  `json:"priority"`
	EstimatedDurationHours float64   `json:"estimated_duration_hours"`
	Subtasks               []Subtask `json:"subtasks"`
	AssignedWorkers        []string  `json:"assigned_workers"`
	CreatedAt              string    `json:"created_at"`
	UpdatedAt              string    `json:"updated_at"`
}

// SubtaskIDs returns the template's subtask ids in display order.
func (t TaskTemplate) SubtaskIDs() []string {
	ids := make([]string, 0, len(t.Subtasks))
	for _, st := range t.Subtasks {
		ids = append(ids, st.ID)
	}
	return ids
}

func (t TaskTemplate) HasSubtask(id string) bool {
	for _, st := range t.Subtasks {
		if st.ID == id {
			return true
		}
	}
	return false
}

// Assignment is one template assigned to one worker for a date range.
// TemplateTitle, TemplateCategory and WorkerName are copied at creation and
// are not refreshed when the template or worker changes later.
type Assignment struct {
	ID                   string     `json:"id"`
	TemplateID           string     `json:"template_id"`
	TemplateTitle        string     `json:"template_title"`
	TemplateCategory     Category   `json:"template_category"`
	WorkerID             string     `json:"worker_id"`
	WorkerName           string     `json:"worker_name"`
	AssignedDate         date.Date  `json:"assigned_date"`
	DueDate              date.Date  `json:"due_date"`
	StartedDate          *date.Date `json:"started_date,omitempty"`
	CompletedDate        *date.Date `json:"completed_date,omitempty"`
	CompletedSubtaskIDs  []string   `json:"completed_subtask_ids"`
	CompletionPercentage int        `json:"completion_percentage"`
	Status               Status     `json:"status"`
	Notes                string     `json:"notes,omitempty"`
	VerifiedBy           string     `json:"verified_by,omitempty"`
	VerifiedAt           string     `json:"verified_at,omitempty"`
	CreatedAt            string     `json:"created_at"`
	UpdatedAt            string     `json:"updated_at"`
}

type Worker struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type WorkerStats struct {
	WorkerID              string  `json:"worker_id,omitempty"`
	WorkerName            string  `json:"worker_name,omitempty"`
	Total                 int     `json:"total"`
	Completed             int     `json:"completed"`
	InProgress            int     `json:"in_progress"`
	Pending               int     `json:"pending"`
	Overdue               int     `json:"overdue"`
	CompletionRatePercent float64 `json:"completion_rate_percent"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at"`
}
