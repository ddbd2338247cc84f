package server

import (
	"encoding/json"

	"fieldline/internal/date"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
)

// Request payloads

type SubtaskRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Required    *bool  `json:"required,omitempty"`
}

type CreateTemplateRequest struct {
	ID                     string           `json:"id,omitempty"`
	Title                  string           `json:"title"`
	Description            string           `json:"description"`
	Category               string           `json:"category" enum:"daily,weekly,monthly,seasonal,one-time"`
	Priority               string           `json:"priority" enum:"low,medium,high,critical"`
	EstimatedDurationHours float64          `json:"estimated_duration_hours"`
	Subtasks               []SubtaskRequest `json:"subtasks,omitempty"`
	AssignedWorkers        []string         `json:"assigned_workers,omitempty"`
}

type UpdateTemplateRequest struct {
	Title                  *string           `json:"title,omitempty"`
	Description            *string           `json:"description,omitempty"`
	Category               *string           `json:"category,omitempty" enum:"daily,weekly,monthly,seasonal,one-time"`
	Priority               *string           `json:"priority,omitempty" enum:"low,medium,high,critical"`
	EstimatedDurationHours *float64          `json:"estimated_duration_hours,omitempty"`
	Subtasks               *[]SubtaskRequest `json:"subtasks,omitempty"`
	AssignedWorkers        *[]string         `json:"assigned_workers,omitempty"`
}

type CreateAssignmentRequest struct {
	ID           string `json:"id,omitempty"`
	TemplateID   string `json:"template_id"`
	WorkerID     string `json:"worker_id"`
	AssignedDate string `json:"assigned_date,omitempty" format:"date" doc:"Defaults to today in the farm timezone"`
	DueDate      string `json:"due_date,omitempty" format:"date" doc:"Defaults to the assigned date"`
	Notes        string `json:"notes,omitempty"`
}

type VerifyRequest struct {
	VerifierID string `json:"verifier_id,omitempty" doc:"Defaults to the caller"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type SubtaskResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

type TemplateResponse struct {
	ID                     string            `json:"id"`
	Title                  string            `json:"title"`
	Description            string            `json:"description"`
	Category               string            `json:"category" enum:"daily,weekly,monthly,seasonal,one-time"`
	Priority               string            `json:"priority" enum:"low,medium,high,critical"`
	EstimatedDurationHours float64           `json:"estimated_duration_hours"`
	Subtasks               []SubtaskResponse `json:"subtasks"`
	AssignedWorkers        []string          `json:"assigned_workers"`
	CreatedAt              string            `json:"created_at"`
	UpdatedAt              string            `json:"updated_at"`
}

type AssignmentResponse struct {
	ID                   string   `json:"id"`
	TemplateID           string   `json:"template_id"`
	TemplateTitle        string   `json:"template_title"`
	TemplateCategory     string   `json:"template_category"`
	WorkerID             string   `json:"worker_id"`
	WorkerName           string   `json:"worker_name"`
	AssignedDate         string   `json:"assigned_date" format:"date"`
	DueDate              string   `json:"due_date" format:"date"`
	StartedDate          *string  `json:"started_date,omitempty" format:"date"`
	CompletedDate        *string  `json:"completed_date,omitempty" format:"date"`
	CompletedSubtaskIDs  []string `json:"completed_subtask_ids"`
	CompletionPercentage int      `json:"completion_percentage" minimum:"0" maximum:"100"`
	Status               string   `json:"status" enum:"pending,in-progress,completed,overdue"`
	Notes                string   `json:"notes,omitempty"`
	VerifiedBy           string   `json:"verified_by,omitempty"`
	VerifiedAt           string   `json:"verified_at,omitempty"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

type WorkerResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type StatsResponse struct {
	WorkerID              string  `json:"worker_id,omitempty"`
	WorkerName            string  `json:"worker_name,omitempty"`
	Total                 int     `json:"total"`
	Completed             int     `json:"completed"`
	InProgress            int     `json:"in_progress"`
	Pending               int     `json:"pending"`
	Overdue               int     `json:"overdue"`
	CompletionRatePercent float64 `json:"completion_rate_percent"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type listTemplates struct {
	Items []TemplateResponse `json:"items"`
}

type listAssignments struct {
	Items []AssignmentResponse `json:"items"`
}

type listWorkers struct {
	Items []WorkerResponse `json:"items"`
}

type listStats struct {
	Items []StatsResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func subtaskInputs(in []SubtaskRequest) []engine.SubtaskInput {
	out := make([]engine.SubtaskInput, 0, len(in))
	for _, st := range in {
		out = append(out, engine.SubtaskInput{
			ID:          st.ID,
			Title:       st.Title,
			Description: st.Description,
			Required:    st.Required,
		})
	}
	return out
}

func templateResponse(t domain.TaskTemplate) TemplateResponse {
	subtasks := make([]SubtaskResponse, 0, len(t.Subtasks))
	for _, st := range t.Subtasks {
		subtasks = append(subtasks, SubtaskResponse(st))
	}
	return TemplateResponse{
		ID:                     t.ID,
		Title:                  t.Title,
		Description:            t.Description,
		Category:               string(t.Category),
		Priority:               string(t.Priority),
		EstimatedDurationHours: t.EstimatedDurationHours,
		Subtasks:               subtasks,
		AssignedWorkers:        nonNilSlice(t.AssignedWorkers),
		CreatedAt:              t.CreatedAt,
		UpdatedAt:              t.UpdatedAt,
	}
}

func assignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:                   a.ID,
		TemplateID:           a.TemplateID,
		TemplateTitle:        a.TemplateTitle,
		TemplateCategory:     string(a.TemplateCategory),
		WorkerID:             a.WorkerID,
		WorkerName:           a.WorkerName,
		AssignedDate:         a.AssignedDate.String(),
		DueDate:              a.DueDate.String(),
		StartedDate:          datePtr(a.StartedDate),
		CompletedDate:        datePtr(a.CompletedDate),
		CompletedSubtaskIDs:  nonNilSlice(a.CompletedSubtaskIDs),
		CompletionPercentage: a.CompletionPercentage,
		Status:               string(a.Status),
		Notes:                a.Notes,
		VerifiedBy:           a.VerifiedBy,
		VerifiedAt:           a.VerifiedAt,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

func statsResponse(s domain.WorkerStats) StatsResponse {
	return StatsResponse(s)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func datePtr(d *date.Date) *string {
	if d == nil || d.IsZero() {
		return nil
	}
	s := d.String()
	return &s
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
