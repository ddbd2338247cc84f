package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

// SubtaskInput describes a subtask to create. Required defaults to true.
type SubtaskInput struct {
	ID          string `json:"id"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Required    *bool  `json:"required"`
}

type templateFields struct {
	Title                  string          `json:"title" validate:"required"`
	Description            string          `json:"description" validate:"required"`
	Category               domain.Category `json:"category" validate:"required,oneof=daily weekly monthly seasonal one-time"`
	Priority               domain.Priority `json:"priority" validate:"required,oneof=low medium high critical"`
	EstimatedDurationHours float64         `json:"estimated_duration_hours" validate:"gt=0"`
	Subtasks               []SubtaskInput  `json:"subtasks" validate:"dive"`
	AssignedWorkers        []string        `json:"assigned_workers" validate:"dive,required"`
}

// TemplateCreateOptions are parameters for creating a template.
type TemplateCreateOptions struct {
	ID                     string
	Title                  string
	Description            string
	Category               domain.Category
	Priority               domain.Priority
	EstimatedDurationHours float64
	Subtasks               []SubtaskInput
	AssignedWorkers        []string
	ActorID                string
}

// TemplateUpdateOptions is a partial update; nil fields are kept. Subtasks,
// when set, replaces the whole list. Inputs that carry an existing subtask id
// keep that id so completions recorded against it survive the edit.
type TemplateUpdateOptions struct {
	ID                     string
	Title                  *string
	Description            *string
	Category               *domain.Category
	Priority               *domain.Priority
	EstimatedDurationHours *float64
	Subtasks               *[]SubtaskInput
	AssignedWorkers        *[]string
	ActorID                string
}

func normalizeFields(f *templateFields) {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	for i := range f.Subtasks {
		f.Subtasks[i].ID = strings.TrimSpace(f.Subtasks[i].ID)
		f.Subtasks[i].Title = strings.TrimSpace(f.Subtasks[i].Title)
		f.Subtasks[i].Description = strings.TrimSpace(f.Subtasks[i].Description)
	}
	f.AssignedWorkers = dedupe(f.AssignedWorkers)
}

func checkFields(f templateFields) error {
	if err := validateStruct(f); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, st := range f.Subtasks {
		if st.ID == "" {
			continue
		}
		if seen[st.ID] {
			return invalid("subtasks", "contain duplicate id %s", st.ID)
		}
		seen[st.ID] = true
	}
	return nil
}

func buildSubtasks(in []SubtaskInput) []domain.Subtask {
	out := make([]domain.Subtask, 0, len(in))
	for _, st := range in {
		out = append(out, newSubtask(st))
	}
	return out
}

func newSubtask(in SubtaskInput) domain.Subtask {
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	required := true
	if in.Required != nil {
		required = *in.Required
	}
	return domain.Subtask{ID: id, Title: in.Title, Description: in.Description, Required: required}
}

func subtaskInputs(list []domain.Subtask) []SubtaskInput {
	out := make([]SubtaskInput, 0, len(list))
	for _, st := range list {
		required := st.Required
		out = append(out, SubtaskInput{ID: st.ID, Title: st.Title, Description: st.Description, Required: &required})
	}
	return out
}

func (e Engine) CreateTemplate(ctx context.Context, opts TemplateCreateOptions) (domain.TaskTemplate, error) {
	f := templateFields{
		Title:                  opts.Title,
		Description:            opts.Description,
		Category:               opts.Category,
		Priority:               opts.Priority,
		EstimatedDurationHours: opts.EstimatedDurationHours,
		Subtasks:               opts.Subtasks,
		AssignedWorkers:        opts.AssignedWorkers,
	}
	normalizeFields(&f)
	if err := checkFields(f); err != nil {
		return domain.TaskTemplate{}, err
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.New().String()
	}
	now := e.timestamp()
	t := domain.TaskTemplate{
		ID:                     id,
		Title:                  f.Title,
		Description:            f.Description,
		Category:               f.Category,
		Priority:               f.Priority,
		EstimatedDurationHours: f.EstimatedDurationHours,
		Subtasks:               buildSubtasks(f.Subtasks),
		AssignedWorkers:        f.AssignedWorkers,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetTemplate(ctx, tx, id); err == nil {
		return domain.TaskTemplate{}, &ConflictError{Reason: fmt.Sprintf("template %s already exists", id)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.TaskTemplate{}, err
	}
	if err := e.Repo.InsertTemplate(ctx, tx, t); err != nil {
		return domain.TaskTemplate{}, fmt.Errorf("insert template: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.TemplateCreated, events.EntityTemplate, t.ID, opts.ActorID, events.EventPayload{
		"title":    t.Title,
		"category": t.Category,
		"subtasks": len(t.Subtasks),
	}); err != nil {
		return domain.TaskTemplate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskTemplate{}, err
	}
	e.log().Debug("template created", "template_id", t.ID, "category", t.Category)
	return t, nil
}

func (e Engine) UpdateTemplate(ctx context.Context, opts TemplateUpdateOptions) (domain.TaskTemplate, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTemplate(ctx, tx, opts.ID)
	if err != nil {
		return domain.TaskTemplate{}, notFound(err, "template", opts.ID)
	}
	f := templateFields{
		Title:                  t.Title,
		Description:            t.Description,
		Category:               t.Category,
		Priority:               t.Priority,
		EstimatedDurationHours: t.EstimatedDurationHours,
		Subtasks:               subtaskInputs(t.Subtasks),
		AssignedWorkers:        t.AssignedWorkers,
	}
	var changed []string
	if opts.Title != nil {
		f.Title = *opts.Title
		changed = append(changed, "title")
	}
	if opts.Description != nil {
		f.Description = *opts.Description
		changed = append(changed, "description")
	}
	if opts.Category != nil {
		f.Category = *opts.Category
		changed = append(changed, "category")
	}
	if opts.Priority != nil {
		f.Priority = *opts.Priority
		changed = append(changed, "priority")
	}
	if opts.EstimatedDurationHours != nil {
		f.EstimatedDurationHours = *opts.EstimatedDurationHours
		changed = append(changed, "estimated_duration_hours")
	}
	subtasksChanged := opts.Subtasks != nil
	if subtasksChanged {
		f.Subtasks = *opts.Subtasks
		changed = append(changed, "subtasks")
	}
	if opts.AssignedWorkers != nil {
		f.AssignedWorkers = *opts.AssignedWorkers
		changed = append(changed, "assigned_workers")
	}
	if len(changed) == 0 {
		return t, nil
	}
	normalizeFields(&f)
	if err := checkFields(f); err != nil {
		return domain.TaskTemplate{}, err
	}
	t.Title = f.Title
	t.Description = f.Description
	t.Category = f.Category
	t.Priority = f.Priority
	t.EstimatedDurationHours = f.EstimatedDurationHours
	t.AssignedWorkers = f.AssignedWorkers
	if subtasksChanged {
		t.Subtasks = buildSubtasks(f.Subtasks)
	}
	t.UpdatedAt = e.timestamp()

	if err := e.Repo.UpdateTemplate(ctx, tx, t); err != nil {
		return domain.TaskTemplate{}, notFound(err, "template", t.ID)
	}
	if err := e.appendEvent(ctx, tx, events.TemplateUpdated, events.EntityTemplate, t.ID, opts.ActorID, events.EventPayload{"fields": changed}); err != nil {
		return domain.TaskTemplate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskTemplate{}, err
	}
	if subtasksChanged {
		e.rederiveTemplate(ctx, t.ID, opts.ActorID)
	}
	return t, nil
}

func (e Engine) AddSubtask(ctx context.Context, templateID string, in SubtaskInput, actorID string) (domain.Subtask, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return domain.Subtask{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Subtask{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTemplate(ctx, tx, templateID)
	if err != nil {
		return domain.Subtask{}, notFound(err, "template", templateID)
	}
	if in.ID != "" && t.HasSubtask(in.ID) {
		return domain.Subtask{}, invalid("id", "duplicates existing subtask %s", in.ID)
	}
	st := newSubtask(in)
	t.Subtasks = append(t.Subtasks, st)
	t.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateTemplate(ctx, tx, t); err != nil {
		return domain.Subtask{}, err
	}
	if err := e.appendEvent(ctx, tx, events.SubtaskAdded, events.EntityTemplate, t.ID, actorID, events.EventPayload{
		"subtask_id": st.ID,
		"title":      st.Title,
	}); err != nil {
		return domain.Subtask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Subtask{}, err
	}
	e.rederiveTemplate(ctx, t.ID, actorID)
	return st, nil
}

// RemoveSubtask deletes a subtask from the template. Completions recorded for
// it on existing assignments stop counting immediately.
func (e Engine) RemoveSubtask(ctx context.Context, templateID, subtaskID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTemplate(ctx, tx, templateID)
	if err != nil {
		return notFound(err, "template", templateID)
	}
	if !t.HasSubtask(subtaskID) {
		return &NotFoundError{Kind: "subtask", ID: subtaskID}
	}
	kept := t.Subtasks[:0:0]
	for _, st := range t.Subtasks {
		if st.ID != subtaskID {
			kept = append(kept, st)
		}
	}
	t.Subtasks = kept
	t.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateTemplate(ctx, tx, t); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.SubtaskRemoved, events.EntityTemplate, t.ID, actorID, events.EventPayload{"subtask_id": subtaskID}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.rederiveTemplate(ctx, t.ID, actorID)
	return nil
}

func (e Engine) GetTemplate(ctx context.Context, id string) (domain.TaskTemplate, error) {
	t, err := e.Repo.GetTemplate(ctx, nil, id)
	if err != nil {
		return domain.TaskTemplate{}, notFound(err, "template", id)
	}
	return t, nil
}

// ListTemplates returns templates newest first, optionally for one category.
func (e Engine) ListTemplates(ctx context.Context, category string) ([]domain.TaskTemplate, error) {
	if category != "" {
		if _, err := domain.ParseCategory(category); err != nil {
			return nil, invalid("category", "must be one of: %s", joinCategories())
		}
	}
	return e.Repo.ListTemplates(ctx, nil, repo.TemplateFilters{Category: category})
}

// DeleteTemplate removes an unreferenced template. Templates that any
// assignment was built from are kept for the historical record.
func (e Engine) DeleteTemplate(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTemplate(ctx, tx, id)
	if err != nil {
		return notFound(err, "template", id)
	}
	n, err := e.Repo.CountTemplateAssignments(ctx, tx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return &ConflictError{Reason: fmt.Sprintf("template %s is referenced by %d assignment(s)", id, n)}
	}
	if err := e.Repo.DeleteTemplate(ctx, tx, id); err != nil {
		return notFound(err, "template", id)
	}
	if err := e.appendEvent(ctx, tx, events.TemplateDeleted, events.EntityTemplate, id, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

func joinCategories() string {
	names := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
