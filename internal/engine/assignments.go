package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fieldline/internal/date"
	"fieldline/internal/domain"
	"fieldline/internal/engine/auth"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

// AssignmentCreateOptions are parameters for assigning a template. A zero
// AssignedDate means today; a zero DueDate means the assigned date.
type AssignmentCreateOptions struct {
	ID           string
	TemplateID   string
	WorkerID     string
	AssignedDate date.Date
	DueDate      date.Date
	Notes        string
	ActorID      string
}

type AssignmentFilters struct {
	WorkerID string
	Date     date.Date
	Status   string
}

// ToggleOptions identifies the subtask to flip. Unless AnyAssignee is set the
// actor must be the assigned worker.
type ToggleOptions struct {
	AssignmentID string
	SubtaskID    string
	ActorID      string
	AnyAssignee  bool
}

func (e Engine) CreateAssignment(ctx context.Context, opts AssignmentCreateOptions) (domain.Assignment, error) {
	opts.TemplateID = strings.TrimSpace(opts.TemplateID)
	opts.WorkerID = strings.TrimSpace(opts.WorkerID)
	if opts.TemplateID == "" {
		return domain.Assignment{}, invalid("template_id", "is required")
	}
	if opts.WorkerID == "" {
		return domain.Assignment{}, invalid("worker_id", "is required")
	}
	today := e.Today()
	if opts.AssignedDate.IsZero() {
		opts.AssignedDate = today
	}
	if opts.DueDate.IsZero() {
		opts.DueDate = opts.AssignedDate
	}
	if opts.DueDate.Before(opts.AssignedDate) {
		return domain.Assignment{}, invalid("due_date", "must not be before assigned_date %s", opts.AssignedDate)
	}

	// The directory may share the single database connection, so it is
	// consulted before the transaction. The template is read inside it so a
	// concurrent delete cannot slip between the read and the insert.
	if e.Directory == nil {
		return domain.Assignment{}, errors.New("worker directory not configured")
	}
	worker, err := e.Directory.ResolveWorker(ctx, opts.WorkerID)
	if err != nil {
		return domain.Assignment{}, notFound(err, "worker", opts.WorkerID)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	tpl, err := e.Repo.GetTemplate(ctx, tx, opts.TemplateID)
	if err != nil {
		return domain.Assignment{}, notFound(err, "template", opts.TemplateID)
	}

	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.New().String()
	}
	now := e.timestamp()
	a := domain.Assignment{
		ID:                  id,
		TemplateID:          tpl.ID,
		TemplateTitle:       tpl.Title,
		TemplateCategory:    tpl.Category,
		WorkerID:            worker.ID,
		WorkerName:          worker.Name,
		AssignedDate:        opts.AssignedDate,
		DueDate:             opts.DueDate,
		CompletedSubtaskIDs: []string{},
		Notes:               strings.TrimSpace(opts.Notes),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	a, _ = domain.DeriveStatus(a, tpl, today).Apply(a, today)

	if _, err := e.Repo.GetAssignment(ctx, tx, id); err == nil {
		return domain.Assignment{}, &ConflictError{Reason: fmt.Sprintf("assignment %s already exists", id)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Assignment{}, err
	}
	if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.AssignmentCreated, events.EntityAssignment, a.ID, opts.ActorID, events.EventPayload{
		"template_id":   a.TemplateID,
		"worker_id":     a.WorkerID,
		"assigned_date": a.AssignedDate.String(),
		"due_date":      a.DueDate.String(),
		"status":        a.Status,
	}); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	e.log().Debug("assignment created", "assignment_id", a.ID, "worker_id", a.WorkerID, "status", a.Status)
	return a, nil
}

// GetAssignment returns the assignment as of today: completion is recomputed
// against the live template and the overdue overlay is applied.
func (e Engine) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, nil, id)
	if err != nil {
		return domain.Assignment{}, notFound(err, "assignment", id)
	}
	tpl, err := e.Repo.GetTemplate(ctx, nil, a.TemplateID)
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("template for assignment %s: %w", id, err)
	}
	return e.live(a, tpl), nil
}

func (e Engine) ListAssignments(ctx context.Context, f AssignmentFilters) ([]domain.Assignment, error) {
	var status domain.Status
	if f.Status != "" {
		st, err := domain.ParseStatus(f.Status)
		if err != nil {
			return nil, invalid("status", "must be one of: pending, in-progress, completed, overdue")
		}
		status = st
	}
	list, err := e.Repo.ListAssignments(ctx, nil, repo.AssignmentFilters{WorkerID: f.WorkerID, AssignedDate: f.Date})
	if err != nil {
		return nil, err
	}
	live, err := e.liveAll(ctx, list)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return live, nil
	}
	res := live[:0]
	for _, a := range live {
		if a.Status == status {
			res = append(res, a)
		}
	}
	return res, nil
}

// ToggleSubtask flips one subtask of an assignment and re-derives its status.
// Calls for the same assignment are serialised.
func (e Engine) ToggleSubtask(ctx context.Context, opts ToggleOptions) (domain.Assignment, error) {
	unlock := e.lock(opts.AssignmentID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	a, tpl, err := e.loadForUpdate(ctx, tx, opts.AssignmentID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if !opts.AnyAssignee && opts.ActorID != a.WorkerID {
		return domain.Assignment{}, auth.ForbiddenError{Permission: auth.PermAssignmentToggleAny}
	}
	if !tpl.HasSubtask(opts.SubtaskID) {
		return domain.Assignment{}, &NotFoundError{Kind: "subtask", ID: opts.SubtaskID}
	}
	today := e.Today()
	before := domain.DeriveStatus(a, tpl, today)
	a.CompletedSubtaskIDs = domain.ToggleID(before.CompletedSubtaskIDs, opts.SubtaskID)
	after := domain.DeriveStatus(a, tpl, today)
	a, _ = after.Apply(a, today)
	a.UpdatedAt = e.timestamp()
	done := len(after.CompletedSubtaskIDs) > len(before.CompletedSubtaskIDs)

	if err := e.Repo.SetCompletions(ctx, tx, a.ID, a.CompletedSubtaskIDs, opts.ActorID, a.UpdatedAt); err != nil {
		return domain.Assignment{}, err
	}
	if err := e.Repo.UpdateAssignmentState(ctx, tx, a); err != nil {
		return domain.Assignment{}, err
	}
	if err := e.appendEvent(ctx, tx, events.AssignmentToggled, events.EntityAssignment, a.ID, opts.ActorID, events.EventPayload{
		"subtask_id":            opts.SubtaskID,
		"done":                  done,
		"completion_percentage": a.CompletionPercentage,
	}); err != nil {
		return domain.Assignment{}, err
	}
	if before.Status != after.Status {
		if err := e.appendEvent(ctx, tx, events.AssignmentStatus, events.EntityAssignment, a.ID, opts.ActorID, events.EventPayload{
			"from": before.Status,
			"to":   after.Status,
		}); err != nil {
			return domain.Assignment{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	e.log().Debug("subtask toggled", "assignment_id", a.ID, "subtask_id", opts.SubtaskID, "done", done,
		"percent", a.CompletionPercentage, "status", a.Status)
	return a, nil
}

// Verify records verifierID as having confirmed a completed assignment.
// Verifying again overwrites the previous verifier. actorID is the caller
// recorded on the event; it defaults to the verifier.
func (e Engine) Verify(ctx context.Context, assignmentID, verifierID, actorID string) (domain.Assignment, error) {
	verifierID = strings.TrimSpace(verifierID)
	if verifierID == "" {
		return domain.Assignment{}, invalid("verifier_id", "is required")
	}
	if actorID = strings.TrimSpace(actorID); actorID == "" {
		actorID = verifierID
	}
	unlock := e.lock(assignmentID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	a, tpl, err := e.loadForUpdate(ctx, tx, assignmentID)
	if err != nil {
		return domain.Assignment{}, err
	}
	today := e.Today()
	d := domain.DeriveStatus(a, tpl, today)
	if d.Status != domain.StatusCompleted {
		return domain.Assignment{}, &ConflictError{Reason: fmt.Sprintf("assignment %s is %s; only completed assignments can be verified", a.ID, d.Status)}
	}
	a, _ = d.Apply(a, today)
	previous := a.VerifiedBy
	a.VerifiedBy = verifierID
	a.VerifiedAt = e.timestamp()
	a.UpdatedAt = a.VerifiedAt
	if err := e.Repo.UpdateAssignmentState(ctx, tx, a); err != nil {
		return domain.Assignment{}, err
	}
	payload := events.EventPayload{"verified_by": verifierID}
	if previous != "" {
		payload["previous_verifier"] = previous
	}
	if err := e.appendEvent(ctx, tx, events.AssignmentVerified, events.EntityAssignment, a.ID, actorID, payload); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

func (e Engine) loadForUpdate(ctx context.Context, tx *sql.Tx, assignmentID string) (domain.Assignment, domain.TaskTemplate, error) {
	a, err := e.Repo.GetAssignment(ctx, tx, assignmentID)
	if err != nil {
		return domain.Assignment{}, domain.TaskTemplate{}, notFound(err, "assignment", assignmentID)
	}
	tpl, err := e.Repo.GetTemplate(ctx, tx, a.TemplateID)
	if err != nil {
		return domain.Assignment{}, domain.TaskTemplate{}, fmt.Errorf("template for assignment %s: %w", assignmentID, err)
	}
	return a, tpl, nil
}

func (e Engine) live(a domain.Assignment, tpl domain.TaskTemplate) domain.Assignment {
	today := e.Today()
	a, _ = domain.DeriveStatus(a, tpl, today).Apply(a, today)
	return a
}

func (e Engine) liveAll(ctx context.Context, list []domain.Assignment) ([]domain.Assignment, error) {
	templates := map[string]domain.TaskTemplate{}
	res := make([]domain.Assignment, 0, len(list))
	for _, a := range list {
		tpl, ok := templates[a.TemplateID]
		if !ok {
			var err error
			tpl, err = e.Repo.GetTemplate(ctx, nil, a.TemplateID)
			if err != nil {
				return nil, fmt.Errorf("template for assignment %s: %w", a.ID, err)
			}
			templates[a.TemplateID] = tpl
		}
		res = append(res, e.live(a, tpl))
	}
	return res, nil
}

// rederiveTemplate brings stored state of every assignment built from
// templateID in line with the template's current subtasks. Failures are
// logged; reads always derive from the live template anyway.
func (e Engine) rederiveTemplate(ctx context.Context, templateID, actorID string) {
	ids, err := e.Repo.ListAssignmentIDsForTemplate(ctx, nil, templateID)
	if err != nil {
		e.log().Warn("list assignments for rederive", "template_id", templateID, "err", err)
		return
	}
	for _, id := range ids {
		if err := e.rederive(ctx, id, actorID); err != nil {
			e.log().Warn("rederive assignment", "assignment_id", id, "err", err)
		}
	}
}

func (e Engine) rederive(ctx context.Context, assignmentID, actorID string) error {
	unlock := e.lock(assignmentID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, tpl, err := e.loadForUpdate(ctx, tx, assignmentID)
	if err != nil {
		return err
	}
	today := e.Today()
	from := a.Status
	a, changed := domain.DeriveStatus(a, tpl, today).Apply(a, today)
	if !changed {
		return nil
	}
	a.UpdatedAt = e.timestamp()
	if err := e.Repo.SetCompletions(ctx, tx, a.ID, a.CompletedSubtaskIDs, actorID, a.UpdatedAt); err != nil {
		return err
	}
	if err := e.Repo.UpdateAssignmentState(ctx, tx, a); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.AssignmentRederived, events.EntityAssignment, a.ID, actorID, events.EventPayload{
		"from":                  from,
		"to":                    a.Status,
		"completion_percentage": a.CompletionPercentage,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
