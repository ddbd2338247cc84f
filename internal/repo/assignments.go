package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fieldline/internal/date"
	"fieldline/internal/domain"
)

type AssignmentFilters struct {
	WorkerID     string
	TemplateID   string
	AssignedDate date.Date
}

const assignmentColumns = `id,template_id,template_title,template_category,worker_id,worker_name,assigned_date,due_date,started_date,completed_date,completion_percentage,status,notes,verified_by,verified_at,created_at,updated_at`

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var (
		a                      domain.Assignment
		started, completed     date.Date
		notes, verifiedBy, vAt sql.NullString
	)
	err := row.Scan(&a.ID, &a.TemplateID, &a.TemplateTitle, &a.TemplateCategory, &a.WorkerID, &a.WorkerName,
		&a.AssignedDate, &a.DueDate, &started, &completed, &a.CompletionPercentage, &a.Status,
		&notes, &verifiedBy, &vAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.StartedDate = started.Ptr()
	a.CompletedDate = completed.Ptr()
	if notes.Valid {
		a.Notes = notes.String
	}
	if verifiedBy.Valid {
		a.VerifiedBy = verifiedBy.String
	}
	if vAt.Valid {
		a.VerifiedAt = vAt.String
	}
	a.CompletedSubtaskIDs = []string{}
	return a, nil
}

func dateArg(d *date.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO assignments(`+assignmentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.TemplateID, a.TemplateTitle, string(a.TemplateCategory), a.WorkerID, a.WorkerName,
		a.AssignedDate.String(), a.DueDate.String(), dateArg(a.StartedDate), dateArg(a.CompletedDate),
		a.CompletionPercentage, string(a.Status), nullable(a.Notes), nullable(a.VerifiedBy), nullable(a.VerifiedAt),
		a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateAssignmentState persists the derived and annotation fields of a.
// Snapshot columns are never rewritten.
func (r Repo) UpdateAssignmentState(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE assignments SET started_date=?, completed_date=?, completion_percentage=?, status=?, verified_by=?, verified_at=?, updated_at=? WHERE id=?`,
		dateArg(a.StartedDate), dateArg(a.CompletedDate), a.CompletionPercentage, string(a.Status),
		nullable(a.VerifiedBy), nullable(a.VerifiedAt), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCompletions makes the stored completion set equal to ids. Rows for ids
// already present keep their original completed_at.
func (r Repo) SetCompletions(ctx context.Context, tx *sql.Tx, assignmentID string, ids []string, actorID, ts string) error {
	q := r.q(tx)
	if len(ids) == 0 {
		_, err := q.ExecContext(ctx, `DELETE FROM assignment_completions WHERE assignment_id=?`, assignmentID)
		return err
	}
	args := append([]any{assignmentID}, stringArgs(ids)...)
	if _, err := q.ExecContext(ctx, `DELETE FROM assignment_completions WHERE assignment_id=? AND subtask_id NOT IN (`+placeholders(len(ids))+`)`, args...); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO assignment_completions(assignment_id,subtask_id,completed_by,completed_at) VALUES (?,?,?,?)`,
			assignmentID, id, nullable(actorID), ts); err != nil {
			return fmt.Errorf("record completion %s: %w", id, err)
		}
	}
	return nil
}

func (r Repo) GetAssignment(ctx context.Context, tx *sql.Tx, id string) (domain.Assignment, error) {
	a, err := scanAssignment(r.q(tx).QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Assignment{}, ErrNotFound
	}
	if err != nil {
		return domain.Assignment{}, err
	}
	completions, err := r.completionsFor(ctx, tx, []string{id})
	if err != nil {
		return domain.Assignment{}, err
	}
	if ids, ok := completions[id]; ok {
		a.CompletedSubtaskIDs = ids
	}
	return a, nil
}

func (r Repo) ListAssignments(ctx context.Context, tx *sql.Tx, f AssignmentFilters) ([]domain.Assignment, error) {
	var (
		clauses []string
		args    []any
	)
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if f.TemplateID != "" {
		clauses = append(clauses, "template_id=?")
		args = append(args, f.TemplateID)
	}
	if !f.AssignedDate.IsZero() {
		clauses = append(clauses, "assigned_date=?")
		args = append(args, f.AssignedDate.String())
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments `+where+` ORDER BY assigned_date DESC, created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	var (
		res []domain.Assignment
		ids []string
	)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(ids) == 0 {
		return res, nil
	}
	completions, err := r.completionsFor(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		if list, ok := completions[res[i].ID]; ok {
			res[i].CompletedSubtaskIDs = list
		}
	}
	return res, nil
}

// ListAssignmentIDsForTemplate returns the ids of assignments built from templateID.
func (r Repo) ListAssignmentIDsForTemplate(ctx context.Context, tx *sql.Tx, templateID string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id FROM assignments WHERE template_id=? ORDER BY id`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) completionsFor(ctx context.Context, tx *sql.Tx, assignmentIDs []string) (map[string][]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT assignment_id, subtask_id FROM assignment_completions WHERE assignment_id IN (`+placeholders(len(assignmentIDs))+`) ORDER BY assignment_id, completed_at, subtask_id`,
		stringArgs(assignmentIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]string{}
	for rows.Next() {
		var assignmentID, subtaskID string
		if err := rows.Scan(&assignmentID, &subtaskID); err != nil {
			return nil, err
		}
		res[assignmentID] = append(res[assignmentID], subtaskID)
	}
	return res, rows.Err()
}
