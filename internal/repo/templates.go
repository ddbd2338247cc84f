package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fieldline/internal/domain"
)

type TemplateFilters struct {
	Category string
}

const templateColumns = `id,title,description,category,priority,estimated_duration_hours,assigned_workers_json,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (domain.TaskTemplate, error) {
	var t domain.TaskTemplate
	var workers sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &t.Priority, &t.EstimatedDurationHours, &workers, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	t.AssignedWorkers = []string{}
	if workers.Valid && workers.String != "" {
		if err := json.Unmarshal([]byte(workers.String), &t.AssignedWorkers); err != nil {
			return t, fmt.Errorf("decode assigned workers for %s: %w", t.ID, err)
		}
	}
	t.Subtasks = []domain.Subtask{}
	return t, nil
}

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.TaskTemplate) error {
	workers, err := json.Marshal(nonNil(t.AssignedWorkers))
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO templates(`+templateColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, string(t.Category), string(t.Priority), t.EstimatedDurationHours, string(workers), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	return r.replaceSubtasks(ctx, tx, t.ID, t.Subtasks)
}

// UpdateTemplate rewrites every mutable column and replaces the subtask list.
func (r Repo) UpdateTemplate(ctx context.Context, tx *sql.Tx, t domain.TaskTemplate) error {
	workers, err := json.Marshal(nonNil(t.AssignedWorkers))
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE templates SET title=?, description=?, category=?, priority=?, estimated_duration_hours=?, assigned_workers_json=?, updated_at=? WHERE id=?`,
		t.Title, t.Description, string(t.Category), string(t.Priority), t.EstimatedDurationHours, string(workers), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return r.replaceSubtasks(ctx, tx, t.ID, t.Subtasks)
}

func (r Repo) replaceSubtasks(ctx context.Context, tx *sql.Tx, templateID string, subtasks []domain.Subtask) error {
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `DELETE FROM template_subtasks WHERE template_id=?`, templateID); err != nil {
		return err
	}
	for i, st := range subtasks {
		if _, err := q.ExecContext(ctx, `INSERT INTO template_subtasks(template_id,id,position,title,description,required) VALUES (?,?,?,?,?,?)`,
			templateID, st.ID, i, st.Title, nullable(st.Description), boolToInt(st.Required)); err != nil {
			return fmt.Errorf("insert subtask %s: %w", st.ID, err)
		}
	}
	return nil
}

func (r Repo) GetTemplate(ctx context.Context, tx *sql.Tx, id string) (domain.TaskTemplate, error) {
	t, err := scanTemplate(r.q(tx).QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TaskTemplate{}, ErrNotFound
	}
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	subtasks, err := r.subtasksFor(ctx, tx, []string{id})
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	if list, ok := subtasks[id]; ok {
		t.Subtasks = list
	}
	return t, nil
}

func (r Repo) ListTemplates(ctx context.Context, tx *sql.Tx, f TemplateFilters) ([]domain.TaskTemplate, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+templateColumns+` FROM templates `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	var (
		res []domain.TaskTemplate
		ids []string
	)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(ids) == 0 {
		return res, nil
	}
	subtasks, err := r.subtasksFor(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		if list, ok := subtasks[res[i].ID]; ok {
			res[i].Subtasks = list
		}
	}
	return res, nil
}

func (r Repo) subtasksFor(ctx context.Context, tx *sql.Tx, templateIDs []string) (map[string][]domain.Subtask, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT template_id,id,title,COALESCE(description,''),required FROM template_subtasks WHERE template_id IN (`+placeholders(len(templateIDs))+`) ORDER BY template_id, position`,
		stringArgs(templateIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]domain.Subtask{}
	for rows.Next() {
		var (
			templateID string
			st         domain.Subtask
			required   int
		)
		if err := rows.Scan(&templateID, &st.ID, &st.Title, &st.Description, &required); err != nil {
			return nil, err
		}
		st.Required = required != 0
		res[templateID] = append(res[templateID], st)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTemplate(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM templates WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTemplateAssignments returns how many assignments reference the template.
func (r Repo) CountTemplateAssignments(ctx context.Context, tx *sql.Tx, templateID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM assignments WHERE template_id=?`, templateID).Scan(&n)
	return n, err
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
