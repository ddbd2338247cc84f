package repo

import (
	"context"
	"database/sql"
	"errors"

	"fieldline/internal/domain"
)

func (r Repo) GetWorker(ctx context.Context, tx *sql.Tx, id string) (domain.Worker, error) {
	var (
		w    domain.Worker
		role sql.NullString
	)
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,role FROM workers WHERE id=?`, id).Scan(&w.ID, &w.Name, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Worker{}, ErrNotFound
	}
	if err != nil {
		return domain.Worker{}, err
	}
	w.Role = role.String
	return w, nil
}

func (r Repo) ListWorkers(ctx context.Context, tx *sql.Tx) ([]domain.Worker, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,name,role FROM workers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Worker
	for rows.Next() {
		var (
			w    domain.Worker
			role sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.Name, &role); err != nil {
			return nil, err
		}
		w.Role = role.String
		res = append(res, w)
	}
	return res, rows.Err()
}

// ReplaceWorkers makes the workers table mirror roster and reports how many
// rows were upserted and removed.
func (r Repo) ReplaceWorkers(ctx context.Context, tx *sql.Tx, roster []domain.Worker, ts string) (upserted, removed int, err error) {
	q := r.q(tx)
	keep := make([]string, 0, len(roster))
	for _, w := range roster {
		if _, err := q.ExecContext(ctx, `INSERT INTO workers(id,name,role,synced_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, role=excluded.role, synced_at=excluded.synced_at`,
			w.ID, w.Name, nullable(w.Role), ts); err != nil {
			return 0, 0, err
		}
		keep = append(keep, w.ID)
	}
	var res sql.Result
	if len(keep) == 0 {
		res, err = q.ExecContext(ctx, `DELETE FROM workers`)
	} else {
		res, err = q.ExecContext(ctx, `DELETE FROM workers WHERE id NOT IN (`+placeholders(len(keep))+`)`, stringArgs(keep)...)
	}
	if err != nil {
		return 0, 0, err
	}
	n, _ := res.RowsAffected()
	return len(roster), int(n), nil
}
