// Package directory resolves worker identities. Workers are owned outside
// fieldline; the roster in fieldline.yml is mirrored into the database so
// assignments and stats can look workers up.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

// ErrUnknownWorker is returned by ResolveWorker for ids not in the roster.
var ErrUnknownWorker = fmt.Errorf("worker %w", repo.ErrNotFound)

// Directory is the read-only worker lookup used by the engine.
type Directory interface {
	ResolveWorker(ctx context.Context, id string) (domain.Worker, error)
	ListWorkers(ctx context.Context) ([]domain.Worker, error)
}

// Store serves the directory from the workers table.
type Store struct {
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
	Logger *slog.Logger
}

func NewStore(db *sql.DB) Store {
	return Store{Repo: repo.Repo{DB: db}, Now: time.Now}
}

func (s Store) ResolveWorker(ctx context.Context, id string) (domain.Worker, error) {
	w, err := s.Repo.GetWorker(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Worker{}, ErrUnknownWorker
	}
	return w, err
}

func (s Store) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	return s.Repo.ListWorkers(ctx, nil)
}

// SyncResult summarises a roster sync.
type SyncResult struct {
	Upserted int `json:"upserted"`
	Removed  int `json:"removed"`
}

// Sync replaces the stored roster with roster in one transaction.
func (s Store) Sync(ctx context.Context, roster []domain.Worker, actorID string) (SyncResult, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return SyncResult{}, err
	}
	defer tx.Rollback()
	ts := now().UTC().Format(time.RFC3339)
	upserted, removed, err := s.Repo.ReplaceWorkers(ctx, tx, roster, ts)
	if err != nil {
		return SyncResult{}, fmt.Errorf("sync workers: %w", err)
	}
	if err := s.Events.Append(ctx, tx, events.WorkerRosterSynced, events.EntityWorker, "", actorID, events.EventPayload{
		"upserted": upserted,
		"removed":  removed,
	}); err != nil {
		return SyncResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SyncResult{}, err
	}
	if s.Logger != nil {
		s.Logger.Info("worker roster synced", "upserted", upserted, "removed", removed)
	}
	return SyncResult{Upserted: upserted, Removed: removed}, nil
}

// Static is an in-memory directory.
type Static map[string]domain.Worker

func NewStatic(workers ...domain.Worker) Static {
	s := Static{}
	for _, w := range workers {
		s[w.ID] = w
	}
	return s
}

func (s Static) ResolveWorker(_ context.Context, id string) (domain.Worker, error) {
	w, ok := s[id]
	if !ok {
		return domain.Worker{}, ErrUnknownWorker
	}
	return w, nil
}

func (s Static) ListWorkers(context.Context) ([]domain.Worker, error) {
	res := make([]domain.Worker, 0, len(s))
	for _, w := range s {
		res = append(res, w)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
