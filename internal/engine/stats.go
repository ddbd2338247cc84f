package engine

import (
	"context"
	"errors"
	"sort"

	"fieldline/internal/domain"
	"fieldline/internal/repo"
)

// WorkerStats aggregates the live statuses of one worker's assignments. A
// worker that left the directory still has stats while assignments exist.
func (e Engine) WorkerStats(ctx context.Context, workerID string) (domain.WorkerStats, error) {
	stats := domain.WorkerStats{WorkerID: workerID}
	known := false
	if e.Directory != nil {
		w, err := e.Directory.ResolveWorker(ctx, workerID)
		switch {
		case err == nil:
			known = true
			stats.WorkerName = w.Name
		case !errors.Is(err, repo.ErrNotFound):
			return domain.WorkerStats{}, err
		}
	}
	list, err := e.ListAssignments(ctx, AssignmentFilters{WorkerID: workerID})
	if err != nil {
		return domain.WorkerStats{}, err
	}
	if !known && len(list) == 0 {
		return domain.WorkerStats{}, &NotFoundError{Kind: "worker", ID: workerID}
	}
	for _, a := range list {
		if stats.WorkerName == "" {
			stats.WorkerName = a.WorkerName
		}
		stats.Count(a.Status)
	}
	return stats, nil
}

// GlobalStats aggregates every assignment.
func (e Engine) GlobalStats(ctx context.Context) (domain.WorkerStats, error) {
	list, err := e.ListAssignments(ctx, AssignmentFilters{})
	if err != nil {
		return domain.WorkerStats{}, err
	}
	var stats domain.WorkerStats
	for _, a := range list {
		stats.Count(a.Status)
	}
	return stats, nil
}

// AllWorkerStats returns one row per directory worker plus any former worker
// that still has assignments, best completion rate first.
func (e Engine) AllWorkerStats(ctx context.Context) ([]domain.WorkerStats, error) {
	rows := map[string]*domain.WorkerStats{}
	if e.Directory != nil {
		workers, err := e.Directory.ListWorkers(ctx)
		if err != nil {
			return nil, err
		}
		for _, w := range workers {
			rows[w.ID] = &domain.WorkerStats{WorkerID: w.ID, WorkerName: w.Name}
		}
	}
	list, err := e.ListAssignments(ctx, AssignmentFilters{})
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		row, ok := rows[a.WorkerID]
		if !ok {
			row = &domain.WorkerStats{WorkerID: a.WorkerID, WorkerName: a.WorkerName}
			rows[a.WorkerID] = row
		}
		row.Count(a.Status)
	}
	res := make([]domain.WorkerStats, 0, len(rows))
	for _, row := range rows {
		res = append(res, *row)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CompletionRatePercent != res[j].CompletionRatePercent {
			return res[i].CompletionRatePercent > res[j].CompletionRatePercent
		}
		if res[i].Total != res[j].Total {
			return res[i].Total > res[j].Total
		}
		return res[i].WorkerID < res[j].WorkerID
	})
	return res, nil
}
