package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/engine"
	"fieldline/internal/engine/auth"
)

type statsBody struct {
	Body StatsResponse `json:"body"`
}

func registerWorkers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workers",
		Method:      http.MethodGet,
		Path:        "/workers",
		Summary:     "List workers known to the directory",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body listWorkers `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermWorkerRead); err != nil {
			return nil, err
		}
		items := []WorkerResponse{}
		if e.Directory != nil {
			workers, err := e.Directory.ListWorkers(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			for _, w := range workers {
				items = append(items, WorkerResponse(w))
			}
		}
		return &struct {
			Body listWorkers `json:"body"`
		}{Body: listWorkers{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "worker-stats",
		Method:      http.MethodGet,
		Path:        "/workers/{id}/stats",
		Summary:     "Assignment counts for one worker",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*statsBody, error) {
		if _, err := requirePermission(ctx, auth.PermStatsRead); err != nil {
			return nil, err
		}
		stats, err := e.WorkerStats(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &statsBody{Body: statsResponse(stats)}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "global-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Assignment counts across all workers",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*statsBody, error) {
		if _, err := requirePermission(ctx, auth.PermStatsRead); err != nil {
			return nil, err
		}
		stats, err := e.GlobalStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &statsBody{Body: statsResponse(stats)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "all-worker-stats",
		Method:      http.MethodGet,
		Path:        "/stats/workers",
		Summary:     "Per-worker assignment counts, best completion rate first",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body listStats `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermStatsRead); err != nil {
			return nil, err
		}
		rows, err := e.AllWorkerStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]StatsResponse, 0, len(rows))
		for _, r := range rows {
			items = append(items, statsResponse(r))
		}
		return &struct {
			Body listStats `json:"body"`
		}{Body: listStats{Items: items}}, nil
	})
}
