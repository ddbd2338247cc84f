package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/engine/auth"
)

type templateBody struct {
	Body TemplateResponse `json:"body"`
}

func registerTemplates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Create a task template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateTemplateRequest `json:"body"`
	}) (*templateBody, error) {
		principal, err := requirePermission(ctx, auth.PermTemplateWrite)
		if err != nil {
			return nil, err
		}
		tpl, err := e.CreateTemplate(ctx, engine.TemplateCreateOptions{
			ID:                     input.Body.ID,
			Title:                  input.Body.Title,
			Description:            input.Body.Description,
			Category:               domain.Category(input.Body.Category),
			Priority:               domain.Priority(input.Body.Priority),
			EstimatedDurationHours: input.Body.EstimatedDurationHours,
			Subtasks:               subtaskInputs(input.Body.Subtasks),
			AssignedWorkers:        input.Body.AssignedWorkers,
			ActorID:                principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &templateBody{Body: templateResponse(tpl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List task templates",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Category string `query:"category" enum:"daily,weekly,monthly,seasonal,one-time"`
	}) (*struct {
		Body listTemplates `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermTemplateRead); err != nil {
			return nil, err
		}
		list, err := e.ListTemplates(ctx, input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]TemplateResponse, 0, len(list))
		for _, t := range list {
			items = append(items, templateResponse(t))
		}
		return &struct {
			Body listTemplates `json:"body"`
		}{Body: listTemplates{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Get a task template",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*templateBody, error) {
		if _, err := requirePermission(ctx, auth.PermTemplateRead); err != nil {
			return nil, err
		}
		tpl, err := e.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateBody{Body: templateResponse(tpl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-template",
		Method:      http.MethodPatch,
		Path:        "/templates/{id}",
		Summary:     "Update a task template",
		Description: "Replacing subtasks re-derives every assignment of the template.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateTemplateRequest `json:"body"`
	}) (*templateBody, error) {
		principal, err := requirePermission(ctx, auth.PermTemplateWrite)
		if err != nil {
			return nil, err
		}
		opts := engine.TemplateUpdateOptions{
			ID:                     input.ID,
			Title:                  input.Body.Title,
			Description:            input.Body.Description,
			EstimatedDurationHours: input.Body.EstimatedDurationHours,
			AssignedWorkers:        input.Body.AssignedWorkers,
			ActorID:                principal.ActorID,
		}
		if input.Body.Category != nil {
			c := domain.Category(*input.Body.Category)
			opts.Category = &c
		}
		if input.Body.Priority != nil {
			p := domain.Priority(*input.Body.Priority)
			opts.Priority = &p
		}
		if input.Body.Subtasks != nil {
			subtasks := subtaskInputs(*input.Body.Subtasks)
			opts.Subtasks = &subtasks
		}
		tpl, err := e.UpdateTemplate(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateBody{Body: templateResponse(tpl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-template",
		Method:        http.MethodDelete,
		Path:          "/templates/{id}",
		Summary:       "Delete a task template",
		Description:   "Rejected with 409 while any assignment references the template.",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		principal, err := requirePermission(ctx, auth.PermTemplateWrite)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteTemplate(ctx, input.ID, principal.ActorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-template-subtask",
		Method:        http.MethodPost,
		Path:          "/templates/{id}/subtasks",
		Summary:       "Append a subtask to a template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body SubtaskRequest `json:"body"`
	}) (*struct {
		Body SubtaskResponse `json:"body"`
	}, error) {
		principal, err := requirePermission(ctx, auth.PermTemplateWrite)
		if err != nil {
			return nil, err
		}
		st, err := e.AddSubtask(ctx, input.ID, engine.SubtaskInput{
			ID:          input.Body.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Required:    input.Body.Required,
		}, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubtaskResponse `json:"body"`
		}{Body: SubtaskResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-template-subtask",
		Method:        http.MethodDelete,
		Path:          "/templates/{id}/subtasks/{subtask_id}",
		Summary:       "Remove a subtask from a template",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		SubtaskID string `path:"subtask_id"`
	}) (*struct{}, error) {
		principal, err := requirePermission(ctx, auth.PermTemplateWrite)
		if err != nil {
			return nil, err
		}
		if err := e.RemoveSubtask(ctx, input.ID, input.SubtaskID, principal.ActorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}
