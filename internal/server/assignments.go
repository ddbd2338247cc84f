package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/engine"
	"fieldline/internal/engine/auth"
)

type assignmentBody struct {
	Body AssignmentResponse `json:"body"`
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-assignment",
		Method:        http.MethodPost,
		Path:          "/assignments",
		Summary:       "Assign a template to a worker",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateAssignmentRequest `json:"body"`
	}) (*assignmentBody, error) {
		principal, err := requirePermission(ctx, auth.PermAssignmentCreate)
		if err != nil {
			return nil, err
		}
		assigned, err := parseDate("assigned_date", input.Body.AssignedDate)
		if err != nil {
			return nil, handleError(err)
		}
		due, err := parseDate("due_date", input.Body.DueDate)
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.CreateAssignment(ctx, engine.AssignmentCreateOptions{
			ID:           input.Body.ID,
			TemplateID:   input.Body.TemplateID,
			WorkerID:     input.Body.WorkerID,
			AssignedDate: assigned,
			DueDate:      due,
			Notes:        input.Body.Notes,
			ActorID:      principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentBody{Body: assignmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/assignments",
		Summary:     "List assignments",
		Description: "Statuses are derived at read time, so an open assignment past its due date is reported as overdue.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Worker string `query:"worker" doc:"Worker id"`
		Date   string `query:"date" format:"date" doc:"Assigned date"`
		Status string `query:"status" enum:"pending,in-progress,completed,overdue"`
	}) (*struct {
		Body listAssignments `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermAssignmentRead); err != nil {
			return nil, err
		}
		day, err := parseDate("date", input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		list, err := e.ListAssignments(ctx, engine.AssignmentFilters{
			WorkerID: strings.TrimSpace(input.Worker),
			Date:     day,
			Status:   input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]AssignmentResponse, 0, len(list))
		for _, a := range list {
			items = append(items, assignmentResponse(a))
		}
		return &struct {
			Body listAssignments `json:"body"`
		}{Body: listAssignments{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{id}",
		Summary:     "Get an assignment",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*assignmentBody, error) {
		if _, err := requirePermission(ctx, auth.PermAssignmentRead); err != nil {
			return nil, err
		}
		a, err := e.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentBody{Body: assignmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-assignment-subtask",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/subtasks/{subtask_id}/toggle",
		Summary:     "Mark a subtask done, or undo it",
		Description: "Workers may only toggle their own assignments unless they hold assignment.toggle.any.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		SubtaskID string `path:"subtask_id"`
	}) (*assignmentBody, error) {
		principal, err := requirePermission(ctx, auth.PermAssignmentToggle)
		if err != nil {
			return nil, err
		}
		a, err := e.ToggleSubtask(ctx, engine.ToggleOptions{
			AssignmentID: input.ID,
			SubtaskID:    input.SubtaskID,
			ActorID:      principal.ActorID,
			AnyAssignee:  auth.Has(principal.Permissions, auth.PermAssignmentToggleAny),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentBody{Body: assignmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/verify",
		Summary:     "Verify a completed assignment",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body *VerifyRequest `json:"body,omitempty" required:"false"`
	}) (*assignmentBody, error) {
		principal, err := requirePermission(ctx, auth.PermAssignmentVerify)
		if err != nil {
			return nil, err
		}
		verifier := principal.ActorID
		if input.Body != nil && strings.TrimSpace(input.Body.VerifierID) != "" {
			verifier = strings.TrimSpace(input.Body.VerifierID)
		}
		a, err := e.Verify(ctx, input.ID, verifier, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentBody{Body: assignmentResponse(a)}, nil
	})
}
