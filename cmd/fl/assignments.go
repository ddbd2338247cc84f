package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/date"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
)

func assignmentCmd() *cobra.Command {
	a := &cobra.Command{
		Use:     "assignment",
		Aliases: []string{"asg"},
		Short:   "Assign templates and track progress",
	}
	a.AddCommand(assignmentCreateCmd())
	a.AddCommand(assignmentListCmd())
	a.AddCommand(assignmentShowCmd())
	a.AddCommand(assignmentToggleCmd())
	a.AddCommand(assignmentVerifyCmd())
	return a
}

func parseDateFlag(name, value string) (date.Date, error) {
	if value == "" {
		return date.Date{}, nil
	}
	d, err := date.Parse(value)
	if err != nil {
		return date.Date{}, &engine.ValidationError{Field: name, Reason: "must be a YYYY-MM-DD date"}
	}
	return d, nil
}

func assignmentCreateCmd() *cobra.Command {
	var opts engine.AssignmentCreateOptions
	var assigned, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Assign a template to a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.AssignedDate, err = parseDateFlag("assigned", assigned); err != nil {
				return err
			}
			if opts.DueDate, err = parseDateFlag("due", due); err != nil {
				return err
			}
			opts.ActorID = actorID()
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.CreateAssignment(ctx, opts)
				if err != nil {
					return err
				}
				return printAssignment(ctx, ws, a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "assignment id (generated if omitted)")
	cmd.Flags().StringVar(&opts.TemplateID, "template", "", "template id")
	cmd.Flags().StringVar(&opts.WorkerID, "worker", "", "worker id")
	cmd.Flags().StringVar(&assigned, "assigned", "", "assigned date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD (default assigned date)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func assignmentListCmd() *cobra.Command {
	var f engine.AssignmentFilters
	var day string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if f.Date, err = parseDateFlag("date", day); err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				list, err := ws.Engine.ListAssignments(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Template", "Worker", "Assigned", "Due", "Progress", "Status", "Verified by"})
				for _, a := range list {
					tw.AppendRow(table.Row{
						a.ID, a.TemplateTitle, a.WorkerName, a.AssignedDate, a.DueDate,
						progressBar(a.CompletionPercentage), statusBadge(a.Status), a.VerifiedBy,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.WorkerID, "worker", "", "worker id filter")
	cmd.Flags().StringVar(&day, "date", "", "assigned date filter YYYY-MM-DD")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (pending|in-progress|completed|overdue)")
	return cmd
}

func assignmentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an assignment with its checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.GetAssignment(ctx, args[0])
				if err != nil {
					return err
				}
				return printAssignment(ctx, ws, a)
			})
		},
	}
	return cmd
}

// The CLI acts as the workspace owner, so it may tick subtasks on any
// worker's assignment. The HTTP API restricts this to assignment.toggle.any.
func assignmentToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <assignment-id> <subtask-id>",
		Short: "Mark a subtask done, or undo it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.ToggleSubtask(ctx, engine.ToggleOptions{
					AssignmentID: args[0],
					SubtaskID:    args[1],
					ActorID:      actorID(),
					AnyAssignee:  true,
				})
				if err != nil {
					return err
				}
				return printAssignment(ctx, ws, a)
			})
		},
	}
	return cmd
}

func assignmentVerifyCmd() *cobra.Command {
	var verifier string
	cmd := &cobra.Command{
		Use:   "verify <assignment-id>",
		Short: "Verify a completed assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verifier == "" {
				verifier = actorID()
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.Verify(ctx, args[0], verifier, actorID())
				if err != nil {
					return err
				}
				return printAssignment(ctx, ws, a)
			})
		},
	}
	cmd.Flags().StringVar(&verifier, "verifier", "", "verifier id (default --actor-id)")
	return cmd
}

func printAssignment(ctx context.Context, ws *app.Workspace, a domain.Assignment) error {
	if viper.GetBool("json") {
		return printJSON(a)
	}
	fmt.Printf("%s  %s → %s  %s\n", a.ID, a.TemplateTitle, a.WorkerName, statusBadge(a.Status))
	fmt.Printf("assigned %s · due %s · %s\n", a.AssignedDate, a.DueDate, progressBar(a.CompletionPercentage))
	if a.VerifiedBy != "" {
		fmt.Printf("verified by %s at %s\n", a.VerifiedBy, a.VerifiedAt)
	}
	if a.Notes != "" {
		fmt.Println(mutedStyle.Render(a.Notes))
	}
	tpl, err := ws.Engine.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return err
	}
	done := map[string]bool{}
	for _, id := range a.CompletedSubtaskIDs {
		done[id] = true
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"", "Subtask ID", "Title"})
	for _, st := range tpl.Subtasks {
		mark := "[ ]"
		if done[st.ID] {
			mark = "[x]"
		}
		tw.AppendRow(table.Row{mark, st.ID, st.Title})
	}
	tw.Render()
	return nil
}
