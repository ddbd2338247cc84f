package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
)

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{
		Use:     "template",
		Aliases: []string{"tpl"},
		Short:   "Manage task templates",
		Long:    "Templates describe recurring work: category, priority, estimated hours and an ordered subtask checklist.",
	}
	tpl.AddCommand(templateCreateCmd())
	tpl.AddCommand(templateListCmd())
	tpl.AddCommand(templateShowCmd())
	tpl.AddCommand(templateUpdateCmd())
	tpl.AddCommand(templateDeleteCmd())
	tpl.AddCommand(templateSubtaskCmd())
	return tpl
}

// parseSubtaskFlags turns "--subtask" values into inputs. A value of the form
// "id=Title" keeps the given id; anything else is a title.
func parseSubtaskFlags(required, optional []string) []engine.SubtaskInput {
	var res []engine.SubtaskInput
	add := func(raw string, req bool) {
		in := engine.SubtaskInput{Title: strings.TrimSpace(raw)}
		if i := strings.Index(raw, "="); i > 0 && !strings.ContainsAny(raw[:i], " \t") {
			in.ID = raw[:i]
			in.Title = strings.TrimSpace(raw[i+1:])
		}
		r := req
		in.Required = &r
		res = append(res, in)
	}
	for _, s := range required {
		add(s, true)
	}
	for _, s := range optional {
		add(s, false)
	}
	return res
}

func templateCreateCmd() *cobra.Command {
	var opts engine.TemplateCreateOptions
	var category, priority string
	var subtasks, optional []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorID()
			opts.Category = domain.Category(category)
			opts.Priority = domain.Priority(priority)
			opts.Subtasks = parseSubtaskFlags(subtasks, optional)
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				t, err := ws.Engine.CreateTemplate(ctx, opts)
				if err != nil {
					return err
				}
				return printTemplate(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "template id (generated if omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "daily|weekly|monthly|seasonal|one-time")
	cmd.Flags().StringVar(&priority, "priority", "medium", "low|medium|high|critical")
	cmd.Flags().Float64Var(&opts.EstimatedDurationHours, "hours", 0, "estimated duration in hours")
	cmd.Flags().StringArrayVar(&subtasks, "subtask", nil, "required subtask, \"Title\" or \"id=Title\" (repeatable)")
	cmd.Flags().StringArrayVar(&optional, "optional-subtask", nil, "optional subtask (repeatable)")
	cmd.Flags().StringArrayVar(&opts.AssignedWorkers, "worker", nil, "default worker id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func templateListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				list, err := ws.Engine.ListTemplates(ctx, category)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Priority", "Hours", "Subtasks"})
				for _, t := range list {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Category, t.Priority, t.EstimatedDurationHours, len(t.Subtasks)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	return cmd
}

func templateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template and its checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				t, err := ws.Engine.GetTemplate(ctx, args[0])
				if err != nil {
					return err
				}
				return printTemplate(t)
			})
		},
	}
	return cmd
}

func templateUpdateCmd() *cobra.Command {
	var title, description, category, priority string
	var hours float64
	var subtasks, optional, workers []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a template",
		Long:  "Only the given flags change. --subtask/--optional-subtask replace the whole checklist; reuse an id (\"id=Title\") to keep completions recorded against it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TemplateUpdateOptions{ID: args[0], ActorID: actorID()}
			flags := cmd.Flags()
			if flags.Changed("title") {
				opts.Title = &title
			}
			if flags.Changed("description") {
				opts.Description = &description
			}
			if flags.Changed("category") {
				c := domain.Category(category)
				opts.Category = &c
			}
			if flags.Changed("priority") {
				p := domain.Priority(priority)
				opts.Priority = &p
			}
			if flags.Changed("hours") {
				opts.EstimatedDurationHours = &hours
			}
			if flags.Changed("subtask") || flags.Changed("optional-subtask") {
				list := parseSubtaskFlags(subtasks, optional)
				opts.Subtasks = &list
			}
			if flags.Changed("worker") {
				opts.AssignedWorkers = &workers
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				t, err := ws.Engine.UpdateTemplate(ctx, opts)
				if err != nil {
					return err
				}
				return printTemplate(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated duration in hours")
	cmd.Flags().StringArrayVar(&subtasks, "subtask", nil, "required subtask (repeatable, replaces checklist)")
	cmd.Flags().StringArrayVar(&optional, "optional-subtask", nil, "optional subtask (repeatable, replaces checklist)")
	cmd.Flags().StringArrayVar(&workers, "worker", nil, "default worker id (repeatable, replaces list)")
	return cmd
}

func templateDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a template that no assignment references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Engine.DeleteTemplate(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("deleted template %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func templateSubtaskCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "subtask",
		Short: "Edit a template checklist",
	}
	st.AddCommand(templateSubtaskAddCmd())
	st.AddCommand(templateSubtaskRemoveCmd())
	return st
}

func templateSubtaskAddCmd() *cobra.Command {
	var in engine.SubtaskInput
	var optional bool
	cmd := &cobra.Command{
		Use:   "add <template-id>",
		Short: "Append a subtask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			required := !optional
			in.Required = &required
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				st, err := ws.Engine.AddSubtask(ctx, args[0], in, actorID())
				if err != nil {
					return err
				}
				return printJSONOrPretty(st)
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "subtask id (generated if omitted)")
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().BoolVar(&optional, "optional", false, "mark the subtask optional")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func templateSubtaskRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <template-id> <subtask-id>",
		Short: "Remove a subtask; existing assignments are re-derived",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Engine.RemoveSubtask(ctx, args[0], args[1], actorID()); err != nil {
					return err
				}
				fmt.Printf("removed subtask %s from %s\n", args[1], args[0])
				return nil
			})
		},
	}
	return cmd
}

func printTemplate(t domain.TaskTemplate) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	fmt.Printf("%s  %s\n", t.ID, t.Title)
	fmt.Printf("%s · %s priority · %.1fh\n", t.Category, t.Priority, t.EstimatedDurationHours)
	if t.Description != "" {
		fmt.Println(mutedStyle.Render(t.Description))
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Subtask ID", "Title", "Required"})
	for i, st := range t.Subtasks {
		tw.AppendRow(table.Row{i + 1, st.ID, st.Title, st.Required})
	}
	tw.Render()
	if len(t.AssignedWorkers) > 0 {
		fmt.Println("workers:", strings.Join(t.AssignedWorkers, ", "))
	}
	return nil
}
