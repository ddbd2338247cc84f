package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"fieldline/internal/app"
	"fieldline/internal/config"
	"fieldline/internal/directory"
	"fieldline/internal/domain"
	"fieldline/internal/repo"
	"fieldline/internal/server"
)

func statsCmd() *cobra.Command {
	var workerID string
	var all bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Completion statistics",
		Long:  "Without flags prints totals across all assignments; --worker narrows to one worker and --all lists every worker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				var rows []domain.WorkerStats
				switch {
				case workerID != "":
					s, err := ws.Engine.WorkerStats(ctx, workerID)
					if err != nil {
						return err
					}
					rows = append(rows, s)
				case all:
					list, err := ws.Engine.AllWorkerStats(ctx)
					if err != nil {
						return err
					}
					rows = list
				default:
					s, err := ws.Engine.GlobalStats(ctx)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(s)
					}
					s.WorkerName = "(all workers)"
					rows = append(rows, s)
				}
				if viper.GetBool("json") {
					if workerID != "" {
						return printJSON(rows[0])
					}
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Worker", "Total", "Completed", "In progress", "Pending", "Overdue", "Rate"})
				for _, s := range rows {
					name := s.WorkerName
					if s.WorkerID != "" && name != s.WorkerID {
						name = fmt.Sprintf("%s (%s)", name, s.WorkerID)
					}
					tw.AppendRow(table.Row{name, s.Total, s.Completed, s.InProgress, s.Pending, s.Overdue, fmt.Sprintf("%.1f%%", s.CompletionRatePercent)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workerID, "worker", "", "worker id")
	cmd.Flags().BoolVar(&all, "all", false, "one row per worker")
	return cmd
}

func workerCmd() *cobra.Command {
	w := &cobra.Command{
		Use:   "worker",
		Short: "Worker directory",
		Long:  "Workers are declared under workers: in fieldline.yml and mirrored into the workspace on every run.",
	}
	w.AddCommand(workerListCmd())
	w.AddCommand(workerSyncCmd())
	return w
}

func workerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				workers, err := ws.Directory.ListWorkers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(workers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role"})
				for _, w := range workers {
					tw.AppendRow(table.Row{w.ID, w.Name, w.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func workerSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Force a roster sync from fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, _, err := ws.SyncRoster(ctx, actorID(), true)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("synced %d workers, removed %d\n", res.Upserted, res.Removed)
				return nil
			})
		},
	}
	return cmd
}

func actorCmd() *cobra.Command {
	a := &cobra.Command{Use: "actor", Short: "Local actor identity"}
	a.AddCommand(&cobra.Command{
		Use:   "use <id>",
		Short: "Set the default actor for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return fmt.Errorf("actor id is required")
			}
			path := envPath(viper.GetString("workspace"))
			if err := setEnvValue(path, "FIELDLINE_ACTOR_ID", id); err != nil {
				return err
			}
			fmt.Printf("Set FIELDLINE_ACTOR_ID=%s in %s\n", id, path)
			return nil
		},
	})
	return a
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP API",
	}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(apiKeyListCmd())
	k.AddCommand(apiKeyDeleteCmd())
	return k
}

func newAPIKeySecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "fl_" + hex.EncodeToString(buf), nil
}

func apiKeyCreateCmd() *cobra.Command {
	var owner, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				owner = actorID()
			}
			secret, err := newAPIKeySecret()
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   owner,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := ws.Engine.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				out := map[string]string{"id": key.ID, "actor_id": owner, "key": secret}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("api key %s for %s\n%s\n", key.ID, owner, secret)
				fmt.Println(mutedStyle.Render("store it now; it cannot be shown again"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "actor", "", "actor the key authenticates as (default --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "label")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				keys, err := ws.Engine.Repo.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "actor", "", "actor filter")
	return cmd
}

func apiKeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Engine.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("api key %s not found", args[0])
					}
					return err
				}
				fmt.Printf("deleted api key %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every template edit, assignment, toggle, verification and roster sync is recorded.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				list, err := ws.Engine.Repo.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for i := len(list) - 1; i >= 0; i-- {
					e := list[i]
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, mutedStyle.Render(e.Payload)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
		Long:  "fieldline.yml holds the farm (id, timezone used for due dates), the worker roster and the role to permission map.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(afero.NewOsFs(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(afero.NewOsFs(), viper.GetString("workspace"))
			if viper.GetBool("json") {
				res := map[string]any{"ok": err == nil}
				if err != nil {
					res["error"] = err.Error()
				}
				return printJSON(res)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var farmID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if farmID == "" {
				abs, err := filepath.Abs(workspace)
				if err != nil {
					return err
				}
				farmID = filepath.Base(abs)
			}
			path, err := config.WriteDefault(afero.NewOsFs(), workspace, farmID, force)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&farmID, "farm-id", "", "farm id (default workspace directory name)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the API and reloads the worker roster whenever fieldline.yml changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := slog.Default()
			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: viper.GetBool("allow-actor-header"),
				EnableDevLogin:         viper.GetBool("dev-login"),
				Logger:                 logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("FIELDLINE_JWT_SECRET is required for bearer auth")
			}
			return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
				handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg, Logger: logger})
				if err != nil {
					return err
				}
				watcher, err := directory.NewRosterWatcher(config.Path(ws.Root), ws.ReloadRoster, logger)
				if err != nil {
					return err
				}
				go watcher.Run(ctx)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving fieldline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (env FIELDLINE_JWT_SECRET)")
	cmd.Flags().Bool("allow-actor-header", false, "accept unauthenticated X-Actor-Id (env FIELDLINE_ALLOW_ACTOR_HEADER)")
	cmd.Flags().Bool("dev-login", false, "expose POST /auth/dev/login for local testing (env FIELDLINE_DEV_LOGIN)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	_ = viper.BindPFlag("dev-login", cmd.Flags().Lookup("dev-login"))
	_ = viper.BindPFlag("allow-actor-header", cmd.Flags().Lookup("allow-actor-header"))
	return cmd
}
