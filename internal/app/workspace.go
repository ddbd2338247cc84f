// Package app opens a fieldline workspace: config, database, worker
// directory and engine, wired together the same way for the CLI and the
// server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/directory"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
)

type Workspace struct {
	Root      string
	Fs        afero.Fs
	Config    *config.Config
	DB        *sql.DB
	Directory directory.Store
	Engine    engine.Engine
	Logger    *slog.Logger
}

// Open loads the workspace config (falling back to defaults when fieldline.yml
// is absent), migrates the database and mirrors the configured roster into the
// worker directory when it differs from what is stored.
func Open(ctx context.Context, root string, fsys afero.Fs, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	cfg, err := ResolveConfig(fsys, root)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(root); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: root})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	dir := directory.NewStore(conn)
	dir.Logger = logger
	e := engine.New(conn, cfg, dir)
	e.Logger = logger
	ws := &Workspace{
		Root:      root,
		Fs:        fsys,
		Config:    cfg,
		DB:        conn,
		Directory: dir,
		Engine:    e,
		Logger:    logger,
	}
	if _, _, err := ws.SyncRoster(ctx, "system", false); err != nil {
		conn.Close()
		return nil, err
	}
	return ws, nil
}

// ResolveConfig returns the workspace config or the defaults named after the
// workspace directory.
func ResolveConfig(fsys afero.Fs, root string) (*config.Config, error) {
	cfg, err := config.LoadOptional(fsys, root)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return config.Default(filepath.Base(abs)), nil
}

// SyncRoster mirrors Config.Workers into the directory. Unless force is set
// nothing is written when the stored roster already matches.
func (w *Workspace) SyncRoster(ctx context.Context, actorID string, force bool) (directory.SyncResult, bool, error) {
	roster := w.Config.Roster()
	if !force {
		current, err := w.Directory.ListWorkers(ctx)
		if err != nil {
			return directory.SyncResult{}, false, err
		}
		if sameRoster(current, roster) {
			return directory.SyncResult{}, false, nil
		}
	}
	res, err := w.Directory.Sync(ctx, roster, actorID)
	if err != nil {
		return directory.SyncResult{}, false, err
	}
	return res, true, nil
}

// ReloadRoster re-reads fieldline.yml and syncs its roster. The previous
// roster stays active when the file is missing or invalid. Role changes
// under rbac take effect on restart.
func (w *Workspace) ReloadRoster(ctx context.Context) error {
	cfg, err := config.Load(w.Fs, w.Root)
	if err != nil {
		return err
	}
	w.Config.Workers = cfg.Workers
	_, _, err = w.SyncRoster(ctx, "system", false)
	return err
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

func sameRoster(current, want []domain.Worker) bool {
	if len(current) != len(want) {
		return false
	}
	byID := make(map[string]domain.Worker, len(current))
	for _, c := range current {
		byID[c.ID] = c
	}
	for _, w := range want {
		if byID[w.ID] != w {
			return false
		}
	}
	return true
}
