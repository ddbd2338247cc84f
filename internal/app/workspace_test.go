package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"fieldline/internal/config"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

const rosterYAML = `farm:
  id: north-farm
  timezone: UTC
workers:
  - id: w1
    name: Alice
    role: worker
  - id: sup1
    name: Sam
    role: supervisor
rbac:
  roles:
    supervisor:
      permissions: [template.write]
    worker:
      permissions: [assignment.toggle]
`

func rosterEvents(t *testing.T, ws *Workspace) int {
	t.Helper()
	list, err := ws.Engine.Repo.ListEvents(context.Background(), repo.EventFilters{Type: events.WorkerRosterSynced})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return len(list)
}

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	root := filepath.Join(t.TempDir(), "hill-farm")
	ws, err := Open(context.Background(), root, afero.NewMemMapFs(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if ws.Config.Farm.ID != "hill-farm" {
		t.Fatalf("expected farm id from directory name, got %q", ws.Config.Farm.ID)
	}
	if got := rosterEvents(t, ws); got != 0 {
		t.Fatalf("empty roster should not sync, got %d events", got)
	}
}

func TestOpenSyncsRosterOnce(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, config.Path(root), []byte(rosterYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ws, err := Open(ctx, root, fsys, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w, err := ws.Directory.ResolveWorker(ctx, "sup1")
	if err != nil || w.Role != "supervisor" {
		t.Fatalf("resolve sup1: %+v %v", w, err)
	}
	ws.Close()

	ws, err = Open(ctx, root, fsys, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ws.Close()
	if got := rosterEvents(t, ws); got != 1 {
		t.Fatalf("unchanged roster should not resync, got %d events", got)
	}

	res, synced, err := ws.SyncRoster(ctx, "tester", true)
	if err != nil || !synced || res.Upserted != 2 {
		t.Fatalf("forced sync: %+v %v %v", res, synced, err)
	}
}

func TestReloadRoster(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, config.Path(root), []byte(rosterYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	ws, err := Open(ctx, root, fsys, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()

	updated := `farm:
  id: north-farm
workers:
  - id: w2
    name: Bob
    role: worker
rbac:
  roles:
    worker:
      permissions: [assignment.toggle]
`
	if err := afero.WriteFile(fsys, config.Path(root), []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := ws.ReloadRoster(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	workers, err := ws.Directory.ListWorkers(ctx)
	if err != nil {
		t.Fatalf("list workers: %v", err)
	}
	if len(workers) != 1 || workers[0].ID != "w2" {
		t.Fatalf("unexpected roster after reload: %+v", workers)
	}

	if err := afero.WriteFile(fsys, config.Path(root), []byte("farm: ["), 0o644); err != nil {
		t.Fatalf("corrupt config: %v", err)
	}
	if err := ws.ReloadRoster(ctx); err == nil {
		t.Fatalf("expected reload error for invalid yaml")
	}
	if _, err := ws.Directory.ResolveWorker(ctx, "w2"); err != nil {
		t.Fatalf("roster should survive a bad reload: %v", err)
	}
}
