package directory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"fieldline/internal/db"
	"fieldline/internal/directory"
	"fieldline/internal/domain"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

func newStore(t *testing.T) directory.Store {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return directory.NewStore(conn)
}

func TestStoreSyncReplacesRoster(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	res, err := store.Sync(ctx, []domain.Worker{
		{ID: "w1", Name: "Alice", Role: "worker"},
		{ID: "w2", Name: "Bob", Role: "worker"},
	}, "admin")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Upserted != 2 || res.Removed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = store.Sync(ctx, []domain.Worker{{ID: "w1", Name: "Alice B.", Role: "supervisor"}}, "admin")
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if res.Removed != 1 {
		t.Fatalf("expected bob removed, got %+v", res)
	}
	w, err := store.ResolveWorker(ctx, "w1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if w.Name != "Alice B." || w.Role != "supervisor" {
		t.Fatalf("worker not updated: %+v", w)
	}
	if _, err := store.ResolveWorker(ctx, "w2"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for removed worker, got %v", err)
	}
	evts, err := store.Repo.ListEvents(ctx, repo.EventFilters{Type: "worker.roster_synced"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected 2 sync events, got %d", len(evts))
	}
}

func TestStatic(t *testing.T) {
	dir := directory.NewStatic(domain.Worker{ID: "b", Name: "B"}, domain.Worker{ID: "a", Name: "A"})
	list, _ := dir.ListWorkers(context.Background())
	if len(list) != 2 || list[0].ID != "a" {
		t.Fatalf("unexpected list %+v", list)
	}
	if _, err := dir.ResolveWorker(context.Background(), "zz"); !errors.Is(err, directory.ErrUnknownWorker) {
		t.Fatalf("expected unknown worker, got %v", err)
	}
}

func TestRosterWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldline.yml")
	if err := os.WriteFile(path, []byte("farm: {id: f}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	w, err := directory.NewRosterWatcher(path, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("farm: {id: f}\nworkers: [{id: w1}]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatalf("reload was not called")
	}
}
