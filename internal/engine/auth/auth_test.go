package auth

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"fieldline/internal/config"
	"fieldline/internal/directory"
	"fieldline/internal/domain"
)

func testService() Service {
	return Service{
		Config: config.Default("farm-1"),
		Directory: directory.NewStatic(
			domain.Worker{ID: "w1", Name: "Alice", Role: "worker"},
			domain.Worker{ID: "sup1", Name: "Sam", Role: "supervisor"},
			domain.Worker{ID: "temp", Name: "Tem"},
		),
	}
}

func TestActorPermissionsFromDirectoryRole(t *testing.T) {
	ctx := context.Background()
	s := testService()

	perms, err := s.ActorPermissions(ctx, "w1", nil, nil)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if !Has(perms, PermAssignmentToggle) || Has(perms, PermAssignmentToggleAny) || Has(perms, PermTemplateWrite) {
		t.Fatalf("unexpected worker permissions: %v", perms)
	}

	perms, err = s.ActorPermissions(ctx, "sup1", nil, nil)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	for _, p := range []string{PermTemplateWrite, PermAssignmentVerify, PermAssignmentToggleAny, PermEventsRead} {
		if !Has(perms, p) {
			t.Fatalf("supervisor missing %s: %v", p, perms)
		}
	}
}

func TestActorPermissionsMergesExtras(t *testing.T) {
	ctx := context.Background()
	s := testService()

	perms, err := s.ActorPermissions(ctx, "outsider", []string{"worker"}, []string{PermEventsRead, PermEventsRead})
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	want := []string{
		PermAssignmentRead,
		PermAssignmentToggle,
		PermEventsRead,
		PermStatsRead,
		PermTemplateRead,
		PermWorkerRead,
	}
	if !reflect.DeepEqual(perms, want) {
		t.Fatalf("got %v, want %v", perms, want)
	}

	perms, err = s.ActorPermissions(ctx, "temp", nil, nil)
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("worker without role should have no permissions, got %v", perms)
	}
}

func TestRequire(t *testing.T) {
	err := Require([]string{PermStatsRead}, PermTemplateWrite)
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.Permission != PermTemplateWrite {
		t.Fatalf("expected ForbiddenError for %s, got %v", PermTemplateWrite, err)
	}
	if err := Require([]string{PermStatsRead}, PermStatsRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
