package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"fieldline/internal/config"
	"fieldline/internal/directory"
	"fieldline/internal/repo"
)

const (
	PermTemplateRead        = "template.read"
	PermTemplateWrite       = "template.write"
	PermAssignmentRead      = "assignment.read"
	PermAssignmentCreate    = "assignment.create"
	PermAssignmentToggle    = "assignment.toggle"
	PermAssignmentToggleAny = "assignment.toggle.any"
	PermAssignmentVerify    = "assignment.verify"
	PermStatsRead           = "stats.read"
	PermEventsRead          = "events.read"
	PermWorkerRead          = "worker.read"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Service resolves permissions from config roles. An actor's role comes from
// the worker directory; extra roles may be supplied by the caller (JWT claims).
type Service struct {
	Config    *config.Config
	Directory directory.Directory
}

// ActorRoles returns the directory role of actorID, if any.
func (s Service) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	if s.Directory == nil || actorID == "" {
		return nil, nil
	}
	w, err := s.Directory.ResolveWorker(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if w.Role == "" {
		return nil, nil
	}
	return []string{w.Role}, nil
}

// ActorPermissions returns the sorted effective permissions of actorID.
func (s Service) ActorPermissions(ctx context.Context, actorID string, extraRoles []string, extraPerms []string) ([]string, error) {
	roles, err := s.ActorRoles(ctx, actorID)
	if err != nil {
		return nil, err
	}
	roles = append(roles, extraRoles...)
	set := map[string]struct{}{}
	if s.Config != nil {
		for _, p := range s.Config.RolePermissions(roles...) {
			set[p] = struct{}{}
		}
	}
	for _, p := range extraPerms {
		set[p] = struct{}{}
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

// Has reports whether perm is in perms.
func Has(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// Require returns ForbiddenError unless perm is in perms.
func Require(perms []string, perm string) error {
	if Has(perms, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}
