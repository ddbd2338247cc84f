package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/date"
	"fieldline/internal/directory"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Directory directory.Directory
	Location  *time.Location
	Logger    *slog.Logger
	Now       func() time.Time

	locks *keyedMutex
}

// New wires an engine over db. The calendar day used for due-date checks is
// taken in the farm timezone from cfg.
func New(db *sql.DB, cfg *config.Config, dir directory.Directory) Engine {
	loc := time.UTC
	if cfg != nil {
		if l, err := cfg.Location(); err == nil {
			loc = l
		}
	}
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Config:    cfg,
		Directory: dir,
		Location:  loc,
		Logger:    slog.Default(),
		Now:       time.Now,
		locks:     newKeyedMutex(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Today is the current calendar day in the farm timezone.
func (e Engine) Today() date.Date {
	return date.Of(e.now(), e.Location)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

// lock serialises mutations of one assignment.
func (e Engine) lock(assignmentID string) func() {
	if e.locks == nil {
		return sharedLocks.Lock(assignmentID)
	}
	return e.locks.Lock(assignmentID)
}
