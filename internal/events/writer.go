package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TemplateCreated     = "template.created"
	TemplateUpdated     = "template.updated"
	TemplateDeleted     = "template.deleted"
	SubtaskAdded        = "template.subtask_added"
	SubtaskRemoved      = "template.subtask_removed"
	AssignmentCreated   = "assignment.created"
	AssignmentToggled   = "assignment.subtask_toggled"
	AssignmentStatus    = "assignment.status_changed"
	AssignmentVerified  = "assignment.verified"
	AssignmentRederived = "assignment.rederived"
	WorkerRosterSynced  = "worker.roster_synced"
	EntityTemplate      = "template"
	EntityAssignment    = "assignment"
	EntityWorker        = "worker"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
