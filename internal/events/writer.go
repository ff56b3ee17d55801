package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeBriefingAnalyzed = "briefing.analyzed"
	TypeProjectComposed  = "project.composed"
	TypeCatalogSeeded    = "catalog.seeded"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event row. A nil exec uses the writer's database.
func (w Writer) Append(ctx context.Context, exec Execer, evtType, projectID, entityKind, entityID string, payload EventPayload) error {
	if exec == nil {
		if w.DB == nil {
			return fmt.Errorf("append %s: no database", evtType)
		}
		exec = w.DB
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = exec.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), string(data))
	if err != nil {
		return fmt.Errorf("append %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
