package store

import (
	"fmt"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

// colKind controls how a payload value is converted to and from SQL.
type colKind int

const (
	colText colKind = iota
	colNullText
	colInt
	colNullTime
	colTime
)

// columnSpec maps one domain column to its client-payload JSON key.
type columnSpec struct {
	column  string
	jsonKey string
	kind    colKind
}

// tableSchema describes one syncable entity table. The bookkeeping columns
// (id, user_id, version, created_at, updated_at, deleted_at) are common to
// every table and handled outside the schema.
type tableSchema struct {
	table   string
	columns []columnSpec
}

var tableSchemas = map[types.EntityType]tableSchema{
	types.EntityActivity: {
		table: "activities",
		columns: []columnSpec{
			{"name", "name", colText},
			{"kind", "kind", colText},
			{"color", "color", colText},
			{"icon", "icon", colNullText},
		},
	},
	types.EntityActivityKind: {
		table: "activity_kinds",
		columns: []columnSpec{
			{"name", "name", colText},
			{"icon", "icon", colNullText},
			{"position", "position", colInt},
		},
	},
	types.EntityActivityLog: {
		table: "activity_logs",
		columns: []columnSpec{
			{"activity_id", "activityId", colText},
			{"started_at", "startedAt", colTime},
			{"duration_seconds", "durationSeconds", colInt},
			{"note", "note", colText},
		},
	},
	types.EntityGoal: {
		table: "goals",
		columns: []columnSpec{
			{"activity_id", "activityId", colText},
			{"target_seconds", "targetSeconds", colInt},
			{"period", "period", colText},
		},
	},
	types.EntityTask: {
		table: "tasks",
		columns: []columnSpec{
			{"title", "title", colText},
			{"notes", "notes", colText},
			{"due_at", "dueAt", colNullTime},
			{"completed_at", "completedAt", colNullTime},
		},
	},
}

// schemaFor returns the table schema for an entity type.
func schemaFor(entityType types.EntityType) (tableSchema, error) {
	schema, ok := tableSchemas[entityType]
	if !ok {
		return tableSchema{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entityType)
	}
	return schema, nil
}

// payloadSQLValue converts one decoded JSON payload value into its SQL
// representation per the column kind. JSON numbers arrive as float64, times
// as RFC 3339 strings.
func payloadSQLValue(spec columnSpec, value any) (any, error) {
	if value == nil {
		switch spec.kind {
		case colNullText, colNullTime:
			return nil, nil
		case colText:
			return "", nil
		case colInt:
			return int64(0), nil
		default:
			return nil, fmt.Errorf("column %s: null not allowed", spec.column)
		}
	}

	switch spec.kind {
	case colText, colNullText:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("column %s: expected string, got %T", spec.column, value)
		}
		return s, nil
	case colInt:
		switch v := value.(type) {
		case float64:
			return int64(v), nil
		case int64:
			return v, nil
		default:
			return nil, fmt.Errorf("column %s: expected number, got %T", spec.column, value)
		}
	case colTime, colNullTime:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("column %s: expected timestamp string, got %T", spec.column, value)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", spec.column, err)
		}
		return formatTime(t), nil
	default:
		return nil, fmt.Errorf("column %s: unhandled kind", spec.column)
	}
}
