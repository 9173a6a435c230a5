// Package audit defines the shape of the audit events callers record after a
// successful mutation. The engine packages never record events themselves.
package audit

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
	"github.com/hugo-lorenzo-mato/stageboard/internal/logging"
)

// Event type constants, one per mutating operation.
const (
	TypeWorkflowCreated         = "workflow.created"
	TypeWorkflowDeleted         = "workflow.deleted"
	TypeStageInserted           = "workflow_stage.inserted"
	TypeStageMoved              = "workflow_stage.moved"
	TypeStageUpdated            = "workflow_stage.updated"
	TypeStageDeleted            = "workflow_stage.deleted"
	TypeItemStageAssigned       = "item.stage_assigned"
	TypeItemStageCleared        = "item.stage_cleared"
	TypeProjectWorkflowChanged  = "project.workflow_changed"
	TypeProjectWorkflowMigrated = "project.workflow_migrated"
)

// CodeSecretMetadataKey marks metadata that would leak a credential.
const CodeSecretMetadataKey = "SECRET_METADATA_KEY"

var secretKeyFragments = []string{"token", "password", "secret", "api_key", "apikey"}

// Event is a single audit record.
type Event struct {
	EventType string         `json:"event_type"`
	Time      time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// NewEvent builds an event, rejecting metadata whose keys look like secrets.
// Nested maps are checked as well.
func NewEvent(eventType string, metadata map[string]any) (Event, error) {
	if eventType == "" {
		return Event{}, core.ErrValidation("INVALID_EVENT_TYPE", "event type is required")
	}
	if key, ok := findSecretKey(metadata); ok {
		return Event{}, core.ErrValidation(CodeSecretMetadataKey, "audit metadata must not carry secret-shaped keys").
			WithDetail("key", key)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Event{
		EventType: eventType,
		Time:      time.Now().UTC(),
		Metadata:  metadata,
	}, nil
}

func findSecretKey(metadata map[string]any) (string, bool) {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if isSecretKey(k) {
			return k, true
		}
		if nested, ok := metadata[k].(map[string]any); ok {
			if inner, found := findSecretKey(nested); found {
				return k + "." + inner, true
			}
		}
	}
	return "", false
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// LogRecorder writes events to a logger at info level.
type LogRecorder struct {
	logger *logging.Logger
}

// NewLogRecorder creates a recorder backed by logger.
func NewLogRecorder(logger *logging.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *LogRecorder) Record(ctx context.Context, event Event) error {
	attrs := make([]any, 0, 2+2*len(event.Metadata))
	attrs = append(attrs, "event_type", event.EventType)

	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, event.Metadata[k])
	}

	r.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Event) error { return nil }

// Emit builds and records an event in one step.
func Emit(ctx context.Context, r Recorder, eventType string, metadata map[string]any) error {
	event, err := NewEvent(eventType, metadata)
	if err != nil {
		return err
	}
	return r.Record(ctx, event)
}
