package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
	"github.com/hugo-lorenzo-mato/stageboard/internal/logging"
)

func TestNewEvent_RejectsSecretKeys(t *testing.T) {
	t.Parallel()

	keys := []string{"token", "AccessToken", "password", "db_password", "client_secret", "api_key", "ApiKey", "x-apikey"}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			_, err := NewEvent(TypeStageMoved, map[string]any{key: "x"})
			require.Error(t, err)
			assert.Equal(t, CodeSecretMetadataKey, core.GetCode(err))
			assert.True(t, core.IsCategory(err, core.ErrCatValidation))
		})
	}
}

func TestNewEvent_RejectsNestedSecretKeys(t *testing.T) {
	t.Parallel()
	_, err := NewEvent(TypeWorkflowCreated, map[string]any{
		"workflow": map[string]any{"name": "Delivery", "api_key": "x"},
	})
	require.Error(t, err)

	var domErr *core.DomainError
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, "workflow.api_key", domErr.Details["key"])
}

func TestNewEvent_Accepts(t *testing.T) {
	t.Parallel()
	event, err := NewEvent(TypeStageMoved, map[string]any{
		"workflow_id": "wf-1",
		"from_order":  3,
		"to_order":    1,
	})
	require.NoError(t, err)
	assert.Equal(t, TypeStageMoved, event.EventType)
	assert.False(t, event.Time.IsZero())

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event_type":"workflow_stage.moved"`)
	assert.Contains(t, string(raw), `"metadata":{`)
}

func TestNewEvent_NilMetadata(t *testing.T) {
	t.Parallel()
	event, err := NewEvent(TypeWorkflowDeleted, nil)
	require.NoError(t, err)
	assert.NotNil(t, event.Metadata)

	_, err = NewEvent("", nil)
	assert.Error(t, err)
}

func TestLogRecorder_Record(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Format: "json", Output: &buf})

	err := Emit(context.Background(), NewLogRecorder(logger), TypeProjectWorkflowMigrated, map[string]any{
		"project_id": "p-1",
		"remapped":   4,
	})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["msg"])
	assert.Equal(t, TypeProjectWorkflowMigrated, entry["event_type"])
	assert.Equal(t, "p-1", entry["project_id"])
}

func TestEmit_RejectedEventIsNotRecorded(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "info", Format: "json", Output: &buf})

	err := Emit(context.Background(), NewLogRecorder(logger), TypeStageUpdated, map[string]any{"password": "x"})
	require.Error(t, err)
	assert.Empty(t, buf.String())

	assert.NoError(t, Emit(context.Background(), NopRecorder{}, TypeStageUpdated, nil))
}
