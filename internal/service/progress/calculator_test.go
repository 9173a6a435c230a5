package progress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

func stage(id string, order int, cat core.StageCategory, percent int) *core.WorkflowStage {
	return &core.WorkflowStage{
		ID:              core.StageID(id),
		WorkflowID:      "wf",
		Name:            id,
		Order:           order,
		Category:        cat,
		ProgressPercent: percent,
		IsDone:          cat == core.CategoryDone,
	}
}

func fourStages() []*core.WorkflowStage {
	return []*core.WorkflowStage{
		stage("backlog", 1, core.CategoryBacklog, 0),
		stage("doing", 2, core.CategoryInProgress, 33),
		stage("qa", 3, core.CategoryQA, 67),
		stage("done", 4, core.CategoryDone, 100),
	}
}

func sid(s string) *core.StageID {
	id := core.StageID(s)
	return &id
}

func wfID(s string) *core.WorkflowID {
	id := core.WorkflowID(s)
	return &id
}

func TestBuildWorkflowProgressContext(t *testing.T) {
	tests := []struct {
		name   string
		stages []*core.WorkflowStage
		want   Reason
	}{
		{"healthy", fourStages(), ReasonNone},
		{"no stages", nil, ReasonWorkflowHasNoStages},
		{"missing done", fourStages()[:3], ReasonWorkflowMissingDoneStage},
		{
			"multiple done",
			append(fourStages(), stage("done-2", 5, core.CategoryDone, 100)),
			ReasonWorkflowMultipleDoneStages,
		},
		{
			"done at start",
			[]*core.WorkflowStage{stage("done", 1, core.CategoryDone, 100), stage("later", 2, core.CategoryBacklog, 0)},
			ReasonWorkflowDoneStageAtStart,
		},
		{"single done stage", []*core.WorkflowStage{stage("done", 1, core.CategoryDone, 100)}, ReasonWorkflowDoneStageAtStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wctx, reason := BuildWorkflowProgressContext("wf", tt.stages)
			require.NotNil(t, wctx)
			assert.Equal(t, tt.want, reason)
			assert.Equal(t, len(tt.stages), wctx.StageCount)
		})
	}
}

func TestBuildWorkflowProgressContext_Indexes(t *testing.T) {
	wctx, reason := BuildWorkflowProgressContext("wf", fourStages())
	require.Equal(t, ReasonNone, reason)

	assert.Equal(t, core.WorkflowID("wf"), wctx.WorkflowID)
	require.NotNil(t, wctx.DoneStageID)
	assert.Equal(t, core.StageID("done"), *wctx.DoneStageID)
	assert.Equal(t, 4, *wctx.DoneStageOrder)
	assert.Equal(t, 2, wctx.StageOrderByID["doing"])
	assert.True(t, wctx.StageIsDoneByID["done"])
	assert.False(t, wctx.StageIsDoneByID["qa"])
	assert.Equal(t, core.CategoryQA, wctx.StageCategoryByID["qa"])
	assert.Equal(t, 67, wctx.StageProgressPercentByID["qa"])
}

func TestComputeSubtaskProgress_ScenarioA(t *testing.T) {
	wctx, reason := BuildWorkflowProgressContext("wf", fourStages())

	value, why := ComputeSubtaskProgress(wfID("wf"), wctx, reason, sid("doing"))

	assert.InDelta(t, 0.33, value, 1e-9)
	assert.Equal(t, PolicyStageProgressPercent, why.Policy)
	assert.Empty(t, why.Reason)
	assert.Equal(t, ReasonNone, why.ReasonCode())
	require.NotNil(t, why.StageOrder)
	assert.Equal(t, 2, *why.StageOrder)
	require.NotNil(t, why.DoneStageOrder)
	assert.Equal(t, 4, *why.DoneStageOrder)
	assert.Equal(t, 4, why.StageCount)
	assert.Equal(t, 33, *why.ProgressPercent)
	assert.Equal(t, core.StageID("doing"), *why.WorkflowStageID)
	assert.Equal(t, core.WorkflowID("wf"), *why.WorkflowID)
}

func TestComputeSubtaskProgress_Precedence(t *testing.T) {
	healthy, _ := BuildWorkflowProgressContext("wf", fourStages())
	other, _ := BuildWorkflowProgressContext("other", fourStages())
	broken, brokenReason := BuildWorkflowProgressContext("wf", fourStages()[:3])

	noPercent, _ := BuildWorkflowProgressContext("wf", fourStages())
	delete(noPercent.StageProgressPercentByID, "qa")

	overfull, _ := BuildWorkflowProgressContext("wf", fourStages())
	overfull.StageProgressPercentByID["qa"] = 150
	negative, _ := BuildWorkflowProgressContext("wf", fourStages())
	negative.StageProgressPercentByID["doing"] = -5

	tests := []struct {
		name      string
		projectWF *core.WorkflowID
		wctx      *WorkflowProgressContext
		ctxReason Reason
		stageID   *core.StageID
		want      float64
		reason    Reason
	}{
		{"project missing workflow wins over everything", nil, nil, brokenReason, nil, 0, ReasonProjectMissingWorkflow},
		{"nil context", wfID("wf"), nil, ReasonNone, sid("doing"), 0, ReasonWorkflowContextUnavailable},
		{"context for another workflow", wfID("wf"), other, ReasonNone, sid("doing"), 0, ReasonWorkflowContextUnavailable},
		{"context reason propagated", wfID("wf"), broken, brokenReason, sid("doing"), 0, ReasonWorkflowMissingDoneStage},
		{"subtask without stage", wfID("wf"), healthy, ReasonNone, nil, 0, ReasonSubtaskMissingWorkflowStage},
		{"stage from another workflow", wfID("wf"), healthy, ReasonNone, sid("elsewhere"), 0, ReasonStageNotInProjectWorkflow},
		{"stage without percent", wfID("wf"), noPercent, ReasonNone, sid("qa"), 0, ReasonStageProgressUnavailable},
		{"percent above range clamped", wfID("wf"), overfull, ReasonNone, sid("qa"), 1.0, ReasonStageProgressPercentClamped},
		{"percent below range clamped", wfID("wf"), negative, ReasonNone, sid("doing"), 0, ReasonStageProgressPercentClamped},
		{"done stage", wfID("wf"), healthy, ReasonNone, sid("done"), 1.0, ""},
		{"empty context reason treated as none", wfID("wf"), healthy, "", sid("qa"), 0.67, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, why := ComputeSubtaskProgress(tt.projectWF, tt.wctx, tt.ctxReason, tt.stageID)
			assert.InDelta(t, tt.want, value, 1e-9)
			assert.Equal(t, tt.reason, why.Reason)
			assert.Equal(t, PolicyStageProgressPercent, why.Policy)
		})
	}
}

func TestComputeSubtaskProgress_ClampedKeepsRawPercent(t *testing.T) {
	wctx, _ := BuildWorkflowProgressContext("wf", fourStages())
	wctx.StageProgressPercentByID["qa"] = 150

	_, why := ComputeSubtaskProgress(wfID("wf"), wctx, ReasonNone, sid("qa"))
	require.NotNil(t, why.ProgressPercent)
	assert.Equal(t, 150, *why.ProgressPercent)
	assert.Equal(t, 3, *why.StageOrder)
}

func TestComputeRollupProgress_ScenarioC(t *testing.T) {
	wctx, reason := BuildWorkflowProgressContext("wf", fourStages())
	children := []*core.StageID{sid("backlog"), sid("doing"), sid("qa"), sid("done")}

	value, why := ComputeRollupProgress(wfID("wf"), wctx, reason, children)

	assert.InDelta(t, 0.5, value, 1e-9)
	assert.Equal(t, PolicyAverageOfSubtaskProgress, why.Policy)
	assert.Equal(t, 4, why.SubtaskCount)
	assert.InDelta(t, 2.0, why.SubtaskProgressSum, 1e-9)
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1, 4: 1}, why.SubtaskCountsByStageOrder)
	assert.Empty(t, why.Reason)
	assert.Zero(t, why.SubtasksMissingStageCount)
	assert.Zero(t, why.SubtasksUnknownStageCount)
	assert.Zero(t, why.SubtasksMissingProgressCount)
	assert.Zero(t, why.SubtasksClampedProgressCount)
}

func TestComputeRollupProgress_Breakdown(t *testing.T) {
	wctx, _ := BuildWorkflowProgressContext("wf", fourStages())
	delete(wctx.StageProgressPercentByID, "backlog")
	wctx.StageProgressPercentByID["qa"] = 120

	children := []*core.StageID{
		nil,            // missing stage
		sid("nowhere"), // unknown stage
		sid("backlog"), // missing percent
		sid("qa"),      // clamped to 1.0
		sid("done"),    // 1.0
	}

	value, why := ComputeRollupProgress(wfID("wf"), wctx, ReasonNone, children)

	assert.InDelta(t, 2.0/5.0, value, 1e-9)
	assert.InDelta(t, 2.0, why.SubtaskProgressSum, 1e-9)
	assert.Equal(t, 5, why.SubtaskCount)
	assert.Equal(t, 1, why.SubtasksMissingStageCount)
	assert.Equal(t, 1, why.SubtasksUnknownStageCount)
	assert.Equal(t, 1, why.SubtasksMissingProgressCount)
	assert.Equal(t, 1, why.SubtasksClampedProgressCount)
	assert.Equal(t, map[int]int{1: 1, 3: 1, 4: 1}, why.SubtaskCountsByStageOrder)
	assert.Empty(t, why.Reason)
}

func TestComputeRollupProgress_ShortCircuits(t *testing.T) {
	healthy, _ := BuildWorkflowProgressContext("wf", fourStages())
	_, emptyReason := BuildWorkflowProgressContext("wf", nil)
	children := []*core.StageID{sid("done")}

	tests := []struct {
		name      string
		projectWF *core.WorkflowID
		wctx      *WorkflowProgressContext
		ctxReason Reason
		children  []*core.StageID
		reason    Reason
	}{
		{"no subtasks comes first", nil, nil, emptyReason, nil, ReasonNoSubtasks},
		{"project missing workflow", nil, healthy, ReasonNone, children, ReasonProjectMissingWorkflow},
		{"context unavailable", wfID("wf"), nil, ReasonNone, children, ReasonWorkflowContextUnavailable},
		{"context reason", wfID("wf"), healthy, emptyReason, children, ReasonWorkflowHasNoStages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, why := ComputeRollupProgress(tt.projectWF, tt.wctx, tt.ctxReason, tt.children)
			assert.Zero(t, value)
			assert.Equal(t, tt.reason, why.Reason)
			assert.Zero(t, why.SubtaskProgressSum)
			assert.Equal(t, len(tt.children), why.SubtaskCount)
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	children := []*core.StageID{sid("qa"), nil, sid("doing"), sid("unknown"), sid("done")}

	run := func() ([]byte, []byte) {
		wctx, reason := BuildWorkflowProgressContext("wf", fourStages())
		sv, sw := ComputeSubtaskProgress(wfID("wf"), wctx, reason, sid("qa"))
		rv, rw := ComputeRollupProgress(wfID("wf"), wctx, reason, children)
		a, err := json.Marshal(map[string]any{"value": sv, "why": sw})
		require.NoError(t, err)
		b, err := json.Marshal(map[string]any{"value": rv, "why": rw})
		require.NoError(t, err)
		return a, b
	}

	a1, b1 := run()
	for i := 0; i < 10; i++ {
		a2, b2 := run()
		assert.Equal(t, string(a1), string(a2))
		assert.Equal(t, string(b1), string(b2))
	}
}

func TestWhy_JSONFieldNames(t *testing.T) {
	wctx, reason := BuildWorkflowProgressContext("wf", fourStages())

	_, sw := ComputeSubtaskProgress(wfID("wf"), wctx, reason, sid("doing"))
	sw.EffectivePolicy = core.PolicyWorkflowStage
	data, err := json.Marshal(sw)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	for _, key := range []string{
		"policy", "effective_policy", "workflow_id", "workflow_stage_id",
		"stage_count", "done_stage_order", "stage_order", "progress_percent",
	} {
		assert.Contains(t, got, key)
	}
	assert.NotContains(t, got, "reason")

	_, sw = ComputeSubtaskProgress(wfID("wf"), wctx, reason, nil)
	data, err = json.Marshal(sw)
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "subtask_missing_workflow_stage", got["reason"])
	assert.Nil(t, got["progress_percent"])
	assert.Nil(t, got["stage_order"])

	_, rw := ComputeRollupProgress(wfID("wf"), wctx, reason, []*core.StageID{sid("qa")})
	data, err = json.Marshal(rw)
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal(data, &got))
	for _, key := range []string{
		"policy", "subtask_count", "subtask_progress_sum", "subtask_counts_by_stage_order",
		"subtasks_missing_stage_count", "subtasks_unknown_stage_count",
		"subtasks_missing_progress_count", "subtasks_clamped_progress_count",
	} {
		assert.Contains(t, got, key)
	}
	assert.Equal(t, map[string]any{"3": float64(1)}, got["subtask_counts_by_stage_order"])
}

func TestExplanationsDoNotAliasContext(t *testing.T) {
	wctx, reason := BuildWorkflowProgressContext("wf", fourStages())

	_, why := ComputeSubtaskProgress(wfID("wf"), wctx, reason, sid("doing"))
	require.NotNil(t, why.DoneStageOrder)
	*why.DoneStageOrder = 99

	_, rollup := ComputeRollupProgress(wfID("wf"), wctx, reason, []*core.StageID{sid("done")})
	require.NotNil(t, rollup.DoneStageOrder)
	*rollup.DoneStageOrder = 98

	assert.Equal(t, 4, *wctx.DoneStageOrder)
	_, again := ComputeSubtaskProgress(wfID("wf"), wctx, reason, sid("qa"))
	assert.Equal(t, 4, *again.DoneStageOrder)
}
