// Package progress derives a 0..1 progress value for subtasks, tasks and
// epics from workflow stage data, together with a structured explanation of
// how the value was reached. The calculator functions never fail: every
// misconfiguration yields zero progress and a reason code.
package progress

import (
	"sort"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

// Reason explains why a progress value is zero, clamped or otherwise not a
// plain stage lookup.
type Reason string

const (
	ReasonNone Reason = "none"

	// Workflow context reasons
	ReasonWorkflowHasNoStages        Reason = "workflow_has_no_stages"
	ReasonWorkflowMissingDoneStage   Reason = "workflow_missing_done_stage"
	ReasonWorkflowMultipleDoneStages Reason = "workflow_multiple_done_stages"
	ReasonWorkflowDoneStageAtStart   Reason = "workflow_done_stage_at_start"

	// Item reasons
	ReasonProjectMissingWorkflow      Reason = "project_missing_workflow"
	ReasonWorkflowContextUnavailable  Reason = "workflow_context_unavailable"
	ReasonSubtaskMissingWorkflowStage Reason = "subtask_missing_workflow_stage"
	ReasonStageNotInProjectWorkflow   Reason = "stage_not_in_project_workflow"
	ReasonStageProgressUnavailable    Reason = "stage_progress_unavailable"
	ReasonStageProgressPercentClamped Reason = "stage_progress_percent_clamped"
	ReasonNoSubtasks                  Reason = "no_subtasks"
)

// Calculator policy names reported in Why.Policy.
const (
	PolicyStageProgressPercent     = "stage_progress_percent"
	PolicyAverageOfSubtaskProgress = "average_of_subtask_progress"
)

// WorkflowProgressContext is the per-workflow lookup data shared by every
// item computed against that workflow.
type WorkflowProgressContext struct {
	WorkflowID               core.WorkflowID
	StageCount               int
	DoneStageID              *core.StageID
	DoneStageOrder           *int
	StageOrderByID           map[core.StageID]int
	StageIsDoneByID          map[core.StageID]bool
	StageCategoryByID        map[core.StageID]core.StageCategory
	StageProgressPercentByID map[core.StageID]int
}

// BuildWorkflowProgressContext indexes the stages of a workflow and reports
// the first structural problem that makes stage progress meaningless.
func BuildWorkflowProgressContext(workflowID core.WorkflowID, stages []*core.WorkflowStage) (*WorkflowProgressContext, Reason) {
	wctx := &WorkflowProgressContext{
		WorkflowID:               workflowID,
		StageCount:               len(stages),
		StageOrderByID:           make(map[core.StageID]int, len(stages)),
		StageIsDoneByID:          make(map[core.StageID]bool, len(stages)),
		StageCategoryByID:        make(map[core.StageID]core.StageCategory, len(stages)),
		StageProgressPercentByID: make(map[core.StageID]int, len(stages)),
	}

	var done []*core.WorkflowStage
	for _, st := range stages {
		wctx.StageOrderByID[st.ID] = st.Order
		wctx.StageIsDoneByID[st.ID] = st.IsDone
		wctx.StageCategoryByID[st.ID] = st.Category
		wctx.StageProgressPercentByID[st.ID] = st.ProgressPercent
		if st.IsDone {
			done = append(done, st)
		}
	}

	if len(done) > 0 {
		sort.SliceStable(done, func(i, j int) bool { return done[i].Order < done[j].Order })
		id, order := done[0].ID, done[0].Order
		wctx.DoneStageID = &id
		wctx.DoneStageOrder = &order
	}

	switch {
	case len(stages) == 0:
		return wctx, ReasonWorkflowHasNoStages
	case len(done) == 0:
		return wctx, ReasonWorkflowMissingDoneStage
	case len(done) > 1:
		return wctx, ReasonWorkflowMultipleDoneStages
	case *wctx.DoneStageOrder <= 1:
		return wctx, ReasonWorkflowDoneStageAtStart
	}
	return wctx, ReasonNone
}

// StageWhy explains a single-stage progress value.
type StageWhy struct {
	Policy          string              `json:"policy" yaml:"policy"`
	EffectivePolicy core.ProgressPolicy `json:"effective_policy,omitempty" yaml:"effective_policy,omitempty"`
	Reason          Reason              `json:"reason,omitempty" yaml:"reason,omitempty"`
	WorkflowID      *core.WorkflowID    `json:"workflow_id" yaml:"workflow_id"`
	WorkflowStageID *core.StageID       `json:"workflow_stage_id" yaml:"workflow_stage_id"`
	StageCount      int                 `json:"stage_count" yaml:"stage_count"`
	DoneStageOrder  *int                `json:"done_stage_order" yaml:"done_stage_order"`
	StageOrder      *int                `json:"stage_order" yaml:"stage_order"`
	ProgressPercent *int                `json:"progress_percent" yaml:"progress_percent"`
}

// ReasonCode returns the reason, or ReasonNone.
func (w *StageWhy) ReasonCode() Reason {
	if w.Reason == "" {
		return ReasonNone
	}
	return w.Reason
}

// RollupWhy explains an average over child items.
type RollupWhy struct {
	Policy                       string              `json:"policy" yaml:"policy"`
	EffectivePolicy              core.ProgressPolicy `json:"effective_policy,omitempty" yaml:"effective_policy,omitempty"`
	Reason                       Reason              `json:"reason,omitempty" yaml:"reason,omitempty"`
	WorkflowID                   *core.WorkflowID    `json:"workflow_id" yaml:"workflow_id"`
	StageCount                   int                 `json:"stage_count" yaml:"stage_count"`
	DoneStageOrder               *int                `json:"done_stage_order" yaml:"done_stage_order"`
	SubtaskCount                 int                 `json:"subtask_count" yaml:"subtask_count"`
	SubtaskProgressSum           float64             `json:"subtask_progress_sum" yaml:"subtask_progress_sum"`
	SubtaskCountsByStageOrder    map[int]int         `json:"subtask_counts_by_stage_order" yaml:"subtask_counts_by_stage_order"`
	SubtasksMissingStageCount    int                 `json:"subtasks_missing_stage_count" yaml:"subtasks_missing_stage_count"`
	SubtasksUnknownStageCount    int                 `json:"subtasks_unknown_stage_count" yaml:"subtasks_unknown_stage_count"`
	SubtasksMissingProgressCount int                 `json:"subtasks_missing_progress_count" yaml:"subtasks_missing_progress_count"`
	SubtasksClampedProgressCount int                 `json:"subtasks_clamped_progress_count" yaml:"subtasks_clamped_progress_count"`
}

// ReasonCode returns the reason, or ReasonNone.
func (w *RollupWhy) ReasonCode() Reason {
	if w.Reason == "" {
		return ReasonNone
	}
	return w.Reason
}

// contextReason returns the short-circuit shared by every computation, or
// ReasonNone when the context can be used.
func contextReason(projectWorkflowID *core.WorkflowID, wctx *WorkflowProgressContext, ctxReason Reason) Reason {
	switch {
	case projectWorkflowID == nil:
		return ReasonProjectMissingWorkflow
	case wctx == nil || wctx.WorkflowID != *projectWorkflowID:
		return ReasonWorkflowContextUnavailable
	case ctxReason != "" && ctxReason != ReasonNone:
		return ctxReason
	}
	return ReasonNone
}

// stageLookup is the context entry for one stage.
type stageLookup struct {
	order      int
	percent    int
	value      float64
	known      bool
	hasPercent bool
	clamped    bool
}

func lookupStage(wctx *WorkflowProgressContext, stageID core.StageID) stageLookup {
	var l stageLookup
	if l.order, l.known = wctx.StageOrderByID[stageID]; !l.known {
		return l
	}
	if l.percent, l.hasPercent = wctx.StageProgressPercentByID[stageID]; !l.hasPercent {
		return l
	}
	c := clampPercent(l.percent)
	l.value = float64(c) / 100.0
	l.clamped = c != l.percent
	return l
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ComputeSubtaskProgress returns the progress of one item from the percent of
// the stage it sits on.
func ComputeSubtaskProgress(projectWorkflowID *core.WorkflowID, wctx *WorkflowProgressContext, ctxReason Reason, stageID *core.StageID) (float64, *StageWhy) {
	why := &StageWhy{
		Policy:          PolicyStageProgressPercent,
		WorkflowID:      projectWorkflowID,
		WorkflowStageID: stageID,
	}
	if wctx != nil {
		why.StageCount = wctx.StageCount
		why.DoneStageOrder = cloneInt(wctx.DoneStageOrder)
	}

	if r := contextReason(projectWorkflowID, wctx, ctxReason); r != ReasonNone {
		why.Reason = r
		return 0, why
	}
	if stageID == nil {
		why.Reason = ReasonSubtaskMissingWorkflowStage
		return 0, why
	}

	l := lookupStage(wctx, *stageID)
	if !l.known {
		why.Reason = ReasonStageNotInProjectWorkflow
		return 0, why
	}
	why.StageOrder = &l.order
	if !l.hasPercent {
		why.Reason = ReasonStageProgressUnavailable
		return 0, why
	}
	why.ProgressPercent = &l.percent
	if l.clamped {
		why.Reason = ReasonStageProgressPercentClamped
	}
	return l.value, why
}

// ComputeRollupProgress averages the stage progress of child items. Children
// that cannot be placed contribute zero and are counted by cause.
func ComputeRollupProgress(projectWorkflowID *core.WorkflowID, wctx *WorkflowProgressContext, ctxReason Reason, childStageIDs []*core.StageID) (float64, *RollupWhy) {
	why := &RollupWhy{
		Policy:                    PolicyAverageOfSubtaskProgress,
		WorkflowID:                projectWorkflowID,
		SubtaskCount:              len(childStageIDs),
		SubtaskCountsByStageOrder: map[int]int{},
	}
	if wctx != nil {
		why.StageCount = wctx.StageCount
		why.DoneStageOrder = cloneInt(wctx.DoneStageOrder)
	}

	if len(childStageIDs) == 0 {
		why.Reason = ReasonNoSubtasks
		return 0, why
	}
	if r := contextReason(projectWorkflowID, wctx, ctxReason); r != ReasonNone {
		why.Reason = r
		return 0, why
	}

	var sum float64
	for _, id := range childStageIDs {
		if id == nil {
			why.SubtasksMissingStageCount++
			continue
		}
		l := lookupStage(wctx, *id)
		if !l.known {
			why.SubtasksUnknownStageCount++
			continue
		}
		why.SubtaskCountsByStageOrder[l.order]++
		if !l.hasPercent {
			why.SubtasksMissingProgressCount++
			continue
		}
		if l.clamped {
			why.SubtasksClampedProgressCount++
		}
		sum += l.value
	}

	why.SubtaskProgressSum = sum
	return sum / float64(len(childStageIDs)), why
}

// cloneInt keeps explanations from aliasing the shared workflow context.
func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
