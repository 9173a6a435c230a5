package stages

import (
	"context"
	"sort"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

// clampOrder bounds a desired 1-based position to [1, n].
func clampOrder(desired, n int) int {
	if desired < 1 {
		return 1
	}
	if desired > n {
		return n
	}
	return desired
}

// planMove returns the dense order of every stage after moving target to
// desired. stages must be sorted by current order. changed is false when
// the resulting orders equal the current ones.
func planMove(stages []*core.WorkflowStage, target core.StageID, desired int) (final map[core.StageID]int, changed bool) {
	siblings := make([]*core.WorkflowStage, 0, len(stages))
	var moving *core.WorkflowStage
	for _, st := range stages {
		if st.ID == target {
			moving = st
			continue
		}
		siblings = append(siblings, st)
	}
	if moving == nil {
		return denseOrders(stages)
	}

	pos := clampOrder(desired, len(siblings)+1) - 1
	reordered := make([]*core.WorkflowStage, 0, len(stages))
	reordered = append(reordered, siblings[:pos]...)
	reordered = append(reordered, moving)
	reordered = append(reordered, siblings[pos:]...)
	return denseOrders(reordered)
}

// denseOrders numbers stages 1..N in slice order.
func denseOrders(stages []*core.WorkflowStage) (final map[core.StageID]int, changed bool) {
	final = make(map[core.StageID]int, len(stages))
	for i, st := range stages {
		final[st.ID] = i + 1
		if st.Order != i+1 {
			changed = true
		}
	}
	return final, changed
}

// tempOrders maps every stage into a range above any live order.
func tempOrders(stages []*core.WorkflowStage) map[core.StageID]int {
	currentMax := 0
	for _, st := range stages {
		if st.Order > currentMax {
			currentMax = st.Order
		}
	}
	temp := make(map[core.StageID]int, len(stages))
	for i, st := range stages {
		temp[st.ID] = currentMax + core.ReorderTempOffset + i
	}
	return temp
}

// writeOrders renumbers stages in two passes so no intermediate state
// collides on (workflow_id, stage_order). The in-memory orders are updated
// to match.
func writeOrders(ctx context.Context, tx core.Tx, workflowID core.WorkflowID, stages []*core.WorkflowStage, final map[core.StageID]int) error {
	if err := tx.BulkUpdateStageOrders(ctx, workflowID, tempOrders(stages)); err != nil {
		return err
	}
	if err := tx.BulkUpdateStageOrders(ctx, workflowID, final); err != nil {
		return err
	}
	for _, st := range stages {
		st.Order = final[st.ID]
	}
	return nil
}

// moveWithin moves target to desired among stages, writing nothing when
// the stage is already there.
func moveWithin(ctx context.Context, tx core.Tx, workflowID core.WorkflowID, stages []*core.WorkflowStage, target core.StageID, desired int) error {
	final, changed := planMove(stages, target, desired)
	if !changed {
		return nil
	}
	if err := writeOrders(ctx, tx, workflowID, stages, final); err != nil {
		return err
	}
	sortByOrder(stages)
	return nil
}

func sortByOrder(stages []*core.WorkflowStage) {
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
}
