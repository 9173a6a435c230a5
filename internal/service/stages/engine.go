// Package stages keeps the stages of a workflow densely ordered 1..N with
// exactly one done stage. Every operation runs in a single transaction that
// locks the workflow row before reading its stages.
package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
	"github.com/hugo-lorenzo-mato/stageboard/internal/logging"
)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxStages bounds the number of stages per workflow.
func WithMaxStages(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxStages = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine edits workflows and their stages.
type Engine struct {
	store     core.Store
	logger    *logging.Logger
	maxStages int
}

// New creates an engine over store.
func New(store core.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		logger:    logging.NewNop(),
		maxStages: core.DefaultMaxStages,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxStages returns the per-workflow stage limit.
func (e *Engine) MaxStages() int {
	return e.maxStages
}

// CreateWorkflow creates a workflow and its stages atomically. Declared
// orders are advisory: stages are sorted by (order, name) and renumbered
// 1..N. When every spec leaves the order unset, list position is used.
func (e *Engine) CreateWorkflow(ctx context.Context, orgID core.OrgID, name string, createdBy *string, specs []core.StageSpec) (*core.Workflow, []*core.WorkflowStage, error) {
	name = strings.TrimSpace(name)
	if orgID == "" {
		return nil, nil, core.ErrInvalidWorkflowSpec("org id is required")
	}
	if name == "" {
		return nil, nil, core.ErrInvalidWorkflowSpec("workflow name is required")
	}

	normalized, err := e.normalizeSpecs(specs)
	if err != nil {
		e.rejected("create workflow", err)
		return nil, nil, err
	}

	wf := &core.Workflow{OrgID: orgID, Name: name, CreatedBy: createdBy}
	var created []*core.WorkflowStage
	err = e.store.WithTx(ctx, func(tx core.Tx) error {
		if err := tx.InsertWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("inserting workflow: %w", err)
		}
		created = make([]*core.WorkflowStage, 0, len(normalized))
		for i, spec := range normalized {
			st := spec.Stage(wf.ID, i+1)
			if err := tx.InsertStage(ctx, st); err != nil {
				return fmt.Errorf("inserting stage %q: %w", spec.Name, err)
			}
			created = append(created, st)
		}
		_, err := verifyDone(ctx, tx, wf.ID)
		return err
	})
	if err != nil {
		e.rejected("create workflow", err)
		return nil, nil, err
	}

	e.logger.WithOrg(string(orgID)).WithWorkflow(string(wf.ID)).
		Info("workflow created", "name", wf.Name, "stages", len(created))
	return wf, created, nil
}

// normalizeSpecs validates specs and returns them in final order.
func (e *Engine) normalizeSpecs(specs []core.StageSpec) ([]core.StageSpec, error) {
	if len(specs) == 0 {
		return nil, core.ErrInvalidWorkflowSpec("at least one stage is required")
	}
	if len(specs) > e.maxStages {
		return nil, core.ErrInvalidWorkflowSpec(fmt.Sprintf("a workflow may have at most %d stages", e.maxStages)).
			WithDetail("stages", len(specs))
	}

	positional := true
	for _, spec := range specs {
		if spec.Order != 0 {
			positional = false
			break
		}
	}

	out := make([]core.StageSpec, len(specs))
	seen := make(map[int]string, len(specs))
	done := 0
	for i, spec := range specs {
		spec = spec.Normalize()
		if positional {
			spec.Order = i + 1
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if spec.Order < 1 {
			return nil, core.ErrInvalidWorkflowSpec(fmt.Sprintf("stage %q: order must be positive", spec.Name)).
				WithDetail("order", spec.Order)
		}
		if other, dup := seen[spec.Order]; dup {
			return nil, core.ErrInvalidWorkflowSpec(fmt.Sprintf("stages %q and %q share order %d", other, spec.Name, spec.Order))
		}
		seen[spec.Order] = spec.Name
		if spec.IsDone {
			done++
		}
		out[i] = spec
	}
	if done != 1 {
		return nil, core.ErrInvalidWorkflowSpec(fmt.Sprintf("exactly one done stage is required, got %d", done)).
			WithDetail("done_stages", done)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		out[i].Order = i + 1
	}
	return out, nil
}

// InsertStage adds a stage at desiredOrder, clamped to the valid range. A
// done spec demotes the current done stage first.
func (e *Engine) InsertStage(ctx context.Context, workflowID core.WorkflowID, spec core.StageSpec, desiredOrder int) (*core.WorkflowStage, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		e.rejected("insert stage", err)
		return nil, err
	}

	var inserted *core.WorkflowStage
	err := e.store.WithTx(ctx, func(tx core.Tx) error {
		stages, err := e.lockStages(ctx, tx, workflowID)
		if err != nil {
			return err
		}
		if len(stages)+1 > e.maxStages {
			return core.ErrInvalidWorkflowSpec(fmt.Sprintf("a workflow may have at most %d stages", e.maxStages)).
				WithDetail("stages", len(stages))
		}

		if spec.IsDone {
			for _, st := range stages {
				if st.IsDone {
					if err := demote(ctx, tx, st); err != nil {
						return err
					}
				}
			}
		}

		inserted = spec.Stage(workflowID, maxOrder(stages)+1)
		if err := tx.InsertStage(ctx, inserted); err != nil {
			return fmt.Errorf("inserting stage %q: %w", spec.Name, err)
		}
		stages = append(stages, inserted)

		if err := moveWithin(ctx, tx, workflowID, stages, inserted.ID, desiredOrder); err != nil {
			return fmt.Errorf("placing stage: %w", err)
		}
		if _, err := verifyDone(ctx, tx, workflowID); err != nil {
			return err
		}
		return tx.TouchWorkflow(ctx, workflowID)
	})
	if err != nil {
		e.rejected("insert stage", err)
		return nil, err
	}

	e.logger.WithWorkflow(string(workflowID)).WithStage(string(inserted.ID)).
		Info("stage inserted", "name", inserted.Name, "order", inserted.Order, "done", inserted.IsDone)
	return inserted, nil
}

// MoveStage moves a stage to desiredOrder, clamped to [1, N]. Moving a
// stage to its current position writes nothing.
func (e *Engine) MoveStage(ctx context.Context, stageID core.StageID, desiredOrder int) (*core.WorkflowStage, error) {
	var moved *core.WorkflowStage
	var from int
	err := e.store.WithTx(ctx, func(tx core.Tx) error {
		stages, target, err := e.lockStage(ctx, tx, stageID)
		if err != nil {
			return err
		}
		from = target.Order
		if err := moveWithin(ctx, tx, target.WorkflowID, stages, target.ID, desiredOrder); err != nil {
			return fmt.Errorf("moving stage: %w", err)
		}
		moved = target
		if moved.Order != from {
			return tx.TouchWorkflow(ctx, target.WorkflowID)
		}
		return nil
	})
	if err != nil {
		e.rejected("move stage", err)
		return nil, err
	}

	e.logger.WithWorkflow(string(moved.WorkflowID)).WithStage(string(moved.ID)).
		Debug("stage moved", "from", from, "to", moved.Order)
	return moved, nil
}

// UpdateStage applies a partial update. Promoting a stage to done demotes
// the previous done stage. The done marker cannot be removed from the done
// stage directly; another stage has to be promoted instead. A category
// change re-syncs the status of every work item on the stage.
func (e *Engine) UpdateStage(ctx context.Context, stageID core.StageID, patch core.StagePatch) (*core.WorkflowStage, error) {
	var updated *core.WorkflowStage
	err := e.store.WithTx(ctx, func(tx core.Tx) error {
		stages, current, err := e.lockStage(ctx, tx, stageID)
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}

		next, promote, err := applyPatch(current, patch)
		if err != nil {
			return err
		}

		if promote {
			for _, st := range stages {
				if st.IsDone && st.ID != current.ID {
					if err := demote(ctx, tx, st); err != nil {
						return err
					}
				}
			}
		}

		if err := tx.UpdateStage(ctx, next); err != nil {
			return fmt.Errorf("updating stage: %w", err)
		}
		if next.Category != current.Category {
			n, err := tx.SyncStageStatus(ctx, next.ID, string(next.Category))
			if err != nil {
				return fmt.Errorf("syncing item status: %w", err)
			}
			e.logger.WithStage(string(next.ID)).Debug("item status synced", "status", next.Category, "items", n.Total())
		}
		*current = *next

		if patch.Order != nil {
			if err := moveWithin(ctx, tx, current.WorkflowID, stages, current.ID, *patch.Order); err != nil {
				return fmt.Errorf("moving stage: %w", err)
			}
		}

		if _, err := verifyDone(ctx, tx, current.WorkflowID); err != nil {
			return err
		}
		updated = current
		return tx.TouchWorkflow(ctx, current.WorkflowID)
	})
	if err != nil {
		e.rejected("update stage", err)
		return nil, err
	}

	e.logger.WithWorkflow(string(updated.WorkflowID)).WithStage(string(updated.ID)).
		Debug("stage updated", "order", updated.Order, "category", updated.Category)
	return updated, nil
}

// applyPatch returns the patched copy of current and whether it becomes the
// new done stage.
func applyPatch(current *core.WorkflowStage, patch core.StagePatch) (*core.WorkflowStage, bool, error) {
	next := *current

	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Category != nil {
		if !patch.Category.IsValid() {
			return nil, false, core.ErrInvalidWorkflowSpec(fmt.Sprintf("unknown stage category %q", *patch.Category))
		}
		next.Category = *patch.Category
	}
	if patch.ProgressPercent != nil {
		next.ProgressPercent = *patch.ProgressPercent
	}
	if patch.IsQA != nil {
		next.IsQA = *patch.IsQA
	}
	if patch.CountsAsWIP != nil {
		next.CountsAsWIP = *patch.CountsAsWIP
	}

	categoryDone := patch.Category != nil && *patch.Category == core.CategoryDone
	categoryNotDone := patch.Category != nil && *patch.Category != core.CategoryDone
	markDone := patch.IsDone != nil && *patch.IsDone
	unmarkDone := patch.IsDone != nil && !*patch.IsDone

	if (categoryDone && unmarkDone) || (categoryNotDone && markDone) {
		return nil, false, core.ErrInvalidWorkflowSpec("category and is_done disagree")
	}
	if current.IsDone && (categoryNotDone || unmarkDone) {
		return nil, false, core.ErrMissingDoneStage(current.WorkflowID).
			WithDetail("workflow_stage_id", string(current.ID))
	}

	promote := !current.IsDone && (categoryDone || markDone)
	if current.IsDone || promote {
		if patch.ProgressPercent != nil && *patch.ProgressPercent != 100 {
			return nil, false, core.ErrInvalidWorkflowSpec(fmt.Sprintf("stage %q: the done stage reports 100 percent", next.Name)).
				WithDetail("progress_percent", *patch.ProgressPercent)
		}
		next.Category = core.CategoryDone
		next.IsDone = true
		next.ProgressPercent = 100
	}

	spec := core.StageSpec{
		Name:            next.Name,
		Category:        next.Category,
		ProgressPercent: next.ProgressPercent,
		IsDone:          next.IsDone,
	}
	if err := spec.Validate(); err != nil {
		return nil, false, err
	}
	return &next, promote, nil
}

// DeleteStage removes an unreferenced stage and renumbers the rest. The
// done stage and the only stage of a workflow cannot be deleted.
func (e *Engine) DeleteStage(ctx context.Context, stageID core.StageID) error {
	var workflowID core.WorkflowID
	err := e.store.WithTx(ctx, func(tx core.Tx) error {
		stages, target, err := e.lockStage(ctx, tx, stageID)
		if err != nil {
			return err
		}
		workflowID = target.WorkflowID

		switch {
		case len(stages) == 1:
			return core.ErrStageInUse(stageID, "it is the only stage of its workflow")
		case target.IsDone:
			return core.ErrStageInUse(stageID, "it is the done stage of its workflow")
		}

		refs, err := tx.CountStageReferences(ctx, stageID)
		if err != nil {
			return fmt.Errorf("counting stage references: %w", err)
		}
		if refs.Total() > 0 {
			return core.ErrStageInUse(stageID, fmt.Sprintf("%d work items reference it", refs.Total())).
				WithDetail("epics", refs.Epics).
				WithDetail("tasks", refs.Tasks).
				WithDetail("subtasks", refs.Subtasks)
		}

		if err := tx.DeleteStage(ctx, stageID); err != nil {
			return fmt.Errorf("deleting stage: %w", err)
		}

		remaining := make([]*core.WorkflowStage, 0, len(stages)-1)
		for _, st := range stages {
			if st.ID != stageID {
				remaining = append(remaining, st)
			}
		}
		if final, changed := denseOrders(remaining); changed {
			if err := writeOrders(ctx, tx, workflowID, remaining, final); err != nil {
				return fmt.Errorf("renumbering stages: %w", err)
			}
		}
		return tx.TouchWorkflow(ctx, workflowID)
	})
	if err != nil {
		e.rejected("delete stage", err)
		return err
	}

	e.logger.WithWorkflow(string(workflowID)).WithStage(string(stageID)).Info("stage deleted")
	return nil
}

// DeleteWorkflow removes a workflow no project or work item references.
func (e *Engine) DeleteWorkflow(ctx context.Context, workflowID core.WorkflowID) error {
	err := e.store.WithTx(ctx, func(tx core.Tx) error {
		if _, err := tx.LockWorkflow(ctx, workflowID); err != nil {
			return err
		}
		refs, err := tx.CountWorkflowReferences(ctx, workflowID)
		if err != nil {
			return fmt.Errorf("counting workflow references: %w", err)
		}
		if refs.Projects > 0 || refs.Items.Total() > 0 {
			return core.ErrWorkflowInUse(workflowID, refs.Projects, refs.Items.Total())
		}
		return tx.DeleteWorkflow(ctx, workflowID)
	})
	if err != nil {
		e.rejected("delete workflow", err)
		return err
	}

	e.logger.WithWorkflow(string(workflowID)).Info("workflow deleted")
	return nil
}

// GetWorkflow returns a workflow and its stages in order.
func (e *Engine) GetWorkflow(ctx context.Context, workflowID core.WorkflowID) (*core.Workflow, []*core.WorkflowStage, error) {
	var wf *core.Workflow
	var stages []*core.WorkflowStage
	err := e.store.WithTx(ctx, func(tx core.Tx) error {
		var err error
		if wf, err = tx.GetWorkflow(ctx, workflowID); err != nil {
			return err
		}
		stages, err = tx.ListStages(ctx, workflowID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return wf, stages, nil
}

// ListWorkflows returns the workflows of an org.
func (e *Engine) ListWorkflows(ctx context.Context, orgID core.OrgID) ([]*core.Workflow, error) {
	var list []*core.Workflow
	err := e.store.WithTx(ctx, func(tx core.Tx) error {
		var err error
		list, err = tx.ListWorkflows(ctx, orgID)
		return err
	})
	return list, err
}

// lockStages locks a workflow and returns its stages in order.
func (e *Engine) lockStages(ctx context.Context, tx core.Tx, workflowID core.WorkflowID) ([]*core.WorkflowStage, error) {
	if _, err := tx.LockWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	stages, err := tx.ListStages(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	return stages, nil
}

// lockStage resolves the workflow of a stage, locks it and returns the
// sibling list along with the stage's entry in it.
func (e *Engine) lockStage(ctx context.Context, tx core.Tx, stageID core.StageID) ([]*core.WorkflowStage, *core.WorkflowStage, error) {
	st, err := tx.GetStage(ctx, stageID)
	if err != nil {
		return nil, nil, err
	}
	stages, err := e.lockStages(ctx, tx, st.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	for _, sibling := range stages {
		if sibling.ID == stageID {
			return stages, sibling, nil
		}
	}
	return nil, nil, core.ErrNotFound("workflow stage", string(stageID))
}

// demote strips the done marker from st and moves its items to in_progress.
func demote(ctx context.Context, tx core.Tx, st *core.WorkflowStage) error {
	st.Demote()
	if err := tx.UpdateStage(ctx, st); err != nil {
		return fmt.Errorf("demoting stage %q: %w", st.Name, err)
	}
	if _, err := tx.SyncStageStatus(ctx, st.ID, string(st.Category)); err != nil {
		return fmt.Errorf("syncing demoted stage status: %w", err)
	}
	return nil
}

// verifyDone re-reads the stages and enforces the single done stage.
func verifyDone(ctx context.Context, tx core.Tx, workflowID core.WorkflowID) ([]*core.WorkflowStage, error) {
	stages, err := tx.ListStages(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	done := 0
	for _, st := range stages {
		if st.IsDone {
			done++
		}
	}
	switch {
	case done == 0:
		return nil, core.ErrMissingDoneStage(workflowID)
	case done > 1:
		return nil, core.ErrDuplicateDoneStage(workflowID, done)
	}
	return stages, nil
}

func maxOrder(stages []*core.WorkflowStage) int {
	m := 0
	for _, st := range stages {
		if st.Order > m {
			m = st.Order
		}
	}
	return m
}

// rejected logs a failed mutation. Domain errors are expected outcomes and
// log at warn; anything else is an error.
func (e *Engine) rejected(op string, err error) {
	if core.GetCode(err) != "" {
		e.logger.Warn("operation rejected", "op", op, "code", core.GetCode(err), "error", err)
		return
	}
	e.logger.Error("operation failed", "op", op, "error", err)
}
