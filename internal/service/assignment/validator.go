// Package assignment places work items on stages and moves projects between
// workflows, keeping every staged item inside its project's workflow.
package assignment

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
	"github.com/hugo-lorenzo-mato/stageboard/internal/logging"
)

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the validator logger.
func WithLogger(l *logging.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// Validator guards stage assignments.
type Validator struct {
	store  core.Store
	logger *logging.Logger
}

// New creates a validator over store.
func New(store core.Store, opts ...Option) *Validator {
	v := &Validator{store: store, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AssignStageToTask puts a task on a stage of its project's workflow.
func (v *Validator) AssignStageToTask(ctx context.Context, taskID core.TaskID, stageID core.StageID) (*core.WorkflowStage, error) {
	return v.Assign(ctx, core.ItemRef{Kind: core.KindTask, ID: string(taskID)}, stageID)
}

// AssignStageToSubtask puts a subtask on a stage of its project's workflow.
func (v *Validator) AssignStageToSubtask(ctx context.Context, subtaskID core.SubtaskID, stageID core.StageID) (*core.WorkflowStage, error) {
	return v.Assign(ctx, core.ItemRef{Kind: core.KindSubtask, ID: string(subtaskID)}, stageID)
}

// AssignStageToEpic puts an epic on a stage of its project's workflow.
func (v *Validator) AssignStageToEpic(ctx context.Context, epicID core.EpicID, stageID core.StageID) (*core.WorkflowStage, error) {
	return v.Assign(ctx, core.ItemRef{Kind: core.KindEpic, ID: string(epicID)}, stageID)
}

// Assign sets the item's stage and mirrors the stage category into its
// status. The project row and its workflow stay locked until the write
// commits, so neither a workflow reassignment nor a stage edit can interleave.
func (v *Validator) Assign(ctx context.Context, ref core.ItemRef, stageID core.StageID) (*core.WorkflowStage, error) {
	var stage *core.WorkflowStage
	var projectID core.ProjectID
	err := v.store.WithTx(ctx, func(tx core.Tx) error {
		var err error
		projectID, err = tx.ItemProject(ctx, ref)
		if err != nil {
			return err
		}
		project, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		// Stage edits hold the workflow lock while they resync item status,
		// so the category read below cannot go stale before the write.
		if project.WorkflowID != nil {
			if _, err := tx.LockWorkflow(ctx, *project.WorkflowID); err != nil {
				return err
			}
		}
		if stage, err = tx.GetStage(ctx, stageID); err != nil {
			return err
		}

		if project.WorkflowID == nil || *project.WorkflowID != stage.WorkflowID {
			return core.ErrCrossWorkflowStage(ref, stageID).
				WithDetail("stage_workflow_id", string(stage.WorkflowID))
		}

		status := string(stage.Category)
		return tx.SetItemStage(ctx, ref, &stage.ID, &status)
	})
	if err != nil {
		v.rejected("assign stage", ref, err)
		return nil, err
	}

	v.logger.WithProject(string(projectID)).WithStage(string(stage.ID)).
		Debug("stage assigned", "item", ref.String(), "status", stage.Category)
	return stage, nil
}

// ClearStage removes the item from its stage. The status is kept.
func (v *Validator) ClearStage(ctx context.Context, ref core.ItemRef) error {
	err := v.store.WithTx(ctx, func(tx core.Tx) error {
		projectID, err := tx.ItemProject(ctx, ref)
		if err != nil {
			return err
		}
		if _, err := tx.LockProject(ctx, projectID); err != nil {
			return err
		}
		return tx.SetItemStage(ctx, ref, nil, nil)
	})
	if err != nil {
		v.rejected("clear stage", ref, err)
		return err
	}

	v.logger.Debug("stage cleared", "item", ref.String())
	return nil
}

// ReassignProjectWorkflow points a project at another workflow, or detaches
// it when workflowID is nil, applying patch in the same write. It is refused
// while any of the project's items still sits on a stage of the current
// workflow.
func (v *Validator) ReassignProjectWorkflow(ctx context.Context, projectID core.ProjectID, workflowID *core.WorkflowID, patch core.ProjectPatch) (*core.Project, error) {
	var project *core.Project
	err := v.store.WithTx(ctx, func(tx core.Tx) error {
		var err error
		if project, err = tx.LockProject(ctx, projectID); err != nil {
			return err
		}

		if workflowID != nil {
			wf, err := tx.GetWorkflow(ctx, *workflowID)
			if err != nil {
				return err
			}
			if wf.OrgID != project.OrgID {
				return core.ErrWorkflowOrgMismatch(wf.ID, project.OrgID)
			}
		}

		if project.WorkflowID != nil && !sameWorkflow(project.WorkflowID, workflowID) {
			counts, err := tx.CountProjectItemsOnWorkflow(ctx, projectID, *project.WorkflowID)
			if err != nil {
				return fmt.Errorf("counting staged items: %w", err)
			}
			if counts.Total() > 0 {
				return core.ErrWorkflowStillInUse(projectID, *project.WorkflowID, counts.Total()).
					WithDetail("epics", counts.Epics).
					WithDetail("tasks", counts.Tasks).
					WithDetail("subtasks", counts.Subtasks)
			}
		}

		if err := applyProjectPatch(project, patch); err != nil {
			return err
		}
		project.WorkflowID = workflowID
		return tx.UpdateProject(ctx, project)
	})
	if err != nil {
		v.logger.WithProject(string(projectID)).Warn("workflow reassignment rejected", "code", core.GetCode(err), "error", err)
		return nil, err
	}

	v.logger.WithProject(string(projectID)).Info("project workflow changed", "workflow_id", workflowLabel(workflowID))
	return project, nil
}

func applyProjectPatch(p *core.Project, patch core.ProjectPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return core.ErrValidation(core.CodeInvalidProject, "project name is required")
		}
		p.Name = name
	}
	if patch.ProgressPolicy != nil {
		policy, err := core.ParseProgressPolicy(string(*patch.ProgressPolicy))
		if err != nil {
			return err
		}
		p.ProgressPolicy = policy
	}
	return nil
}

func sameWorkflow(a, b *core.WorkflowID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func workflowLabel(id *core.WorkflowID) string {
	if id == nil {
		return "none"
	}
	return string(*id)
}

func (v *Validator) rejected(op string, ref core.ItemRef, err error) {
	if core.GetCode(err) != "" {
		v.logger.Warn("operation rejected", "op", op, "item", ref.String(), "code", core.GetCode(err), "error", err)
		return
	}
	v.logger.Error("operation failed", "op", op, "item", ref.String(), "error", err)
}
