// Package migration moves a project from one workflow to another, remapping
// or clearing the stage of every staged work item in a single transaction.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
	"github.com/hugo-lorenzo-mato/stageboard/internal/logging"
)

// Action is what happens to the items on one source stage.
type Action string

const (
	ActionRemap   Action = "remap"
	ActionClear   Action = "clear"
	ActionMissing Action = "missing"
)

// Request describes a migration.
type Request struct {
	ProjectID        core.ProjectID
	TargetWorkflowID core.WorkflowID
	Strategy         core.MigrationStrategy
	ClearUnmapped    bool
	DryRun           bool
}

// StageMapping is the planned fate of one source stage.
type StageMapping struct {
	SourceStageID    core.StageID       `json:"source_stage_id" yaml:"source_stage_id"`
	SourceStageName  string             `json:"source_stage_name" yaml:"source_stage_name"`
	SourceStageOrder int                `json:"source_stage_order" yaml:"source_stage_order"`
	TargetStageID    *core.StageID      `json:"target_stage_id" yaml:"target_stage_id"`
	TargetStageName  string             `json:"target_stage_name,omitempty" yaml:"target_stage_name,omitempty"`
	TargetCategory   core.StageCategory `json:"target_category,omitempty" yaml:"target_category,omitempty"`
	Action           Action             `json:"action" yaml:"action"`
	Items            core.ItemCounts    `json:"items" yaml:"items"`
}

// Plan is the outcome of a migration, or its preview under DryRun.
type Plan struct {
	ProjectID      core.ProjectID         `json:"project_id" yaml:"project_id"`
	FromWorkflowID *core.WorkflowID       `json:"from_workflow_id" yaml:"from_workflow_id"`
	ToWorkflowID   core.WorkflowID        `json:"to_workflow_id" yaml:"to_workflow_id"`
	Strategy       core.MigrationStrategy `json:"strategy" yaml:"strategy"`
	ClearUnmapped  bool                   `json:"clear_unmapped" yaml:"clear_unmapped"`
	DryRun         bool                   `json:"dry_run" yaml:"dry_run"`
	Applied        bool                   `json:"applied" yaml:"applied"`
	Mappings       []StageMapping         `json:"mappings" yaml:"mappings"`
	StagedCount    int                    `json:"staged_count" yaml:"staged_count"`
	RemappedCount  int                    `json:"remapped_count" yaml:"remapped_count"`
	ClearedCount   int                    `json:"cleared_count" yaml:"cleared_count"`
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the migrator logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

// Migrator runs project workflow migrations.
type Migrator struct {
	store  core.Store
	logger *logging.Logger
}

// New creates a migrator over store.
func New(store core.Store, opts ...Option) *Migrator {
	m := &Migrator{store: store, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// errDryRun rolls back the read-only transaction of a preview.
var errDryRun = errors.New("dry run")

// MigrateProjectWorkflow plans and, unless req.DryRun is set, applies the move
// of a project to req.TargetWorkflowID. The project row is locked for the
// whole operation and its workflow_id is written last. A dry run that hits a
// blocking condition while planning returns the plan built so far together
// with the error. Failures before planning starts return a nil plan.
func (m *Migrator) MigrateProjectWorkflow(ctx context.Context, req Request) (*Plan, error) {
	strategy, err := core.ParseMigrationStrategy(string(req.Strategy))
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ProjectID:     req.ProjectID,
		ToWorkflowID:  req.TargetWorkflowID,
		Strategy:      strategy,
		ClearUnmapped: req.ClearUnmapped,
		DryRun:        req.DryRun,
		Mappings:      []StageMapping{},
	}

	logger := m.logger.WithProject(string(req.ProjectID)).WithWorkflow(string(req.TargetWorkflowID))

	planned := false
	err = m.store.WithTx(ctx, func(tx core.Tx) error {
		project, err := tx.LockProject(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		plan.FromWorkflowID = project.WorkflowID

		// Held until commit so target stage categories cannot change under
		// the remap.
		target, err := tx.LockWorkflow(ctx, req.TargetWorkflowID)
		if err != nil {
			return err
		}
		if target.OrgID != project.OrgID {
			return core.ErrWorkflowOrgMismatch(target.ID, project.OrgID)
		}

		planned = true
		if err := buildPlan(ctx, tx, project, target, plan); err != nil {
			return err
		}
		if req.DryRun {
			return errDryRun
		}

		if err := apply(ctx, tx, plan); err != nil {
			return err
		}
		project.WorkflowID = &target.ID
		if err := tx.UpdateProject(ctx, project); err != nil {
			return fmt.Errorf("updating project workflow: %w", err)
		}
		plan.Applied = true
		return nil
	})

	switch {
	case errors.Is(err, errDryRun):
		logger.Debug("migration planned",
			"strategy", strategy,
			"staged", plan.StagedCount,
			"remapped", plan.RemappedCount,
			"cleared", plan.ClearedCount,
		)
		return plan, nil
	case err != nil:
		if core.GetCode(err) != "" {
			logger.Warn("migration rejected", "code", core.GetCode(err), "error", err)
		} else {
			logger.Error("migration failed", "error", err)
		}
		if req.DryRun && planned {
			return plan, err
		}
		return nil, err
	}

	logger.Info("project workflow migrated",
		"strategy", strategy,
		"staged", plan.StagedCount,
		"remapped", plan.RemappedCount,
		"cleared", plan.ClearedCount,
	)
	return plan, nil
}

// buildPlan fills plan.Mappings with one entry per distinct referenced
// stage, sorted by source order. Every blocking condition is reported after
// as much of the plan as possible has been built.
func buildPlan(ctx context.Context, tx core.Tx, project *core.Project, target *core.Workflow, plan *Plan) error {
	staged, err := tx.ListStagedItems(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("listing staged items: %w", err)
	}
	plan.StagedCount = len(staged)
	if len(staged) == 0 {
		return nil
	}

	counts := make(map[core.StageID]*core.ItemCounts)
	for _, item := range staged {
		c, ok := counts[item.StageID]
		if !ok {
			c = &core.ItemCounts{}
			counts[item.StageID] = c
		}
		c.Inc(item.Ref.Kind)
	}

	sources := make([]*core.WorkflowStage, 0, len(counts))
	for id := range counts {
		st, err := tx.GetStage(ctx, id)
		if err != nil {
			return err
		}
		sources = append(sources, st)
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Order != sources[j].Order {
			return sources[i].Order < sources[j].Order
		}
		return sources[i].ID < sources[j].ID
	})

	if plan.Strategy == core.StrategyClear {
		for _, src := range sources {
			plan.addMapping(src, nil, ActionClear, *counts[src.ID])
		}
		return nil
	}

	if project.WorkflowID == nil {
		return core.ErrProjectWorkflowMissing(project.ID)
	}
	targetStages, err := tx.ListStages(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("listing target stages: %w", err)
	}
	byOrder := make(map[int]*core.WorkflowStage, len(targetStages))
	for _, st := range targetStages {
		byOrder[st.Order] = st
	}

	var blocking error
	for _, src := range sources {
		if src.WorkflowID != *project.WorkflowID {
			return core.ErrAmbiguousSourceWorkflow(project.ID, src.ID).
				WithDetail("stage_workflow_id", string(src.WorkflowID))
		}
		dst, ok := byOrder[src.Order]
		switch {
		case ok:
			plan.addMapping(src, dst, ActionRemap, *counts[src.ID])
		case plan.ClearUnmapped:
			plan.addMapping(src, nil, ActionClear, *counts[src.ID])
		default:
			plan.addMapping(src, nil, ActionMissing, *counts[src.ID])
			if blocking == nil {
				blocking = core.ErrStageOrderTargetMissing(target.ID, src.Order).
					WithDetail("source_stage_id", string(src.ID))
			}
		}
	}
	return blocking
}

func (p *Plan) addMapping(src, dst *core.WorkflowStage, action Action, items core.ItemCounts) {
	mapping := StageMapping{
		SourceStageID:    src.ID,
		SourceStageName:  src.Name,
		SourceStageOrder: src.Order,
		Action:           action,
		Items:            items,
	}
	if dst != nil {
		id := dst.ID
		mapping.TargetStageID = &id
		mapping.TargetStageName = dst.Name
		mapping.TargetCategory = dst.Category
	}
	switch action {
	case ActionRemap:
		p.RemappedCount += items.Total()
	case ActionClear:
		p.ClearedCount += items.Total()
	}
	p.Mappings = append(p.Mappings, mapping)
}

// apply performs the planned writes and replaces the planned counts with the
// rows actually touched.
func apply(ctx context.Context, tx core.Tx, plan *Plan) error {
	if plan.Strategy == core.StrategyClear {
		n, err := tx.ClearProjectStages(ctx, plan.ProjectID)
		if err != nil {
			return fmt.Errorf("clearing stages: %w", err)
		}
		plan.ClearedCount = n.Total()
		return nil
	}

	var remapped, cleared int
	for _, mp := range plan.Mappings {
		switch mp.Action {
		case ActionRemap:
			n, err := tx.RemapProjectStage(ctx, plan.ProjectID, mp.SourceStageID, *mp.TargetStageID, string(mp.TargetCategory))
			if err != nil {
				return fmt.Errorf("remapping stage %s: %w", mp.SourceStageID, err)
			}
			remapped += n.Total()
		case ActionClear:
			n, err := tx.ClearProjectStage(ctx, plan.ProjectID, mp.SourceStageID)
			if err != nil {
				return fmt.Errorf("clearing stage %s: %w", mp.SourceStageID, err)
			}
			cleared += n.Total()
		}
	}
	plan.RemappedCount, plan.ClearedCount = remapped, cleared
	return nil
}
