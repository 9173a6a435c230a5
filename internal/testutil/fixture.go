package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hugo-lorenzo-mato/stageboard/internal/adapters/store"
	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

// OpenStore opens a migrated SQLite store in a per-test directory.
func OpenStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "stageboard.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Fixture seeds rows directly through the store, bypassing the engine.
type Fixture struct {
	t     *testing.T
	Store core.Store
	Ctx   context.Context
}

// NewFixture returns a fixture over a fresh SQLite store.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{t: t, Store: OpenStore(t), Ctx: context.Background()}
}

// NewFixtureWithStore returns a fixture over an existing store.
func NewFixtureWithStore(t *testing.T, s core.Store) *Fixture {
	return &Fixture{t: t, Store: s, Ctx: context.Background()}
}

func (f *Fixture) tx(fn func(tx core.Tx) error) {
	f.t.Helper()
	if err := f.Store.WithTx(f.Ctx, fn); err != nil {
		f.t.Fatalf("fixture: %v", err)
	}
}

// FourStageSpecs is the backlog / in progress / qa / done pipeline with
// percents 0, 33, 67 and 100.
func FourStageSpecs() []core.StageSpec {
	return []core.StageSpec{
		{Name: "Backlog", Order: 1, Category: core.CategoryBacklog, ProgressPercent: 0},
		{Name: "In Progress", Order: 2, Category: core.CategoryInProgress, ProgressPercent: 33},
		{Name: "QA", Order: 3, Category: core.CategoryQA, ProgressPercent: 67, IsQA: true},
		{Name: "Done", Order: 4, Category: core.CategoryDone, ProgressPercent: 100, IsDone: true},
	}
}

// Workflow inserts a workflow whose stages take the spec orders verbatim.
func (f *Fixture) Workflow(org core.OrgID, name string, specs ...core.StageSpec) (*core.Workflow, []*core.WorkflowStage) {
	f.t.Helper()
	if len(specs) == 0 {
		specs = FourStageSpecs()
	}
	wf := &core.Workflow{OrgID: org, Name: name}
	var stages []*core.WorkflowStage
	f.tx(func(tx core.Tx) error {
		if err := tx.InsertWorkflow(f.Ctx, wf); err != nil {
			return err
		}
		for _, spec := range specs {
			spec = spec.Normalize()
			st := spec.Stage(wf.ID, spec.Order)
			if err := tx.InsertStage(f.Ctx, st); err != nil {
				return err
			}
			stages = append(stages, st)
		}
		return nil
	})
	return wf, stages
}

// Project inserts a project, optionally bound to a workflow.
func (f *Fixture) Project(org core.OrgID, workflowID *core.WorkflowID, policy core.ProgressPolicy) *core.Project {
	f.t.Helper()
	p := &core.Project{OrgID: org, Name: fmt.Sprintf("project-%s", org), WorkflowID: workflowID, ProgressPolicy: policy}
	f.tx(func(tx core.Tx) error { return tx.InsertProject(f.Ctx, p) })
	return p
}

// Epic inserts an epic.
func (f *Fixture) Epic(projectID core.ProjectID, stage *core.WorkflowStage) *core.Epic {
	f.t.Helper()
	e := &core.Epic{ProjectID: projectID, Title: "epic"}
	applyStage(stage, &e.WorkflowStageID, &e.Status)
	f.tx(func(tx core.Tx) error { return tx.InsertEpic(f.Ctx, e) })
	return e
}

// Task inserts a task, staged when stage is non-nil.
func (f *Fixture) Task(epicID core.EpicID, stage *core.WorkflowStage) *core.Task {
	f.t.Helper()
	tk := &core.Task{EpicID: epicID, Title: "task"}
	applyStage(stage, &tk.WorkflowStageID, &tk.Status)
	f.tx(func(tx core.Tx) error { return tx.InsertTask(f.Ctx, tk) })
	return tk
}

// Subtask inserts a subtask, staged when stage is non-nil.
func (f *Fixture) Subtask(taskID core.TaskID, stage *core.WorkflowStage) *core.Subtask {
	f.t.Helper()
	s := &core.Subtask{TaskID: taskID, Title: "subtask"}
	applyStage(stage, &s.WorkflowStageID, &s.Status)
	f.tx(func(tx core.Tx) error { return tx.InsertSubtask(f.Ctx, s) })
	return s
}

func applyStage(stage *core.WorkflowStage, ref **core.StageID, status *string) {
	if stage == nil {
		return
	}
	id := stage.ID
	*ref = &id
	*status = string(stage.Category)
}

// Stages reloads the stages of a workflow in order.
func (f *Fixture) Stages(workflowID core.WorkflowID) []*core.WorkflowStage {
	f.t.Helper()
	var stages []*core.WorkflowStage
	f.tx(func(tx core.Tx) error {
		var err error
		stages, err = tx.ListStages(f.Ctx, workflowID)
		return err
	})
	return stages
}

// ReloadProject reads a project back.
func (f *Fixture) ReloadProject(id core.ProjectID) *core.Project {
	f.t.Helper()
	var p *core.Project
	f.tx(func(tx core.Tx) error {
		var err error
		p, err = tx.GetProject(f.Ctx, id)
		return err
	})
	return p
}

// ReloadEpic reads an epic back.
func (f *Fixture) ReloadEpic(id core.EpicID) *core.Epic {
	f.t.Helper()
	var e *core.Epic
	f.tx(func(tx core.Tx) error {
		var err error
		e, err = tx.GetEpic(f.Ctx, id)
		return err
	})
	return e
}

// ReloadTask reads a task back.
func (f *Fixture) ReloadTask(id core.TaskID) *core.Task {
	f.t.Helper()
	var tk *core.Task
	f.tx(func(tx core.Tx) error {
		var err error
		tk, err = tx.GetTask(f.Ctx, id)
		return err
	})
	return tk
}

// ReloadSubtask reads a subtask back.
func (f *Fixture) ReloadSubtask(id core.SubtaskID) *core.Subtask {
	f.t.Helper()
	var s *core.Subtask
	f.tx(func(tx core.Tx) error {
		var err error
		s, err = tx.GetSubtask(f.Ctx, id)
		return err
	})
	return s
}

// AssertDenseOrders fails unless the workflow's orders are exactly 1..N and
// exactly one stage is a coherent done stage.
func (f *Fixture) AssertDenseOrders(workflowID core.WorkflowID) []*core.WorkflowStage {
	f.t.Helper()
	stages := f.Stages(workflowID)
	done := 0
	for i, st := range stages {
		if st.Order != i+1 {
			f.t.Fatalf("stage %q has order %d, want %d", st.Name, st.Order, i+1)
		}
		if !st.Coherent() {
			f.t.Fatalf("stage %q is incoherent: %+v", st.Name, st)
		}
		if st.IsDone {
			done++
		}
	}
	if done != 1 {
		f.t.Fatalf("workflow %s has %d done stages, want 1", workflowID, done)
	}
	return stages
}

// StageNames returns the names of stages in order.
func StageNames(stages []*core.WorkflowStage) []string {
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.Name
	}
	return names
}

// StageByName finds a stage by name or fails.
func StageByName(t *testing.T, stages []*core.WorkflowStage, name string) *core.WorkflowStage {
	t.Helper()
	for _, st := range stages {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("stage %q not found", name)
	return nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
