package progress

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
	"github.com/hugo-lorenzo-mato/stageboard/internal/logging"
)

// DefaultConcurrency bounds how many epics a report computes at once.
const DefaultConcurrency = 4

// Why is the explanation attached to a computed value: a *StageWhy or a
// *RollupWhy.
type Why interface {
	ReasonCode() Reason
}

// ItemProgress is the progress of one work item.
type ItemProgress struct {
	Ref      core.ItemRef `json:"ref" yaml:"ref"`
	Title    string       `json:"title" yaml:"title"`
	Progress float64      `json:"progress" yaml:"progress"`
	Why      Why          `json:"why" yaml:"why"`
}

// Reason returns the explanation's reason code.
func (p *ItemProgress) Reason() Reason {
	if p.Why == nil {
		return ReasonNone
	}
	return p.Why.ReasonCode()
}

// EpicReport is an epic with the progress of each of its tasks.
type EpicReport struct {
	ItemProgress `yaml:",inline"`
	Tasks        []*ItemProgress `json:"tasks" yaml:"tasks"`
}

// ProjectReport is the progress of every epic and task of a project.
type ProjectReport struct {
	ProjectID     core.ProjectID      `json:"project_id" yaml:"project_id"`
	WorkflowID    *core.WorkflowID    `json:"workflow_id" yaml:"workflow_id"`
	Policy        core.ProgressPolicy `json:"progress_policy" yaml:"progress_policy"`
	ContextReason Reason              `json:"context_reason" yaml:"context_reason"`
	Epics         []*EpicReport       `json:"epics" yaml:"epics"`
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency sets how many epics a report computes at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service loads work items from the store and applies the project or epic
// progress policy before calling the calculator.
type Service struct {
	store       core.Store
	logger      *logging.Logger
	concurrency int
}

// NewService creates a progress service over store.
func NewService(store core.Store, opts ...Option) *Service {
	s := &Service{store: store, logger: logging.NewNop(), concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scope is the project-level data shared by every item of a project.
type scope struct {
	project *core.Project
	wctx    *WorkflowProgressContext
	reason  Reason
}

func loadScope(ctx context.Context, tx core.Tx, projectID core.ProjectID) (*scope, error) {
	project, err := tx.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sc := &scope{project: project, reason: ReasonNone}
	if project.WorkflowID == nil {
		return sc, nil
	}
	stages, err := tx.ListStages(ctx, *project.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	sc.wctx, sc.reason = BuildWorkflowProgressContext(*project.WorkflowID, stages)
	return sc, nil
}

func (sc *scope) stage(stageID *core.StageID, effective core.ProgressPolicy) (float64, Why) {
	value, why := ComputeSubtaskProgress(sc.project.WorkflowID, sc.wctx, sc.reason, stageID)
	why.EffectivePolicy = effective
	return value, why
}

func (sc *scope) rollup(children []*core.StageID) (float64, Why) {
	value, why := ComputeRollupProgress(sc.project.WorkflowID, sc.wctx, sc.reason, children)
	why.EffectivePolicy = core.PolicySubtasksRollup
	return value, why
}

func (sc *scope) epicPolicy(e *core.Epic) core.ProgressPolicy {
	if e.ProgressPolicy != nil {
		return *e.ProgressPolicy
	}
	return sc.project.ProgressPolicy
}

// task computes a task under the project policy.
func (sc *scope) task(ctx context.Context, tx core.Tx, t *core.Task) (*ItemProgress, error) {
	out := &ItemProgress{Ref: core.ItemRef{Kind: core.KindTask, ID: string(t.ID)}, Title: t.Title}
	if sc.project.ProgressPolicy == core.PolicyWorkflowStage {
		out.Progress, out.Why = sc.stage(t.WorkflowStageID, core.PolicyWorkflowStage)
		return out, nil
	}

	subtasks, err := tx.ListSubtasks(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("listing subtasks of %s: %w", t.ID, err)
	}
	children := make([]*core.StageID, len(subtasks))
	for i, st := range subtasks {
		children[i] = st.WorkflowStageID
	}
	out.Progress, out.Why = sc.rollup(children)
	return out, nil
}

// epic computes an epic under its own policy, falling back to the project's.
func (sc *scope) epic(ctx context.Context, tx core.Tx, e *core.Epic) (*ItemProgress, error) {
	out := &ItemProgress{Ref: core.ItemRef{Kind: core.KindEpic, ID: string(e.ID)}, Title: e.Title}
	if sc.epicPolicy(e) == core.PolicyWorkflowStage {
		out.Progress, out.Why = sc.stage(e.WorkflowStageID, core.PolicyWorkflowStage)
		return out, nil
	}

	children, err := tx.ListEpicSubtaskStages(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("listing subtasks of %s: %w", e.ID, err)
	}
	out.Progress, out.Why = sc.rollup(children)
	return out, nil
}

// SubtaskProgress returns the progress of a subtask from its own stage.
func (s *Service) SubtaskProgress(ctx context.Context, id core.SubtaskID) (*ItemProgress, error) {
	var out *ItemProgress
	err := s.store.WithTx(ctx, func(tx core.Tx) error {
		sub, err := tx.GetSubtask(ctx, id)
		if err != nil {
			return err
		}
		projectID, err := tx.ItemProject(ctx, core.ItemRef{Kind: core.KindSubtask, ID: string(id)})
		if err != nil {
			return err
		}
		sc, err := loadScope(ctx, tx, projectID)
		if err != nil {
			return err
		}
		out = &ItemProgress{Ref: core.ItemRef{Kind: core.KindSubtask, ID: string(sub.ID)}, Title: sub.Title}
		out.Progress, out.Why = sc.stage(sub.WorkflowStageID, core.PolicyWorkflowStage)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TaskProgress returns the progress of a task. Under the workflow_stage
// policy the task's own stage is used; otherwise its subtasks are averaged.
func (s *Service) TaskProgress(ctx context.Context, id core.TaskID) (*ItemProgress, error) {
	var out *ItemProgress
	err := s.store.WithTx(ctx, func(tx core.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		epic, err := tx.GetEpic(ctx, task.EpicID)
		if err != nil {
			return err
		}
		sc, err := loadScope(ctx, tx, epic.ProjectID)
		if err != nil {
			return err
		}
		out, err = sc.task(ctx, tx, task)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EpicProgress returns the progress of an epic. Under the workflow_stage
// policy the epic's own stage is used; otherwise every subtask of every task
// of the epic is averaged.
func (s *Service) EpicProgress(ctx context.Context, id core.EpicID) (*ItemProgress, error) {
	var out *ItemProgress
	err := s.store.WithTx(ctx, func(tx core.Tx) error {
		epic, err := tx.GetEpic(ctx, id)
		if err != nil {
			return err
		}
		sc, err := loadScope(ctx, tx, epic.ProjectID)
		if err != nil {
			return err
		}
		out, err = sc.epic(ctx, tx, epic)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProjectReport computes every epic and task of a project against one shared
// workflow context. Epics are computed concurrently.
func (s *Service) ProjectReport(ctx context.Context, id core.ProjectID) (*ProjectReport, error) {
	var (
		sc    *scope
		epics []*core.Epic
	)
	err := s.store.WithTx(ctx, func(tx core.Tx) error {
		var err error
		if sc, err = loadScope(ctx, tx, id); err != nil {
			return err
		}
		epics, err = tx.ListEpics(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &ProjectReport{
		ProjectID:     sc.project.ID,
		WorkflowID:    sc.project.WorkflowID,
		Policy:        sc.project.ProgressPolicy,
		ContextReason: sc.reason,
		Epics:         make([]*EpicReport, len(epics)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, epic := range epics {
		i, epic := i, epic
		g.Go(func() error {
			er, err := s.epicReport(gctx, sc, epic)
			if err != nil {
				return fmt.Errorf("epic %s: %w", epic.ID, err)
			}
			report.Epics[i] = er
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.WithProject(string(id)).Debug("progress report computed",
		"epics", len(report.Epics),
		"context_reason", sc.reason,
	)
	return report, nil
}

func (s *Service) epicReport(ctx context.Context, sc *scope, epic *core.Epic) (*EpicReport, error) {
	var er *EpicReport
	err := s.store.WithTx(ctx, func(tx core.Tx) error {
		ep, err := sc.epic(ctx, tx, epic)
		if err != nil {
			return err
		}
		tasks, err := tx.ListTasks(ctx, epic.ID)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		er = &EpicReport{ItemProgress: *ep, Tasks: make([]*ItemProgress, 0, len(tasks))}
		for _, t := range tasks {
			tp, err := sc.task(ctx, tx, t)
			if err != nil {
				return err
			}
			er.Tasks = append(er.Tasks, tp)
		}
		return nil
	})
	return er, err
}
