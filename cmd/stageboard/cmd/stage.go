package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stageboard/internal/audit"
	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Edit the stages of a workflow",
	Long: `Edit the stages of a workflow. Every edit keeps orders dense (1..N) and
keeps exactly one done stage per workflow.`,
}

var stageInsertCmd = &cobra.Command{
	Use:   "insert <workflow-id>",
	Short: "Insert a stage at an order",
	Long: `Insert a stage into a workflow. --order is clamped to [1, N+1]; leaving it
at 0 appends the stage. Inserting a done stage demotes the current one.`,
	Args: cobra.ExactArgs(1),
	RunE: runStageInsert,
}

var stageMoveCmd = &cobra.Command{
	Use:   "move <stage-id>",
	Short: "Move a stage to another order",
	Args:  cobra.ExactArgs(1),
	RunE:  runStageMove,
}

var stageUpdateCmd = &cobra.Command{
	Use:   "update <stage-id>",
	Short: "Change stage attributes",
	Long: `Change the attributes of a stage. Only flags given on the command line are
applied. --done promotes the stage and demotes the previous done stage;
removing the done marker directly is rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runStageUpdate,
}

var stageDeleteCmd = &cobra.Command{
	Use:   "delete <stage-id>",
	Short: "Delete an unreferenced stage",
	Args:  cobra.ExactArgs(1),
	RunE:  runStageDelete,
}

var (
	stageName     string
	stageCategory string
	stagePercent  int
	stageDone     bool
	stageQA       bool
	stageWIP      bool
	stageOrder    int
)

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.AddCommand(stageInsertCmd, stageMoveCmd, stageUpdateCmd, stageDeleteCmd)

	for _, c := range []*cobra.Command{stageInsertCmd, stageUpdateCmd} {
		c.Flags().StringVar(&stageName, "name", "", "stage name")
		c.Flags().StringVar(&stageCategory, "category", "", "category (backlog, in_progress, qa, done)")
		c.Flags().IntVar(&stagePercent, "percent", 0, "progress percent (0-100)")
		c.Flags().BoolVar(&stageDone, "done", false, "mark as the done stage")
		c.Flags().BoolVar(&stageQA, "qa", false, "mark as a QA stage")
		c.Flags().BoolVar(&stageWIP, "wip", false, "count items on the stage as work in progress")
		c.Flags().IntVar(&stageOrder, "order", 0, "1-based position")
		addOutputFlag(c)
	}
	_ = stageInsertCmd.MarkFlagRequired("name")

	stageMoveCmd.Flags().IntVar(&stageOrder, "order", 0, "1-based position")
	_ = stageMoveCmd.MarkFlagRequired("order")
	addOutputFlag(stageMoveCmd)
}

func runStageInsert(cmd *cobra.Command, args []string) error {
	if err := checkOutputFormat(outputFormat); err != nil {
		return err
	}
	spec := core.StageSpec{
		Name:            stageName,
		Category:        core.CategoryInProgress,
		ProgressPercent: stagePercent,
		IsDone:          stageDone,
		IsQA:            stageQA,
		CountsAsWIP:     stageWIP,
	}
	if stageCategory != "" {
		c, err := core.ParseStageCategory(stageCategory)
		if err != nil {
			return err
		}
		spec.Category = c
	}
	order := stageOrder
	if order == 0 {
		order = math.MaxInt32
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	workflowID := core.WorkflowID(args[0])
	st, err := a.engine().InsertStage(ctx, workflowID, spec, order)
	if err != nil {
		return err
	}
	a.record(ctx, audit.TypeStageInserted, map[string]any{
		"workflow_id": string(workflowID),
		"stage_id":    string(st.ID),
		"name":        st.Name,
		"order":       st.Order,
		"is_done":     st.IsDone,
	})
	return printStageResult(cmd, a, "Inserted", st)
}

func runStageMove(cmd *cobra.Command, args []string) error {
	if err := checkOutputFormat(outputFormat); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	st, err := a.engine().MoveStage(ctx, core.StageID(args[0]), stageOrder)
	if err != nil {
		return err
	}
	a.record(ctx, audit.TypeStageMoved, map[string]any{
		"workflow_id": string(st.WorkflowID),
		"stage_id":    string(st.ID),
		"order":       st.Order,
	})
	return printStageResult(cmd, a, "Moved", st)
}

// stagePatchFromFlags builds a patch from the flags set on the command line.
func stagePatchFromFlags(cmd *cobra.Command) (core.StagePatch, error) {
	var patch core.StagePatch
	flags := cmd.Flags()
	if flags.Changed("name") {
		patch.Name = &stageName
	}
	if flags.Changed("category") {
		c, err := core.ParseStageCategory(stageCategory)
		if err != nil {
			return patch, err
		}
		patch.Category = &c
	}
	if flags.Changed("percent") {
		patch.ProgressPercent = &stagePercent
	}
	if flags.Changed("done") {
		patch.IsDone = &stageDone
	}
	if flags.Changed("qa") {
		patch.IsQA = &stageQA
	}
	if flags.Changed("wip") {
		patch.CountsAsWIP = &stageWIP
	}
	if flags.Changed("order") {
		patch.Order = &stageOrder
	}
	return patch, nil
}

func runStageUpdate(cmd *cobra.Command, args []string) error {
	if err := checkOutputFormat(outputFormat); err != nil {
		return err
	}
	patch, err := stagePatchFromFlags(cmd)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	st, err := a.engine().UpdateStage(ctx, core.StageID(args[0]), patch)
	if err != nil {
		return err
	}
	if !patch.IsEmpty() {
		a.record(ctx, audit.TypeStageUpdated, map[string]any{
			"workflow_id": string(st.WorkflowID),
			"stage_id":    string(st.ID),
			"category":    string(st.Category),
			"order":       st.Order,
			"is_done":     st.IsDone,
		})
	}
	return printStageResult(cmd, a, "Updated", st)
}

func runStageDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	id := core.StageID(args[0])
	if err := a.engine().DeleteStage(ctx, id); err != nil {
		return err
	}
	a.record(ctx, audit.TypeStageDeleted, map[string]any{"stage_id": string(id)})

	printSuccess(cmd.OutOrStdout(), "Deleted stage %s", id)
	return nil
}

// printStageResult prints the edited stage followed by the workflow's
// stages after renumbering.
func printStageResult(cmd *cobra.Command, a *app, verb string, st *core.WorkflowStage) error {
	out := cmd.OutOrStdout()
	if outputFormat != formatTable {
		return writeStructured(out, outputFormat, st)
	}
	_, stages, err := a.engine().GetWorkflow(cmd.Context(), st.WorkflowID)
	if err != nil {
		return err
	}
	printSuccess(out, "%s stage %q at order %d", verb, st.Name, st.Order)
	fmt.Fprintln(out, stagesTable(stages))
	return nil
}
