package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stageboard/internal/audit"
	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

var assignCmd = &cobra.Command{
	Use:   "assign <epic|task|subtask> <item-id> [stage-id]",
	Short: "Put a work item on a stage",
	Long: `Put a work item on a stage of its project's workflow. The item's status
follows the stage category. --clear takes the item off its stage and keeps
its status.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runAssign,
}

var assignClear bool

func init() {
	rootCmd.AddCommand(assignCmd)
	assignCmd.Flags().BoolVar(&assignClear, "clear", false, "remove the item from its stage")
}

func runAssign(cmd *cobra.Command, args []string) error {
	kind, err := core.ParseItemKind(args[0])
	if err != nil {
		return err
	}
	ref := core.ItemRef{Kind: kind, ID: args[1]}

	switch {
	case assignClear && len(args) == 3:
		return fmt.Errorf("--clear does not take a stage id")
	case !assignClear && len(args) == 2:
		return fmt.Errorf("a stage id is required unless --clear is set")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if assignClear {
		if err := a.validator().ClearStage(ctx, ref); err != nil {
			return err
		}
		a.record(ctx, audit.TypeItemStageCleared, map[string]any{
			"item_kind": string(ref.Kind),
			"item_id":   ref.ID,
		})
		printSuccess(out, "Cleared stage of %s", ref)
		return nil
	}

	st, err := a.validator().Assign(ctx, ref, core.StageID(args[2]))
	if err != nil {
		return err
	}
	a.record(ctx, audit.TypeItemStageAssigned, map[string]any{
		"item_kind":   string(ref.Kind),
		"item_id":     ref.ID,
		"workflow_id": string(st.WorkflowID),
		"stage_id":    string(st.ID),
		"status":      string(st.Category),
	})
	printSuccess(out, "Moved %s to %q (%s)", ref, st.Name, st.Category)
	return nil
}
