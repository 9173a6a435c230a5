package cmd

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stageboard/internal/audit"
	"github.com/hugo-lorenzo-mato/stageboard/internal/config"
	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
	"github.com/hugo-lorenzo-mato/stageboard/internal/service/migration"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-workflow",
	Short: "Move a project to another workflow",
	Long: `Move a project to another workflow of the same org in one transaction.

Strategies:
  order  remap every staged item to the target stage with the same order.
         A source order missing in the target aborts the migration unless
         --clear-unmapped is set, in which case those items are unstaged.
  clear  unstage every item of the project.

--dry-run prints the plan and writes nothing. A blocked dry run still
prints the plan, marking the stages that have no target.`,
	Args: cobra.NoArgs,
	RunE: runMigrateWorkflow,
}

var (
	migrateProjectID     string
	migrateWorkflowID    string
	migrateStrategy      string
	migrateClearUnmapped bool
	migrateDryRun        bool
	migratePlanOut       string
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVar(&migrateProjectID, "project-id", "", "project to migrate")
	migrateCmd.Flags().StringVar(&migrateWorkflowID, "workflow-id", "", "target workflow")
	migrateCmd.Flags().StringVar(&migrateStrategy, "strategy", string(core.StrategyOrder), "migration strategy (order, clear)")
	migrateCmd.Flags().BoolVar(&migrateClearUnmapped, "clear-unmapped", false, "unstage items whose order has no target stage")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "print the plan without writing")
	migrateCmd.Flags().StringVar(&migratePlanOut, "plan-out", "", "also write the plan to a file (.yaml/.yml for YAML, JSON otherwise)")
	_ = migrateCmd.MarkFlagRequired("project-id")
	_ = migrateCmd.MarkFlagRequired("workflow-id")
	addOutputFlag(migrateCmd)
}

func runMigrateWorkflow(cmd *cobra.Command, _ []string) error {
	if err := checkOutputFormat(outputFormat); err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	plan, migrateErr := a.migrator().MigrateProjectWorkflow(ctx, migration.Request{
		ProjectID:        core.ProjectID(migrateProjectID),
		TargetWorkflowID: core.WorkflowID(migrateWorkflowID),
		Strategy:         core.MigrationStrategy(migrateStrategy),
		ClearUnmapped:    migrateClearUnmapped,
		DryRun:           migrateDryRun,
	})
	if plan == nil {
		return migrateErr
	}

	if migratePlanOut != "" {
		if err := writePlanFile(migratePlanOut, plan); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat != formatTable {
		if err := writeStructured(out, outputFormat, plan); err != nil {
			return err
		}
	} else {
		printPlan(out, plan)
	}
	if migrateErr != nil {
		return migrateErr
	}

	if plan.Applied {
		a.record(ctx, audit.TypeProjectWorkflowMigrated, map[string]any{
			"project_id":       string(plan.ProjectID),
			"from_workflow_id": optional(plan.FromWorkflowID),
			"to_workflow_id":   string(plan.ToWorkflowID),
			"strategy":         string(plan.Strategy),
			"remapped":         plan.RemappedCount,
			"cleared":          plan.ClearedCount,
		})
	}
	return nil
}

// writePlanFile writes the plan atomically, as YAML or JSON by extension.
func writePlanFile(path string, plan *migration.Plan) error {
	format := formatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = formatYAML
	}
	var buf bytes.Buffer
	if err := writeStructured(&buf, format, plan); err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	if err := config.AtomicWrite(path, buf.Bytes()); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}
	return nil
}

func printPlan(w io.Writer, plan *migration.Plan) {
	s := stylesFor(w)
	title := "Migration plan"
	if plan.Applied {
		title = "Migration applied"
	}
	printHeading(w, title)
	fmt.Fprintf(w, "Project:  %s\n", plan.ProjectID)
	fmt.Fprintf(w, "From:     %s\n", optional(plan.FromWorkflowID))
	fmt.Fprintf(w, "To:       %s\n", plan.ToWorkflowID)
	fmt.Fprintf(w, "Strategy: %s\n", plan.Strategy)

	if len(plan.Mappings) == 0 {
		fmt.Fprintln(w, s.faint.Render("No staged items"))
	} else {
		rows := make([][]string, 0, len(plan.Mappings))
		for _, mp := range plan.Mappings {
			target := "-"
			if mp.TargetStageID != nil {
				target = mp.TargetStageName
			}
			action := string(mp.Action)
			if mp.Action == migration.ActionMissing {
				action = s.err.Render(action)
			}
			rows = append(rows, []string{
				strconv.Itoa(mp.SourceStageOrder),
				mp.SourceStageName,
				target,
				action,
				strconv.Itoa(mp.Items.Epics),
				strconv.Itoa(mp.Items.Tasks),
				strconv.Itoa(mp.Items.Subtasks),
			})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"Order", "Source", "Target", "Action", "Epics", "Tasks", "Subtasks"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
		))
	}

	summary := fmt.Sprintf("%d staged, %d remapped, %d cleared", plan.StagedCount, plan.RemappedCount, plan.ClearedCount)
	if plan.Applied {
		fmt.Fprintln(w, s.success.Render(summary))
	} else {
		fmt.Fprintln(w, summary)
		if plan.DryRun {
			fmt.Fprintln(w, s.faint.Render("Dry run: nothing was written"))
		}
	}
}
