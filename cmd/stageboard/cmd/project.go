package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stageboard/internal/audit"
	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage project workflow settings",
}

var projectSetWorkflowCmd = &cobra.Command{
	Use:   "set-workflow <project-id>",
	Short: "Point a project at another workflow or detach it",
	Long: `Point a project at another workflow of the same org, or detach it with
--detach. The change is refused while any of the project's work items still
sits on a stage of the current workflow; use migrate-workflow to move them.`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectSetWorkflow,
}

var (
	projectWorkflowID string
	projectDetach     bool
	projectName       string
	projectPolicy     string
)

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectSetWorkflowCmd)

	projectSetWorkflowCmd.Flags().StringVar(&projectWorkflowID, "workflow-id", "", "workflow to attach")
	projectSetWorkflowCmd.Flags().BoolVar(&projectDetach, "detach", false, "detach the project from its workflow")
	projectSetWorkflowCmd.Flags().StringVar(&projectName, "name", "", "also rename the project")
	projectSetWorkflowCmd.Flags().StringVar(&projectPolicy, "policy", "", "also set the progress policy (subtasks_rollup, workflow_stage)")
	projectSetWorkflowCmd.MarkFlagsMutuallyExclusive("workflow-id", "detach")
	projectSetWorkflowCmd.MarkFlagsOneRequired("workflow-id", "detach")
}

func runProjectSetWorkflow(cmd *cobra.Command, args []string) error {
	var target *core.WorkflowID
	if !projectDetach {
		id := core.WorkflowID(projectWorkflowID)
		target = &id
	}

	var patch core.ProjectPatch
	if cmd.Flags().Changed("name") {
		patch.Name = &projectName
	}
	if cmd.Flags().Changed("policy") {
		policy := core.ProgressPolicy(projectPolicy)
		patch.ProgressPolicy = &policy
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	projectID := core.ProjectID(args[0])
	project, err := a.validator().ReassignProjectWorkflow(ctx, projectID, target, patch)
	if err != nil {
		return err
	}
	a.record(ctx, audit.TypeProjectWorkflowChanged, map[string]any{
		"project_id":      string(project.ID),
		"workflow_id":     optional(project.WorkflowID),
		"progress_policy": string(project.ProgressPolicy),
	})

	out := cmd.OutOrStdout()
	if project.WorkflowID == nil {
		printSuccess(out, "Detached project %s from its workflow", project.ID)
		return nil
	}
	printSuccess(out, "Project %s now uses workflow %s", project.ID, *project.WorkflowID)
	fmt.Fprintf(out, "Progress policy: %s\n", project.ProgressPolicy)
	return nil
}
