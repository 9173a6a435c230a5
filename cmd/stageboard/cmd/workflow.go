package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/stageboard/internal/audit"
	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
	"github.com/hugo-lorenzo-mato/stageboard/internal/fsutil"
)

// maxWorkflowFileBytes caps --file documents.
const maxWorkflowFileBytes = 1 << 20

// workflowFile is the YAML document accepted by `workflow create --file`.
type workflowFile struct {
	Name   string           `yaml:"name"`
	Stages []core.StageSpec `yaml:"stages"`
}

// workflowView is the structured output of workflow commands.
type workflowView struct {
	Workflow *core.Workflow        `json:"workflow" yaml:"workflow"`
	Stages   []*core.WorkflowStage `json:"stages" yaml:"stages"`
}

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage workflows",
}

var workflowCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a workflow with its stages",
	Long: `Create a workflow owned by an org.

Stages come from --file (a YAML document with name and stages) or, without
it, from workflow.default_stages in the configuration. Declared orders are
advisory: stages are renumbered 1..N and exactly one must be done.`,
	Args: cobra.NoArgs,
	RunE: runWorkflowCreate,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workflows of an org",
	Args:  cobra.NoArgs,
	RunE:  runWorkflowList,
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Show a workflow and its stages",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowShow,
}

var workflowDeleteCmd = &cobra.Command{
	Use:   "delete <workflow-id>",
	Short: "Delete a workflow no project or work item uses",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowDelete,
}

var (
	workflowOrg  string
	workflowName string
	workflowFrom string
)

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowCreateCmd, workflowListCmd, workflowShowCmd, workflowDeleteCmd)

	workflowCreateCmd.Flags().StringVar(&workflowOrg, "org", "", "owning org id")
	workflowCreateCmd.Flags().StringVar(&workflowName, "name", "", "workflow name (overrides the name in --file)")
	workflowCreateCmd.Flags().StringVarP(&workflowFrom, "file", "f", "", "YAML file with name and stages")
	_ = workflowCreateCmd.MarkFlagRequired("org")
	addOutputFlag(workflowCreateCmd)

	workflowListCmd.Flags().StringVar(&workflowOrg, "org", "", "org id")
	_ = workflowListCmd.MarkFlagRequired("org")
	addOutputFlag(workflowListCmd)

	addOutputFlag(workflowShowCmd)
}

func loadWorkflowFile(path string) (*workflowFile, error) {
	data, err := fsutil.ReadFileScoped(path, maxWorkflowFileBytes)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	var wf workflowFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parsing workflow file %s: %w", path, err)
	}
	return &wf, nil
}

func runWorkflowCreate(cmd *cobra.Command, _ []string) error {
	if err := checkOutputFormat(outputFormat); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	name := workflowName
	specs := a.cfg.Workflow.DefaultStages
	if workflowFrom != "" {
		file, err := loadWorkflowFile(workflowFrom)
		if err != nil {
			return err
		}
		if strings.TrimSpace(name) == "" {
			name = file.Name
		}
		specs = file.Stages
	}

	ctx := cmd.Context()
	wf, created, err := a.engine().CreateWorkflow(ctx, core.OrgID(workflowOrg), name, actorPtr(), specs)
	if err != nil {
		return err
	}
	a.record(ctx, audit.TypeWorkflowCreated, map[string]any{
		"org_id":      string(wf.OrgID),
		"workflow_id": string(wf.ID),
		"name":        wf.Name,
		"stages":      len(created),
	})

	return printWorkflow(cmd, wf, created)
}

func runWorkflowList(cmd *cobra.Command, _ []string) error {
	if err := checkOutputFormat(outputFormat); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	workflows, err := a.engine().ListWorkflows(cmd.Context(), core.OrgID(workflowOrg))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat != formatTable {
		if workflows == nil {
			workflows = []*core.Workflow{}
		}
		return writeStructured(out, outputFormat, workflows)
	}
	if len(workflows) == 0 {
		fmt.Fprintln(out, stylesFor(out).faint.Render("No workflows for org "+workflowOrg))
		return nil
	}
	rows := make([][]string, 0, len(workflows))
	for _, wf := range workflows {
		rows = append(rows, []string{
			string(wf.ID),
			wf.Name,
			optional(wf.CreatedBy),
			wf.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Created By", "Updated"}, rows, nil))
	return nil
}

func runWorkflowShow(cmd *cobra.Command, args []string) error {
	if err := checkOutputFormat(outputFormat); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	wf, stages, err := a.engine().GetWorkflow(cmd.Context(), core.WorkflowID(args[0]))
	if err != nil {
		return err
	}
	return printWorkflow(cmd, wf, stages)
}

func runWorkflowDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	id := core.WorkflowID(args[0])
	if err := a.engine().DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	a.record(ctx, audit.TypeWorkflowDeleted, map[string]any{"workflow_id": string(id)})

	printSuccess(cmd.OutOrStdout(), "Deleted workflow %s", id)
	return nil
}

func printWorkflow(cmd *cobra.Command, wf *core.Workflow, stages []*core.WorkflowStage) error {
	out := cmd.OutOrStdout()
	if outputFormat != formatTable {
		return writeStructured(out, outputFormat, workflowView{Workflow: wf, Stages: stages})
	}
	printHeading(out, wf.Name)
	fmt.Fprintf(out, "ID:     %s\n", wf.ID)
	fmt.Fprintf(out, "Org:    %s\n", wf.OrgID)
	fmt.Fprintf(out, "Stages: %s\n", strconv.Itoa(len(stages)))
	fmt.Fprintln(out, stagesTable(stages))
	return nil
}
