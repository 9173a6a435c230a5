package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
	"github.com/hugo-lorenzo-mato/stageboard/internal/service/progress"
)

var progressCmd = &cobra.Command{
	Use:   "progress <project|epic|task|subtask> <id>",
	Short: "Explain the progress of a project or work item",
	Long: `Compute progress and explain it. Every value comes with the policy that
produced it and a reason code; "none" means the value is fully backed by a
well-formed workflow.

A project shows every epic and task. Epics are computed in parallel, bounded
by progress.concurrency.`,
	Args: cobra.ExactArgs(2),
	RunE: runProgress,
}

func init() {
	rootCmd.AddCommand(progressCmd)
	addOutputFlag(progressCmd)
}

func runProgress(cmd *cobra.Command, args []string) error {
	if err := checkOutputFormat(outputFormat); err != nil {
		return err
	}
	scope, id := args[0], args[1]
	if scope != "project" {
		if _, err := core.ParseItemKind(scope); err != nil {
			return err
		}
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	svc := a.progress()
	out := cmd.OutOrStdout()

	if scope == "project" {
		report, err := svc.ProjectReport(ctx, core.ProjectID(id))
		if err != nil {
			return err
		}
		if outputFormat != formatTable {
			return writeStructured(out, outputFormat, report)
		}
		printProjectReport(out, report)
		return nil
	}

	var item *progress.ItemProgress
	switch core.ItemKind(scope) {
	case core.KindEpic:
		item, err = svc.EpicProgress(ctx, core.EpicID(id))
	case core.KindTask:
		item, err = svc.TaskProgress(ctx, core.TaskID(id))
	case core.KindSubtask:
		item, err = svc.SubtaskProgress(ctx, core.SubtaskID(id))
	}
	if err != nil {
		return err
	}
	if outputFormat != formatTable {
		return writeStructured(out, outputFormat, item)
	}
	fmt.Fprintln(out, progressTable([][]string{progressRow(item, "")}))
	return nil
}

func progressRow(p *progress.ItemProgress, indent string) []string {
	return []string{
		indent + string(p.Ref.Kind),
		p.Title,
		percent(p.Progress),
		string(p.Reason()),
	}
}

func progressTable(rows [][]string) string {
	return renderTable(
		[]string{"Kind", "Title", "Progress", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func printProjectReport(w io.Writer, report *progress.ProjectReport) {
	s := stylesFor(w)
	printHeading(w, "Project "+string(report.ProjectID))
	fmt.Fprintf(w, "Workflow: %s\n", optional(report.WorkflowID))
	fmt.Fprintf(w, "Policy:   %s\n", report.Policy)
	if report.ContextReason != progress.ReasonNone {
		fmt.Fprintln(w, s.warn.Render("Workflow context: "+string(report.ContextReason)))
	}
	if len(report.Epics) == 0 {
		fmt.Fprintln(w, s.faint.Render("No epics"))
		return
	}

	var rows [][]string
	for _, epic := range report.Epics {
		rows = append(rows, progressRow(&epic.ItemProgress, ""))
		for _, task := range epic.Tasks {
			rows = append(rows, progressRow(task, "  "))
		}
	}
	fmt.Fprintln(w, progressTable(rows))
}
