package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

// Output formats accepted by --output.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var outputFormat string

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "output", "o", formatTable, "output format (table, json, yaml)")
}

func checkOutputFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %q is not structured", format)
	}
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// cliStyles are resolved per writer so that pipes and files get plain text.
type cliStyles struct {
	heading lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	faint   lipgloss.Style
}

func stylesFor(w io.Writer) cliStyles {
	r := lipgloss.NewRenderer(w)
	return cliStyles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("11")),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		faint:   r.NewStyle().Faint(true),
	}
}

func printHeading(w io.Writer, title string) {
	fmt.Fprintln(w, stylesFor(w).heading.Render(title))
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, stylesFor(w).success.Render(fmt.Sprintf(format, args...)))
}

// printError prints domain errors as "CODE: message" and anything else as
// "error: message".
func printError(w io.Writer, err error) {
	s := stylesFor(w)
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		fmt.Fprintf(w, "%s %s\n", s.err.Render(domErr.Code+":"), domErr.Message)
		return
	}
	fmt.Fprintf(w, "%s %s\n", s.err.Render("error:"), err)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func percent(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}

func optional[T ~string](v *T) string {
	if v == nil {
		return "-"
	}
	return string(*v)
}

func stagesTable(stages []*core.WorkflowStage) string {
	rows := make([][]string, 0, len(stages))
	for _, st := range stages {
		rows = append(rows, []string{
			strconv.Itoa(st.Order),
			st.Name,
			string(st.Category),
			strconv.Itoa(st.ProgressPercent),
			yesNo(st.IsDone),
			yesNo(st.IsQA),
			yesNo(st.CountsAsWIP),
			string(st.ID),
		})
	}
	return renderTable(
		[]string{"Order", "Name", "Category", "Percent", "Done", "QA", "WIP", "ID"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	)
}
