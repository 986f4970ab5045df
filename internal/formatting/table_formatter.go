package formatting

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"theiacloud/pkg/apis/theiacloud/v1beta"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
	// now defaults to time.Now; ages are relative to it.
	now func() time.Time
}

func (f *TableFormatter) FormatAppDefinitions(w io.Writer, items []v1beta.AppDefinition) error {
	if len(items) == 0 {
		return f.formatEmptyMessage(w, "app definitions")
	}
	t := f.createTable(w, "NAME", "IMAGE", "MIN", "MAX", "TIMEOUT", "STATUS", "AGE")
	for _, item := range items {
		maxInstances := "-"
		if item.Spec.MaxInstances != nil {
			maxInstances = strconv.Itoa(*item.Spec.MaxInstances)
		}
		timeout := "-"
		if limit := item.Spec.TimeoutLimit(); limit > 0 {
			timeout = fmt.Sprintf("%dm", limit)
		}
		t.AppendRow(table.Row{
			item.Name,
			Truncate(item.Spec.Image, 40),
			item.Spec.MinInstances,
			maxInstances,
			timeout,
			f.status(item.Status.OperatorStatus),
			Age(item.CreationTimestamp.Time, f.clock()),
		})
	}
	t.Render()
	return nil
}

func (f *TableFormatter) FormatSessions(w io.Writer, items []v1beta.Session) error {
	if len(items) == 0 {
		return f.formatEmptyMessage(w, "sessions")
	}
	t := f.createTable(w, "NAME", "USER", "APP", "WORKSPACE", "URL", "ERROR", "STATUS", "AGE")
	for _, item := range items {
		t.AppendRow(table.Row{
			item.Name,
			item.Spec.User,
			item.Spec.AppDefinition,
			orDash(item.Spec.Workspace),
			orDash(item.Status.URL),
			orDash(Truncate(item.Status.Error, 40)),
			f.status(item.Status.OperatorStatus),
			Age(item.CreationTimestamp.Time, f.clock()),
		})
	}
	t.Render()
	return nil
}

func (f *TableFormatter) FormatWorkspaces(w io.Writer, items []v1beta.Workspace) error {
	if len(items) == 0 {
		return f.formatEmptyMessage(w, "workspaces")
	}
	t := f.createTable(w, "NAME", "USER", "APP", "STORAGE", "ERROR", "STATUS", "AGE")
	for _, item := range items {
		t.AppendRow(table.Row{
			item.Name,
			item.Spec.User,
			orDash(item.Spec.AppDefinition),
			orDash(item.Spec.Storage),
			orDash(Truncate(item.Status.Error, 40)),
			f.status(item.Status.OperatorStatus),
			Age(item.CreationTimestamp.Time, f.clock()),
		})
	}
	t.Render()
	return nil
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(w io.Writer, headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)

	row := make(table.Row, 0, len(headers))
	for _, header := range headers {
		if f.options.Color {
			row = append(row, text.FgHiCyan.Sprint(header))
		} else {
			row = append(row, header)
		}
	}
	t.AppendHeader(row)
	return t
}

func (f *TableFormatter) formatEmptyMessage(w io.Writer, kind string) error {
	message := fmt.Sprintf("No %s found", kind)
	if f.options.Color {
		message = text.FgYellow.Sprint(message)
	}
	_, err := fmt.Fprintln(w, message)
	return err
}

func (f *TableFormatter) status(status v1beta.OperatorStatus) string {
	if status == "" {
		status = v1beta.StatusNew
	}
	if !f.options.Color {
		return string(status)
	}
	switch status {
	case v1beta.StatusHandled:
		return text.FgGreen.Sprint(status)
	case v1beta.StatusError:
		return text.FgRed.Sprint(status)
	default:
		return text.FgYellow.Sprint(status)
	}
}

func (f *TableFormatter) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
