package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// printer renders command results as a table, JSON or YAML.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case "table", "json", "yaml":
		return &printer{w: w, format: format}, nil
	case "":
		return &printer{w: w, format: "table"}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// print writes v. In table format, table renders the human view.
func (p *printer) print(v any, table func(tw *tabwriter.Writer)) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func (p *printer) message(format string, args ...any) {
	if p.format == "table" {
		fmt.Fprintf(p.w, format+"\n", args...)
	}
}

var (
	styleGood = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// status colors a status word. It is only used in the last table column.
func status(s string) string {
	switch strings.ToLower(s) {
	case "available", "active", "fulfilled":
		return styleGood.Render(s)
	case "pending", "reserved", "loaned":
		return styleWarn.Render(s)
	case "overdue", "lost":
		return styleBad.Render(s)
	}
	return styleDim.Render(s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pageFooter(tw io.Writer, shown, total, page, pages int) {
	if pages > 1 {
		fmt.Fprintf(tw, "\n(%d of %d shown, page %d/%d)\n", shown, total, page, pages)
	}
}
