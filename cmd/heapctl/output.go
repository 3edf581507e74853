package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	passColor  = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	titleColor = color.New(color.FgCyan, color.Bold)
	dimColor   = color.New(color.Faint)
)

func printTitle(w io.Writer, format string, args ...any) {
	titleColor.Fprintf(w, format, args...)
	fmt.Fprintln(w)
}

func printStatus(w io.Writer, ok bool, name, detail string) {
	if ok {
		passColor.Fprint(w, "PASS")
	} else {
		failColor.Fprint(w, "FAIL")
	}
	fmt.Fprintf(w, " %-12s ", name)
	if ok {
		dimColor.Fprintln(w, detail)
	} else {
		fmt.Fprintln(w, detail)
	}
}

// printTable writes rows as aligned columns. The first row is the header.
func printTable(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		line := strings.TrimRight(strings.Join(cells, "  "), " ")
		if r == 0 {
			titleColor.Fprintln(w, line)
		} else {
			fmt.Fprintln(w, line)
		}
	}
}
