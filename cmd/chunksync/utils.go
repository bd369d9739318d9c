package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/chunksync/internal/reconcile"
	"github.com/openmined/chunksync/internal/syncer"
)

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

const chunksyncArt = `
      __              __
 ____/ /  __ _____  / /__ ___ __ _____  ____
/ __/ _ \/ // / _ \/  '_/(_-</ // / _ \/ __/
\__/_//_/\_,_/_//_/_/\_\/___/\_, /_//_/\__/
                            /___/`

// printResult writes the outcome of a pass, one line per failed path.
func printResult(w io.Writer, result *syncer.Result) {
	failed := result.FailedList()

	fmt.Fprintf(w, "%s %s synced, %s unchanged, %s skipped, %s failed (%s writes, %s uploads) in %s\n",
		gray.Render(result.RunID),
		green.Render(humanize.Comma(int64(len(result.SucceededPaths)))),
		cyan.Render(humanize.Comma(int64(len(result.Unchanged)))),
		gray.Render(humanize.Comma(int64(len(result.Skipped)))),
		failedStyle(len(failed)).Render(humanize.Comma(int64(len(failed)))),
		humanize.Comma(int64(result.Writes)),
		humanize.Comma(int64(result.Uploads)),
		result.Duration.Round(time.Millisecond),
	)

	for _, path := range failed {
		f := result.FailedPaths[path]
		fmt.Fprintf(w, "  %s %s %s\n", red.Render("FAILED"), path, gray.Render(f.Error()))
	}
	for _, path := range slices.Sorted(maps.Keys(result.StaleTails)) {
		fmt.Fprintf(w, "  %s %s chunks %v left behind\n", yellow.Render("STALE"), path, result.StaleTails[path])
	}
}

// printPlans writes the write plan of each inline path.
func printPlans(w io.Writer, result *syncer.Result) {
	for _, path := range slices.Sorted(maps.Keys(result.Plans)) {
		plan := result.Plans[path]
		if plan.IsNoOp() {
			fmt.Fprintf(w, "%s %s\n", gray.Render("="), path)
			continue
		}
		fmt.Fprintf(w, "%s %s %s\n", yellow.Render("~"), path, gray.Render(describeSteps(plan)))
	}
}

func describeSteps(plan *reconcile.WritePlan) string {
	var creates, overwrites []string
	for _, s := range plan.Steps {
		switch s.Action {
		case reconcile.Create:
			creates = append(creates, fmt.Sprint(s.Index))
		case reconcile.Overwrite:
			overwrites = append(overwrites, fmt.Sprint(s.Index))
		}
	}

	var parts []string
	if len(creates) > 0 {
		parts = append(parts, "create "+strings.Join(creates, ","))
	}
	if len(overwrites) > 0 {
		parts = append(parts, "overwrite "+strings.Join(overwrites, ","))
	}
	if len(plan.StaleTail) > 0 {
		parts = append(parts, fmt.Sprintf("stale %v", plan.StaleTail))
	}
	return strings.Join(parts, "; ")
}

func failedStyle(n int) lipgloss.Style {
	if n > 0 {
		return red
	}
	return green
}
