package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/richardjlyon/ayda/pkg/pipeline"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// printSummary writes the outcome of an import run.
func printSummary(w io.Writer, s *pipeline.Summary) {
	r := s.Result
	fmt.Fprintf(w, "\n%s %s\n", bold("Workspace:"), s.Workspace)
	fmt.Fprintf(w, "  %s %d\n", green("uploaded:"), len(r.Succeeded))
	if n := len(r.Failed); n > 0 {
		fmt.Fprintf(w, "  %s %d\n", red("failed:  "), n)
	} else {
		fmt.Fprintf(w, "  %s 0\n", gray("failed:  "))
	}

	switch {
	case s.Embedded:
		fmt.Fprintf(w, "  %s %d documents\n", green("embedded:"), len(r.Succeeded))
	case s.EmbedErr != nil && s.Discarded:
		fmt.Fprintf(w, "  %s embedding failed, workspace discarded\n", red("embedded:"))
	case s.EmbedErr != nil:
		fmt.Fprintf(w, "  %s embedding failed\n", red("embedded:"))
	case s.Stage != pipeline.StageDone:
		fmt.Fprintf(w, "  %s skipped (run interrupted)\n", yellow("embedded:"))
	default:
		fmt.Fprintf(w, "  %s nothing to embed\n", gray("embedded:"))
	}

	if s.Log != nil {
		fmt.Fprintf(w, "  %s %s\n", yellow("failures logged to"), s.Log.Path)
	}
	if s.LogErr != nil {
		fmt.Fprintf(w, "  %s %v\n", red("failure log not written:"), s.LogErr)
	}
	fmt.Fprintf(w, "  %s %s\n", gray("run"), gray(s.RunID+" in "+s.Duration.Round(time.Millisecond).String()))
}
