package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/agent365/a365ctl/internal/provision"
)

var (
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	failedColor = color.New(color.FgRed)
	skipColor   = color.New(color.Faint)
)

func statusColor(s provision.Status) *color.Color {
	switch s {
	case provision.StatusOK:
		return okColor
	case provision.StatusWarn:
		return warnColor
	case provision.StatusFailed:
		return failedColor
	default:
		return skipColor
	}
}

// renderResult prints the per-step summary, then warnings and errors. The
// remediation command for every failed step is part of the summary so the
// operator knows what to re-run.
func renderResult(w io.Writer, res *provision.Result) {
	fmt.Fprintln(w)
	for _, step := range res.Steps {
		c := statusColor(step.Status)
		line := fmt.Sprintf("  %-8s %s", step.Status, step.Name)
		if step.AlreadyExisted {
			line += " (already existed)"
		}
		c.Fprintln(w, line)
		if step.Detail != "" {
			fmt.Fprintf(w, "           %s\n", step.Detail)
		}
		if step.Remedy != "" && step.Status == provision.StatusFailed {
			fmt.Fprintf(w, "           retry with: %s\n", step.Remedy)
		}
	}

	if len(res.Warnings) > 0 {
		warnColor.Fprintf(w, "\n%d warning(s):\n", len(res.Warnings))
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	if len(res.Errors) > 0 {
		failedColor.Fprintf(w, "\n%d error(s):\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	fmt.Fprintln(w)
}
