package cli

import (
	"fmt"
	"os"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/pipeline"
	"github.com/agpm-project/agpm/pkg/stringutil"
)

// maxReportedErrorLen bounds how much of a single failure's error text we
// print; git/network errors can run to several KB of remote output.
const maxReportedErrorLen = 500

// printReport renders a pipeline.Report the way install/update/validate all
// want it: successes and skips collapse to one summary line unless verbose,
// failures and warnings always print in full.
func printReport(report *pipeline.Report, quiet, verbose bool) {
	if report == nil {
		return
	}
	if verbose {
		for _, r := range report.Installed {
			fmt.Println(console.FormatSuccessMessage(fmt.Sprintf("%s %s -> %s", r.Kind, r.Alias, r.InstalledAt)))
		}
		for _, r := range report.Skipped {
			fmt.Println(console.FormatInfoMessage(fmt.Sprintf("%s %s (embedded, not installed)", r.Kind, r.Alias)))
		}
	}
	for _, path := range report.Removed {
		if !quiet {
			fmt.Println(console.FormatInfoMessage(fmt.Sprintf("removed %s", path)))
		}
	}
	for _, w := range report.Warnings {
		fmt.Fprintln(os.Stderr, console.FormatWarningMessage(w))
	}
	for _, r := range report.Failed {
		msg := stringutil.Truncate(stringutil.SanitizeErrorMessage(fmt.Sprint(r.Error)), maxReportedErrorLen)
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(fmt.Sprintf("%s %s: %s", r.Kind, r.Alias, msg)))
	}
	if !quiet {
		fmt.Println(console.FormatCountMessage(fmt.Sprintf("%d installed, %d skipped, %d failed, %d removed",
			len(report.Installed), len(report.Skipped), len(report.Failed), len(report.Removed))))
	}
}
