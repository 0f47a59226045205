package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/constants"
	"github.com/agpm-project/agpm/pkg/lockfile"
	"github.com/agpm-project/agpm/pkg/manifest"
	"github.com/agpm-project/agpm/pkg/pipeline"
	"github.com/agpm-project/agpm/pkg/repoutil"
	"github.com/agpm-project/agpm/pkg/sliceutil"
)

// validationResult is what `validate` reports, in both its text and
// --format json renderings. Errors/Warnings reuse console's category and
// severity vocabulary so --format text renders through
// console.FormatValidationSummary instead of a one-off formatter.
type validationResult struct {
	Valid    bool                      `json:"valid"`
	Errors   []console.ValidationError `json:"errors,omitempty"`
	Warnings []console.ValidationError `json:"warnings,omitempty"`
}

func schemaError(msg string) console.ValidationError {
	return console.ValidationError{Category: "schema", Severity: "critical", Message: msg}
}

func networkWarning(msg string) console.ValidationError {
	return console.ValidationError{Category: "network", Severity: "medium", Message: msg}
}

func lockWarning(msg string) console.ValidationError {
	return console.ValidationError{Category: "validation", Severity: "low", Message: msg}
}

func engineError(kind, alias string, cause error) console.ValidationError {
	return console.ValidationError{
		Category: "engine",
		Severity: "high",
		Message:  fmt.Sprintf("%s %s: %v", kind, alias, cause),
		Hint:     "run with --verbose to see the full resolution trace",
	}
}

func engineWarning(msg string) console.ValidationError {
	return console.ValidationError{Category: "engine", Severity: "low", Message: msg}
}

func strictWarning() console.ValidationError {
	return console.ValidationError{
		Category: "security",
		Severity: "medium",
		Message:  "warnings treated as failures under --strict",
		Hint:     "drop --strict or resolve the warnings above",
	}
}

// NewValidateCommand builds `agpm validate`.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check agpm.toml structure, and optionally sources, paths, the lockfile, or full rendering",
		Long: `validate always checks agpm.toml's structure (one version selector per
dependency, every source reference declared). --sources additionally
confirms every declared source is reachable; --resolve runs full version
resolution and transitive discovery; --render goes all the way through
templating and dangling-reference checking (--paths is an alias for this);
--check-lock compares agpm.lock against agpm.toml without touching the
network. None of these ever write to the project tree or agpm.lock.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolve, _ := cmd.Flags().GetBool("resolve")
			render, _ := cmd.Flags().GetBool("render")
			paths, _ := cmd.Flags().GetBool("paths")
			sources, _ := cmd.Flags().GetBool("sources")
			checkLock, _ := cmd.Flags().GetBool("check-lock")
			strict, _ := cmd.Flags().GetBool("strict")
			format, _ := cmd.Flags().GetString("format")
			quiet, _ := cmd.Flags().GetBool("quiet")
			verbose, _ := cmd.Flags().GetBool("verbose")
			render = render || paths

			if !sliceutil.Contains([]string{"text", "json"}, format) {
				exitWithCode(fmt.Errorf("unknown --format %q", format), constants.ExitInvocationError)
			}

			dir, err := projectDir()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			manifestPath := filepath.Join(dir, manifest.FileName)
			if len(args) == 1 {
				manifestPath = args[0]
				dir = filepath.Dir(manifestPath)
			}

			result := validationResult{Valid: true}

			m, err := manifest.Load(manifestPath)
			if err != nil {
				result.Valid = false
				result.Errors = append(result.Errors, schemaError(err.Error()))
				emitValidation(result, format, verbose)
				exitWithCode(nil, constants.ExitValidationFailure)
			}
			if err := m.Validate(); err != nil {
				result.Valid = false
				result.Errors = append(result.Errors, schemaError(err.Error()))
			}

			if sources && result.Valid {
				p, err := newPipeline()
				if err != nil {
					exitWithCode(err, exitCodeForError(err))
				}
				for name, url := range m.Sources {
					if _, err := p.Cache.EnsureSource(context.Background(), url); err != nil {
						label := name
						if owner, repo, slugErr := repoutil.ParseGitHubRepoURL(url); slugErr == nil {
							label = fmt.Sprintf("%s (%s/%s)", name, owner, repo)
						}
						result.Warnings = append(result.Warnings, networkWarning(fmt.Sprintf("source %s unreachable: %v", label, err)))
					}
				}
			}

			if checkLock {
				lf, err := lockfile.Load(filepath.Join(dir, lockfile.FileName))
				if err != nil {
					result.Valid = false
					result.Errors = append(result.Errors, schemaError(err.Error()))
				} else {
					for _, reason := range lockfile.Diagnose(m, lf) {
						result.Warnings = append(result.Warnings, lockWarning(reason.Error()))
					}
				}
			}

			if result.Valid && (resolve || render) {
				p, err := newPipeline()
				if err != nil {
					exitWithCode(err, exitCodeForError(err))
				}
				// validate's positional argument is a manifest path override
				// (already folded into dir/manifestPath above), not an alias
				// filter — validate always checks every dependency.
				report, err := p.ValidateRender(context.Background(), pipeline.Options{
					ProjectDir: dir,
				})
				if err != nil {
					result.Valid = false
					result.Errors = append(result.Errors, engineError("resolve", "*", err))
				}
				if report != nil {
					for _, r := range report.Failed {
						result.Errors = append(result.Errors, engineError(string(r.Kind), r.Alias, r.Error))
					}
					for _, w := range report.Warnings {
						result.Warnings = append(result.Warnings, engineWarning(w))
					}
				}
				if verbose && report != nil {
					printReport(report, quiet, verbose)
				}
			}

			if strict && len(result.Warnings) > 0 {
				result.Valid = false
				result.Errors = append(result.Errors, strictWarning())
			}

			if !quiet {
				emitValidation(result, format, verbose)
			}
			if !result.Valid {
				exitWithCode(nil, constants.ExitValidationFailure)
			}
			return nil
		},
	}

	cmd.Flags().Bool("resolve", false, "resolve every dependency to an exact commit")
	cmd.Flags().Bool("render", false, "resolve, render, and check that every cross-reference resolves")
	cmd.Flags().Bool("paths", false, "alias for --render: check that every path and cross-reference resolves")
	cmd.Flags().Bool("sources", false, "confirm every declared source is reachable")
	cmd.Flags().Bool("check-lock", false, "compare agpm.lock against agpm.toml without touching the network")
	cmd.Flags().Bool("strict", false, "treat warnings (unreachable sources, stale lockfile entries, dangling references) as failures")
	cmd.Flags().String("format", "text", "output format: text|json")
	cmd.Flags().Bool("quiet", false, "suppress non-error output")

	return cmd
}

// emitValidation renders a validationResult either as JSON or, for text
// output, through console.FormatValidationSummary — errors get the
// severity/category breakdown and fix-order summary, warnings (which that
// formatter doesn't itself print, see pkg/console/validation_summary.go)
// are listed below it the way validate always has.
func emitValidation(result validationResult, format string, verbose bool) {
	if format == "json" {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	if result.Valid && len(result.Warnings) == 0 {
		fmt.Println(console.FormatSuccessMessage("agpm.toml is valid"))
		return
	}
	if len(result.Errors) > 0 {
		summary := console.FormatValidationSummary(&console.ValidationResults{Errors: result.Errors}, verbose)
		fmt.Fprint(os.Stderr, summary)
	}
	for _, w := range result.Warnings {
		fmt.Println(console.FormatWarningMessage(w.Message))
	}
	if result.Valid {
		fmt.Println(console.FormatInfoMessage("agpm.toml is valid, with warnings"))
	}
}
