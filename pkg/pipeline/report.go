package pipeline

import "github.com/agpm-project/agpm/pkg/core"

// ResourceResult is the per-resource outcome of an install/update run, for
// the pipeline's end-of-run report (spec.md §4.K step 11 "Report").
type ResourceResult struct {
	ID          core.ResourceId
	Alias       string
	Kind        core.Kind
	InstalledAt string
	Skipped     bool // install=false: resolved and locked, nothing written
	Error       error
}

// Report aggregates one pipeline run's outcome across every resolved
// resource, plus the cleanup pass that followed it.
type Report struct {
	Installed []ResourceResult
	Skipped   []ResourceResult
	Failed    []ResourceResult
	Removed   []string // installed_at paths cleanup deleted
	Warnings  []string // non-fatal observations (e.g. validate's dangling references)
}

// OK reports whether every resource installed or was deliberately skipped,
// i.e. whether the run is eligible to write a lockfile (spec.md §4.K
// "per-resource install failures accumulate ... if any failed ... do NOT
// write a new lockfile").
func (r *Report) OK() bool {
	return len(r.Failed) == 0
}

func (r *Report) addSuccess(res ResourceResult) {
	if res.Skipped {
		r.Skipped = append(r.Skipped, res)
		return
	}
	r.Installed = append(r.Installed, res)
}

func (r *Report) addFailure(res ResourceResult) {
	r.Failed = append(r.Failed, res)
}
