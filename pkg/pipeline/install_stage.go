package pipeline

import (
	"path/filepath"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/agpm-project/agpm/pkg/installer"
	"github.com/agpm-project/agpm/pkg/manifest"
)

// installStage writes every rendered resource into the project tree with
// bounded parallelism, serializing writes to any shared merge-target file
// so two resources merging into the same settings file never race (spec.md
// §4.K step 7, §5 "one merge-target write at a time per target file").
// Install failures for independent resources accumulate rather than abort
// the run, per §4.K's failure policy; the pipeline decides whether to write
// a lockfile based on Report.OK() afterward.
type installStage struct {
	projectDir string
	manifest   *manifest.Manifest
	maxParallel int

	mergeMu sync.Mutex
	targetLocks map[string]*sync.Mutex
}

func newInstallStage(projectDir string, m *manifest.Manifest, maxParallel int) *installStage {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &installStage{
		projectDir: projectDir, manifest: m, maxParallel: maxParallel,
		targetLocks: map[string]*sync.Mutex{},
	}
}

func (s *installStage) lockFor(path string) *sync.Mutex {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()
	l, ok := s.targetLocks[path]
	if !ok {
		l = &sync.Mutex{}
		s.targetLocks[path] = l
	}
	return l
}

type installOutcome struct {
	item   *rendered
	result ResourceResult
	files  []string // populated for directory installs, for the lockfile's `files` field
	err    error
}

func (s *installStage) run(items []*rendered) ([]installOutcome, *Report) {
	p := pool.NewWithResults[installOutcome]().WithMaxGoroutines(s.maxParallel)

	for _, item := range items {
		item := item
		p.Go(func() installOutcome {
			return s.installOne(item)
		})
	}

	outcomes := p.Wait()

	report := &Report{}
	for _, o := range outcomes {
		if o.err != nil {
			report.addFailure(o.result)
			continue
		}
		report.addSuccess(o.result)
	}
	return outcomes, report
}

func (s *installStage) installOne(item *rendered) installOutcome {
	res := ResourceResult{ID: item.id, Alias: item.alias, Kind: item.kind, InstalledAt: item.installedAt}

	if item.skipInstall {
		res.Skipped = true
		return installOutcome{item: item, result: res}
	}

	if item.mergeTarget != "" {
		targetPath := filepath.Join(s.projectDir, toolRootDir(s.manifest, item.tool), item.mergeTarget)
		lock := s.lockFor(targetPath)
		lock.Lock()
		err := installer.ApplyMergeTarget(targetPath, item.alias, item.data)
		lock.Unlock()
		if err != nil {
			res.Error = err
			return installOutcome{item: item, result: res, err: err}
		}
		return installOutcome{item: item, result: res}
	}

	if item.kind.IsDirectory() {
		checksum, files, err := installer.InstallDirectory(s.projectDir, item.installedAt, item.dirEntries, installer.DefaultDirLimits())
		if err != nil {
			res.Error = err
			return installOutcome{item: item, result: res, err: err}
		}
		item.checksum = "sha256:" + checksum
		return installOutcome{item: item, result: res, files: files}
	}

	if _, err := installer.InstallFile(s.projectDir, item.installedAt, item.data, item.executable); err != nil {
		res.Error = err
		return installOutcome{item: item, result: res, err: err}
	}
	return installOutcome{item: item, result: res}
}
