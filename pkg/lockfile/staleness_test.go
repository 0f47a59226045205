package lockfile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agpm-project/agpm/pkg/core"
	"github.com/agpm-project/agpm/pkg/manifest"
)

const stalenessManifest = `
[project]
name = "demo"

[sources]
official = "https://example.com/official.git"

[agents]
helper = { source = "official", path = "agents/helper.md", version = "v1.0.0" }
`

func TestDiagnoseCleanLockfileIsNotStale(t *testing.T) {
	m, err := manifest.Parse([]byte(stalenessManifest))
	require.NoError(t, err)

	lf := New()
	lf.Sources = []LockedSource{{Name: "official", URL: "https://example.com/official.git"}}
	lf.Upsert(LockedResource{Name: "helper", Source: "official", Tool: "claude-code", Kind: core.KindAgent, Path: "agents/helper.md", Version: "v1.0.0", InstalledAt: "agents/helper.md", Checksum: "sha256:x"})

	require.Empty(t, Diagnose(m, lf))
}

func TestDiagnoseMissingDependency(t *testing.T) {
	m, err := manifest.Parse([]byte(stalenessManifest))
	require.NoError(t, err)

	reasons := Diagnose(m, New())
	require.Len(t, reasons, 1)
	require.Equal(t, StalenessMissingDependency, reasons[0].Kind)
	require.Contains(t, reasons[0].Error(), "missing from lockfile")
}

func TestDiagnoseNilLockfileFlagsEveryDependency(t *testing.T) {
	m, err := manifest.Parse([]byte(stalenessManifest))
	require.NoError(t, err)

	reasons := Diagnose(m, nil)
	require.Len(t, reasons, 1)
	require.Equal(t, "helper", reasons[0].Name)
}

func TestDiagnoseVersionChanged(t *testing.T) {
	m, err := manifest.Parse([]byte(stalenessManifest))
	require.NoError(t, err)

	lf := New()
	lf.Upsert(LockedResource{Name: "helper", Source: "official", Tool: "claude-code", Kind: core.KindAgent, Path: "agents/helper.md", Version: "v0.9.0", InstalledAt: "agents/helper.md", Checksum: "sha256:x"})

	reasons := Diagnose(m, lf)
	require.Len(t, reasons, 1)
	require.Equal(t, StalenessVersionChanged, reasons[0].Kind)
	require.Equal(t, "v0.9.0", reasons[0].Old)
	require.Equal(t, "v1.0.0", reasons[0].New)
}

func TestDiagnoseSourceURLChanged(t *testing.T) {
	m, err := manifest.Parse([]byte(stalenessManifest))
	require.NoError(t, err)

	lf := New()
	lf.Sources = []LockedSource{{Name: "official", URL: "https://example.com/old.git"}}
	lf.Upsert(LockedResource{Name: "helper", Source: "official", Tool: "claude-code", Kind: core.KindAgent, Path: "agents/helper.md", Version: "v1.0.0", InstalledAt: "agents/helper.md", Checksum: "sha256:x"})

	reasons := Diagnose(m, lf)
	require.Len(t, reasons, 1)
	require.Equal(t, StalenessSourceURLChanged, reasons[0].Kind)
}

func TestDiagnoseDuplicateEntries(t *testing.T) {
	m, err := manifest.Parse([]byte(stalenessManifest))
	require.NoError(t, err)

	lf := New()
	lf.Resources[core.KindAgent] = []LockedResource{
		{Name: "helper", Source: "official", Tool: "claude-code", Kind: core.KindAgent, Path: "agents/helper.md", Version: "v1.0.0", InstalledAt: "agents/helper.md", Checksum: "sha256:x"},
		{Name: "helper", Source: "official", Tool: "claude-code", Kind: core.KindAgent, Path: "agents/helper.md", Version: "v1.0.0", InstalledAt: "agents/helper2.md", Checksum: "sha256:y"},
	}

	reasons := Diagnose(m, lf)
	require.Len(t, reasons, 1)
	require.Equal(t, StalenessDuplicateEntries, reasons[0].Kind)
	require.Equal(t, 2, reasons[0].Count)
}
