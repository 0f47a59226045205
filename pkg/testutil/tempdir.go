// Package testutil provides small test-only helpers shared across packages.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var (
	testRunDir     string
	testRunDirOnce sync.Once
)

// GetTestRunDir returns the unique directory for this test run, a
// "test-runs" directory under the repo root with a timestamp+pid suffix.
func GetTestRunDir() string {
	testRunDirOnce.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			panic(fmt.Sprintf("failed to get working directory: %v", err))
		}

		repoRoot := wd
		for {
			if _, err := os.Stat(filepath.Join(repoRoot, "go.mod")); err == nil {
				break
			}
			parent := filepath.Dir(repoRoot)
			if parent == repoRoot {
				panic("failed to find repository root (go.mod)")
			}
			repoRoot = parent
		}

		testRunsDir := filepath.Join(repoRoot, "test-runs")
		if err := os.MkdirAll(testRunsDir, 0755); err != nil {
			panic(fmt.Sprintf("failed to create test-runs directory: %v", err))
		}

		timestamp := time.Now().Format("20060102-150405")
		pid := os.Getpid()
		testRunDir = filepath.Join(testRunsDir, fmt.Sprintf("%s-%d", timestamp, pid))

		if err := os.MkdirAll(testRunDir, 0755); err != nil {
			panic(fmt.Sprintf("failed to create test run directory: %v", err))
		}
	})

	return testRunDir
}

// TempDir creates a temporary directory for testing within the test run
// directory and registers cleanup to remove it when the test completes.
func TempDir(t *testing.T, pattern string) string {
	t.Helper()

	baseDir := GetTestRunDir()

	tempDir, err := os.MkdirTemp(baseDir, pattern)
	if err != nil {
		t.Fatalf("failed to create temp directory: %v", err)
	}

	t.Cleanup(func() {
		os.RemoveAll(tempDir)
	})

	return tempDir
}
