package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/agpm-project/agpm/pkg/console"
	"github.com/agpm-project/agpm/pkg/manifest"
	"github.com/agpm-project/agpm/pkg/repoutil"
	"github.com/agpm-project/agpm/pkg/sourcecache"
)

// NewCacheCommand builds `agpm cache`, with `info` and `clean` subcommands
// (SPEC_FULL.md §6 supplemented features; grounded on pkg/sourcecache.Cache's
// Inspect/CleanUnused/CleanupStaleLocks).
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clean the shared Git source cache",
	}
	cmd.AddCommand(newCacheInfoCommand(), newCacheCleanCommand())
	return cmd
}

// sourceNamesByHash loads the project manifest (if any) and returns a map
// from URLHash to the declared source name, so cache info/clean can show
// something more useful than a bare hash.
func sourceNamesByHash(dir string) map[string]string {
	byHash := map[string]string{}
	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil || m == nil {
		return byHash
	}
	for name, url := range m.Sources {
		byHash[sourcecache.URLHash(url)] = name
	}
	return byHash
}

func activeSourceURLs(dir string) map[string]string {
	urls := map[string]string{}
	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil || m == nil {
		return urls
	}
	for name, url := range m.Sources {
		urls[name] = url
	}
	return urls
}

func newCacheInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cached source repositories and their disk usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveCacheRoot()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			cache, err := sourcecache.New(root)
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			infos, err := cache.Inspect()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			if len(infos) == 0 {
				fmt.Println(console.FormatInfoMessage("cache is empty: " + root))
				return nil
			}

			dir, _ := projectDir()
			names := sourceNamesByHash(dir)
			urls := activeSourceURLs(dir)

			var totalBytes int64
			for _, info := range infos {
				label := info.URLHash
				if name, ok := names[info.URLHash]; ok {
					label = name
					if owner, repo, err := repoutil.ParseGitHubRepoURL(urls[name]); err == nil {
						label = fmt.Sprintf("%s (%s/%s)", name, owner, repo)
					}
				}
				fmt.Println(console.FormatListItem(fmt.Sprintf(
					"%-20s  %d worktree(s)  %s bare, %s total",
					label, info.WorktreeCount, humanBytes(info.BareSizeBytes), humanBytes(info.TotalSizeBytes))))
				totalBytes += info.TotalSizeBytes
			}
			fmt.Println(console.FormatCountMessage(fmt.Sprintf("%d cached source(s), %s total", len(infos), humanBytes(totalBytes))))
			return nil
		},
	}
}

func newCacheCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove unreferenced cached sources and stale locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")

			root, err := resolveCacheRoot()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			cache, err := sourcecache.New(root)
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}

			if all {
				if err := cache.CleanUnused(map[string]string{}); err != nil {
					exitWithCode(err, exitCodeForError(err))
				}
				fmt.Println(console.FormatSuccessMessage("removed every cached source"))
				return nil
			}

			dir, err := projectDir()
			if err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			active := activeSourceURLs(dir)
			if err := cache.CleanUnused(active); err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			if err := cache.CleanupStaleLocks(24 * time.Hour); err != nil {
				exitWithCode(err, exitCodeForError(err))
			}
			fmt.Println(console.FormatSuccessMessage("removed sources no longer declared in agpm.toml"))
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "remove every cached source, including ones still declared")
	return cmd
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := "KMGTPE"
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), units[exp])
}
