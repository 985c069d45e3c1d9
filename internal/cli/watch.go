package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/macropower/checkit/pkg/cache"
	"github.com/macropower/checkit/pkg/config"
)

// watch re-runs the validation whenever the repository or its rule documents
// change. It returns when the command context is canceled; the exit status
// reflects the last completed run.
func watch(cmd *cobra.Command, args *RunArgs, cfg *config.Config, root string, store cache.Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer func() {
		cerr := watcher.Close()
		if cerr != nil {
			slog.Warn("close watcher", slog.Any("error", cerr))
		}
	}()

	err = addWatchPaths(watcher, root)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	runAndReport := func() {
		rep, rerr := runOnce(ctx, cmd, args, cfg, root, store)

		switch {
		case rerr != nil:
			slog.Error("run checks", slog.Any("error", rerr))

		case rep.Failed():
			_, failed, _, errored := rep.Counts()
			slog.Warn("checks failed",
				slog.Int("failed", failed),
				slog.Int("errors", errored),
			)
		}
	}

	runAndReport()

	lastRun := time.Now()

	var debounce *time.Timer

	rerun := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-rerun:
			slog.Info("repository changed, re-running checks",
				slog.String("last_run", humanize.Time(lastRun)),
			)

			runAndReport()

			lastRun = time.Now()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !event.Op.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
				continue
			}

			// Newly created directories need watching too.
			if event.Op.Has(fsnotify.Create) {
				info, serr := os.Stat(event.Name)
				if serr == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}

			if debounce != nil {
				debounce.Stop()
			}

			debounce = time.AfterFunc(renderInterval, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			slog.Warn("watch repository", slog.Any("error", werr))
		}
	}
}

// addWatchPaths registers the repository tree, skipping VCS internals.
func addWatchPaths(watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if d.Name() == ".git" {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("watch repository: %w", err)
	}

	return nil
}
