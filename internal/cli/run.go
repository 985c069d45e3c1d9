package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macropower/checkit/pkg/cache"
	"github.com/macropower/checkit/pkg/config"
	"github.com/macropower/checkit/pkg/engine"
	"github.com/macropower/checkit/pkg/facts"
	"github.com/macropower/checkit/pkg/remote"
	"github.com/macropower/checkit/pkg/report"
	"github.com/macropower/checkit/pkg/ruleset"
)

// ErrChecksFailed reports a completed run with failing checks.
var ErrChecksFailed = errors.New("checks failed")

var errNoDocuments = errors.New("no rule documents found")

type RunArgs struct {
	root *RootArgs

	ConfigPath   string
	Timeout      string
	Checks       []string
	Remotes      []string
	Jobs         int
	NoCache      bool
	NoReadCache  bool
	NoWriteCache bool
	ClearCache   bool
	FailFast     bool
	Watch        bool
	NoColor      bool
	WriteConfig  bool
}

func NewRunArgs(root *RootArgs) *RunArgs {
	return &RunArgs{root: root}
}

func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ra.ConfigPath, "config", config.GetPath("config.yaml"), "Configuration file path")
	cmd.Flags().StringArrayVar(&ra.Checks, "check", nil, "Additional rule document or directory (repeatable)")
	cmd.Flags().StringArrayVar(&ra.Remotes, "remote", nil, "Pinned remote rule document as <url>::<sha256> (repeatable)")
	cmd.Flags().BoolVar(&ra.NoCache, "no-cache", false, "Disable the fact cache entirely")
	cmd.Flags().BoolVar(&ra.NoReadCache, "no-read-cache", false, "Resolve every fact fresh, but still record values")
	cmd.Flags().BoolVar(&ra.NoWriteCache, "no-write-cache", false, "Consult the cache, but record nothing")
	cmd.Flags().BoolVar(&ra.ClearCache, "clear-cache", false, "Drop all cached fact values before running")
	cmd.Flags().BoolVar(&ra.FailFast, "fail-fast", false, "Stop scheduling new checks after the first failure")
	cmd.Flags().IntVar(&ra.Jobs, "jobs", 0, "Bound check and fact concurrency, 0 means NumCPU")
	cmd.Flags().StringVar(&ra.Timeout, "timeout", "", "Per-command timeout as a Go duration, e.g. 30s")
	cmd.Flags().BoolVar(&ra.Watch, "watch", false, "Re-run whenever the repository or its rule documents change")
	cmd.Flags().BoolVar(&ra.NoColor, "no-color", false, "Disable ANSI styling in the report")
	cmd.Flags().BoolVar(&ra.WriteConfig, "write-config", false, "Write the default configuration file if absent")
}

func NewRunCmd(args *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Validate a repository against its rule documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			return run(cmd, args, posArgs)
		},
	}
	args.AddFlags(cmd)
	bindEnvVars(cmd)

	return cmd
}

func run(cmd *cobra.Command, args *RunArgs, posArgs []string) error {
	root := "."
	if len(posArgs) > 0 {
		root = posArgs[0]
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve repository path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat repository path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}

	if args.WriteConfig {
		err = config.WriteDefault(args.ConfigPath)
		if err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}

	cfg, err := layerConfig(cmd, args)
	if err != nil {
		return err
	}

	store := openStore(root, args, cfg)
	defer func() {
		cerr := store.Close()
		if cerr != nil {
			slog.Warn("close cache store", slog.Any("error", cerr))
		}
	}()

	if args.ClearCache {
		err = store.Clear()
		if err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}

	if args.Watch {
		return watch(cmd, args, cfg, root, store)
	}

	rep, err := runOnce(cmd.Context(), cmd, args, cfg, root, store)
	if err != nil {
		return err
	}

	if rep.Failed() {
		_, failed, _, errored := rep.Counts()

		return fmt.Errorf("%w: %d failed, %d errors", ErrChecksFailed, failed, errored)
	}

	return nil
}

// runOnce loads the rule documents, runs them, and renders the report. Watch
// mode calls it once per change so documents are re-read every iteration.
func runOnce(
	ctx context.Context,
	cmd *cobra.Command,
	args *RunArgs,
	cfg *config.Config,
	root string,
	store cache.Store,
) (*report.Report, error) {
	sets, err := loadDocuments(ctx, args, cfg, root)
	if err != nil {
		return nil, err
	}

	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, err
	}

	cacheRead := cfg.CacheRead() && !args.NoCache && !args.NoReadCache
	cacheWrite := cfg.CacheWrite() && !args.NoCache && !args.NoWriteCache

	// A fresh resolver per run: memoization is scoped to one run.
	resolver := facts.NewResolver(root, store,
		facts.WithTimeout(timeout),
		facts.WithCacheRead(cacheRead),
		facts.WithCacheWrite(cacheWrite),
	)

	eng := engine.New(root, resolver,
		engine.WithJobs(cfg.Jobs),
		engine.WithFailFast(cfg.FailFast),
		engine.WithTimeout(timeout),
	)

	outcomes, err := eng.Run(ctx, sets)
	if err != nil {
		return nil, fmt.Errorf("run checks: %w", err)
	}

	rep := report.New(outcomes)

	renderer := report.NewRenderer(report.WithColor(useColor(args)))

	err = renderer.Render(cmd.OutOrStdout(), rep)
	if err != nil {
		return nil, err
	}

	return rep, nil
}

// layerConfig applies the settings layers: defaults, then the configuration
// file, then any flag set explicitly or via its environment variable.
func layerConfig(cmd *cobra.Command, args *RunArgs) (*config.Config, error) {
	cfg := config.New()

	if _, err := os.Stat(args.ConfigPath); err == nil {
		loaded, err := config.Load(args.ConfigPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	} else if flagSet(cmd, "config") {
		return nil, fmt.Errorf("stat config file: %w", err)
	}

	if flagSet(cmd, "fail-fast") {
		cfg.FailFast = args.FailFast
	}

	if flagSet(cmd, "jobs") {
		cfg.Jobs = args.Jobs
	}

	if flagSet(cmd, "timeout") {
		cfg.Timeout = args.Timeout
	}

	if _, err := cfg.GetTimeout(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// openStore opens the persistent cache, degrading to an in-memory store when
// the cache file can't be used.
func openStore(root string, args *RunArgs, cfg *config.Config) cache.Store {
	if args.NoCache || (!cfg.CacheRead() && !cfg.CacheWrite()) {
		return cache.NewMemory()
	}

	path := cache.DefaultPath(root)

	store, err := cache.Open(path)
	if err != nil {
		slog.Warn("open cache store, continuing with in-memory cache",
			slog.String("path", path),
			slog.Any("error", err),
		)

		return cache.NewMemory()
	}

	return store
}

// loadDocuments discovers, fetches and loads every rule document for the run.
func loadDocuments(ctx context.Context, args *RunArgs, cfg *config.Config, root string) ([]*ruleset.RuleSet, error) {
	paths, err := ruleset.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("discover rule documents: %w", err)
	}

	for _, extra := range append(append([]string{}, cfg.Checklists...), args.Checks...) {
		extraPaths, err := expandDocumentPath(root, extra)
		if err != nil {
			return nil, err
		}

		paths = append(paths, extraPaths...)
	}

	remotePaths, err := fetchRemotes(ctx, args, cfg)
	if err != nil {
		return nil, err
	}

	paths = append(paths, remotePaths...)

	if len(paths) == 0 {
		return nil, errNoDocuments
	}

	sets := make([]*ruleset.RuleSet, 0, len(paths))

	for _, path := range paths {
		rs, err := ruleset.LoadFile(path)
		if err != nil {
			return nil, err //nolint:wrapcheck // LoadFile prefixes the path.
		}

		sets = append(sets, rs)
	}

	return sets, nil
}

func expandDocumentPath(root, path string) ([]string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat rule document: %w", err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read rule document directory: %w", err)
	}

	var paths []string

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if !entry.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, filepath.Join(path, entry.Name()))
		}
	}

	return paths, nil
}

func fetchRemotes(ctx context.Context, args *RunArgs, cfg *config.Config) ([]string, error) {
	refs := append(append([]string{}, cfg.Remotes...), args.Remotes...)
	if len(refs) == 0 {
		return nil, nil
	}

	fetcher := remote.NewFetcher(filepath.Join(cache.Dir(), "remote"))

	var paths []string

	for _, raw := range refs {
		ref, err := remote.ParseRef(raw)
		if err != nil {
			return nil, err //nolint:wrapcheck // ParseRef names the reference.
		}

		path, err := fetcher.Get(ctx, ref)
		if err != nil {
			return nil, err //nolint:wrapcheck // Get names the URL.
		}

		paths = append(paths, path)
	}

	return paths, nil
}

func useColor(args *RunArgs) bool {
	if args.NoColor {
		return false
	}

	return term.IsTerminal(int(os.Stdout.Fd()))
}

// renderInterval debounces filesystem events in watch mode.
const renderInterval = 250 * time.Millisecond
