// Package index runs the indexing pipeline: discover candidate files,
// filter them, fan chunk/embed/store work out across a worker pool, and
// report per-file outcomes. One file's failure never aborts a run.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/casheiro/synapstor-go/internal/catalog"
	"github.com/casheiro/synapstor-go/internal/chunk"
	"github.com/casheiro/synapstor-go/internal/embed"
	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/ids"
	"github.com/casheiro/synapstor-go/internal/scanner"
	"github.com/casheiro/synapstor-go/internal/search"
	"github.com/casheiro/synapstor-go/internal/store"
	"github.com/casheiro/synapstor-go/internal/tags"
)

const (
	// DefaultWorkers is the worker pool size when none is configured.
	DefaultWorkers = 4

	// singleWorkerThreshold is the file count at or below which a run
	// stays single-worker; pool startup costs more than it saves there.
	singleWorkerThreshold = 20

	// runLockName is the lock file created in the data directory while a
	// run is active.
	runLockName = ".run.lock"

	// verifyLimit caps the post-run verification query.
	verifyLimit = 5
)

// Per-file outcome reasons carried in the run report.
const (
	ReasonBinary    = "skip_binary"
	ReasonEmpty     = "skip_empty"
	ReasonUnchanged = "skip_unchanged"

	ReasonReadFailed  = "read_failed"
	ReasonChunkFailed = "chunk_failed"
	ReasonEmbedFailed = "embed_failed"
	ReasonStoreFailed = "store_failed"
)

// Options are the parameters of one indexing run. They are fixed at run
// start; nothing reads ambient configuration mid-run.
type Options struct {
	// Project is the name stored in entry metadata and used for search
	// filtering.
	Project string

	// Root is the project directory to index.
	Root string

	// Collection is the target collection.
	Collection string

	// Workers is the pool size. Non-positive selects DefaultWorkers.
	Workers int

	// MaxFileSize caps candidate files in bytes. Non-positive selects the
	// scanner default.
	MaxFileSize int64

	// Force drops and recreates the collection, the keyword sidecar and
	// the catalog rows of the project before indexing.
	Force bool

	// Incremental skips files whose content hash matches the catalog.
	Incremental bool

	// Prune removes the chunks and catalog rows of files the run no
	// longer discovered, bringing the collection back in line with the
	// tree. Requires a catalog.
	Prune bool

	// ChunkSpec controls splitting. The zero value selects the defaults.
	ChunkSpec chunk.Spec

	// TagClusters are the existing tag clusters entries are scored
	// against. Empty means no tags are assigned.
	TagClusters []tags.Cluster

	// TagThreshold is the minimum cosine similarity for a tag to attach.
	// Non-positive selects the tags package default.
	TagThreshold float64

	// DataDir scopes the run lock. Empty disables locking.
	DataDir string

	// VerifyQuery, when set, is searched against the collection after the
	// run and its hit count reported.
	VerifyQuery string
}

// FileNote records one skipped or failed file.
type FileNote struct {
	// Path is relative to the project root.
	Path string

	// Reason is one of the Reason constants.
	Reason string

	// Err is the underlying error for failures, nil for skips.
	Err error
}

// VerifyResult is the outcome of the post-run verification query.
type VerifyResult struct {
	Query string
	Hits  int
}

// RunReport summarizes one indexing run.
type RunReport struct {
	// Seen is the number of candidate files the scanner produced.
	Seen int

	// Indexed, Skipped and Failed partition the seen files.
	Indexed int
	Skipped int
	Failed  int

	// Chunks is the total number of stored chunks.
	Chunks int

	// Pruned counts files whose chunks were removed because the run no
	// longer discovered them.
	Pruned int

	// Elapsed is the wall time of the run.
	Elapsed time.Duration

	// Skips and Failures carry the per-file reasons, sorted by path.
	Skips    []FileNote
	Failures []FileNote

	// Verify is set when Options.VerifyQuery was given and the query ran.
	Verify *VerifyResult
}

// Dependencies are the collaborators a Runner is built from.
type Dependencies struct {
	// Embedder generates the vectors (required).
	Embedder embed.Provider

	// Store persists the entries (required).
	Store store.Store

	// Keyword is the sidecar index, nil when disabled.
	Keyword *store.KeywordIndex

	// Catalog tracks per-file state, nil when not kept. Required for
	// incremental runs.
	Catalog *catalog.Catalog

	// Scanner discovers candidate files. Created when nil.
	Scanner *scanner.Scanner

	// Progress, when set, receives (done, total) after each file
	// finishes. Called from worker goroutines.
	Progress func(done, total int)
}

// Runner executes indexing runs. It is safe to reuse across runs; the
// run lock keeps concurrent runs over the same data directory apart.
type Runner struct {
	embedder embed.Provider
	store    store.Store
	keyword  *store.KeywordIndex
	catalog  *catalog.Catalog
	scanner  *scanner.Scanner
	progress func(done, total int)
}

// New creates a Runner from its dependencies.
func New(deps Dependencies) (*Runner, error) {
	if deps.Embedder == nil {
		return nil, synerrors.New(synerrors.ErrCodeMissingParameter,
			"embedding provider is required", nil)
	}
	if deps.Store == nil {
		return nil, synerrors.New(synerrors.ErrCodeMissingParameter,
			"vector store is required", nil)
	}

	sc := deps.Scanner
	if sc == nil {
		var err error
		sc, err = scanner.New()
		if err != nil {
			return nil, err
		}
	}

	return &Runner{
		embedder: deps.Embedder,
		store:    deps.Store,
		keyword:  deps.Keyword,
		catalog:  deps.Catalog,
		scanner:  sc,
		progress: deps.Progress,
	}, nil
}

// Run executes one indexing run. Fatal configuration problems return a
// nil report. Cancellation mid-run returns the partial report alongside
// the context error; completed work is durable and a re-run picks up
// where this one stopped.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunReport, error) {
	return r.run(ctx, opts, true)
}

// run is the body of Run. Watch mode holds the run lock for its whole
// session and passes takeLock false; flock does not nest within one
// process.
func (r *Runner) run(ctx context.Context, opts Options, takeLock bool) (*RunReport, error) {
	start := time.Now()

	if err := r.checkOptions(&opts); err != nil {
		return nil, err
	}

	if takeLock {
		unlock, err := acquireRunLock(opts.DataDir)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	slog.Info("index_run_started",
		slog.String("project", opts.Project),
		slog.String("root", opts.Root),
		slog.String("collection", opts.Collection),
		slog.Int("workers", opts.Workers),
		slog.Bool("force", opts.Force),
		slog.Bool("incremental", opts.Incremental))

	if opts.Force {
		if err := r.recreate(ctx, opts); err != nil {
			return nil, err
		}
	}

	if err := r.store.Ensure(ctx, opts.Collection, r.embedder.Dimensions()); err != nil {
		return nil, err
	}

	files, err := r.discover(ctx, opts)
	if err != nil {
		return nil, err
	}

	col := &collector{}
	dispatchErr := r.dispatch(ctx, opts, files, col)

	report := col.report(len(files), time.Since(start))
	if dispatchErr != nil {
		return report, fmt.Errorf("indexing interrupted after %d of %d files: %w",
			report.Indexed+report.Skipped+report.Failed, report.Seen, dispatchErr)
	}

	if opts.Prune {
		report.Pruned = r.prune(ctx, opts, files)
	}

	if opts.VerifyQuery != "" {
		report.Verify = r.verify(ctx, opts)
	}

	report.Elapsed = time.Since(start)
	slog.Info("index_run_complete",
		slog.Int("seen", report.Seen),
		slog.Int("indexed", report.Indexed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("chunks", report.Chunks),
		slog.Int64("elapsed_ms", report.Elapsed.Milliseconds()))
	return report, nil
}

// checkOptions validates the run parameters and fills defaults.
func (r *Runner) checkOptions(opts *Options) error {
	if opts.Project == "" {
		return synerrors.New(synerrors.ErrCodeMissingParameter,
			"project name is required", nil)
	}
	if opts.Root == "" {
		return synerrors.New(synerrors.ErrCodeMissingParameter,
			"project root is required", nil)
	}
	if opts.Collection == "" {
		return synerrors.New(synerrors.ErrCodeMissingParameter,
			"collection name is required", nil)
	}
	if opts.Incremental && r.catalog == nil {
		return synerrors.New(synerrors.ErrCodeMissingParameter,
			"incremental indexing requires a catalog", nil).
			WithSuggestion("open a catalog in the data directory or run a full reindex")
	}
	if opts.Prune && r.catalog == nil {
		return synerrors.New(synerrors.ErrCodeMissingParameter,
			"pruning requires a catalog", nil).
			WithSuggestion("open a catalog in the data directory or disable pruning")
	}

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	if opts.ChunkSpec.MaxSize == 0 && opts.ChunkSpec.Overlap == 0 && len(opts.ChunkSpec.Separators) == 0 {
		opts.ChunkSpec = chunk.DefaultSpec()
	}
	return opts.ChunkSpec.Validate()
}

// recreate drops the collection, the keyword sidecar and the catalog
// rows so the run starts from a clean slate. A partial drop aborts: a
// stale catalog row would make a later incremental run skip a file the
// fresh collection never received.
func (r *Runner) recreate(ctx context.Context, opts Options) error {
	if err := r.store.DeleteCollection(ctx, opts.Collection); err != nil {
		return err
	}
	if r.keyword != nil {
		if err := r.keyword.DeleteCollection(ctx, opts.Collection); err != nil {
			return err
		}
	}
	if r.catalog != nil {
		if err := r.catalog.ForgetProject(ctx, opts.Project); err != nil {
			return err
		}
	}
	slog.Info("index_collection_recreated",
		slog.String("collection", opts.Collection),
		slog.String("project", opts.Project))
	return nil
}

// discover streams the scanner into a file list. Walk-level errors
// degrade to warnings; the files already found still index.
func (r *Runner) discover(ctx context.Context, opts Options) ([]*scanner.FileInfo, error) {
	results, err := r.scanner.Scan(ctx, &scanner.Options{
		Root:        opts.Root,
		MaxFileSize: opts.MaxFileSize,
	})
	if err != nil {
		return nil, synerrors.ConfigError(
			fmt.Sprintf("cannot scan project root %s", opts.Root), err)
	}

	// The data directory may live inside the tree; its catalog and index
	// files must never index themselves.
	var skipPrefix string
	if opts.DataDir != "" {
		if absData, err := filepath.Abs(opts.DataDir); err == nil {
			skipPrefix = absData + string(os.PathSeparator)
		}
	}

	var files []*scanner.FileInfo
	for res := range results {
		if res.Err != nil {
			slog.Warn("project walk reported an error",
				slog.String("root", opts.Root),
				slog.String("error", res.Err.Error()))
			continue
		}
		if skipPrefix != "" && strings.HasPrefix(res.File.AbsPath, skipPrefix) {
			continue
		}
		files = append(files, res.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Info("index_scan_complete", slog.Int("files", len(files)))
	return files, nil
}

// dispatch fans the files out across the worker pool. Only cancellation
// propagates; per-file failures land in the collector.
func (r *Runner) dispatch(ctx context.Context, opts Options, files []*scanner.FileInfo, col *collector) error {
	workers := opts.Workers
	if len(files) <= singleWorkerThreshold {
		workers = 1
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.processFile(gctx, opts, f, col)
			if r.progress != nil {
				r.progress(int(done.Add(1)), len(files))
			}
			return nil
		})
	}
	return g.Wait()
}

// processFile runs one file through read, chunk, embed and store.
func (r *Runner) processFile(ctx context.Context, opts Options, f *scanner.FileInfo, col *collector) {
	content, err := scanner.ReadText(f.AbsPath)
	if err != nil {
		if synerrors.GetCode(err) == synerrors.ErrCodeFileBinary {
			col.skip(f.Path, ReasonBinary)
		} else {
			col.fail(f.Path, ReasonReadFailed, err)
		}
		return
	}
	if content == "" {
		col.skip(f.Path, ReasonEmpty)
		return
	}

	hash := contentHash(content)
	priorChunks := 0
	if r.catalog != nil {
		state, found, err := r.catalog.Lookup(ctx, opts.Project, f.Path)
		if err != nil && opts.Incremental {
			slog.Warn("catalog lookup failed, reindexing file",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
		} else if err == nil && found {
			priorChunks = state.Chunks
			if opts.Incremental && state.Hash == hash {
				col.skip(f.Path, ReasonUnchanged)
				return
			}
		}
	}

	segments, err := chunk.Split(content, opts.ChunkSpec)
	if err != nil {
		col.fail(f.Path, ReasonChunkFailed, err)
		return
	}
	if len(segments) == 0 {
		col.skip(f.Path, ReasonEmpty)
		return
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		col.fail(f.Path, ReasonEmbedFailed, err)
		return
	}
	if len(vectors) != len(segments) {
		col.fail(f.Path, ReasonEmbedFailed, synerrors.New(
			synerrors.ErrCodeEmbeddingCountMismatch,
			fmt.Sprintf("embedded %d of %d segments", len(vectors), len(segments)), nil))
		return
	}

	entries := make([]store.Entry, len(segments))
	for i, seg := range segments {
		md := fileMetadata(opts.Project, f)
		if len(opts.TagClusters) > 0 {
			if assigned := tags.Assign(vectors[i], opts.TagClusters, opts.TagThreshold); len(assigned) > 0 {
				md["tags"] = assigned
			}
		}
		entries[i] = store.Entry{
			ID:       ids.New(opts.Project, f.AbsPath, i),
			Vector:   vectors[i],
			Content:  seg.Text,
			Metadata: md,
		}
	}

	// A file that shrank leaves chunks beyond its new count behind; drop
	// them so stale content cannot surface in search.
	if priorChunks > len(entries) {
		stale := make([]string, 0, priorChunks-len(entries))
		for i := len(entries); i < priorChunks; i++ {
			stale = append(stale, ids.New(opts.Project, f.AbsPath, i))
		}
		if err := r.store.Delete(ctx, opts.Collection, stale); err != nil {
			slog.Warn("failed to drop stale chunks",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
		}
		if r.keyword != nil {
			if err := r.keyword.Delete(ctx, opts.Collection, stale); err != nil {
				slog.Warn("failed to drop stale keyword chunks",
					slog.String("path", f.Path),
					slog.String("error", err.Error()))
			}
		}
	}

	if err := r.store.Upsert(ctx, opts.Collection, entries); err != nil {
		col.fail(f.Path, ReasonStoreFailed, err)
		return
	}

	if r.keyword != nil {
		if err := r.keyword.Ingest(ctx, opts.Collection, entries); err != nil {
			slog.Warn("keyword ingest failed, hybrid search will miss this file",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
		}
	}

	if r.catalog != nil {
		err := r.catalog.Record(ctx, catalog.FileState{
			Project:   opts.Project,
			Path:      f.Path,
			Hash:      hash,
			SizeBytes: f.Size,
			ModTime:   f.ModTime,
			Chunks:    len(entries),
			IndexedAt: time.Now(),
		})
		if err != nil {
			slog.Warn("catalog record failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
		}
	}

	col.indexed(len(entries))
}

// prune removes every tracked file the scan no longer produced: its
// chunks leave the store and the sidecar, its row leaves the catalog.
// Failures degrade to warnings; the next pruning run retries them.
func (r *Runner) prune(ctx context.Context, opts Options, files []*scanner.FileInfo) int {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Path] = true
	}

	states, err := r.catalog.List(ctx, opts.Project)
	if err != nil {
		slog.Warn("prune skipped, catalog list failed", slog.String("error", err.Error()))
		return 0
	}
	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		slog.Warn("prune skipped, cannot resolve project root", slog.String("error", err.Error()))
		return 0
	}

	pruned := 0
	for _, state := range states {
		if seen[state.Path] {
			continue
		}
		if err := r.removeFile(ctx, opts, absRoot, state); err != nil {
			slog.Warn("prune failed for file",
				slog.String("path", state.Path),
				slog.String("error", err.Error()))
			continue
		}
		pruned++
	}
	if pruned > 0 {
		slog.Info("index_pruned",
			slog.String("project", opts.Project),
			slog.Int("files", pruned))
	}
	return pruned
}

// removeFile deletes one tracked file's chunks and its catalog row.
// Chunk ids are rebuilt from the recorded chunk count.
func (r *Runner) removeFile(ctx context.Context, opts Options, absRoot string, state catalog.FileState) error {
	absPath := filepath.Join(absRoot, filepath.FromSlash(state.Path))
	entryIDs := make([]string, state.Chunks)
	for i := range entryIDs {
		entryIDs[i] = ids.New(opts.Project, absPath, i)
	}

	if err := r.store.Delete(ctx, opts.Collection, entryIDs); err != nil {
		return err
	}
	if r.keyword != nil {
		if err := r.keyword.Delete(ctx, opts.Collection, entryIDs); err != nil {
			return err
		}
	}
	return r.catalog.Forget(ctx, opts.Project, state.Path)
}

// verify runs the post-run query. Failures degrade to a warning; the
// indexing work is already durable.
func (r *Runner) verify(ctx context.Context, opts Options) *VerifyResult {
	eng, err := search.NewEngine(r.embedder, r.store, r.keyword)
	if err != nil {
		slog.Warn("verification skipped", slog.String("error", err.Error()))
		return nil
	}

	hits, err := eng.Search(ctx, search.Request{
		Query:      opts.VerifyQuery,
		Collection: opts.Collection,
		Limit:      verifyLimit,
		Project:    opts.Project,
	})
	if err != nil {
		slog.Warn("verification query failed",
			slog.String("query", opts.VerifyQuery),
			slog.String("error", err.Error()))
		return nil
	}

	slog.Info("index_verified",
		slog.String("query", opts.VerifyQuery),
		slog.Int("hits", len(hits)))
	return &VerifyResult{Query: opts.VerifyQuery, Hits: len(hits)}
}

// fileMetadata builds the per-entry metadata payload. Every chunk gets
// its own map; workers must never share one.
func fileMetadata(project string, f *scanner.FileInfo) map[string]any {
	return map[string]any{
		"project":           project,
		"absolute_path":     f.AbsPath,
		"relative_path":     f.Path,
		"file_name":         filepath.Base(f.Path),
		"extension":         f.Extension,
		"size_bytes":        f.Size,
		"modification_date": f.ModTime.Format("2006-01-02T15:04:05"),
	}
}

// contentHash fingerprints the decoded content that is actually indexed,
// not the raw bytes, so a file re-decoding identically is unchanged.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// acquireRunLock takes the cross-process lock for a data directory and
// returns the release function. An empty directory disables locking.
func acquireRunLock(dataDir string) (func(), error) {
	if dataDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, synerrors.ConfigError(
			fmt.Sprintf("cannot create data directory %s", dataDir), err)
	}

	lock := flock.New(filepath.Join(dataDir, runLockName))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, synerrors.InternalError("acquiring the run lock", err)
	}
	if !acquired {
		return nil, synerrors.New(synerrors.ErrCodeRunLockHeld,
			fmt.Sprintf("another indexing run holds %s", lock.Path()), nil).
			WithSuggestion("wait for the other run to finish, or delete the lock file if it is stale")
	}
	return func() { _ = lock.Unlock() }, nil
}

// collector accumulates per-file outcomes across workers.
type collector struct {
	indexedN atomic.Int64
	skippedN atomic.Int64
	failedN  atomic.Int64
	chunksN  atomic.Int64

	mu       sync.Mutex
	skips    []FileNote
	failures []FileNote
}

func (c *collector) indexed(chunks int) {
	c.indexedN.Add(1)
	c.chunksN.Add(int64(chunks))
}

func (c *collector) skip(path, reason string) {
	c.skippedN.Add(1)
	c.mu.Lock()
	c.skips = append(c.skips, FileNote{Path: path, Reason: reason})
	c.mu.Unlock()
}

func (c *collector) fail(path, reason string, err error) {
	c.failedN.Add(1)
	c.mu.Lock()
	c.failures = append(c.failures, FileNote{Path: path, Reason: reason, Err: err})
	c.mu.Unlock()
	slog.Warn("file failed to index",
		slog.String("path", path),
		slog.String("reason", reason),
		slog.Any("error", synerrors.FormatForLog(err)))
}

// report assembles the final run report, sorted for stable output.
func (c *collector) report(seen int, elapsed time.Duration) *RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.Slice(c.skips, func(i, j int) bool { return c.skips[i].Path < c.skips[j].Path })
	sort.Slice(c.failures, func(i, j int) bool { return c.failures[i].Path < c.failures[j].Path })

	return &RunReport{
		Seen:     seen,
		Indexed:  int(c.indexedN.Load()),
		Skipped:  int(c.skippedN.Load()),
		Failed:   int(c.failedN.Load()),
		Chunks:   int(c.chunksN.Load()),
		Elapsed:  elapsed,
		Skips:    c.skips,
		Failures: c.failures,
	}
}
