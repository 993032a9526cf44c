// Package engine orchestrates the Scanner, Reader, Parser, and query
// Evaluator into the single end-to-end search operation.
package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/standardbeagle/logsearch-mcp/internal/config"
	"github.com/standardbeagle/logsearch-mcp/internal/debug"
	logerrors "github.com/standardbeagle/logsearch-mcp/internal/errors"
	"github.com/standardbeagle/logsearch-mcp/internal/model"
	"github.com/standardbeagle/logsearch-mcp/internal/parser"
	"github.com/standardbeagle/logsearch-mcp/internal/query"
	"github.com/standardbeagle/logsearch-mcp/internal/reader"
	"github.com/standardbeagle/logsearch-mcp/internal/scanner"
)

// hugeFileThreshold is the informational-only size above which a per-file
// task logs a warning before starting its pipeline.
const hugeFileThreshold = 10 * 1024 * 1024 * 1024 // 10 GiB

// Engine holds cheaply-shared handles to the Scanner and query Evaluator
// (the Reader and Parser are built per Search call) plus a reference to the
// live configuration Store. It carries
// no per-request mutable state, so one Engine serves unlimited concurrent
// Search calls.
type Engine struct {
	scanner   *scanner.Scanner
	evaluator *query.Evaluator
	store     *config.Store
}

// New builds an Engine bound to store, the shared reader-writer-locked
// configuration snapshot source.
func New(store *config.Store) *Engine {
	return &Engine{
		scanner:   scanner.New(),
		evaluator: query.NewEvaluator(),
		store:     store,
	}
}

// taskResult is one per-file pipeline outcome, consumed by Search in
// arrival order.
type taskResult struct {
	path      string
	hits      []model.HitResult
	timedOut  bool
	cancelled bool
	err       error
}

// ListFiles returns the scanner's file list: the globally configured
// explicit paths when any are configured (cfg is then ignored), otherwise
// the result of scanning cfg. It is also the implementation behind
// the list_log_files tool/endpoint.
func (e *Engine) ListFiles(cfg model.FileScanConfig) ([]string, error) {
	snapshot := e.store.Snapshot()
	explicit := snapshot.LogSources.LogFilePaths
	if len(explicit) > 0 {
		return e.scanner.Scan(model.FileScanConfig{}, explicit)
	}
	return e.scanner.Scan(cfg, nil)
}

// Search runs the full validate -> enumerate -> fan-out -> aggregate ->
// paginate pipeline described by the search operation.
func (e *Engine) Search(ctx context.Context, req model.SearchRequest) (model.SearchResponse, error) {
	start := time.Now()
	snapshot := e.store.Snapshot()

	explicitPaths := snapshot.LogSources.LogFilePaths
	if req.ScanConfig.RootPath == "" && len(explicitPaths) == 0 {
		return model.SearchResponse{}, logerrors.NewInvalidRequestError("scan_config.root_path is empty and no log_sources.log_file_paths are configured")
	}
	if req.ScanConfig.RootPath != "" {
		info, err := os.Stat(req.ScanConfig.RootPath)
		if err != nil {
			return model.SearchResponse{}, logerrors.NewFileAccessError(req.ScanConfig.RootPath, "stat failed", err)
		}
		if !info.IsDir() {
			return model.SearchResponse{}, logerrors.NewInvalidRequestError("scan_config.root_path is not a directory")
		}
	}
	if req.PageOrDefault() < 1 {
		return model.SearchResponse{}, logerrors.NewInvalidRequestError("page must be >= 1")
	}

	startPatternSrc := ""
	if req.LogStartPattern != nil {
		startPatternSrc = *req.LogStartPattern
	} else {
		startPatternSrc = snapshot.LogParser.DefaultLogStartPattern
	}
	var startPattern *regexp.Regexp
	if startPatternSrc != "" {
		re, err := regexp.Compile(startPatternSrc)
		if err != nil {
			return model.SearchResponse{}, logerrors.NewRegexError(startPatternSrc, "log_start_pattern compile failed", err)
		}
		startPattern = re
	}

	timeFilter := req.TimeFilter
	if timeFilter == nil && snapshot.LogParser.DefaultTimestampRegex != "" {
		re := snapshot.LogParser.DefaultTimestampRegex
		timeFilter = &model.TimeFilter{TimestampRegex: &re}
	}
	compiledTimeFilter, err := query.CompileTimeFilter(timeFilter)
	if err != nil {
		return model.SearchResponse{}, err
	}

	var files []string
	if len(explicitPaths) > 0 {
		files, err = e.scanner.Scan(model.FileScanConfig{}, explicitPaths)
	} else {
		files, err = e.scanner.Scan(req.ScanConfig, nil)
	}
	if err != nil {
		return model.SearchResponse{}, err
	}

	hits, filesScanned, timedOut, failedFiles := e.fanOut(ctx, files, fanOutParams{
		bufferSize:       snapshot.Search.BufferSize,
		maxConcurrency:   max(1, snapshot.Search.MaxConcurrentFiles),
		defaultTimeoutMs: snapshot.Search.DefaultTimeoutMs,
		reqTimeoutMs:     req.HardTimeoutMs,
		startPattern:     startPattern,
		logicalQuery:     req.LogicalQuery,
		timeFilter:       compiledTimeFilter,
		includeContent:   req.IncludeContentOrDefault(),
		maxHits:          req.MaxHits,
	})

	pageSize := effectivePageSize(req.PageSize, snapshot.Search.DefaultPageSize, snapshot.Search.MaxPageSize)
	page := req.PageOrDefault()
	totalHits := len(hits)
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(math.Ceil(float64(totalHits) / float64(pageSize)))
	}

	pageHits := slicePage(hits, page, pageSize, totalHits)

	return model.SearchResponse{
		TotalHits:       totalHits,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		Hits:            pageHits,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		FilesScanned:    filesScanned,
		TimedOut:        timedOut,
		FailedFiles:     failedFiles,
	}, nil
}

type fanOutParams struct {
	bufferSize       int
	maxConcurrency   int
	defaultTimeoutMs int
	reqTimeoutMs     *int
	startPattern     *regexp.Regexp
	logicalQuery     model.LogicalQuery
	timeFilter       *query.CompiledTimeFilter
	includeContent   bool
	maxHits          *int
}

func (e *Engine) fanOut(ctx context.Context, files []string, p fanOutParams) (hits []model.HitResult, filesScanned int, timedOut bool, failedFiles []model.FailedFile) {
	if len(files) == 0 {
		return nil, 0, false, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(p.maxConcurrency))
	results := make(chan taskResult, len(files))
	var wg sync.WaitGroup

	rd := reader.New(p.bufferSize)
	pr := parser.New()

	for _, path := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if err := sem.Acquire(runCtx, 1); err != nil {
				results <- taskResult{path: path, cancelled: true}
				return
			}
			defer sem.Release(1)
			results <- e.runFile(runCtx, rd, pr, path, p)
		}(path)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.cancelled {
			continue
		}
		filesScanned++
		switch {
		case res.timedOut:
			timedOut = true
			failedFiles = append(failedFiles, model.FailedFile{
				Path:   res.path,
				Reason: logerrors.NewTimeoutError(res.path).Error(),
			})
			cancel()
		case res.err != nil:
			failedFiles = append(failedFiles, model.FailedFile{Path: res.path, Reason: res.err.Error()})
		default:
			hits = append(hits, res.hits...)
		}

		if timedOut {
			break
		}
		if p.maxHits != nil && len(hits) >= *p.maxHits {
			break
		}
	}

	return hits, filesScanned, timedOut, failedFiles
}

func (e *Engine) runFile(ctx context.Context, rd *reader.Reader, pr *parser.Parser, path string, p fanOutParams) taskResult {
	timeoutMs := p.defaultTimeoutMs
	if p.reqTimeoutMs != nil && *p.reqTimeoutMs > 0 {
		timeoutMs = *p.reqTimeoutMs
	}

	taskCtx := ctx
	var cancel context.CancelFunc
	if timeoutMs > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	if info, err := os.Stat(path); err == nil && info.Size() > hugeFileThreshold {
		debug.LogSearch("file %s exceeds 10 GiB (%d bytes)", path, info.Size())
	}

	hits, err := e.scanEntries(taskCtx, rd, pr, path, p)

	if taskCtx.Err() != nil {
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return taskResult{path: path, timedOut: true}
		}
		return taskResult{path: path, cancelled: true}
	}
	if err != nil {
		return taskResult{path: path, err: err}
	}
	return taskResult{path: path, hits: hits}
}

func (e *Engine) scanEntries(ctx context.Context, rd *reader.Reader, pr *parser.Parser, path string, p fanOutParams) ([]model.HitResult, error) {
	lines, err := rd.ReadLines(ctx, path)
	if err != nil {
		return nil, err
	}
	entries := pr.Parse(ctx, path, lines, p.startPattern)

	var hits []model.HitResult
	for res := range entries {
		if res.Err != nil {
			return nil, res.Err
		}
		entry := res.Entry

		if !e.evaluator.LogicalMatch(entry.Content, p.logicalQuery) {
			continue
		}
		if !query.Apply(entry.Content, p.timeFilter) {
			continue
		}

		var positions []model.MatchPosition
		for _, q := range p.logicalQuery.Must {
			positions = append(positions, e.evaluator.FindPositions(entry.Content, q)...)
		}
		for _, q := range p.logicalQuery.Any {
			positions = append(positions, e.evaluator.FindPositions(entry.Content, q)...)
		}
		for _, q := range p.logicalQuery.None {
			positions = append(positions, e.evaluator.FindPositions(entry.Content, q)...)
		}

		content := entry.Content
		if !p.includeContent {
			content = ""
		}
		hits = append(hits, model.HitResult{
			FilePath:       entry.FilePath,
			StartLine:      entry.StartLine,
			EndLine:        entry.EndLine,
			Content:        content,
			MatchPositions: positions,
		})
	}
	return hits, nil
}

func effectivePageSize(requested, defaultSize, maxSize int) int {
	if requested == 0 {
		return defaultSize
	}
	size := requested
	if size > maxSize {
		size = maxSize
	}
	if size < 1 {
		size = 1
	}
	return size
}

func slicePage(hits []model.HitResult, page, pageSize, total int) []model.HitResult {
	if pageSize <= 0 {
		return []model.HitResult{}
	}
	start := (page - 1) * pageSize
	if start >= total || start < 0 {
		return []model.HitResult{}
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	out := make([]model.HitResult, end-start)
	copy(out, hits[start:end])
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
