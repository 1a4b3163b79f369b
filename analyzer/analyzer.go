// Package analyzer drives feature extraction over a folder: it enumerates
// audio files, schedules per-file jobs on a worker pool with hard
// deadlines, serves and fills the track cache, and reports progress from
// a single dispatcher.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"harmonix/analysis"
	"harmonix/cache"
	"harmonix/decode"
	"harmonix/track"
)

// FailureReason classifies why a file produced no record.
type FailureReason string

const (
	FailUnreadable  FailureReason = "unreadable"
	FailDecode      FailureReason = "decode"
	FailFeature     FailureReason = "feature"
	FailTimeout     FailureReason = "timeout"
	FailWorkerCrash FailureReason = "worker_crash"
)

// Failure is one file the batch could not analyze. The batch itself never
// aborts on individual failures.
type Failure struct {
	Path   string
	Reason FailureReason
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Path, f.Reason, f.Err)
}

// Progress receives dispatcher-side updates: how many jobs completed, the
// total, the file just finished, and a short status word.
type Progress func(done, total int, current string, status string)

// ExtractFunc produces the record for one file. Swappable for tests.
type ExtractFunc func(ctx context.Context, path string, sampleRate int) (*track.Track, error)

// Config carries the analysis parameters. Zero values are filled with
// defaults.
type Config struct {
	MaxWorkers     int
	PerFileTimeout time.Duration
	Extensions     []string
	SampleRate     int
	Cache          *cache.Store
	Extract        ExtractFunc
}

// DefaultExtensions are the containers the decoder handles.
var DefaultExtensions = []string{".wav", ".aiff", ".mp3", ".flac"}

func (c Config) withDefaults() Config {
	if c.PerFileTimeout <= 0 {
		c.PerFileTimeout = 60 * time.Second
	}
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultExtensions
	}
	if c.SampleRate <= 0 {
		c.SampleRate = analysis.DefaultSampleRate
	}
	if c.Extract == nil {
		c.Extract = analysis.AnalyzeFile
	}
	return c
}

// WorkerCount picks the pool size: the better of min(6, cpus) and cpus/2,
// never more than the CPU count, scaled down for small batches.
func WorkerCount(cpus, files int) int {
	if cpus < 1 {
		cpus = 1
	}
	w := min6OrHalf(cpus)
	switch {
	case files < 5:
		return 1
	case files < 20:
		return minInt(2, w)
	case files < 50:
		return minInt(4, w)
	}
	return w
}

func min6OrHalf(cpus int) int {
	w := 6
	if cpus < 6 {
		w = cpus
	}
	if half := cpus / 2; half > w {
		w = half
	}
	if w > cpus {
		w = cpus
	}
	if w < 1 {
		w = 1
	}
	return w
}

func numCPU() int { return runtime.NumCPU() }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type jobResult struct {
	idx     int
	track   *track.Track
	failure *Failure
	skipped bool
	cached  bool
}

// AnalyzeFolder analyzes every supported file under root and returns the
// records in enumeration order together with the per-file failures.
func AnalyzeFolder(ctx context.Context, root string, cfg Config, progress Progress) ([]*track.Track, []Failure, error) {
	cfg = cfg.withDefaults()

	files, walkFailures, err := CollectFiles(root, cfg.Extensions)
	if err != nil {
		return nil, nil, err
	}
	failures := append([]Failure(nil), walkFailures...)
	total := len(files)
	if total == 0 {
		return nil, failures, nil
	}

	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = WorkerCount(numCPU(), total)
	}

	sem := make(chan struct{}, workers)
	resCh := make(chan jobResult, total)
	for idx, path := range files {
		go runJob(ctx, cfg, idx, path, sem, resCh)
	}

	// Only the dispatcher blocks here: it drains completions, emits
	// progress in completion order, and re-sorts at the end. Skipped jobs
	// do not advance the done count, so callers see a gapless sequence.
	results := make([]jobResult, total)
	completed := 0
	for i := 0; i < total; i++ {
		r := <-resCh
		results[r.idx] = r
		if r.skipped {
			continue
		}
		completed++
		if progress != nil {
			progress(completed, total, files[r.idx], statusOf(r))
		}
	}

	tracks := make([]*track.Track, 0, total)
	for _, r := range results {
		switch {
		case r.skipped:
		case r.failure != nil:
			failures = append(failures, *r.failure)
		case r.track != nil:
			tracks = append(tracks, r.track)
		}
	}
	return tracks, failures, nil
}

func statusOf(r jobResult) string {
	switch {
	case r.failure != nil:
		return string(r.failure.Reason)
	case r.cached:
		return "cached"
	default:
		return "analyzed"
	}
}

// runJob executes one file's pipeline inside a slot. The job body runs in
// its own goroutine so the deadline can abandon it: on timeout the slot is
// released and the runaway worker is left to notice the dead context.
func runJob(ctx context.Context, cfg Config, idx int, path string, sem chan struct{}, resCh chan<- jobResult) {
	select {
	case <-ctx.Done():
		resCh <- jobResult{idx: idx, skipped: true}
		return
	case sem <- struct{}{}:
	}
	defer func() { <-sem }()
	if ctx.Err() != nil {
		// Cancelled while waiting for a slot: submit nothing new.
		resCh <- jobResult{idx: idx, skipped: true}
		return
	}

	// A batch cancellation does not stop a job already in flight; it runs
	// on until it finishes or its own per-file deadline expires.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.PerFileTimeout)
	defer cancel()

	done := make(chan jobResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- jobResult{idx: idx, failure: &Failure{
					Path:   path,
					Reason: FailWorkerCrash,
					Err:    fmt.Errorf("worker panic: %v", r),
				}}
			}
		}()
		done <- workOne(jctx, cfg, idx, path)
	}()

	select {
	case r := <-done:
		if r.skipped && errors.Is(jctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			// The job noticed its own deadline before the watchdog did.
			r = jobResult{idx: idx, failure: &Failure{
				Path:   path,
				Reason: FailTimeout,
				Err:    context.DeadlineExceeded,
			}}
		}
		resCh <- r
	case <-jctx.Done():
		if errors.Is(jctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			resCh <- jobResult{idx: idx, failure: &Failure{
				Path:   path,
				Reason: FailTimeout,
				Err:    jctx.Err(),
			}}
		} else {
			resCh <- jobResult{idx: idx, skipped: true}
		}
	}
}

func workOne(ctx context.Context, cfg Config, idx int, path string) jobResult {
	if ctx.Err() != nil {
		return jobResult{idx: idx, skipped: true}
	}
	if cfg.Cache != nil {
		if t, ok := cfg.Cache.Get(path); ok {
			return jobResult{idx: idx, track: t, cached: true}
		}
	}
	t, err := cfg.Extract(ctx, path, cfg.SampleRate)
	if err != nil {
		if ctx.Err() != nil {
			// Let the slot watchdog classify deadline vs. cancellation.
			return jobResult{idx: idx, skipped: true}
		}
		return jobResult{idx: idx, failure: &Failure{Path: path, Reason: classify(err), Err: err}}
	}
	if cfg.Cache != nil {
		// A failed cache write costs a re-analysis later, nothing more.
		_ = cfg.Cache.Put(path, t)
	}
	return jobResult{idx: idx, track: t}
}

func classify(err error) FailureReason {
	var stage *analysis.StageError
	if errors.As(err, &stage) {
		switch stage.Stage {
		case analysis.StageDecode:
			if errors.Is(err, decode.ErrInvalidSignal) {
				return FailDecode
			}
			return FailUnreadable
		default:
			return FailFeature
		}
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return FailUnreadable
	}
	return FailUnreadable
}
