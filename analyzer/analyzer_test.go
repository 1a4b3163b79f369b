package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"harmonix/cache"
	"harmonix/camelot"
	"harmonix/track"
)

func fakeTrack(path string, bpm float64) *track.Track {
	code, _ := camelot.FromKey("A", camelot.Minor)
	dur := 300.0
	return &track.Track{
		Path:      path,
		DurationS: dur,
		BPM:       bpm,
		KeyRoot:   "A",
		KeyMode:   camelot.Minor,
		Camelot:   code,
		Energy:    0.5,
		MixInS:    32,
		MixOutS:   256,
		Sections: []track.Section{
			{Label: track.Intro, StartS: 0, EndS: 32},
			{Label: track.Verse, StartS: 32, EndS: 256},
			{Label: track.Outro, StartS: 256, EndS: dur},
		},
	}
}

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("audio bytes"), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func TestAnalyzeFolderEmpty(t *testing.T) {
	tracks, failures, err := AnalyzeFolder(context.Background(), t.TempDir(), Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 0 || len(failures) != 0 {
		t.Errorf("got %d tracks, %d failures; want none", len(tracks), len(failures))
	}
}

func TestAnalyzeFolderOrderAndProgress(t *testing.T) {
	dir := t.TempDir()
	all := writeFiles(t, dir, "c.wav", "a.wav", "b.flac", "sub/d.mp3", "skip.txt")
	var want []string
	for _, p := range all {
		if !strings.HasSuffix(p, ".txt") {
			want = append(want, p)
		}
	}
	sort.Strings(want)

	cfg := Config{
		MaxWorkers: 4,
		Extract: func(ctx context.Context, path string, sampleRate int) (*track.Track, error) {
			return fakeTrack(path, 128), nil
		},
	}
	var events int32
	progress := func(done, total int, current string, status string) {
		atomic.AddInt32(&events, 1)
		if total != 4 {
			t.Errorf("progress total = %d, want 4", total)
		}
	}

	tracks, failures, err := AnalyzeFolder(context.Background(), dir, cfg, progress)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(tracks) != 4 {
		t.Fatalf("got %d tracks, want 4", len(tracks))
	}
	for i, tr := range tracks {
		if tr.Path != want[i] {
			t.Errorf("track %d = %s, want %s (enumeration order)", i, tr.Path, want[i])
		}
	}
	if got := atomic.LoadInt32(&events); got != 4 {
		t.Errorf("got %d progress events, want 4", got)
	}
}

func TestAnalyzeFolderCacheHit(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.wav", "b.wav", "c.wav")
	store, err := cache.Open(filepath.Join(dir, ".cache"))
	if err != nil {
		t.Fatal(err)
	}

	var calls int32
	cfg := Config{
		Cache: store,
		Extract: func(ctx context.Context, path string, sampleRate int) (*track.Track, error) {
			atomic.AddInt32(&calls, 1)
			return fakeTrack(path, 126), nil
		},
	}

	if _, _, err := AnalyzeFolder(context.Background(), dir, cfg, nil); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("first pass: %d extractor calls, want 3", got)
	}

	// Second pass without touching the files: served entirely from cache.
	tracks, failures, err := AnalyzeFolder(context.Background(), dir, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(tracks) != 3 {
		t.Fatalf("got %d tracks, want 3", len(tracks))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("second pass invoked the extractor %d more times", got-3)
	}
}

func TestAnalyzeFolderTimeout(t *testing.T) {
	dir := t.TempDir()
	names := make([]string, 20)
	for i := range names {
		names[i] = fmt.Sprintf("track%02d.wav", i)
	}
	writeFiles(t, dir, names...)
	slow := filepath.Join(dir, "track07.wav")

	timeout := 100 * time.Millisecond
	cfg := Config{
		MaxWorkers:     4,
		PerFileTimeout: timeout,
		Extract: func(ctx context.Context, path string, sampleRate int) (*track.Track, error) {
			if path == slow {
				select {
				case <-time.After(5 * timeout):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return fakeTrack(path, 128), nil
		},
	}

	start := time.Now()
	tracks, failures, err := AnalyzeFolder(context.Background(), dir, cfg, nil)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 19 {
		t.Errorf("got %d tracks, want 19", len(tracks))
	}
	if len(failures) != 1 {
		t.Fatalf("got failures %v, want exactly one", failures)
	}
	if failures[0].Path != slow || failures[0].Reason != FailTimeout {
		t.Errorf("failure = %+v, want timeout on %s", failures[0], slow)
	}
	// The batch must not serialize behind the stuck worker.
	if elapsed > 3*time.Second {
		t.Errorf("batch took %v, timeout did not free the slot", elapsed)
	}
}

func TestAnalyzeFolderWorkerCrash(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "good.wav", "bad.wav")
	bad := filepath.Join(dir, "bad.wav")

	cfg := Config{
		MaxWorkers: 2,
		Extract: func(ctx context.Context, path string, sampleRate int) (*track.Track, error) {
			if path == bad {
				panic("corrupted buffer")
			}
			return fakeTrack(path, 128), nil
		},
	}
	tracks, failures, err := AnalyzeFolder(context.Background(), dir, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 1 {
		t.Errorf("got %d tracks, want 1", len(tracks))
	}
	if len(failures) != 1 || failures[0].Reason != FailWorkerCrash {
		t.Errorf("failures = %v, want one worker_crash", failures)
	}
}

func TestAnalyzeFolderCancellation(t *testing.T) {
	dir := t.TempDir()
	names := make([]string, 10)
	for i := range names {
		names[i] = fmt.Sprintf("t%02d.wav", i)
	}
	writeFiles(t, dir, names...)

	ctx, cancel := context.WithCancel(context.Background())
	var launched int32
	cfg := Config{
		MaxWorkers: 1,
		Extract: func(ctx context.Context, path string, sampleRate int) (*track.Track, error) {
			if atomic.AddInt32(&launched, 1) == 2 {
				cancel()
			}
			return fakeTrack(path, 128), nil
		},
	}
	tracks, failures, err := AnalyzeFolder(ctx, dir, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) >= 10 {
		t.Error("cancellation did not stop submissions")
	}
	if len(tracks) == 0 {
		t.Error("completed records should still be returned")
	}
	for _, f := range failures {
		if f.Reason == FailTimeout {
			t.Errorf("cancellation misreported as timeout: %v", f)
		}
	}
}

func TestWorkerCount(t *testing.T) {
	cases := []struct {
		cpus, files, want int
	}{
		{8, 3, 1},
		{8, 10, 2},
		{8, 30, 4},
		{8, 100, 6},
		{4, 100, 4},
		{16, 100, 8},
		{2, 2, 1},
		{1, 100, 1},
	}
	for _, c := range cases {
		if got := WorkerCount(c.cpus, c.files); got != c.want {
			t.Errorf("WorkerCount(%d cpus, %d files) = %d, want %d", c.cpus, c.files, got, c.want)
		}
	}
}

func TestCollectFilesExtensionsAndCycles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.WAV", "b.Mp3", "c.txt", "nested/deep/d.flac")

	// Symlink loop back to the root; the walk must terminate.
	if err := os.Symlink(dir, filepath.Join(dir, "nested", "loop")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	files, failures, err := CollectFiles(dir, DefaultExtensions)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 0 {
		t.Errorf("unexpected failures: %v", failures)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files (%v), want 3", len(files), files)
	}
	for _, f := range files {
		if strings.HasSuffix(f, ".txt") {
			t.Errorf("unsupported extension included: %s", f)
		}
	}
	if !sort.StringsAreSorted(files) {
		t.Error("enumeration is not sorted")
	}
}

func TestCollectFilesMissingRoot(t *testing.T) {
	if _, _, err := CollectFiles(filepath.Join(t.TempDir(), "nope"), DefaultExtensions); err == nil {
		t.Fatal("expected error for missing root")
	}
}
