package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"harmonix/analyzer"
	"harmonix/cache"
	"harmonix/export"
	"harmonix/sequencer"
	"harmonix/track"
)

func main() {
	log.SetFlags(0)

	mode := flag.String("mode", "", "analyze | playlist | cache-clear | cache-migrate")
	root := flag.String("root", "", "music folder to analyze (recursive)")
	cacheDir := flag.String("cache", defaultCacheDir(), "track cache directory")
	noCache := flag.Bool("no-cache", false, "skip the track cache entirely")
	workers := flag.Int("workers", 0, "worker count (0 = auto)")
	timeout := flag.Int("timeout", 60, "per-file analysis timeout in seconds")
	strategy := flag.String("strategy", "Harmonic Flow", "sequencing strategy name")
	name := flag.String("name", "Harmonix Set", "playlist name for exports")
	m3uOut := flag.String("m3u", "", "write the playlist as extended M3U to this file")
	xmlOut := flag.String("xml", "", "write the playlist as rekordbox-style XML to this file")
	bpmTol := flag.Float64("bpm-tolerance", 6, "hard BPM window for harmonic strategies")
	strictness := flag.Int("strictness", 5, "harmonic strictness 1..10")
	genreWeight := flag.Float64("genre-weight", 0.5, "genre factor weight 0..1")
	peak := flag.Float64("peak", 66, "peak position percent for Peak-Time")
	experimental := flag.Bool("experimental", false, "allow distant wheel jumps at low score")
	oldVersion := flag.Int("from-version", 0, "old schema version for cache-migrate")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch *mode {
	case "analyze":
		if *root == "" {
			log.Fatal("missing -root")
		}
		tracks, failures := runAnalysis(ctx, *root, *cacheDir, *noCache, *workers, *timeout)
		printTracks(tracks)
		printFailures(failures)

	case "playlist":
		if *root == "" {
			log.Fatal("missing -root")
		}
		strat, err := sequencer.ParseStrategy(*strategy)
		if err != nil {
			log.Fatalf("%v (known: %v)", err, sequencer.Strategies())
		}
		tracks, failures := runAnalysis(ctx, *root, *cacheDir, *noCache, *workers, *timeout)
		printFailures(failures)

		params := sequencer.Params{
			BPMTolerance:       *bpmTol,
			PeakPosition:       *peak,
			HarmonicStrictness: *strictness,
			GenreWeight:        *genreWeight,
			AllowExperimental:  *experimental,
		}
		res := sequencer.Sequence(tracks, strat, params)
		printPlaylist(res, strat, params)

		if *m3uOut != "" {
			writeExport(*m3uOut, func(f *os.File) error {
				return export.WriteM3U(f, *name, res.Playlist)
			})
			fmt.Printf("Wrote %s\n", *m3uOut)
		}
		if *xmlOut != "" {
			writeExport(*xmlOut, func(f *os.File) error {
				return export.WriteXML(f, *name, res.Playlist)
			})
			fmt.Printf("Wrote %s\n", *xmlOut)
		}

	case "cache-clear":
		store := openCache(*cacheDir)
		if err := store.Clear(); err != nil {
			log.Fatalf("cache clear: %v", err)
		}
		fmt.Println("Cache cleared.")

	case "cache-migrate":
		store, err := cache.Open(*cacheDir)
		if errors.Is(err, cache.ErrSchemaMismatch) || err == nil {
			if store == nil {
				log.Fatalf("cache migrate: %v", err)
			}
			if err := store.MigrateSchema(*oldVersion, cache.SchemaVersion); err != nil {
				log.Fatalf("cache migrate: %v", err)
			}
			fmt.Printf("Cache migrated to schema version %d.\n", cache.SchemaVersion)
			return
		}
		log.Fatalf("cache migrate: %v", err)

	default:
		fmt.Println("Usage:")
		fmt.Println("  Analyze a folder:")
		fmt.Println("    harmonix -mode analyze -root /path/to/music")
		fmt.Println("  Build and export a playlist:")
		fmt.Println("    harmonix -mode playlist -root /path/to/music -strategy \"Harmonic Flow\" -m3u set.m3u8 -xml set.xml")
		fmt.Println("  Cache administration:")
		fmt.Println("    harmonix -mode cache-clear")
		fmt.Println("    harmonix -mode cache-migrate -from-version 3")
	}
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".harmonix-cache"
	}
	return filepath.Join(base, "harmonix")
}

func openCache(dir string) *cache.Store {
	store, err := cache.Open(dir)
	if err != nil {
		if errors.Is(err, cache.ErrSchemaMismatch) {
			log.Fatalf("cache at %s uses an old schema; run -mode cache-migrate", dir)
		}
		log.Fatalf("cache open: %v", err)
	}
	return store
}

func runAnalysis(ctx context.Context, root, cacheDir string, noCache bool, workers, timeoutS int) ([]*track.Track, []analyzer.Failure) {
	cfg := analyzer.Config{
		MaxWorkers:     workers,
		PerFileTimeout: time.Duration(timeoutS) * time.Second,
	}
	if !noCache {
		cfg.Cache = openCache(cacheDir)
	}

	p := mpb.New(mpb.WithWidth(64))
	var bar *mpb.Bar
	progress := func(done, total int, current string, status string) {
		if bar == nil {
			bar = p.AddBar(int64(total),
				mpb.PrependDecorators(
					decor.Name("Analyzing: "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(
					decor.Percentage(),
					decor.EwmaETA(decor.ET_STYLE_GO, 60),
				),
			)
		}
		bar.Increment()
	}

	tracks, failures, err := analyzer.AnalyzeFolder(ctx, root, cfg, progress)
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}
	if bar != nil {
		bar.Abort(false)
	}
	p.Wait()
	return tracks, failures
}

func printTracks(tracks []*track.Track) {
	if len(tracks) == 0 {
		fmt.Println("No analyzable tracks found.")
		return
	}
	fmt.Printf("%-30s %-24s %7s %5s %6s %6s %8s %8s\n",
		"TITLE", "ARTIST", "BPM", "KEY", "ENERGY", "BASS", "MIX IN", "MIX OUT")
	for _, t := range tracks {
		fmt.Printf("%-30.30s %-24.24s %7.1f %5s %6.2f %6.2f %8.1f %8.1f\n",
			t.Title, t.Artist, t.BPM, t.Camelot, t.Energy, t.BassIntensity, t.MixInS, t.MixOutS)
	}
	fmt.Printf("%d tracks analyzed.\n", len(tracks))
}

func printFailures(failures []analyzer.Failure) {
	for _, f := range failures {
		log.Printf("skipped %s (%s): %v", f.Path, f.Reason, f.Err)
	}
}

func printPlaylist(res sequencer.Result, strat sequencer.Strategy, params sequencer.Params) {
	fmt.Printf("\nPlaylist (%s), %d tracks:\n", strat, len(res.Playlist))
	for i, t := range res.Playlist {
		fmt.Printf("%3d) %s - %s  [%s %.1f BPM, energy %.2f]\n",
			i+1, t.Artist, t.Title, t.Camelot, t.BPM, t.Energy)
	}

	m := res.Metrics
	fmt.Println("\nQuality:")
	if m.MeanCompat == sequencer.MeanCompatUndefined {
		fmt.Println("  mean compatibility: n/a (single track, no transitions)")
	} else {
		fmt.Printf("  mean compatibility: %.1f\n", m.MeanCompat)
	}
	fmt.Printf("  harmonic hit rate:  %.0f%%\n", m.HarmonicHitRate*100)
	fmt.Printf("  bpm jumps:          max %.1f  p95 %.1f  mean %.1f\n", m.BPMJumpMax, m.BPMJumpP95, m.BPMJumpMean)
	fmt.Printf("  energy correlation: %.2f\n", m.EnergyCorrelation)
	fmt.Printf("  genre switches:     %d\n", m.GenreSwitches)
	for _, e := range res.Events {
		fmt.Printf("  note: step %d: %s\n", e.Step, e.Detail)
	}

	for _, tr := range sequencer.Transitions(res.Playlist, strat, params) {
		fmt.Printf("  %2d -> %2d: fade %.1fs-%.1fs, risk %s (%s)\n",
			tr.Index+1, tr.Index+2, tr.FadeOutStart, tr.FadeOutEnd, tr.Risk, tr.Notes)
	}
}

func writeExport(path string, write func(*os.File) error) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	defer f.Close()
	if err := write(f); err != nil {
		log.Fatalf("export: %v", err)
	}
}
