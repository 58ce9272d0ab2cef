// Command styletransfer analyzes recordings and renders reference-driven
// style transfer.
//
// Usage:
//
//	styletransfer analyze input.wav                       # print feature JSON
//	styletransfer render -ref ref.wav target.mp3 out.wav  # full transfer
//	styletransfer render -ref ref.wav -mode paired target.wav out.wav
//	styletransfer cache -stats                            # cache counters
//	styletransfer cache -clear                            # drop all entries
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	styler "github.com/mkarjala/go-audio-styler"
)

const (
	minAnalyzeArgs = 1
	minRenderArgs  = 2

	exitUsage = 2
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("styletransfer: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(ctx, os.Args[2:])
	case "render":
		err = runRender(ctx, os.Args[2:])
	case "cache":
		err = runCache(os.Args[2:])
	default:
		usage()
		os.Exit(exitUsage)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  styletransfer analyze [-cache dir] [-v] <input>
  styletransfer render -ref <reference> [-mode style|paired] [-cache dir] [-v] <target> <output>
  styletransfer cache [-cache dir] -stats | -clear`)
}

// engineFlags are the flags shared by every subcommand.
func engineFlags(fs *flag.FlagSet) (cacheDir *string, verbose *bool) {
	cacheDir = fs.String("cache", defaultCacheDir(), "result cache directory, empty to disable")
	verbose = fs.Bool("v", false, "debug logging")
	return cacheDir, verbose
}

func newEngine(cacheDir string, verbose bool) (*styler.Engine, error) {
	logger := logrus.New()
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return styler.New(styler.Config{CacheDir: cacheDir, Logger: logger})
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "styletransfer")
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cacheDir, verbose := engineFlags(fs)
	fs.Parse(args)
	if fs.NArg() < minAnalyzeArgs {
		usage()
		os.Exit(exitUsage)
	}

	engine, err := newEngine(*cacheDir, *verbose)
	if err != nil {
		return err
	}
	defer engine.Close()

	start := time.Now()
	set, err := engine.Analyze(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	log.Printf("analyzed %s in %v", filepath.Base(fs.Arg(0)), time.Since(start).Round(time.Millisecond))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}

func runRender(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	refPath := fs.String("ref", "", "reference recording (required)")
	modeName := fs.String("mode", "style", "inversion mode: style or paired")
	cacheDir, verbose := engineFlags(fs)
	fs.Parse(args)
	if *refPath == "" || fs.NArg() < minRenderArgs {
		usage()
		os.Exit(exitUsage)
	}

	var mode styler.Mode
	switch *modeName {
	case "style":
		mode = styler.ModeStyle
	case "paired":
		mode = styler.ModePaired
	default:
		return fmt.Errorf("unknown mode %q", *modeName)
	}

	engine, err := newEngine(*cacheDir, *verbose)
	if err != nil {
		return err
	}
	defer engine.Close()

	target, output := fs.Arg(0), fs.Arg(1)
	start := time.Now()
	params, metrics, err := engine.Transfer(ctx, *refPath, target, output, mode)
	if err != nil {
		return err
	}

	log.Printf("rendered %s -> %s in %v", filepath.Base(target), filepath.Base(output),
		time.Since(start).Round(time.Millisecond))
	log.Printf("chain: %v (confidence %.2f)", params.Chain, params.Confidence)
	if metrics.Degraded {
		log.Print("note: rendered in degraded mode under memory pressure")
	}
	if metrics.Fallback {
		log.Print("warning: rendering failed, output is an unprocessed copy")
	}
	log.Printf("quality: lufs_err %.2f LU, true peak %.2f dBTP, artifacts %.4f",
		metrics.LUFSError, metrics.TruePeakDB, metrics.ArtifactsRate)
	return nil
}

func runCache(args []string) error {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	showStats := fs.Bool("stats", false, "print cache counters")
	clear := fs.Bool("clear", false, "remove all cached artifacts")
	cacheDir, verbose := engineFlags(fs)
	fs.Parse(args)
	if *cacheDir == "" {
		return fmt.Errorf("no cache directory configured")
	}
	if !*showStats && !*clear {
		usage()
		os.Exit(exitUsage)
	}

	engine, err := newEngine(*cacheDir, *verbose)
	if err != nil {
		return err
	}
	defer engine.Close()

	if *clear {
		removed, err := engine.ClearCache()
		if err != nil {
			return err
		}
		log.Printf("removed %d entries", removed)
	}
	if *showStats {
		s := engine.CacheStats()
		log.Printf("entries %d, size %.1f MB, hits %d, misses %d, evictions %d, hit rate %.1f%%",
			s.TotalEntries, float64(s.TotalSize)/(1024*1024),
			s.HitCount, s.MissCount, s.Evictions, s.HitRate()*100)
	}
	return nil
}
