// Command reconstruct drives one offline limit order book reconstruction
// run: it reads (or loads a cached) event list for a single ticker and
// session, replays it through a Book Engine, and prints the resulting
// snapshots as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"b3lob/internal/engine"
	"b3lob/internal/ingest"
	"b3lob/internal/model"
)

func main() {
	ticker := flag.String("ticker", "", "Ticker symbol to reconstruct (compulsory)")
	dataDir := flag.String("datadir", ".", "Directory containing the gzip-compressed event files")
	files := flag.String("files", "", "Comma-separated list of event file names under -datadir (compulsory unless -cache is set)")
	cachePath := flag.String("cache", "", "Path to a gob cache file; read if present, written after a fresh parse otherwise")

	psup := flag.Int64("psup", engine.DefaultPSup, "Price-support ceiling, in integer cents")
	ticksize := flag.Int64("ticksize", engine.DefaultTickSize, "Minimum price increment, in integer cents")

	snapshotInterval := flag.Int("snapshot-interval", 60, "Seconds between scheduled snapshots")
	snapshotSize := flag.Int64("snapshot-size", engine.DefaultSnapshotSize, "Effective-price curve lot cap")
	snapshotStart := flag.String("snapshot-start", engine.DefaultSnapshotStart, "First snapshot label, HH:MM:SS")
	snapshotEnd := flag.String("snapshot-end", engine.DefaultSnapshotEnd, "Last snapshot label, HH:MM:SS")
	timeLimit := flag.String("time-limit", engine.DefaultTimeLimit, "Stop processing events after this time, HH:MM")

	flag.Parse()

	if *ticker == "" {
		fmt.Println("Error: -ticker is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	events, err := loadEvents(*ticker, *dataDir, *files, *cachePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading events: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(*psup, *ticksize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "constructing engine: %v\n", err)
		os.Exit(1)
	}

	if err := eng.IngestEvents(events); err != nil {
		fmt.Fprintf(os.Stderr, "ingesting events: %v\n", err)
		os.Exit(1)
	}

	if err := eng.SetSnapshotFrequency(*snapshotInterval, *snapshotSize, *snapshotStart, *snapshotEnd); err != nil {
		fmt.Fprintf(os.Stderr, "scheduling snapshots: %v\n", err)
		os.Exit(1)
	}

	if err := eng.ProcessOrders(*timeLimit); err != nil {
		fmt.Fprintf(os.Stderr, "processing orders: %v\n", err)
		os.Exit(1)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	if err := out.Encode(eng.Snapshots()); err != nil {
		fmt.Fprintf(os.Stderr, "encoding snapshots: %v\n", err)
		os.Exit(1)
	}
}

// loadEvents returns the cached event list if cachePath is set and readable,
// otherwise parses -files under -datadir and, if cachePath is set, writes
// the parsed result back for the next run.
func loadEvents(ticker, dataDir, filesFlag, cachePath string) ([]model.Event, error) {
	if cachePath != "" {
		if events, err := ingest.LoadCache(cachePath); err == nil {
			return events, nil
		}
	}

	if filesFlag == "" {
		return nil, fmt.Errorf("-files is required when -cache is empty or unreadable")
	}

	var names []string
	for _, f := range strings.Split(filesFlag, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			names = append(names, filepath.Base(f))
		}
	}

	events, err := ingest.ReadOrdersFromFiles(ticker, dataDir, names)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		if err := ingest.SaveCache(cachePath, events); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write cache %s: %v\n", cachePath, err)
		}
	}

	return events, nil
}
