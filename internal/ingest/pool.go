package ingest

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"b3lob/internal/engine"
	"b3lob/internal/model"
)

// defaultFileWorkers bounds how many input files are decompressed and
// decoded concurrently. Grounded in the teacher's WorkerPool sizing
// (internal/worker.go's defaultNWorkers), scaled down since this fans out
// over a caller-supplied file list rather than an open-ended connection
// stream.
const defaultFileWorkers = 4

// ReadOrdersFromFiles decodes and ticker-filters every file in files,
// fanning the per-file decode out across a bounded, tomb.v2-supervised
// worker pool (spec §6; concurrency shape grounded in the teacher's
// WorkerPool/internal/net/server.go pattern), then merges the per-file
// results and stable-sorts them by prio_date (spec §9). The merge enforces
// the single-session-per-run invariant across the whole file list.
//
// This is the one place spec §5's otherwise single-threaded model allows
// concurrency: it produces a single, exclusively-owned event list before
// any Side Book exists.
func ReadOrdersFromFiles(ticker, dataDir string, files []string) ([]model.Event, error) {
	if len(files) == 0 {
		return nil, nil
	}

	results := make([][]model.Event, len(files))

	t := new(tomb.Tomb)
	jobs := make(chan int, len(files))
	for i := range files {
		jobs <- i
	}
	close(jobs)

	workers := defaultFileWorkers
	if workers > len(files) {
		workers = len(files)
	}

	for w := 0; w < workers; w++ {
		t.Go(func() error {
			for i := range jobs {
				select {
				case <-t.Dying():
					return nil
				default:
				}

				events, err := readOrdersFromFile(ticker, dataDir, files[i])
				if err != nil {
					log.Error().Err(err).Str("file", files[i]).Msg("failed reading event file")
					return err
				}
				results[i] = events
			}
			return nil
		})
	}

	if err := t.Wait(); err != nil {
		return nil, err
	}

	merged, err := mergeSingleSession(files, results)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].PrioDate.Before(merged[j].PrioDate) })
	return merged, nil
}

// mergeSingleSession concatenates the per-file event slices, failing fatally
// if more than one session_date appears across the whole file list (spec §6).
func mergeSingleSession(files []string, results [][]model.Event) ([]model.Event, error) {
	var merged []model.Event
	var sessionDate string

	for i, events := range results {
		for _, ev := range events {
			if sessionDate == "" {
				sessionDate = ev.SessionDate
			} else if ev.SessionDate != sessionDate {
				return nil, fmt.Errorf("%w (file %s, seq %d, session %s, expected %s)",
					engine.ErrMultiSession, files[i], ev.Seq, ev.SessionDate, sessionDate)
			}
		}
		merged = append(merged, events...)
	}

	return merged, nil
}
