package ingest

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"

	"b3lob/internal/model"
)

// ErrEmptyCache is returned by LoadCache when the cache file decodes to an
// empty event list; session_date cannot be re-derived from nothing.
var ErrEmptyCache = errors.New("cache file contains no events")

// SaveCache persists a parsed event list to path using encoding/gob. The
// format is unspecified beyond round-trip equivalence (spec §6).
func SaveCache(path string, events []model.Event) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(events); err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing cache file %s: %w", path, err)
	}
	return nil
}

// LoadCache reads a previously saved event list. It returns the events
// only; session_date is derived from the first event when the list is
// passed to engine.BookEngine.IngestEvents.
func LoadCache(path string) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cache file %s: %w", path, err)
	}

	var events []model.Event
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&events); err != nil {
		return nil, fmt.Errorf("decoding cache file %s: %w", path, err)
	}
	if len(events) == 0 {
		return nil, ErrEmptyCache
	}

	return events, nil
}
