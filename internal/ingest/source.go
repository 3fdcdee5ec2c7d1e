// Package ingest implements the external collaborators spec §6 declares:
// decoding compressed, semicolon-delimited event files filtered by ticker,
// and a binary cache for the parsed event list. These sit outside the
// book-reconstruction core's line budget but are implemented here to
// supplement the distillation (see SPEC_FULL.md's EXTERNAL INTERFACES
// section).
package ingest

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"b3lob/internal/common"
	"b3lob/internal/model"
)

const (
	minFields = 15

	// prioDateLayout joins field 11 (date) and field 6 (time) with the
	// literal two-space separator spec §6 calls out.
	prioDateLayout = "2006-01-02  15:04:05.000000"
)

// readOrdersFromFile opens one gzip-compressed, semicolon-delimited file
// and returns the events whose ticker field matches. The file handle and
// its gzip reader are released on every exit path.
func readOrdersFromFile(ticker, dataDir, fname string) ([]model.Event, error) {
	f, err := os.Open(filepath.Join(dataDir, fname))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fname, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip-opening %s: %w", fname, err)
	}
	defer gz.Close()

	var events []model.Event
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		// Cheap pre-filter before paying for a CSV parse (spec §6).
		if !strings.Contains(line, ticker) {
			continue
		}

		fields, err := splitSemicolonLine(line)
		if err != nil || len(fields) < minFields {
			continue
		}

		recordTicker := strings.TrimSpace(fields[1])
		if recordTicker != ticker {
			continue
		}

		ev, err := lineToEvent(fields)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", fname, err)
	}

	return events, nil
}

// splitSemicolonLine parses one ';'-delimited record using encoding/csv so
// quoting rules, if any, are honored consistently with a full file parse.
func splitSemicolonLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	return r.Read()
}

// lineToEvent maps one decoded record onto an Event per spec §6's field
// table. Lines shorter than minFields are the caller's responsibility to
// have already filtered out.
func lineToEvent(fields []string) (model.Event, error) {
	prioDate, err := time.Parse(prioDateLayout, fields[11]+"  "+fields[6])
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing prio_date: %w", err)
	}

	seq, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing seq: %w", err)
	}
	genID, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing gen_id: %w", err)
	}

	side, ok := common.DecodeSide(fields[2])
	if !ok {
		return model.Event{}, fmt.Errorf("unrecognized side code %q", fields[2])
	}

	eventCode, err := strconv.Atoi(fields[5])
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing event code: %w", err)
	}
	eventType, ok := common.DecodeEventType(eventCode)
	if !ok {
		return model.Event{}, fmt.Errorf("unrecognized event code %d", eventCode)
	}

	rawPrice, err := strconv.ParseFloat(strings.TrimSpace(fields[8]), 64)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing price: %w", err)
	}
	price := int64(math.Round(100 * rawPrice))

	rawSize, err := strconv.ParseInt(fields[9], 10, 64)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing size: %w", err)
	}
	rawExecuted, err := strconv.ParseInt(fields[10], 10, 64)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing executed: %w", err)
	}

	condition, err := strconv.Atoi(fields[14])
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing condition: %w", err)
	}

	return model.Event{
		PrioDate:    prioDate,
		SessionDate: fields[0],
		Seq:         seq,
		GenID:       genID,
		Side:        side,
		EventType:   eventType,
		State:       common.DecodeState(fields[13]),
		Condition:   condition,
		Price:       price,
		Size:        rawSize / 100,
		Executed:    rawExecuted / 100,
	}, nil
}
