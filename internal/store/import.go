package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// maxLineSize bounds a single JSONL conversation document.
const maxLineSize = 16 * 1024 * 1024

// ImportStats summarizes a JSONL import.
type ImportStats struct {
	Sessions int
	Events   int
	Skipped  int
}

// ImportJSONL loads tracker-style conversation exports into the
// store. Each line is one conversation document:
//
//	{"tenant_id": "...", "sender_id": "...", "events": [...]}
//
// Lines without a sender_id are skipped. defaultTenant applies to
// lines that carry no tenant_id.
func (db *DB) ImportJSONL(path, defaultTenant string) (ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	var stats ImportStats
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !gjson.ValidBytes(line) {
			stats.Skipped++
			continue
		}

		sender := gjson.GetBytes(line, "sender_id").String()
		if sender == "" {
			stats.Skipped++
			continue
		}
		tenant := gjson.GetBytes(line, "tenant_id").String()
		if tenant == "" {
			tenant = defaultTenant
		}

		var events []Event
		gjson.GetBytes(line, "events").ForEach(func(_, v gjson.Result) bool {
			ev := Event{
				Kind:      v.Get("event").String(),
				Timestamp: v.Get("timestamp").Float(),
				Text:      v.Get("text").String(),
				Name:      v.Get("name").String(),
			}
			if pd := v.Get("parse_data"); pd.Exists() {
				ev.ParseData = json.RawMessage(pd.Raw)
			}
			events = append(events, ev)
			return true
		})

		if err := db.AppendEvents(tenant, sender, events); err != nil {
			return stats, fmt.Errorf("importing %s: %w", sender, err)
		}
		stats.Sessions++
		stats.Events += len(events)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading import file: %w", err)
	}
	return stats, nil
}
