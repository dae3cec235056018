package chathistory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/udit-pandey/kairon/internal/store"
	"github.com/udit-pandey/kairon/internal/timeutil"
)

// ErrMalformedEvent reports a user event missing its NLU parse
// payload. That indicates upstream data corruption, so enrichment
// aborts rather than silently skipping the event.
var ErrMalformedEvent = errors.New("malformed event")

// DisplayRecord is a user or bot event prepared for human display.
// Wire keys follow the history API: the training-example match is
// "is_exists"/"_id", a bot turn's preceding action is "action".
type DisplayRecord struct {
	Event      string   `json:"event"`
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	Text       string   `json:"text,omitempty"`
	IsExists   *bool    `json:"is_exists,omitempty"`
	ExampleID  string   `json:"_id,omitempty"`
	Intent     string   `json:"intent,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Action     string   `json:"action,omitempty"`
}

// Iterator lazily enriches a sender's raw event sequence into
// DisplayRecords, in input order. It is single-pass and not
// restartable: callers needing the sequence twice must re-fetch.
//
//	it := NewIterator(events, examples)
//	for it.Next() {
//	    rec := it.Record()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	events   []store.Event
	examples map[string]string
	idx      int

	// lastAction persists for the whole scan, not per pair:
	// consecutive bot turns share one preceding action.
	lastAction string

	cur DisplayRecord
	err error
}

// NewIterator creates an enrichment iterator over raw events.
// examples maps lowercased utterance text to training-example ids;
// nil means no known examples.
func NewIterator(events []store.Event, examples map[string]string) *Iterator {
	return &Iterator{events: events, examples: examples}
}

// Next advances to the next user or bot event, consuming any other
// kinds to maintain the preceding-action tracker. It returns false
// at the end of input or on the first malformed event.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.idx < len(it.events) {
		ev := it.events[it.idx]
		it.idx++

		switch ev.Kind {
		case store.KindUser, store.KindBot:
			rec, err := it.enrich(ev)
			if err != nil {
				it.err = err
				return false
			}
			it.cur = rec
			return true
		case store.KindAction:
			it.lastAction = ev.Name
		default:
			// Any other kind clears the tracker, as in the source
			// tracker's display pipeline.
			it.lastAction = ""
		}
	}
	return false
}

// Record returns the record produced by the last successful Next.
func (it *Iterator) Record() DisplayRecord {
	return it.cur
}

// Err returns the error that terminated iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) enrich(ev store.Event) (DisplayRecord, error) {
	rec := DisplayRecord{
		Event: ev.Kind,
		Date:  timeutil.DateOf(ev.Timestamp),
		Time:  timeutil.TimeOf(ev.Timestamp),
	}

	if ev.Text != "" {
		rec.Text = ev.Text
		id, ok := it.examples[strings.ToLower(ev.Text)]
		exists := ok
		rec.IsExists = &exists
		if ok {
			rec.ExampleID = id
		}
	}

	switch ev.Kind {
	case store.KindUser:
		intent := gjson.GetBytes(ev.ParseData, "intent")
		if !intent.Exists() {
			return DisplayRecord{}, fmt.Errorf(
				"%w: user event at %v has no parse payload",
				ErrMalformedEvent, ev.Timestamp)
		}
		rec.Intent = intent.Get("name").String()
		confidence := intent.Get("confidence").Float()
		rec.Confidence = &confidence
	case store.KindBot:
		if it.lastAction != "" {
			rec.Action = it.lastAction
		}
	}
	return rec, nil
}
