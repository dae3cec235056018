package chathistory

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/udit-pandey/kairon/internal/store"
)

func parseData(intent string, confidence float64) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"intent": map[string]any{"name": intent, "confidence": confidence},
	})
	return data
}

func collect(t *testing.T, it *Iterator) []DisplayRecord {
	t.Helper()
	var records []DisplayRecord
	for it.Next() {
		records = append(records, it.Record())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator failed: %v", err)
	}
	return records
}

func TestIteratorEnrichesUserAndBot(t *testing.T) {
	// 2024-01-15 10:30:00 UTC
	const ts = 1705314600.5
	events := []store.Event{
		{Kind: store.KindUser, Timestamp: ts, Text: "Hello There",
			ParseData: parseData("greet", 0.93)},
		{Kind: store.KindAction, Timestamp: ts + 1, Name: "utter_greet"},
		{Kind: store.KindBot, Timestamp: ts + 2, Text: "hi!"},
	}
	examples := map[string]string{"hello there": "ex-42"}

	records := collect(t, NewIterator(events, examples))
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	isTrue := true
	isFalse := false
	conf := 0.93
	want := []DisplayRecord{
		{
			Event: "user", Date: "2024-01-15", Time: "10:30:00.5",
			Text: "Hello There", IsExists: &isTrue, ExampleID: "ex-42",
			Intent: "greet", Confidence: &conf,
		},
		{
			Event: "bot", Date: "2024-01-15", Time: "10:30:02.5",
			Text: "hi!", IsExists: &isFalse, Action: "utter_greet",
		},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestExampleMatchIsCaseInsensitive(t *testing.T) {
	events := []store.Event{
		{Kind: store.KindUser, Timestamp: 1, Text: "BOOK a FLIGHT",
			ParseData: parseData("book", 0.8)},
	}
	records := collect(t, NewIterator(events, map[string]string{
		"book a flight": "ex-1",
	}))
	if !*records[0].IsExists || records[0].ExampleID != "ex-1" {
		t.Errorf("record = %+v, want example match", records[0])
	}
}

func TestFirstBotTurnHasNoAction(t *testing.T) {
	events := []store.Event{
		{Kind: store.KindBot, Timestamp: 1, Text: "welcome"},
		{Kind: store.KindAction, Timestamp: 2, Name: "utter_ask"},
		{Kind: store.KindBot, Timestamp: 3, Text: "question?"},
		{Kind: store.KindBot, Timestamp: 4, Text: "still waiting"},
	}
	records := collect(t, NewIterator(events, nil))
	if records[0].Action != "" {
		t.Errorf("first bot turn action = %q, want empty", records[0].Action)
	}
	// Consecutive bot turns share the preceding action.
	if records[1].Action != "utter_ask" || records[2].Action != "utter_ask" {
		t.Errorf("bot actions = %q, %q, want utter_ask for both",
			records[1].Action, records[2].Action)
	}
}

func TestOtherKindsClearActionTracker(t *testing.T) {
	events := []store.Event{
		{Kind: store.KindAction, Timestamp: 1, Name: "utter_greet"},
		{Kind: "restart", Timestamp: 2},
		{Kind: store.KindBot, Timestamp: 3, Text: "fresh start"},
	}
	records := collect(t, NewIterator(events, nil))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Action != "" {
		t.Errorf("action = %q, want cleared after restart", records[0].Action)
	}
}

func TestMalformedUserEventStopsIteration(t *testing.T) {
	events := []store.Event{
		{Kind: store.KindUser, Timestamp: 1, Text: "ok",
			ParseData: parseData("greet", 0.9)},
		{Kind: store.KindUser, Timestamp: 2, Text: "broken"},
		{Kind: store.KindBot, Timestamp: 3, Text: "never reached"},
	}
	it := NewIterator(events, nil)

	if !it.Next() {
		t.Fatal("first event should enrich")
	}
	if it.Next() {
		t.Fatal("malformed event should stop iteration")
	}
	if !errors.Is(it.Err(), ErrMalformedEvent) {
		t.Errorf("Err() = %v, want ErrMalformedEvent", it.Err())
	}
	// Terminal: further calls keep returning false.
	if it.Next() {
		t.Error("iterator should stay stopped after an error")
	}
}

func TestEmptyInput(t *testing.T) {
	it := NewIterator(nil, nil)
	if it.Next() {
		t.Fatal("Next on empty input should be false")
	}
	if it.Err() != nil {
		t.Errorf("Err = %v, want nil", it.Err())
	}
}

func TestBotWithoutTextHasNoExistenceCheck(t *testing.T) {
	events := []store.Event{
		{Kind: store.KindBot, Timestamp: 1},
	}
	records := collect(t, NewIterator(events, map[string]string{"x": "y"}))
	if records[0].IsExists != nil {
		t.Errorf("IsExists = %v, want nil for textless event", *records[0].IsExists)
	}
}
