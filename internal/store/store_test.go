package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertSessionIdempotent(t *testing.T) {
	db := openTestDB(t)

	id1, err := db.UpsertSession("default", "alice")
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	id2, err := db.UpsertSession("default", "alice")
	if err != nil {
		t.Fatalf("UpsertSession again: %v", err)
	}
	if id1 != id2 {
		t.Errorf("session id changed on upsert: %d != %d", id1, id2)
	}

	other, err := db.UpsertSession("acme", "alice")
	if err != nil {
		t.Fatalf("UpsertSession other tenant: %v", err)
	}
	if other == id1 {
		t.Errorf("same session id across tenants: %d", other)
	}
}

func TestAppendEventsPreservesOrder(t *testing.T) {
	db := openTestDB(t)

	first := []Event{
		{Kind: KindUser, Timestamp: 100, Text: "hi"},
		{Kind: KindBot, Timestamp: 101, Text: "hello"},
	}
	if err := db.AppendEvents("default", "alice", first); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	// A second batch continues the sequence.
	second := []Event{
		{Kind: KindAction, Timestamp: 102, Name: "action_listen"},
		{Kind: KindUser, Timestamp: 103, Text: "bye"},
	}
	if err := db.AppendEvents("default", "alice", second); err != nil {
		t.Fatalf("AppendEvents second batch: %v", err)
	}

	got, err := db.SenderEvents(context.Background(), "default", "alice", 0,
		[]string{KindUser, KindBot, KindAction})
	if err != nil {
		t.Fatalf("SenderEvents: %v", err)
	}
	want := append(first, second...)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendEventsEmptyIsNoop(t *testing.T) {
	db := openTestDB(t)
	if err := db.AppendEvents("default", "alice", nil); err != nil {
		t.Fatalf("AppendEvents(nil): %v", err)
	}
	senders, err := db.Senders(context.Background(), "default", 0)
	if err != nil {
		t.Fatalf("Senders: %v", err)
	}
	if len(senders) != 0 {
		t.Errorf("expected no sessions, got %v", senders)
	}
}

func TestSendersWindowAndTenantScope(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	seed := func(tenant, sender string, ts float64) {
		t.Helper()
		err := db.AppendEvents(tenant, sender, []Event{
			{Kind: KindUser, Timestamp: ts, Text: "hi"},
		})
		if err != nil {
			t.Fatalf("AppendEvents %s/%s: %v", tenant, sender, err)
		}
	}
	seed("default", "recent", 1000)
	seed("default", "stale", 10)
	seed("acme", "other", 1000)

	senders, err := db.Senders(ctx, "default", 500)
	if err != nil {
		t.Fatalf("Senders: %v", err)
	}
	if diff := cmp.Diff([]string{"recent"}, senders); diff != "" {
		t.Errorf("senders mismatch (-want +got):\n%s", diff)
	}

	// Widening the window brings the stale session back.
	senders, err = db.Senders(ctx, "default", 0)
	if err != nil {
		t.Fatalf("Senders wide: %v", err)
	}
	sort.Strings(senders)
	if diff := cmp.Diff([]string{"recent", "stale"}, senders); diff != "" {
		t.Errorf("wide senders mismatch (-want +got):\n%s", diff)
	}
}

func TestSenderEventsFiltersKinds(t *testing.T) {
	db := openTestDB(t)
	err := db.AppendEvents("default", "alice", []Event{
		{Kind: KindUser, Timestamp: 1, Text: "hi",
			ParseData: json.RawMessage(`{"intent":{"name":"greet","confidence":0.9}}`)},
		{Kind: "slot", Timestamp: 2, Name: "requested_slot"},
		{Kind: KindAction, Timestamp: 3, Name: "utter_greet"},
		{Kind: KindBot, Timestamp: 4, Text: "hello"},
	})
	if err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	got, err := db.SenderEvents(context.Background(), "default", "alice", 0,
		[]string{KindUser, KindBot})
	if err != nil {
		t.Fatalf("SenderEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Kind != KindUser || got[1].Kind != KindBot {
		t.Errorf("unexpected kinds: %s, %s", got[0].Kind, got[1].Kind)
	}
	if string(got[0].ParseData) != `{"intent":{"name":"greet","confidence":0.9}}` {
		t.Errorf("parse_data not round-tripped: %s", got[0].ParseData)
	}
}

func TestTenantEventsGroupsBySender(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, sender := range []string{"alice", "bob"} {
		err := db.AppendEvents("default", sender, []Event{
			{Kind: KindUser, Timestamp: 1, Text: "hi"},
			{Kind: KindBot, Timestamp: 2, Text: "hello"},
		})
		if err != nil {
			t.Fatalf("AppendEvents %s: %v", sender, err)
		}
	}

	got, err := db.TenantEvents(ctx, "default", 0, []string{KindUser, KindBot})
	if err != nil {
		t.Fatalf("TenantEvents: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}
	// Grouped: a sender's events are contiguous and ordered.
	if got[0].SenderID != got[1].SenderID || got[2].SenderID != got[3].SenderID {
		t.Errorf("events not grouped by sender: %+v", got)
	}
	if got[0].Kind != KindUser || got[1].Kind != KindBot {
		t.Errorf("events not in recorded order: %+v", got[:2])
	}
}

func TestImportJSONL(t *testing.T) {
	db := openTestDB(t)

	lines := `{"sender_id": "alice", "events": [{"event": "user", "timestamp": 1, "text": "hi", "parse_data": {"intent": {"name": "greet", "confidence": 0.9}}}, {"event": "bot", "timestamp": 2, "text": "hello"}]}
not json
{"tenant_id": "acme", "sender_id": "bob", "events": [{"event": "action", "timestamp": 3, "name": "utter_bye"}]}
{"events": [{"event": "user", "timestamp": 4}]}
`
	path := filepath.Join(t.TempDir(), "export.jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	stats, err := db.ImportJSONL(path, "default")
	if err != nil {
		t.Fatalf("ImportJSONL: %v", err)
	}
	want := ImportStats{Sessions: 2, Events: 3, Skipped: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	ctx := context.Background()
	events, err := db.SenderEvents(ctx, "default", "alice", 0,
		[]string{KindUser, KindBot})
	if err != nil {
		t.Fatalf("SenderEvents: %v", err)
	}
	if len(events) != 2 || events[0].Text != "hi" {
		t.Fatalf("alice events = %+v", events)
	}
	if !json.Valid(events[0].ParseData) {
		t.Errorf("imported parse_data is not JSON: %s", events[0].ParseData)
	}

	acme, err := db.Senders(ctx, "acme", 0)
	if err != nil {
		t.Fatalf("Senders acme: %v", err)
	}
	if diff := cmp.Diff([]string{"bob"}, acme); diff != "" {
		t.Errorf("acme senders mismatch (-want +got):\n%s", diff)
	}
}

func TestImportJSONLMissingFile(t *testing.T) {
	db := openTestDB(t)
	_, err := db.ImportJSONL(filepath.Join(t.TempDir(), "nope.jsonl"), "default")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
