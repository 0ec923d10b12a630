package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unparseable journal line: %v", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestFileJournal_AppendsInOrder(t *testing.T) {
	dir := t.TempDir()
	j, err := NewFileJournal(dir, "paper")
	if err != nil {
		t.Fatal(err)
	}

	events := []Event{EventOpened, EventSettled}
	for _, ev := range events {
		entry := Entry{
			Timestamp: time.Now().UTC(),
			Event:     ev,
			Mode:      "paper",
			MarketID:  "m1",
		}
		if err := j.Append(entry); err != nil {
			t.Fatal(err)
		}
	}

	entries := readEntries(t, j.Path())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for i, ev := range events {
		if entries[i].Event != ev {
			t.Errorf("entry %d: expected %s, got %s", i, ev, entries[i].Event)
		}
	}
}

func TestFileJournal_OneFilePerMode(t *testing.T) {
	dir := t.TempDir()

	paper, err := NewFileJournal(dir, "paper")
	if err != nil {
		t.Fatal(err)
	}
	live, err := NewFileJournal(dir, "live")
	if err != nil {
		t.Fatal(err)
	}

	if err := paper.Append(Entry{Event: EventOpened, Mode: "paper", MarketID: "m1"}); err != nil {
		t.Fatal(err)
	}
	if err := live.Append(Entry{Event: EventOpened, Mode: "live", MarketID: "m2"}); err != nil {
		t.Fatal(err)
	}

	if paper.Path() == live.Path() {
		t.Fatal("paper and live journals must not share a file")
	}
	if got := readEntries(t, paper.Path()); len(got) != 1 || got[0].MarketID != "m1" {
		t.Errorf("unexpected paper journal contents: %+v", got)
	}
	if got := readEntries(t, live.Path()); len(got) != 1 || got[0].MarketID != "m2" {
		t.Errorf("unexpected live journal contents: %+v", got)
	}
}

func TestFileJournal_NeverTruncatesAcrossReopens(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileJournal(dir, "paper")
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Append(Entry{Event: EventOpened, MarketID: "m1"}); err != nil {
		t.Fatal(err)
	}

	// A new journal over the same directory appends, never rewrites.
	second, err := NewFileJournal(dir, "paper")
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Append(Entry{Event: EventSettled, MarketID: "m1"}); err != nil {
		t.Fatal(err)
	}

	entries := readEntries(t, second.Path())
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", len(entries))
	}
}
