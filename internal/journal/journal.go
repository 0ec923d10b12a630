// Package journal provides the append-only trade record. One file per
// execution mode, one JSON line per lifecycle transition, never
// rewritten in place.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event names a position lifecycle transition or execution outcome.
type Event string

const (
	EventOpened          Event = "opened"
	EventExecutionFailed Event = "execution_failed"
	EventUnwound         Event = "unwound"
	EventUnwindFailed    Event = "unwind_failed"
	EventSettled         Event = "settled"
	EventCancelled       Event = "cancelled"
)

// Entry mirrors one transition in a position's history.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	Event       Event     `json:"event"`
	Mode        string    `json:"mode"`
	PositionID  string    `json:"position_id,omitempty"`
	MarketID    string    `json:"market_id"`
	Question    string    `json:"question,omitempty"`
	LotSize     float64   `json:"lot_size,omitempty"`
	YesPrice    float64   `json:"yes_price,omitempty"`
	NoPrice     float64   `json:"no_price,omitempty"`
	EdgeAtEntry float64   `json:"edge_at_entry,omitempty"`
	RealizedPnL *float64  `json:"realized_pnl,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Journal appends entries durably. Append must complete before the
// operation that produced the entry returns to its caller.
type Journal interface {
	Append(e Entry) error
}

// FileJournal writes JSONL to <dir>/<mode>.jsonl.
type FileJournal struct {
	mu   sync.Mutex
	path string
}

// NewFileJournal creates the journal directory if needed and returns a
// journal bound to the given mode's file.
func NewFileJournal(dir, mode string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	return &FileJournal{path: filepath.Join(dir, mode+".jsonl")}, nil
}

// Path returns the journal file location.
func (j *FileJournal) Path() string {
	return j.path
}

// Append writes one entry as a JSON line. The file is opened in append
// mode on every write so an external rotation never loses entries.
func (j *FileJournal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}

	if err := json.NewEncoder(f).Encode(e); err != nil {
		f.Close()
		return fmt.Errorf("appending journal entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}
	return nil
}
