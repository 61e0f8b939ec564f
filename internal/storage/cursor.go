package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// listCursor is the keyset position of the last row on a page. Cursors are
// opaque to clients: an offset would skip or repeat rows as the backend
// inserts runs concurrently, a keyset stays stable.
type listCursor struct {
	// CompletedAt is empty for the null-completed_at tail of the ordering
	// (runs still in flight sort after all completed runs).
	CompletedAt string `json:"c,omitempty"`
	RunID       string `json:"r"`
}

// encodeCursor serializes a cursor position for the next_cursor field.
func encodeCursor(completedAt *time.Time, runID string) string {
	c := listCursor{RunID: runID}
	if completedAt != nil {
		c.CompletedAt = completedAt.UTC().Format(time.RFC3339Nano)
	}
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// decodeCursor parses an opaque cursor.
func decodeCursor(s string) (*time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	var c listCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	if c.RunID == "" {
		return nil, "", fmt.Errorf("%w: missing run id", ErrBadCursor)
	}
	if c.CompletedAt == "" {
		return nil, c.RunID, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, c.CompletedAt)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return &ts, c.RunID, nil
}
