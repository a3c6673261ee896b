package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// Cursor marks the last item of a served page. Pages are keyed by item ID;
// the timestamp travels along so ordering can be resumed even after the
// referenced item is gone.
type Cursor struct {
	LastID    string    `json:"id"`
	Timestamp time.Time `json:"ts"`
}

// PageResult is one page of a paginated listing.
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// EncodeCursor creates an opaque URL-safe cursor from the last item ID and
// its timestamp. An empty ID yields an empty cursor.
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw, err := json.Marshal(Cursor{LastID: lastID, Timestamp: timestamp.UTC()})
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}

// DecodeCursor decodes a cursor produced by EncodeCursor. An empty cursor
// decodes to nil without error.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var c Cursor
	if err := json.Unmarshal(decoded, &c); err != nil {
		return nil, ErrInvalidCursor
	}
	if c.LastID == "" {
		return nil, ErrInvalidCursor
	}

	return &c, nil
}

// CreateNextCursor builds the cursor for the page after items. A short page
// means the listing is exhausted and no cursor is returned.
func CreateNextCursor[T any](items []T, limit int, getID func(T) string, getTimestamp func(T) time.Time) string {
	if len(items) == 0 || len(items) < limit {
		return ""
	}
	last := items[len(items)-1]
	return EncodeCursor(getID(last), getTimestamp(last))
}
