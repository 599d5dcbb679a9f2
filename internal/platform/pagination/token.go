package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor is the payload carried by an opaque page token. Listings read from an in-memory
// snapshot so a plain offset is enough.
type Cursor struct {
	Offset int `json:"o"`
}

// EncodeToken serialises cursor into a URL-safe page token. The zero cursor encodes to "".
func EncodeToken(cursor Cursor) string {
	if cursor.Offset <= 0 {
		return ""
	}
	data, _ := json.Marshal(cursor)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken parses a token produced by EncodeToken.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.Offset < 0 {
		return Cursor{}, fmt.Errorf("%w: negative offset", ErrInvalidPageToken)
	}
	return cursor, nil
}

// Window slices items for the page starting at cursor and returns the token for the next page.
func Window[T any](items []T, cursor Cursor, pageSize int) ([]T, string) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	start := cursor.Offset
	if start >= len(items) {
		return []T{}, ""
	}
	end := start + pageSize
	if end >= len(items) {
		return items[start:], ""
	}
	return items[start:end], EncodeToken(Cursor{Offset: end})
}
