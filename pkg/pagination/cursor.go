// Package pagination implements the opaque cursor tokens used by all list
// endpoints. A cursor encodes the sort key of the last row on the previous
// page (created_at + id) together with a hash of the active filter, so a
// token replayed against a different filter is rejected instead of silently
// returning a skewed page.
package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultLimit and MaxLimit bound page sizes across all list endpoints.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is the decoded form of a page token.
type Cursor struct {
	CreatedAt  time.Time `json:"t"`
	ID         uuid.UUID `json:"id"`
	FilterHash string    `json:"f,omitempty"`
}

// Encode serializes the cursor into an opaque URL-safe token.
func Encode(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Decode parses a token produced by Encode. Empty tokens are an error;
// callers treat an absent query parameter as "first page" before calling.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, fmt.Errorf("empty cursor token")
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	if c.ID == uuid.Nil {
		return Cursor{}, fmt.Errorf("cursor missing id")
	}
	return c, nil
}

// HashFilter derives a short stable hash of a filter description.
func HashFilter(filter string) string {
	if filter == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(filter))
	return hex.EncodeToString(sum[:])[:16]
}

// ValidateFilter rejects cursors minted under a different filter.
func ValidateFilter(c Cursor, filter string) error {
	if c.FilterHash != HashFilter(filter) {
		return fmt.Errorf("cursor does not match the requested filter")
	}
	return nil
}

// ClampLimit normalizes a client-supplied page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// NextToken builds the token for the page following a row with the given
// sort key, or "" when the page was not full.
func NextToken(createdAt time.Time, id uuid.UUID, filter string, full bool) string {
	if !full {
		return ""
	}
	token, err := Encode(Cursor{CreatedAt: createdAt, ID: id, FilterHash: HashFilter(filter)})
	if err != nil {
		return ""
	}
	return token
}
