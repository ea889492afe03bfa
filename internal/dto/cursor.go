package dto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/DjordjeVuckovic/index-relay/internal/domain"
)

// cursorToken is the wire form of a snapshot position.
type cursorToken struct {
	Priority float64 `json:"p"`
	Key      string  `json:"k"`
}

// EncodeCursor converts a snapshot position to an opaque base64 token.
func EncodeCursor(c domain.Cursor) (string, error) {
	if c.Key == "" {
		return "", fmt.Errorf("cursor key cannot be empty")
	}

	b, err := json.Marshal(cursorToken{Priority: c.Priority, Key: c.Key})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token decodes to nil.
func DecodeCursor(s string) (*domain.Cursor, error) {
	if s == "" {
		return nil, nil
	}

	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cursor: %w", err)
	}

	var t cursorToken
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cursor: %w", err)
	}

	if t.Key == "" {
		return nil, fmt.Errorf("invalid cursor: key cannot be empty")
	}

	return &domain.Cursor{Key: t.Key, Priority: t.Priority}, nil
}

// CursorString encodes c, returning "" for a nil or invalid position.
func CursorString(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	s, err := EncodeCursor(*c)
	if err != nil {
		return ""
	}
	return s
}
