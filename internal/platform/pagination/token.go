// Package pagination provides the opaque page token codec shared by the
// Firestore repositories. Tokens carry a repository specific cursor payload
// encoded as URL-safe base64 JSON, so clients treat them as opaque strings.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPageToken is returned when a page token cannot be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

// EncodeToken serialises the cursor payload into an opaque page token.
func EncodeToken(cursor any) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a token produced by EncodeToken into the provided
// cursor payload. An empty token leaves the payload untouched and reports
// ok=false.
func DecodeToken(token string, cursor any) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if err := json.Unmarshal(data, cursor); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return true, nil
}

// ClampLimit normalises a requested page size against the given defaults.
func ClampLimit(requested, fallback, max int) int {
	if requested <= 0 {
		return fallback
	}
	if max > 0 && requested > max {
		return max
	}
	return requested
}
