package wire

import (
	"encoding/base64"
	"fmt"
)

// Base64Encode standard-encodes bytes with '=' padding.
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode standard-decodes a padded base64 string. Invalid input
// returns an error rather than silently truncating, since callers must be
// able to distinguish a decode failure from an empty payload.
func Base64Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return b, nil
}
