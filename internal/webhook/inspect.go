package webhook

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Field extracts the value at path from a marshalled payload. Paths use gjson
// syntax ("repository.full_name"); a leading "$." is accepted and dropped.
func Field(data []byte, path string) (string, error) {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("invalid JSON")
	}

	result := gjson.GetBytes(data, path)
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}
	return result.String(), nil
}
