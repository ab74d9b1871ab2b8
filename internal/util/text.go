package util

import "strings"

// SanitizeStoreText strips null bytes and invalid UTF-8 so values can be
// written as Postgres text without the driver rejecting them.
func SanitizeStoreText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// Min returns the smaller of two ints.
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
