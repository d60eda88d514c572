// Package utils holds small helpers shared by the HTTP layer and the CLI.
package utils

import "strconv"

// Page bounds applied to list endpoints.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
// Surrounding whitespace is not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page and page_size values and bounds them: page is at
// least 1, page size is within [1, MaxPageSize].
func ClampPage(rawPage, rawSize string) (page, size int) {
	page = max(AtoiDefault(rawPage, DefaultPage), 1)
	size = min(max(AtoiDefault(rawSize, DefaultPageSize), 1), MaxPageSize)
	return page, size
}

// Offset is the row offset of a 1-based page.
func Offset(page, size int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * size
}

// TotalPages is ceil(total/size), zero when either is non-positive.
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
