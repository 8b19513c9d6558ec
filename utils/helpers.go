// Package utils holds small helpers shared across packages: safe display of
// secrets, pointer dereferencing, and simple string shaping. Nothing here
// should depend on any other package in this module.
package utils

// SafeSuffix returns the last 4 characters of s prefixed with "...", for use
// in logs where the full secret must never appear.
func SafeSuffix(s string) string {
	const suffixLength = 4
	if len(s) == 0 {
		return "[EMPTY]"
	}
	if len(s) > suffixLength {
		return "..." + s[len(s)-suffixLength:]
	}
	return "..." + s
}

// MaskSecret renders a secret as its first 8 and last 4 characters separated
// by an ellipsis, the masking rule admin-facing credential listings use.
// Secrets shorter than 12 characters are masked entirely.
func MaskSecret(s string) string {
	const headLen, tailLen = 8, 4
	if len(s) < headLen+tailLen {
		return "****"
	}
	return s[:headLen] + "..." + s[len(s)-tailLen:]
}

// DerefString safely dereferences a string pointer, returning def if s is nil.
func DerefString(s *string, def string) string {
	if s != nil {
		return *s
	}
	return def
}

// DerefFloat64 safely dereferences a float64 pointer, returning def if f is nil.
func DerefFloat64(f *float64, def float64) float64 {
	if f != nil {
		return *f
	}
	return def
}

// Truncate shortens s to at most n runes, appending an ellipsis marker when
// truncation occurred. Used to keep logged upstream error bodies bounded.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "...(truncated)"
}
