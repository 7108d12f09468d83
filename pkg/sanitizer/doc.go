// Package sanitizer normalizes user-supplied text before validation and
// storage. Every function is idempotent and never fails; bad input collapses
// to an empty string.
package sanitizer
