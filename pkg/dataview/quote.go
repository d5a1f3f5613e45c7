package dataview

import "strings"

// Quote escapes a table or column name for interpolation into SQL text. Identifiers
// can't be bound as parameters, so every interpolated name must go through here;
// values never do, they are always bound.
func Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
