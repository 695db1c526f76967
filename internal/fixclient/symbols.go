package fixclient

import (
	"errors"
	"strings"
)

// ErrNoSymbols is returned when a subscribe request has no usable symbol.
var ErrNoSymbols = errors.New("no valid symbols entered")

// NormalizeSymbols trims and upper-cases symbols, splitting comma-separated
// entries and dropping blanks and duplicates. Order of first appearance is kept.
func NormalizeSymbols(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range raw {
		for _, s := range strings.Split(entry, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
