// Package util provides small helpers shared by the driver and the storage backends.
package util

import (
	"fmt"
	"strings"
	"unicode"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// SplitCommand splits a driver command line into the command and its
// arguments. Arguments are separated by whitespace; a double-quoted argument
// may contain spaces and uses "" for a literal quote.
// Input format: :SET:CELL: cargo day 3 0.25
func SplitCommand(line string) (command string, args []string) {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	started := false

	runes := []rune(strings.TrimSpace(line))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			cur.WriteRune('"')
			i++
		case r == '"':
			inQuotes = !inQuotes
			started = true
		case unicode.IsSpace(r) && !inQuotes:
			if started {
				fields = append(fields, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		fields = append(fields, cur.String())
	}

	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToUpper(fields[0]), fields[1:]
}

// ParsePhase maps "day" or "night" to the daylight flag.
func ParsePhase(s string) (day bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day":
		return true, nil
	case "night":
		return false, nil
	}
	return false, fmt.Errorf("unknown phase %q, want day or night", s)
}

// SafeFileName replaces characters that are awkward in file names with
// underscores. An empty name becomes "run".
func SafeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "run"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '/', '\\', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
}
