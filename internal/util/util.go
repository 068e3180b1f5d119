// Package util provides argument cleanup helpers for the command protocol.
package util

import "strings"

// ArgSeparator separates the command and its arguments on one input line.
const ArgSeparator = "|"

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArg trims whitespace and surrounding quotes and unescapes inner quotes.
func CleanArg(s string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(s)))
}

// SplitLine splits "COMMAND|arg|arg" into the command and its cleaned
// arguments. Blank lines and lines starting with '#' yield an empty command.
func SplitLine(line string) (string, []string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil
	}
	parts := strings.Split(line, ArgSeparator)
	cmd := strings.ToUpper(strings.TrimSpace(parts[0]))
	args := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		args = append(args, CleanArg(p))
	}
	return cmd, args
}
