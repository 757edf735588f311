package gcode

import "strings"

// NormalizeFilename applies spec.md §4.D.4 uniformly before any
// file-related RPC: strip quotes/whitespace, drop a leading "0:/",
// collapse "gcodes/" or "/gcodes/" to a leading "/", and ensure the
// result starts with "/".
func NormalizeFilename(name string) string {
	name = strings.Trim(name, " \t\"'")

	if strings.HasPrefix(name, "0:/") {
		name = name[3:]
	}

	switch {
	case strings.HasPrefix(name, "/gcodes/"):
		name = name[len("/gcodes"):]
	case strings.HasPrefix(name, "gcodes/"):
		name = "/" + name[len("gcodes/"):]
	}

	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}

	return name
}
