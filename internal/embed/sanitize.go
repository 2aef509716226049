package embed

import (
	"net"
	"regexp"
	"strings"
)

var (
	disallowedChars = regexp.MustCompile(`[^a-z0-9_\-.]`)
	repeatedDots    = regexp.MustCompile(`\.{2,}`)
	repeatedUnders  = regexp.MustCompile(`_{2,}`)
)

// minCollectionNameLen and maxCollectionNameLen bound the sanitized
// collection name, matching what the underlying vector store's directory
// naming can tolerate.
const (
	minCollectionNameLen = 3
	maxCollectionNameLen = 63
)

// CollectionName derives the deterministic collection name for a vault
// (base) embedded with a given model. Changing the embedding model always
// yields a disjoint collection name, so switching models can never read
// stale vectors produced by a different embedding space.
func CollectionName(base, modelName string) string {
	return sanitize(base + "_" + modelName)
}

// sanitize implements the collection-naming rule: lowercase, replace `/`
// with `_`, replace anything outside [a-z0-9_-.] with `_`, collapse runs
// of `..` and `__`, trim leading/trailing `_-.`, pad short names, truncate
// long ones, and prefix names that look like an IPv4 address (some vector
// stores refuse to use those as directory names).
func sanitize(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = disallowedChars.ReplaceAllString(s, "_")
	s = repeatedDots.ReplaceAllString(s, ".")
	s = repeatedUnders.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_-.")

	if len(s) < minCollectionNameLen {
		s = s + strings.Repeat("_", minCollectionNameLen-len(s))
	}
	if len(s) > maxCollectionNameLen {
		s = s[:maxCollectionNameLen]
		s = strings.Trim(s, "_-.")
	}

	if net.ParseIP(s) != nil {
		s = "col_" + s
		if len(s) > maxCollectionNameLen {
			s = s[:maxCollectionNameLen]
		}
	}

	return s
}
