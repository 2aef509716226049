// Package scan discovers indexable Markdown files under a vault root.
package scan

// ScannedFile is one file discovered by Scan.
type ScannedFile struct {
	FullPath     string // absolute filesystem path
	RelativePath string // POSIX, vault-root-relative
	Filename     string
	FolderPath   string // POSIX folder containing Filename, "" at vault root
}

// Options configures a Scan/Watch pass.
type Options struct {
	// Extensions restricts matches to these file extensions (with leading
	// dot, e.g. ".md"). Empty means DefaultExtensions.
	Extensions []string

	// IgnorePatterns are doublestar glob patterns matched against the
	// POSIX relative path; a match excludes the file or directory. Empty
	// means DefaultIgnorePatterns.
	IgnorePatterns []string

	// IncludePaths, when non-empty, is a whitelist: a file is kept iff its
	// RelativePath begins with one of these POSIX-normalized prefixes.
	IncludePaths []string
}

// DefaultExtensions is the default extension filter.
var DefaultExtensions = []string{".md"}

// DefaultIgnorePatterns excludes version-control, cache, and vault-metadata
// directories.
var DefaultIgnorePatterns = []string{
	"**/.git/**",
	"**/.obsidian/**",
	"**/.vaultrag/**",
	"**/.trash/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/.DS_Store",
}
