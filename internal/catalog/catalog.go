package catalog

import (
	"path/filepath"
	"sort"
	"strings"
)

// Category is the media class a file belongs to, derived from its extension.
type Category string

const (
	Audio Category = "audio"
	Video Category = "video"
	Image Category = "image"
)

// FormatSet lists the accepted input extensions and the valid output
// extensions for one category. Extensions are stored without a leading dot.
type FormatSet struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

var (
	inputs = map[Category][]string{
		Audio: {"mp3", "wav", "flac", "aac", "ogg", "m4a"},
		Video: {"mp4", "avi", "mov", "wmv", "flv", "mkv", "webm"},
		Image: {"jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp"},
	}
	outputs = map[Category][]string{
		Audio: {"mp3", "wav", "flac", "aac", "ogg", "m4a"},
		Video: {"mp4", "avi", "mov", "webm", "mkv"},
		Image: {"jpg", "jpeg", "png", "webp", "gif", "bmp"},
	}

	inputIndex  = buildIndex(inputs)
	outputIndex = buildIndex(outputs)
)

func buildIndex(m map[Category][]string) map[string]Category {
	idx := make(map[string]Category)
	for cat, exts := range m {
		for _, ext := range exts {
			idx[ext] = cat
		}
	}
	return idx
}

// Normalize lowercases an extension and strips a leading dot, so callers can
// pass either "MP3", ".mp3" or a full filename via filepath.Ext.
func Normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtOf returns the normalized extension of a file name.
func ExtOf(name string) string {
	return Normalize(filepath.Ext(name))
}

// CategoryFor maps an input extension to its media category.
func CategoryFor(ext string) (Category, bool) {
	cat, ok := inputIndex[Normalize(ext)]
	return cat, ok
}

// Allowed reports whether ext is an accepted input extension in any category.
func Allowed(ext string) bool {
	_, ok := inputIndex[Normalize(ext)]
	return ok
}

// Inputs returns the accepted input extensions for a category, sorted.
func Inputs(cat Category) []string {
	return sorted(inputs[cat])
}

// Outputs returns the valid output extensions for a category, sorted.
func Outputs(cat Category) []string {
	return sorted(outputs[cat])
}

// ValidTarget reports whether ext is a legal output extension for cat.
func ValidTarget(cat Category, ext string) bool {
	target, ok := outputIndex[Normalize(ext)]
	return ok && target == cat
}

// OutputCategory maps an output extension to the category that produces it.
func OutputCategory(ext string) (Category, bool) {
	cat, ok := outputIndex[Normalize(ext)]
	return cat, ok
}

// Snapshot returns the whole catalog keyed by category name, for the
// formats endpoint and the CLI formats command.
func Snapshot() map[string]FormatSet {
	snap := make(map[string]FormatSet, len(inputs))
	for cat := range inputs {
		snap[string(cat)] = FormatSet{
			Input:  Inputs(cat),
			Output: Outputs(cat),
		}
	}
	return snap
}

func sorted(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
