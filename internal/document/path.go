package document

import "strings"

// PathSeparator separates scope path segments.
const PathSeparator = "/"

// Segments splits a path into its non-empty segments. The root path has none.
func Segments(path string) []string {
	parts := strings.Split(path, PathSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// NormalizePath returns the canonical form of path: a leading separator,
// no trailing or doubled separators, "/" for the root.
func NormalizePath(path string) string {
	return PathSeparator + strings.Join(Segments(path), PathSeparator)
}

// Specificity is the number of segments in path.
func Specificity(path string) int {
	return len(Segments(path))
}

// Applies reports whether scopePath applies to targetPath, that is whether
// targetPath starts with scopePath on segment boundaries. "/a/b" applies to
// "/a/b/c" and to "/a/b" but not to "/ab/c".
func Applies(scopePath, targetPath string) bool {
	scope := Segments(scopePath)
	target := Segments(targetPath)
	if len(scope) > len(target) {
		return false
	}
	for i := range scope {
		if scope[i] != target[i] {
			return false
		}
	}
	return true
}

// Prefixes lists every scope path that applies to targetPath, broadest
// first, in normalized form. Stores use it to turn the prefix predicate into
// an equality lookup.
func Prefixes(targetPath string) []string {
	segs := Segments(targetPath)
	out := make([]string, 0, len(segs)+1)
	out = append(out, PathSeparator)
	for i := 1; i <= len(segs); i++ {
		out = append(out, PathSeparator+strings.Join(segs[:i], PathSeparator))
	}
	return out
}
