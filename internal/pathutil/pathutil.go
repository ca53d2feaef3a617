// Package pathutil implements path normalization shared by every backend.
package pathutil

import "strings"

// Normalize joins parts as a forward-slash path after stripping leading,
// trailing, and duplicated separators and mapping backslashes to forward
// slashes. Empty components are skipped. The result never has a leading
// slash.
func Normalize(parts ...string) string {
	var segs []string
	for _, p := range parts {
		p = strings.ReplaceAll(p, "\\", "/")
		for _, seg := range strings.Split(p, "/") {
			if seg == "" {
				continue
			}
			segs = append(segs, seg)
		}
	}
	return strings.Join(segs, "/")
}

// Split divides a normalized remote path into directory and leaf
// components, mirroring the teacher's splitPath helper.
func Split(p string) (dir, leaf string) {
	p = strings.Trim(p, "/")
	i := strings.LastIndex(p, "/")
	if i >= 0 {
		return p[:i], p[i+1:]
	}
	return "", p
}

// IsRoot reports whether p denotes the root directory.
func IsRoot(p string) bool {
	return p == "" || p == "/"
}

// Join concatenates dir and leaf into a normalized path.
func Join(dir, leaf string) string {
	if dir == "" {
		return leaf
	}
	return Normalize(dir, leaf)
}

// Relative returns p relative to root, stripping the root prefix and any
// leading separator. Returns the empty string if p equals root.
func Relative(root, p string) string {
	root = Normalize(root)
	p = Normalize(p)
	if root == "" {
		return p
	}
	if strings.HasPrefix(p, root) {
		p = p[len(root):]
	}
	return strings.TrimPrefix(p, "/")
}

// Prefixes returns the sequence of path prefixes needed to walk from the
// root down to p: "a", "a/b", "a/b/c" for p == "a/b/c" — used by PathIndex
// resolution to walk one directory level at a time.
func Prefixes(p string) []string {
	p = Normalize(p)
	if p == "" {
		return nil
	}
	segs := strings.Split(p, "/")
	prefixes := make([]string, len(segs))
	for i := range segs {
		prefixes[i] = strings.Join(segs[:i+1], "/")
	}
	return prefixes
}
