package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    []string
		expected string
	}{
		{[]string{"/"}, ""},
		{[]string{""}, ""},
		{[]string{"."}, "."},
		{[]string{"/path/to/file"}, "path/to/file"},
		{[]string{"path/to/file/"}, "path/to/file"},
		{[]string{"//multiple//slashes//"}, "multiple/slashes"},
		{[]string{`a\b\c`}, "a/b/c"},
		{[]string{"a", "b", "c"}, "a/b/c"},
	}

	for _, test := range tests {
		result := Normalize(test.input...)
		assert.Equal(t, test.expected, result, "Normalize(%q)", test.input)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	// P3: Normalize(Normalize(x)) == Normalize(x)
	samples := []string{"", "/", "a/b/c", "//a//b//", `a\b`, "a/./b", "../a"}
	for _, s := range samples {
		once := Normalize(s)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "Normalize not idempotent for %q", s)
	}
}

func TestNormalizeAssociative(t *testing.T) {
	// P4: Normalize(a, b, c) == Normalize(Normalize(a, b), c)
	triples := [][3]string{
		{"a", "b", "c"},
		{"/a/", "/b/", "/c/"},
		{"", "b", "c"},
		{"a", "", "c"},
	}
	for _, tr := range triples {
		direct := Normalize(tr[0], tr[1], tr[2])
		nested := Normalize(Normalize(tr[0], tr[1]), tr[2])
		assert.Equal(t, direct, nested, "Normalize not associative for %v", tr)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		input        string
		expectedDir  string
		expectedLeaf string
	}{
		{"", "", ""},
		{"/", "", ""},
		{"file.txt", "", "file.txt"},
		{"dir/file.txt", "dir", "file.txt"},
		{"/dir/file.txt", "dir", "file.txt"},
		{"/nested/path/to/file.txt", "nested/path/to", "file.txt"},
	}

	for _, test := range tests {
		dir, leaf := Split(test.input)
		assert.Equal(t, test.expectedDir, dir, "Split(%q) dir", test.input)
		assert.Equal(t, test.expectedLeaf, leaf, "Split(%q) leaf", test.input)
	}
}

func TestIsRoot(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"", true},
		{"/", true},
		{".", false},
		{"file.txt", false},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, IsRoot(test.input), "IsRoot(%q)", test.input)
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		dir, leaf, expected string
	}{
		{"", "file.txt", "file.txt"},
		{"dir", "file.txt", "dir/file.txt"},
		{"nested/path", "file.txt", "nested/path/file.txt"},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, Join(test.dir, test.leaf), "Join(%q, %q)", test.dir, test.leaf)
	}
}

func TestRelative(t *testing.T) {
	tests := []struct {
		root, path, expected string
	}{
		{"", "file.txt", "file.txt"},
		{"/", "/file.txt", "file.txt"},
		{"root", "root/file.txt", "file.txt"},
		{"dir", "other/file.txt", "other/file.txt"},
		{"root/dir", "root/dir/file.txt", "file.txt"},
		{"root/dir", "root/dir", ""},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, Relative(test.root, test.path), "Relative(%q, %q)", test.root, test.path)
	}
}

func TestPrefixes(t *testing.T) {
	got := Prefixes("a/b/c")
	want := []string{"a", "a/b", "a/b/c"}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i], got[i], "Prefixes[%d]", i)
	}
}
