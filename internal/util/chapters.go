package util

import (
	"cmp"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var chapterNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseChapterNumber extracts the first number from a chapter label.
// "179", "Chapter 12.5" and "ch-3" all parse; "Prologue" does not.
func ParseChapterNumber(label string) (float64, bool) {
	m := chapterNumber.FindString(label)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ChapterLess orders chapter labels by their numeric value. Labels without a
// number sort after numbered ones. Ties fall back to CompareLabels, then to
// byte order so the result is total.
func ChapterLess(a, b string) bool {
	na, okA := ParseChapterNumber(a)
	nb, okB := ParseChapterNumber(b)
	switch {
	case okA && !okB:
		return true
	case !okA && okB:
		return false
	case okA && okB && na != nb:
		return na < nb
	}
	if c := CompareLabels(a, b); c != 0 {
		return c < 0
	}
	return a < b
}

// CompareLabels compares two labels the way a reader would: runs of digits
// by value ("Extra 2" < "Extra 10"), other bytes ignoring ASCII case. At the
// same position a digit sorts before text, and a label sorts before any
// longer label it is a prefix of.
func CompareLabels(a, b string) int {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			var ra, rb string
			ra, a = cutDigits(a)
			rb, b = cutDigits(b)
			if c := compareDigitRuns(ra, rb); c != 0 {
				return c
			}
		case da:
			return -1
		case db:
			return 1
		default:
			if c := cmp.Compare(lowerASCII(a[0]), lowerASCII(b[0])); c != 0 {
				return c
			}
			a, b = a[1:], b[1:]
		}
	}
	return cmp.Compare(len(a), len(b))
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// cutDigits splits s after its leading run of digits.
func cutDigits(s string) (run, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// compareDigitRuns compares two digit strings by value without parsing, so
// runs longer than an int still order correctly.
func compareDigitRuns(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// SortChapters sorts labels in place, ascending.
func SortChapters(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		return ChapterLess(labels[i], labels[j])
	})
}

// AddChapter returns labels with label added, deduplicated by exact
// (trimmed) label and sorted ascending. The input slice is not modified.
// The second return value is false if the label was already present.
func AddChapter(labels []string, label string) ([]string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return labels, false
	}
	for _, l := range labels {
		if strings.TrimSpace(l) == label {
			return labels, false
		}
	}
	out := make([]string, 0, len(labels)+1)
	out = append(out, labels...)
	out = append(out, label)
	SortChapters(out)
	return out, true
}

// UnionChapters merges two label lists, deduplicated and sorted.
func UnionChapters(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, l := range list {
			l = strings.TrimSpace(l)
			if l == "" {
				continue
			}
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	SortChapters(out)
	return out
}
