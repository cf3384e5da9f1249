// SPDX-License-Identifier: MPL-2.0

package update

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrManifestMissing indicates the local version manifest could not be read.
	ErrManifestMissing = errors.New("version manifest missing")

	// ErrVersionUnparsable indicates no line of the manifest contained a
	// recognizable version token.
	ErrVersionUnparsable = errors.New("no parsable version in manifest")

	// ErrEmptyTag indicates an empty release tag string.
	ErrEmptyTag = errors.New("empty release tag")

	// ErrInvalidVersion indicates a version string that is not a dotted run
	// of numeric segments.
	ErrInvalidVersion = errors.New("invalid version")
)

var (
	// dottedVersionRe matches a dotted digit run such as "1.2.3" or "0.9".
	dottedVersionRe = regexp.MustCompile(`\d+(?:\.\d+)+`)

	// tupleVersionRe matches a parenthesized comma-separated digit tuple such
	// as "(1, 2, 3, 0)", the form found in native binary version resources.
	tupleVersionRe = regexp.MustCompile(`\(\s*\d+(?:\s*,\s*\d+)+\s*\)`)
)

// Version is an ordered version value: a sequence of numeric segments
// compared component-wise, with missing trailing segments treated as zero.
// The zero value (no segments) compares equal to "0".
type Version struct {
	segments []int
}

// ParseVersion parses a bare dotted version string such as "1.2.3" or
// "1.2.3.4". A single bare integer is accepted as a one-segment version.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	parts := strings.Split(s, ".")
	segs := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		segs = append(segs, n)
	}

	return Version{segments: segs}, nil
}

// ParseTag parses a release tag into a Version, stripping a conventional
// leading "v" ("v1.2.3" and "1.2.3" are equivalent).
func ParseTag(tag string) (Version, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Version{}, ErrEmptyTag
	}

	return ParseVersion(strings.TrimPrefix(tag, "v"))
}

// ParseManifest scans the manifest file at path line by line for the first
// version-looking token and returns its parse. The format is deliberately
// permissive: any line containing a dotted digit run ("version = 1.2.3") or
// a parenthesized digit tuple ("FILEVERSION (1, 2, 3, 0)") satisfies it.
//
// A missing file returns ErrManifestMissing; a file with no recognizable
// token returns ErrVersionUnparsable. There is no "assume older" fallback:
// an unreadable installed version must fail the whole check loudly.
func ParseManifest(path string) (Version, error) {
	f, err := os.Open(path)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %s: %v", ErrManifestMissing, path, err)
	}
	defer func() { _ = f.Close() }() // read-only handle

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if v, ok := parseManifestLine(scanner.Text()); ok {
			return v, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Version{}, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	return Version{}, fmt.Errorf("%w: %s", ErrVersionUnparsable, path)
}

// parseManifestLine extracts a version token from a single manifest line.
// Dotted runs are preferred; a parenthesized tuple is tried second.
func parseManifestLine(line string) (Version, bool) {
	if m := dottedVersionRe.FindString(line); m != "" {
		if v, err := ParseVersion(m); err == nil {
			return v, true
		}
	}

	if m := tupleVersionRe.FindString(line); m != "" {
		inner := strings.Trim(m, "() \t")
		segs := make([]int, 0, 4)
		for part := range strings.SplitSeq(inner, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return Version{}, false
			}
			segs = append(segs, n)
		}
		if len(segs) > 0 {
			return Version{segments: segs}, true
		}
	}

	return Version{}, false
}

// Compare returns -1, 0, or +1 when v is ordered before, equal to, or after
// other. Segments are compared numerically left to right; the shorter
// version is padded with zeros, so "1.2" == "1.2.0".
func (v Version) Compare(other Version) int {
	n := max(len(v.segments), len(other.segments))
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.segments) {
			a = v.segments[i]
		}
		if i < len(other.segments) {
			b = other.segments[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether v is strictly older than other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other denote the same version.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// String renders the version in dotted form ("1.2.3"). The zero value
// renders as "0".
func (v Version) String() string {
	if len(v.segments) == 0 {
		return "0"
	}
	parts := make([]string, len(v.segments))
	for i, s := range v.segments {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ".")
}
