// SPDX-License-Identifier: MPL-2.0

package install

import (
	"strings"

	"lorekeep/pkg/platform"
)

// PreserveSet holds normalized relative-path prefixes that must survive an
// update untouched (user databases, local configuration). A path matches
// when its leading components equal an entry's components, so preserving
// "Campaigns" also protects "Campaigns/Save1/data.db" while leaving the
// sibling "Campaigns2" unaffected.
type PreserveSet struct {
	entries  [][]string
	caseFold bool
}

// NewPreserveSet normalizes entries into path-component tuples. Both "/"
// and "\" separate components; empty components and empty entries are
// dropped. Matching is case-folded on platforms whose filesystems compare
// paths case-insensitively.
func NewPreserveSet(entries []string) *PreserveSet {
	return newPreserveSet(entries, platform.CaseInsensitiveFS())
}

// newPreserveSet is the testable constructor with explicit case folding.
func newPreserveSet(entries []string, caseFold bool) *PreserveSet {
	s := &PreserveSet{caseFold: caseFold}
	for _, e := range entries {
		comps := splitComponents(e, caseFold)
		if len(comps) > 0 {
			s.entries = append(s.entries, comps)
		}
	}
	return s
}

// Matches reports whether the relative path rel falls under any preserved
// prefix. rel uses the platform separator or "/" interchangeably.
func (s *PreserveSet) Matches(rel string) bool {
	if len(s.entries) == 0 {
		return false
	}

	comps := splitComponents(rel, s.caseFold)
	for _, entry := range s.entries {
		if hasPrefix(comps, entry) {
			return true
		}
	}
	return false
}

// Empty reports whether the set holds no entries.
func (s *PreserveSet) Empty() bool { return len(s.entries) == 0 }

// splitComponents breaks a relative path into its components, folding case
// when requested.
func splitComponents(p string, caseFold bool) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	var comps []string
	for part := range strings.SplitSeq(p, "/") {
		if part == "" || part == "." {
			continue
		}
		if caseFold {
			part = strings.ToLower(part)
		}
		comps = append(comps, part)
	}
	return comps
}

// hasPrefix reports whether comps starts with the components of prefix.
func hasPrefix(comps, prefix []string) bool {
	if len(comps) < len(prefix) {
		return false
	}
	for i := range prefix {
		if comps[i] != prefix[i] {
			return false
		}
	}
	return true
}
