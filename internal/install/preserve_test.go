// SPDX-License-Identifier: MPL-2.0

package install

import "testing"

func TestPreserveSetMatches(t *testing.T) {
	tests := []struct {
		name     string
		entries  []string
		caseFold bool
		rel      string
		want     bool
	}{
		{name: "exact entry", entries: []string{"Campaigns"}, rel: "Campaigns", want: true},
		{name: "file under entry", entries: []string{"Campaigns"}, rel: "Campaigns/Save1/data.db", want: true},
		{name: "sibling with common prefix", entries: []string{"Campaigns"}, rel: "Campaigns2/data.db", want: false},
		{name: "component match not substring", entries: []string{"Camp"}, rel: "Campaigns/data.db", want: false},
		{name: "nested entry", entries: []string{"data/user"}, rel: "data/user/prefs.toml", want: true},
		{name: "nested entry sibling", entries: []string{"data/user"}, rel: "data/userdata", want: false},
		{name: "backslash separators", entries: []string{"data/user"}, rel: `data\user\prefs.toml`, want: true},
		{name: "case folded match", entries: []string{"Campaigns"}, caseFold: true, rel: "campaigns/data.db", want: true},
		{name: "case sensitive miss", entries: []string{"Campaigns"}, rel: "campaigns/data.db", want: false},
		{name: "empty set", entries: nil, rel: "anything", want: false},
		{name: "dot components dropped", entries: []string{"./Campaigns"}, rel: "Campaigns/x", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newPreserveSet(tt.entries, tt.caseFold)
			if got := s.Matches(tt.rel); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v (entries %v)", tt.rel, got, tt.want, tt.entries)
			}
		})
	}
}

func TestPreserveSetEmpty(t *testing.T) {
	if !newPreserveSet([]string{"", ".", "//"}, false).Empty() {
		t.Error("set built from degenerate entries should be empty")
	}
	if newPreserveSet([]string{"Campaigns"}, false).Empty() {
		t.Error("set with one entry reported empty")
	}
}
