// SPDX-License-Identifier: MPL-2.0

package update

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPrefsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	var p Prefs
	p.SkipVersion(Version{segments: []int{1, 3, 0}})
	p.MarkChecked(time.Unix(1756600000, 0))
	if err := p.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadPrefs(dir)
	if err != nil {
		t.Fatalf("LoadPrefs: %v", err)
	}
	if loaded.SkippedVersion != "1.3.0" {
		t.Errorf("SkippedVersion = %q, want 1.3.0", loaded.SkippedVersion)
	}
	if loaded.LastCheckUnix != 1756600000 {
		t.Errorf("LastCheckUnix = %d, want 1756600000", loaded.LastCheckUnix)
	}
}

func TestLoadPrefsMissingFile(t *testing.T) {
	p, err := LoadPrefs(t.TempDir())
	if err != nil {
		t.Fatalf("LoadPrefs: %v", err)
	}
	if p != (Prefs{}) {
		t.Errorf("missing file loaded as %+v, want zero prefs", p)
	}
}

func TestLoadPrefsMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, prefsFileName), []byte("not [valid toml"), 0o644); err != nil {
		t.Fatalf("writing state file: %v", err)
	}

	if _, err := LoadPrefs(dir); err == nil {
		t.Fatal("LoadPrefs accepted malformed TOML")
	}
}

func TestShouldOffer(t *testing.T) {
	v130 := Version{segments: []int{1, 3, 0}}
	v140 := Version{segments: []int{1, 4, 0}}

	tests := []struct {
		name    string
		skipped string
		cand    *Candidate
		want    bool
	}{
		{name: "nil candidate", skipped: "", cand: nil, want: false},
		{name: "nothing skipped", skipped: "", cand: &Candidate{Version: v130}, want: true},
		{name: "skipped version suppressed", skipped: "1.3.0", cand: &Candidate{Version: v130}, want: false},
		{name: "newer than skipped offered", skipped: "1.3.0", cand: &Candidate{Version: v140}, want: true},
		{name: "corrupt skip entry offers", skipped: "not-a-version", cand: &Candidate{Version: v130}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Prefs{SkippedVersion: tt.skipped}
			if got := p.ShouldOffer(tt.cand); got != tt.want {
				t.Errorf("ShouldOffer = %v, want %v", got, tt.want)
			}
		})
	}
}
