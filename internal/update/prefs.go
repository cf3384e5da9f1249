// SPDX-License-Identifier: MPL-2.0

package update

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// prefsFileName is the updater's state file inside the user config directory.
const prefsFileName = "update-state.toml"

// Prefs is the updater's small persistent state: which version the user
// asked to skip and when the last check ran. Losing this file is harmless;
// it only suppresses repeat offers.
type Prefs struct {
	SkippedVersion string `toml:"skipped_version,omitempty"`
	LastCheckUnix  int64  `toml:"last_check_unix,omitempty"`
}

// LoadPrefs reads the preferences file under dir. A missing file yields
// zero-value prefs, not an error.
func LoadPrefs(dir string) (Prefs, error) {
	data, err := os.ReadFile(filepath.Join(dir, prefsFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Prefs{}, nil
	}
	if err != nil {
		return Prefs{}, fmt.Errorf("reading update state: %w", err)
	}

	var p Prefs
	if err := toml.Unmarshal(data, &p); err != nil {
		return Prefs{}, fmt.Errorf("parsing update state: %w", err)
	}
	return p, nil
}

// Save writes the preferences file under dir, creating dir if needed.
func (p Prefs) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding update state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, prefsFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing update state: %w", err)
	}
	return nil
}

// ShouldOffer reports whether cand should be presented to the user.
// A candidate whose version the user explicitly skipped is suppressed;
// any other (newer or older-skip) candidate is offered.
func (p Prefs) ShouldOffer(cand *Candidate) bool {
	if cand == nil {
		return false
	}
	if p.SkippedVersion == "" {
		return true
	}

	skipped, err := ParseVersion(p.SkippedVersion)
	if err != nil {
		// A corrupt skip entry must not hide updates.
		return true
	}
	return !cand.Version.Equal(skipped)
}

// MarkChecked records the current time as the last completed check.
func (p *Prefs) MarkChecked(now time.Time) {
	p.LastCheckUnix = now.Unix()
}

// SkipVersion records v as the version the user declined.
func (p *Prefs) SkipVersion(v Version) {
	p.SkippedVersion = v.String()
}
