// SPDX-License-Identifier: MPL-2.0

package update

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// Channel selects which releases qualify as update candidates.
const (
	// ChannelStable only accepts full releases; prereleases are skipped.
	ChannelStable = "stable"

	// ChannelBeta accepts prereleases as well.
	ChannelBeta = "beta"
)

// archiveExtensions are the asset name suffixes recognized as release
// payload archives, in preference order.
var archiveExtensions = []string{".zip", ".tar.gz", ".tgz"}

type (
	// Candidate is a parsed, not-yet-applied newer release plus the one
	// asset chosen to represent it. Immutable once constructed; built per
	// check and discarded if unused.
	Candidate struct {
		Version      Version // Strictly newer than the installed version
		ReleaseTag   string  // Original tag string, e.g. "v1.3.0"
		AssetURL     string  // Direct download URL of the chosen asset
		AssetName    string  // Filename of the chosen asset
		AssetSize    int64   // Advertised size in bytes (0 when unknown)
		ReleaseNotes string  // Markdown release notes
		Channel      string  // Channel the check ran on
	}

	// Checker drives a single update check: installed version from the
	// local manifest versus the newest qualifying release on the feed.
	Checker struct {
		feed           *FeedClient
		manifestPath   string
		channel        string
		preferredAsset string // Exact asset name to prefer, may be empty
		logger         *log.Logger
	}

	// CheckerOption configures a Checker during construction.
	CheckerOption func(*Checker)
)

// WithPreferredAsset sets the exact asset filename preferred when a release
// carries several downloadable assets.
func WithPreferredAsset(name string) CheckerOption {
	return func(c *Checker) {
		c.preferredAsset = name
	}
}

// WithCheckerLogger overrides the logger used for per-release skip notices.
func WithCheckerLogger(l *log.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = l
	}
}

// NewChecker creates a Checker reading the installed version from
// manifestPath and candidates from feed, filtered by channel.
func NewChecker(feed *FeedClient, manifestPath, channel string, opts ...CheckerOption) *Checker {
	c := &Checker{
		feed:         feed,
		manifestPath: manifestPath,
		channel:      channel,
		logger:       log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check returns the installed version and the newest qualifying update
// candidate, or a nil candidate when the installation is current.
//
// The feed is scanned in the order it is returned (newest first): drafts
// are skipped; prereleases are skipped on the stable channel; releases with
// unparsable tags are skipped with a log line; a release with no usable
// asset is skipped and the scan continues. The scan stops at the first
// release whose version is at or below the installed one. Manifest and
// feed failures are fatal to the whole check.
func (c *Checker) Check(ctx context.Context) (Version, *Candidate, error) {
	installed, err := ParseManifest(c.manifestPath)
	if err != nil {
		return Version{}, nil, err
	}

	releases, err := c.feed.ListReleases(ctx)
	if err != nil {
		return Version{}, nil, err
	}

	for i := range releases {
		rel := &releases[i]

		if rel.Draft {
			continue
		}
		if rel.Prerelease && c.channel == ChannelStable {
			continue
		}

		v, tagErr := ParseTag(rel.TagName)
		if tagErr != nil {
			// Bad tag on one release is that release's problem, not the scan's.
			c.logger.Warn("skipping release with unparsable tag", "tag", rel.TagName, "err", tagErr)
			continue
		}

		// The feed is newest-first: the first release at or below the
		// installed version ends the scan.
		if v.Compare(installed) <= 0 {
			return installed, nil, nil
		}

		asset := c.selectAsset(rel.Assets)
		if asset == nil {
			c.logger.Warn("skipping release with no usable asset", "tag", rel.TagName)
			continue
		}

		return installed, &Candidate{
			Version:      v,
			ReleaseTag:   rel.TagName,
			AssetURL:     asset.BrowserDownloadURL,
			AssetName:    asset.Name,
			AssetSize:    asset.Size,
			ReleaseNotes: rel.Notes,
			Channel:      c.channel,
		}, nil
	}

	return installed, nil, nil
}

// selectAsset picks one downloadable asset: an exact match to the preferred
// name wins, else the first asset with a recognized archive extension, else
// the first asset. Returns nil only when the release has no assets at all.
func (c *Checker) selectAsset(assets []Asset) *Asset {
	if len(assets) == 0 {
		return nil
	}

	if c.preferredAsset != "" {
		for i := range assets {
			if assets[i].Name == c.preferredAsset {
				return &assets[i]
			}
		}
	}

	for i := range assets {
		if isArchiveName(assets[i].Name) {
			return &assets[i]
		}
	}

	return &assets[0]
}

// isArchiveName reports whether name carries a recognized archive extension.
func isArchiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// String renders the candidate for logs and error messages.
func (c *Candidate) String() string {
	return fmt.Sprintf("%s (%s, %s)", c.Version, c.ReleaseTag, c.AssetName)
}
