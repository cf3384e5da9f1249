// SPDX-License-Identifier: MPL-2.0

// Package config loads the lorekeep application configuration: where the
// release feed lives, which channel to follow, and which paths inside the
// install tree belong to the user and must survive updates.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"lorekeep/internal/update"
)

// AppName is the application identifier used for config and state paths.
const AppName = "lorekeep"

// manifestFileName is the local version manifest inside the install root.
const manifestFileName = "version.txt"

// Config is the loaded application configuration.
type Config struct {
	// FeedOwner and FeedRepo locate the release feed repository.
	FeedOwner string `mapstructure:"feed_owner"`
	FeedRepo  string `mapstructure:"feed_repo"`

	// Channel selects which releases qualify ("stable" or "beta").
	Channel string `mapstructure:"channel"`

	// PreferredAsset is the exact asset filename to prefer when a release
	// carries several; empty uses the extension heuristic.
	PreferredAsset string `mapstructure:"preferred_asset"`

	// PreservePaths are relative prefixes inside the install root that an
	// update must not touch (campaign databases, local settings).
	PreservePaths []string `mapstructure:"preserve_paths"`

	// InstallRoot overrides the install tree location; empty means the
	// directory of the running executable.
	InstallRoot string `mapstructure:"install_root"`

	// GitHubToken authenticates feed requests for higher rate limits.
	// Usually supplied via the LOREKEEP_GITHUB_TOKEN environment variable.
	GitHubToken string `mapstructure:"github_token"`
}

// Load reads configuration from the given file path, or from
// <config dir>/config.toml when path is empty, layered over defaults and
// LOREKEEP_* environment variables. A missing config file is not an error;
// an unreadable or malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("feed_owner", "lorekeep-app")
	v.SetDefault("feed_repo", "lorekeep")
	v.SetDefault("channel", update.ChannelStable)
	v.SetDefault("preserve_paths", []string{"Campaigns", "config.toml"})
	// Keys without a meaningful default still need registering, otherwise
	// AutomaticEnv values are invisible to Unmarshal.
	v.SetDefault("preferred_asset", "")
	v.SetDefault("install_root", "")
	v.SetDefault("github_token", "")

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// Dir returns the per-user configuration directory for lorekeep, following
// each platform's convention.
func Dir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolving home directory: %w", err)
			}
			base = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(base, AppName), nil
}

// ManifestPath returns the version manifest location inside installRoot.
func ManifestPath(installRoot string) string {
	return filepath.Join(installRoot, manifestFileName)
}
