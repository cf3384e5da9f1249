// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for lorekeep.
//
// This package implements the Cobra command hierarchy for the lorekeep
// desktop application's command-line surface: the update check/apply flow
// and version reporting. The GUI front end drives the same internal
// packages through its own glue.
package cmd
