/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version holds build information.
package version

// Version is the current version of parkbay.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/parkbay/internal/version.Version=X.Y.Z
var Version = "0.1.0-dev"

// Commit is the source revision, set at build time like Version.
var Commit = "unknown"

// String formats version and commit for display.
func String() string {
	if Commit == "" || Commit == "unknown" {
		return Version
	}
	short := Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return Version + " (" + short + ")"
}
