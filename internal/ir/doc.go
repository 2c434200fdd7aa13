// Package ir provides the declarative directive model for managed classes.
//
// This package contains type definitions and canonical encoding only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// the directive model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Directives are plain values; they never hold reflection state
//   - Target and owner names are logical names (see index.LogicalName)
//   - Canonical encoding never contains floats, so fingerprints are stable
package ir
