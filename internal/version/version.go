// Package version carries the release version stamped into the CLI and run logs.
package version

// Current is the semantic version of icpscout, without a "v" prefix.
var Current = "0.4.0"
