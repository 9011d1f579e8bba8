package cftbridge

import _ "embed"

// Version is the release version of the bridge.
//
//go:embed VERSION
var Version string
