package compiler

import _ "embed"

//go:embed defaults.yaml
var defaultsYAML []byte

// DefaultConfigPath is the pseudo-path of the embedded baseline
// configuration. It never corresponds to a file on disk, so the cache layer
// skips it when checking staleness, but it still participates in the cache
// fingerprint like any other source.
const DefaultConfigPath = "builtin:defaults"

// DefaultSource returns the embedded baseline configuration: the kernel
// logger, event dispatcher and router services, plus their parameters. The
// loader merges it below application config unless defaults are disabled.
func DefaultSource() Source {
	return Source{Path: DefaultConfigPath, Content: defaultsYAML}
}
