package compiler

import (
	"context"

	"github.com/gillix/symfony-container-loader/container"
)

// CompiledContainer is the output of a compile: a frozen, data-only container
// blueprint. It is what the cache layer serializes to disk, and what the
// container runtime is constructed from.
//
// It mirrors the state Symfony dumps into var/cache/<env>/Container*.php,
// minus the generated code. Factories stay behind names so the blueprint
// survives serialization.
type CompiledContainer struct {
	Parameters  map[string]any                  `json:"parameters"`
	Definitions map[string]container.Definition `json:"definitions"`
	Aliases     map[string]container.Alias      `json:"aliases"`

	// Resources lists the absolute paths of every config file that fed the
	// compile, in load order. The cache layer snapshots them for staleness
	// checks. Embedded sources are not listed; they cannot go stale.
	Resources []string `json:"resources"`
}

// Source is one configuration input, in load order. Content is non-nil for
// embedded sources (the built-in defaults); otherwise the compiler reads
// Path from disk.
type Source struct {
	Path    string
	Content []byte
}

// Request carries everything a compile needs: the ordered sources (ascending
// priority, later sources override earlier ones) and the base parameters the
// loader injects, which always win over configured values.
//
//	// Symfony: kernel.project_dir, kernel.cache_dir, kernel.environment
type Request struct {
	Sources    []Source
	Parameters map[string]any
}

// Compiler turns configuration sources into a CompiledContainer. The default
// implementation is Builder; the loader accepts custom compilers for callers
// that grow their own config formats.
type Compiler interface {
	Compile(ctx context.Context, req Request) (*CompiledContainer, error)
}

// Fragment is the parsed form of a single config source, before merging.
type Fragment struct {
	Parameters  map[string]any
	Definitions map[string]container.Definition
	Aliases     map[string]container.Alias
}

// FileLoader parses one config format into a Fragment. Implementations exist
// for YAML and HCL; Builder dispatches on file extension.
type FileLoader interface {
	Load(path string, src []byte) (*Fragment, error)
}
