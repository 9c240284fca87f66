package container

// ── Definitions ───────────────────────────────────────────────────────────────

// Definition describes how one service is built. It is pure data: the compiled
// container is a table of definitions, and the runtime interprets them through
// the FactoryRegistry. No code is generated.
//
//	// Symfony (services.yaml):
//	// logger:
//	//     class: Monolog\Logger
//	//     arguments: ['%app.name%']
//	d := container.NewDefinition("kernel.logger", "%app.name%")
type Definition struct {
	// Factory is the name of a registered Go factory (the counterpart of
	// Symfony's `class`). It must exist in the FactoryRegistry of the
	// container interpreting this definition.
	Factory string `json:"factory" yaml:"factory"`

	// Arguments are passed to the factory after resolution. Strings receive
	// special treatment:
	//
	//	"@logger"        → the resolved "logger" service
	//	"@?logger"       → the service, or nil when not defined
	//	"%app.name%"     → the parameter value (typed when the whole string
	//	                   is a single placeholder)
	//	"%env(APP_KEY)%" → process environment value, read at build time
	//	"@@x" / "%%"     → literal "@x" / "%"
	//
	// Slices and maps are resolved element-wise; everything else passes
	// through untouched.
	Arguments []any `json:"arguments,omitempty" yaml:"arguments"`

	// Public services can be fetched with Get. Private ones exist only as
	// dependencies of other services.
	//
	//	// Symfony: public: false
	Public bool `json:"public" yaml:"public"`

	// Shared services are built once and reused (the default). A non-shared
	// service yields a fresh instance on every resolution.
	//
	//	// Symfony: shared: false
	Shared bool `json:"shared" yaml:"shared"`

	// Tags group services so they can be fetched together with Tagged.
	//
	//	// Symfony: tags: ['app.report']
	Tags []string `json:"tags,omitempty" yaml:"tags"`
}

// NewDefinition builds a public, shared definition, the defaults a plain
// `id: {factory: name}` entry in a config file gets.
func NewDefinition(factory string, args ...any) Definition {
	return Definition{
		Factory:   factory,
		Arguments: args,
		Public:    true,
		Shared:    true,
	}
}

// WithTags returns a copy of the definition carrying the given tags.
func (d Definition) WithTags(tags ...string) Definition {
	d.Tags = append([]string(nil), tags...)
	return d
}

// AsPrivate returns a copy of the definition hidden from direct Get calls.
func (d Definition) AsPrivate() Definition {
	d.Public = false
	return d
}

// AsPrototype returns a copy of the definition that is rebuilt on every
// resolution instead of being shared.
func (d Definition) AsPrototype() Definition {
	d.Shared = false
	return d
}

// HasTag reports whether the definition carries the given tag.
func (d Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ── Aliases ───────────────────────────────────────────────────────────────────

// Alias points one service id at another.
//
//	// Symfony: cache: {alias: 'cache.redis', public: true}
type Alias struct {
	// Target is the aliased service id. Chains are allowed; cycles are
	// rejected when the container resolves the entry.
	Target string `json:"target" yaml:"target"`

	// Public plays the same role as Definition.Public: fetching through a
	// public alias is allowed even when the target itself is private.
	Public bool `json:"public" yaml:"public"`
}
