package container

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/agext/levenshtein"
)

// ── Container ─────────────────────────────────────────────────────────────────

// Container is the compiled service container, the runtime form of a
// definition table produced by the compiler. It mirrors the read side of
// Symfony's Container: services are built lazily on first Get, shared
// instances are cached, aliases and tags resolve the way Symfony resolves
// them.
//
// The definition table, aliases, and parameters are frozen at construction.
// Instance state is guarded, so a Container is safe for concurrent readers.
type Container struct {
	mu sync.RWMutex

	// id → built instance, shared services only
	instances map[string]any

	// frozen at New
	parameters  map[string]any
	definitions map[string]Definition
	aliases     map[string]Alias

	factories *FactoryRegistry

	// buildMu serializes instantiation; buildStack tracks the ids currently
	// being built for circular-reference detection.
	buildMu    sync.Mutex
	buildStack []string
}

// New assembles a container from a compiled definition table. The maps are
// copied; later mutation of the caller's maps does not reach the container.
func New(parameters map[string]any, definitions map[string]Definition, aliases map[string]Alias, factories *FactoryRegistry) *Container {
	if factories == nil {
		factories = NewFactoryRegistry()
	}
	c := &Container{
		instances:   make(map[string]any),
		parameters:  make(map[string]any, len(parameters)),
		definitions: make(map[string]Definition, len(definitions)),
		aliases:     make(map[string]Alias, len(aliases)),
		factories:   factories,
	}
	for k, v := range parameters {
		c.parameters[k] = v
	}
	for k, v := range definitions {
		c.definitions[k] = v
	}
	for k, v := range aliases {
		c.aliases[k] = v
	}
	return c
}

// ── Service lookup ────────────────────────────────────────────────────────────

// Get resolves a public service by id, building it (and its dependencies) on
// first use. Shared services are cached; non-shared ones are rebuilt per call.
//
//	// Symfony: $container->get('logger')
//	svc, err := c.Get("logger")
func (c *Container) Get(id string) (any, error) {
	canonical, public, err := c.entry(id)
	if err != nil {
		return nil, err
	}
	if !public {
		return nil, &ServiceNotFoundError{ID: id, Private: true}
	}
	if inst, ok := c.instance(canonical); ok {
		return inst, nil
	}
	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	return c.resolve(canonical)
}

// MustGet is Get, panicking on failure. Useful in bootstrap code where a
// missing core service is unrecoverable anyway.
func (c *Container) MustGet(id string) any {
	inst, err := c.Get(id)
	if err != nil {
		panic(err)
	}
	return inst
}

// Has reports whether Get(id) can succeed: the id (directly or through
// aliases) names a definition and is public.
//
//	// Symfony: $container->has('logger')
func (c *Container) Has(id string) bool {
	_, public, err := c.entry(id)
	return err == nil && public
}

// Initialized reports whether a shared service has already been built.
func (c *Container) Initialized(id string) bool {
	canonical, _, err := c.entry(id)
	if err != nil {
		return false
	}
	_, ok := c.instance(canonical)
	return ok
}

// Tagged builds and returns every service carrying the given tag, in sorted
// id order. Private services are included; tags are a wiring mechanism, not
// an access channel.
//
//	// Symfony: tagged_iterator('app.report')
func (c *Container) Tagged(tag string) ([]any, error) {
	var ids []string
	for id, def := range c.definitions {
		if def.HasTag(tag) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		inst, err := c.resolve(id)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// ── Parameters ────────────────────────────────────────────────────────────────

// Parameter returns a container parameter by name.
//
//	// Symfony: $container->getParameter('project.root')
func (c *Container) Parameter(name string) (any, error) {
	v, ok := c.parameters[name]
	if !ok {
		return nil, &ParameterNotFoundError{Name: name}
	}
	return v, nil
}

// MustParameter is Parameter, panicking when the name is unknown.
func (c *Container) MustParameter(name string) any {
	v, err := c.Parameter(name)
	if err != nil {
		panic(err)
	}
	return v
}

// HasParameter reports whether a parameter exists.
func (c *Container) HasParameter(name string) bool {
	_, ok := c.parameters[name]
	return ok
}

// ParameterNames returns all parameter names, sorted.
func (c *Container) ParameterNames() []string {
	names := make([]string, 0, len(c.parameters))
	for name := range c.parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ── Introspection ─────────────────────────────────────────────────────────────

// ServiceIDs returns the ids of all defined services, sorted. Aliases are not
// included; see Definition for per-service details.
func (c *Container) ServiceIDs() []string {
	ids := make([]string, 0, len(c.definitions))
	for id := range c.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Definition returns the definition registered under id, if any.
func (c *Container) Definition(id string) (Definition, bool) {
	def, ok := c.definitions[id]
	return def, ok
}

// AliasNames returns all alias names, sorted.
func (c *Container) AliasNames() []string {
	names := make([]string, 0, len(c.aliases))
	for name := range c.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Alias returns the alias registered under name, if any.
func (c *Container) Alias(name string) (Alias, bool) {
	alias, ok := c.aliases[name]
	return alias, ok
}

// ── Resolution internals ──────────────────────────────────────────────────────

// entry follows the alias chain from id to a definition. The publicness of
// the entry point (the first alias or definition hit) decides whether Get may
// hand the service out.
func (c *Container) entry(id string) (canonical string, public bool, err error) {
	seen := make([]string, 0, 4)
	cur := id
	first := true
	for {
		for _, s := range seen {
			if s == cur {
				return "", false, &CircularReferenceError{Path: append(seen, cur)}
			}
		}
		seen = append(seen, cur)

		if a, ok := c.aliases[cur]; ok {
			if first {
				public = a.Public
				first = false
			}
			cur = a.Target
			continue
		}
		if d, ok := c.definitions[cur]; ok {
			if first {
				public = d.Public
			}
			return cur, public, nil
		}
		return "", false, c.notFound(id)
	}
}

// resolve builds a service. Callers other than the instance fast path must
// hold buildMu.
func (c *Container) resolve(id string) (any, error) {
	if inst, ok := c.instance(id); ok {
		return inst, nil
	}
	for _, building := range c.buildStack {
		if building == id {
			path := append(append([]string(nil), c.buildStack...), id)
			return nil, &CircularReferenceError{Path: path}
		}
	}

	def, ok := c.definitions[id]
	if !ok {
		return nil, c.notFound(id)
	}
	factory, ok := c.factories.Lookup(def.Factory)
	if !ok {
		return nil, &FactoryNotFoundError{Name: def.Factory, ServiceID: id}
	}

	c.buildStack = append(c.buildStack, id)
	args, err := c.resolveArguments(def.Arguments)
	var inst any
	if err == nil {
		inst, err = factory(c, args)
	}
	c.buildStack = c.buildStack[:len(c.buildStack)-1]

	if err != nil {
		return nil, fmt.Errorf("container: building service %s: %w", strconv.Quote(id), err)
	}
	if def.Shared {
		c.setInstance(id, inst)
	}
	return inst, nil
}

func (c *Container) instance(id string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[id]
	return inst, ok
}

func (c *Container) setInstance(id string, inst any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[id] = inst
}

// notFound builds a ServiceNotFoundError with a did-you-mean suggestion.
func (c *Container) notFound(id string) error {
	best := ""
	bestDist := 4 // suggest only near misses
	for candidate := range c.definitions {
		if d := levenshtein.Distance(id, candidate, nil); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	for candidate := range c.aliases {
		if d := levenshtein.Distance(id, candidate, nil); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return &ServiceNotFoundError{ID: id, Suggestion: best}
}

// ── Argument resolution ───────────────────────────────────────────────────────

func (c *Container) resolveArguments(args []any) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := c.resolveArgument(arg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *Container) resolveArgument(arg any) (any, error) {
	switch v := arg.(type) {
	case string:
		return c.resolveString(v)
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			r, err := c.resolveArgument(el)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			r, err := c.resolveArgument(el)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return arg, nil
	}
}

func (c *Container) resolveString(s string) (any, error) {
	switch {
	case strings.HasPrefix(s, "@@"):
		// escaped literal "@..."
		return s[1:], nil
	case strings.HasPrefix(s, "@?"):
		return c.resolveReference(s[2:], true)
	case strings.HasPrefix(s, "@"):
		return c.resolveReference(s[1:], false)
	default:
		return c.expandString(s)
	}
}

// resolveReference builds the referenced service, ignoring publicness.
// Private services exist exactly for this path.
func (c *Container) resolveReference(id string, optional bool) (any, error) {
	canonical, _, err := c.entry(id)
	if err != nil {
		var notFound *ServiceNotFoundError
		if optional && errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return c.resolve(canonical)
}

// expandString substitutes "%name%" and "%env(NAME)%" placeholders. A string
// that is exactly one placeholder yields the raw (typed) value; placeholders
// embedded in surrounding text interpolate into a string. "%%" escapes a
// literal percent sign.
func (c *Container) expandString(s string) (any, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	var sole any
	placeholders := 0
	textSeen := false

	i := 0
	for i < len(s) {
		ch := s[i]
		if ch != '%' {
			b.WriteByte(ch)
			textSeen = true
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '%' {
			b.WriteByte('%')
			textSeen = true
			i += 2
			continue
		}
		end := strings.IndexByte(s[i+1:], '%')
		if end < 0 {
			return nil, &InvalidParameterError{Param: s, Reason: "unterminated % placeholder"}
		}
		name := s[i+1 : i+1+end]
		val, err := c.placeholderValue(name)
		if err != nil {
			return nil, err
		}
		placeholders++
		sole = val
		fmt.Fprintf(&b, "%v", val)
		i += end + 2
	}

	if placeholders == 1 && !textSeen {
		return sole, nil
	}
	return b.String(), nil
}

func (c *Container) placeholderValue(name string) (any, error) {
	if env, ok := strings.CutPrefix(name, "env("); ok && strings.HasSuffix(env, ")") {
		// read at build time, mirroring Symfony's %env()% processors
		return os.Getenv(strings.TrimSuffix(env, ")")), nil
	}
	if v, ok := c.parameters[name]; ok {
		return v, nil
	}
	return nil, &ParameterNotFoundError{Name: name}
}

// ── Generics helpers ──────────────────────────────────────────────────────────

// Resolve fetches a service and type-asserts it in one step.
//
//	logger, err := container.Resolve[*slog.Logger](c, "logger")
func Resolve[T any](c *Container, id string) (T, error) {
	var zero T
	inst, err := c.Get(id)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("container: service %s resolved to %T, not %T", strconv.Quote(id), inst, zero)
	}
	return typed, nil
}

// MustResolve is Resolve, panicking on failure.
func MustResolve[T any](c *Container, id string) T {
	typed, err := Resolve[T](c, id)
	if err != nil {
		panic(err)
	}
	return typed
}
