package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/gillix/symfony-container-loader/container"
)

// Builder is the default Compiler. It parses every source with a
// format-specific FileLoader, merges the fragments in order (later sources
// override earlier ones, key by key), flattens parameter references, and
// validates the resulting service graph.
//
// It plays the role of Symfony's ContainerBuilder plus its compiler passes:
// ResolveParameterPlaceHoldersPass, CheckExceptionOnInvalidReferenceBehaviorPass
// and CheckCircularReferencesPass all have a counterpart below.
type Builder struct {
	loaders map[string]FileLoader
	logger  *slog.Logger
}

// NewBuilder returns a Builder with the YAML and HCL loaders registered. A
// nil logger falls back to slog.Default.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		loaders: make(map[string]FileLoader),
		logger:  logger,
	}
	b.RegisterLoader(".yaml", NewYAMLLoader())
	b.RegisterLoader(".yml", NewYAMLLoader())
	b.RegisterLoader(".hcl", NewHCLLoader())
	return b
}

// RegisterLoader installs (or replaces) the loader for a file extension,
// e.g. ".yaml".
func (b *Builder) RegisterLoader(ext string, l FileLoader) {
	b.loaders[strings.ToLower(ext)] = l
}

// Compile implements Compiler.
func (b *Builder) Compile(ctx context.Context, req Request) (*CompiledContainer, error) {
	b.logger.Debug("compile started", "sources", len(req.Sources))

	out := &CompiledContainer{
		Parameters:  make(map[string]any),
		Definitions: make(map[string]container.Definition),
		Aliases:     make(map[string]container.Alias),
	}

	for _, src := range req.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frag, err := b.loadSource(src)
		if err != nil {
			return nil, err
		}
		mergeFragment(out, frag)
		if src.Content == nil {
			out.Resources = append(out.Resources, src.Path)
		}
		b.logger.Debug("source merged",
			"path", src.Path,
			"parameters", len(frag.Parameters),
			"services", len(frag.Definitions),
			"aliases", len(frag.Aliases))
	}

	for name, value := range req.Parameters {
		out.Parameters[name] = value
	}

	resolved, err := resolveParameters(out.Parameters)
	if err != nil {
		return nil, err
	}
	out.Parameters = resolved

	if err := validateReferences(out); err != nil {
		return nil, err
	}
	if err := detectCycles(out); err != nil {
		return nil, err
	}

	b.logger.Debug("compile finished",
		"parameters", len(out.Parameters),
		"services", len(out.Definitions),
		"aliases", len(out.Aliases))
	return out, nil
}

func (b *Builder) loadSource(src Source) (*Fragment, error) {
	content := src.Content
	if content == nil {
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("compile: reading %s: %w", strconv.Quote(src.Path), err)
		}
		content = data
	}

	ext := strings.ToLower(filepath.Ext(src.Path))
	if ext == "" {
		// embedded pseudo-paths (builtin:defaults) carry YAML
		ext = ".yaml"
	}
	loader, ok := b.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("compile: no loader registered for %s files (%s)", ext, src.Path)
	}
	return loader.Load(src.Path, content)
}

// mergeFragment folds a fragment into the accumulated result. Within each
// table later sources win per key; a service id redefined as an alias (or the
// reverse) drops its previous form entirely.
func mergeFragment(out *CompiledContainer, frag *Fragment) {
	for name, value := range frag.Parameters {
		out.Parameters[name] = value
	}
	for id, def := range frag.Definitions {
		delete(out.Aliases, id)
		out.Definitions[id] = def
	}
	for id, alias := range frag.Aliases {
		delete(out.Definitions, id)
		out.Aliases[id] = alias
	}
}

// ── Parameter flattening ──────────────────────────────────────────────────────

// resolveParameters replaces "%name%" references inside parameter values with
// the referenced values, recursively, and unescapes "%%". References between
// parameters may chain but not cycle. "%env(NAME)%" placeholders survive
// verbatim: environment lookups belong to runtime, so the compiled table
// stays environment-independent.
func resolveParameters(params map[string]any) (map[string]any, error) {
	r := &paramResolver{
		src:       params,
		out:       make(map[string]any, len(params)),
		resolving: make(map[string]bool),
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := r.resolve(name); err != nil {
			return nil, err
		}
	}
	return r.out, nil
}

type paramResolver struct {
	src       map[string]any
	out       map[string]any
	resolving map[string]bool
	stack     []string
}

func (r *paramResolver) resolve(name string) (any, error) {
	if v, ok := r.out[name]; ok {
		return v, nil
	}
	if r.resolving[name] {
		path := append(append([]string(nil), r.stack...), name)
		return nil, &container.InvalidParameterError{
			Param:  name,
			Reason: "circular parameter reference: " + strings.Join(path, " -> "),
		}
	}
	raw, ok := r.src[name]
	if !ok {
		return nil, &container.ParameterNotFoundError{Name: name}
	}

	r.resolving[name] = true
	r.stack = append(r.stack, name)
	v, err := r.resolveValue(raw)
	r.stack = r.stack[:len(r.stack)-1]
	delete(r.resolving, name)

	if err != nil {
		return nil, err
	}
	r.out[name] = v
	return v, nil
}

func (r *paramResolver) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.expand(val)
	case []any:
		out := make([]any, len(val))
		for i, el := range val {
			rv, err := r.resolveValue(el)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, el := range val {
			rv, err := r.resolveValue(el)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// expand substitutes "%name%" placeholders in a parameter value. A value that
// is exactly one placeholder keeps the referenced value's type; otherwise
// everything interpolates into a string.
func (r *paramResolver) expand(s string) (any, error) {
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
			return nil, &container.InvalidParameterError{Param: s, Reason: "unterminated % placeholder"}
		}
		name := s[i+1 : i+1+end]
		if strings.HasPrefix(name, "env(") && strings.HasSuffix(name, ")") {
			// runtime placeholder, keep as-is
			b.WriteString("%" + name + "%")
			textSeen = true
			i += end + 2
			continue
		}
		val, err := r.resolve(name)
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

// ── Graph validation ──────────────────────────────────────────────────────────

// validateReferences checks that every alias target and every required "@id"
// argument can be traced to a definition. Optional "@?id" references may
// dangle.
func validateReferences(cc *CompiledContainer) error {
	for _, id := range sortedAliasIDs(cc.Aliases) {
		if _, err := followAliases(cc, id); err != nil {
			return fmt.Errorf("compile: alias %s: %w", strconv.Quote(id), err)
		}
	}
	for _, id := range sortedServiceIDs(cc.Definitions) {
		def := cc.Definitions[id]
		for _, ref := range collectReferences(def.Arguments) {
			if ref.optional {
				continue
			}
			if _, err := followAliases(cc, ref.id); err != nil {
				return fmt.Errorf("compile: service %s: %w", strconv.Quote(id), err)
			}
		}
	}
	return nil
}

// followAliases walks the alias chain to a definition id.
func followAliases(cc *CompiledContainer, id string) (string, error) {
	seen := make([]string, 0, 4)
	cur := id
	for {
		for _, s := range seen {
			if s == cur {
				return "", &container.CircularReferenceError{Path: append(seen, cur)}
			}
		}
		seen = append(seen, cur)
		if a, ok := cc.Aliases[cur]; ok {
			cur = a.Target
			continue
		}
		if _, ok := cc.Definitions[cur]; ok {
			return cur, nil
		}
		return "", &container.ServiceNotFoundError{ID: cur, Suggestion: nearestID(cur, cc)}
	}
}

// detectCycles rejects definition graphs where building a service would loop.
// Runtime has its own guard; failing at compile keeps broken graphs out of
// the cache.
func detectCycles(cc *CompiledContainer) error {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // finished
	)
	color := make(map[string]int, len(cc.Definitions))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		stack = append(stack, id)
		def := cc.Definitions[id]
		for _, ref := range collectReferences(def.Arguments) {
			target, err := followAliases(cc, ref.id)
			if err != nil {
				continue // dangling optionals are fine, dangling required already reported
			}
			switch color[target] {
			case grey:
				start := 0
				for i, s := range stack {
					if s == target {
						start = i
						break
					}
				}
				path := append(append([]string(nil), stack[start:]...), target)
				return &container.CircularReferenceError{Path: path}
			case white:
				if err := visit(target); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range sortedServiceIDs(cc.Definitions) {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

type reference struct {
	id       string
	optional bool
}

// collectReferences walks an argument tree and returns every service
// reference in it.
func collectReferences(args []any) []reference {
	var refs []reference
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			switch {
			case strings.HasPrefix(val, "@@"):
				// escaped literal
			case strings.HasPrefix(val, "@?"):
				refs = append(refs, reference{id: val[2:], optional: true})
			case strings.HasPrefix(val, "@"):
				refs = append(refs, reference{id: val[1:]})
			}
		case []any:
			for _, el := range val {
				walk(el)
			}
		case map[string]any:
			for _, el := range val {
				walk(el)
			}
		}
	}
	for _, a := range args {
		walk(a)
	}
	return refs
}

func nearestID(id string, cc *CompiledContainer) string {
	best := ""
	bestDist := 4
	for candidate := range cc.Definitions {
		if d := levenshtein.Distance(id, candidate, nil); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	for candidate := range cc.Aliases {
		if d := levenshtein.Distance(id, candidate, nil); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

func sortedServiceIDs(defs map[string]container.Definition) []string {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedAliasIDs(aliases map[string]container.Alias) []string {
	ids := make([]string, 0, len(aliases))
	for id := range aliases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
