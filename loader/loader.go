package loader

import (
	"context"
	"log/slog"
	"sort"

	"github.com/gillix/symfony-container-loader/cache"
	"github.com/gillix/symfony-container-loader/compiler"
	"github.com/gillix/symfony-container-loader/container"
	"github.com/gillix/symfony-container-loader/services"
)

// options collects everything the Option funcs can override.
type options struct {
	projectRoot  string
	envFileDir   string
	cacheDir     string
	noDefaults   bool
	forceRefresh *bool
	compiler     compiler.Compiler
	factories    *container.FactoryRegistry
	logger       *slog.Logger
}

// Option customizes a single Load call.
type Option func(*options)

// WithProjectRoot pins the project root, bypassing PROJECT_ROOT and the
// filesystem walk.
func WithProjectRoot(dir string) Option {
	return func(o *options) { o.projectRoot = dir }
}

// WithEnvFileDir reads .env from dir instead of the project root.
func WithEnvFileDir(dir string) Option {
	return func(o *options) { o.envFileDir = dir }
}

// WithCacheDir pins the cache directory, bypassing CACHE_DIR and the
// {root}/cache default. The directory must already exist.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithoutDefaults drops the built-in kernel services and parameters, leaving
// only the caller's config files. The fingerprint changes accordingly.
func WithoutDefaults() Option {
	return func(o *options) { o.noDefaults = true }
}

// WithForceRefresh overrides the recompile policy in both directions:
// true bypasses the cache probe, false trusts a fresh artifact even in
// development mode.
func WithForceRefresh(force bool) Option {
	return func(o *options) { o.forceRefresh = &force }
}

// WithCompiler swaps in a custom Compiler, for callers with their own config
// formats or extra compile passes.
func WithCompiler(c compiler.Compiler) Option {
	return func(o *options) { o.compiler = c }
}

// WithFactories merges reg over the built-in kernel factories. Registrations
// win on name collision.
func WithFactories(reg *container.FactoryRegistry) Option {
	return func(o *options) { o.factories = reg }
}

// WithLogger sets the logger used across environment resolution, compilation
// and the cache. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// loadPlan is the resolved front half of every entry point: environment,
// config paths, fingerprint and store.
type loadPlan struct {
	opts   *options
	logger *slog.Logger
	env    Environment
	paths  []string
	fp     cache.Fingerprint
	store  *cache.Store
}

func newPlan(configFiles []ConfigEntry, opts []Option) (*loadPlan, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	env, err := resolveEnvironment(o)
	if err != nil {
		return nil, err
	}
	entries, err := normalizeEntries(configFiles)
	if err != nil {
		return nil, err
	}
	paths, err := resolvePaths(entries, env.ProjectRoot)
	if err != nil {
		return nil, err
	}

	fingerprintPaths := paths
	if !o.noDefaults {
		fingerprintPaths = append([]string{compiler.DefaultConfigPath}, paths...)
	}
	fp := cache.ComputeFingerprint(cache.FingerprintInputs{
		ProjectRoot: env.ProjectRoot,
		ConfigPaths: fingerprintPaths,
		EnvFileDir:  env.EnvFileDir,
	})

	return &loadPlan{
		opts:   o,
		logger: logger,
		env:    env,
		paths:  paths,
		fp:     fp,
		store:  cache.NewStore(env.CacheDir, logger),
	}, nil
}

func (p *loadPlan) compile(ctx context.Context) (*compiler.CompiledContainer, error) {
	comp := p.opts.compiler
	if comp == nil {
		comp = compiler.NewBuilder(p.logger)
	}
	sources := make([]compiler.Source, 0, len(p.paths)+1)
	if !p.opts.noDefaults {
		sources = append(sources, compiler.DefaultSource())
	}
	for _, path := range p.paths {
		sources = append(sources, compiler.Source{Path: path})
	}
	req := compiler.Request{
		Sources: sources,
		Parameters: map[string]any{
			"project.root":      p.env.ProjectRoot,
			"project.cache_dir": p.env.CacheDir,
		},
	}
	cc, err := comp.Compile(ctx, req)
	if err != nil {
		return nil, &container.LoadingFailedError{Stage: "compile", Cause: err}
	}
	return cc, nil
}

// Load resolves the environment, then produces a ready container: a fresh
// cached artifact is deserialized as-is; otherwise the config files are
// compiled and the result persisted before the container is constructed.
//
//	// Symfony: Kernel::initializeContainer() + ConfigCache::isFresh()
//
// Config entries are merged in ascending priority, later entries overriding
// earlier ones; the built-in defaults sit below everything unless disabled
// with WithoutDefaults. Relative entry paths are anchored at the project
// root.
//
// Every definition's factory must be registered (built-ins plus
// WithFactories) or Load fails with FactoryNotFoundError, so missing
// bindings surface here rather than on first Get.
func Load(ctx context.Context, configFiles []ConfigEntry, opts ...Option) (*container.Container, error) {
	p, err := newPlan(configFiles, opts)
	if err != nil {
		return nil, err
	}

	force := p.env.IsDevelopment()
	if p.opts.forceRefresh != nil {
		force = *p.opts.forceRefresh
	}

	var cc *compiler.CompiledContainer
	reason := "forced"
	if !force {
		loaded, state, err := p.store.Load(p.fp)
		if err != nil {
			return nil, &container.LoadingFailedError{Stage: "cache-read", Cause: err}
		}
		cc = loaded
		reason = state.String()
	}

	if cc == nil {
		cc, err = p.compile(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.store.Save(p.fp, cc); err != nil {
			return nil, &container.LoadingFailedError{Stage: "persist", Cause: err}
		}
		p.logger.Debug("container compiled",
			"fingerprint", p.fp.Short(),
			"reason", reason,
			"services", len(cc.Definitions),
			"resources", len(cc.Resources))
	} else {
		p.logger.Debug("container loaded from cache",
			"fingerprint", p.fp.Short(),
			"services", len(cc.Definitions))
	}

	factories := services.KernelFactories()
	factories.Merge(p.opts.factories)

	if err := checkFactories(cc, factories); err != nil {
		return nil, err
	}

	return container.New(cc.Parameters, cc.Definitions, cc.Aliases, factories), nil
}

// Report summarizes a Warmup.
type Report struct {
	Fingerprint  cache.Fingerprint
	ArtifactPath string
	Services     int
	Aliases      int
	Parameters   int
	Resources    []string
}

// Warmup compiles the configuration and persists the artifact
// unconditionally, without constructing a container. Factories play no part:
// the artifact is pure data, so deployment tooling can warm the cache for an
// application whose factories it cannot know.
//
//	// Symfony: bin/console cache:warmup
func Warmup(ctx context.Context, configFiles []ConfigEntry, opts ...Option) (*Report, error) {
	p, err := newPlan(configFiles, opts)
	if err != nil {
		return nil, err
	}
	cc, err := p.compile(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(p.fp, cc); err != nil {
		return nil, &container.LoadingFailedError{Stage: "persist", Cause: err}
	}
	p.logger.Debug("cache warmed",
		"fingerprint", p.fp.Short(),
		"artifact", p.store.Path(p.fp))
	return &Report{
		Fingerprint:  p.fp,
		ArtifactPath: p.store.Path(p.fp),
		Services:     len(cc.Definitions),
		Aliases:      len(cc.Aliases),
		Parameters:   len(cc.Parameters),
		Resources:    cc.Resources,
	}, nil
}

// Inspect returns the compiled blueprint Load would use, without
// constructing a container and without writing to the cache. The state
// reports how the cache answered; on anything but StateFresh the blueprint
// comes from an in-memory compile.
//
//	// Symfony: bin/console debug:container
func Inspect(ctx context.Context, configFiles []ConfigEntry, opts ...Option) (*compiler.CompiledContainer, cache.State, error) {
	p, err := newPlan(configFiles, opts)
	if err != nil {
		return nil, cache.StateMissing, err
	}
	cc, state, err := p.store.Load(p.fp)
	if err != nil {
		return nil, state, &container.LoadingFailedError{Stage: "cache-read", Cause: err}
	}
	if cc == nil {
		cc, err = p.compile(ctx)
		if err != nil {
			return nil, state, err
		}
	}
	return cc, state, nil
}

// OpenStore resolves the environment and returns the artifact store it points
// at, for tooling that lists or clears artifacts without loading anything.
func OpenStore(opts ...Option) (*cache.Store, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	env, err := resolveEnvironment(o)
	if err != nil {
		return nil, err
	}
	return cache.NewStore(env.CacheDir, logger), nil
}

// checkFactories walks the definitions in stable order and rejects the first
// one whose factory is unregistered.
func checkFactories(cc *compiler.CompiledContainer, reg *container.FactoryRegistry) error {
	ids := make([]string, 0, len(cc.Definitions))
	for id := range cc.Definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if def := cc.Definitions[id]; !reg.Has(def.Factory) {
			return &container.FactoryNotFoundError{Name: def.Factory, ServiceID: id}
		}
	}
	return nil
}
