package loader_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gillix/symfony-container-loader/cache"
	"github.com/gillix/symfony-container-loader/compiler"
	"github.com/gillix/symfony-container-loader/container"
	"github.com/gillix/symfony-container-loader/events"
	"github.com/gillix/symfony-container-loader/loader"
	"github.com/gillix/symfony-container-loader/routing"
)

// ── fixtures ──────────────────────────────────────────────────────────────────

const appYAML = `
parameters:
  app.name: sandbox
  app.retries: 3

services:
  app.greeter:
    factory: greeter
    arguments: ['%app.name%']
`

// clearEnv unsets every variable the loader consults and restores it after
// the test, so host settings cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{loader.EnvProjectRoot, loader.EnvCacheDir, loader.EnvMode, loader.EnvKernelLocation}
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, v) })
		}
	}
}

// project creates a throwaway project tree: a root carrying an empty .env
// file, a cache directory and a config directory.
func project(t *testing.T) (root, cacheDir string) {
	t.Helper()
	root = t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cacheDir = filepath.Join(root, "cache")
	if err := os.Mkdir(cacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	return root, cacheDir
}

func writeConfig(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func appFactories() *container.FactoryRegistry {
	reg := container.NewFactoryRegistry()
	reg.Register("greeter", func(c *container.Container, args []any) (any, error) {
		name, _ := args[0].(string)
		return "hello " + name, nil
	})
	return reg
}

// countingCompiler wraps the real builder and records every Compile call.
type countingCompiler struct {
	inner compiler.Compiler
	calls int
	last  compiler.Request
}

func newCounting() *countingCompiler {
	return &countingCompiler{inner: compiler.NewBuilder(quiet())}
}

func (c *countingCompiler) Compile(ctx context.Context, req compiler.Request) (*compiler.CompiledContainer, error) {
	c.calls++
	c.last = req
	return c.inner.Compile(ctx, req)
}

func baseOptions(root string, comp compiler.Compiler) []loader.Option {
	return []loader.Option{
		loader.WithProjectRoot(root),
		loader.WithCompiler(comp),
		loader.WithFactories(appFactories()),
		loader.WithLogger(quiet()),
	}
}

func artifactCount(t *testing.T, cacheDir string) int {
	t.Helper()
	entries, err := cache.NewStore(cacheDir, quiet()).List()
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

// ── compile-once lifecycle ────────────────────────────────────────────────────

func TestLoad_CompilesOnceThenReusesArtifact(t *testing.T) {
	clearEnv(t)
	root, cacheDir := project(t)
	writeConfig(t, root, "config/services.yaml", appYAML)
	comp := newCounting()
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}

	c1, err := loader.Load(context.Background(), entries, baseOptions(root, comp)...)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if comp.calls != 1 {
		t.Fatalf("first load compiled %d times, want 1", comp.calls)
	}
	if n := artifactCount(t, cacheDir); n != 1 {
		t.Errorf("cache holds %d artifacts, want 1", n)
	}

	c2, err := loader.Load(context.Background(), entries, baseOptions(root, comp)...)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if comp.calls != 1 {
		t.Errorf("second load recompiled: %d calls, want 1", comp.calls)
	}

	// Fresh and cached containers behave identically.
	for i, c := range []*container.Container{c1, c2} {
		greeting, err := container.Resolve[string](c, "app.greeter")
		if err != nil {
			t.Fatalf("container %d: %v", i, err)
		}
		if greeting != "hello sandbox" {
			t.Errorf("container %d: greeting = %q", i, greeting)
		}
		retries, err := c.Parameter("app.retries")
		if err != nil {
			t.Fatalf("container %d: %v", i, err)
		}
		if retries != float64(3) {
			t.Errorf("container %d: retries = %v (%T), want float64 3", i, retries, retries)
		}
	}
}

func TestLoad_RecompilesWhenConfigFileChanges(t *testing.T) {
	clearEnv(t)
	root, _ := project(t)
	path := writeConfig(t, root, "config/services.yaml", appYAML)
	comp := newCounting()
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}

	if _, err := loader.Load(context.Background(), entries, baseOptions(root, comp)...); err != nil {
		t.Fatal(err)
	}

	edited := appYAML + "\n  app.other:\n    factory: greeter\n    arguments: ['%app.name%']\n"
	writeConfig(t, root, "config/services.yaml", edited)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	c, err := loader.Load(context.Background(), entries, baseOptions(root, comp)...)
	if err != nil {
		t.Fatal(err)
	}
	if comp.calls != 2 {
		t.Errorf("load after edit compiled %d times, want 2", comp.calls)
	}
	if !c.Has("app.other") {
		t.Error("service added by the edit is missing")
	}
}

func TestLoad_ForceRefreshBypassesCache(t *testing.T) {
	clearEnv(t)
	root, cacheDir := project(t)
	writeConfig(t, root, "config/services.yaml", appYAML)
	comp := newCounting()
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}

	if _, err := loader.Load(context.Background(), entries, baseOptions(root, comp)...); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		opts := append(baseOptions(root, comp), loader.WithForceRefresh(true))
		if _, err := loader.Load(context.Background(), entries, opts...); err != nil {
			t.Fatal(err)
		}
	}
	if comp.calls != 3 {
		t.Errorf("compiled %d times, want 3", comp.calls)
	}
	// Same fingerprint, so the artifact is overwritten, not duplicated.
	if n := artifactCount(t, cacheDir); n != 1 {
		t.Errorf("cache holds %d artifacts, want 1", n)
	}
}

func TestLoad_DevelopmentModeAlwaysRecompiles(t *testing.T) {
	clearEnv(t)
	root, _ := project(t)
	writeConfig(t, root, "config/services.yaml", appYAML)
	comp := newCounting()
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}
	t.Setenv(loader.EnvMode, loader.ModeDevelopment)

	for i := 0; i < 2; i++ {
		if _, err := loader.Load(context.Background(), entries, baseOptions(root, comp)...); err != nil {
			t.Fatal(err)
		}
	}
	if comp.calls != 2 {
		t.Errorf("compiled %d times in development mode, want 2", comp.calls)
	}

	// An explicit false overrides the mode and trusts the fresh artifact.
	opts := append(baseOptions(root, comp), loader.WithForceRefresh(false))
	if _, err := loader.Load(context.Background(), entries, opts...); err != nil {
		t.Fatal(err)
	}
	if comp.calls != 2 {
		t.Errorf("WithForceRefresh(false) still recompiled: %d calls", comp.calls)
	}
}

// ── defaults ──────────────────────────────────────────────────────────────────

func TestLoad_NoConfigFilesYieldsKernelServices(t *testing.T) {
	clearEnv(t)
	root, _ := project(t)

	c, err := loader.Load(context.Background(), nil,
		loader.WithProjectRoot(root), loader.WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := container.Resolve[*slog.Logger](c, "kernel.logger"); err != nil {
		t.Errorf("kernel.logger: %v", err)
	}
	if _, err := container.Resolve[*events.Dispatcher](c, "event_dispatcher"); err != nil {
		t.Errorf("event_dispatcher alias: %v", err)
	}
	if _, err := container.Resolve[*routing.Router](c, "router"); err != nil {
		t.Errorf("router alias: %v", err)
	}
}

func TestLoad_AliasAndServiceShareInstance(t *testing.T) {
	clearEnv(t)
	root, _ := project(t)

	c, err := loader.Load(context.Background(), nil,
		loader.WithProjectRoot(root), loader.WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	direct, err := c.Get("kernel.logger")
	if err != nil {
		t.Fatal(err)
	}
	aliased, err := c.Get("logger")
	if err != nil {
		t.Fatal(err)
	}
	if direct != aliased {
		t.Error("alias resolved to a different instance than the service id")
	}
}

func TestLoad_WithoutDefaultsDropsKernelServices(t *testing.T) {
	clearEnv(t)
	root, cacheDir := project(t)
	writeConfig(t, root, "config/services.yaml", appYAML)
	comp := newCounting()
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}

	if _, err := loader.Load(context.Background(), entries, baseOptions(root, comp)...); err != nil {
		t.Fatal(err)
	}

	opts := append(baseOptions(root, comp), loader.WithoutDefaults())
	c, err := loader.Load(context.Background(), entries, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if c.Has("kernel.logger") {
		t.Error("kernel.logger present despite WithoutDefaults")
	}
	if !c.Has("app.greeter") {
		t.Error("application service missing")
	}
	// Different fingerprint: both artifacts coexist.
	if n := artifactCount(t, cacheDir); n != 2 {
		t.Errorf("cache holds %d artifacts, want 2", n)
	}
	if comp.calls != 2 {
		t.Errorf("compiled %d times, want 2", comp.calls)
	}

	// Reloading the with-defaults variant hits its own artifact.
	if _, err := loader.Load(context.Background(), entries, baseOptions(root, comp)...); err != nil {
		t.Fatal(err)
	}
	if comp.calls != 2 {
		t.Errorf("with-defaults reload recompiled: %d calls", comp.calls)
	}
}

// ── base parameters ───────────────────────────────────────────────────────────

func TestLoad_InjectsProjectParameters(t *testing.T) {
	clearEnv(t)
	root, cacheDir := project(t)
	writeConfig(t, root, "config/services.yaml", `
parameters:
  app.storage: '%project.root%/storage'
`)
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}

	c, err := loader.Load(context.Background(), entries,
		loader.WithProjectRoot(root), loader.WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Parameter("project.root"); got != root {
		t.Errorf("project.root = %v, want %v", got, root)
	}
	if got, _ := c.Parameter("project.cache_dir"); got != cacheDir {
		t.Errorf("project.cache_dir = %v, want %v", got, cacheDir)
	}
	if got, _ := c.Parameter("app.storage"); got != root+"/storage" {
		t.Errorf("app.storage = %v", got)
	}
}

func TestLoad_CompilerSeesDefaultsFirst(t *testing.T) {
	clearEnv(t)
	root, cacheDir := project(t)
	cfg := writeConfig(t, root, "config/services.yaml", appYAML)
	comp := newCounting()

	if _, err := loader.Load(context.Background(),
		[]loader.ConfigEntry{loader.File("config/services.yaml")},
		baseOptions(root, comp)...); err != nil {
		t.Fatal(err)
	}

	sources := comp.last.Sources
	if len(sources) != 2 {
		t.Fatalf("sources: got %d, want defaults plus the config file", len(sources))
	}
	if sources[0].Path != compiler.DefaultConfigPath || sources[0].Content == nil {
		t.Errorf("sources[0] = %+v, want the embedded defaults in first position", sources[0])
	}
	if sources[1].Path != cfg || sources[1].Content != nil {
		t.Errorf("sources[1] = %+v, want the caller file %q read from disk", sources[1], cfg)
	}
	if got := comp.last.Parameters["project.root"]; got != root {
		t.Errorf("project.root parameter = %v, want %v", got, root)
	}
	if got := comp.last.Parameters["project.cache_dir"]; got != cacheDir {
		t.Errorf("project.cache_dir parameter = %v, want %v", got, cacheDir)
	}
}

// ── warmup and inspect ────────────────────────────────────────────────────────

func TestWarmup_PersistsWithoutFactories(t *testing.T) {
	clearEnv(t)
	root, _ := project(t)
	// Nothing registers the greeter factory here: warming is data-only.
	writeConfig(t, root, "config/services.yaml", appYAML)
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}

	report, err := loader.Warmup(context.Background(), entries,
		loader.WithProjectRoot(root), loader.WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	if report.Services != 4 {
		t.Errorf("report.Services = %d, want the 3 kernel services plus app.greeter", report.Services)
	}
	if report.Aliases != 3 {
		t.Errorf("report.Aliases = %d, want 3", report.Aliases)
	}
	if _, err := os.Stat(report.ArtifactPath); err != nil {
		t.Errorf("artifact not on disk: %v", err)
	}

	// A later Load with factories rides the warmed artifact.
	comp := newCounting()
	if _, err := loader.Load(context.Background(), entries, baseOptions(root, comp)...); err != nil {
		t.Fatal(err)
	}
	if comp.calls != 0 {
		t.Errorf("load after warmup compiled %d times, want 0", comp.calls)
	}
}

func TestInspect_ReadsWithoutWriting(t *testing.T) {
	clearEnv(t)
	root, cacheDir := project(t)
	writeConfig(t, root, "config/services.yaml", appYAML)
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}
	opts := []loader.Option{loader.WithProjectRoot(root), loader.WithLogger(quiet())}

	cc, state, err := loader.Inspect(context.Background(), entries, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if state != cache.StateMissing {
		t.Errorf("state = %v, want missing on a cold cache", state)
	}
	if _, ok := cc.Definitions["app.greeter"]; !ok {
		t.Error("blueprint lacks app.greeter")
	}
	if n := artifactCount(t, cacheDir); n != 0 {
		t.Errorf("inspect wrote %d artifacts, want 0", n)
	}

	if _, err := loader.Warmup(context.Background(), entries, opts...); err != nil {
		t.Fatal(err)
	}
	if _, state, err = loader.Inspect(context.Background(), entries, opts...); err != nil {
		t.Fatal(err)
	}
	if state != cache.StateFresh {
		t.Errorf("state = %v, want fresh after warmup", state)
	}
}

func TestOpenStore_FindsTheResolvedCache(t *testing.T) {
	clearEnv(t)
	root, _ := project(t)
	writeConfig(t, root, "config/services.yaml", appYAML)
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}
	opts := []loader.Option{loader.WithProjectRoot(root), loader.WithLogger(quiet())}

	if _, err := loader.Warmup(context.Background(), entries, opts...); err != nil {
		t.Fatal(err)
	}
	store, err := loader.OpenStore(opts...)
	if err != nil {
		t.Fatal(err)
	}
	listed, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d artifacts, want 1", len(listed))
	}
	removed, err := store.Clear()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("cleared %d artifacts, want 1", removed)
	}
}

// ── failure modes ─────────────────────────────────────────────────────────────

func TestLoad_UnregisteredFactoryFailsAtLoadTime(t *testing.T) {
	clearEnv(t)
	root, _ := project(t)
	writeConfig(t, root, "config/services.yaml", `
services:
  app.orphan:
    factory: nobody.home
`)
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}

	_, err := loader.Load(context.Background(), entries,
		loader.WithProjectRoot(root), loader.WithLogger(quiet()))
	var fnf *container.FactoryNotFoundError
	if !errors.As(err, &fnf) {
		t.Fatalf("want FactoryNotFoundError, got %v", err)
	}
	if fnf.Name != "nobody.home" || fnf.ServiceID != "app.orphan" {
		t.Errorf("error names %q for %q", fnf.Name, fnf.ServiceID)
	}
}

func TestLoad_CompileErrorsWrapTheStage(t *testing.T) {
	clearEnv(t)
	root, _ := project(t)
	writeConfig(t, root, "config/services.yaml", `
services:
  app.broken:
    factory: greeter
    arguments: ['@app.gone']
`)
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}

	_, err := loader.Load(context.Background(), entries, baseOptions(root, newCounting())...)
	var lf *container.LoadingFailedError
	if !errors.As(err, &lf) {
		t.Fatalf("want LoadingFailedError, got %v", err)
	}
	if lf.Stage != "compile" {
		t.Errorf("stage = %q, want compile", lf.Stage)
	}
}

func TestLoad_CanceledContextAbortsCompile(t *testing.T) {
	clearEnv(t)
	root, _ := project(t)
	writeConfig(t, root, "config/services.yaml", appYAML)
	entries := []loader.ConfigEntry{loader.File("config/services.yaml")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loader.Load(ctx, entries, baseOptions(root, newCounting())...)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled in chain, got %v", err)
	}
}
