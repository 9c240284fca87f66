// Package loader is the front door: it turns a project's config files into a
// ready service container, compiling once and reusing a cached artifact on
// every load after that.
//
// # Overview
//
// Load runs the same sequence Symfony's Kernel::initializeContainer() runs:
// resolve the environment, check the cache, compile if the cache cannot be
// trusted, persist, construct the runtime container.
//
//	c, err := loader.Load(ctx, []loader.ConfigEntry{
//	    loader.File("config/services.yaml"),
//	    loader.FileWithPriority("config/services_prod.yaml", 10),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	router := container.MustResolve[*routing.Router](c, "kernel.router")
//
// Entries merge in ascending priority; later files override earlier ones
// service by service and parameter by parameter. The built-in kernel services
// (logger, event dispatcher, router) sit below everything, unless
// WithoutDefaults drops them.
//
// # Environment
//
// Each component of the load context resolves independently, first match
// wins:
//
//	project root   WithProjectRoot > $PROJECT_ROOT > walk up from
//	               $SHARED_KERNEL_LOCATION (or the working directory)
//	               looking for a .env file
//	env-file dir   WithEnvFileDir > project root
//	cache dir      WithCacheDir > $CACHE_DIR > {root}/cache
//	mode           $ENV_MODE
//
// Variables are read from the process environment first, then from the .env
// file; the file never overrides the process. Resolution builds an immutable
// Environment value instead of exporting anything, so two goroutines can load
// different projects concurrently without stepping on each other.
//
// The cache directory must already exist. Provisioning it is a deployment
// concern; the loader only creates its own subdirectory beneath it.
//
// # Caching
//
// Artifacts are content-addressed by a fingerprint of the project root, the
// ordered config paths and the env-file directory, so distinct setups never
// collide inside a shared cache directory. An artifact is reused only while
// every config file that produced it is byte-for-byte undisturbed (same
// mtime and size); editing, replacing or deleting one triggers a transparent
// recompile, as does a corrupt or incompatible artifact.
//
//	// Symfony: ConfigCache::isFresh() over the dumped container
//
// When $ENV_MODE is "development" the cache probe is skipped and every load
// recompiles; WithForceRefresh overrides the policy in either direction.
//
// # Failure modes
//
// Problems with the machine (missing project root, absent cache directory,
// malformed .env) surface as WrongInfrastructureError; problems with the
// request (empty or duplicate config entries, files that do not exist) as
// InvalidParameterError; failures inside the compile-or-cache sequence as
// LoadingFailedError wrapping the cause. All are defined in the container
// package.
package loader
