package loader

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/gillix/symfony-container-loader/container"
)

// Environment variables consulted during resolution.
const (
	EnvProjectRoot    = "PROJECT_ROOT"
	EnvCacheDir       = "CACHE_DIR"
	EnvMode           = "ENV_MODE"
	EnvKernelLocation = "SHARED_KERNEL_LOCATION"
)

// ModeDevelopment is the ENV_MODE value that forces recompilation on every
// load, so config edits take effect without touching the cache.
const ModeDevelopment = "development"

// envFileName is the key=value file read from the env-file directory.
const envFileName = ".env"

// Environment is the resolved load context: project root, cache directory,
// env-file directory and mode. It is immutable and threaded explicitly
// through the load. Resolution never writes back into the process
// environment, so concurrent loads with different roots cannot contaminate
// each other.
type Environment struct {
	// ProjectRoot is the absolute, verified project directory.
	ProjectRoot string
	// EnvFileDir is the absolute directory whose .env file was consulted.
	EnvFileDir string
	// CacheDir is the absolute, existing cache root. The loader creates only
	// its own subdirectory beneath it, never this directory itself.
	CacheDir string
	// Mode is the raw ENV_MODE value, empty when unset.
	Mode string

	// fileValues holds the .env contents; process variables take precedence.
	fileValues map[string]string
}

// Lookup returns a setting by name: the process environment first, then the
// env file.
func (e Environment) Lookup(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	v, ok := e.fileValues[name]
	return v, ok
}

// IsDevelopment reports whether the mode forces recompilation.
func (e Environment) IsDevelopment() bool {
	return e.Mode == ModeDevelopment
}

// resolveEnvironment fixes the load context. Precedence for every component:
// explicit option, then environment variable (process or env file), then
// filesystem heuristic, then failure.
func resolveEnvironment(o *options) (Environment, error) {
	env := Environment{fileValues: map[string]string{}}

	// An explicit env-file directory is read first: the file may itself
	// supply PROJECT_ROOT or CACHE_DIR.
	if o.envFileDir != "" {
		abs, err := filepath.Abs(o.envFileDir)
		if err != nil {
			return env, &container.InvalidParameterError{Param: o.envFileDir, Reason: "unusable env-file directory", Cause: err}
		}
		env.EnvFileDir = abs
		if err := readEnvFile(&env, abs); err != nil {
			return env, err
		}
	}

	root, err := resolveProjectRoot(o, env)
	if err != nil {
		return env, err
	}
	env.ProjectRoot = root

	if env.EnvFileDir == "" {
		env.EnvFileDir = env.ProjectRoot
		if err := readEnvFile(&env, env.EnvFileDir); err != nil {
			return env, err
		}
	}

	cacheDir, err := resolveCacheDir(o, env)
	if err != nil {
		return env, err
	}
	env.CacheDir = cacheDir

	if mode, ok := env.Lookup(EnvMode); ok {
		env.Mode = mode
	}
	return env, nil
}

func resolveProjectRoot(o *options, env Environment) (string, error) {
	var root string
	switch {
	case o.projectRoot != "":
		root = o.projectRoot
	default:
		if fromEnv, ok := env.Lookup(EnvProjectRoot); ok && fromEnv != "" {
			root = fromEnv
			break
		}
		discovered, err := discoverProjectRoot(env)
		if err != nil {
			return "", err
		}
		root = discovered
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", &container.InvalidParameterError{Param: root, Reason: "unusable project root", Cause: err}
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", &container.WrongInfrastructureError{
			Path:   abs,
			Reason: "project root is not an existing directory",
			Cause:  err,
		}
	}
	return abs, nil
}

// discoverProjectRoot walks upward looking for a directory carrying a .env
// file. The walk starts at SHARED_KERNEL_LOCATION when set, otherwise at the
// working directory.
func discoverProjectRoot(env Environment) (string, error) {
	start, ok := env.Lookup(EnvKernelLocation)
	if !ok || start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", &container.WrongInfrastructureError{Path: ".", Reason: "cannot determine working directory", Cause: err}
		}
		start = wd
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", &container.InvalidParameterError{Param: start, Reason: "unusable walk start", Cause: err}
	}

	dir := abs
	for {
		if info, err := os.Stat(filepath.Join(dir, envFileName)); err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &container.WrongInfrastructureError{
				Path:   abs,
				Reason: "no project root found: no " + envFileName + " in any parent directory",
			}
		}
		dir = parent
	}
}

func resolveCacheDir(o *options, env Environment) (string, error) {
	var dir string
	switch {
	case o.cacheDir != "":
		dir = o.cacheDir
	default:
		if fromEnv, ok := env.Lookup(EnvCacheDir); ok && fromEnv != "" {
			dir = fromEnv
			break
		}
		dir = filepath.Join(env.ProjectRoot, "cache")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &container.InvalidParameterError{Param: dir, Reason: "unusable cache directory", Cause: err}
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", &container.WrongInfrastructureError{
			Path:   abs,
			Reason: "cache directory does not exist",
			Cause:  err,
		}
	}
	return abs, nil
}

// readEnvFile merges {dir}/.env into the environment. A missing file is fine,
// production deployments often have none. A file that exists but cannot be
// parsed is an infrastructure fault.
//
// godotenv.Read (not Load) keeps the process environment untouched.
func readEnvFile(env *Environment, dir string) error {
	path := filepath.Join(dir, envFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &container.WrongInfrastructureError{Path: path, Reason: "cannot access env file", Cause: err}
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return &container.WrongInfrastructureError{Path: path, Reason: "malformed env file", Cause: err}
	}
	for k, v := range values {
		env.fileValues[k] = v
	}
	return nil
}
