// Command containerctl maintains compiled container artifacts: it warms the
// cache ahead of deployment, shows what a configuration compiles to, and
// lists or clears the artifacts a cache directory holds.
//
// Usage:
//
//	containerctl warmup -root /srv/app -config config/services.yaml
//	containerctl debug -root /srv/app -config config/services.yaml
//	containerctl artifacts -root /srv/app
//	containerctl clear -root /srv/app
//
// Warming needs no Go factories: the artifact is pure data, so a deployment
// pipeline can prime the cache for an application it cannot run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/gillix/symfony-container-loader/loader"
	"github.com/gillix/symfony-container-loader/services"
)

// exitError carries a process exit code alongside the message.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, exit.message)
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stdout)
		return nil
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "warmup":
		return runWarmup(rest, stdout, stderr)
	case "debug":
		return runDebug(rest, stdout, stderr)
	case "artifacts":
		return runArtifacts(rest, stdout, stderr)
	case "clear":
		return runClear(rest, stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		return &exitError{code: 2, message: fmt.Sprintf("containerctl: unknown command %q (expected warmup, debug, artifacts or clear)", cmd)}
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `containerctl - compiled service container maintenance

Usage:
  containerctl <command> [options]

Commands:
  warmup     Compile the configuration and persist the artifact.
  debug      Print the services, aliases and parameters a config compiles to.
  artifacts  List the artifacts in the cache directory.
  clear      Remove every artifact from the cache directory.

Run 'containerctl <command> -h' for command options.
`)
}

// commonFlags are shared by every subcommand; config-related ones are only
// bound where they make sense.
type commonFlags struct {
	root       string
	cacheDir   string
	envFileDir string
	configs    multiFlag
	noDefaults bool
	logLevel   string
	logFormat  string
}

// multiFlag collects a repeatable string flag in the order given.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("containerctl "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func bindEnvFlags(fs *flag.FlagSet, cf *commonFlags) {
	fs.StringVar(&cf.root, "root", "", "Project root. Defaults to $PROJECT_ROOT or a .env walk-up.")
	fs.StringVar(&cf.cacheDir, "cache-dir", "", "Cache directory. Defaults to $CACHE_DIR or {root}/cache.")
	fs.StringVar(&cf.envFileDir, "env-file-dir", "", "Directory holding the .env file. Defaults to the project root.")
	fs.StringVar(&cf.logLevel, "log-level", "warn", "Log level: debug, info, warn or error.")
	fs.StringVar(&cf.logFormat, "log-format", "text", "Log format: text or json.")
}

func bindConfigFlags(fs *flag.FlagSet, cf *commonFlags) {
	fs.Var(&cf.configs, "config", "Config file, relative to the root; repeat for more. Later files override earlier ones.")
	fs.BoolVar(&cf.noDefaults, "no-defaults", false, "Skip the built-in kernel services.")
}

// parseFlags reports whether the command should proceed; -h prints usage and
// stops cleanly.
func parseFlags(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return false, nil
		}
		return false, &exitError{code: 2, message: "containerctl: " + err.Error()}
	}
	if fs.NArg() > 0 {
		return false, &exitError{code: 2, message: fmt.Sprintf("containerctl: unexpected arguments: %s", strings.Join(fs.Args(), " "))}
	}
	return true, nil
}

func (cf *commonFlags) options(stderr io.Writer) []loader.Option {
	opts := []loader.Option{
		loader.WithLogger(services.NewLogger(cf.logLevel, cf.logFormat, stderr)),
	}
	if cf.root != "" {
		opts = append(opts, loader.WithProjectRoot(cf.root))
	}
	if cf.cacheDir != "" {
		opts = append(opts, loader.WithCacheDir(cf.cacheDir))
	}
	if cf.envFileDir != "" {
		opts = append(opts, loader.WithEnvFileDir(cf.envFileDir))
	}
	if cf.noDefaults {
		opts = append(opts, loader.WithoutDefaults())
	}
	return opts
}

func (cf *commonFlags) entries() []loader.ConfigEntry {
	entries := make([]loader.ConfigEntry, 0, len(cf.configs))
	for _, path := range cf.configs {
		entries = append(entries, loader.File(path))
	}
	return entries
}

// ── warmup ────────────────────────────────────────────────────────────────────

func runWarmup(args []string, stdout, stderr io.Writer) error {
	var cf commonFlags
	fs := newFlagSet("warmup", stderr)
	bindEnvFlags(fs, &cf)
	bindConfigFlags(fs, &cf)
	if proceed, err := parseFlags(fs, args); err != nil || !proceed {
		return err
	}

	report, err := loader.Warmup(context.Background(), cf.entries(), cf.options(stderr)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "compiled %d services, %d aliases, %d parameters\n",
		report.Services, report.Aliases, report.Parameters)
	fmt.Fprintf(stdout, "artifact: %s\n", report.ArtifactPath)
	return nil
}

// ── debug ─────────────────────────────────────────────────────────────────────

func runDebug(args []string, stdout, stderr io.Writer) error {
	var cf commonFlags
	fs := newFlagSet("debug", stderr)
	bindEnvFlags(fs, &cf)
	bindConfigFlags(fs, &cf)
	if proceed, err := parseFlags(fs, args); err != nil || !proceed {
		return err
	}

	cc, state, err := loader.Inspect(context.Background(), cf.entries(), cf.options(stderr)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "cache: %s\n\n", state)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tFACTORY\tPUBLIC\tSHARED\tTAGS")
	for _, id := range sortedKeys(cc.Definitions) {
		def := cc.Definitions[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			id, def.Factory, yesNo(def.Public), yesNo(def.Shared), dashJoin(def.Tags))
	}
	tw.Flush()

	if len(cc.Aliases) > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprintln(tw, "ALIAS\tTARGET\tPUBLIC")
		for _, name := range sortedKeys(cc.Aliases) {
			alias := cc.Aliases[name]
			fmt.Fprintf(tw, "%s\t%s\t%s\n", name, alias.Target, yesNo(alias.Public))
		}
		tw.Flush()
	}

	if len(cc.Parameters) > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprintln(tw, "PARAMETER\tVALUE")
		for _, name := range sortedKeys(cc.Parameters) {
			fmt.Fprintf(tw, "%s\t%v\n", name, cc.Parameters[name])
		}
		tw.Flush()
	}
	return nil
}

// ── artifacts ─────────────────────────────────────────────────────────────────

func runArtifacts(args []string, stdout, stderr io.Writer) error {
	var cf commonFlags
	fs := newFlagSet("artifacts", stderr)
	bindEnvFlags(fs, &cf)
	if proceed, err := parseFlags(fs, args); err != nil || !proceed {
		return err
	}

	store, err := loader.OpenStore(cf.options(stderr)...)
	if err != nil {
		return err
	}
	entries, err := store.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "no artifacts")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINGERPRINT\tSERVICES\tRESOURCES\tSIZE\tPATH")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n",
			entry.Fingerprint.Short(), entry.Services, entry.Resources, entry.Size, entry.Path)
	}
	return tw.Flush()
}

// ── clear ─────────────────────────────────────────────────────────────────────

func runClear(args []string, stdout, stderr io.Writer) error {
	var cf commonFlags
	fs := newFlagSet("clear", stderr)
	bindEnvFlags(fs, &cf)
	if proceed, err := parseFlags(fs, args); err != nil || !proceed {
		return err
	}

	store, err := loader.OpenStore(cf.options(stderr)...)
	if err != nil {
		return err
	}
	removed, err := store.Clear()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "removed %d artifacts\n", removed)
	return nil
}

// ── formatting helpers ────────────────────────────────────────────────────────

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dashJoin(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
