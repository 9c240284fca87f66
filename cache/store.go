package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gillix/symfony-container-loader/compiler"
	"github.com/gillix/symfony-container-loader/container"
)

// State classifies a cache probe.
type State int

const (
	// StateMissing means no artifact exists for the fingerprint.
	StateMissing State = iota
	// StateFresh means an artifact exists and every config resource is
	// unchanged.
	StateFresh
	// StateStale means an artifact exists but cannot be trusted: a resource
	// changed, or the artifact itself is unreadable.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// ResourceRef is the staleness snapshot of one config file, taken when the
// artifact was written. A later probe compares the live file against it;
// any difference in mtime or size marks the artifact stale.
type ResourceRef struct {
	Path            string `json:"path"`
	ModTimeUnixNano int64  `json:"mtime_unix_nano"`
	Size            int64  `json:"size"`
}

// artifactVersion guards the on-disk schema. Bumping it invalidates every
// existing artifact on upgrade, the same way Symfony's container class name
// changes do.
const artifactVersion = 1

// artifact is the on-disk JSON envelope.
type artifact struct {
	Version     int                         `json:"version"`
	Fingerprint string                      `json:"fingerprint"`
	Resources   []ResourceRef               `json:"resources"`
	Container   *compiler.CompiledContainer `json:"container"`
}

// Store reads and writes compiled-container artifacts under
// {cacheDir}/di/container_{fingerprint}.json.
//
// Writes go through a temp file plus rename, so concurrent processes never
// observe a half-written artifact: whoever renames last wins, and both
// writers produced equivalent content anyway.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore returns a Store rooted at {cacheDir}/di. A nil logger falls back
// to slog.Default.
func NewStore(cacheDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:    filepath.Join(cacheDir, "di"),
		logger: logger,
	}
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the artifact path for a fingerprint.
func (s *Store) Path(fp Fingerprint) string {
	return filepath.Join(s.dir, "container_"+string(fp)+".json")
}

// Load probes the artifact for a fingerprint.
//
// A missing artifact reports StateMissing. A corrupt or schema-incompatible
// artifact reports StateStale rather than an error; the caller recompiles
// and overwrites it, which heals the cache. Only environment problems (an
// unreadable file that does exist) surface as errors.
func (s *Store) Load(fp Fingerprint) (*compiler.CompiledContainer, State, error) {
	path := s.Path(fp)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, StateMissing, nil
		}
		return nil, StateMissing, fmt.Errorf("cache: reading %s: %w", strconv.Quote(path), err)
	}

	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		s.logger.Warn("cache artifact corrupt, will recompile", "path", path, "error", err)
		return nil, StateStale, nil
	}
	if art.Version != artifactVersion {
		s.logger.Debug("cache artifact from another schema version", "path", path, "version", art.Version)
		return nil, StateStale, nil
	}
	if art.Fingerprint != string(fp) || art.Container == nil {
		s.logger.Warn("cache artifact does not match its fingerprint", "path", path)
		return nil, StateStale, nil
	}

	for _, res := range art.Resources {
		if changed, why := resourceChanged(res); changed {
			s.logger.Debug("cache artifact stale", "path", path, "resource", res.Path, "reason", why)
			return nil, StateStale, nil
		}
	}
	return art.Container, StateFresh, nil
}

// Save snapshots the compiled container's resources and writes the artifact
// atomically. The snapshot is taken at save time: if a config file changes
// after compile but before save, the artifact records the newer state and the
// next probe recompiles.
func (s *Store) Save(fp Fingerprint, cc *compiler.CompiledContainer) error {
	resources := make([]ResourceRef, 0, len(cc.Resources))
	for _, path := range cc.Resources {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("cache: snapshotting resource %s: %w", strconv.Quote(path), err)
		}
		resources = append(resources, ResourceRef{
			Path:            path,
			ModTimeUnixNano: info.ModTime().UnixNano(),
			Size:            info.Size(),
		})
	}

	if err := s.ensureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(artifact{
		Version:     artifactVersion,
		Fingerprint: string(fp),
		Resources:   resources,
		Container:   cc,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshaling artifact: %w", err)
	}

	path := s.Path(fp)
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("cache: writing %s: %w", strconv.Quote(path), err)
	}
	s.logger.Debug("cache artifact written", "path", path, "resources", len(resources))
	return nil
}

// Entry describes one stored artifact, for tooling.
type Entry struct {
	Path        string
	Fingerprint Fingerprint
	Size        int64
	Services    int
	Resources   int
}

// List returns every artifact in the store, sorted by path. A store whose
// directory does not exist yet lists as empty.
func (s *Store) List() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "container_*.json"))
	if err != nil {
		return nil, fmt.Errorf("cache: listing artifacts: %w", err)
	}
	sort.Strings(matches)

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue // racing a concurrent Clear
		}
		entry := Entry{
			Path:        path,
			Fingerprint: fingerprintFromPath(path),
			Size:        info.Size(),
		}
		if data, err := os.ReadFile(path); err == nil {
			var art artifact
			if json.Unmarshal(data, &art) == nil && art.Container != nil {
				entry.Services = len(art.Container.Definitions)
				entry.Resources = len(art.Resources)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear removes every artifact in the store. Other files under the cache
// directory are left alone.
func (s *Store) Clear() (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if err := os.Remove(entry.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("cache: removing %s: %w", strconv.Quote(entry.Path), err)
		}
		removed++
	}
	return removed, nil
}

// ensureDir creates the artifact directory. Concurrent creators are fine;
// only a directory that cannot exist at all is an environment error.
func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		info, statErr := os.Stat(s.dir)
		if statErr == nil && info.IsDir() {
			return nil
		}
		return &container.WrongInfrastructureError{
			Path:   s.dir,
			Reason: "cannot create cache directory",
			Cause:  err,
		}
	}
	return nil
}

func resourceChanged(res ResourceRef) (bool, string) {
	info, err := os.Stat(res.Path)
	if err != nil {
		return true, "gone"
	}
	if info.ModTime().UnixNano() != res.ModTimeUnixNano {
		return true, "modified"
	}
	if info.Size() != res.Size {
		return true, "resized"
	}
	return false, ""
}

func fingerprintFromPath(path string) Fingerprint {
	name := filepath.Base(path)
	name = strings.TrimPrefix(name, "container_")
	name = strings.TrimSuffix(name, ".json")
	return Fingerprint(name)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
