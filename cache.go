package wasmvm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wasmvm/wasmvm/api"
	"github.com/wasmvm/wasmvm/internal/wasm"
)

// Cache holds compiled Modules across Runtime instances: the in-memory half
// is always active, an optional on-disk directory backs it so a process
// restart doesn't pay full compilation cost again.
type Cache interface {
	api.Closer

	// WithCompilationCacheDirName configures the destination directory for
	// the on-disk half of the cache. If dirname doesn't exist, it is
	// created. A cache is only safe to share between runtimes that agree on
	// the module's Features and Tunables: ComputeCacheKey folds both in, so
	// an incompatible configuration simply misses rather than returning a
	// mismatched entry.
	WithCompilationCacheDirName(dirname string) error
}

// NewCache returns a new Cache to be passed to RuntimeConfig.
func NewCache() Cache {
	mem, err := lru.New[wasm.CacheKey, *wasm.Module](256)
	if err != nil {
		// Only returns an error for a non-positive size, which 256 never is.
		panic(err)
	}
	return &cache{mem: mem}
}

// cache implements Cache. Compiled *wasm.Module values live in an LRU of
// bounded size; a configured directory additionally persists each module's
// serialized Artifact bytes so a later process can skip recompilation.
type cache struct {
	mu  sync.Mutex
	mem *lru.Cache[wasm.CacheKey, *wasm.Module]
	dir string
}

// Close implements api.Closer. The in-memory half is simply dropped; the
// on-disk half, if any, is left in place for the next process.
func (c *cache) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem.Purge()
	return nil
}

func (c *cache) WithCompilationCacheDirName(dirname string) error {
	dirname, err := filepath.Abs(dirname)
	if err != nil {
		return err
	}
	if err := mkdirIfMissing(dirname); err != nil {
		return err
	}
	c.mu.Lock()
	c.dir = dirname
	c.mu.Unlock()
	return nil
}

// get consults the in-memory cache, falling back to the on-disk directory
// (if configured) and deserializing through buildArtifact on a disk hit.
func (c *cache) get(key wasm.CacheKey, buildArtifact func([]byte) (wasm.Artifact, error)) (*wasm.Module, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mod, ok := c.mem.Get(key); ok {
		return mod, true
	}
	if c.dir == "" {
		return nil, false
	}
	blob, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		return nil, false
	}
	payload, err := wasm.DecodeCacheHeader(blob)
	if err != nil {
		return nil, false
	}
	art, err := buildArtifact(payload)
	if err != nil {
		return nil, false
	}
	mod := wasm.NewModule(nil, art) // Info stays nil; the caller does not fill it in.
	c.mem.Add(key, mod)
	return mod, true
}

// put stores mod under key, persisting its serialized Artifact to disk when
// a cache directory is configured.
func (c *cache) put(key wasm.CacheKey, mod *wasm.Module) error {
	c.mu.Lock()
	c.mem.Add(key, mod)
	dir := c.dir
	c.mu.Unlock()

	if dir == "" {
		return nil
	}
	payload, err := mod.Artifact.Serialize()
	if err != nil {
		var serr *api.SerializeError
		if errors.As(err, &serr) && serr.Unsupported {
			return nil // engine opted out of persistence; in-memory cache still applies.
		}
		return err
	}
	blob := wasm.EncodeCacheHeader(payload)
	return os.WriteFile(c.entryPath(key), blob, 0o600)
}

func (c *cache) entryPath(key wasm.CacheKey) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x.bin", uint64(key)))
}

func mkdirIfMissing(dirname string) error {
	if st, err := os.Stat(dirname); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirname, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dirname, err)
		}
	} else if err != nil {
		return err
	} else if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", dirname)
	}
	return nil
}
