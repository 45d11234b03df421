// Package gate builds and caches the self-contained execution bundle
// deployed to remote hosts.
//
// A bundle is content-addressed: its hash is a deterministic function of
// the runtime entry-point version and the exact set and content of the
// included actions. Identical inputs always produce the identical hash
// and byte-identical artifact, which lets a remote host skip a redundant
// upload by comparing hashes before any bytes move.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/telemetry"
	"github.com/rs/zerolog"
)

// BuildError indicates an action could not be assembled into the
// artifact. It is fatal for every host that needs the bundle; the
// builder never retries.
type BuildError struct {
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bundle build failed: %s: %v", e.Reason, e.Err)
	}
	return "bundle build failed: " + e.Reason
}

func (e *BuildError) Unwrap() error { return e.Err }

// Bundle is a built, content-addressed artifact.
type Bundle struct {
	Hash      string
	Data      []byte
	ActionIDs []string
}

// RemoteDir is the well-known cache directory on remote hosts, relative
// to the login user's home.
const RemoteDir = ".cache/fleetgate/gates"

// FileName returns the artifact file name for a hash.
func FileName(hash string) string {
	return "gate-" + hash + ".tar"
}

// RemotePath returns the well-known remote placement for a hash,
// relative to the remote home directory. Deriving the path from the
// hash is what makes existence-check-before-upload safe across runs.
func RemotePath(hash string) string {
	return RemoteDir + "/" + FileName(hash)
}

// Builder assembles bundles and caches them in memory and on disk.
type Builder struct {
	registry *actions.Registry
	runtime  Runtime
	cacheDir string
	metrics  *telemetry.Metrics
	log      zerolog.Logger

	mu  sync.Mutex
	mem map[string]*Bundle
}

// NewBuilder creates a builder. cacheDir may be empty to disable the
// disk cache; metrics may be nil.
func NewBuilder(registry *actions.Registry, runtime Runtime, cacheDir string, metrics *telemetry.Metrics, log zerolog.Logger) *Builder {
	return &Builder{
		registry: registry,
		runtime:  runtime,
		cacheDir: cacheDir,
		metrics:  metrics,
		log:      log.With().Str("component", "gate-builder").Logger(),
		mem:      make(map[string]*Bundle),
	}
}

// Hash computes the content hash for an action set without building:
// sha256 over the runtime version and each included action's canonical
// identifier and implementation content, sorted by identifier.
func (b *Builder) Hash(actionIDs []string) (string, error) {
	ids, sources, err := b.collect(actionIDs)
	if err != nil {
		return "", err
	}
	return contentHash(b.runtime.Version(), ids, sources), nil
}

// Build returns the bundle for an action set, reusing the memory or
// disk cache when the content hash matches. Concurrent callers may race
// to build the same hash; the loser's identical artifact is discarded,
// and differing artifacts can never share a hash.
func (b *Builder) Build(ctx context.Context, actionIDs []string) (*Bundle, error) {
	ids, sources, err := b.collect(actionIDs)
	if err != nil {
		return nil, err
	}
	hash := contentHash(b.runtime.Version(), ids, sources)

	b.mu.Lock()
	if cached, ok := b.mem[hash]; ok {
		b.mu.Unlock()
		b.metrics.BundleCacheHit("memory")
		b.log.Debug().Str("hash", hash).Msg("bundle memory cache hit")
		return cached, nil
	}
	b.mu.Unlock()

	if data, ok := b.readDisk(hash); ok {
		bundle := &Bundle{Hash: hash, Data: data, ActionIDs: ids}
		b.store(bundle)
		b.metrics.BundleCacheHit("disk")
		b.log.Debug().Str("hash", hash).Msg("bundle disk cache hit")
		return bundle, nil
	}
	b.metrics.BundleCacheMiss()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := b.runtime.Payload()
	if err != nil {
		return nil, err
	}
	data, err := writeArchive(b.runtime.Version(), payload, ids, sources)
	if err != nil {
		return nil, &BuildError{Reason: "assemble archive", Err: err}
	}

	bundle := &Bundle{Hash: hash, Data: data, ActionIDs: ids}
	b.writeDisk(bundle)
	b.store(bundle)
	b.log.Info().Str("hash", hash).Int("actions", len(ids)).Int("bytes", len(data)).Msg("bundle built")
	return bundle, nil
}

// collect canonicalizes, deduplicates, and sorts the action set and
// gathers each action's implementation content.
func (b *Builder) collect(actionIDs []string) ([]string, map[string][]byte, error) {
	seen := make(map[string]struct{}, len(actionIDs))
	ids := make([]string, 0, len(actionIDs))
	for _, id := range actionIDs {
		fqn := actions.Canonical(id)
		if _, ok := seen[fqn]; ok {
			continue
		}
		seen[fqn] = struct{}{}
		ids = append(ids, fqn)
	}
	sort.Strings(ids)

	sources := make(map[string][]byte, len(ids))
	for _, id := range ids {
		src, err := b.registry.Source(id)
		if err != nil {
			return nil, nil, &BuildError{Reason: fmt.Sprintf("action %q has no implementation content", id), Err: err}
		}
		sources[id] = src
	}
	return ids, sources, nil
}

func contentHash(runtimeVersion string, sortedIDs []string, sources map[string][]byte) string {
	h := sha256.New()
	h.Write([]byte("gate-runtime\x00" + runtimeVersion + "\x00"))
	for _, id := range sortedIDs {
		h.Write([]byte(id))
		h.Write([]byte{0})
		h.Write(sources[id])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (b *Builder) store(bundle *Bundle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mem[bundle.Hash]; !ok {
		b.mem[bundle.Hash] = bundle
	}
}

func (b *Builder) readDisk(hash string) ([]byte, bool) {
	if b.cacheDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(b.cacheDir, FileName(hash)))
	if err != nil {
		return nil, false
	}
	return data, true
}

// writeDisk persists a bundle to the disk cache. Cache write failures
// only cost a rebuild next run, so they are logged and ignored.
func (b *Builder) writeDisk(bundle *Bundle) {
	if b.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(b.cacheDir, 0o755); err != nil {
		b.log.Warn().Err(err).Msg("cannot create bundle cache directory")
		return
	}
	dest := filepath.Join(b.cacheDir, FileName(bundle.Hash))
	tmp, err := os.CreateTemp(b.cacheDir, ".gate-*")
	if err != nil {
		b.log.Warn().Err(err).Msg("cannot write bundle cache")
		return
	}
	if _, err := tmp.Write(bundle.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		b.log.Warn().Err(err).Msg("cannot write bundle cache")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		b.log.Warn().Err(err).Msg("cannot place bundle in cache")
	}
}
