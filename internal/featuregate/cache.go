// Package featuregate answers whether an identity may cross a named feature
// bridge. Bridge configuration lives in a durable store, is shared between
// processes as one encoded snapshot in a shared cache, and is held per
// process by Cache, which decodes bridges and filters lazily.
package featuregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/authgate/internal/domain"
)

// State is the population state of a Cache.
type State int

const (
	StateEmpty State = iota
	StatePopulated
)

func (s State) String() string {
	if s == StatePopulated {
		return "POPULATED"
	}
	return "EMPTY"
}

// BridgeSource is the durable store of bridges.
type BridgeSource interface {
	ListBridges(ctx context.Context) ([]domain.Bridge, error)
}

// UnknownBridge is the name recorded for checks against bridges that are not
// in the snapshot. Bridge names come from callers, so only names that exist
// are recorded individually.
const UnknownBridge = "<unknown>"

// CrossingRecorder receives the outcome of every bridge check.
type CrossingRecorder interface {
	RecordCrossing(bridge string, allowed bool)
}

// Options tunes a Cache.
type Options struct {
	// CacheKey namespaces the shared cache entries.
	CacheKey       string
	// SharedTTL bounds how long a snapshot lives in the shared cache.
	SharedTTL      time.Duration
	// RecheckOnFlush compares the shared generation after every Flush.
	RecheckOnFlush bool
	// Development suppresses the missing-bridge error log.
	Development    bool
	Recorder       CrossingRecorder
}

type compiledFilter struct {
	whitelist bool
	rule      Rule
}

// Cache is the process-local bridge cache. It is safe for concurrent use.
// Methods with the Locked suffix expect c.mu to be held.
type Cache struct {
	source BridgeSource
	shared SharedCache
	logger *zap.Logger
	opts   Options

	mu           sync.Mutex
	snap         *snapshot
	bridgeModels map[string]*bridgeRecord
	filterModels map[string][]compiledFilter
	fresh        bool
}

// NewCache builds an empty Cache.
func NewCache(source BridgeSource, shared SharedCache, logger *zap.Logger, opts Options) *Cache {
	if shared == nil {
		shared = NewMemorySharedCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CacheKey == "" {
		opts.CacheKey = "featuregate"
	}
	return &Cache{source: source, shared: shared, logger: logger, opts: opts}
}

func (c *Cache) snapshotKey() string   { return c.opts.CacheKey + ":snapshot" }
func (c *Cache) generationKey() string { return c.opts.CacheKey + ":generation" }

// CanCross reports whether identity may cross the named bridge: at least one
// whitelist filter matches and no blacklist filter does. Unknown bridges and
// load failures deny.
func (c *Cache) CanCross(ctx context.Context, bridge string, identity domain.Identity) bool {
	filters, found, err := c.lookup(ctx, bridge)
	if err != nil {
		c.logger.Error("feature gate load failed", zap.String("bridge", bridge), zap.Error(err))
		c.record(UnknownBridge, false)
		return false
	}
	if !found {
		if !c.opts.Development {
			c.logger.Error("feature bridge not found", zap.String("bridge", bridge))
		}
		c.record(UnknownBridge, false)
		return false
	}

	allowed := evaluate(filters, identity)
	c.record(bridge, allowed)
	return allowed
}

func (c *Cache) record(bridge string, allowed bool) {
	if c.opts.Recorder != nil {
		c.opts.Recorder.RecordCrossing(bridge, allowed)
	}
}

// evaluate runs outside the lock. filters is shared and must not be mutated.
func evaluate(filters []compiledFilter, identity domain.Identity) bool {
	sawWhitelist := false
	for _, f := range filters {
		if !f.rule.Passes(identity) {
			continue
		}
		if !f.whitelist {
			return false
		}
		sawWhitelist = true
	}
	return sawWhitelist
}

func (c *Cache) lookup(ctx context.Context, name string) ([]compiledFilter, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoadedLocked(ctx); err != nil {
		return nil, false, err
	}
	if _, ok := c.bridgeLocked(name); !ok {
		return nil, false, nil
	}
	return c.filtersLocked(name), true, nil
}

// Flush marks the snapshot as possibly stale. The next lookup compares it
// with the shared generation and reloads when another process published a
// newer one. Call it at the start of every request.
func (c *Cache) Flush() {
	c.mu.Lock()
	c.fresh = false
	c.mu.Unlock()
}

// Bust drops the process snapshot and the shared entries so the next lookup
// rebuilds from the durable store.
func (c *Cache) Bust(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	if err := c.shared.Delete(ctx, c.snapshotKey(), c.generationKey()); err != nil {
		return fmt.Errorf("delete shared snapshot: %w", err)
	}
	c.logger.Info("feature gate cache busted")
	return nil
}

// State reports whether a snapshot is loaded.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return StateEmpty
	}
	return StatePopulated
}

// Generation returns the generation of the loaded snapshot, or "" when empty.
func (c *Cache) Generation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return ""
	}
	return c.snap.Generation
}

func (c *Cache) resetLocked() {
	c.snap = nil
	c.bridgeModels = nil
	c.filterModels = nil
	c.fresh = false
}

func (c *Cache) installLocked(s *snapshot) {
	c.snap = s
	c.bridgeModels = make(map[string]*bridgeRecord, len(s.Bridges))
	c.filterModels = make(map[string][]compiledFilter, len(s.Filters))
	c.fresh = true
}

func (c *Cache) ensureLoadedLocked(ctx context.Context) error {
	if c.snap != nil && !c.fresh {
		c.fresh = true
		if c.opts.RecheckOnFlush {
			gen, found, err := c.shared.Get(ctx, c.generationKey())
			switch {
			case err != nil:
				c.logger.Warn("shared cache generation check failed", zap.Error(err))
			case !found || string(gen) != c.snap.Generation:
				c.resetLocked()
			}
		}
	}
	if c.snap != nil {
		return nil
	}

	s, err := c.loadLocked(ctx)
	if err != nil {
		return err
	}
	c.installLocked(s)
	return nil
}

func (c *Cache) loadLocked(ctx context.Context) (*snapshot, error) {
	raw, found, err := c.shared.Get(ctx, c.snapshotKey())
	switch {
	case err != nil:
		c.logger.Warn("shared cache read failed", zap.Error(err))
	case found:
		s, err := decodeSnapshot(raw)
		if err == nil {
			return s, nil
		}
		c.logger.Warn("discarding shared snapshot", zap.Error(err))
	}
	return c.rebuildLocked(ctx)
}

// rebuildLocked is the only path that reads the durable store.
func (c *Cache) rebuildLocked(ctx context.Context) (*snapshot, error) {
	bridges, err := c.source.ListBridges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bridges: %w", err)
	}
	s, err := buildSnapshot(bridges)
	if err != nil {
		return nil, err
	}
	encoded, err := s.encode()
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	if err := c.shared.Set(ctx, c.snapshotKey(), encoded, c.opts.SharedTTL); err != nil {
		c.logger.Warn("shared cache write failed", zap.Error(err))
	} else if err := c.shared.Set(ctx, c.generationKey(), []byte(s.Generation), c.opts.SharedTTL); err != nil {
		c.logger.Warn("shared cache write failed", zap.Error(err))
	}

	c.logger.Info("feature gate snapshot rebuilt",
		zap.Int("bridges", len(bridges)),
		zap.String("generation", s.Generation))
	return s, nil
}

func (c *Cache) bridgeLocked(name string) (*bridgeRecord, bool) {
	if m, ok := c.bridgeModels[name]; ok {
		return m, true
	}
	raw, ok := c.snap.Bridges[name]
	if !ok {
		return nil, false
	}
	var rec bridgeRecord
	if err := unmarshal(raw, &rec); err != nil {
		c.logger.Error("decode bridge", zap.String("bridge", name), zap.Error(err))
		return nil, false
	}
	c.bridgeModels[name] = &rec
	return &rec, true
}

func (c *Cache) filtersLocked(name string) []compiledFilter {
	if fs, ok := c.filterModels[name]; ok {
		return fs
	}

	var records []filterRecord
	if raw, ok := c.snap.Filters[name]; ok {
		if err := unmarshal(raw, &records); err != nil {
			c.logger.Error("decode filters", zap.String("bridge", name), zap.Error(err))
			records = nil
		}
	}

	fs := make([]compiledFilter, 0, len(records))
	for _, r := range records {
		rule, err := compileRule(name, domain.FilterKind(r.Kind), r.Payload)
		if err != nil {
			c.logger.Warn("skipping invalid filter",
				zap.String("bridge", name),
				zap.Int64("filter_id", r.ID),
				zap.Error(err))
			continue
		}
		fs = append(fs, compiledFilter{whitelist: r.Whitelist, rule: rule})
	}
	c.filterModels[name] = fs
	return fs
}
