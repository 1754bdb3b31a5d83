package featuregate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/spec-kit/authgate/internal/domain"
	apperrors "github.com/spec-kit/authgate/pkg/util/errorutil"
)

var bridgeNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

// BridgeStore is the writable durable store of bridges.
type BridgeStore interface {
	BridgeSource
	CreateBridge(ctx context.Context, bridge *domain.Bridge) error
	DeleteBridge(ctx context.Context, name string) error
	AddFilter(ctx context.Context, filter *domain.Filter) error
}

// Admin edits bridge configuration. Every successful write busts the cache.
type Admin struct {
	store BridgeStore
	cache *Cache
}

// NewAdmin builds an Admin.
func NewAdmin(store BridgeStore, cache *Cache) *Admin {
	return &Admin{store: store, cache: cache}
}

// ListBridges reads straight from the durable store.
func (a *Admin) ListBridges(ctx context.Context) ([]domain.Bridge, error) {
	return a.store.ListBridges(ctx)
}

func (a *Admin) CreateBridge(ctx context.Context, name string) (*domain.Bridge, error) {
	if !bridgeNamePattern.MatchString(name) {
		return nil, apperrors.NewValidationError("invalid bridge name", map[string]any{"name": name})
	}
	bridge := &domain.Bridge{Name: name}
	if err := a.store.CreateBridge(ctx, bridge); err != nil {
		return nil, fmt.Errorf("create bridge: %w", err)
	}
	return bridge, a.bust(ctx)
}

func (a *Admin) DeleteBridge(ctx context.Context, name string) error {
	if err := a.store.DeleteBridge(ctx, name); err != nil {
		return fmt.Errorf("delete bridge: %w", err)
	}
	return a.bust(ctx)
}

// AddFilter appends a filter to a bridge. The payload is compiled first so
// the store never holds a filter the cache would have to skip.
func (a *Admin) AddFilter(ctx context.Context, bridge string, kind domain.FilterKind, whitelist bool, payload json.RawMessage) (*domain.Filter, error) {
	if err := ValidateFilter(bridge, kind, payload); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"kind": string(kind)})
	}
	filter := &domain.Filter{
		BridgeName: bridge,
		Kind:       kind,
		Whitelist:  whitelist,
		Payload:    payload,
	}
	if err := a.store.AddFilter(ctx, filter); err != nil {
		return nil, fmt.Errorf("add filter: %w", err)
	}
	return filter, a.bust(ctx)
}

// Bust forces every process to reload bridge configuration.
func (a *Admin) Bust(ctx context.Context) error {
	return a.bust(ctx)
}

func (a *Admin) bust(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Bust(ctx)
}
