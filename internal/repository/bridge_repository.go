package repository

import (
	"context"
	"encoding/json"

	"github.com/spec-kit/authgate/internal/domain"
)

// BridgeRepository manages feature bridges and their owned filters.
type BridgeRepository interface {
	// ListBridges returns every bridge with its filters in position order.
	ListBridges(ctx context.Context) ([]domain.Bridge, error)
	CreateBridge(ctx context.Context, bridge *domain.Bridge) error
	// DeleteBridge removes the bridge and its filters.
	DeleteBridge(ctx context.Context, name string) error
	AddFilter(ctx context.Context, filter *domain.Filter) error
}

type bridgeRepository struct {
	db DBTX
}

// NewBridgeRepository returns a Postgres-backed implementation.
func NewBridgeRepository(db DBTX) BridgeRepository {
	return &bridgeRepository{db: db}
}

func (r *bridgeRepository) ListBridges(ctx context.Context) ([]domain.Bridge, error) {
	rows, err := r.db.Query(ctx, `SELECT name, created_at FROM feature_bridges ORDER BY name`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var bridges []domain.Bridge
	index := map[string]int{}
	for rows.Next() {
		var b domain.Bridge
		if err := rows.Scan(&b.Name, &b.CreatedAt); err != nil {
			return nil, err
		}
		index[b.Name] = len(bridges)
		bridges = append(bridges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	const filtersQuery = `
        SELECT id, bridge_name, position, kind, whitelist, payload
        FROM feature_filters ORDER BY bridge_name, position, id`

	filterRows, err := r.db.Query(ctx, filtersQuery)
	if err != nil {
		return nil, mapError(err)
	}
	defer filterRows.Close()

	for filterRows.Next() {
		var (
			f       domain.Filter
			kind    string
			payload []byte
		)
		if err := filterRows.Scan(&f.ID, &f.BridgeName, &f.Position, &kind, &f.Whitelist, &payload); err != nil {
			return nil, err
		}
		f.Kind = domain.FilterKind(kind)
		f.Payload = json.RawMessage(payload)
		if i, ok := index[f.BridgeName]; ok {
			bridges[i].Filters = append(bridges[i].Filters, f)
		}
	}
	return bridges, filterRows.Err()
}

func (r *bridgeRepository) CreateBridge(ctx context.Context, bridge *domain.Bridge) error {
	const query = `
        INSERT INTO feature_bridges (name)
        VALUES ($1)
        RETURNING created_at`

	return mapError(r.db.QueryRow(ctx, query, bridge.Name).Scan(&bridge.CreatedAt))
}

func (r *bridgeRepository) DeleteBridge(ctx context.Context, name string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM feature_filters WHERE bridge_name=$1`, name); err != nil {
		return mapError(err)
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM feature_bridges WHERE name=$1`, name)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *bridgeRepository) AddFilter(ctx context.Context, filter *domain.Filter) error {
	const query = `
        INSERT INTO feature_filters (bridge_name, position, kind, whitelist, payload)
        SELECT $1, COALESCE(MAX(position) + 1, 0), $2, $3, $4
        FROM feature_filters WHERE bridge_name=$1
        RETURNING id, position`

	payload := []byte(filter.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	err := r.db.QueryRow(ctx, query,
		filter.BridgeName,
		string(filter.Kind),
		filter.Whitelist,
		payload,
	).Scan(&filter.ID, &filter.Position)
	return mapError(err)
}
