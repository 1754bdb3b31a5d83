package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/authgate/internal/domain"
)

// GateCheckResponse answers a bridge check.
type GateCheckResponse struct {
	Bridge  string `json:"bridge"`
	Allowed bool   `json:"allowed"`
}

// CreateBridgeRequest payload.
type CreateBridgeRequest struct {
	Name string `json:"name"`
}

// AddFilterRequest payload. Payload is the kind-specific rule document.
type AddFilterRequest struct {
	Kind      domain.FilterKind `json:"kind"`
	Whitelist bool              `json:"whitelist"`
	Payload   json.RawMessage   `json:"payload"`
}

// FilterResponse describes a stored filter.
type FilterResponse struct {
	ID        int64             `json:"id"`
	Position  int               `json:"position"`
	Kind      domain.FilterKind `json:"kind"`
	Whitelist bool              `json:"whitelist"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
}

// BridgeResponse describes a bridge with its filters in evaluation order.
type BridgeResponse struct {
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
	Filters   []FilterResponse `json:"filters"`
}

// NewFilterResponse maps a domain filter.
func NewFilterResponse(f *domain.Filter) FilterResponse {
	return FilterResponse{
		ID:        f.ID,
		Position:  f.Position,
		Kind:      f.Kind,
		Whitelist: f.Whitelist,
		Payload:   f.Payload,
	}
}

// NewBridgeResponse maps a domain bridge.
func NewBridgeResponse(b *domain.Bridge) BridgeResponse {
	filters := make([]FilterResponse, 0, len(b.Filters))
	for i := range b.Filters {
		filters = append(filters, NewFilterResponse(&b.Filters[i]))
	}
	return BridgeResponse{Name: b.Name, CreatedAt: b.CreatedAt, Filters: filters}
}
