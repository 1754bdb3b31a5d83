package featuregate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/authgate/internal/domain"
)

// snapshot is the serialized form of every bridge, shared between processes
// through the shared cache. Bridge and filter entries stay encoded until a
// lookup needs them.
type snapshot struct {
	Generation string            `cbor:"1,keyasint"`
	Bridges    map[string][]byte `cbor:"2,keyasint"`
	Filters    map[string][]byte `cbor:"3,keyasint"`
}

type bridgeRecord struct {
	Name      string    `cbor:"1,keyasint"`
	CreatedAt time.Time `cbor:"2,keyasint"`
}

type filterRecord struct {
	ID        int64  `cbor:"1,keyasint"`
	Position  int    `cbor:"2,keyasint"`
	Kind      string `cbor:"3,keyasint"`
	Whitelist bool   `cbor:"4,keyasint"`
	Payload   []byte `cbor:"5,keyasint"`
}

// buildSnapshot serializes bridges under a fresh generation.
func buildSnapshot(bridges []domain.Bridge) (*snapshot, error) {
	snap := &snapshot{
		Generation: uuid.NewString(),
		Bridges:    make(map[string][]byte, len(bridges)),
		Filters:    make(map[string][]byte, len(bridges)),
	}
	for _, b := range bridges {
		raw, err := marshal(bridgeRecord{Name: b.Name, CreatedAt: b.CreatedAt.UTC()})
		if err != nil {
			return nil, fmt.Errorf("encode bridge %q: %w", b.Name, err)
		}
		snap.Bridges[b.Name] = raw

		records := make([]filterRecord, 0, len(b.Filters))
		for _, f := range b.Filters {
			records = append(records, filterRecord{
				ID:        f.ID,
				Position:  f.Position,
				Kind:      string(f.Kind),
				Whitelist: f.Whitelist,
				Payload:   []byte(f.Payload),
			})
		}
		raw, err = marshal(records)
		if err != nil {
			return nil, fmt.Errorf("encode filters of %q: %w", b.Name, err)
		}
		snap.Filters[b.Name] = raw
	}
	return snap, nil
}

func (s *snapshot) encode() ([]byte, error) {
	return marshal(s)
}

func decodeSnapshot(data []byte) (*snapshot, error) {
	var s snapshot
	if err := unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Generation == "" {
		return nil, fmt.Errorf("decode snapshot: missing generation")
	}
	if s.Bridges == nil {
		s.Bridges = map[string][]byte{}
	}
	if s.Filters == nil {
		s.Filters = map[string][]byte{}
	}
	return &s, nil
}
