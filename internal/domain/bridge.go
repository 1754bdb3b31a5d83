package domain

import (
	"encoding/json"
	"time"
)

// FilterKind names the rule a filter evaluates.
type FilterKind string

const (
	FilterKindAllUsers      FilterKind = "all-users"
	FilterKindSpecificUsers FilterKind = "specific-users"
	FilterKindPercentage    FilterKind = "percentage"
	FilterKindExpression    FilterKind = "expression"
)

// Bridge is a named feature gate.
type Bridge struct {
	Name      string
	Filters   []Filter
	CreatedAt time.Time
}

// Filter is a single allow (whitelist) or deny (blacklist) rule owned by a bridge.
type Filter struct {
	ID         int64
	BridgeName string
	Position   int
	Kind       FilterKind
	Whitelist  bool
	Payload    json.RawMessage
}
