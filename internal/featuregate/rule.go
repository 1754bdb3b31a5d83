package featuregate

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/zeebo/blake3"

	"github.com/spec-kit/authgate/internal/domain"
)

// Rule decides whether an identity matches one filter. Rules must be free of
// side effects: evaluation order and short-circuiting are not part of the
// contract.
type Rule interface {
	Passes(identity domain.Identity) bool
}

var errUnknownKind = errors.New("unknown filter kind")

// compileRule builds the Rule for a filter of bridge from its kind and JSON
// payload.
func compileRule(bridge string, kind domain.FilterKind, payload []byte) (Rule, error) {
	switch kind {
	case domain.FilterKindAllUsers:
		return allUsers{}, nil
	case domain.FilterKindSpecificUsers:
		return compileSpecificUsers(payload)
	case domain.FilterKindPercentage:
		return compilePercentage(bridge, payload)
	case domain.FilterKindExpression:
		return compileExpression(payload)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownKind, kind)
	}
}

func decodePayload(payload []byte, v any) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

type allUsers struct{}

func (allUsers) Passes(identity domain.Identity) bool {
	return !identity.Anonymous()
}

type specificUsers struct {
	ids    map[string]struct{}
	emails map[string]struct{}
}

func compileSpecificUsers(payload []byte) (Rule, error) {
	var p struct {
		IDs    []string `json:"ids"`
		Emails []string `json:"emails"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	r := specificUsers{
		ids:    make(map[string]struct{}, len(p.IDs)),
		emails: make(map[string]struct{}, len(p.Emails)),
	}
	for _, id := range p.IDs {
		if id != "" {
			r.ids[id] = struct{}{}
		}
	}
	for _, email := range p.Emails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			r.emails[email] = struct{}{}
		}
	}
	return r, nil
}

func (r specificUsers) Passes(identity domain.Identity) bool {
	if identity.ID != "" {
		if _, ok := r.ids[identity.ID]; ok {
			return true
		}
	}
	if identity.Email != "" {
		if _, ok := r.emails[strings.ToLower(identity.Email)]; ok {
			return true
		}
	}
	return false
}

type percentage struct {
	bridge  string
	percent uint64
}

func compilePercentage(bridge string, payload []byte) (Rule, error) {
	var p struct {
		Percentage *int `json:"percentage"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Percentage == nil {
		return nil, errors.New("percentage is required")
	}
	if *p.Percentage < 0 || *p.Percentage > 100 {
		return nil, fmt.Errorf("percentage %d out of range 0..100", *p.Percentage)
	}
	return percentage{bridge: bridge, percent: uint64(*p.Percentage)}, nil
}

// bucket places an identity in [0, 100) for a bridge. The assignment is
// stable across processes and independent between bridges.
func bucket(bridge, id string) uint64 {
	sum := blake3.Sum256([]byte(bridge + ":" + id))
	return binary.BigEndian.Uint64(sum[:8]) % 100
}

func (r percentage) Passes(identity domain.Identity) bool {
	if identity.Anonymous() {
		return false
	}
	return bucket(r.bridge, identity.ID) < r.percent
}

type expression struct {
	source  string
	program *vm.Program
}

func exprEnv(identity domain.Identity) map[string]any {
	attrs := identity.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return map[string]any{
		"identity": map[string]any{
			"id":         identity.ID,
			"email":      identity.Email,
			"anonymous":  identity.Anonymous(),
			"attributes": attrs,
		},
	}
}

func compileExpression(payload []byte) (Rule, error) {
	var p struct {
		Expr string `json:"expr"`
	}
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Expr) == "" {
		return nil, errors.New("expr is required")
	}
	program, err := expr.Compile(p.Expr, expr.Env(exprEnv(domain.Identity{})))
	if err != nil {
		return nil, fmt.Errorf("compile expr: %w", err)
	}
	return expression{source: p.Expr, program: program}, nil
}

// Passes runs the program; errors and non-boolean results count as no match.
func (r expression) Passes(identity domain.Identity) bool {
	out, err := expr.Run(r.program, exprEnv(identity))
	if err != nil {
		return false
	}
	ok, isBool := out.(bool)
	return isBool && ok
}

// ValidateFilter reports whether kind and payload form a usable filter.
func ValidateFilter(bridge string, kind domain.FilterKind, payload []byte) error {
	_, err := compileRule(bridge, kind, payload)
	return err
}
