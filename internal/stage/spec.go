package stage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Params is a concrete parameter assignment for one stage: parameter name to
// value. Values are opaque to the engine beyond structural equality.
type Params map[string]cty.Value

// Clone returns a shallow copy. cty values are immutable, so sharing them is safe.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Role declares how a node evaluates its stage.
type Role string

const (
	// RoleFitTransform fits the stage on the parent output and emits the
	// transformed dataset. This is the default for pipeline interior stages.
	RoleFitTransform Role = "fit_transform"
	// RoleFit fits an estimator without transforming: the node's output is
	// its parent's dataset, passed through unchanged. Terminal statistical
	// models use this role.
	RoleFit Role = "fit"
)

// Spec identifies a stage type plus a concrete parameter assignment. It is
// immutable once created; two Specs are equivalent iff their Keys are equal.
type Spec struct {
	Type   string
	Role   Role
	Params Params
}

// NewSpec builds a Spec, defaulting the role to fit-transform.
func NewSpec(typ string, p Params) Spec {
	return Spec{Type: typ, Role: RoleFitTransform, Params: p}
}

// Key returns the canonical deduplication key for the Spec: the stage type,
// role, and every parameter rendered as name=JSON in sorted name order. The
// key is the structural hash used when merging equivalent sibling nodes.
func (s Spec) Key() string {
	var sb strings.Builder
	sb.WriteString(s.Type)
	sb.WriteByte('|')
	sb.WriteString(string(s.Role))
	for _, name := range s.Params.Names() {
		v := s.Params[name]
		sb.WriteByte('|')
		sb.WriteString(name)
		sb.WriteByte('=')
		raw, err := ctyjson.Marshal(v, v.Type())
		if err != nil {
			// cty values constructed from config are always serializable;
			// an unknown or marked value here is a programming error.
			panic(fmt.Sprintf("stage: unserializable parameter %s.%s: %v", s.Type, name, err))
		}
		sb.Write(raw)
	}
	return sb.String()
}

// Equivalent reports whether two Specs share type, role, and parameter values.
func (s Spec) Equivalent(o Spec) bool {
	if s.Type != o.Type || s.Role != o.Role || len(s.Params) != len(o.Params) {
		return false
	}
	for name, v := range s.Params {
		ov, ok := o.Params[name]
		if !ok || !v.RawEquals(ov) {
			return false
		}
	}
	return true
}

// String renders the Spec for logs and node IDs.
func (s Spec) String() string {
	if len(s.Params) == 0 {
		return s.Type
	}
	parts := make([]string, 0, len(s.Params))
	for _, name := range s.Params.Names() {
		parts = append(parts, fmt.Sprintf("%s=%s", name, renderValue(s.Params[name])))
	}
	return fmt.Sprintf("%s(%s)", s.Type, strings.Join(parts, ","))
}

func renderValue(v cty.Value) string {
	if v.IsNull() || !v.IsKnown() {
		return "null"
	}
	switch v.Type() {
	case cty.String:
		return v.AsString()
	case cty.Number:
		return v.AsBigFloat().Text('g', -1)
	case cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return "?"
	}
	return string(raw)
}
