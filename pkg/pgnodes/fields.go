package pgnodes

import (
	"sort"
	"strings"

	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// DisplayFields lists, per node type, the fields printed by the expression
// walker. An entry "field:literal" is only printed when the field's value
// prints as literal.
type DisplayFields map[string][]string

// DefaultDisplayFields returns the fields shown for the common expression
// nodes.
func DefaultDisplayFields() DisplayFields {
	return DisplayFields{
		"Const":             {"constisnull:true", "consttype", "constvalue"},
		"Var":               {"varno", "varattno", "vartype"},
		"BoolExpr":          {"boolop"},
		"OpExpr":            {"opno"},
		"ScalarArrayOpExpr": {"opno"},
		"FuncExpr":          {"funcid", "funcresulttype"},
	}
}

// Merge returns a copy of f where the entries of override replace those of
// f. An empty list removes the type.
func (f DisplayFields) Merge(override DisplayFields) DisplayFields {
	r := make(DisplayFields, len(f)+len(override))
	for k, v := range f {
		r[k] = v
	}
	for k, v := range override {
		if len(v) == 0 {
			delete(r, k)
			continue
		}
		r[k] = v
	}
	return r
}

// Types returns the configured type names, sorted.
func (f DisplayFields) Types() []string {
	r := make([]string, 0, len(f))
	for k := range f {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}

// Describe renders the configured fields of v, a node of type typeName:
// "type = 23, value = 42". Fields missing from the type are skipped. The
// second result is false if typeName has no configured fields.
func (f DisplayFields) Describe(v *inspect.Value, typeName string) (string, bool, error) {
	props, ok := f[typeName]
	if !ok {
		return "", false, nil
	}
	parts := make([]string, 0, len(props))
	for _, prop := range props {
		s, err := propString(v, typeName, prop)
		if err != nil {
			return "", false, err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", "), true, nil
}

func propString(v *inspect.Value, typeName, prop string) (string, error) {
	field, want, gated := strings.Cut(prop, ":")
	if !nodeType(v).HasField(field) {
		return "", nil
	}
	fv, err := v.Field(field)
	if err != nil {
		return "", err
	}
	got := fv.String()
	if gated && got != want {
		return "", nil
	}
	name := field
	if prefix := strings.ToLower(typeName); strings.HasPrefix(field, prefix) && len(field) > len(prefix) {
		name = field[len(prefix):]
	}
	return name + " = " + got, nil
}
