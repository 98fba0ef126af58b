package syntax

import (
	"fmt"
	"strings"
)

// Type is the checker-facing type of an expression or variable.
type Type interface {
	String() string
	typ()
}

// Instance is a concrete class type, optionally parameterized, e.g.
// builtins.int or Mapped[builtins.str].
type Instance struct {
	Info *TypeInfo
	Args []Type
}

func (t *Instance) typ() {}

func (t *Instance) String() string {
	if len(t.Args) == 0 {
		return t.Info.Fullname
	}
	return fmt.Sprintf("%s[%s]", t.Info.Fullname, joinTypes(t.Args))
}

// NewInstance creates an instance of info with the given type arguments.
func NewInstance(info *TypeInfo, args ...Type) *Instance {
	return &Instance{Info: info, Args: args}
}

// UnboundType is an annotation that has not been resolved against a symbol
// table yet. Name may be dotted.
type UnboundType struct {
	Name string
	Args []Type
}

func (t *UnboundType) typ() {}

func (t *UnboundType) String() string {
	if len(t.Args) == 0 {
		return t.Name + "?"
	}
	return fmt.Sprintf("%s?[%s]", t.Name, joinTypes(t.Args))
}

// UnionType is a union of alternatives.
type UnionType struct {
	Items []Type
}

func (t *UnionType) typ() {}

func (t *UnionType) String() string {
	return fmt.Sprintf("Union[%s]", joinTypes(t.Items))
}

// OptionalType unions typ with None, collapsing nothing: the caller decides
// whether optionality applies.
func OptionalType(typ Type) *UnionType {
	return &UnionType{Items: []Type{typ, &NoneType{}}}
}

// NoneType is the type of None.
type NoneType struct{}

func (t *NoneType) typ()           {}
func (t *NoneType) String() string { return "None" }

// AnySource records why a type degraded to Any.
type AnySource int

const (
	// AnyExplicit is an Any the user wrote themselves.
	AnyExplicit AnySource = iota
	// AnySpecialForm is the fallback substituted after a recoverable
	// inference failure.
	AnySpecialForm
	// AnyFromError marks a type that could not be resolved at all.
	AnyFromError
)

// AnyType is the dynamic type.
type AnyType struct {
	Source AnySource
}

func (t *AnyType) typ()           {}
func (t *AnyType) String() string { return "Any" }

func joinTypes(types []Type) string {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, ", ")
}
