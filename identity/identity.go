// Package identity decides which well-known ORM construct a fully qualified
// name denotes. Resolution is a pure function of symbol identity; unknown
// names map to None so callers treat them as ordinary Python attributes.
package identity

import (
	"github.com/declmap/declmap/api"
	"github.com/declmap/declmap/syntax"
)

// TypeID tags every ORM construct the scanner knows how to handle.
type TypeID int

const (
	// None marks a name that denotes no known ORM construct.
	None TypeID = iota
	Column
	Relationship
	RegistryType
	ColumnProperty
	SynonymProperty
	CompositeProperty
	MapperProperty
	TypeEngine
	Mapped
	DeclarativeBase
	DeclarativeMeta
	MappedDecorator
	AsDeclarative
	AsDeclarativeBase
	DeclaredAttr
	DeclarativeMixin
)

var names = map[TypeID]string{
	None:              "none",
	Column:            "column",
	Relationship:      "relationship",
	RegistryType:      "registry",
	ColumnProperty:    "column_property",
	SynonymProperty:   "synonym",
	CompositeProperty: "composite",
	MapperProperty:    "mapper_property",
	TypeEngine:        "type_engine",
	Mapped:            "mapped",
	DeclarativeBase:   "declarative_base",
	DeclarativeMeta:   "declarative_meta",
	MappedDecorator:   "mapped_decorator",
	AsDeclarative:     "as_declarative",
	AsDeclarativeBase: "as_declarative_base",
	DeclaredAttr:      "declared_attr",
	DeclarativeMixin:  "declarative_mixin",
}

func (id TypeID) String() string { return names[id] }

// byFullname maps every accepted spelling of a construct to its tag. The
// table covers both the canonical defining module and the public re-export
// locations, since either can appear as a resolved fullname depending on how
// the user imported the symbol.
var byFullname = map[string]TypeID{
	"sqlalchemy.sql.schema.Column": Column,
	"sqlalchemy.sql.Column":        Column,
	"sqlalchemy.Column":            Column,

	"sqlalchemy.orm.relationships.RelationshipProperty": Relationship,
	"sqlalchemy.orm.relationships.relationship":         Relationship,
	"sqlalchemy.orm.relationship":                       Relationship,
	"sqlalchemy.relationship":                           Relationship,

	"sqlalchemy.orm.decl_api.registry": RegistryType,
	"sqlalchemy.orm.registry":          RegistryType,

	"sqlalchemy.orm.properties.ColumnProperty": ColumnProperty,
	"sqlalchemy.orm.column_property":           ColumnProperty,
	"sqlalchemy.column_property":               ColumnProperty,

	"sqlalchemy.orm.descriptor_props.SynonymProperty": SynonymProperty,
	"sqlalchemy.orm.synonym":                          SynonymProperty,
	"sqlalchemy.synonym":                              SynonymProperty,

	"sqlalchemy.orm.descriptor_props.CompositeProperty": CompositeProperty,
	"sqlalchemy.orm.composite":                          CompositeProperty,
	"sqlalchemy.composite":                              CompositeProperty,

	"sqlalchemy.orm.interfaces.MapperProperty": MapperProperty,

	"sqlalchemy.sql.type_api.TypeEngine": TypeEngine,
	"sqlalchemy.types.TypeEngine":        TypeEngine,

	"sqlalchemy.orm.attributes.Mapped": Mapped,
	"sqlalchemy.orm.Mapped":            Mapped,

	"sqlalchemy.orm.decl_api.declarative_base":             DeclarativeBase,
	"sqlalchemy.orm.declarative_base":                      DeclarativeBase,
	"sqlalchemy.ext.declarative.declarative_base":          DeclarativeBase,
	"sqlalchemy.orm.decl_api.registry.generate_base":       DeclarativeBase,
	"sqlalchemy.orm.decl_api.DeclarativeMeta":              DeclarativeMeta,
	"sqlalchemy.ext.declarative.DeclarativeMeta":           DeclarativeMeta,
	"sqlalchemy.orm.decl_api.registry.mapped":              MappedDecorator,
	"sqlalchemy.orm.decl_api.as_declarative":               AsDeclarative,
	"sqlalchemy.orm.as_declarative":                        AsDeclarative,
	"sqlalchemy.ext.declarative.as_declarative":            AsDeclarative,
	"sqlalchemy.orm.decl_api.registry.as_declarative_base": AsDeclarativeBase,

	"sqlalchemy.orm.decl_api.declared_attr":    DeclaredAttr,
	"sqlalchemy.orm.declared_attr":             DeclaredAttr,
	"sqlalchemy.ext.declarative.declared_attr": DeclaredAttr,

	"sqlalchemy.orm.decl_api.declarative_mixin": DeclarativeMixin,
	"sqlalchemy.orm.declarative_mixin":          DeclarativeMixin,
}

// Of resolves a fully qualified name, returning None for anything unknown.
func Of(fullname string) TypeID {
	return byFullname[fullname]
}

// OfNode resolves a named definition by its fullname.
func OfNode(node syntax.SymbolNode) TypeID {
	if node == nil {
		return None
	}
	return Of(node.SymFullname())
}

// OfCallee resolves the callee of a call expression, accepting both plain
// names and member accesses whose fullname has been populated.
func OfCallee(callee syntax.Expr) TypeID {
	return Of(syntax.RefFullname(callee))
}

// OfUnbound resolves an annotation that has not been bound to a symbol yet,
// looking its head name up in the current module scope.
func OfUnbound(unbound *syntax.UnboundType, a api.SemanticAnalyzer) TypeID {
	sym := a.LookupQualified(unbound.Name)
	if sym != nil && sym.Node != nil {
		return OfNode(sym.Node)
	}
	// absolute spellings work without a symbol table entry
	return Of(unbound.Name)
}

// HasBase reports whether the class or any ancestor, transitively, carries
// the given identity. A cyclic base chain terminates with false.
func HasBase(info *syntax.TypeInfo, id TypeID) bool {
	return hasBase(info, id, map[*syntax.TypeInfo]bool{})
}

func hasBase(info *syntax.TypeInfo, id TypeID, seen map[*syntax.TypeInfo]bool) bool {
	if info == nil || seen[info] {
		return false
	}
	seen[info] = true
	if Of(info.Fullname) == id {
		return true
	}
	if len(info.MRO) > 0 {
		for _, ancestor := range info.MRO[1:] {
			if Of(ancestor.Fullname) == id {
				return true
			}
		}
		return false
	}
	for _, base := range info.Bases {
		if hasBase(base.Info, id, seen) {
			return true
		}
	}
	return false
}
