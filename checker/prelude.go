package checker

import (
	"strings"

	"github.com/declmap/declmap/syntax"
)

// prelude builds the symbol table of well-known definitions every analysis
// run starts from: the builtins the inference rules rely on, the standard
// library value types the column engines map to, and stubs for the ORM
// surface itself. Each definition is registered under its canonical fullname
// and under every public re-export spelling a user import can resolve to.
func prelude() map[string]*syntax.SymbolTableNode {
	symbols := map[string]*syntax.SymbolTableNode{}

	install := func(node syntax.SymbolNode, aliases ...string) {
		entry := &syntax.SymbolTableNode{Kind: syntax.GDEF, Node: node}
		symbols[node.SymFullname()] = entry
		for _, alias := range aliases {
			symbols[alias] = entry
		}
	}
	class := func(fullname string, arity int, bases ...*syntax.Instance) *syntax.TypeInfo {
		name := fullname[strings.LastIndex(fullname, ".")+1:]
		info := syntax.NewTypeInfo(name, fullname, nil)
		info.Bases = bases
		info.TypeVarArity = arity
		return info
	}
	function := func(fullname string) *syntax.FuncDef {
		name := fullname[strings.LastIndex(fullname, ".")+1:]
		return &syntax.FuncDef{Name: name, Fullname: fullname}
	}

	// builtins are implicitly in scope, so each one is also registered
	// under its bare name
	object := class("builtins.object", 0)
	install(object, "object")
	obj := syntax.NewInstance(object)

	for _, name := range []string{"int", "str", "float", "bool", "bytes"} {
		install(class("builtins."+name, 0, obj), name)
	}
	install(class("builtins.list", 1, obj), "list")
	install(class("builtins.dict", 2, obj), "dict")
	install(class("decimal.Decimal", 0, obj))
	install(class("datetime.datetime", 0, obj))
	install(class("datetime.date", 0, obj))
	install(class("datetime.time", 0, obj))

	instance := func(fullname string) *syntax.Instance {
		return syntax.NewInstance(symbols[fullname].Node.(*syntax.TypeInfo))
	}

	typeEngine := class("sqlalchemy.sql.type_api.TypeEngine", 1, obj)
	install(typeEngine, "sqlalchemy.types.TypeEngine")

	// column engines carry their Python value type as the TypeEngine generic
	// argument, which is where the inference rules read it from
	engine := func(name string, pythonType syntax.Type) {
		info := class("sqlalchemy.sql.sqltypes."+name, 0, syntax.NewInstance(typeEngine, pythonType))
		install(info, "sqlalchemy."+name, "sqlalchemy.types."+name)
	}
	engine("Integer", instance("builtins.int"))
	engine("SmallInteger", instance("builtins.int"))
	engine("BigInteger", instance("builtins.int"))
	engine("String", instance("builtins.str"))
	engine("Text", instance("builtins.str"))
	engine("Unicode", instance("builtins.str"))
	engine("UnicodeText", instance("builtins.str"))
	engine("Boolean", instance("builtins.bool"))
	engine("Float", instance("builtins.float"))
	engine("Numeric", instance("decimal.Decimal"))
	engine("DateTime", instance("datetime.datetime"))
	engine("Date", instance("datetime.date"))
	engine("Time", instance("datetime.time"))
	engine("LargeBinary", instance("builtins.bytes"))
	engine("JSON", &syntax.AnyType{Source: syntax.AnyExplicit})

	install(class("sqlalchemy.sql.schema.Column", 1, obj),
		"sqlalchemy.Column", "sqlalchemy.sql.Column")
	install(class("sqlalchemy.orm.attributes.Mapped", 1, obj),
		"sqlalchemy.orm.Mapped")
	install(class("sqlalchemy.orm.attributes.QueryableAttribute", 1, obj))
	install(class("sqlalchemy.orm.decl_api.DeclarativeMeta", 0, obj),
		"sqlalchemy.orm.DeclarativeMeta", "sqlalchemy.ext.declarative.DeclarativeMeta")
	install(class("sqlalchemy.orm.decl_api.registry", 0, obj),
		"sqlalchemy.orm.registry")
	install(class("sqlalchemy.orm.decl_api.declared_attr", 0, obj),
		"sqlalchemy.orm.declared_attr", "sqlalchemy.ext.declarative.declared_attr")

	install(function("sqlalchemy.orm.decl_api.declarative_base"),
		"sqlalchemy.orm.declarative_base", "sqlalchemy.ext.declarative.declarative_base")
	install(function("sqlalchemy.orm.decl_api.declarative_mixin"),
		"sqlalchemy.orm.declarative_mixin")
	install(function("sqlalchemy.orm.decl_api.as_declarative"),
		"sqlalchemy.orm.as_declarative", "sqlalchemy.ext.declarative.as_declarative")
	install(function("sqlalchemy.orm.relationships.relationship"),
		"sqlalchemy.orm.relationship", "sqlalchemy.relationship")
	install(function("sqlalchemy.orm.column_property"),
		"sqlalchemy.column_property")
	install(function("sqlalchemy.orm.synonym"),
		"sqlalchemy.synonym")
	install(function("sqlalchemy.orm.composite"),
		"sqlalchemy.composite")

	return symbols
}
