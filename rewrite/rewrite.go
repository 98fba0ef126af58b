// Package rewrite turns inferred exposed types into syntax edits: the
// left-hand side of a mapped declaration becomes Mapped[T], and a
// declared-attribute decorator becomes an equivalent assignment. Every
// builder is a pure transformation; ReplaceStatement is the single point
// that mutates a class body, keeping the rest unit-testable without the
// host tree.
package rewrite

import (
	"github.com/declmap/declmap/api"
	"github.com/declmap/declmap/meta"
	"github.com/declmap/declmap/syntax"
)

// MappedFullname is the descriptor type mapped attributes expose at
// runtime.
const MappedFullname = "sqlalchemy.orm.attributes.Mapped"

// MappedAlias is the global helper symbol registered before each scan so
// synthesized statements reference a stable name.
const MappedAlias = "__sa_Mapped"

// MappedInstance wraps an exposed type in the Mapped descriptor generic.
func MappedInstance(a api.SemanticAnalyzer, arg syntax.Type) *syntax.Instance {
	return a.NamedType(MappedFullname, arg)
}

// ApplyToAssignment rewrites the declared variable of a mapped assignment
// so the checker sees Mapped[T] instead of the construct's own type.
func ApplyToAssignment(a api.SemanticAnalyzer, stmt *syntax.AssignmentStmt, lvalue *syntax.NameExpr, pythonType syntax.Type) {
	mapped := MappedInstance(a, pythonType)
	if v, ok := lvalue.Node.(*syntax.Var); ok {
		v.Type = mapped
		v.IsInferred = false
	}
	stmt.InferredType = mapped
}

// DeclaredAttrReplacement builds the assignment that stands in for a
// decorated declaration:
//
//	name: Mapped[T] = __sa_Mapped._empty_constructor(lambda: <body>)
//
// The original function body survives under the lambda so the checker still
// type-checks its internals.
func DeclaredAttrReplacement(a api.SemanticAnalyzer, dec *syntax.Decorator, pythonType syntax.Type) *syntax.AssignmentStmt {
	pos := dec.Pos()

	left := syntax.NewNameExpr(dec.Var.Name, pos)
	left.Node = dec.Var

	descriptor := syntax.NewNameExpr(MappedAlias, pos)
	descriptor.Fullname = MappedFullname
	callee := syntax.NewMemberExpr(descriptor, "_empty_constructor", pos)
	callee.Fullname = MappedFullname + "._empty_constructor"

	wrapper := &syntax.LambdaExpr{BodySource: dec.Func.BodySource}
	rvalue := &syntax.CallExpr{
		Callee:   callee,
		Args:     []syntax.Expr{wrapper},
		ArgNames: []string{""},
	}

	stmt := syntax.NewAssignmentStmt([]syntax.Expr{left}, rvalue, pos)
	mapped := MappedInstance(a, pythonType)
	dec.Var.Type = mapped
	dec.Var.IsInferred = false
	stmt.InferredType = mapped
	return stmt
}

// ReplaceStatement substitutes a synthesized statement into the class body.
func ReplaceStatement(cls *syntax.ClassDef, index int, stmt syntax.Statement) {
	cls.Body[index] = stmt
}

// ReApply replays stored attribute types onto the current syntax. Later
// checker passes reset the left-hand side of assignments while the scanned
// right-hand sides are already rewritten, so types are restored from the
// metadata record instead of being re-derived.
func ReApply(a api.SemanticAnalyzer, cls *syntax.ClassDef, md *meta.ClassMetadata) {
	for _, attr := range md.Attributes {
		sym := cls.Info.Names.Get(attr.Name)
		if sym == nil {
			continue
		}
		v, ok := sym.Node.(*syntax.Var)
		if !ok {
			continue
		}
		mapped := MappedInstance(a, attr.Type)
		v.Type = mapped
		v.IsInferred = false
		if stmt := findAssignment(cls, attr.Name); stmt != nil {
			stmt.InferredType = mapped
		}
	}
}

// AddInheritedAttributes makes every attribute contributed by a mapped
// ancestor visible on the class itself, so inherited mixin attributes
// resolve without consulting ancestor metadata at access time.
func AddInheritedAttributes(a api.SemanticAnalyzer, cls *syntax.ClassDef, md *meta.ClassMetadata, store *meta.Store) {
	for _, ancestor := range md.MappedAncestors {
		ancestorMeta := store.Lookup(ancestor.Info.Fullname)
		if ancestorMeta == nil {
			continue
		}
		for _, attr := range ancestorMeta.Attributes {
			if cls.Info.Names.Get(attr.Name) != nil {
				continue
			}
			cls.Info.Names.Put(attr.Name, syntax.MDEF, &syntax.Var{
				Name:     attr.Name,
				Fullname: cls.Fullname + "." + attr.Name,
				Type:     MappedInstance(a, attr.Type),
			})
		}
	}
}

func findAssignment(cls *syntax.ClassDef, name string) *syntax.AssignmentStmt {
	for _, stmt := range cls.Body {
		assign, ok := stmt.(*syntax.AssignmentStmt)
		if !ok || len(assign.Lvalues) == 0 {
			continue
		}
		if lvalue, ok := assign.Lvalues[0].(*syntax.NameExpr); ok && lvalue.Name == name {
			return assign
		}
	}
	return nil
}
