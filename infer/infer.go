// Package infer derives the exposed attribute type for each mapped
// construct from its right-hand-side call expression and left-hand
// annotation. Every recoverable failure emits a diagnostic and substitutes
// the dynamic type so scanning continues.
package infer

import (
	"fmt"

	"github.com/declmap/declmap/api"
	"github.com/declmap/declmap/identity"
	"github.com/declmap/declmap/syntax"
)

// FromColumn infers the exposed type of a Column(...) call. The column's
// Python type comes from its TypeEngine argument and is optional unless the
// column is a primary key or explicitly non-nullable. An explicit left-hand
// annotation always wins.
func FromColumn(a api.SemanticAnalyzer, attr *syntax.Var, call *syntax.CallExpr, lhsExplicit syntax.Type) (syntax.Type, error) {
	if lhsExplicit != nil {
		return lhsExplicit, nil
	}
	engine, err := typeEngineArg(a, call)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		a.Fail(cannotInferMessage(attr.Name), call.Pos())
		return &syntax.AnyType{Source: syntax.AnySpecialForm}, nil
	}
	pythonType := PythonTypeFromTypeEngine(a, engine, call.Pos())
	if columnIsNonNull(a, call) {
		return pythonType, nil
	}
	return syntax.OptionalType(pythonType), nil
}

// typeEngineArg locates the first positional argument naming a TypeEngine
// subclass, accepting both a bare class reference and a constructor call
// such as String(50).
func typeEngineArg(a api.SemanticAnalyzer, call *syntax.CallExpr) (*syntax.TypeInfo, error) {
	for _, arg := range call.PositionalArgs() {
		ref := arg
		if inner, ok := arg.(*syntax.CallExpr); ok {
			ref = inner.Callee
		}
		info, err := resolveClassRef(a, ref)
		if err != nil {
			return nil, err
		}
		if info != nil && identity.HasBase(info, identity.TypeEngine) {
			return info, nil
		}
	}
	return nil, nil
}

func columnIsNonNull(a api.SemanticAnalyzer, call *syntax.CallExpr) bool {
	if arg := call.KeywordArg("primary_key"); arg != nil {
		if value, ok := a.ParseBool(arg); ok && value {
			return true
		}
	}
	if arg := call.KeywordArg("nullable"); arg != nil {
		if value, ok := a.ParseBool(arg); ok && !value {
			return true
		}
	}
	return false
}

// PythonTypeFromTypeEngine extracts the Python type a TypeEngine subclass
// carries as its generic argument, walking the base chain for indirect
// subclasses.
func PythonTypeFromTypeEngine(a api.SemanticAnalyzer, engine *syntax.TypeInfo, pos syntax.Position) syntax.Type {
	if pythonType := typeEngineGenericArg(engine); pythonType != nil {
		return pythonType
	}
	a.Fail(fmt.Sprintf("Could not extract Python type from TypeEngine subclass '%s'", engine.Fullname), pos)
	return &syntax.AnyType{Source: syntax.AnySpecialForm}
}

func typeEngineGenericArg(info *syntax.TypeInfo) syntax.Type {
	for _, base := range info.Bases {
		if base.Info == nil {
			continue
		}
		if identity.Of(base.Info.Fullname) == identity.TypeEngine && len(base.Args) > 0 {
			return base.Args[0]
		}
	}
	for _, base := range info.Bases {
		if base.Info == nil {
			continue
		}
		if pythonType := typeEngineGenericArg(base.Info); pythonType != nil {
			return pythonType
		}
	}
	return nil
}

// FromRelationship infers the exposed type of a relationship(...) call. A
// uselist=True or secondary= argument implies a collection; otherwise the
// relationship is scalar and unioned with None. An explicit left-hand
// annotation always wins.
func FromRelationship(a api.SemanticAnalyzer, attr *syntax.Var, call *syntax.CallExpr, lhsExplicit syntax.Type) (syntax.Type, error) {
	if lhsExplicit != nil {
		return lhsExplicit, nil
	}
	positional := call.PositionalArgs()
	if len(positional) == 0 {
		a.Fail(cannotInferMessage(attr.Name), call.Pos())
		return &syntax.AnyType{Source: syntax.AnySpecialForm}, nil
	}
	target, err := relationshipTarget(a, positional[0])
	if err != nil {
		return nil, err
	}
	if target == nil {
		a.Fail(cannotInferMessage(attr.Name), call.Pos())
		return &syntax.AnyType{Source: syntax.AnySpecialForm}, nil
	}
	targetType := syntax.NewInstance(target)
	if relationshipUsesCollection(a, call) {
		return a.NamedType("builtins.list", targetType), nil
	}
	return syntax.OptionalType(targetType), nil
}

// relationshipTarget resolves the target class argument, which may be a
// plain name or a string forward reference. An unresolved forward reference
// is a deferral, not a failure: the class may simply appear later in the
// file.
func relationshipTarget(a api.SemanticAnalyzer, arg syntax.Expr) (*syntax.TypeInfo, error) {
	switch expr := arg.(type) {
	case *syntax.NameExpr:
		return resolveClassRef(a, expr)
	case *syntax.StrExpr:
		sym := a.LookupQualified(expr.Value)
		if sym == nil {
			return nil, api.ErrNotReady
		}
		if _, ok := sym.Node.(*syntax.PlaceholderNode); ok {
			return nil, api.ErrNotReady
		}
		if info, ok := sym.Node.(*syntax.TypeInfo); ok {
			return info, nil
		}
	}
	return nil, nil
}

func relationshipUsesCollection(a api.SemanticAnalyzer, call *syntax.CallExpr) bool {
	if arg := call.KeywordArg("uselist"); arg != nil {
		if value, ok := a.ParseBool(arg); ok {
			return value
		}
	}
	return call.KeywordArg("secondary") != nil
}

// FromColumnProperty infers the exposed type of a column_property(...) call:
// the explicit annotation when present, else a shallow look at a Column
// expression inside the property.
func FromColumnProperty(a api.SemanticAnalyzer, attr *syntax.Var, call *syntax.CallExpr, lhsExplicit syntax.Type) (syntax.Type, error) {
	if lhsExplicit != nil {
		return lhsExplicit, nil
	}
	for _, arg := range call.PositionalArgs() {
		inner, ok := arg.(*syntax.CallExpr)
		if !ok {
			continue
		}
		if identity.OfCallee(inner.Callee) == identity.Column {
			return FromColumn(a, attr, inner, nil)
		}
	}
	a.Fail(cannotInferMessage(attr.Name), call.Pos())
	return &syntax.AnyType{Source: syntax.AnySpecialForm}, nil
}

// FromComposite infers the exposed type of a composite(...) call: the
// explicit annotation when present, else an instance of the composite class
// named as the first argument.
func FromComposite(a api.SemanticAnalyzer, attr *syntax.Var, call *syntax.CallExpr, lhsExplicit syntax.Type) (syntax.Type, error) {
	if lhsExplicit != nil {
		return lhsExplicit, nil
	}
	positional := call.PositionalArgs()
	if len(positional) > 0 {
		info, err := resolveClassRef(a, positional[0])
		if err != nil {
			return nil, err
		}
		if info != nil {
			return syntax.NewInstance(info), nil
		}
	}
	a.Fail(cannotInferMessage(attr.Name), call.Pos())
	return &syntax.AnyType{Source: syntax.AnySpecialForm}, nil
}

// FromLeftHandOnly covers constructs such as synonym() whose exposed type
// can only come from the user's annotation.
func FromLeftHandOnly(a api.SemanticAnalyzer, attr *syntax.Var, pos syntax.Position, lhsExplicit syntax.Type) syntax.Type {
	if lhsExplicit != nil {
		return lhsExplicit
	}
	a.Fail(cannotInferMessage(attr.Name), pos)
	return &syntax.AnyType{Source: syntax.AnySpecialForm}
}

// UnboundToInstance resolves an unresolved annotation into the concrete
// type structures used everywhere else, handling Optional and Union
// spellings. Unresolvable names stay unbound rather than failing.
func UnboundToInstance(a api.SemanticAnalyzer, unbound *syntax.UnboundType) syntax.Type {
	switch unbound.Name {
	case "Optional", "typing.Optional":
		if len(unbound.Args) == 1 {
			return syntax.OptionalType(resolveTypeArg(a, unbound.Args[0]))
		}
	case "Union", "typing.Union":
		items := make([]syntax.Type, 0, len(unbound.Args))
		for _, arg := range unbound.Args {
			items = append(items, resolveTypeArg(a, arg))
		}
		return &syntax.UnionType{Items: items}
	case "None":
		return &syntax.NoneType{}
	}
	sym := a.LookupQualified(unbound.Name)
	if sym == nil {
		return unbound
	}
	info, ok := sym.Node.(*syntax.TypeInfo)
	if !ok {
		return unbound
	}
	args := make([]syntax.Type, 0, len(unbound.Args))
	for _, arg := range unbound.Args {
		args = append(args, resolveTypeArg(a, arg))
	}
	return syntax.NewInstance(info, args...)
}

func resolveTypeArg(a api.SemanticAnalyzer, arg syntax.Type) syntax.Type {
	if unbound, ok := arg.(*syntax.UnboundType); ok {
		return UnboundToInstance(a, unbound)
	}
	return arg
}

// resolveClassRef resolves a name or member expression to a class,
// returning nil for anything that is not a class and ErrNotReady for
// placeholders.
func resolveClassRef(a api.SemanticAnalyzer, expr syntax.Expr) (*syntax.TypeInfo, error) {
	var sym *syntax.SymbolTableNode
	switch ref := expr.(type) {
	case *syntax.NameExpr:
		if ref.Fullname != "" {
			sym = a.LookupFullyQualified(ref.Fullname)
		}
		if sym == nil {
			sym = a.LookupQualified(ref.Name)
		}
	case *syntax.MemberExpr:
		if ref.Fullname != "" {
			sym = a.LookupFullyQualified(ref.Fullname)
		}
	default:
		return nil, nil
	}
	if sym == nil {
		return nil, nil
	}
	switch node := sym.Node.(type) {
	case *syntax.PlaceholderNode:
		return nil, api.ErrNotReady
	case *syntax.TypeInfo:
		return node, nil
	}
	return nil, nil
}

func cannotInferMessage(name string) string {
	return fmt.Sprintf(
		"Can't infer type from ORM mapped expression assigned to attribute '%s'; "+
			"please specify a Python type or Mapped[<python type>] on the left hand side", name)
}
