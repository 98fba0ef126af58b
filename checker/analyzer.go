package checker

import (
	"fmt"
	"strings"

	"github.com/declmap/declmap/api"
	"github.com/declmap/declmap/syntax"
)

// analyzer is the per-module view handed to hooks. Name lookups resolve
// against the module's own scope and import aliases before falling back to
// the checker's global table.
type analyzer struct {
	checker *Checker
	module  *syntax.Module
}

func (a *analyzer) LookupFullyQualified(fullname string) *syntax.SymbolTableNode {
	return a.checker.symbols[fullname]
}

func (a *analyzer) LookupQualified(name string) *syntax.SymbolTableNode {
	if sym := a.module.Names.Get(name); sym != nil {
		return sym
	}
	if fullname, ok := a.module.Imports[name]; ok {
		if sym := a.LookupFullyQualified(fullname); sym != nil {
			return sym
		}
	}
	if head, rest, ok := strings.Cut(name, "."); ok {
		if fullname, aliased := a.module.Imports[head]; aliased {
			if sym := a.LookupFullyQualified(fullname + "." + rest); sym != nil {
				return sym
			}
		}
	}
	return a.LookupFullyQualified(name)
}

func (a *analyzer) NamedType(fullname string, args ...syntax.Type) *syntax.Instance {
	sym := a.LookupFullyQualified(fullname)
	if sym != nil {
		if info, ok := sym.Node.(*syntax.TypeInfo); ok {
			return syntax.NewInstance(info, args...)
		}
	}
	panic(fmt.Sprintf("well-known type %s is missing from the prelude", fullname))
}

func (a *analyzer) Fail(msg string, pos syntax.Position) {
	a.checker.diagnostics = append(a.checker.diagnostics, api.Diagnostic{
		Message: msg,
		Path:    a.module.Path,
		Pos:     pos,
	})
}

func (a *analyzer) ParseBool(expr syntax.Expr) (bool, bool) {
	if value, ok := expr.(*syntax.BoolExpr); ok {
		return value.Value, true
	}
	return false, false
}

func (a *analyzer) QualifiedName(name string) string {
	return a.module.Fullname + "." + name
}

func (a *analyzer) AddSymbolTableNode(name string, node *syntax.SymbolTableNode) {
	a.module.Names[name] = node
	if node.Node != nil {
		if fullname := node.Node.SymFullname(); fullname != "" {
			a.checker.symbols[fullname] = node
		}
	}
}
