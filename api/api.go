// Package api declares the capability surface the host type checker exposes
// to mapping-aware components. The scanner, inference engine and rewriter
// depend only on this interface; the checker package provides the in-tree
// implementation used by tests, and a production embedding substitutes the
// real host analyzer.
package api

import (
	"github.com/declmap/declmap/syntax"
)

// SemanticAnalyzer is the host checker capability handed to every hook.
// Lookup methods operate in the scope of the module currently being
// analyzed.
type SemanticAnalyzer interface {
	// LookupFullyQualified resolves an absolute dotted name, returning nil
	// when the symbol is unknown.
	LookupFullyQualified(fullname string) *syntax.SymbolTableNode

	// LookupQualified resolves a possibly dotted name relative to the
	// current module scope: local definitions first, then import aliases.
	LookupQualified(name string) *syntax.SymbolTableNode

	// NamedType builds an instance of a well-known class such as
	// builtins.object. It panics only for names the prelude guarantees,
	// mirroring how the host treats missing builtins as unrecoverable.
	NamedType(fullname string, args ...syntax.Type) *syntax.Instance

	// Fail emits a non-fatal diagnostic at the given position. Analysis
	// continues with whatever fallback the caller substitutes.
	Fail(msg string, pos syntax.Position)

	// ParseBool interprets an expression as a literal True or False. The
	// second result is false when the expression is not a bool literal.
	ParseBool(expr syntax.Expr) (bool, bool)

	// QualifiedName prefixes name with the current module's fullname.
	QualifiedName(name string) string

	// AddSymbolTableNode registers a definition in the current module's
	// global scope, as the dynamic-base hook does for synthesized classes.
	AddSymbolTableNode(name string, node *syntax.SymbolTableNode)
}

// Diagnostic is one user-facing message tied to a source location.
type Diagnostic struct {
	Message string          `yaml:"message"`
	Path    string          `yaml:"path,omitempty"`
	Pos     syntax.Position `yaml:"pos"`
}
