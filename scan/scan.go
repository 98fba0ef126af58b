// Package scan walks a class body, classifies each assignment and decorator
// statement, decides whether the class participates in declarative mapping
// and records the inferred attribute types. A class moves through three
// states: unscanned, scanned as mixin, scanned as mapped. Once metadata is
// attached, later scans replay the stored types instead of re-deriving them,
// because the host checker may have destroyed the right-hand sides the
// derivation needed.
package scan

import (
	"fmt"
	"strings"

	"github.com/declmap/declmap/api"
	"github.com/declmap/declmap/identity"
	"github.com/declmap/declmap/infer"
	"github.com/declmap/declmap/meta"
	"github.com/declmap/declmap/rewrite"
	"github.com/declmap/declmap/syntax"
)

// ErrInconsistentState reports that a class already scanned as unmapped is
// being re-scanned as mapped, or the reverse. This is a hook dispatch
// ordering bug, not bad user input, so the class scan fails hard.
var ErrInconsistentState = fmt.Errorf("class scan state is inconsistent")

// Scanner drives declaration scanning for one analysis session.
type Scanner struct {
	a     api.SemanticAnalyzer
	store *meta.Store
}

// NewScanner creates a Scanner bound to the analyzer capability and the
// session metadata store.
func NewScanner(a api.SemanticAnalyzer, store *meta.Store) *Scanner {
	return &Scanner{a: a, store: store}
}

// mapperLike are the construct annotations whose first type argument is the
// exposed type directly.
var mapperLike = map[identity.TypeID]bool{
	identity.Mapped:            true,
	identity.Relationship:      true,
	identity.CompositeProperty: true,
	identity.MapperProperty:    true,
	identity.SynonymProperty:   true,
	identity.ColumnProperty:    true,
}

// ScanAndApply scans the class body, infers attribute types, rewrites the
// scanned statements and attaches the resulting metadata. A mixin scan
// records attributes without requiring the class to be mapped itself.
//
// api.ErrNotReady aborts the scan with no metadata committed; the caller
// defers the class to a later pass.
func (s *Scanner) ScanAndApply(cls *syntax.ClassDef, mixinScan bool) error {
	if strings.HasPrefix(cls.Fullname, "builtins.") {
		return nil
	}
	if cls.Info == nil {
		return api.ErrNotReady
	}

	if md := s.store.Lookup(cls.Fullname); md != nil && !stale(md, cls) {
		// a class that is mapped must have been picked up by its mapped()
		// decorator or declarative metaclass before any base-class scan
		// reaches it
		if !mixinScan {
			if !md.IsMapped {
				return fmt.Errorf("%s already scanned as unmapped: %w", cls.Fullname, ErrInconsistentState)
			}
			rewrite.ReApply(s.a, cls, md)
		}
		return nil
	}

	md := &meta.ClassMetadata{
		IsMapped:    !mixinScan,
		IsBase:      mixinScan,
		Fingerprint: cls.BodyFingerprint,
	}

	for index, stmt := range cls.Body {
		var err error
		switch st := stmt.(type) {
		case *syntax.AssignmentStmt:
			err = s.scanAssignment(cls, st, md)
		case *syntax.Decorator:
			err = s.scanDecorator(cls, index, st, md)
		}
		if err != nil {
			return err
		}
	}
	if err := s.scanMappedBases(cls, md); err != nil {
		return err
	}
	if !mixinScan {
		rewrite.AddInheritedAttributes(s.a, cls, md, s.store)
	}

	s.store.Attach(cls.Fullname, md)
	return nil
}

// scanAssignment classifies one assignment statement and, when it declares a
// mapped attribute, records and applies its exposed type.
func (s *Scanner) scanAssignment(cls *syntax.ClassDef, stmt *syntax.AssignmentStmt, md *meta.ClassMetadata) error {
	if len(stmt.Lvalues) == 0 {
		return nil
	}
	lvalue, ok := stmt.Lvalues[0].(*syntax.NameExpr)
	if !ok {
		return nil
	}
	sym := cls.Info.Names.Get(lvalue.Name)
	if sym == nil {
		// likely blocked by a star import; nothing to defer for
		return nil
	}
	if _, placeholder := sym.Node.(*syntax.PlaceholderNode); placeholder {
		return nil
	}
	v, ok := sym.Node.(*syntax.Var)
	if !ok {
		return nil
	}

	switch v.Name {
	case "__abstract__":
		if value, ok := s.a.ParseBool(stmt.Rvalue); ok && value {
			md.IsMapped = false
		}
		return nil
	case "__tablename__":
		md.HasTable = true
		return nil
	case "_mypy_mapped_attrs":
		s.applyMappedAttrs(cls, stmt, md)
		return nil
	}
	if strings.HasPrefix(v.Name, "__") || v.IsClassVar {
		return nil
	}
	// already recorded through the allow-list
	if md.Has(v.Name) {
		return nil
	}

	lhsExplicit, lhsMapped := s.leftHandTypes(stmt, v)

	var pythonType syntax.Type
	var err error
	if stmt.Rvalue == nil {
		// annotation without assignment; only a Mapped[] annotation makes
		// this a mapped attribute declaration
		if lhsMapped == nil {
			return nil
		}
		pythonType = lhsExplicit
	} else {
		call, ok := stmt.Rvalue.(*syntax.CallExpr)
		if !ok {
			return nil
		}
		pythonType, err = s.inferFromCall(v, call, lhsExplicit)
		if err != nil {
			return err
		}
		if pythonType == nil {
			return nil
		}
	}

	if unbound, ok := pythonType.(*syntax.UnboundType); ok {
		pythonType = infer.UnboundToInstance(s.a, unbound)
	}

	md.Attributes = append(md.Attributes, &meta.AttributeRecord{
		Name:   v.Name,
		Line:   stmt.Pos().Line,
		Column: stmt.Pos().Column,
		Type:   pythonType,
		Owner:  cls.Info,
	})
	rewrite.ApplyToAssignment(s.a, stmt, lvalue, pythonType)
	return nil
}

// leftHandTypes extracts the explicit annotation type and, when the
// annotation is the Mapped[] wrapper, the wrapper itself. The resolved
// variable type is preferred; an unbound annotation covers declarations the
// checker has not typed yet.
func (s *Scanner) leftHandTypes(stmt *syntax.AssignmentStmt, v *syntax.Var) (lhsExplicit, lhsMapped syntax.Type) {
	if !v.IsInferred && v.Type != nil {
		if instance, ok := v.Type.(*syntax.Instance); ok && identity.Of(instance.Info.Fullname) == identity.Mapped {
			if len(instance.Args) > 0 {
				lhsExplicit = instance.Args[0]
			}
			lhsMapped = instance
			return lhsExplicit, lhsMapped
		}
		return v.Type, nil
	}

	unbound, ok := stmt.Annotation.(*syntax.UnboundType)
	if !ok {
		return nil, nil
	}
	lhsExplicit = unbound
	sym := s.a.LookupQualified(unbound.Name)
	if sym != nil && identity.OfNode(sym.Node) == identity.Mapped && len(unbound.Args) > 0 {
		lhsExplicit = unbound.Args[0]
		if inner, ok := lhsExplicit.(*syntax.UnboundType); ok {
			lhsExplicit = infer.UnboundToInstance(s.a, inner)
		}
		lhsMapped = unbound
	}
	return lhsExplicit, lhsMapped
}

// inferFromCall dispatches a recognized right-hand construct call to its
// inference rule. Unrecognized calls are ordinary attributes and yield nil.
func (s *Scanner) inferFromCall(v *syntax.Var, call *syntax.CallExpr, lhsExplicit syntax.Type) (syntax.Type, error) {
	typeID := identity.OfCallee(call.Callee)
	if typeID == identity.None {
		if name, ok := call.Callee.(*syntax.NameExpr); ok {
			if sym := s.a.LookupQualified(name.Name); sym != nil {
				typeID = identity.OfNode(sym.Node)
			}
		}
	}
	switch typeID {
	case identity.Column:
		return infer.FromColumn(s.a, v, call, lhsExplicit)
	case identity.Relationship:
		return infer.FromRelationship(s.a, v, call, lhsExplicit)
	case identity.ColumnProperty:
		return infer.FromColumnProperty(s.a, v, call, lhsExplicit)
	case identity.SynonymProperty:
		return infer.FromLeftHandOnly(s.a, v, call.Pos(), lhsExplicit), nil
	case identity.CompositeProperty:
		return infer.FromComposite(s.a, v, call, lhsExplicit)
	}
	return nil, nil
}

// applyMappedAttrs handles the _mypy_mapped_attrs allow-list: each listed
// name is treated as if it had been declared as a mapped attribute.
func (s *Scanner) applyMappedAttrs(cls *syntax.ClassDef, stmt *syntax.AssignmentStmt, md *meta.ClassMetadata) {
	list, ok := stmt.Rvalue.(*syntax.ListExpr)
	if !ok {
		s.a.Fail("_mypy_mapped_attrs is expected to be a list", stmt.Pos())
		return
	}
	for _, item := range list.Items {
		switch entry := item.(type) {
		case *syntax.NameExpr:
			s.applyMappedAttr(cls, entry.Name, entry.Pos(), md)
		case *syntax.StrExpr:
			s.applyMappedAttr(cls, entry.Value, entry.Pos(), md)
		}
	}
}

func (s *Scanner) applyMappedAttr(cls *syntax.ClassDef, name string, pos syntax.Position, md *meta.ClassMetadata) {
	if md.Has(name) {
		return
	}
	sym := cls.Info.Names.Get(name)
	var v *syntax.Var
	if sym != nil {
		v, _ = sym.Node.(*syntax.Var)
	}
	if v == nil {
		s.a.Fail(fmt.Sprintf("Can't find mapped attribute '%s'", name), pos)
		return
	}

	target := findBodyAssignment(cls, name)
	var attrType syntax.Type
	if !v.IsInferred && v.Type != nil {
		attrType = v.Type
	} else if target != nil && target.Annotation != nil {
		attrType = target.Annotation
	}
	if unbound, ok := attrType.(*syntax.UnboundType); ok {
		attrType = infer.UnboundToInstance(s.a, unbound)
	}
	if attrType == nil {
		attrType = &syntax.AnyType{Source: syntax.AnySpecialForm}
	}

	line, column := pos.Line, pos.Column
	if target != nil {
		line, column = target.Pos().Line, target.Pos().Column
	}
	md.Attributes = append(md.Attributes, &meta.AttributeRecord{
		Name:   name,
		Line:   line,
		Column: column,
		Type:   attrType,
		Owner:  cls.Info,
	})
	if target != nil {
		if lvalue, ok := target.Lvalues[0].(*syntax.NameExpr); ok {
			rewrite.ApplyToAssignment(s.a, target, lvalue, attrType)
			return
		}
	}
	v.Type = rewrite.MappedInstance(s.a, attrType)
	v.IsInferred = false
}

// scanDecorator recognizes a declared-attribute marker on a decorated
// function, extracts the exposed type from the function's return annotation
// and replaces the whole statement with an equivalent assignment.
func (s *Scanner) scanDecorator(cls *syntax.ClassDef, index int, dec *syntax.Decorator, md *meta.ClassMetadata) error {
	if !s.hasDeclaredAttrMarker(dec) {
		return nil
	}

	var lhsExplicit syntax.Type
	ret := dec.Func.ReturnType
	if ret != nil {
		typeID := identity.OfUnbound(ret, s.a)
		switch {
		case mapperLike[typeID] && len(ret.Args) > 0:
			lhsExplicit = ret.Args[0]
			if unbound, ok := lhsExplicit.(*syntax.UnboundType); ok {
				lhsExplicit = infer.UnboundToInstance(s.a, unbound)
			}
		case typeID == identity.Column && len(ret.Args) > 0:
			lhsExplicit = s.declaredColumnType(ret.Args[0], dec.Pos())
		}
	}

	if lhsExplicit == nil {
		s.a.Fail(fmt.Sprintf(
			"Can't infer type from @declared_attr on function '%s';  "+
				"please specify a return type from this function that is "+
				"one of: Mapped[<python type>], relationship[<target class>], "+
				"Column[<TypeEngine>], MapperProperty[<python type>]",
			dec.Func.Name), dec.Pos())
		lhsExplicit = &syntax.AnyType{Source: syntax.AnySpecialForm}
	}

	md.Attributes = append(md.Attributes, &meta.AttributeRecord{
		Name:   dec.Var.Name,
		Line:   dec.Pos().Line,
		Column: dec.Pos().Column,
		Type:   lhsExplicit,
		Owner:  cls.Info,
	})
	replacement := rewrite.DeclaredAttrReplacement(s.a, dec, lhsExplicit)
	rewrite.ReplaceStatement(cls, index, replacement)
	return nil
}

// declaredColumnType handles `-> Column[SomeType]`: the argument must name
// a TypeEngine subclass, and the exposed type is the engine's Python type
// made optional, since nothing else about the column is known here.
func (s *Scanner) declaredColumnType(arg syntax.Type, pos syntax.Position) syntax.Type {
	unbound, ok := arg.(*syntax.UnboundType)
	if !ok {
		return nil
	}
	sym := s.a.LookupQualified(unbound.Name)
	if sym == nil {
		return nil
	}
	info, ok := sym.Node.(*syntax.TypeInfo)
	if !ok {
		return nil
	}
	if !identity.HasBase(info, identity.TypeEngine) {
		s.a.Fail(fmt.Sprintf("Column type should be a TypeEngine subclass not '%s'", info.Fullname), pos)
		return nil
	}
	return syntax.OptionalType(infer.PythonTypeFromTypeEngine(s.a, info, pos))
}

func (s *Scanner) hasDeclaredAttrMarker(dec *syntax.Decorator) bool {
	for _, d := range dec.Decorators {
		ref := d
		if call, ok := d.(*syntax.CallExpr); ok {
			ref = call.Callee
		}
		if identity.Of(syntax.RefFullname(ref)) == identity.DeclaredAttr {
			return true
		}
		if name, ok := ref.(*syntax.NameExpr); ok && name.Fullname == "" {
			if sym := s.a.LookupQualified(name.Name); sym != nil && identity.OfNode(sym.Node) == identity.DeclaredAttr {
				return true
			}
		}
	}
	return false
}

// scanMappedBases walks the base-class chain breadth first, collecting
// every ancestor already scanned. An unresolved ancestor aborts the scan so
// the host retries the class once the ancestor is ready.
func (s *Scanner) scanMappedBases(cls *syntax.ClassDef, md *meta.ClassMetadata) error {
	seen := map[*syntax.TypeInfo]bool{cls.Info: true}
	queue := append([]*syntax.Instance{}, cls.Info.Bases...)
	for len(queue) > 0 {
		base := queue[0]
		queue = queue[1:]
		if base.Info == nil {
			return api.ErrNotReady
		}
		if seen[base.Info] {
			continue
		}
		seen[base.Info] = true
		if strings.HasPrefix(base.Info.Fullname, "builtins.") {
			continue
		}
		if s.store.Lookup(base.Info.Fullname) != nil {
			md.MappedAncestors = append(md.MappedAncestors, base)
		}
		queue = append(queue, base.Info.Bases...)
	}
	return nil
}

// stale reports that the stored record was derived from a different class
// body, typically an incremental-cache entry that outlived an edit. A stale
// record is re-derived rather than replayed.
func stale(md *meta.ClassMetadata, cls *syntax.ClassDef) bool {
	return md.Fingerprint != 0 && cls.BodyFingerprint != 0 && md.Fingerprint != cls.BodyFingerprint
}

func findBodyAssignment(cls *syntax.ClassDef, name string) *syntax.AssignmentStmt {
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
