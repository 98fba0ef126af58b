// Package plugin is the registration surface that maps host checker
// extension points onto the declaration scanner: the dynamic-class hook for
// declarative base factories, class decorator hooks, the metaclass hook,
// the base-class hook and the attribute pass-through hook. The host asks
// for a hook by fully qualified trigger name; a nil result means the
// trigger is not ours.
package plugin

import (
	"fmt"
	"strings"

	"github.com/declmap/declmap/api"
	"github.com/declmap/declmap/identity"
	"github.com/declmap/declmap/meta"
	"github.com/declmap/declmap/rewrite"
	"github.com/declmap/declmap/scan"
	"github.com/declmap/declmap/syntax"
)

// DeclarativeMetaFullname is the framework's declarative metaclass.
const DeclarativeMetaFullname = "sqlalchemy.orm.decl_api.DeclarativeMeta"

// ClassDefContext carries a class definition into a hook, together with the
// expression that triggered it.
type ClassDefContext struct {
	Cls    *syntax.ClassDef
	Reason syntax.Expr
	API    api.SemanticAnalyzer
}

// DynamicClassDefContext carries a dynamic class-producing call such as
// Base = declarative_base().
type DynamicClassDefContext struct {
	Call *syntax.CallExpr
	Name string
	API  api.SemanticAnalyzer
}

// AttributeContext carries an attribute access on a mapped descriptor.
type AttributeContext struct {
	DefaultAttrType syntax.Type
	API             api.SemanticAnalyzer
}

// Plugin owns the session metadata store and hands out hooks.
type Plugin struct {
	store *meta.Store
}

// New creates a Plugin over the given session store.
func New(store *meta.Store) *Plugin {
	return &Plugin{store: store}
}

// Store exposes the session store, mainly to the embedding checker.
func (p *Plugin) Store() *meta.Store { return p.store }

// DynamicClassHookFor returns the dynamic-class hook when fullname names a
// declarative base factory.
func (p *Plugin) DynamicClassHookFor(fullname string) func(*DynamicClassDefContext) error {
	if identity.Of(fullname) == identity.DeclarativeBase {
		return p.dynamicClassHook
	}
	return nil
}

// ClassDecoratorHookFor returns the matching class-decorator hook, if any.
// The trigger may be a plain symbol or a registry member such as
// reg.mapped, which only the identity table can resolve.
func (p *Plugin) ClassDecoratorHookFor(a api.SemanticAnalyzer, fullname string) func(*ClassDefContext) error {
	typeID := identity.Of(fullname)
	if typeID == identity.None {
		if sym := a.LookupFullyQualified(fullname); sym != nil {
			typeID = identity.OfNode(sym.Node)
		}
	}
	switch typeID {
	case identity.MappedDecorator:
		return p.mappedClassHook
	case identity.AsDeclarative, identity.AsDeclarativeBase:
		return p.baseClassDecoratorHook
	case identity.DeclarativeMixin:
		return p.declarativeMixinHook
	}
	return nil
}

// MetaclassHookFor returns the metaclass hook when fullname names the
// declarative metaclass.
func (p *Plugin) MetaclassHookFor(fullname string) func(*ClassDefContext) error {
	if identity.Of(fullname) == identity.DeclarativeMeta {
		return p.metaclassHook
	}
	return nil
}

// BaseClassHookFor returns the base-class hook when fullname names a class
// already known to be declarative.
func (p *Plugin) BaseClassHookFor(a api.SemanticAnalyzer, fullname string) func(*ClassDefContext) error {
	sym := a.LookupFullyQualified(fullname)
	if sym == nil {
		return nil
	}
	info, ok := sym.Node.(*syntax.TypeInfo)
	if !ok {
		return nil
	}
	if p.IsDeclarative(info) {
		return p.baseClassHook
	}
	return nil
}

// AttributeHookFor returns the pass-through hook for attribute access on
// the mapped descriptor type. Narrowing here produces spurious
// missing-attribute reports, so the default type is returned unchanged.
func (p *Plugin) AttributeHookFor(fullname string) func(*AttributeContext) syntax.Type {
	const descriptorPrefix = "sqlalchemy.orm.attributes.QueryableAttribute."
	if strings.HasPrefix(fullname, descriptorPrefix) {
		return p.queryableGetattrHook
	}
	return nil
}

// IsDeclarative reports whether the class participates in declarative
// mapping: flagged by a hook, carrying a declarative metaclass, or
// inheriting either through a base. A cyclic base chain terminates with
// false.
func (p *Plugin) IsDeclarative(info *syntax.TypeInfo) bool {
	return p.isDeclarative(info, map[*syntax.TypeInfo]bool{})
}

func (p *Plugin) isDeclarative(info *syntax.TypeInfo, seen map[*syntax.TypeInfo]bool) bool {
	if info == nil || seen[info] {
		return false
	}
	seen[info] = true
	if p.store.IsDeclarative(info.Fullname) {
		return true
	}
	if info.DeclaredMetaclass != nil && info.DeclaredMetaclass.Info != nil &&
		identity.Of(info.DeclaredMetaclass.Info.Fullname) == identity.DeclarativeMeta {
		return true
	}
	for _, base := range info.Bases {
		if base.Info != nil && p.isDeclarative(base.Info, seen) {
			return true
		}
	}
	return false
}

// dynamicClassHook synthesizes a class definition when a declarative base
// factory call is assigned to a name.
func (p *Plugin) dynamicClassHook(ctx *DynamicClassDefContext) error {
	p.addGlobals(ctx.API)
	pos := ctx.Call.Pos()

	cls := &syntax.ClassDef{
		Span:     syntax.Span{At: pos},
		Name:     ctx.Name,
		Fullname: ctx.API.QualifiedName(ctx.Name),
	}
	info := syntax.NewTypeInfo(ctx.Name, cls.Fullname, cls)
	if err := p.setDeclarativeMetaclass(ctx.API, info); err != nil {
		return err
	}

	baseInfo, err := p.explicitBaseClass(ctx)
	if err != nil {
		return err
	}
	if baseInfo != nil {
		info.Bases = []*syntax.Instance{syntax.NewInstance(baseInfo)}
	} else {
		info.Bases = []*syntax.Instance{ctx.API.NamedType("builtins.object")}
	}

	if err := syntax.CalculateMRO(info); err != nil {
		ctx.API.Fail("Not able to calculate MRO for declarative base", pos)
		info.Bases = []*syntax.Instance{ctx.API.NamedType("builtins.object")}
		info.MRO = nil
		info.FallbackToAny = true
		if err := syntax.CalculateMRO(info); err != nil {
			return err
		}
	}

	p.store.Attach(cls.Fullname, &meta.ClassMetadata{IsBase: true, IsMapped: true})
	ctx.API.AddSymbolTableNode(ctx.Name, &syntax.SymbolTableNode{Kind: syntax.GDEF, Node: info})
	return nil
}

// explicitBaseClass resolves the factory's cls= argument, scanning the
// named class as a mixin so its attributes propagate to subclasses of the
// synthesized base.
func (p *Plugin) explicitBaseClass(ctx *DynamicClassDefContext) (*syntax.TypeInfo, error) {
	arg := ctx.Call.KeywordArg("cls")
	if arg == nil {
		return nil, nil
	}
	name, ok := arg.(*syntax.NameExpr)
	if !ok {
		return nil, nil
	}
	sym := ctx.API.LookupQualified(name.Name)
	if sym == nil {
		return nil, api.ErrNotReady
	}
	info, ok := sym.Node.(*syntax.TypeInfo)
	if !ok {
		return nil, nil
	}
	if info.Defn != nil {
		if err := scan.NewScanner(ctx.API, p.store).ScanAndApply(info.Defn, true); err != nil {
			return nil, err
		}
	}
	if md := p.store.Lookup(info.Fullname); md != nil {
		md.IsBase = true
	} else {
		p.store.Attach(info.Fullname, &meta.ClassMetadata{IsBase: true})
	}
	return info, nil
}

func (p *Plugin) mappedClassHook(ctx *ClassDefContext) error {
	p.addGlobals(ctx.API)
	p.store.MarkDeclarative(ctx.Cls.Fullname)
	return scan.NewScanner(ctx.API, p.store).ScanAndApply(ctx.Cls, false)
}

func (p *Plugin) baseClassDecoratorHook(ctx *ClassDefContext) error {
	p.addGlobals(ctx.API)
	if ctx.Cls.Info != nil {
		if err := p.setDeclarativeMetaclass(ctx.API, ctx.Cls.Info); err != nil {
			return err
		}
	}
	p.store.MarkDeclarative(ctx.Cls.Fullname)
	return scan.NewScanner(ctx.API, p.store).ScanAndApply(ctx.Cls, true)
}

func (p *Plugin) declarativeMixinHook(ctx *ClassDefContext) error {
	p.addGlobals(ctx.API)
	p.store.MarkDeclarative(ctx.Cls.Fullname)
	return scan.NewScanner(ctx.API, p.store).ScanAndApply(ctx.Cls, true)
}

// metaclassHook marks classes declaring metaclass=DeclarativeMeta as
// declarative bases; scanning is left to the base-class hook.
func (p *Plugin) metaclassHook(ctx *ClassDefContext) error {
	p.store.MarkDeclarative(ctx.Cls.Fullname)
	if p.store.Lookup(ctx.Cls.Fullname) == nil {
		p.store.Attach(ctx.Cls.Fullname, &meta.ClassMetadata{IsBase: true})
	}
	return nil
}

func (p *Plugin) baseClassHook(ctx *ClassDefContext) error {
	p.addGlobals(ctx.API)
	return scan.NewScanner(ctx.API, p.store).ScanAndApply(ctx.Cls, false)
}

func (p *Plugin) queryableGetattrHook(ctx *AttributeContext) syntax.Type {
	return ctx.DefaultAttrType
}

// FillInDecorators repairs member-access class decorators such as
// reg.mapped whose fullname the host's own analysis leaves empty: the
// registry variable's declared type supplies the qualifier. An unannotated
// registry cannot be resolved and is reported to the user.
func (p *Plugin) FillInDecorators(ctx *ClassDefContext) {
	for _, decorator := range ctx.Cls.Decorators {
		var target *syntax.MemberExpr
		switch expr := decorator.(type) {
		case *syntax.CallExpr:
			if member, ok := expr.Callee.(*syntax.MemberExpr); ok && member.Name == "as_declarative_base" {
				target = member
			}
		case *syntax.MemberExpr:
			if expr.Name == "mapped" {
				target = expr
			}
		}
		if target == nil || target.Fullname != "" {
			continue
		}

		base, ok := target.X.(*syntax.NameExpr)
		if !ok {
			continue
		}
		sym := ctx.API.LookupQualified(base.Name)
		if sym == nil || sym.Node == nil {
			continue
		}
		v, ok := sym.Node.(*syntax.Var)
		if ok && v.Type != nil {
			if instance, ok := v.Type.(*syntax.Instance); ok {
				target.Fullname = fmt.Sprintf("%s.%s", instance.Info.Fullname, target.Name)
				continue
			}
		}
		ctx.API.Fail(fmt.Sprintf(
			"Class decorator called %s(), but we can't "+
				"tell if it's from an ORM registry.  Please "+
				"annotate the registry assignment, e.g. "+
				"my_registry: registry = registry()", target.Name), target.Pos())
	}
}

// addGlobals registers the Mapped helper alias in the current module's
// global scope so rewritten statements reference a stable symbol.
func (p *Plugin) addGlobals(a api.SemanticAnalyzer) {
	sym := a.LookupFullyQualified(rewrite.MappedFullname)
	if sym == nil {
		return
	}
	a.AddSymbolTableNode(rewrite.MappedAlias, sym)
}

func (p *Plugin) setDeclarativeMetaclass(a api.SemanticAnalyzer, info *syntax.TypeInfo) error {
	sym := a.LookupFullyQualified(DeclarativeMetaFullname)
	if sym == nil {
		return fmt.Errorf("declarative metaclass %s is not in scope", DeclarativeMetaFullname)
	}
	metaInfo, ok := sym.Node.(*syntax.TypeInfo)
	if !ok {
		return fmt.Errorf("declarative metaclass %s is not a class", DeclarativeMetaFullname)
	}
	info.DeclaredMetaclass = syntax.NewInstance(metaInfo)
	return nil
}
