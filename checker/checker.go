// Package checker is the host harness: it parses Python sources, binds
// their declarations into symbol tables, and drives the mapping hooks over
// every module-level definition in declaration order. Definitions that are
// not ready yet are carried into the next pass; the run fails only when a
// full pass makes no progress.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"

	"github.com/declmap/declmap/api"
	"github.com/declmap/declmap/infer"
	"github.com/declmap/declmap/meta"
	"github.com/declmap/declmap/parser"
	"github.com/declmap/declmap/plugin"
	"github.com/declmap/declmap/syntax"
)

// Config controls checker behavior.
type Config struct {
	// Parser configures the Python front end.
	Parser *parser.Config
}

// target is one module-level definition awaiting hook dispatch: either a
// class definition or an assignment that may synthesize one.
type target struct {
	module *syntax.Module
	cls    *syntax.ClassDef
	assign *syntax.AssignmentStmt
}

// Checker analyzes a set of Python modules with the mapping plugin attached.
type Checker struct {
	config      *Config
	fs          afs.Service
	plugin      *plugin.Plugin
	symbols     map[string]*syntax.SymbolTableNode
	modules     []*syntax.Module
	targets     []*target
	diagnostics []api.Diagnostic
}

// New creates a Checker with a fresh session store and the stub prelude
// installed.
func New(config *Config) *Checker {
	if config == nil {
		config = &Config{}
	}
	return &Checker{
		config:  config,
		fs:      afs.New(),
		plugin:  plugin.New(meta.NewStore()),
		symbols: prelude(),
	}
}

// Plugin exposes the attached plugin, mainly so callers can inspect the
// session store after a run.
func (c *Checker) Plugin() *plugin.Plugin { return c.plugin }

// Modules returns the modules added so far, in addition order.
func (c *Checker) Modules() []*syntax.Module { return c.modules }

// Diagnostics returns every diagnostic collected so far, including ones
// emitted by hooks a host drove directly through Analyzer.
func (c *Checker) Diagnostics() []api.Diagnostic { return c.diagnostics }

// Analyzer returns the capability view scoped to one module, for hosts that
// drive individual hooks themselves.
func (c *Checker) Analyzer(module *syntax.Module) api.SemanticAnalyzer {
	return &analyzer{checker: c, module: module}
}

// AddSource parses one module and binds its declarations. Cross-module
// references resolve during Run, so sources can be added in any order.
func (c *Checker) AddSource(src []byte, moduleName string) (*syntax.Module, error) {
	module, err := parser.NewInspector(c.config.Parser).InspectSource(src, moduleName)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect module %s: %w", moduleName, err)
	}
	c.bind(module)
	c.modules = append(c.modules, module)
	for _, def := range module.Defs {
		switch d := def.(type) {
		case *syntax.ClassDef:
			c.targets = append(c.targets, &target{module: module, cls: d})
		case *syntax.AssignmentStmt:
			c.targets = append(c.targets, &target{module: module, assign: d})
		}
	}
	return module, nil
}

// AddLocation walks a location and adds every Python source found under it.
// Module names derive from the path relative to the location root.
func (c *Checker) AddLocation(ctx context.Context, location string) error {
	var assets []string
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		if !strings.HasSuffix(info.Name(), ".py") {
			return true, nil
		}
		assets = append(assets, url.Join(baseURL, parent, info.Name()))
		return true, nil
	}
	if err := c.fs.Walk(ctx, location, visitor); err != nil {
		return fmt.Errorf("failed to walk %s: %w", location, err)
	}
	sort.Strings(assets)
	for _, URL := range assets {
		src, err := c.fs.DownloadWithURL(ctx, URL)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", URL, err)
		}
		module, err := c.AddSource(src, moduleNameFor(location, URL))
		if err != nil {
			return err
		}
		module.Path = URL
	}
	return nil
}

// CheckSource analyzes a single module and returns the diagnostics.
func (c *Checker) CheckSource(src []byte, moduleName string) ([]api.Diagnostic, error) {
	if _, err := c.AddSource(src, moduleName); err != nil {
		return nil, err
	}
	return c.Run()
}

// CheckLocation analyzes every Python source under a location.
func (c *Checker) CheckLocation(ctx context.Context, location string) ([]api.Diagnostic, error) {
	if err := c.AddLocation(ctx, location); err != nil {
		return nil, err
	}
	return c.Run()
}

// Run dispatches hooks over all pending definitions until every one has
// completed. A definition blocked on an unresolved dependency is retried in
// the next pass; a pass that completes nothing means the remaining
// definitions can never resolve.
func (c *Checker) Run() ([]api.Diagnostic, error) {
	pending := c.targets
	c.targets = nil
	for len(pending) > 0 {
		var blocked []*target
		for _, t := range pending {
			a := &analyzer{checker: c, module: t.module}
			err := c.process(a, t)
			if err == nil {
				continue
			}
			if errors.Is(err, api.ErrNotReady) {
				blocked = append(blocked, t)
				continue
			}
			return c.diagnostics, err
		}
		if len(blocked) == len(pending) {
			name := blocked[0].module.Fullname
			if blocked[0].cls != nil {
				name = blocked[0].cls.Fullname
			}
			return c.diagnostics, fmt.Errorf("analysis cannot make progress, %d definitions blocked starting at %s: %w",
				len(blocked), name, api.ErrNotReady)
		}
		pending = blocked
	}
	return c.diagnostics, nil
}

func (c *Checker) process(a *analyzer, t *target) error {
	if t.cls != nil {
		return c.processClass(a, t.cls)
	}
	return c.processAssignment(a, t.assign)
}

// processAssignment binds a module-level variable and, when the right-hand
// side calls a declarative base factory, runs the dynamic-class hook.
func (c *Checker) processAssignment(a *analyzer, assign *syntax.AssignmentStmt) error {
	if len(assign.Lvalues) == 0 {
		return nil
	}
	lvalue, ok := assign.Lvalues[0].(*syntax.NameExpr)
	if !ok {
		return nil
	}
	if v, ok := lvalue.Node.(*syntax.Var); ok && v.Type == nil {
		c.resolveVarAnnotation(a, v, assign)
	}
	call, ok := assign.Rvalue.(*syntax.CallExpr)
	if !ok {
		return nil
	}
	fullname := calleeFullname(a, call.Callee)
	if fullname == "" {
		return nil
	}
	hook := c.plugin.DynamicClassHookFor(fullname)
	if hook == nil {
		return nil
	}
	return hook(&plugin.DynamicClassDefContext{Call: call, Name: lvalue.Name, API: a})
}

// processClass resolves the class's declared shape and runs the first
// matching hook: decorators take precedence, then an explicit metaclass,
// then declarative bases.
func (c *Checker) processClass(a *analyzer, cls *syntax.ClassDef) error {
	if err := c.resolveClass(a, cls); err != nil {
		return err
	}
	c.plugin.FillInDecorators(&plugin.ClassDefContext{Cls: cls, API: a})

	for _, decorator := range cls.Decorators {
		ref := decorator
		if call, ok := decorator.(*syntax.CallExpr); ok {
			ref = call.Callee
		}
		if hook := c.plugin.ClassDecoratorHookFor(a, calleeFullname(a, ref)); hook != nil {
			return hook(&plugin.ClassDefContext{Cls: cls, Reason: decorator, API: a})
		}
	}
	if cls.MetaclassExpr != nil {
		if hook := c.plugin.MetaclassHookFor(calleeFullname(a, cls.MetaclassExpr)); hook != nil {
			if err := hook(&plugin.ClassDefContext{Cls: cls, Reason: cls.MetaclassExpr, API: a}); err != nil {
				return err
			}
		}
	}
	for index, base := range cls.Info.Bases {
		if base.Info == nil {
			continue
		}
		if hook := c.plugin.BaseClassHookFor(a, base.Info.Fullname); hook != nil {
			reason := syntax.Expr(nil)
			if index < len(cls.BaseExprs) {
				reason = cls.BaseExprs[index]
			}
			return hook(&plugin.ClassDefContext{Cls: cls, Reason: reason, API: a})
		}
	}
	return nil
}

// bind registers a module's top-level and class-member declarations. Types
// and bases stay unresolved here; resolution happens per pass so forward
// references across modules settle on their own.
func (c *Checker) bind(module *syntax.Module) {
	for _, def := range module.Defs {
		switch d := def.(type) {
		case *syntax.ClassDef:
			info := syntax.NewTypeInfo(d.Name, d.Fullname, d)
			entry := &syntax.SymbolTableNode{Kind: syntax.GDEF, Node: info}
			module.Names[d.Name] = entry
			c.symbols[d.Fullname] = entry
			c.bindClassMembers(d, info)
		case *syntax.AssignmentStmt:
			c.bindModuleVar(module, d)
		case *syntax.FuncDef:
			d.Fullname = module.Fullname + "." + d.Name
			module.Names.Put(d.Name, syntax.GDEF, d)
		case *syntax.Decorator:
			d.Func.Fullname = module.Fullname + "." + d.Func.Name
			d.Var.Fullname = d.Func.Fullname
			module.Names.Put(d.Func.Name, syntax.GDEF, d.Func)
		}
	}
}

func (c *Checker) bindClassMembers(cls *syntax.ClassDef, info *syntax.TypeInfo) {
	for _, stmt := range cls.Body {
		switch member := stmt.(type) {
		case *syntax.AssignmentStmt:
			if len(member.Lvalues) == 0 {
				continue
			}
			lvalue, ok := member.Lvalues[0].(*syntax.NameExpr)
			if !ok {
				continue
			}
			v := &syntax.Var{
				Name:       lvalue.Name,
				Fullname:   cls.Fullname + "." + lvalue.Name,
				IsInferred: member.Annotation == nil,
			}
			if unbound, ok := member.Annotation.(*syntax.UnboundType); ok {
				if unbound.Name == "ClassVar" || unbound.Name == "typing.ClassVar" {
					v.IsClassVar = true
				}
			}
			lvalue.Node = v
			info.Names.Put(v.Name, syntax.MDEF, v)
		case *syntax.FuncDef:
			member.Fullname = cls.Fullname + "." + member.Name
			info.Names.Put(member.Name, syntax.MDEF, member)
		case *syntax.Decorator:
			member.Func.Fullname = cls.Fullname + "." + member.Func.Name
			member.Var.Fullname = member.Func.Fullname
			info.Names.Put(member.Var.Name, syntax.MDEF, member.Var)
		}
	}
}

func (c *Checker) bindModuleVar(module *syntax.Module, stmt *syntax.AssignmentStmt) {
	if len(stmt.Lvalues) == 0 {
		return
	}
	lvalue, ok := stmt.Lvalues[0].(*syntax.NameExpr)
	if !ok {
		return
	}
	v := &syntax.Var{
		Name:       lvalue.Name,
		Fullname:   module.Fullname + "." + lvalue.Name,
		IsInferred: stmt.Annotation == nil,
	}
	lvalue.Node = v
	entry := &syntax.SymbolTableNode{Kind: syntax.GDEF, Node: v}
	module.Names[v.Name] = entry
	c.symbols[v.Fullname] = entry
}

// resolveClass settles the class's bases, metaclass and member annotations
// against the symbols known so far. A base naming a plain variable defers
// the class, since a later dynamic-class hook may turn the variable into a
// synthesized class; a base naming nothing in scope degrades to object.
func (c *Checker) resolveClass(a *analyzer, cls *syntax.ClassDef) error {
	info := cls.Info
	if len(cls.BaseExprs) == 0 {
		if len(info.Bases) == 0 {
			info.Bases = []*syntax.Instance{a.NamedType("builtins.object")}
		}
	} else {
		bases := make([]*syntax.Instance, 0, len(cls.BaseExprs))
		for _, expr := range cls.BaseExprs {
			base, err := resolveClassExpr(a, expr)
			if err != nil {
				return err
			}
			if base != nil && (base == info || base.HasBase(info.Fullname)) {
				a.Fail("Cycle in inheritance hierarchy", expr.Pos())
				base = nil
			}
			if base != nil {
				bases = append(bases, syntax.NewInstance(base))
			} else {
				bases = append(bases, a.NamedType("builtins.object"))
			}
		}
		info.Bases = bases
	}

	if cls.MetaclassExpr != nil && info.DeclaredMetaclass == nil {
		if metaInfo, err := resolveClassExpr(a, cls.MetaclassExpr); err == nil && metaInfo != nil {
			info.DeclaredMetaclass = syntax.NewInstance(metaInfo)
		}
	}

	for _, stmt := range cls.Body {
		assign, ok := stmt.(*syntax.AssignmentStmt)
		if !ok || len(assign.Lvalues) == 0 {
			continue
		}
		lvalue, ok := assign.Lvalues[0].(*syntax.NameExpr)
		if !ok {
			continue
		}
		if v, ok := lvalue.Node.(*syntax.Var); ok && v.Type == nil && !v.IsClassVar {
			c.resolveVarAnnotation(a, v, assign)
		}
	}
	return nil
}

// resolveVarAnnotation types a declared variable once its annotation
// resolves completely. Partially resolved annotations stay on the statement
// for the scanner's unbound path.
func (c *Checker) resolveVarAnnotation(a *analyzer, v *syntax.Var, stmt *syntax.AssignmentStmt) {
	unbound, ok := stmt.Annotation.(*syntax.UnboundType)
	if !ok {
		return
	}
	resolved := infer.UnboundToInstance(a, unbound)
	if fullyResolved(resolved) {
		v.Type = resolved
		v.IsInferred = false
	}
}

func resolveClassExpr(a *analyzer, expr syntax.Expr) (*syntax.TypeInfo, error) {
	var sym *syntax.SymbolTableNode
	switch ref := expr.(type) {
	case *syntax.NameExpr:
		sym = a.LookupQualified(ref.Name)
	case *syntax.MemberExpr:
		if ref.Fullname != "" {
			sym = a.LookupFullyQualified(ref.Fullname)
		}
	}
	if sym == nil {
		return nil, nil
	}
	switch node := sym.Node.(type) {
	case *syntax.TypeInfo:
		return node, nil
	case *syntax.Var, *syntax.PlaceholderNode:
		return nil, api.ErrNotReady
	}
	return nil, nil
}

// calleeFullname resolves the identity of a referenced or called symbol. A
// member access on a typed variable, such as a method on an annotated
// registry, resolves through the variable's declared type.
func calleeFullname(a *analyzer, callee syntax.Expr) string {
	switch ref := callee.(type) {
	case *syntax.NameExpr:
		if ref.Fullname != "" {
			return ref.Fullname
		}
		if sym := a.LookupQualified(ref.Name); sym != nil && sym.Node != nil {
			return sym.Node.SymFullname()
		}
	case *syntax.MemberExpr:
		if ref.Fullname != "" {
			return ref.Fullname
		}
		base, ok := ref.X.(*syntax.NameExpr)
		if !ok {
			return ""
		}
		sym := a.LookupQualified(base.Name)
		if sym == nil {
			return ""
		}
		if v, ok := sym.Node.(*syntax.Var); ok && v.Type != nil {
			if instance, ok := v.Type.(*syntax.Instance); ok {
				return instance.Info.Fullname + "." + ref.Name
			}
		}
	}
	return ""
}

func fullyResolved(t syntax.Type) bool {
	switch typ := t.(type) {
	case *syntax.Instance:
		for _, arg := range typ.Args {
			if !fullyResolved(arg) {
				return false
			}
		}
		return true
	case *syntax.UnionType:
		for _, item := range typ.Items {
			if !fullyResolved(item) {
				return false
			}
		}
		return true
	case *syntax.NoneType, *syntax.AnyType:
		return true
	}
	return false
}

// moduleNameFor derives a dotted module name from an asset URL relative to
// the walked location.
func moduleNameFor(location, URL string) string {
	relative := strings.TrimPrefix(URL, location)
	relative = strings.Trim(relative, "/")
	relative = strings.TrimSuffix(relative, ".py")
	name := strings.ReplaceAll(relative, "/", ".")
	name = strings.TrimSuffix(name, ".__init__")
	if name == "" || name == "__init__" {
		return "main"
	}
	return name
}
