// Package parser is the Python front end: it parses source with
// tree-sitter and produces the syntax model the scanner operates on.
// Only declaration-level structure is modelled; statements and expressions
// outside the declarative idioms are preserved as opaque source text.
package parser

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/declmap/declmap/syntax"
)

// Config controls inspection behavior.
type Config struct {
	// SkipPrivateClasses drops classes whose name starts with an
	// underscore.
	SkipPrivateClasses bool
}

// Inspector parses Python source files into syntax modules.
type Inspector struct {
	config *Config
	source []byte
	module *syntax.Module
}

// NewInspector creates an Inspector with the provided configuration.
func NewInspector(config *Config) *Inspector {
	if config == nil {
		config = &Config{}
	}
	return &Inspector{config: config}
}

// InspectFile parses one Python source file.
func (i *Inspector) InspectFile(filename, moduleName string) (*syntax.Module, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	module, err := i.InspectSource(src, moduleName)
	if err != nil {
		return nil, err
	}
	module.Path = filename
	return module, nil
}

// InspectSource parses Python source from a byte slice.
func (i *Inspector) InspectSource(src []byte, moduleName string) (*syntax.Module, error) {
	i.source = src

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}

	i.module = &syntax.Module{
		Fullname: moduleName,
		Names:    syntax.SymbolTable{},
		Imports:  map[string]string{},
	}
	i.processModule(tree.RootNode())
	return i.module, nil
}

func (i *Inspector) processModule(root *sitter.Node) {
	for index := uint32(0); index < root.NamedChildCount(); index++ {
		child := root.NamedChild(int(index))
		switch child.Type() {
		case "import_statement":
			i.parseImport(child)
		case "import_from_statement":
			i.parseImportFrom(child)
		case "expression_statement":
			if stmt := i.parseExpressionStatement(child); stmt != nil {
				i.module.Defs = append(i.module.Defs, stmt)
			}
		case "class_definition":
			if cls := i.parseClass(child, nil); cls != nil {
				i.module.Defs = append(i.module.Defs, cls)
			}
		case "decorated_definition":
			if stmt := i.parseDecorated(child); stmt != nil {
				i.module.Defs = append(i.module.Defs, stmt)
			}
		case "function_definition":
			i.module.Defs = append(i.module.Defs, i.parseFunction(child))
		}
	}
}

// parseImport handles `import a.b` and `import a.b as c`: the bound alias
// maps to the imported module path.
func (i *Inspector) parseImport(node *sitter.Node) {
	for index := uint32(0); index < node.NamedChildCount(); index++ {
		child := node.NamedChild(int(index))
		switch child.Type() {
		case "dotted_name":
			path := child.Content(i.source)
			head := strings.SplitN(path, ".", 2)[0]
			i.module.Imports[head] = head
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil {
				i.module.Imports[alias.Content(i.source)] = name.Content(i.source)
			}
		}
	}
}

// parseImportFrom handles `from a.b import c` and aliased variants: each
// bound name maps to its fully qualified origin.
func (i *Inspector) parseImportFrom(node *sitter.Node) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	modulePath := moduleNode.Content(i.source)
	for index := uint32(0); index < node.NamedChildCount(); index++ {
		child := node.NamedChild(int(index))
		if child.StartByte() == moduleNode.StartByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			name := child.Content(i.source)
			i.module.Imports[name] = modulePath + "." + name
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil {
				i.module.Imports[alias.Content(i.source)] = modulePath + "." + name.Content(i.source)
			}
		}
	}
}

func (i *Inspector) parseExpressionStatement(node *sitter.Node) syntax.Statement {
	if node.NamedChildCount() == 0 {
		return nil
	}
	child := node.NamedChild(0)
	switch child.Type() {
	case "assignment":
		return i.parseAssignment(child)
	case "string":
		// docstring
		return &syntax.OpaqueStmt{Span: i.span(node), Source: child.Content(i.source)}
	}
	return &syntax.OpaqueStmt{Span: i.span(node), Source: node.Content(i.source)}
}

func (i *Inspector) parseAssignment(node *sitter.Node) *syntax.AssignmentStmt {
	left := node.ChildByFieldName("left")
	if left == nil {
		return nil
	}
	stmt := &syntax.AssignmentStmt{
		Span:    i.span(node),
		Lvalues: []syntax.Expr{i.parseExpression(left)},
	}
	if annotation := node.ChildByFieldName("type"); annotation != nil {
		stmt.Annotation = i.parseAnnotation(annotation)
	}
	if right := node.ChildByFieldName("right"); right != nil {
		stmt.Rvalue = i.parseExpression(right)
	}
	return stmt
}

func (i *Inspector) parseDecorated(node *sitter.Node) syntax.Statement {
	var decorators []syntax.Expr
	for index := uint32(0); index < node.NamedChildCount(); index++ {
		child := node.NamedChild(int(index))
		if child.Type() != "decorator" {
			continue
		}
		if child.NamedChildCount() > 0 {
			decorators = append(decorators, i.parseExpression(child.NamedChild(0)))
		}
	}
	definition := node.ChildByFieldName("definition")
	if definition == nil {
		return nil
	}
	switch definition.Type() {
	case "class_definition":
		return i.parseClass(definition, decorators)
	case "function_definition":
		fn := i.parseFunction(definition)
		return &syntax.Decorator{
			Span:       i.span(node),
			Func:       fn,
			Decorators: decorators,
			Var:        &syntax.Var{Name: fn.Name, IsInferred: true},
		}
	}
	return nil
}

func (i *Inspector) parseFunction(node *sitter.Node) *syntax.FuncDef {
	fn := &syntax.FuncDef{Span: i.span(node)}
	if name := node.ChildByFieldName("name"); name != nil {
		fn.Name = name.Content(i.source)
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		for index := uint32(0); index < params.NamedChildCount(); index++ {
			fn.Params = append(fn.Params, params.NamedChild(int(index)).Content(i.source))
		}
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		fn.ReturnType = i.parseAnnotation(ret)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		fn.BodySource = body.Content(i.source)
	}
	return fn
}

func (i *Inspector) parseClass(node *sitter.Node, decorators []syntax.Expr) *syntax.ClassDef {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(i.source)
	if i.config.SkipPrivateClasses && strings.HasPrefix(name, "_") {
		return nil
	}

	cls := &syntax.ClassDef{
		Span:       i.span(node),
		Name:       name,
		Fullname:   i.module.Fullname + "." + name,
		Decorators: decorators,
	}

	if superclasses := node.ChildByFieldName("superclasses"); superclasses != nil {
		for index := uint32(0); index < superclasses.NamedChildCount(); index++ {
			child := superclasses.NamedChild(int(index))
			if child.Type() == "keyword_argument" {
				argName := child.ChildByFieldName("name")
				argValue := child.ChildByFieldName("value")
				if argName != nil && argValue != nil && argName.Content(i.source) == "metaclass" {
					cls.MetaclassExpr = i.parseExpression(argValue)
				}
				continue
			}
			cls.BaseExprs = append(cls.BaseExprs, i.parseExpression(child))
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		fingerprint, err := syntax.Fingerprint([]byte(body.Content(i.source)))
		if err == nil {
			cls.BodyFingerprint = fingerprint
		}
		for index := uint32(0); index < body.NamedChildCount(); index++ {
			child := body.NamedChild(int(index))
			switch child.Type() {
			case "expression_statement":
				if stmt := i.parseExpressionStatement(child); stmt != nil {
					cls.Body = append(cls.Body, stmt)
				}
			case "decorated_definition":
				if stmt := i.parseDecorated(child); stmt != nil {
					cls.Body = append(cls.Body, stmt)
				}
			case "function_definition":
				cls.Body = append(cls.Body, i.parseFunction(child))
			default:
				cls.Body = append(cls.Body, &syntax.OpaqueStmt{Span: i.span(child), Source: child.Content(i.source)})
			}
		}
	}
	return cls
}

func (i *Inspector) parseExpression(node *sitter.Node) syntax.Expr {
	switch node.Type() {
	case "identifier":
		expr := syntax.NewNameExpr(node.Content(i.source), i.position(node))
		expr.Fullname = i.module.Imports[expr.Name]
		return expr
	case "attribute":
		object := node.ChildByFieldName("object")
		attribute := node.ChildByFieldName("attribute")
		if object == nil || attribute == nil {
			return &syntax.OpaqueExpr{Span: i.span(node), Source: node.Content(i.source)}
		}
		member := syntax.NewMemberExpr(i.parseExpression(object), attribute.Content(i.source), i.position(node))
		// a member of an imported module has an absolute identity
		if qualifier := syntax.RefFullname(member.X); qualifier != "" {
			member.Fullname = qualifier + "." + member.Name
		}
		return member
	case "call":
		return i.parseCall(node)
	case "string":
		return &syntax.StrExpr{Span: i.span(node), Value: stripQuotes(node.Content(i.source))}
	case "integer":
		value, err := strconv.ParseInt(node.Content(i.source), 0, 64)
		if err == nil {
			return &syntax.IntExpr{Span: i.span(node), Value: value}
		}
	case "true":
		return &syntax.BoolExpr{Span: i.span(node), Value: true}
	case "false":
		return &syntax.BoolExpr{Span: i.span(node), Value: false}
	case "list":
		list := &syntax.ListExpr{Span: i.span(node)}
		for index := uint32(0); index < node.NamedChildCount(); index++ {
			list.Items = append(list.Items, i.parseExpression(node.NamedChild(int(index))))
		}
		return list
	case "lambda":
		body := ""
		if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
			body = bodyNode.Content(i.source)
		}
		return &syntax.LambdaExpr{Span: i.span(node), BodySource: body}
	}
	return &syntax.OpaqueExpr{Span: i.span(node), Source: node.Content(i.source)}
}

func (i *Inspector) parseCall(node *sitter.Node) syntax.Expr {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		return &syntax.OpaqueExpr{Span: i.span(node), Source: node.Content(i.source)}
	}
	call := &syntax.CallExpr{
		Span:   i.span(node),
		Callee: i.parseExpression(callee),
	}
	if args := node.ChildByFieldName("arguments"); args != nil {
		for index := uint32(0); index < args.NamedChildCount(); index++ {
			child := args.NamedChild(int(index))
			if child.Type() == "keyword_argument" {
				name := child.ChildByFieldName("name")
				value := child.ChildByFieldName("value")
				if name == nil || value == nil {
					continue
				}
				call.Args = append(call.Args, i.parseExpression(value))
				call.ArgNames = append(call.ArgNames, name.Content(i.source))
				continue
			}
			call.Args = append(call.Args, i.parseExpression(child))
			call.ArgNames = append(call.ArgNames, "")
		}
	}
	return call
}

// parseAnnotation converts a type annotation into an unbound type tree;
// resolution against symbol tables happens later.
func (i *Inspector) parseAnnotation(node *sitter.Node) *syntax.UnboundType {
	if node.Type() == "type" && node.NamedChildCount() > 0 {
		return i.parseAnnotation(node.NamedChild(0))
	}
	switch node.Type() {
	case "identifier", "attribute", "none":
		return &syntax.UnboundType{Name: node.Content(i.source)}
	case "string":
		return &syntax.UnboundType{Name: stripQuotes(node.Content(i.source))}
	case "subscript":
		value := node.ChildByFieldName("value")
		if value == nil {
			return &syntax.UnboundType{Name: node.Content(i.source)}
		}
		unbound := &syntax.UnboundType{Name: value.Content(i.source)}
		for index := uint32(0); index < node.NamedChildCount(); index++ {
			child := node.NamedChild(int(index))
			if child.StartByte() == value.StartByte() {
				continue
			}
			unbound.Args = append(unbound.Args, i.parseAnnotation(child))
		}
		return unbound
	}
	return &syntax.UnboundType{Name: node.Content(i.source)}
}

func (i *Inspector) span(node *sitter.Node) syntax.Span {
	return syntax.Span{At: i.position(node)}
}

func (i *Inspector) position(node *sitter.Node) syntax.Position {
	point := node.StartPoint()
	return syntax.Position{Line: int(point.Row) + 1, Column: int(point.Column)}
}

func stripQuotes(value string) string {
	value = strings.TrimPrefix(value, "\"\"\"")
	value = strings.TrimSuffix(value, "\"\"\"")
	value = strings.Trim(value, "\"'")
	return value
}
