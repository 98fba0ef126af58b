package syntax

// Position locates a node in its source file.
type Position struct {
	Line   int `yaml:"line"`
	Column int `yaml:"column"`
}

// Node is implemented by every syntax element that carries a source position.
type Node interface {
	Pos() Position
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Statement is a statement node appearing in a module or class body.
type Statement interface {
	Node
	stmtNode()
}

// Span anchors a node at its source position.
type Span struct {
	At Position
}

// Pos returns the node's source position.
func (s Span) Pos() Position { return s.At }

// NameExpr is a plain name reference. Fullname is populated once the name has
// been resolved to a module-level or imported symbol; unresolved names keep
// an empty Fullname.
type NameExpr struct {
	Span
	Name     string
	Fullname string
	Node     SymbolNode
}

func (e *NameExpr) exprNode() {}

// NewNameExpr creates a NameExpr at the given position.
func NewNameExpr(name string, pos Position) *NameExpr {
	return &NameExpr{Span: Span{At: pos}, Name: name}
}

// MemberExpr is an attribute access such as reg.mapped. Fullname is empty
// until the owning object's type has been resolved.
type MemberExpr struct {
	Span
	X        Expr
	Name     string
	Fullname string
}

func (e *MemberExpr) exprNode() {}

// NewMemberExpr creates a MemberExpr at the given position.
func NewMemberExpr(x Expr, name string, pos Position) *MemberExpr {
	return &MemberExpr{Span: Span{At: pos}, X: x, Name: name}
}

// RefFullname returns the resolved fullname of a name or member expression,
// or an empty string for any other expression kind.
func RefFullname(e Expr) string {
	switch ref := e.(type) {
	case *NameExpr:
		return ref.Fullname
	case *MemberExpr:
		return ref.Fullname
	}
	return ""
}

// CallExpr is a call. ArgNames holds the keyword for each argument, with an
// empty string marking a positional argument.
type CallExpr struct {
	Span
	Callee   Expr
	Args     []Expr
	ArgNames []string
}

func (e *CallExpr) exprNode() {}

// KeywordArg returns the value passed for the given keyword, or nil.
func (e *CallExpr) KeywordArg(name string) Expr {
	for i, argName := range e.ArgNames {
		if argName == name {
			return e.Args[i]
		}
	}
	return nil
}

// PositionalArgs returns the positional arguments in order.
func (e *CallExpr) PositionalArgs() []Expr {
	var args []Expr
	for i, argName := range e.ArgNames {
		if argName == "" {
			args = append(args, e.Args[i])
		}
	}
	return args
}

// StrExpr is a string literal.
type StrExpr struct {
	Span
	Value string
}

func (e *StrExpr) exprNode() {}

// IntExpr is an integer literal.
type IntExpr struct {
	Span
	Value int64
}

func (e *IntExpr) exprNode() {}

// BoolExpr is a True or False literal.
type BoolExpr struct {
	Span
	Value bool
}

func (e *BoolExpr) exprNode() {}

// ListExpr is a list display such as ["a", "b"].
type ListExpr struct {
	Span
	Items []Expr
}

func (e *ListExpr) exprNode() {}

// LambdaExpr is a zero-argument lambda. The rewriter synthesizes these to
// wrap a decorated function body so its source remains attached to the
// replacement assignment.
type LambdaExpr struct {
	Span
	BodySource string
}

func (e *LambdaExpr) exprNode() {}

// OpaqueExpr preserves the source text of an expression form the scanner has
// no interest in.
type OpaqueExpr struct {
	Span
	Source string
}

func (e *OpaqueExpr) exprNode() {}

// AssignmentStmt is an assignment or a bare annotated declaration. Rvalue is
// nil for annotation-only declarations such as `id: Mapped[int]`.
// InferredType is set by the rewriter once an exposed type has been applied.
type AssignmentStmt struct {
	Span
	Lvalues      []Expr
	Rvalue       Expr
	Annotation   Type
	InferredType Type
}

func (s *AssignmentStmt) stmtNode() {}

// NewAssignmentStmt creates an assignment at the given position.
func NewAssignmentStmt(lvalues []Expr, rvalue Expr, pos Position) *AssignmentStmt {
	return &AssignmentStmt{Span: Span{At: pos}, Lvalues: lvalues, Rvalue: rvalue}
}

// FuncDef is a function or method definition. Only the pieces the scanner
// needs are modelled: the signature annotation and the body source text.
type FuncDef struct {
	Span
	Name       string
	Fullname   string
	Params     []string
	ReturnType *UnboundType
	BodySource string
}

func (f *FuncDef) stmtNode()           {}
func (f *FuncDef) SymName() string     { return f.Name }
func (f *FuncDef) SymFullname() string { return f.Fullname }

// Decorator is a decorated function definition inside a class body, together
// with the implicit variable the decorated name binds to.
type Decorator struct {
	Span
	Func       *FuncDef
	Decorators []Expr
	Var        *Var
}

func (d *Decorator) stmtNode() {}

// OpaqueStmt preserves a statement the scanner does not model, so class body
// indices stay stable when statements around it are replaced.
type OpaqueStmt struct {
	Span
	Source string
}

func (s *OpaqueStmt) stmtNode() {}

// ClassDef is a class definition and the unit every scan operates on.
type ClassDef struct {
	Span
	Name          string
	Fullname      string
	BaseExprs     []Expr
	MetaclassExpr Expr
	Decorators    []Expr
	Body          []Statement
	Info          *TypeInfo
	// BodyFingerprint hashes the class body source text; stored metadata
	// carries it so replay can reject stale cache entries.
	BodyFingerprint uint64
}

func (c *ClassDef) stmtNode() {}

// Module is a parsed source file: its statements, its class definitions and
// the alias map derived from import statements.
type Module struct {
	Fullname string
	Path     string
	Names    SymbolTable
	Defs     []Statement
	Imports  map[string]string
}

// Classes returns the top-level class definitions in declaration order.
func (m *Module) Classes() []*ClassDef {
	var classes []*ClassDef
	for _, def := range m.Defs {
		if cls, ok := def.(*ClassDef); ok {
			classes = append(classes, cls)
		}
	}
	return classes
}
