package syntax

// SymbolKind distinguishes where a symbol was defined.
type SymbolKind int

const (
	// GDEF marks a module-level (global) definition.
	GDEF SymbolKind = iota
	// MDEF marks a class-member definition.
	MDEF
)

// SymbolNode is any named definition a symbol table can hold.
type SymbolNode interface {
	SymName() string
	SymFullname() string
}

// SymbolTableNode wraps a definition together with its scope kind.
type SymbolTableNode struct {
	Kind SymbolKind
	Node SymbolNode
}

// SymbolTable maps a name to its definition within one scope.
type SymbolTable map[string]*SymbolTableNode

// Get returns the node registered under name, or nil.
func (t SymbolTable) Get(name string) *SymbolTableNode {
	return t[name]
}

// Put registers a definition under name.
func (t SymbolTable) Put(name string, kind SymbolKind, node SymbolNode) {
	t[name] = &SymbolTableNode{Kind: kind, Node: node}
}

// Var is a variable definition. IsInferred reports that no explicit
// annotation was given; Type then holds whatever the checker derived, if
// anything.
type Var struct {
	Name       string
	Fullname   string
	Type       Type
	IsInferred bool
	IsClassVar bool
}

func (v *Var) SymName() string     { return v.Name }
func (v *Var) SymFullname() string { return v.Fullname }

// PlaceholderNode stands in for a definition the checker has not resolved
// yet, typically a forward reference awaiting a later analysis pass.
type PlaceholderNode struct {
	Name     string
	Fullname string
}

func (p *PlaceholderNode) SymName() string     { return p.Name }
func (p *PlaceholderNode) SymFullname() string { return p.Fullname }

// TypeInfo is the semantic record of a class: its bases, resolved method
// resolution order and member symbol table.
type TypeInfo struct {
	Name              string
	Fullname          string
	Defn              *ClassDef
	Bases             []*Instance
	MRO               []*TypeInfo
	Names             SymbolTable
	DeclaredMetaclass *Instance
	// FallbackToAny makes the class accept any attribute; the dispatcher
	// degrades a synthesized base to this when its MRO cannot be computed.
	FallbackToAny bool
	// TypeVarArity is the number of type parameters a generic stub accepts.
	TypeVarArity int
}

func (t *TypeInfo) SymName() string     { return t.Name }
func (t *TypeInfo) SymFullname() string { return t.Fullname }

// NewTypeInfo creates a TypeInfo with an empty member table, linking it to
// its class definition when one is given.
func NewTypeInfo(name, fullname string, defn *ClassDef) *TypeInfo {
	info := &TypeInfo{Name: name, Fullname: fullname, Defn: defn, Names: SymbolTable{}}
	if defn != nil {
		defn.Info = info
	}
	return info
}

// HasBase reports whether fullname names this class or any ancestor,
// following declared bases transitively. A malformed cyclic hierarchy
// terminates with false rather than recursing.
func (t *TypeInfo) HasBase(fullname string) bool {
	return t.hasBase(fullname, map[*TypeInfo]bool{})
}

func (t *TypeInfo) hasBase(fullname string, seen map[*TypeInfo]bool) bool {
	if seen[t] {
		return false
	}
	seen[t] = true
	if t.Fullname == fullname {
		return true
	}
	for _, base := range t.Bases {
		if base.Info != nil && base.Info.hasBase(fullname, seen) {
			return true
		}
	}
	return false
}
