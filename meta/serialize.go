package meta

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/declmap/declmap/api"
	"github.com/declmap/declmap/syntax"
)

// typeRepr is the serialized form of a checker type. Nested representations
// keep unions and generics intact without parsing rendered type strings.
type typeRepr struct {
	Kind string     `yaml:"kind"`
	Name string     `yaml:"name,omitempty"`
	Args []typeRepr `yaml:"args,omitempty"`
}

type attrRepr struct {
	Name   string   `yaml:"name"`
	Line   int      `yaml:"line"`
	Column int      `yaml:"column"`
	Type   typeRepr `yaml:"type"`
}

type classRepr struct {
	IsBase          bool       `yaml:"isBase"`
	IsMapped        bool       `yaml:"isMapped"`
	HasTable        bool       `yaml:"hasTable"`
	Attributes      []attrRepr `yaml:"attributes,omitempty"`
	MappedAncestors []string   `yaml:"mappedAncestors,omitempty"`
	Fingerprint     uint64     `yaml:"fingerprint,omitempty"`
}

func encodeType(t syntax.Type) typeRepr {
	switch typ := t.(type) {
	case *syntax.Instance:
		repr := typeRepr{Kind: "instance", Name: typ.Info.Fullname}
		for _, arg := range typ.Args {
			repr.Args = append(repr.Args, encodeType(arg))
		}
		return repr
	case *syntax.UnionType:
		repr := typeRepr{Kind: "union"}
		for _, item := range typ.Items {
			repr.Args = append(repr.Args, encodeType(item))
		}
		return repr
	case *syntax.UnboundType:
		repr := typeRepr{Kind: "unbound", Name: typ.Name}
		for _, arg := range typ.Args {
			repr.Args = append(repr.Args, encodeType(arg))
		}
		return repr
	case *syntax.NoneType:
		return typeRepr{Kind: "none"}
	default:
		return typeRepr{Kind: "any"}
	}
}

func decodeType(repr typeRepr, a api.SemanticAnalyzer) syntax.Type {
	args := make([]syntax.Type, 0, len(repr.Args))
	for _, arg := range repr.Args {
		args = append(args, decodeType(arg, a))
	}
	switch repr.Kind {
	case "instance":
		if sym := a.LookupFullyQualified(repr.Name); sym != nil {
			if info, ok := sym.Node.(*syntax.TypeInfo); ok {
				return syntax.NewInstance(info, args...)
			}
		}
		// keep the reference alive even when the defining module is not
		// loaded; an unbound type round-trips back to the same name
		return &syntax.UnboundType{Name: repr.Name, Args: args}
	case "union":
		return &syntax.UnionType{Items: args}
	case "unbound":
		return &syntax.UnboundType{Name: repr.Name, Args: args}
	case "none":
		return &syntax.NoneType{}
	default:
		return &syntax.AnyType{Source: syntax.AnyFromError}
	}
}

// Serialize renders the metadata to its persisted YAML form.
func (m *ClassMetadata) Serialize() ([]byte, error) {
	repr := classRepr{
		IsBase:      m.IsBase,
		IsMapped:    m.IsMapped,
		HasTable:    m.HasTable,
		Fingerprint: m.Fingerprint,
	}
	for _, attr := range m.Attributes {
		repr.Attributes = append(repr.Attributes, attrRepr{
			Name:   attr.Name,
			Line:   attr.Line,
			Column: attr.Column,
			Type:   encodeType(attr.Type),
		})
	}
	for _, ancestor := range m.MappedAncestors {
		repr.MappedAncestors = append(repr.MappedAncestors, ancestor.Info.Fullname)
	}
	return yaml.Marshal(repr)
}

// Deserialize rebuilds metadata from its persisted form, resolving type and
// ancestor references through the analyzer.
func Deserialize(data []byte, a api.SemanticAnalyzer) (*ClassMetadata, error) {
	var repr classRepr
	if err := yaml.Unmarshal(data, &repr); err != nil {
		return nil, fmt.Errorf("failed to decode class metadata: %w", err)
	}
	md := &ClassMetadata{
		IsBase:      repr.IsBase,
		IsMapped:    repr.IsMapped,
		HasTable:    repr.HasTable,
		Fingerprint: repr.Fingerprint,
	}
	for _, attr := range repr.Attributes {
		md.Attributes = append(md.Attributes, &AttributeRecord{
			Name:   attr.Name,
			Line:   attr.Line,
			Column: attr.Column,
			Type:   decodeType(attr.Type, a),
		})
	}
	for _, fullname := range repr.MappedAncestors {
		sym := a.LookupFullyQualified(fullname)
		if sym == nil {
			return nil, fmt.Errorf("mapped ancestor %s is not resolved", fullname)
		}
		info, ok := sym.Node.(*syntax.TypeInfo)
		if !ok {
			return nil, fmt.Errorf("mapped ancestor %s is not a class", fullname)
		}
		md.MappedAncestors = append(md.MappedAncestors, syntax.NewInstance(info))
	}
	return md, nil
}
