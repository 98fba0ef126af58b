package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/declmap/declmap/identity"
	"github.com/declmap/declmap/syntax"
)

func TestOf(t *testing.T) {
	tests := []struct {
		fullname string
		expect   identity.TypeID
	}{
		{"sqlalchemy.Column", identity.Column},
		{"sqlalchemy.sql.schema.Column", identity.Column},
		{"sqlalchemy.orm.relationship", identity.Relationship},
		{"sqlalchemy.orm.relationships.RelationshipProperty", identity.Relationship},
		{"sqlalchemy.orm.decl_api.registry", identity.RegistryType},
		{"sqlalchemy.orm.column_property", identity.ColumnProperty},
		{"sqlalchemy.orm.synonym", identity.SynonymProperty},
		{"sqlalchemy.orm.composite", identity.CompositeProperty},
		{"sqlalchemy.sql.type_api.TypeEngine", identity.TypeEngine},
		{"sqlalchemy.orm.attributes.Mapped", identity.Mapped},
		{"sqlalchemy.orm.declarative_base", identity.DeclarativeBase},
		{"sqlalchemy.orm.decl_api.registry.generate_base", identity.DeclarativeBase},
		{"sqlalchemy.orm.decl_api.DeclarativeMeta", identity.DeclarativeMeta},
		{"sqlalchemy.orm.decl_api.registry.mapped", identity.MappedDecorator},
		{"sqlalchemy.orm.as_declarative", identity.AsDeclarative},
		{"sqlalchemy.orm.decl_api.registry.as_declarative_base", identity.AsDeclarativeBase},
		{"sqlalchemy.orm.declared_attr", identity.DeclaredAttr},
		{"sqlalchemy.orm.declarative_mixin", identity.DeclarativeMixin},
		{"sqlalchemy.orm.Session", identity.None},
		{"", identity.None},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expect, identity.Of(tc.fullname), tc.fullname)
	}
}

func TestOfCallee(t *testing.T) {
	name := syntax.NewNameExpr("Column", syntax.Position{Line: 1})
	assert.Equal(t, identity.None, identity.OfCallee(name))

	name.Fullname = "sqlalchemy.Column"
	assert.Equal(t, identity.Column, identity.OfCallee(name))

	member := syntax.NewMemberExpr(syntax.NewNameExpr("reg", syntax.Position{}), "mapped", syntax.Position{})
	member.Fullname = "sqlalchemy.orm.decl_api.registry.mapped"
	assert.Equal(t, identity.MappedDecorator, identity.OfCallee(member))
}

func TestHasBase(t *testing.T) {
	engine := syntax.NewTypeInfo("TypeEngine", "sqlalchemy.sql.type_api.TypeEngine", nil)
	integer := syntax.NewTypeInfo("Integer", "sqlalchemy.sql.sqltypes.Integer", nil)
	integer.Bases = []*syntax.Instance{syntax.NewInstance(engine)}
	custom := syntax.NewTypeInfo("MyInteger", "app.MyInteger", nil)
	custom.Bases = []*syntax.Instance{syntax.NewInstance(integer)}
	plain := syntax.NewTypeInfo("Widget", "app.Widget", nil)

	assert.True(t, identity.HasBase(integer, identity.TypeEngine))
	assert.True(t, identity.HasBase(custom, identity.TypeEngine), "transitive subclass")
	assert.False(t, identity.HasBase(plain, identity.TypeEngine))
	assert.False(t, identity.HasBase(nil, identity.TypeEngine))
}

// The walk must terminate on a cyclic base chain.
func TestHasBase_CyclicBases(t *testing.T) {
	a := syntax.NewTypeInfo("A", "app.A", nil)
	b := syntax.NewTypeInfo("B", "app.B", nil)
	a.Bases = []*syntax.Instance{syntax.NewInstance(b)}
	b.Bases = []*syntax.Instance{syntax.NewInstance(a)}

	assert.False(t, identity.HasBase(a, identity.TypeEngine))
	assert.True(t, a.HasBase("app.B"))
	assert.False(t, a.HasBase("app.Widget"))
}
