package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declmap/declmap/meta"
	"github.com/declmap/declmap/plugin"
	"github.com/declmap/declmap/syntax"
)

func TestHookSelectors(t *testing.T) {
	p := plugin.New(meta.NewStore())

	assert.NotNil(t, p.DynamicClassHookFor("sqlalchemy.orm.declarative_base"))
	assert.NotNil(t, p.DynamicClassHookFor("sqlalchemy.orm.decl_api.registry.generate_base"))
	assert.Nil(t, p.DynamicClassHookFor("sqlalchemy.orm.relationship"))

	assert.NotNil(t, p.MetaclassHookFor("sqlalchemy.orm.decl_api.DeclarativeMeta"))
	assert.Nil(t, p.MetaclassHookFor("builtins.type"))

	assert.NotNil(t, p.ClassDecoratorHookFor(nil, "sqlalchemy.orm.decl_api.registry.mapped"))
	assert.NotNil(t, p.ClassDecoratorHookFor(nil, "sqlalchemy.orm.decl_api.registry.as_declarative_base"))
	assert.NotNil(t, p.ClassDecoratorHookFor(nil, "sqlalchemy.orm.declarative_mixin"))
}

// A cyclic base chain must terminate the declarative walk, not recurse.
func TestIsDeclarative_CyclicBases(t *testing.T) {
	p := plugin.New(meta.NewStore())

	a := syntax.NewTypeInfo("A", "main.A", nil)
	b := syntax.NewTypeInfo("B", "main.B", nil)
	a.Bases = []*syntax.Instance{syntax.NewInstance(b)}
	b.Bases = []*syntax.Instance{syntax.NewInstance(a)}

	assert.False(t, p.IsDeclarative(a))
	assert.False(t, p.IsDeclarative(nil))
}

// Attribute access on the mapped descriptor keeps whatever type the host
// derived; narrowing here causes spurious missing-attribute reports.
func TestAttributeHookPassesDefaultThrough(t *testing.T) {
	p := plugin.New(meta.NewStore())

	hook := p.AttributeHookFor("sqlalchemy.orm.attributes.QueryableAttribute.__get__")
	require.NotNil(t, hook)

	defaultType := &syntax.AnyType{Source: syntax.AnyExplicit}
	got := hook(&plugin.AttributeContext{DefaultAttrType: defaultType})
	assert.Equal(t, syntax.Type(defaultType), got)

	assert.Nil(t, p.AttributeHookFor("sqlalchemy.orm.session.Session.query"))
}
