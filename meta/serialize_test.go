package meta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declmap/declmap/checker"
	"github.com/declmap/declmap/meta"
	"github.com/declmap/declmap/syntax"
)

func TestClassMetadata_SerializeRoundTrip(t *testing.T) {
	source := `
from sqlalchemy import Column, Integer, String
from sqlalchemy.orm import declarative_base, relationship

Base = declarative_base()

class User(Base):
    __tablename__ = "user"
    id = Column(Integer, primary_key=True)
    name = Column(String)
    addresses = relationship("Address", uselist=True)

class Address(Base):
    id = Column(Integer, primary_key=True)
`
	c := checker.New(nil)
	_, err := c.CheckSource([]byte(source), "main")
	require.NoError(t, err)

	md := c.Plugin().Store().Lookup("main.User")
	require.NotNil(t, md)

	data, err := md.Serialize()
	require.NoError(t, err)

	restored, err := meta.Deserialize(data, c.Analyzer(c.Modules()[0]))
	require.NoError(t, err)

	assert.Equal(t, md.IsBase, restored.IsBase)
	assert.Equal(t, md.IsMapped, restored.IsMapped)
	assert.Equal(t, md.HasTable, restored.HasTable)
	assert.Equal(t, md.Fingerprint, restored.Fingerprint)
	assert.Equal(t, md.AttributeNames(), restored.AttributeNames())

	require.Len(t, restored.Attributes, len(md.Attributes))
	for index, attr := range md.Attributes {
		assert.Equal(t, attr.Type.String(), restored.Attributes[index].Type.String(), attr.Name)
		assert.Equal(t, attr.Line, restored.Attributes[index].Line)
	}

	require.Len(t, restored.MappedAncestors, len(md.MappedAncestors))
	for index, ancestor := range md.MappedAncestors {
		assert.Equal(t, ancestor.Info.Fullname, restored.MappedAncestors[index].Info.Fullname)
	}
}

// A type whose defining module is not loaded round-trips as an unbound
// reference instead of failing.
func TestDeserialize_UnknownInstanceStaysUnbound(t *testing.T) {
	orphan := syntax.NewTypeInfo("Thing", "other.Thing", nil)
	md := &meta.ClassMetadata{
		IsMapped: true,
		Attributes: []*meta.AttributeRecord{
			{Name: "thing", Type: syntax.NewInstance(orphan)},
		},
	}
	data, err := md.Serialize()
	require.NoError(t, err)

	c := checker.New(nil)
	module, err := c.AddSource([]byte("x = 1\n"), "main")
	require.NoError(t, err)

	restored, err := meta.Deserialize(data, c.Analyzer(module))
	require.NoError(t, err)
	require.Len(t, restored.Attributes, 1)
	unbound, ok := restored.Attributes[0].Type.(*syntax.UnboundType)
	require.True(t, ok)
	assert.Equal(t, "other.Thing", unbound.Name)
}
