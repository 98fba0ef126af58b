package syntax_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declmap/declmap/syntax"
)

func newClass(fullname string, bases ...*syntax.TypeInfo) *syntax.TypeInfo {
	info := syntax.NewTypeInfo(fullname, fullname, nil)
	for _, base := range bases {
		info.Bases = append(info.Bases, syntax.NewInstance(base))
	}
	return info
}

func mroNames(info *syntax.TypeInfo) []string {
	names := make([]string, 0, len(info.MRO))
	for _, member := range info.MRO {
		names = append(names, member.Fullname)
	}
	return names
}

func TestCalculateMRO_Diamond(t *testing.T) {
	object := newClass("object")
	a := newClass("a", object)
	b := newClass("b", a)
	c := newClass("c", a)
	d := newClass("d", b, c)

	require.NoError(t, syntax.CalculateMRO(d))
	assert.Equal(t, []string{"d", "b", "c", "a", "object"}, mroNames(d))
}

func TestCalculateMRO_LinearChain(t *testing.T) {
	object := newClass("object")
	base := newClass("base", object)
	leaf := newClass("leaf", base)

	require.NoError(t, syntax.CalculateMRO(leaf))
	assert.Equal(t, []string{"leaf", "base", "object"}, mroNames(leaf))
}

func TestCalculateMRO_InconsistentHierarchy(t *testing.T) {
	object := newClass("object")
	a := newClass("a", object)
	b := newClass("b", object)
	x := newClass("x", a, b)
	y := newClass("y", b, a)
	z := newClass("z", x, y)

	assert.Error(t, syntax.CalculateMRO(z))
}

func TestCalculateMRO_CyclicHierarchyFails(t *testing.T) {
	a := newClass("a")
	b := newClass("b", a)
	a.Bases = append(a.Bases, syntax.NewInstance(b))

	err := syntax.CalculateMRO(a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic inheritance")
}

func TestCalculateMRO_UnresolvedBaseIsSkipped(t *testing.T) {
	object := newClass("object")
	leaf := newClass("leaf", object)
	leaf.Bases = append(leaf.Bases, &syntax.Instance{})

	require.NoError(t, syntax.CalculateMRO(leaf))
	assert.Equal(t, []string{"leaf", "object"}, mroNames(leaf))
}
