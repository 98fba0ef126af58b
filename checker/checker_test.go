package checker_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declmap/declmap/api"
	"github.com/declmap/declmap/checker"
	"github.com/declmap/declmap/syntax"
)

func TestChecker_CheckSource(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		attributes  map[string]map[string]string
		diagnostics []string
		isBase      map[string]bool
		isMapped    map[string]bool
		hasTable    map[string]bool
		unmapped    []string
	}{
		{
			name: "column types from engines",
			source: `
from sqlalchemy import Column, Integer, String
from sqlalchemy.orm import declarative_base

Base = declarative_base()

class User(Base):
    __tablename__ = "user"
    id = Column(Integer, primary_key=True)
    name = Column(String)
`,
			attributes: map[string]map[string]string{
				"main.User": {
					"id":   "builtins.int",
					"name": "Union[builtins.str, None]",
				},
			},
			hasTable: map[string]bool{"main.User": true},
			isMapped: map[string]bool{"main.User": true},
		},
		{
			name: "nullable keyword controls optionality",
			source: `
from sqlalchemy import Column, DateTime, Float
from sqlalchemy.orm import declarative_base

Base = declarative_base()

class Reading(Base):
    taken_at = Column(DateTime, nullable=False)
    value = Column(Float(precision=10))
`,
			attributes: map[string]map[string]string{
				"main.Reading": {
					"taken_at": "datetime.datetime",
					"value":    "Union[builtins.float, None]",
				},
			},
		},
		{
			name: "explicit left hand annotation wins",
			source: `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import Mapped, declarative_base

Base = declarative_base()

class User(Base):
    id: Mapped[int] = Column(Integer, primary_key=True)
    nickname: Mapped[str]
`,
			attributes: map[string]map[string]string{
				"main.User": {
					"id":       "builtins.int",
					"nickname": "builtins.str",
				},
			},
		},
		{
			name: "relationship scalar and collection",
			source: `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import declarative_base, relationship

Base = declarative_base()

class User(Base):
    id = Column(Integer, primary_key=True)
    addresses = relationship("Address", uselist=True)
    office = relationship("Address")
    teams = relationship("Team", secondary="user_team")

class Address(Base):
    id = Column(Integer, primary_key=True)

class Team(Base):
    id = Column(Integer, primary_key=True)
`,
			attributes: map[string]map[string]string{
				"main.User": {
					"id":        "builtins.int",
					"addresses": "builtins.list[main.Address]",
					"office":    "Union[main.Address, None]",
					"teams":     "builtins.list[main.Team]",
				},
			},
		},
		{
			name: "declared attr with column return type",
			source: `
from sqlalchemy import Column, DateTime, Integer
from sqlalchemy.orm import declarative_base, declared_attr

Base = declarative_base()

class User(Base):
    id = Column(Integer, primary_key=True)

    @declared_attr
    def created_at(cls) -> Column[DateTime]:
        return Column(DateTime)
`,
			attributes: map[string]map[string]string{
				"main.User": {
					"id":         "builtins.int",
					"created_at": "Union[datetime.datetime, None]",
				},
			},
		},
		{
			name: "declared attr without return type",
			source: `
from sqlalchemy import Column, DateTime
from sqlalchemy.orm import declarative_base, declared_attr

Base = declarative_base()

class User(Base):
    @declared_attr
    def created_at(cls):
        return Column(DateTime)
`,
			attributes: map[string]map[string]string{
				"main.User": {"created_at": "Any"},
			},
			diagnostics: []string{
				"Can't infer type from @declared_attr on function 'created_at';  " +
					"please specify a return type from this function that is " +
					"one of: Mapped[<python type>], relationship[<target class>], " +
					"Column[<TypeEngine>], MapperProperty[<python type>]",
			},
		},
		{
			name: "declared attr with non engine column type",
			source: `
from sqlalchemy import Column
from sqlalchemy.orm import declarative_base, declared_attr

Base = declarative_base()

class Widget:
    pass

class User(Base):
    @declared_attr
    def extra(cls) -> Column[Widget]:
        ...
`,
			attributes: map[string]map[string]string{
				"main.User": {"extra": "Any"},
			},
			diagnostics: []string{
				"Column type should be a TypeEngine subclass not 'main.Widget'",
				"Can't infer type from @declared_attr on function 'extra';  " +
					"please specify a return type from this function that is " +
					"one of: Mapped[<python type>], relationship[<target class>], " +
					"Column[<TypeEngine>], MapperProperty[<python type>]",
			},
		},
		{
			name: "declarative mixin",
			source: `
from sqlalchemy import Column, Integer, String
from sqlalchemy.orm import declarative_base, declarative_mixin

Base = declarative_base()

@declarative_mixin
class HasName:
    name = Column(String)

class User(HasName, Base):
    id = Column(Integer, primary_key=True)
`,
			attributes: map[string]map[string]string{
				"main.HasName": {"name": "Union[builtins.str, None]"},
				"main.User":    {"id": "builtins.int"},
			},
			isBase:   map[string]bool{"main.HasName": true},
			isMapped: map[string]bool{"main.HasName": false, "main.User": true},
		},
		{
			name: "abstract class is not mapped",
			source: `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import declarative_base

Base = declarative_base()

class AbstractUser(Base):
    __abstract__ = True
    id = Column(Integer, primary_key=True)
`,
			attributes: map[string]map[string]string{
				"main.AbstractUser": {"id": "builtins.int"},
			},
			isMapped: map[string]bool{"main.AbstractUser": false},
		},
		{
			name: "mapped attrs allow list",
			source: `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import declarative_base

Base = declarative_base()

class User(Base):
    _mypy_mapped_attrs = ["id", "missing"]
    id: int
`,
			attributes: map[string]map[string]string{
				"main.User": {"id": "builtins.int"},
			},
			diagnostics: []string{"Can't find mapped attribute 'missing'"},
		},
		{
			name: "mapped attrs must be a list",
			source: `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import declarative_base

Base = declarative_base()

class User(Base):
    _mypy_mapped_attrs = 42
    id = Column(Integer, primary_key=True)
`,
			attributes: map[string]map[string]string{
				"main.User": {"id": "builtins.int"},
			},
			diagnostics: []string{"_mypy_mapped_attrs is expected to be a list"},
		},
		{
			name: "registry mapped decorator",
			source: `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import registry

reg: registry = registry()

@reg.mapped
class User:
    id = Column(Integer, primary_key=True)
`,
			attributes: map[string]map[string]string{
				"main.User": {"id": "builtins.int"},
			},
			isMapped: map[string]bool{"main.User": true},
		},
		{
			name: "unannotated registry decorator",
			source: `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import registry

reg = registry()

@reg.mapped
class User:
    id = Column(Integer, primary_key=True)
`,
			unmapped: []string{"main.User"},
			diagnostics: []string{
				"Class decorator called mapped(), but we can't tell if it's " +
					"from an ORM registry.  Please annotate the registry " +
					"assignment, e.g. my_registry: registry = registry()",
			},
		},
		{
			name: "registry generate base",
			source: `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import registry

reg: registry = registry()
Base = reg.generate_base()

class User(Base):
    id = Column(Integer, primary_key=True)
`,
			attributes: map[string]map[string]string{
				"main.User": {"id": "builtins.int"},
			},
		},
		{
			name: "declarative base with explicit cls",
			source: `
from sqlalchemy import Column, Integer, String
from sqlalchemy.orm import declarative_base

class Core:
    id = Column(Integer, primary_key=True)

Base = declarative_base(cls=Core)

class User(Base):
    name = Column(String)
`,
			attributes: map[string]map[string]string{
				"main.Core": {"id": "builtins.int"},
				"main.User": {"name": "Union[builtins.str, None]"},
			},
			isBase: map[string]bool{"main.Core": true, "main.Base": true},
		},
		{
			name: "declarative metaclass",
			source: `
from sqlalchemy import Column, Integer
from sqlalchemy.orm.decl_api import DeclarativeMeta

class Base(metaclass=DeclarativeMeta):
    pass

class User(Base):
    id = Column(Integer, primary_key=True)
`,
			attributes: map[string]map[string]string{
				"main.User": {"id": "builtins.int"},
			},
			isBase: map[string]bool{"main.Base": true},
		},
		{
			name: "as_declarative decorator",
			source: `
from sqlalchemy import Column, Integer, String
from sqlalchemy.orm import as_declarative

@as_declarative()
class Base:
    id = Column(Integer, primary_key=True)

class User(Base):
    name = Column(String)
`,
			attributes: map[string]map[string]string{
				"main.Base": {"id": "builtins.int"},
				"main.User": {"name": "Union[builtins.str, None]"},
			},
			isBase: map[string]bool{"main.Base": true},
		},
		{
			name: "composite column_property and synonym",
			source: `
from sqlalchemy import Column, Integer, String
from sqlalchemy.orm import Mapped, column_property, composite, declarative_base, synonym

Base = declarative_base()

class Point:
    pass

class Vertex(Base):
    id = Column(Integer, primary_key=True)
    x1 = Column(Integer)
    y1 = Column(Integer)
    start = composite(Point, x1, y1)
    double_x = column_property(Column(Integer))
    name = Column(String)
    name_syn: Mapped[str] = synonym("name")
`,
			attributes: map[string]map[string]string{
				"main.Vertex": {
					"id":       "builtins.int",
					"x1":       "Union[builtins.int, None]",
					"y1":       "Union[builtins.int, None]",
					"start":    "main.Point",
					"double_x": "Union[builtins.int, None]",
					"name":     "Union[builtins.str, None]",
					"name_syn": "builtins.str",
				},
			},
		},
		{
			name: "synonym requires an annotation",
			source: `
from sqlalchemy import Column, String
from sqlalchemy.orm import declarative_base, synonym

Base = declarative_base()

class User(Base):
    name = Column(String)
    name_syn = synonym("name")
`,
			attributes: map[string]map[string]string{
				"main.User": {
					"name":     "Union[builtins.str, None]",
					"name_syn": "Any",
				},
			},
			diagnostics: []string{
				"Can't infer type from ORM mapped expression assigned to " +
					"attribute 'name_syn'; please specify a Python type or " +
					"Mapped[<python type>] on the left hand side",
			},
		},
		{
			name: "column without engine argument",
			source: `
from sqlalchemy import Column, ForeignKey
from sqlalchemy.orm import declarative_base

Base = declarative_base()

class User(Base):
    parent_id = Column(ForeignKey("user.id"))
`,
			attributes: map[string]map[string]string{
				"main.User": {"parent_id": "Any"},
			},
			diagnostics: []string{
				"Can't infer type from ORM mapped expression assigned to " +
					"attribute 'parent_id'; please specify a Python type or " +
					"Mapped[<python type>] on the left hand side",
			},
		},
		{
			name: "plain class stays untouched",
			source: `
from sqlalchemy import Column, Integer

class Config:
    retries = Column(Integer)
`,
			unmapped: []string{"main.Config"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := checker.New(nil)
			diagnostics, err := c.CheckSource([]byte(tc.source), "main")
			require.NoError(t, err)

			var messages []string
			for _, diagnostic := range diagnostics {
				messages = append(messages, diagnostic.Message)
			}
			assert.Equal(t, tc.diagnostics, messages)

			store := c.Plugin().Store()
			for fullname, want := range tc.attributes {
				md := store.Lookup(fullname)
				require.NotNil(t, md, fullname)
				got := map[string]string{}
				for _, attr := range md.Attributes {
					got[attr.Name] = attr.Type.String()
				}
				assert.Equal(t, want, got, fullname)
			}
			for fullname, want := range tc.isBase {
				md := store.Lookup(fullname)
				require.NotNil(t, md, fullname)
				assert.Equal(t, want, md.IsBase, fullname)
			}
			for fullname, want := range tc.isMapped {
				md := store.Lookup(fullname)
				require.NotNil(t, md, fullname)
				assert.Equal(t, want, md.IsMapped, fullname)
			}
			for fullname, want := range tc.hasTable {
				md := store.Lookup(fullname)
				require.NotNil(t, md, fullname)
				assert.Equal(t, want, md.HasTable, fullname)
			}
			for _, fullname := range tc.unmapped {
				assert.Nil(t, store.Lookup(fullname), fullname)
			}
		})
	}
}

func TestChecker_UnresolvedRelationshipLeavesNoMetadata(t *testing.T) {
	source := `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import declarative_base, relationship

Base = declarative_base()

class User(Base):
    id = Column(Integer, primary_key=True)
    addresses = relationship("Missing")
`
	c := checker.New(nil)
	_, err := c.CheckSource([]byte(source), "main")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNotReady)
	assert.Nil(t, c.Plugin().Store().Lookup("main.User"))
}

func TestChecker_DeclaredAttrIsRewritten(t *testing.T) {
	source := `
from sqlalchemy import Column, DateTime
from sqlalchemy.orm import declarative_base, declared_attr

Base = declarative_base()

class User(Base):

    @declared_attr
    def created_at(cls) -> Column[DateTime]:
        return Column(DateTime)
`
	c := checker.New(nil)
	_, err := c.CheckSource([]byte(source), "main")
	require.NoError(t, err)

	classes := c.Modules()[0].Classes()
	require.Len(t, classes, 1)
	user := classes[0]

	var replacement *syntax.AssignmentStmt
	for _, stmt := range user.Body {
		if assign, ok := stmt.(*syntax.AssignmentStmt); ok {
			replacement = assign
		}
	}
	require.NotNil(t, replacement, "decorated statement was not replaced")

	lvalue, ok := replacement.Lvalues[0].(*syntax.NameExpr)
	require.True(t, ok)
	assert.Equal(t, "created_at", lvalue.Name)
	assert.Equal(t, "sqlalchemy.orm.attributes.Mapped[Union[datetime.datetime, None]]",
		replacement.InferredType.String())

	call, ok := replacement.Rvalue.(*syntax.CallExpr)
	require.True(t, ok)
	callee, ok := call.Callee.(*syntax.MemberExpr)
	require.True(t, ok)
	assert.Equal(t, "_empty_constructor", callee.Name)
	require.Len(t, call.Args, 1)
	_, isLambda := call.Args[0].(*syntax.LambdaExpr)
	assert.True(t, isLambda)
}

func TestChecker_InheritedAttributesAreVisible(t *testing.T) {
	source := `
from sqlalchemy import Column, Integer, String
from sqlalchemy.orm import declarative_base, declarative_mixin

Base = declarative_base()

@declarative_mixin
class HasName:
    name = Column(String)

class User(HasName, Base):
    id = Column(Integer, primary_key=True)
`
	c := checker.New(nil)
	_, err := c.CheckSource([]byte(source), "main")
	require.NoError(t, err)

	md := c.Plugin().Store().Lookup("main.User")
	require.NotNil(t, md)
	var ancestors []string
	for _, ancestor := range md.MappedAncestors {
		ancestors = append(ancestors, ancestor.Info.Fullname)
	}
	assert.Contains(t, ancestors, "main.HasName")

	classes := c.Modules()[0].Classes()
	user := classes[len(classes)-1]
	sym := user.Info.Names.Get("name")
	require.NotNil(t, sym, "mixin attribute not propagated")
	v, ok := sym.Node.(*syntax.Var)
	require.True(t, ok)
	assert.Equal(t, "sqlalchemy.orm.attributes.Mapped[Union[builtins.str, None]]", v.Type.String())
}

func TestChecker_CheckLocation(t *testing.T) {
	dir := t.TempDir()
	base := `
from sqlalchemy.orm import declarative_base

Base = declarative_base()
`
	models := `
from sqlalchemy import Column, Integer
from base import Base

class User(Base):
    id = Column(Integer, primary_key=True)
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.py"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models.py"), []byte(models), 0o644))

	c := checker.New(nil)
	diagnostics, err := c.CheckLocation(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, diagnostics)

	md := c.Plugin().Store().Lookup("models.User")
	require.NotNil(t, md)
	require.Len(t, md.Attributes, 1)
	assert.Equal(t, "id", md.Attributes[0].Name)
	assert.Equal(t, "builtins.int", md.Attributes[0].Type.String())
}

// A class naming itself among its bases, directly or through another class,
// must surface as a diagnostic; the base walks must terminate regardless.
func TestChecker_CyclicBasesAreReported(t *testing.T) {
	source := `
class A(A):
    pass

class B(C):
    pass

class C(B):
    pass
`
	c := checker.New(nil)
	diagnostics, err := c.CheckSource([]byte(source), "main")
	require.NoError(t, err)

	var messages []string
	for _, d := range diagnostics {
		messages = append(messages, d.Message)
	}
	assert.Equal(t, []string{
		"Cycle in inheritance hierarchy",
		"Cycle in inheritance hierarchy",
	}, messages)

	classes := c.Modules()[0].Classes()
	require.Len(t, classes, 3)
	a := classes[0]
	require.Len(t, a.Info.Bases, 1)
	assert.Equal(t, "builtins.object", a.Info.Bases[0].Info.Fullname)
}

func TestChecker_MROFailureDegradesBaseToPermissive(t *testing.T) {
	source := `
from sqlalchemy import Column, Integer
from sqlalchemy.orm import declarative_base

class A:
    pass

class B:
    pass

class X(A, B):
    pass

class Y(B, A):
    pass

class Core(X, Y):
    pass

Base = declarative_base(cls=Core)

class User(Base):
    id = Column(Integer, primary_key=True)
`
	c := checker.New(nil)
	diagnostics, err := c.CheckSource([]byte(source), "main")
	require.NoError(t, err)

	require.Len(t, diagnostics, 1)
	assert.Equal(t, "Not able to calculate MRO for declarative base", diagnostics[0].Message)

	sym := c.Analyzer(c.Modules()[0]).LookupFullyQualified("main.Base")
	require.NotNil(t, sym)
	info, ok := sym.Node.(*syntax.TypeInfo)
	require.True(t, ok)
	assert.True(t, info.FallbackToAny)
	require.Len(t, info.Bases, 1)
	assert.Equal(t, "builtins.object", info.Bases[0].Info.Fullname)

	// subclasses of the degraded base still map
	md := c.Plugin().Store().Lookup("main.User")
	require.NotNil(t, md)
	assert.True(t, md.IsMapped)
	require.Len(t, md.Attributes, 1)
	assert.Equal(t, "id", md.Attributes[0].Name)
}
