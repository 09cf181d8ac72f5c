package blackboard

import (
	"encoding/binary"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDeclarations returns a two-level hierarchy covering every key type.
//
// Expected layout (bytes):
//
//	 0 position  vector3   (base)
//	12 facing    quaternion
//	24 health    float     (base)
//	28 ammo      int
//	32 target    object
//	36 alive     bool      (base)
//	37 stance    enum8
func testDeclarations() (base, soldier *SchemaDeclaration) {
	base = &SchemaDeclaration{
		Name: "base",
		Keys: []KeyDeclaration{
			{Name: "health", Type: KeyTypeFloat, Default: float32(100)},
			{Name: "alive", Type: KeyTypeBool, Default: true},
			{Name: "position", Type: KeyTypeVector3, Default: Vector3{1, 2, 3}},
		},
	}
	soldier = &SchemaDeclaration{
		Name:   "soldier",
		Parent: base,
		Keys: []KeyDeclaration{
			{Name: "ammo", Type: KeyTypeInt, Default: int32(30), Traits: TraitNotifyOnUnexpectedChange},
			{Name: "stance", Type: KeyTypeEnum8, Default: uint8(2)},
			{Name: "facing", Type: KeyTypeQuaternion},
			{Name: "target", Type: KeyTypeObjectRef},
		},
	}
	return base, soldier
}

func compileSoldier(t *testing.T) *Schema {
	t.Helper()
	_, soldier := testDeclarations()
	s, err := NewCompiler().Compile(soldier)
	require.NoError(t, err)
	return s
}

func TestCompile_Layout(t *testing.T) {
	s := compileSoldier(t)

	want := map[string]KeyHandle{
		"position": 0,
		"facing":   12,
		"health":   24,
		"ammo":     28,
		"target":   32,
		"alive":    36,
		"stance":   37,
	}
	got := make(map[string]KeyHandle)
	for _, k := range s.Keys() {
		got[k.Name] = k.Handle
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 38, s.Size())
	assert.Equal(t, "soldier", s.Name())
	require.NotNil(t, s.Parent())
	assert.Equal(t, "base", s.Parent().Name())
}

func TestCompile_SizeIsSumAndRangesDoNotOverlap(t *testing.T) {
	s := compileSoldier(t)
	keys := s.Keys()

	sum := 0
	for _, k := range keys {
		sum += k.Size()
	}
	assert.Equal(t, sum, s.Size())

	sort.Slice(keys, func(i, j int) bool { return keys[i].Handle < keys[j].Handle })
	for i := 1; i < len(keys); i++ {
		_, prevEnd := keys[i-1].Range()
		start, _ := keys[i].Range()
		assert.LessOrEqual(t, prevEnd, start, "%s overlaps %s", keys[i-1].Name, keys[i].Name)
	}

	for _, k := range keys {
		assert.Same(t, k, s.KeyAt(k.Handle))
	}
	assert.Nil(t, s.KeyAt(1), "interior byte of a vector must not resolve to a key")
	assert.Nil(t, s.KeyAt(KeyHandle(s.Size())))
}

func TestCompile_Template(t *testing.T) {
	s := compileSoldier(t)
	tpl := s.Template()

	want := make([]byte, 38)
	binary.LittleEndian.PutUint32(want[0:], math.Float32bits(1))
	binary.LittleEndian.PutUint32(want[4:], math.Float32bits(2))
	binary.LittleEndian.PutUint32(want[8:], math.Float32bits(3))
	binary.LittleEndian.PutUint32(want[24:], math.Float32bits(100))
	binary.LittleEndian.PutUint32(want[28:], 30)
	want[36] = 1
	want[37] = 2

	if diff := cmp.Diff(want, tpl); diff != "" {
		t.Errorf("template mismatch (-want +got):\n%s", diff)
	}

	// Template returns a copy
	tpl[0] = 0xFF
	assert.NotEqual(t, byte(0xFF), s.Template()[0])
}

func TestCompile_Idempotent(t *testing.T) {
	base, soldier := testDeclarations()
	c := NewCompiler()

	first, err := c.Compile(soldier)
	require.NoError(t, err)
	second, err := c.Compile(soldier)
	require.NoError(t, err)
	assert.Same(t, first, second)

	parent, err := c.Compile(base)
	require.NoError(t, err)
	assert.Same(t, first.Parent(), parent, "parent is compiled once and shared")
}

func TestCompile_Errors(t *testing.T) {
	t.Run("nil declaration", func(t *testing.T) {
		_, err := NewCompiler().Compile(nil)
		assert.Error(t, err)
	})

	t.Run("cyclic hierarchy", func(t *testing.T) {
		a := &SchemaDeclaration{Name: "a"}
		b := &SchemaDeclaration{Name: "b", Parent: a}
		a.Parent = b
		_, err := NewCompiler().Compile(b)
		assert.ErrorIs(t, err, ErrCyclicHierarchy)
	})

	t.Run("self parent", func(t *testing.T) {
		a := &SchemaDeclaration{Name: "a"}
		a.Parent = a
		_, err := NewCompiler().Compile(a)
		assert.ErrorIs(t, err, ErrCyclicHierarchy)
	})

	t.Run("duplicate across hierarchy", func(t *testing.T) {
		base, _ := testDeclarations()
		child := &SchemaDeclaration{
			Name:   "child",
			Parent: base,
			Keys:   []KeyDeclaration{{Name: "health", Type: KeyTypeInt}},
		}
		_, err := NewCompiler().Compile(child)
		assert.ErrorIs(t, err, ErrDuplicateKey)
		assert.Contains(t, err.Error(), "base")
	})

	t.Run("duplicate within schema", func(t *testing.T) {
		decl := &SchemaDeclaration{Name: "dup", Keys: []KeyDeclaration{
			{Name: "x", Type: KeyTypeBool},
			{Name: "x", Type: KeyTypeBool},
		}}
		_, err := NewCompiler().Compile(decl)
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("invalid type tag", func(t *testing.T) {
		decl := &SchemaDeclaration{Name: "bad", Keys: []KeyDeclaration{{Name: "x"}}}
		_, err := NewCompiler().Compile(decl)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("default of wrong type", func(t *testing.T) {
		decl := &SchemaDeclaration{Name: "bad", Keys: []KeyDeclaration{{Name: "x", Type: KeyTypeInt, Default: "ten"}}}
		_, err := NewCompiler().Compile(decl)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("backend not supported by parent", func(t *testing.T) {
		parent := &SchemaDeclaration{Name: "p", Backends: BackendInterpreter}
		child := &SchemaDeclaration{Name: "c", Parent: parent, Backends: BackendAll}
		_, err := NewCompiler().Compile(child)
		assert.ErrorIs(t, err, ErrUnsupportedBackend)
	})

	t.Run("backend subset of parent", func(t *testing.T) {
		parent := &SchemaDeclaration{Name: "p", Backends: BackendAll}
		child := &SchemaDeclaration{Name: "c", Parent: parent, Backends: BackendRedisSync}
		s, err := NewCompiler().Compile(child)
		require.NoError(t, err)
		assert.Equal(t, BackendRedisSync, s.Backends())
	})
}

func TestSchema_KeyLookup(t *testing.T) {
	s := compileSoldier(t)

	k, err := s.Key("ammo")
	require.NoError(t, err)
	assert.Equal(t, KeyTypeInt, k.Type)
	assert.True(t, k.Traits.Has(TraitNotifyOnUnexpectedChange))

	h, err := s.Handle("stance")
	require.NoError(t, err)
	assert.Equal(t, KeyHandle(37), h)

	_, err = s.Key("missing")
	assert.True(t, IsKeyNotFound(err))
}

func TestSchema_ObjectDefaultsArePinned(t *testing.T) {
	type weapon struct{ name string }
	rifle := &weapon{name: "rifle"}

	decl := &SchemaDeclaration{Name: "armed", Keys: []KeyDeclaration{
		{Name: "weapon", Type: KeyTypeObjectRef, Default: rifle},
	}}
	s, err := NewCompiler().Compile(decl)
	require.NoError(t, err)

	h := buffer(s.Template()).objectAt(0)
	require.NotZero(t, h)
	assert.Same(t, rifle, s.Objects().Resolve(h))

	inst := s.NewInstance()
	obj, err := inst.GetObject("weapon")
	require.NoError(t, err)
	assert.Same(t, rifle, obj)

	inst.Dispose()
	s.Release()
	assert.Equal(t, 0, s.Objects().Len(), "releasing the schema and its instances drops the default")
}
