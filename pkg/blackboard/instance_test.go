package blackboard

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncedSchema(t *testing.T) *Schema {
	t.Helper()
	decl := &SchemaDeclaration{
		Name:     "squad",
		Backends: BackendAll,
		Keys: []KeyDeclaration{
			{Name: "alarm", Type: KeyTypeBool, Traits: TraitInstanceSynced | TraitNotifyOnUnexpectedChange},
			{Name: "rally", Type: KeyTypeVector3, Traits: TraitInstanceSynced},
			{Name: "leader", Type: KeyTypeObjectRef, Traits: TraitInstanceSynced},
			{Name: "hunger", Type: KeyTypeFloat, Traits: TraitNotifyOnUnexpectedChange},
			{Name: "steps", Type: KeyTypeInt},
		},
	}
	s, err := NewCompiler().Compile(decl)
	require.NoError(t, err)
	return s
}

func TestInstance_StartsFromTemplate(t *testing.T) {
	s := compileSoldier(t)
	inst := s.NewInstance()
	defer inst.Dispose()

	assert.Equal(t, s.Template(), inst.Bytes())
	health, err := inst.GetFloat("health")
	require.NoError(t, err)
	assert.Equal(t, float32(100), health)
}

func TestInstance_RoundTripEveryType(t *testing.T) {
	s := compileSoldier(t)
	inst := s.NewInstance()
	defer inst.Dispose()

	t.Run("bool", func(t *testing.T) {
		require.NoError(t, inst.SetBool("alive", false, true))
		v, err := inst.GetBool("alive")
		require.NoError(t, err)
		assert.False(t, v)
	})

	t.Run("enum", func(t *testing.T) {
		require.NoError(t, inst.SetEnum("stance", 7, true))
		v, err := inst.GetEnum("stance")
		require.NoError(t, err)
		assert.Equal(t, uint8(7), v)
	})

	t.Run("float", func(t *testing.T) {
		require.NoError(t, inst.SetFloat("health", -12.5, true))
		v, err := inst.GetFloat("health")
		require.NoError(t, err)
		assert.Equal(t, float32(-12.5), v)
	})

	t.Run("int", func(t *testing.T) {
		require.NoError(t, inst.SetInt("ammo", -2147483648, true))
		v, err := inst.GetInt("ammo")
		require.NoError(t, err)
		assert.Equal(t, int32(-2147483648), v)
	})

	t.Run("object", func(t *testing.T) {
		type enemy struct{ id int }
		e := &enemy{id: 4}
		require.NoError(t, inst.SetObject("target", e, true))
		v, err := inst.GetObject("target")
		require.NoError(t, err)
		assert.Same(t, e, v)

		require.NoError(t, inst.SetObject("target", nil, true))
		v, err = inst.GetObject("target")
		require.NoError(t, err)
		assert.Nil(t, v)
		assert.Equal(t, 0, s.Objects().Len(), "overwritten object is released")
	})

	t.Run("vector", func(t *testing.T) {
		want := Vector3{X: -1, Y: 0.5, Z: 1e6}
		require.NoError(t, inst.SetVector("position", want, true))
		v, err := inst.GetVector("position")
		require.NoError(t, err)
		assert.Equal(t, want, v)
	})

	t.Run("quaternion", func(t *testing.T) {
		want := Rotation{Pitch: 10, Yaw: 270, Roll: -5}
		require.NoError(t, inst.SetQuaternion("facing", want, true))
		v, err := inst.GetQuaternion("facing")
		require.NoError(t, err)
		assert.Equal(t, want, v)
	})
}

func TestInstance_AccessErrors(t *testing.T) {
	s := compileSoldier(t)
	inst := s.NewInstance()

	_, err := inst.GetFloat("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = inst.GetFloat("ammo")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.True(t, IsTypeMismatch(err))

	err = inst.SetBool("health", true, true)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	inst.Dispose()
	inst.Dispose()
	assert.True(t, inst.Disposed())
	_, err = inst.GetFloat("health")
	assert.ErrorIs(t, err, ErrDisposed)
}

type stance uint8

const (
	stanceStanding stance = iota
	stanceCrouched
	stanceProne
)

type wideStance int32

func TestInstance_EnumAs(t *testing.T) {
	s := compileSoldier(t)
	inst := s.NewInstance()
	defer inst.Dispose()

	require.NoError(t, SetEnumAs(inst, "stance", stanceProne, true))
	v, err := GetEnumAs[stance](inst, "stance")
	require.NoError(t, err)
	assert.Equal(t, stanceProne, v)

	_, err = GetEnumAs[wideStance](inst, "stance")
	assert.ErrorIs(t, err, ErrInvalidEnumWidth)

	err = SetEnumAs(inst, "stance", wideStance(1), true)
	assert.ErrorIs(t, err, ErrInvalidEnumWidth)
}

func TestInstance_UnexpectedChanges(t *testing.T) {
	s := compileSoldier(t)
	inst := s.NewInstance()
	defer inst.Dispose()

	ammo, err := s.Handle("ammo")
	require.NoError(t, err)

	t.Run("expected write is not recorded", func(t *testing.T) {
		require.NoError(t, inst.SetInt("ammo", 10, true))
		assert.False(t, inst.HasUnexpectedChanges())
	})

	t.Run("unchanged value is not recorded", func(t *testing.T) {
		require.NoError(t, inst.SetInt("ammo", 10, false))
		assert.False(t, inst.HasUnexpectedChanges())
	})

	t.Run("key without trait is not recorded", func(t *testing.T) {
		require.NoError(t, inst.SetFloat("health", 1, false))
		assert.False(t, inst.HasUnexpectedChanges())
	})

	t.Run("recorded once per key", func(t *testing.T) {
		require.NoError(t, inst.SetInt("ammo", 9, false))
		require.NoError(t, inst.SetInt("ammo", 8, false))
		assert.Equal(t, []KeyHandle{ammo}, inst.UnexpectedChanges())
	})

	t.Run("clear", func(t *testing.T) {
		inst.ClearUnexpectedChanges()
		assert.False(t, inst.HasUnexpectedChanges())
		assert.Empty(t, inst.UnexpectedChanges())
	})
}

func TestInstance_SyncedKeys(t *testing.T) {
	s := syncedSchema(t)
	a := s.NewInstance()
	b := s.NewInstance()
	defer a.Dispose()
	defer b.Dispose()

	alarm, err := s.Handle("alarm")
	require.NoError(t, err)

	t.Run("expected write reaches other instances", func(t *testing.T) {
		require.NoError(t, a.SetVector("rally", Vector3{5, 0, 5}, true))
		v, err := b.GetVector("rally")
		require.NoError(t, err)
		assert.Equal(t, Vector3{5, 0, 5}, v)
	})

	t.Run("new instances start from canonical values", func(t *testing.T) {
		c := s.NewInstance()
		defer c.Dispose()
		v, err := c.GetVector("rally")
		require.NoError(t, err)
		assert.Equal(t, Vector3{5, 0, 5}, v)
	})

	t.Run("receiver records notifying key, writer does not", func(t *testing.T) {
		require.NoError(t, a.SetBool("alarm", true, true))
		assert.False(t, a.HasUnexpectedChanges())
		assert.Equal(t, []KeyHandle{alarm}, b.UnexpectedChanges())
		b.ClearUnexpectedChanges()
	})

	t.Run("unexpected synced write still fans out", func(t *testing.T) {
		require.NoError(t, b.SetBool("alarm", false, false))
		assert.Equal(t, []KeyHandle{alarm}, b.UnexpectedChanges())
		v, err := a.GetBool("alarm")
		require.NoError(t, err)
		assert.False(t, v)
		assert.Equal(t, []KeyHandle{alarm}, a.UnexpectedChanges())
	})

	t.Run("unsynced keys stay local", func(t *testing.T) {
		require.NoError(t, a.SetInt("steps", 3, true))
		v, err := b.GetInt("steps")
		require.NoError(t, err)
		assert.Equal(t, int32(0), v)
	})

	t.Run("disposed instance stops receiving", func(t *testing.T) {
		c := s.NewInstance()
		assert.Equal(t, 3, s.Listeners())
		c.Dispose()
		assert.Equal(t, 2, s.Listeners())
		require.NoError(t, a.SetVector("rally", Vector3{}, true))
	})
}

func TestInstance_SyncedObjectRefCounting(t *testing.T) {
	s := syncedSchema(t)
	a := s.NewInstance()
	b := s.NewInstance()

	leader := &struct{ name string }{name: "sarge"}
	require.NoError(t, a.SetObject("leader", leader, true))

	got, err := b.GetObject("leader")
	require.NoError(t, err)
	assert.Same(t, leader, got)

	a.Dispose()
	got, err = b.GetObject("leader")
	require.NoError(t, err)
	assert.Same(t, leader, got, "other holders keep the object alive")

	b.Dispose()
	require.NoError(t, s.ApplySynced(mustHandle(t, s, "leader"), make([]byte, 4)))
	assert.Equal(t, 0, s.Objects().Len())
}

func TestInstance_WeakRegistryDropsCollectedInstances(t *testing.T) {
	s := syncedSchema(t)
	keep := s.NewInstance()
	defer keep.Dispose()

	func() {
		_ = s.NewInstance()
	}()
	for i := 0; i < 5 && s.Listeners() > 1; i++ {
		runtime.GC()
	}
	assert.Equal(t, 1, s.Listeners())
}

func TestSchema_ApplySynced(t *testing.T) {
	s := syncedSchema(t)
	a := s.NewInstance()
	defer a.Dispose()

	var hooked int
	unhook := s.OnSyncedWrite(func(*KeyInfo, []byte) { hooked++ })
	defer unhook()

	value := []byte{1}
	require.NoError(t, s.ApplySynced(mustHandle(t, s, "alarm"), value))
	v, err := a.GetBool("alarm")
	require.NoError(t, err)
	assert.True(t, v)
	assert.True(t, a.HasUnexpectedChanges())
	assert.Zero(t, hooked, "remote values are not re-published")
	assert.Equal(t, value, s.SyncedValue(mustHandle(t, s, "alarm")))

	require.NoError(t, a.SetBool("alarm", false, true))
	assert.Equal(t, 1, hooked)

	err = s.ApplySynced(mustHandle(t, s, "steps"), make([]byte, 4))
	assert.Error(t, err)
	err = s.ApplySynced(mustHandle(t, s, "alarm"), make([]byte, 4))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestSnapshot(t *testing.T) {
	s := compileSoldier(t)
	inst := s.NewInstance()
	defer inst.Dispose()

	require.NoError(t, inst.SetInt("ammo", 3, true))

	snap := s.NewSnapshot()
	assert.Equal(t, s.Template(), snap.Bytes())

	snap.CopyFrom(inst)
	ammo := mustHandle(t, s, "ammo")
	assert.Equal(t, int32(3), snap.IntAt(ammo))

	snap.SetIntAt(ammo, 0, false)
	assert.Equal(t, int32(0), snap.IntAt(ammo))
	got, err := inst.GetInt("ammo")
	require.NoError(t, err)
	assert.Equal(t, int32(3), got, "snapshot writes never touch the instance")
	assert.False(t, inst.HasUnexpectedChanges())
}

func mustHandle(t *testing.T, s *Schema, name string) KeyHandle {
	t.Helper()
	h, err := s.Handle(name)
	require.NoError(t, err)
	return h
}
