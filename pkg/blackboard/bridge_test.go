package blackboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSyncBridge_MirrorsSyncedKeysBetweenProcesses(t *testing.T) {
	clientA, mr := setupTestClient(t)
	clientB := peerClient(t, mr)
	ctx := context.Background()

	// Each process compiles its own copy of the schema
	schemaA := syncedSchema(t)
	schemaB := syncedSchema(t)

	bridgeA := NewSyncBridge(clientA, schemaA, zaptest.NewLogger(t))
	bridgeB := NewSyncBridge(clientB, schemaB, zaptest.NewLogger(t))
	require.NoError(t, bridgeA.Start(ctx))
	require.NoError(t, bridgeB.Start(ctx))
	defer bridgeA.Close()
	defer bridgeB.Close()

	a := schemaA.NewInstance()
	b := schemaB.NewInstance()
	defer a.Dispose()
	defer b.Dispose()

	require.NoError(t, a.SetVector("rally", Vector3{X: 3, Y: 1, Z: 4}, true))

	require.Eventually(t, func() bool { return bridgeB.Pending() > 0 }, 2*time.Second, 10*time.Millisecond)

	// Remote values only land on Drain
	v, err := b.GetVector("rally")
	require.NoError(t, err)
	assert.Equal(t, Vector3{}, v)

	assert.Equal(t, 1, bridgeB.Drain())
	v, err = b.GetVector("rally")
	require.NoError(t, err)
	assert.Equal(t, Vector3{X: 3, Y: 1, Z: 4}, v)

	// Applying a remote value does not echo it back
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, bridgeA.Pending())
}

func TestSyncBridge_LoadsStoredValuesOnStart(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	writer := syncedSchema(t)
	alarm, err := writer.Key("alarm")
	require.NoError(t, err)
	require.NoError(t, client.PublishSynced(ctx, writer, alarm, []byte{1}))

	reader := syncedSchema(t)
	bridge := NewSyncBridge(client, reader, nil)
	require.NoError(t, bridge.Start(ctx))
	defer bridge.Close()

	inst := reader.NewInstance()
	defer inst.Dispose()
	v, err := inst.GetBool("alarm")
	require.NoError(t, err)
	assert.True(t, v)
}

func TestSyncBridge_DrainSkipsInvalidMessages(t *testing.T) {
	client, _ := setupTestClient(t)
	s := syncedSchema(t)
	bridge := NewSyncBridge(client, s, zaptest.NewLogger(t))

	bridge.pending = []*SyncMessage{
		{Schema: "squad", Key: "alarm", Type: "int", Value: []byte{1}},
		{Schema: "squad", Key: "steps", Type: "int", Value: make([]byte, 4)},
		{Schema: "squad", Key: "alarm", Type: "bool", Value: []byte{1}},
	}
	assert.Equal(t, 1, bridge.Drain())
	assert.Equal(t, 0, bridge.Pending())
	assert.NoError(t, bridge.Close())
}
