package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced so several lgoap
// deployments can share one Redis server without interference.
//
// Key pattern: lgoap:{namespace}:{entity}:{id}
// Channel pattern: lgoap:{namespace}:{event_type}

// SyncChannel returns the Pub/Sub channel carrying instance-synced key writes of a schema.
// Pattern: lgoap:{namespace}:sync:{schema}
func SyncChannel(namespace, schema string) string {
	return fmt.Sprintf("lgoap:%s:sync:%s", namespace, schema)
}

// SyncedValuesKey returns the Redis hash holding the canonical synced values of a schema.
// Fields are key names, values the raw little-endian bytes.
// Pattern: lgoap:{namespace}:schema:{schema}:synced
func SyncedValuesKey(namespace, schema string) string {
	return fmt.Sprintf("lgoap:%s:schema:%s:synced", namespace, schema)
}

// PlanKey returns the Redis hash holding the committed plans of an agent, one field per layer.
// Pattern: lgoap:{namespace}:agent:{agent_id}:plan
func PlanKey(namespace, agentID string) string {
	return fmt.Sprintf("lgoap:%s:agent:%s:plan", namespace, agentID)
}

// PlanEventsChannel returns the Pub/Sub channel carrying plan commits.
// Pattern: lgoap:{namespace}:plan_events
func PlanEventsChannel(namespace string) string {
	return fmt.Sprintf("lgoap:%s:plan_events", namespace)
}

// PlanField returns the hash field of a layer inside PlanKey.
func PlanField(layer int) string {
	return fmt.Sprintf("layer_%d", layer)
}
