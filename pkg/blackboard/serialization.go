package blackboard

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Serialization helpers for the Redis sync bridge and plan records.
//
// Synced key values travel as raw little-endian bytes (base64 inside JSON on
// Pub/Sub, binary-safe strings inside hashes). Plan records are stored as one
// JSON-encoded hash field per layer.

// SyncMessage is the Pub/Sub payload of one instance-synced key write.
type SyncMessage struct {
	Origin string `json:"origin"` // Bridge id of the publishing process
	Schema string `json:"schema"` // Schema name
	Key    string `json:"key"`    // Key name
	Type   string `json:"type"`   // KeyType name, checked on receipt
	Value  []byte `json:"value"`  // Raw bytes, len == type size
}

// Validate checks the message against the receiving schema and returns the key it targets.
func (m *SyncMessage) Validate(s *Schema) (*KeyInfo, error) {
	if m.Schema != s.Name() {
		return nil, fmt.Errorf("sync message for schema %q received by %q", m.Schema, s.Name())
	}

	k, err := s.Key(m.Key)
	if err != nil {
		return nil, err
	}

	if k.Type.String() != m.Type {
		return nil, fmt.Errorf("sync message for key %q has type %q, schema declares %s: %w", m.Key, m.Type, k.Type, ErrTypeMismatch)
	}

	if len(m.Value) != k.Size() {
		return nil, fmt.Errorf("sync message for key %q has %d bytes, expected %d", m.Key, len(m.Value), k.Size())
	}

	return k, nil
}

// PlanRecord is the observable form of one committed plan layer.
type PlanRecord struct {
	AgentID       string   `json:"agent_id"`        // UUID of the agent
	Layer         int      `json:"layer"`           // 0 = goal layer
	Result        string   `json:"result"`          // not_required, unchanged or new_plan
	Actions       []string `json:"actions"`         // Goal or action names in plan order
	Cursor        int      `json:"cursor"`          // Index of the action being executed
	Fallback      bool     `json:"fallback"`        // Plan was substituted from the domain fallback
	CommittedAtMs int64    `json:"committed_at_ms"` // Unix timestamp in milliseconds
}

// Validate checks if the PlanRecord has valid field values.
func (r *PlanRecord) Validate() error {
	if !isValidUUID(r.AgentID) {
		return fmt.Errorf("invalid agent ID: not a valid UUID")
	}

	if r.Layer < 0 {
		return fmt.Errorf("invalid layer: must be >= 0, got %d", r.Layer)
	}

	if r.Result == "" {
		return fmt.Errorf("plan result cannot be empty")
	}

	if r.Cursor < 0 || (len(r.Actions) > 0 && r.Cursor > len(r.Actions)) {
		return fmt.Errorf("invalid cursor %d for %d actions", r.Cursor, len(r.Actions))
	}

	return nil
}

// PlanRecordsToHash converts plan records into a Redis hash, one field per layer.
func PlanRecordsToHash(records []PlanRecord) (map[string]interface{}, error) {
	hash := make(map[string]interface{}, len(records))
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal plan record for layer %d: %w", records[i].Layer, err)
		}
		hash[PlanField(records[i].Layer)] = string(data)
	}
	return hash, nil
}

// HashToPlanRecords converts a Redis hash back into plan records ordered by layer.
// Unknown fields are ignored.
func HashToPlanRecords(hash map[string]string) ([]PlanRecord, error) {
	records := make([]PlanRecord, 0, len(hash))
	for field, value := range hash {
		if !strings.HasPrefix(field, "layer_") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(field, "layer_")); err != nil {
			return nil, fmt.Errorf("invalid plan field %q: %w", field, err)
		}

		var r PlanRecord
		if err := json.Unmarshal([]byte(value), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", field, err)
		}
		if r.Actions == nil {
			r.Actions = []string{}
		}
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Layer < records[j].Layer })
	return records, nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
