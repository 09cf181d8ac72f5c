// Package blackboard provides the compiled, typed key/value memory agents plan over.
//
// # Overview
//
// A SchemaDeclaration names a set of typed keys and optionally inherits from a
// parent declaration. The Compiler flattens the chain into a Schema with a
// fixed byte layout: keys are bucketed by size (12, 4, then 1 byte) so no
// padding is needed, and each key's byte offset becomes its KeyHandle. Default
// values are written once into a template buffer.
//
// An Instance is one agent's live blackboard. It copies the template on
// creation and exposes two access paths:
//
//   - validated accessors by name (GetFloat, SetBool, ...), returning
//     ErrKeyNotFound or ErrTypeMismatch
//   - unchecked accessors by handle (FloatAt, SetBoolAt, ...), used by the
//     compiled function engine
//
// A Snapshot is a plain copy of the same layout used for search-time
// simulation. Instance and Snapshot both implement Memory.
//
// # Traits
//
// Keys with TraitInstanceSynced share one value across every instance of the
// schema: a write is stored in the schema's canonical copy and pushed to every
// other registered instance. Keys with TraitNotifyOnUnexpectedChange record
// their handle when changed by a write made with expected=false, so the owner
// can trigger replanning.
//
// # Redis
//
// Client and SyncBridge carry instance-synced values and committed plan
// records across processes. All keys and channels are namespaced:
//
//	lgoap:{namespace}:sync:{schema}            Pub/Sub, SyncMessage JSON
//	lgoap:{namespace}:schema:{schema}:synced   hash, key name -> raw bytes
//	lgoap:{namespace}:agent:{agent_id}:plan    hash, layer_N -> PlanRecord JSON
//	lgoap:{namespace}:plan_events              Pub/Sub, PlanRecord JSON
//
// # Usage Example
//
//	decl := &blackboard.SchemaDeclaration{
//		Name: "soldier",
//		Keys: []blackboard.KeyDeclaration{
//			{Name: "health", Type: blackboard.KeyTypeFloat, Default: float32(100)},
//			{Name: "armed", Type: blackboard.KeyTypeBool,
//				Traits: blackboard.TraitNotifyOnUnexpectedChange},
//		},
//	}
//
//	schema, err := blackboard.NewCompiler().Compile(decl)
//	if err != nil {
//		return err
//	}
//
//	bb := schema.NewInstance()
//	defer bb.Dispose()
//
//	if err := bb.SetBool("armed", true, false); err != nil {
//		return err
//	}
//	changed := bb.UnexpectedChanges() // [handle of "armed"]
package blackboard
