// Package harness runs write scenarios against a fresh store.
//
// A scenario is a YAML file: the collections to create, a list of steps, each a
// batch with optional expectations, and assertions on the final state. Every
// step runs in its own session on a clock that advances one second per step, so
// transaction versions and timestamps are reproducible. The per-row outcome of
// all steps forms a trace that can be compared against a golden file:
//
//	name: update_then_delete
//	description: an update supersedes, a delete leaves a tombstone
//	collections:
//	  - id: roads
//	steps:
//	  - batch:
//	      collection: roads
//	      features:
//	        - {op: create, id: a1, feature: {properties: {name: Main}}}
//	    expect:
//	      actions: {a1: CREATED}
//	assertions:
//	  - {type: head, collection: roads, id: a1, count: 1}
package harness
