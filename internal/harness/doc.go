// Package harness runs conformance scenarios against a Store.
//
// A scenario is a YAML file declaring containers (namespace, initial value
// and an optional CUE schema), a list of steps and the expected outcome:
//
//	name: undo_before_sync
//	containers:
//	  - namespace: a
//	    initial: []
//	    schema: "[...string]"
//	steps:
//	  - action: transaction
//	    edits:
//	      - namespace: a
//	        ops: [{op: add, path: [0], value: x}]
//	  - action: undo
//	  - action: sync
//	expect:
//	  a: []
//	assertions:
//	  - "len(synced) == 0"
//
// Steps are transaction, undo, redo, sync (drain the outbound queue),
// remote (apply a batch of changes as if received from a peer) and revert.
// Transaction ids come from a deterministic sequence ("tx-1", "tx-2", ...),
// so runs are reproducible and can be compared against golden files.
package harness
