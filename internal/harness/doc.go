// Package harness runs transform scenarios against a live document session.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: move_into_empty_page
//	description: "What this scenario checks"
//	document: |
//	  body { ... }
//	assets:
//	  - media/hero.png
//	setup:
//	  - op: setText
//	    args: { id: t1, text: "Hi" }
//	flow:
//	  - op: moveNode
//	    args: { id: p1, targetId: empty }
//	    write_id: w-1
//	    expect:
//	      ok: true
//	      changed: true
//	assertions:
//	  - type: child_count
//	    id: empty
//	    kind: section
//	    count: 1
//
// document_file may replace document; it is resolved against the scenario
// file's directory. Asset paths become empty files visible to asset banks.
//
// # Assertion Types
//
//   - source_contains / source_excludes: substring checks on the final source
//   - node_exists: id present, optionally with kind, parent and ancestor
//   - node_absent: id not present
//   - child_count: number of children of id, optionally of one kind
//   - revision: final document revision
//   - history_count: number of journaled commits
//   - diagnostic: a diagnostic with the given code is currently reported
//
// # Determinism
//
// Each run uses a fresh temporary directory, its own journal, a fake clock
// and the scenario's write ids, so traces compare byte for byte against
// golden files.
package harness
