// Package harness runs end-to-end conformance scenarios against a real
// Places fixture.
//
// Each scenario builds a fresh places.sqlite, connects a session to it, runs
// script steps against the mirror, optionally commits and restores, and then
// checks the recorded trace and the final state of the origin database.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	fixture: standard          # standard | empty
//	options:
//	  batch_size: 3
//	  write_frecency: false
//	  read_only: false
//	setup:                     # SQL run against the origin before connecting
//	  - "UPDATE moz_places SET description = 'x' WHERE id = 1"
//	steps:                     # script steps applied to the mirror
//	  - replace:
//	      contains: {url: wikipedia.org}
//	      field: title
//	      old: Wikipedia
//	      new: Wikikipedia
//	commit: true
//	restore: 0                 # optional snapshot index restored after commit
//	expect_error: COMMIT_FAILED
//	assertions:
//	  - type: trace_contains
//	    action: commit
//	    args: { changed: 1 }
//	  - type: final_state
//	    table: moz_bookmarks
//	    where: { guid: bkwiki000001 }
//	    expect: { title: "Go (programming language) - Wikikipedia" }
//
// # Trace
//
// The harness records one event per stage: connect, step, diff, commit,
// restore and error. Each event carries a small detail map (row counts,
// changed guids, snapshot file name, error code).
//
// # Assertion Types
//
//   - trace_contains: an event of the given action exists whose details include args
//   - trace_order: the given actions appear in order
//   - trace_count: the given action appears exactly N times
//   - final_state: exactly one origin row matches where and has the expected values
//
// # Deterministic Testing
//
// Snapshots are named from a step clock starting at 1700000000, and the
// trace never includes paths or session ids, so the same scenario always
// produces the same trace for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/retitle.yaml")
//	if err != nil {
//	    t.Fatal(err)
//	}
//	result, err := harness.Run(t, scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        t.Log(msg)
//	    }
//	}
package harness
