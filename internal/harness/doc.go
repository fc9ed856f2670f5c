// Package harness runs store scenarios as executable contract tests.
//
// A scenario loads a CUE rules file, registers its observers with a fresh
// store, applies a list of updates and checks the resulting cycles and state.
// The store runs with a deterministic clock and subscriber IDs so traces are
// reproducible and can be compared against golden files.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	rules: counter.cue          # relative to the scenario file
//	max_iterations: 10          # optional, store default otherwise
//	subscribers: 1              # optional, defaults to 1
//	initial:                    # optional, merged over the rules' initial
//	  counter: { value: 0 }
//	updates:
//	  - delta: { counter: { value: 3 } }
//	  - delta: { counter: { value: 200 } }
//	    expect_error: callback
//	assertions:
//	  - type: final_state
//	    path: counter.double
//	    expect: 400
//	  - type: fired
//	    seq: 1
//	    observers: ["double:mutable", "cap:plain"]
//
// # Assertion Types
//
//   - final_state: the value at path contains expect (subset match)
//   - notifications: total state-changed notifications equal count
//   - fired: callbacks fired in cycle seq, in order, as "key:phase"
//   - outcome_count: cycles with the given outcome equal count
//   - iterations: mutable passes of cycle seq equal count
//
// # Error Kinds
//
// expect_error takes "callback", "iteration_limit" or "any". An update that
// fails without expect_error, or succeeds with one, fails the scenario.
package harness
