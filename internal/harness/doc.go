// Package harness runs crop-rotation scenarios against a real engine and
// compares the resulting decision log with golden traces.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: legume_break
//	description: "Two cereal harvests in a row force a legume"
//	field: north            # optional; a generated id is used otherwise
//	setup:                  # harvests recorded before the steps
//	  - wheat
//	steps:
//	  - harvest: sorghum
//	  - sow: wheat
//	    expect: denied
//	    rule: legume_break
//	  - sow: chickpea
//	    expect: allowed
//	history:                # final history of the field
//	  previous_crop1: sorghum
//	  previous_crop2: wheat
//	assertions:
//	  - type: trace_count
//	    kind: sowing_check
//	    outcome: denied
//	    count: 1
//
// A sow step asks whether a crop may be sown and may expect allowed, denied
// or unknown_crop. A harvest step records a harvest and may expect recorded
// or ignored.
//
// # Assertion Types
//
//   - trace_contains: an event matching kind, crop and outcome exists
//   - trace_order: the listed outcomes appear in this order
//   - trace_count: exactly count events match kind, crop and outcome
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory SQLite store with a
// testutil.DeterministicClock and testutil.SequentialIDGenerator, so the
// same scenario always produces a byte-identical trace.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/legume_break.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
