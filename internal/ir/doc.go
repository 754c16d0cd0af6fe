// Package ir provides the record types shared by the engine, the stores and
// the harness, plus their canonical encoding.
//
// ir imports nothing internal except rotation.
//
// Key design constraints:
//   - NO float types anywhere; numbers are int64
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps
//   - Event ids are content-addressed over RFC 8785 canonical JSON
package ir
