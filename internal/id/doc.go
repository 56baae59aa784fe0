// Package id generates identifiers for rules and request log records.
//
//   - Rule: decimal millisecond timestamps, strictly increasing within the
//     process, matching the ids of rules created by the browser editor
//   - Record: UUID v4 for request log records
//   - Short: 16-character hex ids for user-facing contexts
package id
