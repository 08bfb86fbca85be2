// Package ir provides the constrained value types shared by the query layer,
// the store and the point ledger.
//
// This package imports nothing internal. Every other internal package may
// import ir; ir never imports them back.
//
// Key design constraints:
//   - NO float types anywhere. Point balances and amounts are int64.
//   - Predicate values are IRValues, so compiled SQL parameters and
//     canonical encodings are deterministic.
//   - Content-addressed identifiers (transfer records) are SHA-256 over
//     RFC 8785 canonical JSON with domain separation.
package ir
