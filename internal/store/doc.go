// Package store provides SQLite-backed storage for organization records.
//
// Two kinds of statements reach the database:
//   - Fixed statements (inserts, lookups) are named queries in queries.sql,
//     loaded with dotsql and executed through sqlx.
//   - Filtered reads and bulk updates are QueryIR compiled by querysql, so
//     their column names come from resolved field paths rather than strings
//     spelled at the call site.
//
// # Deterministic Results
//
// Every SELECT carries ORDER BY. Compiled queries order by the root id;
// named queries spell their own order.
//
// # Idempotent Ledger
//
// Transfer record ids are content-addressed (see ir.TransferID), so
// inserting the same transfer twice fails with ErrDuplicateTransfer instead
// of crediting twice.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
