// Package postgres implements store.Store on PostgreSQL using pgx/v5 with
// raw SQL.
//
// Batch leases use UPDATE ... WHERE id IN (SELECT ... FOR UPDATE SKIP
// LOCKED), so concurrent runtimes never lease the same row. A unique
// partial index on idempotency_key rejects a second live job for the same
// key. The scheduler lock is a transaction-scoped advisory lock. Schema
// migrations are embedded SQL files applied in name order.
package postgres
