// Package tenant provides the per-tenant SQLite storage used by comanda.
//
// Each tenant gets its own database file under the data directory:
//   - customers: contact directory (name, address, coordinates, spend)
//   - orders: one row per finalized session lifecycle
//   - catalog_items / catalog_mappings: the tenant's menu and keyword routes
//   - settings: small tenant-scoped flags such as bot enablement
//
// # Isolation
//
// Every Store method takes a tenant id and touches only that tenant's file.
// There are no cross-tenant queries and no cross-file foreign keys.
//
// # Schema Evolution
//
// Partitions are migrated on open. Missing tables are created and missing
// columns are added with ALTER TABLE; rows are never rewritten or dropped.
// A table that cannot be migrated is logged and reported by
// Partition.Degraded, and the partition opens anyway.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package tenant
