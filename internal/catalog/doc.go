// Package catalog is the relational persistence layer for the media catalog.
//
// A single Store interface fronts two concrete implementations, SQLite and
// PostgreSQL. Placeholder style and upsert syntax live inside each
// implementation; business logic never branches on the database type. Schema
// is managed with embedded per-dialect migrations.
//
// Catalog scopes are disjoint by (device_id, system_id): concurrent scanners
// for different devices never contend on the same rows and must never share a
// write transaction.
package catalog
