// Package database provides the SQLite image registry for photo-vault.
//
// The registry holds one row per unique image, keyed by content hash and by
// canonical path. Both keys are unique and insertion is conflict-tolerant:
// a duplicate is silently skipped, never overwritten. The thumbnail pass
// attaches a derived artifact path to each row exactly once.
//
// The database uses WAL mode and provisions its own schema, applying
// additive column migrations to registries created by older releases.
package database
