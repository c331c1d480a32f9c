// Package ledger persists the delivery history that makes the courier
// pipeline idempotent across restarts: per-path content hashes, global
// hash dedup, and strictly increasing delivery sequence ids.
package ledger
