// Package fingerprint records request fingerprints so repeated submissions
// of the same payload can be detected.
//
// A fingerprint is the lowercase hex SHA-256 of the exact request bytes, so
// two payloads that differ only in whitespace or key order are distinct.
// Records are created once and never updated or expired.
//
// Every Store exposes an atomic insert-if-absent (Record), so two concurrent
// submissions of one payload can never both be told they were first:
//
//   - SQLStore: INSERT ... ON CONFLICT DO NOTHING, checking RowsAffected
//   - RedisStore: SETNX
//   - MemoryStore: a mutex-guarded set
package fingerprint
