// Package device holds the per-device reading aggregate and its persistence.
//
// # Key Types
//
//   - Reading: one timestamped counter observation, stored verbatim
//   - Device: the running aggregate for one device id (total count,
//     latest reading, every accepted reading newest batch first)
//   - Repository: persistence contract, with SQL (SQLite/PostgreSQL) and
//     in-memory implementations
//
// # Ordering
//
// Reading timestamps are compared as instants when both parse as RFC 3339,
// and as strings otherwise. Timestamps are never normalised, so a value such
// as "2021-02-29T16:08:15+01:00" round-trips exactly as submitted.
//
// # Usage
//
//	repo := device.NewSQLRepository(db.DB, db.Dialect())
//
//	d, err := repo.GetByID(ctx, id)
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // unknown id
//	}
package device
