// Package sqlite contains the SQLite repository for the flatten run ledger.
//
// The ledger records that a file was flattened, with its grid shape,
// bounding box and tuning values. It never stores the floor model itself.
// Schema lives in internal/db/migrations; open the database with db.NewDB
// and hand its *sql.DB to NewFlattenRunStore.
package sqlite
