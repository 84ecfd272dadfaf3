// Package database implements the encrypted SQLite store for the media
// catalog.
//
// It handles storage and reconciliation of:
//   - Media file metadata (images and videos) with favorites
//   - Folder-derived albums, including the repair pass that merges
//     duplicate albums sharing a folder key
//   - Persons, detected faces, face-to-person suggestions
//   - Incremental face-scan bookkeeping
//
// The database file is encrypted with SQLCipher; opening it requires a
// passphrase, verified before any schema work happens. WAL mode is used so
// one connection can write while others read. Schema evolution is an ordered
// list of idempotent, additive-only migrations applied on open.
//
// Every mutating method commits before returning. RepairAlbums is the one
// operation callers must serialize themselves: concurrent repairs from two
// handles are not coordinated here.
package database
